package models

import "time"

// HistoryItem adalah line item yang sudah didenormalisasi ke dalam
// OrderHistory supaya perubahan menu berikutnya tidak mengubah arsip.
type HistoryItem struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"line_total"`
}

// OrderHistory is the immutable record written once per completed payment.
// Rows are only ever soft deleted (DeletedAt) to keep the audit trail.
type OrderHistory struct {
	ID            string        `json:"id"`
	TableNumber   string        `json:"table_number"`
	Items         []HistoryItem `json:"items"`
	TotalAmount   float64       `json:"total_amount"`
	PaymentMethod string        `json:"payment_method"`
	CompletedAt   time.Time     `json:"completed_at"`
	DeletedAt     *time.Time    `json:"deleted_at,omitempty"`
	Version       int64         `json:"version"`
	OriginID      string        `json:"origin_id,omitempty"`
}

func (h OrderHistory) RowID() string     { return h.ID }
func (h OrderHistory) RowVersion() int64 { return h.Version }
