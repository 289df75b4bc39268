package models

import "time"

const (
	TableAvailable = "available"
	TableOccupied  = "occupied"
)

type Table struct {
	ID             string     `json:"id"`
	Number         string     `json:"number"`
	Seats          int        `json:"seats"`
	Status         string     `json:"status"`
	CustomerCount  *int       `json:"customer_count,omitempty"`
	OrderStartTime *time.Time `json:"order_start_time,omitempty"`
	TotalAmount    float64    `json:"total_amount"`
	Version        int64      `json:"version"`
	OriginID       string     `json:"origin_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (t Table) RowID() string     { return t.ID }
func (t Table) RowVersion() int64 { return t.Version }
