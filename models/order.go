package models

import "time"

// Order adalah satu line item milik sebuah meja. UnitPrice diambil saat
// pemesanan dan tidak ikut berubah ketika harga menu berubah.
type Order struct {
	ID         string    `json:"id"`
	TableID    string    `json:"table_id"`
	MenuItemID string    `json:"menu_item_id"`
	Quantity   int       `json:"quantity"`
	UnitPrice  float64   `json:"unit_price"`
	Version    int64     `json:"version"`
	OriginID   string    `json:"origin_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (o Order) RowID() string     { return o.ID }
func (o Order) RowVersion() int64 { return o.Version }

func (o Order) LineTotal() float64 {
	return o.UnitPrice * float64(o.Quantity)
}
