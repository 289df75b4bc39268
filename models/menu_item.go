package models

import "time"

type MenuItem struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Price       float64   `json:"price"`
	Category    string    `json:"category"`
	Description *string   `json:"description,omitempty"`
	ImageURL    *string   `json:"image_url,omitempty"`
	IsActive    bool      `json:"is_active"`
	Version     int64     `json:"version"`
	OriginID    string    `json:"origin_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (m MenuItem) RowID() string     { return m.ID }
func (m MenuItem) RowVersion() int64 { return m.Version }
