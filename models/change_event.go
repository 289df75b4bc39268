package models

import "encoding/json"

// Entity kinds as named by the remote store.
const (
	EntityTables       = "tables"
	EntityOrders       = "orders"
	EntityMenuItems    = "menu_items"
	EntityOrderHistory = "order_history"
)

// Change feed operations.
const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// ChangeEvent adalah satu perubahan row yang diterima dari change feed.
// Row selalu berisi payload penuh; untuk DELETE minimal id + version.
type ChangeEvent struct {
	Entity   string          `json:"entity"`
	Op       string          `json:"op"`
	Row      json.RawMessage `json:"row"`
	Version  int64           `json:"version"`
	OriginID string          `json:"origin_id,omitempty"`
}
