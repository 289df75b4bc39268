package remote

import (
	"context"

	"github.com/ichikitsu-lab/OrderingSystem/models"
)

// Store is the narrow capability contract the sync engine needs from the
// backend: row CRUD plus list per entity. The realtime feed lives in the
// feed package; everything here is request/response.
//
// Insert dan update mengembalikan row hasil commit server (version baru,
// timestamp server). originID pada delete ikut dipantulkan ke change event
// supaya client pengirim bisa mengenali echo tulisannya sendiri.
//
// total_amount meja milik server: setiap write order membuat server
// menghitung ulang total meja pemilik dan menerbitkan event tables baru.
// Client tidak pernah mengirim total hasil read-modify-write sendiri.
type Store interface {
	Ping(ctx context.Context) error

	ListTables(ctx context.Context) ([]models.Table, error)
	InsertTable(ctx context.Context, t models.Table) (models.Table, error)
	UpdateTable(ctx context.Context, t models.Table) (models.Table, error)
	DeleteTable(ctx context.Context, id, originID string) error

	ListOrders(ctx context.Context) ([]models.Order, error)
	InsertOrder(ctx context.Context, o models.Order) (models.Order, error)
	UpdateOrder(ctx context.Context, o models.Order) (models.Order, error)
	DeleteOrder(ctx context.Context, id, originID string) error
	DeleteOrdersByTable(ctx context.Context, tableID, originID string) error

	ListMenuItems(ctx context.Context, activeOnly bool) ([]models.MenuItem, error)
	InsertMenuItem(ctx context.Context, m models.MenuItem) (models.MenuItem, error)
	UpdateMenuItem(ctx context.Context, m models.MenuItem) (models.MenuItem, error)
	DeactivateMenuItem(ctx context.Context, id, originID string) error

	ListOrderHistory(ctx context.Context) ([]models.OrderHistory, error)
	InsertOrderHistory(ctx context.Context, h models.OrderHistory) (models.OrderHistory, error)
	SoftDeleteOrderHistory(ctx context.Context, id, originID string) error
}
