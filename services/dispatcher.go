package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ichikitsu-lab/OrderingSystem/mirror"
	"github.com/ichikitsu-lab/OrderingSystem/models"
	"github.com/ichikitsu-lab/OrderingSystem/remote"
	"github.com/ichikitsu-lab/OrderingSystem/sound"
	"github.com/ichikitsu-lab/OrderingSystem/utils"
)

type writeFn func(ctx context.Context) ([]mirror.Op, error)

// Dispatcher menerima intent user, memvalidasi terhadap mirror, memasang
// perubahan optimistis lewat reconciler, lalu mengirim remote write secara
// asinkron. Caller langsung mendapat kontrol kembali; kegagalan remote
// diselesaikan lewat rollback + notice, bukan lewat nilai balik.
type Dispatcher struct {
	store  *mirror.Store
	remote remote.Store
	rec    *Reconciler
	sounds sound.Effects

	// transient failure di-retry dengan backoff; penolakan validasi tidak
	retryDelays []time.Duration

	mu          sync.Mutex
	pendingAdds map[string]*pendingAdd // order id -> add yang belum terkonfirmasi
}

type pendingAdd struct {
	corrID    string
	sent      bool
	cancelled bool
}

func NewDispatcher(store *mirror.Store, rs remote.Store, rec *Reconciler, sounds sound.Effects) *Dispatcher {
	return &Dispatcher{
		store:       store,
		remote:      rs,
		rec:         rec,
		sounds:      sounds,
		retryDelays: []time.Duration{200 * time.Millisecond, 600 * time.Millisecond, 1800 * time.Millisecond},
		pendingAdds: make(map[string]*pendingAdd),
	}
}

// attemptWrite menjalankan fn dengan retry budget. Penolakan validasi
// langsung dikembalikan tanpa retry.
func (d *Dispatcher) attemptWrite(intent string, fn writeFn) ([]mirror.Op, error) {
	var lastErr error
	for attempt := 0; attempt <= len(d.retryDelays); attempt++ {
		if attempt > 0 {
			time.Sleep(d.retryDelays[attempt-1])
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		ops, err := fn(ctx)
		cancel()
		if err == nil {
			return ops, nil
		}
		if remote.IsValidation(err) {
			return nil, err
		}
		lastErr = err
		utils.ErrorLogger.Printf("%s: attempt %d failed: %v", intent, attempt+1, err)
	}
	return nil, fmt.Errorf("%w: %v", ErrRemoteWrite, lastErr)
}

func (d *Dispatcher) runWrite(corrID, intent string, fn writeFn) {
	ops, err := d.attemptWrite(intent, fn)
	if err != nil {
		d.rec.FailWrite(corrID, intent+" failed: "+err.Error())
		return
	}
	d.rec.ConfirmWrite(corrID, ops)
}

// CreateTable menambahkan meja baru (available, tanpa order).
func (d *Dispatcher) CreateTable(number string, seats int) (models.Table, error) {
	if number == "" {
		return models.Table{}, ErrInvalidTableNumber
	}
	if seats <= 0 {
		return models.Table{}, ErrInvalidSeats
	}

	corrID := uuid.NewString()
	t := models.Table{
		ID:       uuid.NewString(),
		Number:   number,
		Seats:    seats,
		Status:   models.TableAvailable,
		OriginID: corrID,
	}

	d.rec.EnqueueMutation(Mutation{
		ID:       corrID,
		Intent:   "create table",
		Patch:    mirror.Patch{Ops: []mirror.Op{mirror.Put(models.EntityTables, t)}},
		Rollback: mirror.Patch{Ops: []mirror.Op{mirror.Delete(models.EntityTables, t.ID, 0)}},
		Keys:     []EntityKey{{models.EntityTables, t.ID}},
	})

	go d.runWrite(corrID, "create table", func(ctx context.Context) ([]mirror.Op, error) {
		row, err := d.remote.InsertTable(ctx, t)
		if err != nil {
			return nil, err
		}
		return []mirror.Op{mirror.Put(models.EntityTables, row)}, nil
	})
	return t, nil
}

// OpenTable menempati meja: available -> occupied.
func (d *Dispatcher) OpenTable(tableID string, customerCount int) error {
	t, ok := d.store.Table(tableID)
	if !ok {
		return ErrTableNotFound
	}
	if t.Status != models.TableAvailable {
		return ErrTableNotAvailable
	}
	if customerCount <= 0 {
		return ErrInvalidCustomerCount
	}

	corrID := uuid.NewString()
	now := time.Now()
	cc := customerCount
	updated := t
	updated.Status = models.TableOccupied
	updated.CustomerCount = &cc
	updated.OrderStartTime = &now
	updated.TotalAmount = 0
	updated.OriginID = corrID

	d.rec.EnqueueMutation(Mutation{
		ID:       corrID,
		Intent:   "open table",
		Patch:    mirror.Patch{Ops: []mirror.Op{mirror.Put(models.EntityTables, updated)}},
		Rollback: mirror.Patch{Ops: []mirror.Op{mirror.Put(models.EntityTables, t)}},
		Keys:     []EntityKey{{models.EntityTables, t.ID}},
	})

	go d.runWrite(corrID, "open table", func(ctx context.Context) ([]mirror.Op, error) {
		row, err := d.remote.UpdateTable(ctx, updated)
		if err != nil {
			return nil, err
		}
		return []mirror.Op{mirror.Put(models.EntityTables, row)}, nil
	})
	return nil
}

// AddOrderItem menambahkan satu line item ke meja yang sedang dipakai.
// Harga diambil dari menu saat ini dan dibekukan di order (perubahan harga
// menu kemudian tidak mengubah order yang sudah ada). total_amount meja
// tidak dihitung di sini: server menghitung ulang setiap write order, dan
// reconciler menurunkan nilai optimistisnya dari order hidup di mirror,
// jadi dua add beruntun tidak saling menimpa.
func (d *Dispatcher) AddOrderItem(tableID, menuItemID string, quantity int) (models.Order, error) {
	t, ok := d.store.Table(tableID)
	if !ok {
		return models.Order{}, ErrTableNotFound
	}
	if t.Status != models.TableOccupied {
		return models.Order{}, ErrTableNotOccupied
	}
	item, ok := d.store.MenuItem(menuItemID)
	if !ok {
		return models.Order{}, ErrMenuItemNotFound
	}
	if !item.IsActive {
		return models.Order{}, ErrMenuItemInactive
	}
	if item.Price < 0 {
		return models.Order{}, ErrInvalidPrice
	}
	if quantity <= 0 {
		return models.Order{}, ErrInvalidQuantity
	}

	corrID := uuid.NewString()
	order := models.Order{
		ID:         uuid.NewString(),
		TableID:    tableID,
		MenuItemID: menuItemID,
		Quantity:   quantity,
		UnitPrice:  item.Price,
		OriginID:   corrID,
		CreatedAt:  time.Now(),
	}
	pa := &pendingAdd{corrID: corrID}
	d.mu.Lock()
	d.pendingAdds[order.ID] = pa
	d.mu.Unlock()

	d.rec.EnqueueMutation(Mutation{
		ID:       corrID,
		Intent:   "add order item",
		Patch:    mirror.Patch{Ops: []mirror.Op{mirror.Put(models.EntityOrders, order)}},
		Rollback: mirror.Patch{Ops: []mirror.Op{mirror.Delete(models.EntityOrders, order.ID, 0)}},
		Keys:     []EntityKey{{models.EntityOrders, order.ID}},
	})

	fn := func(ctx context.Context) ([]mirror.Op, error) {
		row, err := d.remote.InsertOrder(ctx, order)
		if err != nil {
			var re *remote.RequestError
			if errors.As(err, &re) && re.Status == http.StatusConflict {
				// insert sudah commit pada attempt sebelumnya
				row = order
			} else {
				return nil, err
			}
		}
		return []mirror.Op{mirror.Put(models.EntityOrders, row)}, nil
	}

	go func() {
		d.mu.Lock()
		if pa.cancelled {
			// dibatalkan sebelum sempat terkirim; tidak ada remote write
			delete(d.pendingAdds, order.ID)
			d.mu.Unlock()
			return
		}
		pa.sent = true
		d.mu.Unlock()

		ops, err := d.attemptWrite("add order item", fn)

		d.mu.Lock()
		cancelled := pa.cancelled
		delete(d.pendingAdds, order.ID)
		d.mu.Unlock()

		switch {
		case err != nil:
			d.rec.FailWrite(corrID, "add order item failed: "+err.Error())
		case cancelled:
			// remove datang saat write masih terbang: batalkan di remote
			d.compensateCancelledAdd(order)
		default:
			d.rec.ConfirmWrite(corrID, ops)
			if d.sounds != nil {
				d.sounds.OrderConfirm()
			}
		}
	}()

	return order, nil
}

// compensateCancelledAdd menghapus order yang sempat commit padahal user
// sudah membatalkannya. Best effort: mirror sudah benar, sisa pembersihan
// remote diselesaikan lewat feed.
func (d *Dispatcher) compensateCancelledAdd(order models.Order) {
	corrID := uuid.NewString()
	_, err := d.attemptWrite("cancel order item", func(ctx context.Context) ([]mirror.Op, error) {
		if err := d.remote.DeleteOrder(ctx, order.ID, corrID); err != nil {
			var re *remote.RequestError
			if errors.As(err, &re) && re.Status == http.StatusNotFound {
				return nil, nil
			}
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		utils.ErrorLogger.Printf("Best-effort cancel of order %s failed: %v", order.ID, err)
	}
}

// RemoveOrderItem menghapus satu line item. Bila item masih menunggu
// konfirmasi add, keduanya saling meniadakan tanpa remote write bersih.
func (d *Dispatcher) RemoveOrderItem(orderID string) error {
	o, ok := d.store.Order(orderID)
	if !ok {
		return ErrOrderNotFound
	}

	d.mu.Lock()
	if pa, exists := d.pendingAdds[orderID]; exists {
		pa.cancelled = true
		d.mu.Unlock()
		d.rec.CancelMutation(pa.corrID)
		return nil
	}
	d.mu.Unlock()

	corrID := uuid.NewString()
	d.rec.EnqueueMutation(Mutation{
		ID:       corrID,
		Intent:   "remove order item",
		Patch:    mirror.Patch{Ops: []mirror.Op{mirror.Delete(models.EntityOrders, o.ID, o.Version)}},
		Rollback: mirror.Patch{Ops: []mirror.Op{mirror.Put(models.EntityOrders, o)}},
		Keys:     []EntityKey{{models.EntityOrders, o.ID}},
	})

	go d.runWrite(corrID, "remove order item", func(ctx context.Context) ([]mirror.Op, error) {
		if err := d.remote.DeleteOrder(ctx, o.ID, corrID); err != nil {
			var re *remote.RequestError
			if !errors.As(err, &re) || re.Status != http.StatusNotFound {
				return nil, err
			}
			// sudah terhapus; anggap selesai
		}
		return []mirror.Op{mirror.Delete(models.EntityOrders, o.ID, o.Version)}, nil
	})
	return nil
}

// ClosePayment menutup meja: satu record OrderHistory ditulis, seluruh
// order meja dihapus, meja kembali available. Ketiganya dipasang ke mirror
// sebagai satu patch atomik supaya UI tidak pernah melihat meja occupied
// tanpa order.
func (d *Dispatcher) ClosePayment(tableID, paymentMethod string) error {
	switch paymentMethod {
	case "cash", "card", "qris":
	default:
		return ErrInvalidPaymentMethod
	}

	t, ok := d.store.Table(tableID)
	if !ok {
		return ErrTableNotFound
	}
	if t.Status != models.TableOccupied {
		return ErrTableNotOccupied
	}
	orders := d.store.OrdersByTable(tableID)
	if len(orders) == 0 {
		return ErrNoOpenOrders
	}

	corrID := uuid.NewString()
	var total float64
	items := make([]models.HistoryItem, 0, len(orders))
	for _, o := range orders {
		name := "(removed item)"
		if mi, ok := d.store.MenuItem(o.MenuItemID); ok {
			name = mi.Name
		}
		items = append(items, models.HistoryItem{
			Name:      name,
			Quantity:  o.Quantity,
			UnitPrice: o.UnitPrice,
			LineTotal: o.LineTotal(),
		})
		total += o.LineTotal()
	}

	history := models.OrderHistory{
		ID:            uuid.NewString(),
		TableNumber:   t.Number,
		Items:         items,
		TotalAmount:   total,
		PaymentMethod: paymentMethod,
		CompletedAt:   time.Now(),
		OriginID:      corrID,
	}

	updated := t
	updated.Status = models.TableAvailable
	updated.CustomerCount = nil
	updated.OrderStartTime = nil
	updated.TotalAmount = 0
	updated.OriginID = corrID

	ops := []mirror.Op{mirror.Put(models.EntityOrderHistory, history)}
	rollback := []mirror.Op{mirror.Delete(models.EntityOrderHistory, history.ID, 0)}
	keys := []EntityKey{{models.EntityOrderHistory, history.ID}, {models.EntityTables, t.ID}}
	for _, o := range orders {
		ops = append(ops, mirror.Delete(models.EntityOrders, o.ID, o.Version))
		rollback = append(rollback, mirror.Put(models.EntityOrders, o))
		keys = append(keys, EntityKey{models.EntityOrders, o.ID})
	}
	ops = append(ops, mirror.Put(models.EntityTables, updated))
	rollback = append(rollback, mirror.Put(models.EntityTables, t))

	d.rec.EnqueueMutation(Mutation{
		ID:       corrID,
		Intent:   "close payment",
		Patch:    mirror.Patch{Ops: ops},
		Rollback: mirror.Patch{Ops: rollback},
		Keys:     keys,
	})

	go func() {
		acks, err := d.attemptWrite("close payment", func(ctx context.Context) ([]mirror.Op, error) {
			hrow, err := d.remote.InsertOrderHistory(ctx, history)
			if err != nil {
				var re *remote.RequestError
				if errors.As(err, &re) && re.Status == http.StatusConflict {
					hrow = history
				} else {
					return nil, err
				}
			}
			if err := d.remote.DeleteOrdersByTable(ctx, tableID, corrID); err != nil {
				return nil, err
			}
			trow, err := d.remote.UpdateTable(ctx, updated)
			if err != nil {
				return nil, err
			}
			out := []mirror.Op{mirror.Put(models.EntityOrderHistory, hrow)}
			for _, o := range orders {
				out = append(out, mirror.Delete(models.EntityOrders, o.ID, o.Version))
			}
			out = append(out, mirror.Put(models.EntityTables, trow))
			return out, nil
		})
		if err != nil {
			d.rec.FailWrite(corrID, "close payment failed: "+err.Error())
			return
		}
		d.rec.ConfirmWrite(corrID, acks)
		if d.sounds != nil {
			d.sounds.PaymentComplete()
		}
	}()
	return nil
}

// CreateMenuItem menambahkan item menu aktif baru.
func (d *Dispatcher) CreateMenuItem(name string, price float64, category string, description, imageURL *string) (models.MenuItem, error) {
	if name == "" {
		return models.MenuItem{}, ErrInvalidName
	}
	if price < 0 {
		return models.MenuItem{}, ErrInvalidPrice
	}

	corrID := uuid.NewString()
	item := models.MenuItem{
		ID:          uuid.NewString(),
		Name:        name,
		Price:       price,
		Category:    category,
		Description: description,
		ImageURL:    imageURL,
		IsActive:    true,
		OriginID:    corrID,
	}

	d.rec.EnqueueMutation(Mutation{
		ID:       corrID,
		Intent:   "create menu item",
		Patch:    mirror.Patch{Ops: []mirror.Op{mirror.Put(models.EntityMenuItems, item)}},
		Rollback: mirror.Patch{Ops: []mirror.Op{mirror.Delete(models.EntityMenuItems, item.ID, 0)}},
		Keys:     []EntityKey{{models.EntityMenuItems, item.ID}},
	})

	go d.runWrite(corrID, "create menu item", func(ctx context.Context) ([]mirror.Op, error) {
		row, err := d.remote.InsertMenuItem(ctx, item)
		if err != nil {
			return nil, err
		}
		return []mirror.Op{mirror.Put(models.EntityMenuItems, row)}, nil
	})
	return item, nil
}

// UpdateMenuItem mengubah nama/harga/kategori item. Order yang sudah ada
// tidak tersentuh: unit_price mereka sudah dibekukan.
func (d *Dispatcher) UpdateMenuItem(itemID string, name string, price float64, category string, description, imageURL *string) error {
	cur, ok := d.store.MenuItem(itemID)
	if !ok {
		return ErrMenuItemNotFound
	}
	if name == "" {
		return ErrInvalidName
	}
	if price < 0 {
		return ErrInvalidPrice
	}

	corrID := uuid.NewString()
	updated := cur
	updated.Name = name
	updated.Price = price
	updated.Category = category
	updated.Description = description
	updated.ImageURL = imageURL
	updated.OriginID = corrID

	d.rec.EnqueueMutation(Mutation{
		ID:       corrID,
		Intent:   "update menu item",
		Patch:    mirror.Patch{Ops: []mirror.Op{mirror.Put(models.EntityMenuItems, updated)}},
		Rollback: mirror.Patch{Ops: []mirror.Op{mirror.Put(models.EntityMenuItems, cur)}},
		Keys:     []EntityKey{{models.EntityMenuItems, itemID}},
	})

	go d.runWrite(corrID, "update menu item", func(ctx context.Context) ([]mirror.Op, error) {
		row, err := d.remote.UpdateMenuItem(ctx, updated)
		if err != nil {
			return nil, err
		}
		return []mirror.Op{mirror.Put(models.EntityMenuItems, row)}, nil
	})
	return nil
}

// DeactivateMenuItem soft delete: item hilang dari layar order, tetap ada
// untuk referensi historis.
func (d *Dispatcher) DeactivateMenuItem(itemID string) error {
	cur, ok := d.store.MenuItem(itemID)
	if !ok {
		return ErrMenuItemNotFound
	}

	corrID := uuid.NewString()
	updated := cur
	updated.IsActive = false
	updated.OriginID = corrID

	d.rec.EnqueueMutation(Mutation{
		ID:       corrID,
		Intent:   "deactivate menu item",
		Patch:    mirror.Patch{Ops: []mirror.Op{mirror.Put(models.EntityMenuItems, updated)}},
		Rollback: mirror.Patch{Ops: []mirror.Op{mirror.Put(models.EntityMenuItems, cur)}},
		Keys:     []EntityKey{{models.EntityMenuItems, itemID}},
	})

	go d.runWrite(corrID, "deactivate menu item", func(ctx context.Context) ([]mirror.Op, error) {
		if err := d.remote.DeactivateMenuItem(ctx, itemID, corrID); err != nil {
			return nil, err
		}
		return []mirror.Op{mirror.Put(models.EntityMenuItems, updated)}, nil
	})
	return nil
}

// SoftDeleteHistory menyembunyikan satu arsip dari layar riwayat. Row
// tidak pernah dihapus fisik.
func (d *Dispatcher) SoftDeleteHistory(historyID string) error {
	cur, ok := d.store.HistoryEntry(historyID)
	if !ok || cur.DeletedAt != nil {
		return ErrHistoryNotFound
	}

	corrID := uuid.NewString()
	now := time.Now()
	updated := cur
	updated.DeletedAt = &now
	updated.OriginID = corrID

	d.rec.EnqueueMutation(Mutation{
		ID:       corrID,
		Intent:   "delete history",
		Patch:    mirror.Patch{Ops: []mirror.Op{mirror.Put(models.EntityOrderHistory, updated)}},
		Rollback: mirror.Patch{Ops: []mirror.Op{mirror.Put(models.EntityOrderHistory, cur)}},
		Keys:     []EntityKey{{models.EntityOrderHistory, historyID}},
	})

	go d.runWrite(corrID, "delete history", func(ctx context.Context) ([]mirror.Op, error) {
		if err := d.remote.SoftDeleteOrderHistory(ctx, historyID, corrID); err != nil {
			return nil, err
		}
		return []mirror.Op{mirror.Put(models.EntityOrderHistory, updated)}, nil
	})
	return nil
}
