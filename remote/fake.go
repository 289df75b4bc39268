package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ichikitsu-lab/OrderingSystem/models"
)

// Fake adalah remote store in-memory untuk test: commit counter global
// sebagai version, dan setiap write menghasilkan ChangeEvent di channel
// Events, persis kontrak backend sungguhan tanpa jaringan.
//
// Tulisan "dari device lain" cukup disimulasikan dengan memanggil method
// write biasa dengan OriginID milik device lain.
type Fake struct {
	mu      sync.Mutex
	tables  map[string]models.Table
	orders  map[string]models.Order
	menu    map[string]models.MenuItem
	history map[string]models.OrderHistory

	commit int64
	writes int64
	events chan models.ChangeEvent

	failWrites int   // write berikutnya gagal transient sebanyak N kali
	rejectNext error // write berikutnya ditolak dengan error ini
	offline    bool
}

func NewFake() *Fake {
	return &Fake{
		tables:  make(map[string]models.Table),
		orders:  make(map[string]models.Order),
		menu:    make(map[string]models.MenuItem),
		history: make(map[string]models.OrderHistory),
		events:  make(chan models.ChangeEvent, 256),
	}
}

// Events mengembalikan change feed milik fake.
func (f *Fake) Events() <-chan models.ChangeEvent { return f.events }

// WriteCount mengembalikan jumlah percobaan write yang diterima fake,
// termasuk yang gagal.
func (f *Fake) WriteCount() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// FailWrites membuat N write berikutnya gagal dengan error transient.
func (f *Fake) FailWrites(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWrites = n
}

// RejectNextWrite membuat write berikutnya ditolak sebagai validasi (4xx).
func (f *Fake) RejectNextWrite(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectNext = &RequestError{Status: http.StatusUnprocessableEntity, Message: message}
}

func (f *Fake) SetOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

func (f *Fake) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return &RequestError{Status: http.StatusServiceUnavailable, Message: "offline"}
	}
	return nil
}

// checkWrite harus dipanggil dengan lock sudah dipegang.
func (f *Fake) checkWrite() error {
	f.writes++
	if f.offline {
		return &RequestError{Status: http.StatusServiceUnavailable, Message: "offline"}
	}
	if f.failWrites > 0 {
		f.failWrites--
		return &RequestError{Status: http.StatusBadGateway, Message: "transient failure"}
	}
	if f.rejectNext != nil {
		err := f.rejectNext
		f.rejectNext = nil
		return err
	}
	return nil
}

func (f *Fake) nextVersion() int64 {
	f.commit++
	return f.commit
}

// retotalLocked menghitung ulang total_amount meja dari order hidupnya.
// Field itu milik server: setiap write order memicu commit meja baru plus
// change event tables, seperti backend sungguhan.
func (f *Fake) retotalLocked(tableID, origin string) {
	t, ok := f.tables[tableID]
	if !ok {
		return
	}
	var sum float64
	for _, o := range f.orders {
		if o.TableID == tableID {
			sum += o.LineTotal()
		}
	}
	if t.TotalAmount == sum {
		return
	}
	t.TotalAmount = sum
	t.Version = f.nextVersion()
	t.UpdatedAt = time.Now()
	f.tables[tableID] = t
	f.emit(models.EntityTables, models.OpUpdate, t, t.Version, origin)
}

func (f *Fake) emit(entity, op string, row interface{}, version int64, origin string) {
	raw, err := json.Marshal(row)
	if err != nil {
		return
	}
	f.events <- models.ChangeEvent{
		Entity:   entity,
		Op:       op,
		Row:      raw,
		Version:  version,
		OriginID: origin,
	}
}

func (f *Fake) ListTables(ctx context.Context) ([]models.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, &RequestError{Status: http.StatusServiceUnavailable, Message: "offline"}
	}
	out := make([]models.Table, 0, len(f.tables))
	for _, t := range f.tables {
		out = append(out, t)
	}
	return out, nil
}

func (f *Fake) InsertTable(ctx context.Context, t models.Table) (models.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkWrite(); err != nil {
		return models.Table{}, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if _, exists := f.tables[t.ID]; exists {
		return models.Table{}, &RequestError{Status: http.StatusConflict, Message: "duplicate table id"}
	}
	now := time.Now()
	t.Version = f.nextVersion()
	t.CreatedAt = now
	t.UpdatedAt = now
	f.tables[t.ID] = t
	f.emit(models.EntityTables, models.OpInsert, t, t.Version, t.OriginID)
	return t, nil
}

func (f *Fake) UpdateTable(ctx context.Context, t models.Table) (models.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkWrite(); err != nil {
		return models.Table{}, err
	}
	cur, ok := f.tables[t.ID]
	if !ok {
		return models.Table{}, &RequestError{Status: http.StatusNotFound, Message: "table not found"}
	}
	t.CreatedAt = cur.CreatedAt
	t.Version = f.nextVersion()
	t.UpdatedAt = time.Now()
	f.tables[t.ID] = t
	f.emit(models.EntityTables, models.OpUpdate, t, t.Version, t.OriginID)
	return t, nil
}

func (f *Fake) DeleteTable(ctx context.Context, id, originID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkWrite(); err != nil {
		return err
	}
	t, ok := f.tables[id]
	if !ok {
		return &RequestError{Status: http.StatusNotFound, Message: "table not found"}
	}
	delete(f.tables, id)
	t.Version = f.nextVersion()
	f.emit(models.EntityTables, models.OpDelete, t, t.Version, originID)
	return nil
}

func (f *Fake) ListOrders(ctx context.Context) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, &RequestError{Status: http.StatusServiceUnavailable, Message: "offline"}
	}
	out := make([]models.Order, 0, len(f.orders))
	for _, o := range f.orders {
		out = append(out, o)
	}
	return out, nil
}

func (f *Fake) InsertOrder(ctx context.Context, o models.Order) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkWrite(); err != nil {
		return models.Order{}, err
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if _, exists := f.orders[o.ID]; exists {
		return models.Order{}, &RequestError{Status: http.StatusConflict, Message: "duplicate order id"}
	}
	o.Version = f.nextVersion()
	o.CreatedAt = time.Now()
	f.orders[o.ID] = o
	f.emit(models.EntityOrders, models.OpInsert, o, o.Version, o.OriginID)
	f.retotalLocked(o.TableID, o.OriginID)
	return o, nil
}

func (f *Fake) UpdateOrder(ctx context.Context, o models.Order) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkWrite(); err != nil {
		return models.Order{}, err
	}
	cur, ok := f.orders[o.ID]
	if !ok {
		return models.Order{}, &RequestError{Status: http.StatusNotFound, Message: "order not found"}
	}
	o.CreatedAt = cur.CreatedAt
	o.Version = f.nextVersion()
	f.orders[o.ID] = o
	f.emit(models.EntityOrders, models.OpUpdate, o, o.Version, o.OriginID)
	f.retotalLocked(cur.TableID, o.OriginID)
	if o.TableID != cur.TableID {
		f.retotalLocked(o.TableID, o.OriginID)
	}
	return o, nil
}

func (f *Fake) DeleteOrder(ctx context.Context, id, originID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkWrite(); err != nil {
		return err
	}
	o, ok := f.orders[id]
	if !ok {
		return &RequestError{Status: http.StatusNotFound, Message: "order not found"}
	}
	delete(f.orders, id)
	o.Version = f.nextVersion()
	f.emit(models.EntityOrders, models.OpDelete, o, o.Version, originID)
	f.retotalLocked(o.TableID, originID)
	return nil
}

func (f *Fake) DeleteOrdersByTable(ctx context.Context, tableID, originID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkWrite(); err != nil {
		return err
	}
	for id, o := range f.orders {
		if o.TableID != tableID {
			continue
		}
		delete(f.orders, id)
		o.Version = f.nextVersion()
		f.emit(models.EntityOrders, models.OpDelete, o, o.Version, originID)
	}
	f.retotalLocked(tableID, originID)
	return nil
}

func (f *Fake) ListMenuItems(ctx context.Context, activeOnly bool) ([]models.MenuItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, &RequestError{Status: http.StatusServiceUnavailable, Message: "offline"}
	}
	out := make([]models.MenuItem, 0, len(f.menu))
	for _, m := range f.menu {
		if activeOnly && !m.IsActive {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (f *Fake) InsertMenuItem(ctx context.Context, m models.MenuItem) (models.MenuItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkWrite(); err != nil {
		return models.MenuItem{}, err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now()
	m.Version = f.nextVersion()
	m.CreatedAt = now
	m.UpdatedAt = now
	f.menu[m.ID] = m
	f.emit(models.EntityMenuItems, models.OpInsert, m, m.Version, m.OriginID)
	return m, nil
}

func (f *Fake) UpdateMenuItem(ctx context.Context, m models.MenuItem) (models.MenuItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkWrite(); err != nil {
		return models.MenuItem{}, err
	}
	cur, ok := f.menu[m.ID]
	if !ok {
		return models.MenuItem{}, &RequestError{Status: http.StatusNotFound, Message: "menu item not found"}
	}
	m.CreatedAt = cur.CreatedAt
	m.Version = f.nextVersion()
	m.UpdatedAt = time.Now()
	f.menu[m.ID] = m
	f.emit(models.EntityMenuItems, models.OpUpdate, m, m.Version, m.OriginID)
	return m, nil
}

func (f *Fake) DeactivateMenuItem(ctx context.Context, id, originID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkWrite(); err != nil {
		return err
	}
	m, ok := f.menu[id]
	if !ok {
		return &RequestError{Status: http.StatusNotFound, Message: "menu item not found"}
	}
	m.IsActive = false
	m.OriginID = originID
	m.Version = f.nextVersion()
	m.UpdatedAt = time.Now()
	f.menu[id] = m
	f.emit(models.EntityMenuItems, models.OpUpdate, m, m.Version, originID)
	return nil
}

func (f *Fake) ListOrderHistory(ctx context.Context) ([]models.OrderHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, &RequestError{Status: http.StatusServiceUnavailable, Message: "offline"}
	}
	out := make([]models.OrderHistory, 0, len(f.history))
	for _, h := range f.history {
		if h.DeletedAt != nil {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

func (f *Fake) InsertOrderHistory(ctx context.Context, h models.OrderHistory) (models.OrderHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkWrite(); err != nil {
		return models.OrderHistory{}, err
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	h.Version = f.nextVersion()
	if h.CompletedAt.IsZero() {
		h.CompletedAt = time.Now()
	}
	f.history[h.ID] = h
	f.emit(models.EntityOrderHistory, models.OpInsert, h, h.Version, h.OriginID)
	return h, nil
}

func (f *Fake) SoftDeleteOrderHistory(ctx context.Context, id, originID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkWrite(); err != nil {
		return err
	}
	h, ok := f.history[id]
	if !ok {
		return &RequestError{Status: http.StatusNotFound, Message: "history not found"}
	}
	now := time.Now()
	h.DeletedAt = &now
	h.OriginID = originID
	h.Version = f.nextVersion()
	f.history[id] = h
	f.emit(models.EntityOrderHistory, models.OpUpdate, h, h.Version, originID)
	return nil
}
