package mirror

import (
	"sort"
	"sync"

	"github.com/ichikitsu-lab/OrderingSystem/models"
)

// Row adalah satu baris entity yang bisa disimpan di mirror.
type Row interface {
	RowID() string
	RowVersion() int64
}

// Op adalah satu operasi put/delete terhadap satu entity.
type Op struct {
	Entity  string
	Delete  bool
	ID      string // target delete
	Version int64  // source version untuk delete
	Row     Row    // payload untuk put
}

// Patch adalah kumpulan Op yang diterapkan atomik di bawah satu lock,
// supaya UI tidak pernah melihat state antara (mis. meja occupied tanpa
// order saat ClosePayment).
type Patch struct {
	Ops []Op
}

func Put(entity string, row Row) Op {
	return Op{Entity: entity, Row: row, ID: row.RowID(), Version: row.RowVersion()}
}

func Delete(entity, id string, version int64) Op {
	return Op{Entity: entity, Delete: true, ID: id, Version: version}
}

// Result melaporkan berapa Op yang diterapkan dan berapa yang stale.
type Result struct {
	Applied int
	Stale   int
}

// Store is the in-memory, UI-facing cache of remote state. It is a derived,
// disposable copy: the only writers are the reconciler (via Apply/Replace*),
// readers are the controllers and the dispatcher's precondition checks.
//
// A put or delete is applied only when the stored version for that id is
// <= the op's source version. Stale ops are dropped silently, which makes
// the store idempotent under event replay and safe against out-of-order
// delivery.
type Store struct {
	mu      sync.RWMutex
	tables  map[string]models.Table
	orders  map[string]models.Order
	menu    map[string]models.MenuItem
	history map[string]models.OrderHistory
}

func New() *Store {
	return &Store{
		tables:  make(map[string]models.Table),
		orders:  make(map[string]models.Order),
		menu:    make(map[string]models.MenuItem),
		history: make(map[string]models.OrderHistory),
	}
}

// Apply menerapkan seluruh patch di bawah satu lock.
func (s *Store) Apply(p Patch) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res Result
	for _, op := range p.Ops {
		if s.applyOp(op) {
			res.Applied++
		} else {
			res.Stale++
		}
	}
	return res
}

func (s *Store) applyOp(op Op) bool {
	if cur, ok := s.currentVersion(op.Entity, op.ID); ok && cur > op.Version {
		return false // stale, state terbaru sudah ada
	}

	if op.Delete {
		switch op.Entity {
		case models.EntityTables:
			delete(s.tables, op.ID)
		case models.EntityOrders:
			delete(s.orders, op.ID)
		case models.EntityMenuItems:
			delete(s.menu, op.ID)
		case models.EntityOrderHistory:
			delete(s.history, op.ID)
		}
		return true
	}

	switch row := op.Row.(type) {
	case models.Table:
		s.tables[row.ID] = row
	case models.Order:
		s.orders[row.ID] = row
	case models.MenuItem:
		s.menu[row.ID] = row
	case models.OrderHistory:
		s.history[row.ID] = row
	default:
		return false
	}
	return true
}

func (s *Store) currentVersion(entity, id string) (int64, bool) {
	switch entity {
	case models.EntityTables:
		if t, ok := s.tables[id]; ok {
			return t.Version, true
		}
	case models.EntityOrders:
		if o, ok := s.orders[id]; ok {
			return o.Version, true
		}
	case models.EntityMenuItems:
		if m, ok := s.menu[id]; ok {
			return m.Version, true
		}
	case models.EntityOrderHistory:
		if h, ok := s.history[id]; ok {
			return h.Version, true
		}
	}
	return 0, false
}

// ReplaceTables membuang seluruh isi dan menggantinya dengan hasil resync.
// Rows diurutkan dulu berdasarkan version supaya duplikat id dalam satu
// batch selalu dimenangkan versi terbaru.
func (s *Store) ReplaceTables(rows []models.Table) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Version < rows[j].Version })
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = make(map[string]models.Table, len(rows))
	for _, r := range rows {
		s.tables[r.ID] = r
	}
}

func (s *Store) ReplaceOrders(rows []models.Order) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Version < rows[j].Version })
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = make(map[string]models.Order, len(rows))
	for _, r := range rows {
		s.orders[r.ID] = r
	}
}

func (s *Store) ReplaceMenuItems(rows []models.MenuItem) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Version < rows[j].Version })
	s.mu.Lock()
	defer s.mu.Unlock()
	s.menu = make(map[string]models.MenuItem, len(rows))
	for _, r := range rows {
		s.menu[r.ID] = r
	}
}

func (s *Store) ReplaceHistory(rows []models.OrderHistory) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Version < rows[j].Version })
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = make(map[string]models.OrderHistory, len(rows))
	for _, r := range rows {
		s.history[r.ID] = r
	}
}

// Table mengembalikan satu meja berdasarkan id.
func (s *Store) Table(id string) (models.Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[id]
	return t, ok
}

// Tables mengembalikan seluruh meja, diurutkan berdasarkan nomor meja.
func (s *Store) Tables() []models.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Table, 0, len(s.tables))
	for _, t := range s.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func (s *Store) Order(id string) (models.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	return o, ok
}

// OrdersByTable mengembalikan order milik satu meja, urut waktu pembuatan.
func (s *Store) OrdersByTable(tableID string) []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Order
	for _, o := range s.orders {
		if o.TableID == tableID {
			out = append(out, o)
		}
	}
	sortOrders(out)
	return out
}

func (s *Store) Orders() []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	sortOrders(out)
	return out
}

func sortOrders(out []models.Order) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
}

func (s *Store) MenuItem(id string) (models.MenuItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.menu[id]
	return m, ok
}

// MenuItems mengembalikan menu urut kategori lalu nama. Item nonaktif
// (soft-deleted) hanya ikut bila activeOnly=false.
func (s *Store) MenuItems(activeOnly bool) []models.MenuItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.MenuItem, 0, len(s.menu))
	for _, m := range s.menu {
		if activeOnly && !m.IsActive {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category == out[j].Category {
			return out[i].Name < out[j].Name
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// History mengembalikan arsip yang belum di-soft-delete, terbaru dulu.
func (s *Store) History() []models.OrderHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.OrderHistory, 0, len(s.history))
	for _, h := range s.history {
		if h.DeletedAt != nil {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	return out
}

func (s *Store) HistoryEntry(id string) (models.OrderHistory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.history[id]
	return h, ok
}
