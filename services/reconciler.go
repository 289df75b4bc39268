package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ichikitsu-lab/OrderingSystem/hub"
	"github.com/ichikitsu-lab/OrderingSystem/mirror"
	"github.com/ichikitsu-lab/OrderingSystem/models"
	"github.com/ichikitsu-lab/OrderingSystem/remote"
	"github.com/ichikitsu-lab/OrderingSystem/utils"
)

// Publisher adalah sisi penyiaran ke UI (di produksi: hub websocket).
type Publisher interface {
	Publish(event string, data interface{})
}

// Reconciler adalah satu-satunya penulis ke mirror. Dua arus masuk lewat
// satu queue berurutan: change event dari feed, dan mutation optimistis
// dari dispatcher. Karena semua ditangani satu goroutine, tidak ada lock
// yang dipegang melewati operasi remote.
//
// Aturan merge: event dengan origin_id sama dengan mutation yang masih
// pending adalah echo tulisan sendiri (konfirmasi, adopsi field server).
// Event lain untuk entity yang sama berarti device lain menang: mutation
// lokal dibatalkan, server truth dipakai, UI diberi satu conflict notice.
type Reconciler struct {
	store  *mirror.Store
	remote remote.Store
	pub    Publisher

	queue chan interface{}
	stop  chan struct{}
	done  chan struct{}

	// state di bawah hanya disentuh goroutine loop
	pending      map[string]*pendingMutation
	pendingOrder []string
	byKey        map[EntityKey]string
	resyncGen    int64

	// Selama snapshot generasi berjalan masih diambil, event dan ack
	// ditahan di sini; snapshot yang lebih tua tidak boleh menimpa state
	// yang mereka bawa.
	resyncInFlight bool
	deferred       []interface{}
}

type evMsg struct{ ev models.ChangeEvent }
type mutMsg struct{ m Mutation }
type cancelMsg struct{ id string }
type ackMsg struct {
	id  string
	ops []mirror.Op
}
type nackMsg struct {
	id     string
	notice string
}
type resyncReqMsg struct{}
type resyncRetryMsg struct{ failedGen int64 }
type resyncResMsg struct {
	gen  int64
	snap *resyncSnapshot
	err  error
}

type resyncSnapshot struct {
	tables  []models.Table
	orders  []models.Order
	menu    []models.MenuItem
	history []models.OrderHistory
}

func NewReconciler(store *mirror.Store, rs remote.Store, pub Publisher) *Reconciler {
	return &Reconciler{
		store:   store,
		remote:  rs,
		pub:     pub,
		queue:   make(chan interface{}, 512),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		pending: make(map[string]*pendingMutation),
		byKey:   make(map[EntityKey]string),
	}
}

func (r *Reconciler) Start() {
	go r.loop()
}

func (r *Reconciler) Stop() {
	close(r.stop)
	<-r.done
}

// HandleEvent menerima satu change event dari feed client.
func (r *Reconciler) HandleEvent(ev models.ChangeEvent) {
	r.queue <- evMsg{ev: ev}
}

// EnqueueMutation menerima mutation optimistis dari dispatcher.
func (r *Reconciler) EnqueueMutation(m Mutation) {
	r.queue <- mutMsg{m: m}
}

// CancelMutation membatalkan mutation yang remote write-nya belum sempat
// dikirim (add lalu remove sebelum ack).
func (r *Reconciler) CancelMutation(id string) {
	r.queue <- cancelMsg{id: id}
}

// ConfirmWrite dilaporkan dispatcher setelah remote menerima tulisannya;
// ops berisi row hasil commit server.
func (r *Reconciler) ConfirmWrite(id string, ops []mirror.Op) {
	r.queue <- ackMsg{id: id, ops: ops}
}

// FailWrite dilaporkan dispatcher setelah retry budget habis atau remote
// menolak; mirror dikembalikan ke state terkonfirmasi terakhir.
func (r *Reconciler) FailWrite(id, notice string) {
	r.queue <- nackMsg{id: id, notice: notice}
}

// RequestResync meminta full refresh. Permintaan baru menggantikan yang
// sedang berjalan; hasil generasi lama dibuang.
func (r *Reconciler) RequestResync() {
	r.queue <- resyncReqMsg{}
}

func (r *Reconciler) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.stop:
			return
		case msg := <-r.queue:
			switch m := msg.(type) {
			case evMsg:
				if r.resyncInFlight {
					r.deferred = append(r.deferred, m)
					continue
				}
				r.handleEvent(m.ev)
			case mutMsg:
				r.handleMutation(m.m)
			case cancelMsg:
				r.handleCancel(m.id)
			case ackMsg:
				if r.resyncInFlight {
					r.deferred = append(r.deferred, m)
					continue
				}
				r.handleAck(m)
			case nackMsg:
				r.handleNack(m)
			case resyncReqMsg:
				r.startResync()
			case resyncRetryMsg:
				// Retry hanya bila belum ada permintaan yang lebih baru.
				if m.failedGen == r.resyncGen {
					r.startResync()
				}
			case resyncResMsg:
				r.finishResync(m)
			}
		}
	}
}

func (r *Reconciler) handleMutation(m Mutation) {
	pm := newPending(m)
	r.pending[m.ID] = pm
	r.pendingOrder = append(r.pendingOrder, m.ID)
	for _, k := range m.Keys {
		r.byKey[k] = m.ID
	}
	tables := r.orderTables(m.Patch.Ops)
	r.store.Apply(m.Patch)
	r.publishPatch(m.Patch)
	r.retotal(tables)
	utils.InfoLogger.Debugf("Applied optimistic %s (%s)", m.Intent, m.ID)
}

func (r *Reconciler) handleEvent(ev models.ChangeEvent) {
	op, err := opFromEvent(ev)
	if err != nil {
		utils.ErrorLogger.Printf("Dropping malformed change event (%s %s): %v", ev.Entity, ev.Op, err)
		return
	}

	key := EntityKey{Entity: ev.Entity, ID: op.ID}
	corrID, hasPending := r.byKey[key]
	if hasPending {
		pm := r.pending[corrID]
		if ev.OriginID == corrID {
			// Echo tulisan sendiri: konfirmasi, field server menggantikan
			// nilai optimistis.
			tables := r.orderTables([]mirror.Op{op})
			res := r.store.Apply(mirror.Patch{Ops: []mirror.Op{op}})
			if res.Applied > 0 {
				r.publishPatch(mirror.Patch{Ops: []mirror.Op{op}})
			}
			r.retotal(tables)
			delete(pm.keysLeft, key)
			delete(r.byKey, key)
			if len(pm.keysLeft) == 0 {
				r.discardPending(corrID)
			}
			return
		}

		// Device lain menulis entity yang sama: buang mutation lokal,
		// server menang, UI diberi tahu sekali.
		tables := r.orderTables(append(append([]mirror.Op{}, pm.Rollback.Ops...), op))
		r.store.Apply(pm.Rollback)
		r.publishPatch(pm.Rollback)
		r.discardPending(corrID)
		r.store.Apply(mirror.Patch{Ops: []mirror.Op{op}})
		r.publishPatch(mirror.Patch{Ops: []mirror.Op{op}})
		r.retotal(tables)
		r.pub.Publish(hub.EventConflictNotice, map[string]interface{}{
			"message": conflictMessage(ev.Entity),
			"entity":  ev.Entity,
			"id":      op.ID,
			"intent":  pm.Intent,
		})
		utils.InfoLogger.Printf("Conflict on %s/%s: discarded local %s (%s)", ev.Entity, op.ID, pm.Intent, corrID)
		return
	}

	tables := r.orderTables([]mirror.Op{op})
	res := r.store.Apply(mirror.Patch{Ops: []mirror.Op{op}})
	if res.Stale > 0 {
		utils.InfoLogger.Debugf("Stale event %s/%s v%d dropped", ev.Entity, op.ID, op.Version)
		return
	}
	r.publishPatch(mirror.Patch{Ops: []mirror.Op{op}})
	r.retotal(tables)
}

func (r *Reconciler) handleCancel(id string) {
	pm, ok := r.pending[id]
	if !ok {
		return
	}
	tables := r.orderTables(pm.Rollback.Ops)
	r.store.Apply(pm.Rollback)
	r.publishPatch(pm.Rollback)
	r.retotal(tables)
	r.discardPending(id)
	utils.InfoLogger.Debugf("Cancelled pending %s (%s)", pm.Intent, id)
}

func (r *Reconciler) handleAck(m ackMsg) {
	// ack boleh datang setelah echo sudah mengkonfirmasi; Apply tetap aman
	// karena version gate membuat op lama jadi no-op.
	patch := mirror.Patch{Ops: m.ops}
	tables := r.orderTables(patch.Ops)
	res := r.store.Apply(patch)
	if res.Applied > 0 {
		r.publishPatch(patch)
	}
	r.retotal(tables)
	if _, ok := r.pending[m.id]; ok {
		r.discardPending(m.id)
	}
}

func (r *Reconciler) handleNack(m nackMsg) {
	pm, ok := r.pending[m.id]
	if !ok {
		return
	}
	tables := r.orderTables(pm.Rollback.Ops)
	r.store.Apply(pm.Rollback)
	r.publishPatch(pm.Rollback)
	r.retotal(tables)
	r.discardPending(m.id)
	r.pub.Publish(hub.EventNotice, map[string]interface{}{
		"message": m.notice,
		"intent":  pm.Intent,
	})
	utils.ErrorLogger.Printf("Rolled back %s (%s): %s", pm.Intent, m.id, m.notice)
}

func (r *Reconciler) discardPending(id string) {
	pm, ok := r.pending[id]
	if !ok {
		return
	}
	for _, k := range pm.Keys {
		if r.byKey[k] == id {
			delete(r.byKey, k)
		}
	}
	delete(r.pending, id)
	for i, pid := range r.pendingOrder {
		if pid == id {
			r.pendingOrder = append(r.pendingOrder[:i], r.pendingOrder[i+1:]...)
			break
		}
	}
}

func (r *Reconciler) startResync() {
	r.resyncGen++
	gen := r.resyncGen
	r.resyncInFlight = true
	utils.InfoLogger.Printf("Starting resync generation %d", gen)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		snap, err := r.fetchSnapshot(ctx)
		select {
		case r.queue <- resyncResMsg{gen: gen, snap: snap, err: err}:
		case <-r.stop:
		}
	}()
}

func (r *Reconciler) fetchSnapshot(ctx context.Context) (*resyncSnapshot, error) {
	tables, err := r.remote.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch tables: %w", err)
	}
	orders, err := r.remote.ListOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch orders: %w", err)
	}
	menu, err := r.remote.ListMenuItems(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("fetch menu items: %w", err)
	}
	history, err := r.remote.ListOrderHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch order history: %w", err)
	}
	return &resyncSnapshot{tables: tables, orders: orders, menu: menu, history: history}, nil
}

func (r *Reconciler) finishResync(m resyncResMsg) {
	if m.gen != r.resyncGen {
		// Sudah ada resync yang lebih baru; hasil generasi ini dibuang dan
		// buffer tetap menunggu generasi terbaru.
		utils.InfoLogger.Printf("Discarding superseded resync generation %d (current %d)", m.gen, r.resyncGen)
		return
	}
	if m.err != nil {
		utils.ErrorLogger.Printf("Resync generation %d failed: %v", m.gen, m.err)
		r.pub.Publish(hub.EventNotice, map[string]interface{}{
			"message": "resync failed, retrying",
		})
		r.resyncInFlight = false
		r.drainDeferred()
		gen := m.gen
		time.AfterFunc(2*time.Second, func() {
			// Hanya retry bila belum ada permintaan yang lebih baru.
			r.queue <- resyncRetryMsg{failedGen: gen}
		})
		return
	}

	r.store.ReplaceTables(m.snap.tables)
	r.store.ReplaceOrders(m.snap.orders)
	r.store.ReplaceMenuItems(m.snap.menu)
	r.store.ReplaceHistory(m.snap.history)

	// Mutation yang masih outstanding diterapkan ulang di atas snapshot;
	// dispatcher masih memegang remote write-nya sendiri.
	for _, id := range r.pendingOrder {
		pm := r.pending[id]
		r.store.Apply(pm.Patch)
	}
	r.retotalAll()

	// Event dan ack yang tertahan selama fetch diputar ulang di atas
	// snapshot; version gate mengurus urutannya.
	r.resyncInFlight = false
	r.drainDeferred()

	r.pub.Publish(hub.EventStateSync, map[string]interface{}{
		"tables":  len(m.snap.tables),
		"orders":  len(m.snap.orders),
		"pending": len(r.pendingOrder),
	})
	utils.InfoLogger.Printf("Resync generation %d applied: %d tables, %d orders, %d pending re-applied",
		m.gen, len(m.snap.tables), len(m.snap.orders), len(r.pendingOrder))
}

func (r *Reconciler) drainDeferred() {
	msgs := r.deferred
	r.deferred = nil
	for _, msg := range msgs {
		switch m := msg.(type) {
		case evMsg:
			r.handleEvent(m.ev)
		case ackMsg:
			r.handleAck(m)
		}
	}
}

// orderTables mengumpulkan meja pemilik dari op order di sebuah patch.
// Dipanggil sebelum patch diterapkan karena op delete hanya membawa id.
func (r *Reconciler) orderTables(ops []mirror.Op) map[string]bool {
	var out map[string]bool
	for _, op := range ops {
		if op.Entity != models.EntityOrders {
			continue
		}
		tableID := ""
		if op.Delete {
			if o, ok := r.store.Order(op.ID); ok {
				tableID = o.TableID
			}
		} else if o, ok := op.Row.(models.Order); ok {
			tableID = o.TableID
		}
		if tableID == "" {
			continue
		}
		if out == nil {
			out = make(map[string]bool)
		}
		out[tableID] = true
	}
	return out
}

// retotal menjaga invariant total meja = jumlah line total order hidupnya.
// Server menghitung field yang sama di sisinya; keduanya bertemu di nilai
// yang sama begitu event meja dari server tiba.
func (r *Reconciler) retotal(tableIDs map[string]bool) {
	for id := range tableIDs {
		t, ok := r.store.Table(id)
		if !ok {
			continue
		}
		var sum float64
		for _, o := range r.store.OrdersByTable(id) {
			sum += o.LineTotal()
		}
		if t.TotalAmount == sum {
			continue
		}
		t.TotalAmount = sum
		r.store.Apply(mirror.Patch{Ops: []mirror.Op{mirror.Put(models.EntityTables, t)}})
		r.pub.Publish(hub.EventTableUpdate, t)
	}
}

func (r *Reconciler) retotalAll() {
	ids := make(map[string]bool)
	for _, t := range r.store.Tables() {
		ids[t.ID] = true
	}
	r.retotal(ids)
}

func conflictMessage(entity string) string {
	switch entity {
	case models.EntityTables:
		return "table updated by another device"
	case models.EntityOrders:
		return "order updated by another device"
	case models.EntityMenuItems:
		return "menu item updated by another device"
	case models.EntityOrderHistory:
		return "order history updated by another device"
	}
	return "updated by another device"
}

func (r *Reconciler) publishPatch(p mirror.Patch) {
	for _, op := range p.Ops {
		event, data := eventForOp(op)
		if event == "" {
			continue
		}
		r.pub.Publish(event, data)
	}
}

func eventForOp(op mirror.Op) (string, interface{}) {
	switch op.Entity {
	case models.EntityTables:
		if op.Delete {
			return hub.EventTableDelete, map[string]string{"id": op.ID}
		}
		return hub.EventTableUpdate, op.Row
	case models.EntityOrders:
		if op.Delete {
			return hub.EventOrderDelete, map[string]string{"id": op.ID}
		}
		return hub.EventOrderUpdate, op.Row
	case models.EntityMenuItems:
		return hub.EventMenuUpdate, op.Row
	case models.EntityOrderHistory:
		return hub.EventHistoryUpdate, op.Row
	}
	return "", nil
}

// opFromEvent men-decode payload event menjadi Op mirror yang bertipe.
func opFromEvent(ev models.ChangeEvent) (mirror.Op, error) {
	switch ev.Entity {
	case models.EntityTables:
		var t models.Table
		if err := json.Unmarshal(ev.Row, &t); err != nil {
			return mirror.Op{}, err
		}
		if t.Version == 0 {
			t.Version = ev.Version
		}
		if ev.Op == models.OpDelete {
			return mirror.Delete(ev.Entity, t.ID, t.Version), nil
		}
		return mirror.Put(ev.Entity, t), nil
	case models.EntityOrders:
		var o models.Order
		if err := json.Unmarshal(ev.Row, &o); err != nil {
			return mirror.Op{}, err
		}
		if o.Version == 0 {
			o.Version = ev.Version
		}
		if ev.Op == models.OpDelete {
			return mirror.Delete(ev.Entity, o.ID, o.Version), nil
		}
		return mirror.Put(ev.Entity, o), nil
	case models.EntityMenuItems:
		var m models.MenuItem
		if err := json.Unmarshal(ev.Row, &m); err != nil {
			return mirror.Op{}, err
		}
		if m.Version == 0 {
			m.Version = ev.Version
		}
		if ev.Op == models.OpDelete {
			return mirror.Delete(ev.Entity, m.ID, m.Version), nil
		}
		return mirror.Put(ev.Entity, m), nil
	case models.EntityOrderHistory:
		var h models.OrderHistory
		if err := json.Unmarshal(ev.Row, &h); err != nil {
			return mirror.Op{}, err
		}
		if h.Version == 0 {
			h.Version = ev.Version
		}
		if ev.Op == models.OpDelete {
			return mirror.Delete(ev.Entity, h.ID, h.Version), nil
		}
		return mirror.Put(ev.Entity, h), nil
	}
	return mirror.Op{}, fmt.Errorf("unknown entity %q", ev.Entity)
}
