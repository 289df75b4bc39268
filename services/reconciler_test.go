package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ichikitsu-lab/OrderingSystem/hub"
	"github.com/ichikitsu-lab/OrderingSystem/mirror"
	"github.com/ichikitsu-lab/OrderingSystem/models"
	"github.com/ichikitsu-lab/OrderingSystem/remote"
	"github.com/ichikitsu-lab/OrderingSystem/utils"
)

// spyPub merekam semua event yang disiarkan ke UI.
type spyPub struct {
	mu     sync.Mutex
	events []string
	datas  []interface{}
}

func (p *spyPub) Publish(event string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	p.datas = append(p.datas, data)
}

func (p *spyPub) count(event string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == event {
			n++
		}
	}
	return n
}

func (p *spyPub) lastData(event string) interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i] == event {
			return p.datas[i]
		}
	}
	return nil
}

func mustEvent(t *testing.T, entity, op string, row interface{}, version int64, origin string) models.ChangeEvent {
	t.Helper()
	raw, err := json.Marshal(row)
	assert.NoError(t, err)
	return models.ChangeEvent{Entity: entity, Op: op, Row: raw, Version: version, OriginID: origin}
}

func newReconcilerRig(t *testing.T) (*mirror.Store, *remote.Fake, *spyPub, *Reconciler) {
	t.Helper()
	utils.InitLogger()
	store := mirror.New()
	fake := remote.NewFake()
	pub := &spyPub{}
	rec := NewReconciler(store, fake, pub)
	rec.Start()
	t.Cleanup(rec.Stop)
	return store, fake, pub, rec
}

func TestHandleEventAppliesRow(t *testing.T) {
	store, _, pub, rec := newReconcilerRig(t)

	row := models.Table{ID: "t1", Number: "A1", Status: models.TableAvailable, Version: 3}
	rec.HandleEvent(mustEvent(t, models.EntityTables, models.OpInsert, row, 3, "other-device"))

	assert.Eventually(t, func() bool {
		got, ok := store.Table("t1")
		return ok && got.Version == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, pub.count(hub.EventTableUpdate))
}

func TestStaleEventDropped(t *testing.T) {
	store, _, pub, rec := newReconcilerRig(t)

	rec.HandleEvent(mustEvent(t, models.EntityTables, models.OpUpdate,
		models.Table{ID: "t1", Number: "A1", Status: models.TableOccupied, Version: 5}, 5, ""))
	assert.Eventually(t, func() bool {
		got, ok := store.Table("t1")
		return ok && got.Version == 5
	}, 2*time.Second, 10*time.Millisecond)

	// Event lama yang terlambat tidak boleh memundurkan state
	rec.HandleEvent(mustEvent(t, models.EntityTables, models.OpUpdate,
		models.Table{ID: "t1", Number: "A1", Status: models.TableAvailable, Version: 2}, 2, ""))
	rec.HandleEvent(mustEvent(t, models.EntityTables, models.OpDelete,
		models.Table{ID: "t1", Version: 4}, 4, ""))

	// Marker supaya queue pasti sudah melewati kedua event di atas
	rec.HandleEvent(mustEvent(t, models.EntityTables, models.OpInsert,
		models.Table{ID: "marker", Number: "Z9", Version: 1}, 1, ""))
	assert.Eventually(t, func() bool {
		_, ok := store.Table("marker")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	got, ok := store.Table("t1")
	assert.True(t, ok)
	assert.Equal(t, models.TableOccupied, got.Status)
	assert.Equal(t, int64(5), got.Version)
	assert.Equal(t, 0, pub.count(hub.EventConflictNotice))
}

func TestEchoConfirmsOwnWrite(t *testing.T) {
	store, _, pub, rec := newReconcilerRig(t)

	base := models.Table{ID: "t1", Number: "A1", Status: models.TableAvailable, Version: 2}
	rec.HandleEvent(mustEvent(t, models.EntityTables, models.OpInsert, base, 2, ""))

	optimistic := base
	optimistic.Status = models.TableOccupied
	optimistic.OriginID = "corr-1"
	rec.EnqueueMutation(Mutation{
		ID:       "corr-1",
		Intent:   "open table",
		Patch:    mirror.Patch{Ops: []mirror.Op{mirror.Put(models.EntityTables, optimistic)}},
		Rollback: mirror.Patch{Ops: []mirror.Op{mirror.Put(models.EntityTables, base)}},
		Keys:     []EntityKey{{models.EntityTables, "t1"}},
	})

	// Echo dari server: origin sama, row sudah membawa version commit
	serverRow := optimistic
	serverRow.Version = 7
	rec.HandleEvent(mustEvent(t, models.EntityTables, models.OpUpdate, serverRow, 7, "corr-1"))

	assert.Eventually(t, func() bool {
		got, ok := store.Table("t1")
		return ok && got.Version == 7 && got.Status == models.TableOccupied
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, pub.count(hub.EventConflictNotice))
}

func TestForeignEventOnPendingEntityWins(t *testing.T) {
	store, _, pub, rec := newReconcilerRig(t)

	base := models.Table{ID: "t1", Number: "A1", Status: models.TableAvailable, Version: 2}
	rec.HandleEvent(mustEvent(t, models.EntityTables, models.OpInsert, base, 2, ""))
	assert.Eventually(t, func() bool {
		_, ok := store.Table("t1")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	optimistic := base
	optimistic.Status = models.TableOccupied
	optimistic.OriginID = "corr-local"
	rec.EnqueueMutation(Mutation{
		ID:       "corr-local",
		Intent:   "open table",
		Patch:    mirror.Patch{Ops: []mirror.Op{mirror.Put(models.EntityTables, optimistic)}},
		Rollback: mirror.Patch{Ops: []mirror.Op{mirror.Put(models.EntityTables, base)}},
		Keys:     []EntityKey{{models.EntityTables, "t1"}},
	})

	// Device lain menutup meja duluan: server truth menang
	foreign := base
	foreign.Status = models.TableAvailable
	foreign.Seats = 6
	foreign.Version = 9
	rec.HandleEvent(mustEvent(t, models.EntityTables, models.OpUpdate, foreign, 9, "corr-other"))

	assert.Eventually(t, func() bool {
		got, ok := store.Table("t1")
		return ok && got.Version == 9 && got.Seats == 6
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.TableAvailable, mustTable(t, store, "t1").Status)
	assert.Equal(t, 1, pub.count(hub.EventConflictNotice))

	// Event berikutnya untuk entity yang sama tidak boleh memicu conflict lagi
	next := foreign
	next.Version = 10
	rec.HandleEvent(mustEvent(t, models.EntityTables, models.OpUpdate, next, 10, "corr-other"))
	assert.Eventually(t, func() bool {
		return mustTable(t, store, "t1").Version == 10
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, pub.count(hub.EventConflictNotice))
}

func mustTable(t *testing.T, store *mirror.Store, id string) models.Table {
	t.Helper()
	got, ok := store.Table(id)
	assert.True(t, ok)
	return got
}

func TestFailWriteRollsBackAndNotifies(t *testing.T) {
	store, _, pub, rec := newReconcilerRig(t)

	inserted := models.Table{ID: "t1", Number: "A1", Status: models.TableAvailable, OriginID: "corr-1"}
	rec.EnqueueMutation(Mutation{
		ID:       "corr-1",
		Intent:   "create table",
		Patch:    mirror.Patch{Ops: []mirror.Op{mirror.Put(models.EntityTables, inserted)}},
		Rollback: mirror.Patch{Ops: []mirror.Op{mirror.Delete(models.EntityTables, "t1", 0)}},
		Keys:     []EntityKey{{models.EntityTables, "t1"}},
	})
	assert.Eventually(t, func() bool {
		_, ok := store.Table("t1")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	rec.FailWrite("corr-1", "create table failed: remote rejected")

	assert.Eventually(t, func() bool {
		_, ok := store.Table("t1")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, pub.count(hub.EventNotice))
}

func TestConfirmWriteAdoptsServerRows(t *testing.T) {
	store, _, _, rec := newReconcilerRig(t)

	optimistic := models.Table{ID: "t1", Number: "A1", Status: models.TableAvailable, OriginID: "corr-1"}
	rec.EnqueueMutation(Mutation{
		ID:       "corr-1",
		Intent:   "create table",
		Patch:    mirror.Patch{Ops: []mirror.Op{mirror.Put(models.EntityTables, optimistic)}},
		Rollback: mirror.Patch{Ops: []mirror.Op{mirror.Delete(models.EntityTables, "t1", 0)}},
		Keys:     []EntityKey{{models.EntityTables, "t1"}},
	})

	server := optimistic
	server.Version = 4
	rec.ConfirmWrite("corr-1", []mirror.Op{mirror.Put(models.EntityTables, server)})

	assert.Eventually(t, func() bool {
		got, ok := store.Table("t1")
		return ok && got.Version == 4
	}, 2*time.Second, 10*time.Millisecond)
}

func TestResyncReplacesMirrorAndReappliesPending(t *testing.T) {
	store, fake, pub, rec := newReconcilerRig(t)

	ctx := context.Background()
	seeded, err := fake.InsertTable(ctx, models.Table{ID: "t1", Number: "A1", Status: models.TableAvailable})
	assert.NoError(t, err)
	_, err = fake.InsertMenuItem(ctx, models.MenuItem{ID: "m1", Name: "Matcha Latte", Price: 500, IsActive: true})
	assert.NoError(t, err)

	// Row nyasar dari sesi sebelumnya harus hilang setelah resync
	store.Apply(mirror.Patch{Ops: []mirror.Op{
		mirror.Put(models.EntityTables, models.Table{ID: "ghost", Number: "Z9", Version: 1}),
	}})

	// Mutation yang masih outstanding saat resync
	optimistic := seeded
	optimistic.Status = models.TableOccupied
	optimistic.OriginID = "corr-1"
	rec.EnqueueMutation(Mutation{
		ID:       "corr-1",
		Intent:   "open table",
		Patch:    mirror.Patch{Ops: []mirror.Op{mirror.Put(models.EntityTables, optimistic)}},
		Rollback: mirror.Patch{Ops: []mirror.Op{mirror.Put(models.EntityTables, seeded)}},
		Keys:     []EntityKey{{models.EntityTables, "t1"}},
	})

	rec.RequestResync()

	assert.Eventually(t, func() bool {
		if _, ok := store.Table("ghost"); ok {
			return false
		}
		got, ok := store.Table("t1")
		if !ok || got.Status != models.TableOccupied {
			return false
		}
		_, ok = store.MenuItem("m1")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, pub.count(hub.EventStateSync), 1)
}

func TestResyncFailureRetries(t *testing.T) {
	store, fake, pub, rec := newReconcilerRig(t)

	_, err := fake.InsertTable(context.Background(), models.Table{ID: "t1", Number: "A1", Status: models.TableAvailable})
	assert.NoError(t, err)

	fake.SetOffline(true)
	rec.RequestResync()

	assert.Eventually(t, func() bool {
		return pub.count(hub.EventNotice) >= 1
	}, 2*time.Second, 10*time.Millisecond)
	_, ok := store.Table("t1")
	assert.False(t, ok)

	// Setelah remote pulih, retry otomatis menuntaskan resync
	fake.SetOffline(false)
	assert.Eventually(t, func() bool {
		_, ok := store.Table("t1")
		return ok
	}, 5*time.Second, 50*time.Millisecond)
}

// resyncGate menahan ListTables sampai test melepasnya, supaya ada jendela
// pasti di mana snapshot masih terbang.
type resyncGate struct {
	*remote.Fake
	entered chan struct{}
	release chan struct{}
}

func (g *resyncGate) ListTables(ctx context.Context) ([]models.Table, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return g.Fake.ListTables(ctx)
}

func TestEventDuringResyncSurvivesSnapshot(t *testing.T) {
	utils.InitLogger()
	store := mirror.New()
	gate := &resyncGate{Fake: remote.NewFake(), entered: make(chan struct{}, 1), release: make(chan struct{})}
	_, err := gate.Fake.InsertTable(context.Background(),
		models.Table{ID: "t1", Number: "A1", Status: models.TableAvailable})
	assert.NoError(t, err)

	pub := &spyPub{}
	rec := NewReconciler(store, gate, pub)
	rec.Start()
	t.Cleanup(rec.Stop)

	rec.RequestResync()
	select {
	case <-gate.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot fetch never started")
	}

	// Event yang lebih baru dari isi snapshot tiba saat fetch masih jalan;
	// snapshot yang lebih tua tidak boleh menimpanya.
	newer := models.Table{ID: "t1", Number: "A1", Status: models.TableOccupied, Version: 50}
	rec.HandleEvent(mustEvent(t, models.EntityTables, models.OpUpdate, newer, 50, "corr-other"))

	close(gate.release)

	assert.Eventually(t, func() bool {
		got, ok := store.Table("t1")
		return ok && got.Version == 50 && got.Status == models.TableOccupied
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return pub.count(hub.EventStateSync) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

// staleSnapshotStore memberi hasil kadaluarsa yang tertahan pada fetch
// pertama; fetch berikutnya membaca state fake yang sebenarnya.
type staleSnapshotStore struct {
	*remote.Fake
	mu      sync.Mutex
	calls   int
	first   []models.Table
	entered chan struct{}
	release chan struct{}
}

func (s *staleSnapshotStore) ListTables(ctx context.Context) ([]models.Table, error) {
	s.mu.Lock()
	s.calls++
	firstCall := s.calls == 1
	s.mu.Unlock()
	if firstCall {
		select {
		case s.entered <- struct{}{}:
		default:
		}
		<-s.release
		return s.first, nil
	}
	return s.Fake.ListTables(ctx)
}

func TestStaleResyncGenerationDiscarded(t *testing.T) {
	utils.InitLogger()
	store := mirror.New()
	gate := &staleSnapshotStore{
		Fake:    remote.NewFake(),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	seeded, err := gate.Fake.InsertTable(context.Background(),
		models.Table{ID: "t1", Number: "A1", Status: models.TableAvailable})
	assert.NoError(t, err)
	gate.first = []models.Table{seeded}

	pub := &spyPub{}
	rec := NewReconciler(store, gate, pub)
	rec.Start()
	t.Cleanup(rec.Stop)

	rec.RequestResync()
	select {
	case <-gate.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first snapshot fetch never started")
	}

	// Meja berubah di server, lalu resync kedua diminta sebelum yang
	// pertama selesai. Yang kedua harus menang.
	seeded.Status = models.TableOccupied
	updated, err := gate.Fake.UpdateTable(context.Background(), seeded)
	assert.NoError(t, err)
	rec.RequestResync()

	assert.Eventually(t, func() bool {
		got, ok := store.Table("t1")
		return ok && got.Version == updated.Version && got.Status == models.TableOccupied
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return pub.count(hub.EventStateSync) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Hasil generasi pertama yang terlambat harus dibuang, bukan diterapkan
	close(gate.release)
	assert.Never(t, func() bool {
		got, ok := store.Table("t1")
		return !ok || got.Version != updated.Version || got.Status != models.TableOccupied
	}, 500*time.Millisecond, 20*time.Millisecond)
	assert.Equal(t, 1, pub.count(hub.EventStateSync))
}

func TestConflictNoticeNamesEntity(t *testing.T) {
	store, _, pub, rec := newReconcilerRig(t)

	optimistic := models.Order{ID: "o1", TableID: "t1", MenuItemID: "m1", Quantity: 1, UnitPrice: 500, OriginID: "corr-local"}
	rec.EnqueueMutation(Mutation{
		ID:       "corr-local",
		Intent:   "add order item",
		Patch:    mirror.Patch{Ops: []mirror.Op{mirror.Put(models.EntityOrders, optimistic)}},
		Rollback: mirror.Patch{Ops: []mirror.Op{mirror.Delete(models.EntityOrders, "o1", 0)}},
		Keys:     []EntityKey{{models.EntityOrders, "o1"}},
	})

	foreign := optimistic
	foreign.Quantity = 3
	foreign.OriginID = "corr-other"
	foreign.Version = 8
	rec.HandleEvent(mustEvent(t, models.EntityOrders, models.OpUpdate, foreign, 8, "corr-other"))

	assert.Eventually(t, func() bool {
		return pub.count(hub.EventConflictNotice) == 1
	}, 2*time.Second, 10*time.Millisecond)
	got, ok := store.Order("o1")
	assert.True(t, ok)
	assert.Equal(t, 3, got.Quantity)

	notice, ok := pub.lastData(hub.EventConflictNotice).(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, "order updated by another device", notice["message"])
}

func TestMalformedEventIgnored(t *testing.T) {
	store, _, _, rec := newReconcilerRig(t)

	rec.HandleEvent(models.ChangeEvent{Entity: "unknown_entity", Op: models.OpInsert, Row: json.RawMessage(`{}`)})
	rec.HandleEvent(models.ChangeEvent{Entity: models.EntityTables, Op: models.OpInsert, Row: json.RawMessage(`not json`)})

	rec.HandleEvent(mustEvent(t, models.EntityTables, models.OpInsert,
		models.Table{ID: "t1", Number: "A1", Version: 1}, 1, ""))
	assert.Eventually(t, func() bool {
		_, ok := store.Table("t1")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, store.Tables(), 1)
}
