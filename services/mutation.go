package services

import (
	"github.com/ichikitsu-lab/OrderingSystem/mirror"
)

// EntityKey mengidentifikasi satu entity di mirror.
type EntityKey struct {
	Entity string
	ID     string
}

// Mutation adalah satu intent user yang sudah diterapkan optimistis.
// Patch dipasang segera; Rollback adalah pre-image untuk membatalkan bila
// remote menolak atau device lain menang duluan.
type Mutation struct {
	ID       string // correlation id, ikut dikirim sebagai origin_id
	Intent   string // "open_table", "add_order_item", ...
	Patch    mirror.Patch
	Rollback mirror.Patch
	Keys     []EntityKey
}

type pendingMutation struct {
	Mutation
	keysLeft map[EntityKey]bool
}

func newPending(m Mutation) *pendingMutation {
	pm := &pendingMutation{Mutation: m, keysLeft: make(map[EntityKey]bool, len(m.Keys))}
	for _, k := range m.Keys {
		pm.keysLeft[k] = true
	}
	return pm
}
