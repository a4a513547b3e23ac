// Package registry tracks which persons are reachable right now. It maps
// person ids to outbound delivery handles plus a cached copy of their
// pub/table membership, so fanout decisions never need a store round-trip.
package registry

import (
	"sync"

	"github.com/google/uuid"
)

// Handle is the outbound delivery end of one session. Enqueue must never
// block; it reports false when the frame had to be dropped.
type Handle interface {
	Enqueue(payload []byte) bool
}

type entry struct {
	handle  Handle
	pubID   *uuid.UUID
	tableID *uuid.UUID

	// mu serializes membership mutations for this one person (WithPerson).
	// It is never taken while the registry lock is held.
	mu sync.Mutex
}

// Registry is safe for arbitrary concurrent callers: one per session plus
// the command processor's fanout queries.
type Registry struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]*entry
}

func New() *Registry {
	return &Registry{conns: make(map[uuid.UUID]*entry)}
}

// Register makes id reachable through h. Re-registering an id swaps the
// handle in place (a reconnect) and keeps the cached membership, which the
// new session refreshes right after from the person record.
func (r *Registry) Register(id uuid.UUID, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		e.handle = h
		return
	}
	r.conns[id] = &entry{handle: h}
}

// Deregister drops id, but only if it is still bound to h. That makes the
// call idempotent and keeps a slow-dying old session from evicting the
// handle of a fresh reconnect.
func (r *Registry) Deregister(id uuid.UUID, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok && e.handle == h {
		delete(r.conns, id)
	}
}

// Lookup resolves id to its delivery handle, if connected.
func (r *Registry) Lookup(id uuid.UUID) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.handle, true
}

// UpdateMembership replaces the cached pub/table of id. A no-op for
// unregistered ids.
func (r *Registry) UpdateMembership(id uuid.UUID, pubID, tableID *uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		e.pubID = cloneID(pubID)
		e.tableID = cloneID(tableID)
	}
}

// Membership returns the cached pub/table of id.
func (r *Registry) Membership(id uuid.UUID) (pubID, tableID *uuid.UUID, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return nil, nil, false
	}
	return cloneID(e.pubID), cloneID(e.tableID), true
}

// MembersOfPub returns a point-in-time snapshot of the handles of everyone
// whose cached pub is pubID.
func (r *Registry) MembersOfPub(pubID uuid.UUID) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Handle
	for _, e := range r.conns {
		if e.pubID != nil && *e.pubID == pubID {
			out = append(out, e.handle)
		}
	}
	return out
}

// MembersOfTable returns a point-in-time snapshot of the handles of everyone
// whose cached table is tableID.
func (r *Registry) MembersOfTable(tableID uuid.UUID) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Handle
	for _, e := range r.conns {
		if e.tableID != nil && *e.tableID == tableID {
			out = append(out, e.handle)
		}
	}
	return out
}

// WithPerson runs fn while holding the serialization lock for id, so that
// read-then-write membership sequences for the same person cannot
// interleave. For an unregistered id fn just runs; there is no session left
// to race with.
func (r *Registry) WithPerson(id uuid.UUID, fn func()) {
	r.mu.RLock()
	e, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		fn()
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn()
}

// Size reports the number of connected persons.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
