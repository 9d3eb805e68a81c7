// Package track implements the change tracker: per-entity dirty-field
// bookkeeping consumed by the synchronizer (every sync tick) and by the
// persistence gateway (every DB flush).
package track

import (
	"sync"

	"tileworld.dev/server/world"
)

// ChangeType classifies an entity transition.
type ChangeType int

const (
	Create ChangeType = iota
	Update
	Delete
)

func (t ChangeType) String() string {
	switch t {
	case Create:
		return "create"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// FieldChange carries a dirty field's value before and after the write that
// made it dirty.
type FieldChange struct {
	Old any
	New any
}

// EntityChanges is one entity's accumulated transition since the set was
// last drained.
type EntityChanges struct {
	Entity world.Entity
	Type   ChangeType
	// Fields holds properties dirtied via Update() — assignment interception.
	Fields map[string]FieldChange
	// Explicit holds property names marked via TrackExplicit(): derived
	// quantities the synchronizer must still emit even though no direct
	// assignment touched them.
	Explicit map[string]struct{}
}

func newEntityChanges(e world.Entity, t ChangeType) *EntityChanges {
	return &EntityChanges{
		Entity:   e,
		Type:     t,
		Fields:   make(map[string]FieldChange),
		Explicit: make(map[string]struct{}),
	}
}

// orderedSet keeps the map lookup Update()/Created() need while preserving
// first-recorded order, since the synchronizer must replay change sets to
// a given user in the order they were recorded within the tick.
type orderedSet struct {
	index map[world.Entity]*EntityChanges
	order []*EntityChanges
}

func newOrderedSet() *orderedSet {
	return &orderedSet{index: make(map[world.Entity]*EntityChanges)}
}

func (s *orderedSet) get(e world.Entity) (*EntityChanges, bool) {
	ec, ok := s.index[e]
	return ec, ok
}

func (s *orderedSet) put(e world.Entity, ec *EntityChanges) {
	if prev, existed := s.index[e]; existed {
		for i, o := range s.order {
			if o == prev {
				s.order[i] = ec
				break
			}
		}
	} else {
		s.order = append(s.order, ec)
	}
	s.index[e] = ec
}

func (s *orderedSet) drain() []*EntityChanges {
	out := s.order
	s.index = make(map[world.Entity]*EntityChanges)
	s.order = nil
	return out
}

// Tracker maintains the sync set (drained by the synchronizer) and the
// flush set (drained by the persistence gateway) independently, since they
// run on different periods and must not interfere with each other.
type Tracker struct {
	mu       sync.Mutex
	syncSet  *orderedSet
	flushSet *orderedSet
}

func New() *Tracker {
	return &Tracker{
		syncSet:  newOrderedSet(),
		flushSet: newOrderedSet(),
	}
}

// Created records a newly constructed entity as pending insert/sync.
func (t *Tracker) Created(e world.Entity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.syncSet.put(e, newEntityChanges(e, Create))
	t.flushSet.put(e, newEntityChanges(e, Create))
}

// Deleted records an entity as pending delete/sync. A prior Create or
// Update entry for the same entity this period collapses into the delete.
func (t *Tracker) Deleted(e world.Entity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.syncSet.put(e, newEntityChanges(e, Delete))
	t.flushSet.put(e, newEntityChanges(e, Delete))
}

// Update records that field changed from oldVal to newVal on e. A
// Create/Delete entry already present for e this period is left as-is: its
// type, not the field delta, governs what the synchronizer/gateway do.
func (t *Tracker) Update(e world.Entity, field string, oldVal, newVal any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, set := range []*orderedSet{t.syncSet, t.flushSet} {
		ec, ok := set.get(e)
		if !ok {
			ec = newEntityChanges(e, Update)
			set.put(e, ec)
		}
		if ec.Type == Update {
			orig := oldVal
			if prev, had := ec.Fields[field]; had {
				orig = prev.Old
			}
			if orig == newVal {
				// The field's net effect this period is a no-op (e.g.
				// A->B->A): nothing for the synchronizer or gateway to do.
				delete(ec.Fields, field)
			} else {
				ec.Fields[field] = FieldChange{Old: orig, New: newVal}
			}
		}
	}
}

// EnterWorld marks e as newly present for sync purposes only: a Create
// change set lands in the sync set so the synchronizer indexes it into
// its subzone and broadcasts it, but nothing lands in the flush set,
// since the row behind e is already persisted. This is the path for an
// entity that becomes live again (e.g. a user signing back in) without
// being a brand-new row.
func (t *Tracker) EnterWorld(e world.Entity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.syncSet.put(e, newEntityChanges(e, Create))
}

// LeaveWorld is EnterWorld's counterpart: a Delete change set reaches the
// sync set only, removing e from its subzone and telling observers it's
// gone, without touching storage.
func (t *Tracker) LeaveWorld(e world.Entity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.syncSet.put(e, newEntityChanges(e, Delete))
}

// TrackExplicit marks field as sync-relevant on e for the next sync drain
// only; it never touches the flush set since no storage column changed.
func (t *Tracker) TrackExplicit(e world.Entity, field string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ec, ok := t.syncSet.get(e)
	if !ok {
		ec = newEntityChanges(e, Update)
		t.syncSet.put(e, ec)
	}
	ec.Explicit[field] = struct{}{}
}

// DrainSync returns and clears everything accumulated for the synchronizer,
// in the order each entity was first touched this period.
func (t *Tracker) DrainSync() []*EntityChanges {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.syncSet.drain()
}

// DrainFlush returns and clears everything accumulated for the persistence
// gateway, in recording order.
func (t *Tracker) DrainFlush() []*EntityChanges {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushSet.drain()
}
