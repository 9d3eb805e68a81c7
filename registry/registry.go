package registry

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"tileworld.dev/server/cache"
	"tileworld.dev/server/db"
	"tileworld.dev/server/track"
	"tileworld.dev/server/world"
)

// Persistable is implemented by every concrete entity type registered with
// a Store. Because the persistence gateway is oblivious to game semantics
// (it only executes column→value maps), the mapping from an entity's
// fields to storage columns lives on the entity type itself.
type Persistable interface {
	world.Entity
	TableName() string
	// InsertValues returns every persisted column for a brand-new row.
	InsertValues() map[string]any
	// UpdateValues projects a dirty-field set (as recorded by the change
	// tracker) onto the subset of storage columns that changed.
	UpdateValues(dirty map[string]track.FieldChange) map[string]any
}

// Loader fetches the row for key and builds a populated T. The loader
// need not call MarkInitialized; Store.Get marks the canonical instance
// after hydrating it.
type Loader[T Persistable] func(ctx context.Context, key int64) (T, error)

// Hydrate copies the fields of loaded into existing, in place, preserving
// any already-resolved references existing holds that loaded only carries
// as bare foreign keys. This is the critical invariant named in the spec:
// a cached-but-not-yet-initialized instance is filled in, never replaced,
// so callers already holding a reference to it see the update.
type Hydrate[T Persistable] func(existing, loaded T)

// NewBare constructs a zero-value T with only its key set, Initialized()
// false, used to back an unresolved Reference or as the hydration target.
type NewBare[T Persistable] func(key int64) T

// Store is the entity registry for one persistent class.
type Store[T Persistable] struct {
	mu      sync.Mutex
	class   string
	cache   *cache.Cache
	gateway *db.Gateway
	tracker *track.Tracker

	load    Loader[T]
	hydrate Hydrate[T]
	newBare NewBare[T]
}

// Config bundles the collaborators a Store needs.
type Config[T Persistable] struct {
	Class   string
	Cache   *cache.Cache
	Gateway *db.Gateway
	Tracker *track.Tracker
	Load    Loader[T]
	Hydrate Hydrate[T]
	NewBare NewBare[T]
}

func New[T Persistable](cfg Config[T]) *Store[T] {
	return &Store[T]{
		class:   cfg.Class,
		cache:   cfg.Cache,
		gateway: cfg.Gateway,
		tracker: cfg.Tracker,
		load:    cfg.Load,
		hydrate: cfg.Hydrate,
		newBare: cfg.NewBare,
	}
}

func (s *Store[T]) path(key int64) string {
	return s.class + "/" + strconv.FormatInt(key, 10)
}

// GetIfCached returns the cached instance without touching storage.
func (s *Store[T]) GetIfCached(key int64) (T, bool) {
	var zero T
	v := s.cache.Get(s.path(key), nil)
	if v == nil {
		return zero, false
	}
	return v.(T), true
}

// getOrCreateBare returns the canonical (possibly uninitialized) instance
// for key, constructing and weakly caching one if absent. This is also how
// an unresolved Reference's future target gets its canonical slot.
func (s *Store[T]) getOrCreateBare(key int64) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.path(key)
	if v := s.cache.Get(p, nil); v != nil {
		return v.(T)
	}
	bare := s.newBare(key)
	s.cache.Set(p, bare, true)
	s.cache.Retain(p)
	return bare
}

// Get returns the cached entity if initialized; otherwise loads it from
// storage and hydrates the canonical instance in place.
func (s *Store[T]) Get(ctx context.Context, key int64) (T, error) {
	var zero T
	if key == 0 {
		return zero, fmt.Errorf("registry: %s: zero key", s.class)
	}
	existing := s.getOrCreateBare(key)
	if existing.Initialized() {
		return existing, nil
	}
	loaded, err := s.load(ctx, key)
	if err != nil {
		return zero, err
	}
	s.hydrate(existing, loaded)
	existing.MarkInitialized()
	return existing, nil
}

// GetOrFail is Get, with the not-found case surfaced distinctly (the
// loader is expected to return a sentinel/wrapped not-found error; this
// method exists so call sites document intent, not to change behavior).
func (s *Store[T]) GetOrFail(ctx context.Context, key int64) (T, error) {
	return s.Get(ctx, key)
}

// Reference returns an unresolved-or-resolved Reference to key without
// forcing a load: if the canonical instance already happens to be
// initialized, the reference comes back resolved for free.
func (s *Store[T]) Reference(key int64) world.Reference[T] {
	if key == 0 {
		var zero world.Reference[T]
		return zero
	}
	existing := s.getOrCreateBare(key)
	if existing.Initialized() {
		return world.ResolvedReference(existing)
	}
	return world.NewReference[T](key)
}

// Create constructs a new, uninitialized-key entity, applies init to set
// its fields, marks it pending insert, and registers it with the change
// tracker as a Create.
func (s *Store[T]) Create(init func(T)) T {
	e := s.newBare(0)
	if init != nil {
		init(e)
	}
	e.MarkInitialized()
	s.tracker.Created(e)
	return e
}

// Remove marks e pending delete and immediately uncaches it — a removed
// entity must not be handed back out by a concurrent Get.
func (s *Store[T]) Remove(e T) {
	s.tracker.Deleted(e)
	if e.EntityKey() != 0 {
		p := s.path(e.EntityKey())
		s.cache.Release(p)
		s.cache.Delete(p)
	}
}

// TryFlush applies one change-tracker entry to storage if it belongs to
// this class, reporting whether it did. Inserts get their assigned key
// adopted and are cached strongly under it; updates apply exactly the
// dirty columns; deletes issue the DELETE (Remove has already uncached
// the entity). Called from a Dispatcher
// that fans a single drained flush set out across every registered class.
func (s *Store[T]) TryFlush(ctx context.Context, ec *track.EntityChanges) (bool, error) {
	entity, ok := ec.Entity.(T)
	if !ok {
		return false, nil
	}
	switch ec.Type {
	case track.Create:
		id, err := s.gateway.Insert(ctx, entity.TableName(), entity.InsertValues())
		if err != nil {
			return true, err
		}
		entity.SetEntityKey(id)
		s.cache.Set(s.path(id), entity, false)
	case track.Update:
		if err := s.gateway.Update(ctx, entity.TableName(), entity.EntityKey(), entity.UpdateValues(ec.Fields)); err != nil {
			return true, err
		}
	case track.Delete:
		if err := s.gateway.Delete(ctx, entity.TableName(), entity.EntityKey()); err != nil {
			return true, err
		}
	}
	return true, nil
}
