package world

// Entity is implemented by every persistent class. A saved entity has a
// non-zero key; an entity constructed by Create has key zero until the
// persistence gateway assigns one on flush.
type Entity interface {
	EntityKey() int64
	SetEntityKey(int64)
	EntityClass() string // snake_cased class name, used for cache paths and sync model lookup

	// Initialized reports whether this instance's fields have been
	// populated from storage. A bare instance created only to back an
	// unresolved Reference returns false until the registry hydrates it.
	Initialized() bool
	MarkInitialized()
}

// Base is embedded by every persistent struct; it supplies the identity and
// hydration-state bookkeeping the Entity Registry depends on.
type Base struct {
	ID   int64
	init bool
}

func (b *Base) EntityKey() int64      { return b.ID }
func (b *Base) SetEntityKey(id int64) { b.ID = id }
func (b *Base) Initialized() bool     { return b.init }
func (b *Base) MarkInitialized()      { b.init = true }

// Reference is a lazy pointer from one entity to another by key. It is
// either unresolved (Key set, Target nil) or resolved (Target set to the
// canonical registry instance). A resolved reference always points at the
// canonical instance; nothing outside the registry constructs one directly
// with an initialized Target except via Resolve.
type Reference[T Entity] struct {
	key      int64
	target   T
	resolved bool
}

// NewReference builds an unresolved reference to key. A zero key denotes no
// reference at all (IsZero reports true).
func NewReference[T Entity](key int64) Reference[T] {
	return Reference[T]{key: key}
}

// ResolvedReference wraps an already-canonical instance.
func ResolvedReference[T Entity](target T) Reference[T] {
	return Reference[T]{key: target.EntityKey(), target: target, resolved: true}
}

func (r Reference[T]) Key() int64      { return r.key }
func (r Reference[T]) IsZero() bool    { return r.key == 0 && !r.resolved }
func (r Reference[T]) IsResolved() bool { return r.resolved }

// Target returns the resolved instance and true, or the zero value and
// false if this reference has not been resolved yet.
func (r Reference[T]) Target() (T, bool) {
	return r.target, r.resolved
}

// Resolve attaches a canonical instance to this reference. It is a no-op
// (preserving the existing resolved target) if the reference is already
// resolved to the same key — callers should not resolve a reference whose
// key disagrees with the supplied instance.
func (r Reference[T]) Resolve(target T) Reference[T] {
	if r.resolved {
		return r
	}
	return ResolvedReference(target)
}
