// Package syncmodel implements the sync model registry (per-class
// declarations of which properties sync, to whom, and how) and the
// synchronizer that drains the change tracker every sync tick and turns
// change sets into per-user sync events.
package syncmodel

import (
	"fmt"
	"sync"

	"tileworld.dev/server/world"
)

// ReceiverKind is the tagged-variant discriminant for a sync entry's
// receiver, replacing the dynamic "string naming a field, or a runtime
// class reference" receivers the distilled spec describes.
type ReceiverKind int

const (
	Self ReceiverKind = iota
	Zone
	UserByField
	SpatialPair
	AreaFactory
)

// Receiver describes where a sync entry's payload goes.
type Receiver struct {
	Kind ReceiverKind

	// UserByField: the property naming a user id.
	Field string

	// SpatialPair: explicit location/position property names.
	LocationField string
	PositionField string

	// AreaFactory: builds an Area from the entity; Area.Users lists the
	// receivers. A factory that cannot build from the entity's current
	// state returns an error, which is a Configuration error.
	Area func(e world.Entity) (Area, error)
}

// Key canonicalizes a receiver so two different receivers (a
// struct-valued SpatialPair and an enum Zone, for instance) never share a
// key and are never accidentally merged.
func (r Receiver) Key() string {
	switch r.Kind {
	case Self:
		return "self"
	case Zone:
		return "zone"
	case UserByField:
		return "ref:" + r.Field
	case SpatialPair:
		return "spatial:" + r.LocationField + ":" + r.PositionField
	case AreaFactory:
		return "area"
	default:
		return "unknown"
	}
}

// Area is a user-defined shape (e.g. a hearing-radius disk) instantiated
// per change set; Users lists the receivers it currently contains.
type Area interface {
	Users() []int64
}

// Entry is one {receiver, rename?, map?, default?, lazy?} declaration for a
// single property.
type Entry struct {
	Receiver Receiver
	As       string             // rename in the emitted payload
	Map      func(v any) any    // value transform
	Default  any                // fallback when source is nil
	Lazy     bool               // suppressed unless another non-lazy field or a zone change co-occurs
}

// FieldDecl is the ordered list of sync entries for one property.
type FieldDecl struct {
	Entries []Entry
}

// Getter reads a property's current value off an entity. Declared once at
// startup per class, the way the base spec's property-interception model
// is replaced with typed accessors (see design notes).
type Getter func(e world.Entity, property string) (any, bool)

// ClassModel is one persistent class's full sync declaration.
type ClassModel struct {
	ClassName string // snake_case, used as the emitted model name
	Fields    map[string]FieldDecl
	Get       Getter
}

// properties declared for this class, used for Create/Delete full emits.
func (m *ClassModel) properties() []string {
	out := make([]string, 0, len(m.Fields))
	for p := range m.Fields {
		out = append(out, p)
	}
	return out
}

// Registry is the process-wide class->model mapping, populated at startup.
type Registry struct {
	mu      sync.RWMutex
	classes map[string]*ClassModel
}

func NewRegistry() *Registry {
	return &Registry{classes: make(map[string]*ClassModel)}
}

// Register validates and installs a class's sync model. Duplicate
// receivers on the same property are a startup-fatal configuration error.
func (r *Registry) Register(model *ClassModel) error {
	for property, decl := range model.Fields {
		seen := make(map[string]struct{})
		for _, entry := range decl.Entries {
			key := entry.Receiver.Key()
			if _, dup := seen[key]; dup {
				return fmt.Errorf("sync model %s.%s: duplicate receiver %q", model.ClassName, property, key)
			}
			seen[key] = struct{}{}
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes[model.ClassName] = model
	return nil
}

func (r *Registry) ModelFor(className string) (*ClassModel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.classes[className]
	return m, ok
}
