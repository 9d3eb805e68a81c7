package syncmodel

import (
	"context"

	"tileworld.dev/server/common"
	"tileworld.dev/server/spatial"
	"tileworld.dev/server/track"
	"tileworld.dev/server/world"
)

// Event is one synchronized change destined for a single user's "sync"
// event batch.
type Event struct {
	Type    track.ChangeType
	Model   string
	Payload map[string]any
}

// Wire renders e as the (type, model, payload) tuple the transport layer
// puts on the wire, one per entry in a "sync" event's list.
func (e Event) Wire() []any {
	return []any{e.Type.String(), e.Model, e.Payload}
}

// SelfAddressable is implemented by entity classes that can themselves be
// a Self receiver (in practice, the user class): emitting "to the entity"
// means emitting to the socket(s) bound to this user key.
type SelfAddressable interface {
	world.Entity
	SelfUserKey() (int64, bool)
}

// Locatable is implemented by entities the Zone receiver and the
// zone-transition machinery need: a location id, a position, and a
// footprint for subzone membership.
type Locatable interface {
	spatial.Spatial
	Location() int64
}

// Synchronizer is the heart of the engine: every sync tick it drains the
// change tracker, resolves receivers through the sync model registry, and
// produces the per-user event batches the transport boundary emits as a
// single "sync" event per user.
type Synchronizer struct {
	tracker   *track.Tracker
	models    *Registry
	spatial   *spatial.Manager
	userClass string
	log       *common.ContextLogger
}

func NewSynchronizer(tracker *track.Tracker, models *Registry, sm *spatial.Manager, userClass string, log *common.ContextLogger) *Synchronizer {
	return &Synchronizer{tracker: tracker, models: models, spatial: sm, userClass: userClass, log: log}
}

// Tick drains the tracker's sync set and returns the per-user event
// batches for this tick. Ordering is preserved: within one user's slice,
// events appear in the order their originating change sets were recorded.
func (s *Synchronizer) Tick(ctx context.Context) map[int64][]Event {
	final := make(map[int64][]Event)
	for _, ec := range s.tracker.DrainSync() {
		model, ok := s.models.ModelFor(ec.Entity.EntityClass())
		if !ok {
			continue // no sync model for this class: silently ignored
		}
		// Zone membership is updated before the change set's own payloads
		// are resolved, so a Zone receiver on this same tick's change
		// already sees the entity's post-move subzone.
		s.handleZoneTransition(ec, final)
		s.processChange(ec, model, final)
	}
	return final
}

func (s *Synchronizer) properties(ec *track.EntityChanges, model *ClassModel) []string {
	switch ec.Type {
	case track.Create, track.Delete:
		return model.properties()
	default: // Update
		out := make([]string, 0, len(ec.Fields)+len(ec.Explicit))
		for f := range ec.Fields {
			if _, declared := model.Fields[f]; declared {
				out = append(out, f)
			}
		}
		for f := range ec.Explicit {
			if _, declared := model.Fields[f]; declared {
				out = append(out, f)
			}
		}
		return out
	}
}

func (s *Synchronizer) processChange(ec *track.EntityChanges, model *ClassModel, final map[int64][]Event) {
	payloads := make(map[string]map[string]any)
	targets := make(map[string][]int64)
	total := make(map[string]int)
	lazy := make(map[string]int)

	for _, prop := range s.properties(ec, model) {
		decl, ok := model.Fields[prop]
		if !ok {
			continue
		}
		for _, entry := range decl.Entries {
			key := entry.Receiver.Key()
			ts, err := s.resolve(entry.Receiver, ec.Entity, model)
			if err != nil {
				if s.log != nil {
					s.log.WithError(err).WithField("class", model.ClassName).Warn("sync receiver configuration error")
				}
				continue
			}
			if ts == nil {
				continue // not an error: the referenced user may be offline
			}
			targets[key] = ts
			p := payloads[key]
			if p == nil {
				p = map[string]any{"id": ec.Entity.EntityKey()}
				payloads[key] = p
			}
			name := prop
			if entry.As != "" {
				name = entry.As
			}
			p[name] = s.valueFor(ec, prop, entry, model)
			total[key]++
			if entry.Lazy {
				lazy[key]++
			}
		}
	}

	zoneChanged := ec.Type == track.Update && s.zoneCrossed(ec)
	for key, payload := range payloads {
		if ec.Type == track.Update && total[key] == lazy[key] && !zoneChanged {
			continue // step 5: suppress no-op syncs from derived-only lazy fields
		}
		for _, userKey := range targets[key] {
			final[userKey] = append(final[userKey], Event{Type: ec.Type, Model: model.ClassName, Payload: payload})
		}
	}
}

func (s *Synchronizer) resolve(r Receiver, e world.Entity, model *ClassModel) ([]int64, error) {
	switch r.Kind {
	case Self:
		if sa, ok := e.(SelfAddressable); ok {
			if key, ok2 := sa.SelfUserKey(); ok2 {
				return []int64{key}, nil
			}
		}
		return nil, nil
	case Zone:
		loc, pos, ok := s.locatedFields(e)
		if !ok {
			return nil, nil
		}
		return s.usersInZone(s.spatial.ZoneAt(loc, pos)), nil
	case UserByField:
		v, ok := model.Get(e, r.Field)
		if !ok || v == nil {
			return nil, nil
		}
		id, ok := toInt64(v)
		if !ok || id == 0 {
			return nil, nil
		}
		return []int64{id}, nil
	case SpatialPair:
		locV, ok1 := model.Get(e, r.LocationField)
		posV, ok2 := model.Get(e, r.PositionField)
		if !ok1 || !ok2 {
			return nil, nil
		}
		loc, ok3 := toInt64(locV)
		pos, ok4 := posV.(world.Vector2)
		if !ok3 || !ok4 {
			return nil, nil
		}
		return s.usersInZone(s.spatial.ZoneAt(loc, pos)), nil
	case AreaFactory:
		area, err := r.Area(e)
		if err != nil {
			return nil, err
		}
		return area.Users(), nil
	default:
		return nil, nil
	}
}

func (s *Synchronizer) usersInZone(z *spatial.Zone) []int64 {
	entities := z.GetEntities()[s.userClass]
	out := make([]int64, 0, len(entities))
	for id := range entities {
		out = append(out, id)
	}
	return out
}

func (s *Synchronizer) locatedFields(e world.Entity) (int64, world.Vector2, bool) {
	loc, ok := e.(Locatable)
	if !ok {
		return 0, world.Vector2{}, false
	}
	return loc.Location(), loc.Position(), true
}

func (s *Synchronizer) valueFor(ec *track.EntityChanges, prop string, entry Entry, model *ClassModel) any {
	var raw any
	if fc, ok := ec.Fields[prop]; ok {
		if ec.Type == track.Delete {
			raw = fc.Old
		} else {
			raw = fc.New
		}
	} else {
		raw, _ = model.Get(ec.Entity, prop)
	}
	if raw == nil {
		raw = entry.Default
	}
	if entry.Map != nil {
		raw = entry.Map(raw)
	}
	return raw
}

// zoneCrossed reports whether this Update moved the entity's location or
// position across a subzone boundary.
func (s *Synchronizer) zoneCrossed(ec *track.EntityChanges) bool {
	loc, ok := ec.Entity.(Locatable)
	if !ok {
		return false
	}
	oldLoc, newLoc := loc.Location(), loc.Location()
	oldPos, newPos := loc.Position(), loc.Position()
	if fc, ok := ec.Fields["location"]; ok {
		if v, ok2 := fc.Old.(int64); ok2 {
			oldLoc = v
		}
	}
	if fc, ok := ec.Fields["position"]; ok {
		if v, ok2 := fc.Old.(world.Vector2); ok2 {
			oldPos = v
		}
	}
	oldCoord := spatial.ZoneCoordFor(oldLoc, oldPos, s.spatial.SizeX(), s.spatial.SizeY())
	newCoord := spatial.ZoneCoordFor(newLoc, newPos, s.spatial.SizeX(), s.spatial.SizeY())
	return oldCoord != newCoord
}

// handleZoneTransition applies step 7: on Create/Delete the entity
// enters/leaves its subzones outright; on an Update that crossed a subzone
// boundary, observers in the subzones it left see a Delete for it and
// observers in the subzones it joined see a Create; if the entity is
// itself a user, its own visibility window shifted, so it additionally
// receives Deletes for everything in the subzones it lost and Creates for
// everything in the subzones it gained — deletes first, so clients can
// free local state before learning what replaced it.
func (s *Synchronizer) handleZoneTransition(ec *track.EntityChanges, final map[int64][]Event) {
	loc, ok := ec.Entity.(Locatable)
	if !ok {
		return
	}
	model, hasModel := s.models.ModelFor(ec.Entity.EntityClass())

	switch ec.Type {
	case track.Create:
		z := s.spatial.ZoneAt(loc.Location(), loc.Position())
		z.Enter(loc)
	case track.Delete:
		z := s.spatial.ZoneAt(loc.Location(), loc.Position())
		z.Leave(loc)
	case track.Update:
		if !s.zoneCrossed(ec) {
			return
		}
		oldLoc, newLoc := loc.Location(), loc.Location()
		oldPos, newPos := loc.Position(), loc.Position()
		if fc, ok := ec.Fields["location"]; ok {
			if v, ok2 := fc.Old.(int64); ok2 {
				oldLoc = v
			}
		}
		if fc, ok := ec.Fields["position"]; ok {
			if v, ok2 := fc.Old.(world.Vector2); ok2 {
				oldPos = v
			}
		}
		oldSub := s.spatial.Get(spatial.ZoneCoordFor(oldLoc, oldPos, s.spatial.SizeX(), s.spatial.SizeY()))
		newSub := s.spatial.Get(spatial.ZoneCoordFor(newLoc, newPos, s.spatial.SizeX(), s.spatial.SizeY()))
		oldSub.Leave(loc)
		newSub.Enter(loc)

		oldZone := spatial.NewZone(oldSub.Coord, s.spatial.Get)
		newZone := spatial.NewZone(newSub.Coord, s.spatial.Get)
		newSubzones, leftSubzones, _ := spatial.DifferenceOf(newZone, oldZone)

		if hasModel {
			// Observer side: whoever's own Zone window loses the mover's
			// subzone sees a Delete; whoever's window gains it sees a Create.
			// Runs over the full 9-subzone window difference so an observer
			// need not stand in the mover's exact old/new subzone.
			for _, sz := range leftSubzones {
				for _, u := range sz.Entities(s.userClass) {
					final[u.EntityKey()] = append(final[u.EntityKey()], Event{Type: track.Delete, Model: model.ClassName, Payload: map[string]any{"id": ec.Entity.EntityKey()}})
				}
			}
			for _, sz := range newSubzones {
				for _, u := range sz.Entities(s.userClass) {
					final[u.EntityKey()] = append(final[u.EntityKey()], Event{Type: track.Create, Model: model.ClassName, Payload: map[string]any{"id": ec.Entity.EntityKey()}})
				}
			}
		}

		if sa, isUser := ec.Entity.(SelfAddressable); isUser {
			if selfKey, ok := sa.SelfUserKey(); ok {
				for _, sz := range leftSubzones {
					for class, ents := range sz.AllEntities() {
						cm, ok := s.models.ModelFor(class)
						if !ok {
							continue
						}
						for _, e := range ents {
							final[selfKey] = append(final[selfKey], Event{Type: track.Delete, Model: cm.ClassName, Payload: map[string]any{"id": e.EntityKey()}})
						}
					}
				}
				for _, sz := range newSubzones {
					for class, ents := range sz.AllEntities() {
						cm, ok := s.models.ModelFor(class)
						if !ok {
							continue
						}
						for _, e := range ents {
							final[selfKey] = append(final[selfKey], Event{Type: track.Create, Model: cm.ClassName, Payload: map[string]any{"id": e.EntityKey()}})
						}
					}
				}
			}
		}
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	default:
		return 0, false
	}
}
