package syncmodel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tileworld.dev/server/cache"
	"tileworld.dev/server/spatial"
	"tileworld.dev/server/track"
	"tileworld.dev/server/world"
)

type fakeUser struct {
	world.Base
	loc  int64
	pos  world.Vector2
	name string
}

func (u *fakeUser) EntityClass() string          { return "user" }
func (u *fakeUser) Location() int64              { return u.loc }
func (u *fakeUser) Position() world.Vector2      { return u.pos }
func (u *fakeUser) Footprint() []world.Vector2   { return []world.Vector2{u.pos} }
func (u *fakeUser) SelfUserKey() (int64, bool)   { return u.EntityKey(), true }

type fakeItem struct {
	world.Base
	loc   int64
	pos   world.Vector2
	label string
}

func (i *fakeItem) EntityClass() string        { return "item" }
func (i *fakeItem) Location() int64            { return i.loc }
func (i *fakeItem) Position() world.Vector2    { return i.pos }
func (i *fakeItem) Footprint() []world.Vector2 { return []world.Vector2{i.pos} }

func noopLoader(ctx context.Context, loc int64, start, end world.Vector2) (map[string][]spatial.Spatial, error) {
	return map[string][]spatial.Spatial{}, nil
}

func newTestHarness(t *testing.T) (*track.Tracker, *Registry, *spatial.Manager, *Synchronizer) {
	t.Helper()
	tracker := track.New()
	models := NewRegistry()

	require.NoError(t, models.Register(&ClassModel{
		ClassName: "user",
		Get: func(e world.Entity, prop string) (any, bool) {
			u := e.(*fakeUser)
			switch prop {
			case "name":
				return u.name, true
			case "position":
				return u.pos, true
			}
			return nil, false
		},
		Fields: map[string]FieldDecl{
			"name": {Entries: []Entry{{Receiver: Receiver{Kind: Self}}}},
			"derived": {Entries: []Entry{{Receiver: Receiver{Kind: Self}, Lazy: true}}},
		},
	}))
	require.NoError(t, models.Register(&ClassModel{
		ClassName: "item",
		Get: func(e world.Entity, prop string) (any, bool) {
			it := e.(*fakeItem)
			if prop == "label" {
				return it.label, true
			}
			return nil, false
		},
		Fields: map[string]FieldDecl{
			"label": {Entries: []Entry{{Receiver: Receiver{Kind: Zone}}}},
		},
	}))

	sm := spatial.NewManager(cache.New(time.Minute), 16, 32, noopLoader, nil)
	sync := NewSynchronizer(tracker, models, sm, "user", nil)
	return tracker, models, sm, sync
}

func TestCreateEmitsSelfAndZoneReceivers(t *testing.T) {
	tracker, _, sm, sync := newTestHarness(t)

	observer := &fakeUser{Base: world.Base{ID: 1}, pos: world.Vector2{X: 1, Y: 0}}
	sm.ZoneAt(0, observer.pos).Enter(observer)

	u := &fakeUser{Base: world.Base{ID: 2}, pos: world.Vector2{X: 2, Y: 0}, name: "Astra"}
	tracker.Created(u)

	item := &fakeItem{Base: world.Base{ID: 3}, pos: world.Vector2{X: 3, Y: 0}, label: "torch"}
	tracker.Created(item)

	events := sync.Tick(context.Background())

	require.Contains(t, events, int64(2))
	selfEvents := events[2]
	var sawSelfCreate bool
	for _, e := range selfEvents {
		if e.Type == track.Create && e.Model == "user" && e.Payload["name"] == "Astra" {
			sawSelfCreate = true
		}
	}
	assert.True(t, sawSelfCreate, "the newly created user must receive its own Create")

	require.Contains(t, events, int64(1))
	observerEvents := events[1]
	require.Len(t, observerEvents, 1)
	assert.Equal(t, "item", observerEvents[0].Model)
	assert.Equal(t, "torch", observerEvents[0].Payload["label"])
}

func TestLazyOnlyUpdateIsSuppressed(t *testing.T) {
	tracker, _, _, sync := newTestHarness(t)

	u := &fakeUser{Base: world.Base{ID: 1}, name: "Astra"}
	u.MarkInitialized()
	tracker.Update(u, "derived", 1, 2)

	events := sync.Tick(context.Background())
	assert.Empty(t, events[1], "a lazy-only field update with no co-occurring change must not sync")
}

func TestNonLazyUpdateStillEmits(t *testing.T) {
	tracker, _, _, sync := newTestHarness(t)

	u := &fakeUser{Base: world.Base{ID: 1}, name: "Astra"}
	u.MarkInitialized()
	tracker.Update(u, "name", "Astra", "Nyx")
	u.name = "Nyx"

	events := sync.Tick(context.Background())
	require.Len(t, events[1], 1)
	assert.Equal(t, "Nyx", events[1][0].Payload["name"])
}

func TestZoneCrossingEmitsTransitionEventsToMovingUser(t *testing.T) {
	tracker, _, sm, sync := newTestHarness(t)

	stationary := &fakeItem{Base: world.Base{ID: 10}, pos: world.Vector2{X: 35, Y: 0}}
	sm.Get(spatial.ZoneCoordFor(0, stationary.pos, 16, 32)).Enter(stationary)

	u := &fakeUser{Base: world.Base{ID: 1}, pos: world.Vector2{X: 1, Y: 0}}
	u.MarkInitialized()
	sm.ZoneAt(0, u.pos).GetSubzones() // force lazy construction of starting subzones
	oldPos := u.pos
	u.pos = world.Vector2{X: 20, Y: 0}
	tracker.Update(u, "position", oldPos, u.pos)

	events := sync.Tick(context.Background())
	require.NotEmpty(t, events[1])

	sawCreate := false
	for _, e := range events[1] {
		if e.Type == track.Create && e.Model == "item" && e.Payload["id"] == int64(10) {
			sawCreate = true
		}
	}
	assert.True(t, sawCreate, "crossing into a subzone must surface its existing entities as Creates")
}
