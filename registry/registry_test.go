package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tileworld.dev/server/cache"
	"tileworld.dev/server/track"
	"tileworld.dev/server/world"
)

type widget struct {
	world.Base
	Name     string
	refField world.Reference[*widget]
}

func (w *widget) EntityClass() string { return "widget" }
func (w *widget) TableName() string   { return "widgets" }
func (w *widget) InsertValues() map[string]any {
	return map[string]any{"name": w.Name}
}
func (w *widget) UpdateValues(dirty map[string]track.FieldChange) map[string]any {
	out := map[string]any{}
	if fc, ok := dirty["name"]; ok {
		out["name"] = fc.New
	}
	return out
}

func newStore(t *testing.T, load Loader[*widget]) *Store[*widget] {
	t.Helper()
	return New(Config[*widget]{
		Class:   "widget",
		Cache:   cache.New(time.Minute),
		Gateway: nil,
		Tracker: track.New(),
		Load:    load,
		Hydrate: func(existing, loaded *widget) {
			existing.Name = loaded.Name
			if !existing.refField.IsResolved() && loaded.refField.IsResolved() {
				existing.refField = loaded.refField
			}
		},
		NewBare: func(key int64) *widget {
			return &widget{Base: world.Base{ID: key}}
		},
	})
}

func TestGetHydratesInPlace(t *testing.T) {
	calls := 0
	s := newStore(t, func(ctx context.Context, key int64) (*widget, error) {
		calls++
		w := &widget{Base: world.Base{ID: key}, Name: "loaded"}
		w.MarkInitialized()
		return w, nil
	})

	ref := s.Reference(7)
	assert.False(t, ref.IsResolved())

	bare, _ := s.GetIfCached(7)
	require.NotNil(t, bare)

	got, err := s.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "loaded", got.Name)
	assert.Same(t, bare, got, "hydration must fill the existing instance, not replace it")
	assert.Equal(t, 1, calls)

	again, err := s.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second Get must not hit the loader again")
	assert.Same(t, got, again)
}

func TestCreateMarksTrackerAndInitialized(t *testing.T) {
	s := newStore(t, nil)
	w := s.Create(func(w *widget) { w.Name = "new" })
	assert.True(t, w.Initialized())
	assert.Equal(t, int64(0), w.EntityKey())
	changes := s.tracker.DrainSync()
	require.Len(t, changes, 1)
	assert.Equal(t, track.Create, changes[0].Type)
}

type other struct {
	world.Base
}

func (o *other) EntityClass() string                                         { return "other" }
func (o *other) TableName() string                                           { return "others" }
func (o *other) InsertValues() map[string]any                                { return nil }
func (o *other) UpdateValues(dirty map[string]track.FieldChange) map[string]any { return nil }

func TestTryFlushIgnoresForeignType(t *testing.T) {
	s := newStore(t, nil)
	handled, err := s.TryFlush(context.Background(), &track.EntityChanges{
		Entity: &other{},
		Type:   track.Update,
	})
	require.NoError(t, err)
	assert.False(t, handled)
}
