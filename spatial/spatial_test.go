package spatial

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tileworld.dev/server/cache"
	"tileworld.dev/server/world"
)

type fakeEntity struct {
	world.Base
	class string
	pos   world.Vector2
}

func (f *fakeEntity) EntityClass() string      { return f.class }
func (f *fakeEntity) Position() world.Vector2  { return f.pos }
func (f *fakeEntity) Footprint() []world.Vector2 { return []world.Vector2{f.pos} }

func TestIsInsideHalfOpen(t *testing.T) {
	sz := New(Coord{Location: 1, ZX: 0, ZY: 0}, 16, 32, nil, nil, "")
	assert.True(t, sz.IsInside(sz.Start()))
	assert.False(t, sz.IsInside(sz.Start().Add(world.Vector2{X: 16, Y: 32})))
}

func TestLoadCoalescesConcurrentCallers(t *testing.T) {
	sz := New(Coord{Location: 1, ZX: 0, ZY: 0}, 16, 32, nil, nil, "")
	var calls int32
	loader := func(ctx context.Context, loc int64, start, end world.Vector2) (map[string][]Spatial, error) {
		atomic.AddInt32(&calls, 1)
		e := &fakeEntity{Base: world.Base{ID: 1}, class: "user", pos: start}
		return map[string][]Spatial{"user": {e}}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, sz.Load(context.Background(), loader))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls, "ten concurrent loaders must hit storage exactly once")
	assert.Equal(t, Loaded, sz.State())
	assert.Len(t, sz.Entities("user"), 1)
}

func TestEnterLeaveIndexesTiles(t *testing.T) {
	sz := New(Coord{Location: 1, ZX: 0, ZY: 0}, 16, 32, nil, nil, "")
	e := &fakeEntity{Base: world.Base{ID: 1}, class: "user", pos: world.Vector2{X: 2, Y: 2}}

	assert.True(t, sz.IsTileFree(e.pos))
	sz.Enter(e)
	assert.False(t, sz.IsTileFree(e.pos))
	sz.Leave(e)
	assert.True(t, sz.IsTileFree(e.pos))
}

func TestDifferenceOfPartitionsExactly(t *testing.T) {
	get := func(c Coord) *Subzone { return New(c, 16, 32, nil, nil, "") }
	oldZone := NewZone(Coord{Location: 1, ZX: 0, ZY: 0}, get)
	newZone := NewZone(Coord{Location: 1, ZX: 1, ZY: 0}, get)

	newSubzones, leftSubzones, remaining := DifferenceOf(newZone, oldZone)

	seen := make(map[Coord]int)
	for _, sz := range newSubzones {
		seen[sz.Coord]++
	}
	for _, sz := range leftSubzones {
		seen[sz.Coord]++
	}
	for _, sz := range remaining {
		seen[sz.Coord]++
	}
	for coord, count := range seen {
		assert.Equal(t, 1, count, "subzone %v must appear in exactly one partition", coord)
	}
	assert.NotEmpty(t, newSubzones)
	assert.NotEmpty(t, leftSubzones)
	assert.NotEmpty(t, remaining)
}

func TestRandomPositionInsideStaggeredSnapsToEvenY(t *testing.T) {
	sz := New(Coord{Location: 1, ZX: 0, ZY: 0}, 16, 32, nil, nil, "")
	for i := 0; i < 200; i++ {
		p := sz.RandomPositionInside(true)
		assert.True(t, sz.IsInside(p))
		assert.Equal(t, 0, p.Y%2, "staggered positions must land on an even row")
	}
}

// TestManagerReclaimsEmptySubzoneAfterDroppedReferences exercises the weak
// reference simulation end to end: a subzone that once held an entity but
// now holds none must be collectible by Cache.Clean once every external
// reference to it is dropped, per the subzone cache's weak-entry contract.
func TestManagerReclaimsEmptySubzoneAfterDroppedReferences(t *testing.T) {
	c := cache.New(time.Minute)
	m := NewManager(c, 16, 32, nil, nil)

	e := &fakeEntity{Base: world.Base{ID: 1}, class: "user", pos: world.Vector2{X: 2, Y: 2}}
	coord := Coord{Location: 1, ZX: 0, ZY: 0}
	key := "subzone/" + coord.String()

	sz := m.Get(coord)
	sz.Enter(e)
	assert.True(t, c.Has(key), "a subzone holding an entity must be retained")

	sz.Leave(e)
	c.Clean()
	assert.False(t, c.Has(key), "an emptied subzone must be reclaimable once its references are dropped")
}
