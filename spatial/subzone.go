// Package spatial implements the spatial partitioning engine: subzones
// (fixed tile rectangles, the unit of loading) and zones (3x3 windows of
// subzones, the unit of visibility).
package spatial

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"golang.org/x/sync/singleflight"

	"tileworld.dev/server/cache"
	"tileworld.dev/server/common"
	"tileworld.dev/server/world"
)

// Coord identifies a subzone: a location (map/instance id) plus its
// position in the subzone grid (not raw tile coordinates).
type Coord struct {
	Location int64
	ZX, ZY   int
}

func (c Coord) String() string {
	return fmt.Sprintf("%d/%dx%d", c.Location, c.ZX, c.ZY)
}

// LoadState is the subzone's lifecycle state.
type LoadState int

const (
	Unloaded LoadState = iota
	Loading
	Loaded
)

// Spatial is implemented by entities the spatial engine indexes. Footprint
// covers every tile cell the entity occupies; for ordinary entities this is
// a single-element slice holding Position.
type Spatial interface {
	world.Entity
	Position() world.Vector2
	Footprint() []world.Vector2
}

// Loader fetches every entity, grouped by class, whose footprint
// intersects the half-open rectangle [start, end) at the given location.
type Loader func(ctx context.Context, loc int64, start, end world.Vector2) (map[string][]Spatial, error)

// Subzone owns every entity whose position (or any footprint cell) falls
// in its fixed tile rectangle. Loading is idempotent and serialized:
// concurrent callers coalesce into exactly one load.
type Subzone struct {
	Coord      Coord
	start, end world.Vector2

	mu       sync.RWMutex
	state    LoadState
	entities map[string]map[int64]Spatial
	tiles    map[world.Vector2]map[int64]Spatial

	group singleflight.Group
	log   *common.ContextLogger

	weak     *cache.Cache // the Manager's cache holding this subzone weakly, if any
	cacheKey string
}

// New constructs an unloaded subzone. sizeX/sizeY are the compile-time tile
// dimensions of one subzone. weak/cacheKey, if weak is non-nil, let the
// subzone retain itself in the identity cache while it holds any entities
// and release itself once it empties out, so an idle subzone becomes
// reclaimable without anything needing to track it explicitly.
func New(coord Coord, sizeX, sizeY int, log *common.ContextLogger, weak *cache.Cache, cacheKey string) *Subzone {
	start := world.Vector2{X: coord.ZX * sizeX, Y: coord.ZY * sizeY}
	end := start.Add(world.Vector2{X: sizeX, Y: sizeY})
	return &Subzone{
		Coord:    coord,
		start:    start,
		end:      end,
		entities: make(map[string]map[int64]Spatial),
		tiles:    make(map[world.Vector2]map[int64]Spatial),
		log:      log,
		weak:     weak,
		cacheKey: cacheKey,
	}
}

// countLocked returns the total number of entities held, across all
// classes. Must be called with s.mu held.
func (s *Subzone) countLocked() int {
	n := 0
	for _, m := range s.entities {
		n += len(m)
	}
	return n
}

// touchOccupancyLocked retains or releases the subzone's weak cache entry
// when its occupancy crosses the empty/non-empty boundary. Callers compute
// before/after under s.mu and call this after unlocking, since cache
// operations don't need s.mu held.
func (s *Subzone) touchOccupancyLocked(before, after int) {
	if s.weak == nil {
		return
	}
	if before == 0 && after > 0 {
		s.weak.Retain(s.cacheKey)
	} else if before > 0 && after == 0 {
		s.weak.Release(s.cacheKey)
	}
}

func (s *Subzone) Start() world.Vector2 { return s.start }
func (s *Subzone) End() world.Vector2   { return s.end }

func (s *Subzone) State() LoadState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsInside reports whether p falls in this subzone's half-open rectangle:
// true at the start corner, false at start+size.
func (s *Subzone) IsInside(p world.Vector2) bool {
	return p.X >= s.start.X && p.X < s.end.X && p.Y >= s.start.Y && p.Y < s.end.Y
}

// Load fetches this subzone's contents exactly once even under concurrent
// callers: singleflight collapses every simultaneous Load into one
// invocation of loader, and every caller observes the same result.
func (s *Subzone) Load(ctx context.Context, loader Loader) error {
	if s.State() == Loaded {
		return nil
	}
	_, err, _ := s.group.Do(s.Coord.String(), func() (interface{}, error) {
		s.mu.Lock()
		if s.state == Loaded {
			s.mu.Unlock()
			return nil, nil
		}
		s.state = Loading
		s.mu.Unlock()

		byClass, err := loader(ctx, s.Coord.Location, s.start, s.end)

		s.mu.Lock()
		before := s.countLocked()
		if err != nil {
			s.state = Unloaded
			s.mu.Unlock()
			if s.log != nil {
				s.log.WithError(err).WithField("subzone", s.Coord.String()).Error("subzone load failed")
			}
			return nil, err
		}
		for class, ents := range byClass {
			m := s.entities[class]
			if m == nil {
				m = make(map[int64]Spatial)
				s.entities[class] = m
			}
			for _, e := range ents {
				m[e.EntityKey()] = e
				s.indexTilesLocked(e)
			}
		}
		s.state = Loaded
		after := s.countLocked()
		s.mu.Unlock()
		s.touchOccupancyLocked(before, after)
		return nil, nil
	})
	return err
}

func (s *Subzone) indexTilesLocked(e Spatial) {
	for _, p := range e.Footprint() {
		occupants := s.tiles[p]
		if occupants == nil {
			occupants = make(map[int64]Spatial)
			s.tiles[p] = occupants
		}
		occupants[e.EntityKey()] = e
	}
}

func (s *Subzone) unindexTilesLocked(e Spatial) {
	for _, p := range e.Footprint() {
		if occupants, ok := s.tiles[p]; ok {
			delete(occupants, e.EntityKey())
			if len(occupants) == 0 {
				delete(s.tiles, p)
			}
		}
	}
}

// Enter adds e to its class's set and indexes its footprint tiles. Only
// valid once Load has completed.
func (s *Subzone) Enter(e Spatial) {
	s.mu.Lock()
	before := s.countLocked()
	m := s.entities[e.EntityClass()]
	if m == nil {
		m = make(map[int64]Spatial)
		s.entities[e.EntityClass()] = m
	}
	m[e.EntityKey()] = e
	s.indexTilesLocked(e)
	after := s.countLocked()
	s.mu.Unlock()
	s.touchOccupancyLocked(before, after)
}

// Leave removes e from its class's set and its footprint tiles.
func (s *Subzone) Leave(e Spatial) {
	s.mu.Lock()
	before := s.countLocked()
	if m := s.entities[e.EntityClass()]; m != nil {
		delete(m, e.EntityKey())
	}
	s.unindexTilesLocked(e)
	after := s.countLocked()
	s.mu.Unlock()
	s.touchOccupancyLocked(before, after)
}

// HasTile reports whether any entity occupies p.
func (s *Subzone) HasTile(p world.Vector2) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tiles[p]) > 0
}

// IsTileFree is the negation of HasTile.
func (s *Subzone) IsTileFree(p world.Vector2) bool {
	return !s.HasTile(p)
}

// Entities returns the set of entities of class currently held.
func (s *Subzone) Entities(class string) map[int64]Spatial {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]Spatial, len(s.entities[class]))
	for k, v := range s.entities[class] {
		out[k] = v
	}
	return out
}

// AllEntities returns every entity held, grouped by class.
func (s *Subzone) AllEntities() map[string]map[int64]Spatial {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[int64]Spatial, len(s.entities))
	for class, m := range s.entities {
		cp := make(map[int64]Spatial, len(m))
		for k, v := range m {
			cp[k] = v
		}
		out[class] = cp
	}
	return out
}

// RandomPositionInside returns a uniformly chosen tile in this subzone's
// rectangle. On the staggered isometric grid (staggered=true), a position
// landing on an odd row is snapped to the nearest even row within bounds.
func (s *Subzone) RandomPositionInside(staggered bool) world.Vector2 {
	x := s.start.X + rand.Intn(s.end.X-s.start.X)
	y := s.start.Y + rand.Intn(s.end.Y-s.start.Y)
	if staggered && y%2 != 0 {
		if y-1 >= s.start.Y {
			y--
		} else {
			y++
		}
	}
	return world.Vector2{X: x, Y: y}
}
