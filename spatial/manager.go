package spatial

import (
	"context"

	"tileworld.dev/server/cache"
	"tileworld.dev/server/common"
	"tileworld.dev/server/world"
)

// Manager owns every subzone, held weakly in the identity cache so unused
// ones are reclaimable and recreated transparently on next access.
type Manager struct {
	cache        *cache.Cache
	sizeX, sizeY int
	loader       Loader
	log          *common.ContextLogger
}

func NewManager(c *cache.Cache, sizeX, sizeY int, loader Loader, log *common.ContextLogger) *Manager {
	return &Manager{cache: c, sizeX: sizeX, sizeY: sizeY, loader: loader, log: log}
}

// Get returns the subzone at coord, constructing (and weakly caching) it
// on first access. The subzone retains its own cache entry while it holds
// any entities and releases it once empty (see Subzone.touchOccupancyLocked),
// so an idle subzone is reclaimable by Cache.Clean without anything here
// needing to track its lifetime.
func (m *Manager) Get(coord Coord) *Subzone {
	key := "subzone/" + coord.String()
	if v := m.cache.Get(key, nil); v != nil {
		return v.(*Subzone)
	}
	sz := New(coord, m.sizeX, m.sizeY, m.log, m.cache, key)
	m.cache.Set(key, sz, true)
	return sz
}

// GetLoaded returns the subzone at coord after ensuring it has loaded.
func (m *Manager) GetLoaded(ctx context.Context, coord Coord) (*Subzone, error) {
	sz := m.Get(coord)
	if err := sz.Load(ctx, m.loader); err != nil {
		return nil, err
	}
	return sz, nil
}

// ZoneAt builds the 3x3 zone window centered on the subzone containing pos.
func (m *Manager) ZoneAt(location int64, pos world.Vector2) *Zone {
	center := ZoneCoordFor(location, pos, m.sizeX, m.sizeY)
	return NewZone(center, m.Get)
}

// SizeX/SizeY expose the configured subzone dimensions.
func (m *Manager) SizeX() int { return m.sizeX }
func (m *Manager) SizeY() int { return m.sizeY }
