package account

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tileworld.dev/server/cache"
	"tileworld.dev/server/common"
	"tileworld.dev/server/spatial"
	"tileworld.dev/server/syncmodel"
	"tileworld.dev/server/world"
)

func emptyLoader(ctx context.Context, loc int64, start, end world.Vector2) (map[string][]spatial.Spatial, error) {
	return map[string][]spatial.Spatial{}, nil
}

func newTestManager() *spatial.Manager {
	log := common.NewContextLogger(nil, nil)
	return spatial.NewManager(cache.New(time.Minute), 10, 10, emptyLoader, log)
}

func TestRegisterModelsRejectsNoDuplicates(t *testing.T) {
	reg := syncmodel.NewRegistry()
	sm := newTestManager()
	require.NoError(t, RegisterModels(reg, sm))

	_, ok := reg.ModelFor("user")
	assert.True(t, ok)
	_, ok = reg.ModelFor("message")
	assert.True(t, ok)
}

func TestHearingAreaFiltersByDistance(t *testing.T) {
	sm := newTestManager()
	speakerPos := world.Vector2{X: 5, Y: 5}

	near := &User{Base: world.Base{ID: 1}, Pos: world.Vector2{X: 6, Y: 5}}
	far := &User{Base: world.Base{ID: 2}, Pos: world.Vector2{X: 50, Y: 50}}

	zone := sm.ZoneAt(1, speakerPos)
	for _, sz := range zone.GetSubzones() {
		if sz.IsInside(near.Position()) {
			sz.Enter(near)
		}
		if sz.IsInside(far.Position()) {
			sz.Enter(far)
		}
	}

	area := hearingArea{sm: sm, loc: 1, pos: speakerPos}
	users := area.Users()
	require.Len(t, users, 1)
	assert.Equal(t, int64(1), users[0])
}
