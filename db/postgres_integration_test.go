//go:build integration

package db_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tileworld.dev/server/common"
	ctesting "tileworld.dev/server/containers/testing"
	"tileworld.dev/server/db"
	"tileworld.dev/server/track"
)

type widgetRow struct {
	ID   int64  `gorm:"primaryKey"`
	Name string
}

func (widgetRow) TableName() string { return "widgets" }

// TestFlushTwiceLeavesStateUnchanged exercises the persistence gateway
// against a real Postgres instance: applying the same drained change
// twice must not double-insert or double-update, matching the tracker's
// drain-then-clear contract (a second Flush with no intervening mutation
// has nothing left to apply).
func TestFlushTwiceLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	dsn, cleanup, err := ctesting.SetupPostgres(ctx, nil)
	require.NoError(t, err)
	defer cleanup()

	log := common.ServiceLogger("db-integration-test", "test")
	gw, err := db.Open(dsn, log)
	require.NoError(t, err)
	require.NoError(t, gw.AutoMigrate(&widgetRow{}))

	id, err := gw.Insert(ctx, "widgets", map[string]any{"name": "lantern"})
	require.NoError(t, err)

	tracker := track.New()
	entity := &fakeWidget{id: id, name: "lantern"}
	tracker.Update(entity, "name", "lantern", "brazier")

	dispatch := func() {
		for _, ec := range tracker.DrainFlush() {
			require.NoError(t, gw.Update(ctx, "widgets", ec.Entity.(*fakeWidget).id, map[string]any{"name": "brazier"}))
		}
	}
	dispatch()

	rows, err := gw.Select(ctx, "widgets", map[string]any{"id": id}, db.SelectOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "brazier", rows[0]["name"])

	// Second Flush: the tracker's flush set is already drained, so there
	// is nothing left to apply — the row must be exactly as it was.
	dispatch()

	rows, err = gw.Select(ctx, "widgets", map[string]any{"id": id}, db.SelectOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "brazier", rows[0]["name"], "a second Flush with no intervening mutation must leave state unchanged")
}

type fakeWidget struct {
	id   int64
	name string
}

func (w *fakeWidget) EntityKey() int64        { return w.id }
func (w *fakeWidget) SetEntityKey(id int64)   { w.id = id }
func (w *fakeWidget) EntityClass() string     { return "widget" }
func (w *fakeWidget) Initialized() bool       { return true }
func (w *fakeWidget) MarkInitialized()        {}
