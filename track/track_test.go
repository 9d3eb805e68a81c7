package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tileworld.dev/server/world"
)

type fakeEntity struct {
	world.Base
}

func (f *fakeEntity) EntityClass() string { return "fake" }

func TestUpdateRecordsOldestOldValue(t *testing.T) {
	tr := New()
	e := &fakeEntity{}
	tr.Update(e, "x", 1, 2)
	tr.Update(e, "x", 2, 3)

	changes := tr.DrainSync()
	require.Len(t, changes, 1)
	fc := changes[0].Fields["x"]
	assert.Equal(t, 1, fc.Old)
	assert.Equal(t, 3, fc.New)
}

func TestUpdateDropsFieldThatReturnsToItsOriginalValue(t *testing.T) {
	tr := New()
	e := &fakeEntity{}
	tr.Update(e, "x", 1, 2)
	tr.Update(e, "x", 2, 1)

	changes := tr.DrainSync()
	require.Len(t, changes, 1)
	_, tracked := changes[0].Fields["x"]
	assert.False(t, tracked, "a field toggled back to its original value within one tick must not sync")
}

func TestDrainClearsSet(t *testing.T) {
	tr := New()
	e := &fakeEntity{}
	tr.Created(e)
	require.Len(t, tr.DrainSync(), 1)
	assert.Empty(t, tr.DrainSync())
}

func TestDeleteOverridesPriorUpdate(t *testing.T) {
	tr := New()
	e := &fakeEntity{}
	tr.Update(e, "x", 1, 2)
	tr.Deleted(e)

	changes := tr.DrainSync()
	require.Len(t, changes, 1)
	assert.Equal(t, Delete, changes[0].Type)
}

func TestExplicitTrackDoesNotTouchFlushSet(t *testing.T) {
	tr := New()
	e := &fakeEntity{}
	tr.TrackExplicit(e, "derived_count")

	syncChanges := tr.DrainSync()
	require.Len(t, syncChanges, 1)
	_, tracked := syncChanges[0].Explicit["derived_count"]
	assert.True(t, tracked)

	assert.Empty(t, tr.DrainFlush())
}

func TestEnterWorldTouchesSyncSetOnly(t *testing.T) {
	tr := New()
	e := &fakeEntity{}
	tr.EnterWorld(e)

	syncChanges := tr.DrainSync()
	require.Len(t, syncChanges, 1)
	assert.Equal(t, Create, syncChanges[0].Type)
	assert.Empty(t, tr.DrainFlush())
}

func TestLeaveWorldTouchesSyncSetOnly(t *testing.T) {
	tr := New()
	e := &fakeEntity{}
	tr.LeaveWorld(e)

	syncChanges := tr.DrainSync()
	require.Len(t, syncChanges, 1)
	assert.Equal(t, Delete, syncChanges[0].Type)
	assert.Empty(t, tr.DrainFlush())
}

func TestSyncAndFlushSetsAreIndependent(t *testing.T) {
	tr := New()
	e := &fakeEntity{}
	tr.Update(e, "x", 1, 2)

	tr.DrainSync()
	flushChanges := tr.DrainFlush()
	require.Len(t, flushChanges, 1)
	assert.Equal(t, 2, flushChanges[0].Fields["x"].New)
}
