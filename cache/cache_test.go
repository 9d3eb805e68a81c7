package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetHas(t *testing.T) {
	c := New(time.Minute)
	assert.False(t, c.Has("user/42"))
	c.Set("user/42", "luka", false)
	assert.True(t, c.Has("user/42"))
	assert.Equal(t, "luka", c.Get("user/42", nil))
	assert.Equal(t, "fallback", c.Get("user/99", "fallback"))
}

func TestDeletePrunesEmptySubtree(t *testing.T) {
	c := New(time.Minute)
	c.Set("subzone/1/2x3", "data", false)
	c.Delete("subzone/1/2x3")
	assert.False(t, c.Has("subzone/1/2x3"))
	require.Nil(t, c.root.children["subzone"])
}

func TestCleanDropsStaleStrongEntries(t *testing.T) {
	c := New(10 * time.Millisecond)
	c.Set("user/1", "a", false)
	time.Sleep(20 * time.Millisecond)
	c.Clean()
	assert.False(t, c.Has("user/1"))
}

func TestCleanKeepsRecentlyAccessedEntries(t *testing.T) {
	c := New(50 * time.Millisecond)
	c.Set("user/1", "a", false)
	c.Clean()
	assert.True(t, c.Has("user/1"))
}

func TestWeakEntryReclaimedWhenRefsDropToZero(t *testing.T) {
	c := New(time.Minute)
	c.Set("subzone/1/0x0", "data", true)
	c.Retain("subzone/1/0x0")
	c.Clean()
	assert.True(t, c.Has("subzone/1/0x0"), "held weak entry must survive Clean")

	c.Release("subzone/1/0x0")
	c.Clean()
	assert.False(t, c.Has("subzone/1/0x0"), "unheld weak entry must be reclaimed")
}

func TestConcurrentAccess(t *testing.T) {
	c := New(time.Minute)
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(i int) {
			c.Set("user/1", i, false)
			c.Get("user/1", nil)
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}
