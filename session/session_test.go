package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoginIsIdempotent(t *testing.T) {
	idx := New()
	idx.LoginAccount("s1", 1)
	idx.LoginAccount("s1", 1)

	assert.Equal(t, []Socket{Socket("s1")}, idx.SocketsByAccount(1))
	key, ok := idx.IsLoggedIntoAccount("s1")
	assert.True(t, ok)
	assert.Equal(t, int64(1), key)
}

func TestLogoutRemovesEmptySet(t *testing.T) {
	idx := New()
	idx.LoginUser("s1", 42)
	idx.LogoutUser("s1")

	assert.Empty(t, idx.SocketsByUser(42))
	_, ok := idx.IsLoggedAsUser("s1")
	assert.False(t, ok)
}

func TestCloseTearsDownBothBindingsInOneTraversal(t *testing.T) {
	idx := New()
	idx.LoginAccount("s1", 1)
	idx.LoginUser("s1", 7)

	idx.Close("s1")

	_, ok := idx.IsLoggedIntoAccount("s1")
	assert.False(t, ok)
	_, ok = idx.IsLoggedAsUser("s1")
	assert.False(t, ok)
	assert.Empty(t, idx.SocketsByAccount(1))
	assert.Empty(t, idx.SocketsByUser(7))
}

func TestMultipleSocketsPerUser(t *testing.T) {
	idx := New()
	idx.LoginUser("s1", 7)
	idx.LoginUser("s2", 7)

	assert.ElementsMatch(t, []Socket{Socket("s1"), Socket("s2")}, idx.SocketsByUser(7))

	idx.Close("s1")
	assert.ElementsMatch(t, []Socket{Socket("s2")}, idx.SocketsByUser(7))
}
