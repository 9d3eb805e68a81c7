package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTokenLengthAndCharset(t *testing.T) {
	token, err := generateToken()
	require.NoError(t, err)
	assert.Len(t, token, 96)
	for _, r := range token {
		assert.True(t, (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f'), "unexpected char %q", r)
	}
}

func TestGenerateTokenUnique(t *testing.T) {
	a, err := generateToken()
	require.NoError(t, err)
	b, err := generateToken()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
