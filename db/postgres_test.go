package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractID(t *testing.T) {
	cases := []struct {
		name string
		row  map[string]any
		want int64
	}{
		{"int64", map[string]any{"id": int64(42)}, 42},
		{"int", map[string]any{"id": 7}, 7},
		{"uint32", map[string]any{"id": uint32(9)}, 9},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := extractID(c.row)
			assert.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestExtractIDMissing(t *testing.T) {
	_, err := extractID(map[string]any{})
	assert.Error(t, err)
}
