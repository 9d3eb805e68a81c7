package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrameConvertsSnakeToCamel(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"event":"move","data":{"player_id":5,"target_position":{"pos_x":1}}}`))
	require.NoError(t, err)
	assert.Equal(t, "move", f.Event)
	assert.Equal(t, float64(5), f.Data["playerId"])
	nested, ok := f.Data["targetPosition"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), nested["posX"])
}

func TestEncodeFrameConvertsCamelToSnake(t *testing.T) {
	body, err := EncodeFrame("sync", map[string]any{"userId": 7, "deleteIn": 300000})
	require.NoError(t, err)
	assert.Contains(t, string(body), `"user_id":7`)
	assert.Contains(t, string(body), `"delete_in":300000`)
}

func TestCaseConversionRoundTrips(t *testing.T) {
	assert.Equal(t, "deleteIn", snakeToCamel("delete_in"))
	assert.Equal(t, "delete_in", camelToSnake("deleteIn"))
	assert.Equal(t, "id", snakeToCamel("id"))
	assert.Equal(t, "id", camelToSnake("id"))
}
