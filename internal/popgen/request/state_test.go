package request

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_IsTerminal(t *testing.T) {
	assert.False(t, Created.IsTerminal())
	assert.False(t, Running.IsTerminal())
	assert.False(t, Paused.IsTerminal())
	assert.True(t, Stopped.IsTerminal())
	assert.True(t, Finished.IsTerminal())
}

func TestState_JSON(t *testing.T) {
	data, err := json.Marshal(map[string]State{"state": Paused})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"Paused"}`, string(data))

	var decoded map[string]State
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, Paused, decoded["state"])

	assert.Error(t, json.Unmarshal([]byte(`{"state":"Sleeping"}`), &decoded))
	assert.Equal(t, "Unknown", State(42).String())
}
