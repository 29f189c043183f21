package temporal

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSDKLoggerEmitsKeyvals(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSDKLogger(zerolog.New(&buf))

	logger.Info("workflow started", "RunID", "r-1", "Attempt", 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "workflow started", entry["message"])
	assert.Equal(t, "r-1", entry["RunID"])
	assert.Equal(t, float64(2), entry["Attempt"])
	assert.Equal(t, "temporal-sdk", entry["component"])
}

func TestSDKLoggerToleratesOddKeyvals(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSDKLogger(zerolog.New(&buf))

	logger.Warn("lonely value", "dangling")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "lonely value", entry["message"])
	assert.Equal(t, "dangling", entry["orphan"])
}
