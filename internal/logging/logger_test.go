package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/aretw0/tendril/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewJSONWriter(&buf, slog.LevelInfo)

	log.Debug("hidden")
	log.Info("Step run failed", "error", errors.New("boom"), "conv_id", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Step run failed", entry["msg"])
	assert.Equal(t, "boom", entry["err"])
	assert.NotContains(t, entry, "error")
	assert.EqualValues(t, 3, entry["conv_id"])
}

func TestNewNop(t *testing.T) {
	assert.NotPanics(t, func() { logging.NewNop().Error("nothing") })
}
