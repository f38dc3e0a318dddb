package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_ProductionEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "production", "info")

	log.Info("event processed", "chains_created", 1)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "event processed", line["msg"])
	assert.EqualValues(t, 1, line["chains_created"])
}

func TestNewWithWriter_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "development", "warn")

	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
