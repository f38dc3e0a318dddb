package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "none", cfg.Workflow.DealLock)
	assert.Equal(t, 168*time.Hour, cfg.Workflow.ChainTTL)
	assert.Empty(t, cfg.Database.URL)
	assert.Contains(t, cfg.Workflow.StatusEntities, "deal")
	assert.InDelta(t, 1.0, cfg.Workflow.OpsSampleRate, 1e-9)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DEALFLOW_ENV", "production")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("DEALFLOW_DEAL_LOCK", "redis")
	t.Setenv("DEALFLOW_CHAIN_TTL", "48h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "redis", cfg.Workflow.DealLock)
	assert.Equal(t, 48*time.Hour, cfg.Workflow.ChainTTL)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("DEALFLOW_EXPIRY_INTERVAL", "soon")

	_, err := Load()
	require.Error(t, err)
}
