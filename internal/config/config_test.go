package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("TRACE_MAX_DEPTH", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreBolt, cfg.Store.Backend)
	assert.Equal(t, 10, cfg.Traceability.MaxDepth)
	assert.Equal(t, 10, cfg.Traceability.RetentionYears)
	assert.Equal(t, 90*24*time.Hour, cfg.Compliance.ReviewInterval)
	assert.Equal(t, 3, cfg.Store.MaxRetries)
	assert.False(t, cfg.Kafka.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Mongo")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("COMPLIANCE_REVIEW_INTERVAL", "30d")
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreMongo, cfg.Store.Backend)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, 30*24*time.Hour, cfg.Compliance.ReviewInterval)
	assert.Equal(t, 7*time.Second, cfg.Context.RequestTimeout)
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "cassandra")

	_, err := Load()
	assert.Error(t, err)
}
