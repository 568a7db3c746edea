package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromEnvDefaults(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "test-key", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 1500, cfg.Pipeline.SegmentMaxChars)
	assert.Equal(t, 40, cfg.Pipeline.SegmentMaxEntries)
	assert.Equal(t, "zh-TW", cfg.Pipeline.TargetLanguage)
	assert.Equal(t, ":8080", cfg.System.HTTPAddr)
}

func TestNewFromEnvRequiresAPIKey(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")

	_, err := NewFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_API_KEY")
}

func TestNewFromEnvOverrides(t *testing.T) {
	t.Setenv("LLM_API_KEY", "k")
	t.Setenv("SEGMENT_MAX_ENTRIES", "12")
	t.Setenv("STALL_THRESHOLD_SECONDS", "300")
	t.Setenv("TARGET_LANGUAGE", "ja")

	cfg, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Pipeline.SegmentMaxEntries)
	assert.Equal(t, "ja", cfg.Pipeline.TargetLanguage)
	assert.Equal(t, "5m0s", cfg.Supervisor.StallThreshold.String())
}

func TestNewFromEnvRejectsStallBelowHeartbeat(t *testing.T) {
	t.Setenv("LLM_API_KEY", "k")
	t.Setenv("HEARTBEAT_INTERVAL_SECONDS", "60")
	t.Setenv("STALL_THRESHOLD_SECONDS", "30")

	_, err := NewFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STALL_THRESHOLD_SECONDS")
}

func TestNewFromEnvInvalidIntFallsBack(t *testing.T) {
	t.Setenv("LLM_API_KEY", "k")
	t.Setenv("MAX_RETRIES", "not-a-number")

	cfg, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Pipeline.MaxRetries)
}
