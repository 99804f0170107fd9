package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/symposium/internal/app/debate"
	"github.com/PabloGalante/symposium/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SYMPOSIUM_MODE", "")
	t.Setenv("SYMPOSIUM_STORAGE_BACKEND", "")
	t.Setenv("SYMPOSIUM_USE_MOCK_LLM", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.ModeLocal, cfg.Mode)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, config.StorageMemory, cfg.StorageBackend)
	assert.True(t, cfg.UseMockLLM)
	assert.Equal(t, debate.FailAbort, cfg.FailurePolicy)
	assert.Equal(t, 50*time.Millisecond, cfg.CommitDelay)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.InDelta(t, 0.7, cfg.Settings.Temperature, 1e-6)
	assert.True(t, cfg.Settings.AllowInterruption)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SYMPOSIUM_STORAGE_BACKEND", "Badger")
	t.Setenv("SYMPOSIUM_FRAME_INTERVAL", "5ms")
	t.Setenv("SYMPOSIUM_DEBATE_FAILURE_POLICY", "continue")
	t.Setenv("SYMPOSIUM_LOG_LEVEL", "debug")
	t.Setenv("SYMPOSIUM_TEMPERATURE", "0.2")
	t.Setenv("SYMPOSIUM_MAX_OUTPUT_LENGTH", "512")
	t.Setenv("SYMPOSIUM_ALLOW_INTERRUPTION", "false")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.StorageBadger, cfg.StorageBackend)
	assert.Equal(t, 5*time.Millisecond, cfg.FrameInterval)
	assert.Equal(t, debate.FailContinue, cfg.FailurePolicy)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.InDelta(t, 0.2, cfg.Settings.Temperature, 1e-6)
	assert.Equal(t, int32(512), cfg.Settings.MaxOutputLength)
	assert.False(t, cfg.Settings.AllowInterruption)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"backend":     {"SYMPOSIUM_STORAGE_BACKEND", "postgres"},
		"interval":    {"SYMPOSIUM_FRAME_INTERVAL", "soon"},
		"zero":        {"SYMPOSIUM_FRAME_INTERVAL", "0s"},
		"policy":      {"SYMPOSIUM_DEBATE_FAILURE_POLICY", "retry"},
		"temperature": {"SYMPOSIUM_TEMPERATURE", "1.5"},
		"level":       {"SYMPOSIUM_LOG_LEVEL", "loud"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func TestGCPModeNeedsProject(t *testing.T) {
	t.Setenv("SYMPOSIUM_MODE", "gcp")
	t.Setenv("SYMPOSIUM_GCP_PROJECT", "")

	_, err := config.Load()
	require.Error(t, err)

	t.Setenv("SYMPOSIUM_GCP_PROJECT", "demo")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.False(t, cfg.UseMockLLM)
}
