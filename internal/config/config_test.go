package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 0.6, cfg.Gate.Threshold)
	assert.Equal(t, 10, cfg.Gate.MinTextLen)
	assert.Equal(t, 100, cfg.Gate.BufferSize)
	assert.True(t, cfg.Cooldown.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Cooldown.DurationValue())
	assert.Equal(t, 10, cfg.Retrieval.MaxResults)
	assert.Equal(t, 20, cfg.Retrieval.SemanticTopK)
	assert.Equal(t, 0.3, cfg.Retrieval.RecencyWeight)
	assert.Equal(t, 0.5, cfg.Retrieval.RelevanceWeight)
	assert.Equal(t, 0.2, cfg.Retrieval.EntityWeight)
	assert.Equal(t, 0.5, cfg.Retrieval.EntitySearchBoost)
	assert.Equal(t, 0.3, cfg.Retrieval.ContentEntityBoost)
	assert.Equal(t, 40, cfg.Composer.MinBodyChars)
	assert.Equal(t, 10*time.Second, cfg.Classifier.TimeoutDuration())
	assert.Equal(t, 10*time.Second, cfg.LLM.TimeoutDuration())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 0.6, cfg.Gate.Threshold)
}

func TestLoadOverridesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
gate:
  threshold: 0.8
  min_text_len: 25
cooldown:
  enabled: false
llm:
  model: gpt-4o
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.8, cfg.Gate.Threshold)
	assert.Equal(t, 25, cfg.Gate.MinTextLen)
	assert.False(t, cfg.Cooldown.Enabled)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	// Untouched sections keep their defaults.
	assert.Equal(t, 10, cfg.Retrieval.MaxResults)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gate: ["), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NUDGE_DATA_DIR", "/tmp/nudge-test")
	t.Setenv("NUDGE_LLM_API_KEY", "sk-test")
	t.Setenv("NUDGE_GATE_THRESHOLD", "0.75")
	t.Setenv("NUDGE_COOLDOWN_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/nudge-test", cfg.DataDir)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 0.75, cfg.Gate.Threshold)
	assert.False(t, cfg.Cooldown.Enabled)
}

func TestEnvOverrideIgnoresGarbage(t *testing.T) {
	t.Setenv("NUDGE_GATE_THRESHOLD", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0.6, cfg.Gate.Threshold)
}

func TestPathResolution(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/data/nudge"
	cfg.Store.Path = "nudge.db"
	cfg.Collector.SpoolDir = "spool"

	assert.Equal(t, filepath.Join("/data/nudge", "nudge.db"), cfg.StorePath())
	assert.Equal(t, filepath.Join("/data/nudge", "spool"), cfg.SpoolPath())

	cfg.Store.Path = "/absolute/other.db"
	assert.Equal(t, "/absolute/other.db", cfg.StorePath())
}

func TestTimeoutFallback(t *testing.T) {
	c := LLMConfig{Timeout: "garbage"}
	assert.Equal(t, 10*time.Second, c.TimeoutDuration())

	c = LLMConfig{Timeout: "250ms"}
	assert.Equal(t, 250*time.Millisecond, c.TimeoutDuration())
}
