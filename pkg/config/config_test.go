package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "test", c.Environment)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "15m", c.Analysis.Interval)
	assert.Equal(t, 200, c.Analysis.Regime.SlowWindow)
	assert.Equal(t, 5, c.Analysis.Structure.NumLevels)
	assert.Equal(t, []string{"1h", "4h"}, c.Analysis.MTF.Intervals)
	assert.Equal(t, 3, c.Analysis.MTF.MacroWeight)
	assert.Equal(t, "file", c.Session.Store)
	assert.Equal(t, "America/Santiago", c.Session.DisplayTZ)
	assert.Equal(t, 3*time.Second, c.Projection.Timeout)
	assert.Equal(t, 1.0, c.Pipeline.FastPathRate)
}

func TestParseKeepsExplicitValues(t *testing.T) {
	c, err := Parse([]byte(`
environment: production
analysis:
  structure:
    num_levels: 3
  mtf:
    disabled: true
session:
  store: memory
`))
	require.NoError(t, err)
	assert.Equal(t, 3, c.Analysis.Structure.NumLevels)
	assert.True(t, c.Analysis.MTF.Disabled)
	assert.Equal(t, "memory", c.Session.Store)
}

func TestParseZeroThresholdsResolveToDefaults(t *testing.T) {
	c, err := Parse([]byte(`
analysis:
  structure:
    break_atr: 0
    confluence_atr: 0
  confluence:
    min_projection: 0
`))
	require.NoError(t, err)
	assert.Equal(t, 0.3, c.Analysis.Structure.BreakATR)
	assert.Equal(t, 1.0, c.Analysis.Structure.ConfluenceATR)
	assert.Equal(t, 55.0, c.Analysis.Confluence.MinProjection)

	c.Analysis.Structure.BreakATR = 0
	assert.Error(t, c.Validate(), "a zero threshold is never a valid resolved value")
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]string{
		"unknown store":         "session:\n  store: sqlite\n",
		"postgres without dsn":  "session:\n  store: postgres\n",
		"kafka without brokers": "kafka:\n  enabled: true\n",
		"bad timezone":          "session:\n  display_tz: Mars/Olympus\n",
		"inverted tolerance":    "analysis:\n  structure:\n    min_tolerance: 0.01\n    max_tolerance: 0.005\n",
		"negative break_atr":    "analysis:\n  structure:\n    break_atr: -0.1\n",
		"negative confluence":   "analysis:\n  structure:\n    confluence_atr: -1\n",
		"negative projection":   "analysis:\n  confluence:\n    min_projection: -5\n",
		"projection over 100":   "analysis:\n  confluence:\n    min_projection: 101\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: staging\n"), 0o644))

	t.Setenv("MARKETCORE_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("MARKETCORE_SESSION_STORE", "redis")
	t.Setenv("MARKETCORE_SYMBOLS", "BTCUSDT,ETHUSDT")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", c.Environment)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "redis", c.Session.Store)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, c.Pipeline.Symbols)
}

func TestLoadWithEnvWithoutFile(t *testing.T) {
	c, err := LoadWithEnv(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "development", c.Environment)
}

func TestLoadShippedConfig(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "console", c.Log.Format)
	assert.False(t, c.Kafka.Enabled)
	assert.Equal(t, "bars.dlq", c.Kafka.Consumer.DLQTopic)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, c.Pipeline.Symbols)
	assert.Equal(t, "memory", c.Pipeline.Cache)
}
