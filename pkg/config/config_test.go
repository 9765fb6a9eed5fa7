package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
weights:
  sources: [a, b, c]
sources:
  - name: feed
    url: http://localhost:9100
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 15*time.Second, c.Server.ShutdownTimeout)
	assert.Equal(t, "memory", c.Storage.Backend)
	assert.Equal(t, 0.05, c.Weights.MinWeight)
	assert.Equal(t, 100, c.Weights.Window)
	assert.Equal(t, 10.0, c.Risk.MaxDrawdownPct)
	assert.Equal(t, 5*time.Second, c.Risk.CheckInterval)
	assert.Equal(t, 1, c.Integrity.HashVersion)
	assert.Equal(t, "signalguard.outcomes", c.Kafka.Topics.Outcomes)
	assert.Equal(t, "http", c.Sources[0].Kind)
	assert.Equal(t, 3*time.Second, c.Sources[0].Timeout)
	assert.True(t, c.Metrics.On())
}

func TestParseKeepsExplicitValues(t *testing.T) {
	c, err := Parse([]byte(`
metrics:
  enabled: false
weights:
  sources: [a, b]
  min_weight: 0.2
  max_weight: 0.8
risk:
  max_drawdown_pct: 2
  daily_loss_limit_pct: 5
  initial_capital: 25000
`))
	require.NoError(t, err)
	assert.False(t, c.Metrics.On())
	assert.Equal(t, 0.8, c.Weights.MaxWeight)
	assert.Equal(t, 25000.0, c.Risk.InitialCapital)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"no sources":         `environment: development`,
		"infeasible bounds":  "weights:\n  sources: [a, b, c]\n  max_weight: 0.3",
		"duplicate weights":  "weights:\n  sources: [a, a]",
		"unknown initial":    "weights:\n  sources: [a, b]\n  initial_weights: {z: 0.5}",
		"bad env":            "environment: prod\nweights:\n  sources: [a, b, c]",
		"bad storage":        "storage:\n  backend: etcd\nweights:\n  sources: [a, b, c]",
		"kafka no brokers":   "kafka:\n  enabled: true\nweights:\n  sources: [a, b, c]",
		"stream sans symbol": "weights:\n  sources: [a, b, c]\nsources:\n  - name: s\n    kind: stream\n    url: ws://x",
		"dup source":         "weights:\n  sources: [a, b, c]\nsources:\n  - {name: s, url: 'http://x'}\n  - {name: s, url: 'http://y'}",
		"unknown hash ver":   "integrity:\n  hash_version: 2\nweights:\n  sources: [a, b, c]",
	}
	for name, y := range cases {
		_, err := Parse([]byte(y))
		assert.Error(t, err, name)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"SIGNALGUARD_KAFKA_BROKERS":   "k1:9092, k2:9092",
		"SIGNALGUARD_KAFKA_ENABLED":   "true",
		"SIGNALGUARD_PORT":            "9090",
		"SIGNALGUARD_INITIAL_CAPITAL": "50000",
		"SIGNALGUARD_WEIGHT_SOURCES":  "x,y",
	}
	var c Config
	require.NoError(t, c.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, 50000.0, c.Risk.InitialCapital)
	assert.Equal(t, []string{"x", "y"}, c.Weights.Sources)

	env["SIGNALGUARD_PORT"] = "eighty"
	assert.Error(t, c.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))
}

func TestLoadExampleFile(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.example.yaml"))
	require.NoError(t, err)
	assert.Len(t, c.Sources, 2)
	assert.Equal(t, "stream", c.Sources[0].Kind)
}

func TestLoadWithEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))
	t.Setenv("SIGNALGUARD_LOG_LEVEL", "debug")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Logger.Level)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
