package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally/internal/config"
	"github.com/xraph/tally/types"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tally.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, config.Default().Validate())
}

func TestLoadMissingDefaultFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := config.Load(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
listen: ":9000"
unit: gwei
plugin_timeout: 2s
log:
  level: debug
  format: json
bank:
  enabled: true
  deposits:
    "0x70997970c51812dc3a010c7d01b50e0d17dc79c8": "1.5"
kafka:
  brokers: ["localhost:9092"]
  format: cbor
redis:
  url: redis://localhost:6379/0
  stream: tally-stream
  stream_max_len: 1000
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, ":9090", cfg.MetricsListen, "unset keys keep defaults")
	assert.Equal(t, 2*time.Second, cfg.PluginTimeout)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.Bank.Enabled)
	assert.Equal(t, "tally.events", cfg.Kafka.Topic)
	assert.Equal(t, "cbor", cfg.Kafka.Format)
	assert.Equal(t, int64(1000), cfg.Redis.StreamMaxLen)

	unit, err := cfg.ParseUnit()
	require.NoError(t, err)
	assert.Equal(t, types.Gwei, unit)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := config.Load(writeFile(t, "listn: \":1\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listn")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"empty listen", func(c *config.Config) { c.Listen = "" }, "listen is required"},
		{"bad unit", func(c *config.Config) { c.Unit = "btc" }, `unit "btc"`},
		{"bad level", func(c *config.Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *config.Config) { c.Log.Format = "xml" }, "log.format"},
		{"negative timeout", func(c *config.Config) { c.PluginTimeout = -time.Second }, "timeouts"},
		{"bad deposit address", func(c *config.Config) {
			c.Bank.Deposits = map[string]string{"0x12": "1"}
		}, "bank.deposits"},
		{"bad deposit amount", func(c *config.Config) {
			c.Bank.Deposits = map[string]string{"0x70997970c51812dc3a010c7d01b50e0d17dc79c8": "lots"}
		}, "bank.deposits["},
		{"bad severity", func(c *config.Config) { c.Audit.MinSeverity = "meh" }, "audit.min_severity"},
		{"bad frozen", func(c *config.Config) { c.Bank.Frozen = []string{"nope"} }, "bank.frozen"},
		{"kafka format", func(c *config.Config) {
			c.Kafka.Brokers = []string{"k:9092"}
			c.Kafka.Format = "avro"
		}, "kafka.format"},
		{"kafka topic", func(c *config.Config) {
			c.Kafka.Brokers = []string{"k:9092"}
			c.Kafka.Topic = ""
		}, "kafka.topic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := config.Default()
	cfg.Listen = ""
	cfg.Unit = "btc"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen is required")
	assert.Contains(t, err.Error(), "btc")
}
