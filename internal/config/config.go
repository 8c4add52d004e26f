// Package config loads the tally.yaml file used by the tally command.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/types"
)

// FileName is the config file looked up when no path is given.
const FileName = "tally.yaml"

// Config is the serve configuration.
type Config struct {
	Listen         string        `yaml:"listen"`
	MetricsListen  string        `yaml:"metrics_listen"`
	Unit           string        `yaml:"unit"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	PluginTimeout  time.Duration `yaml:"plugin_timeout"`

	Log   LogConfig   `yaml:"log"`
	Bank  BankConfig  `yaml:"bank"`
	Audit AuditConfig `yaml:"audit"`
	Kafka KafkaConfig `yaml:"kafka"`
	Redis RedisConfig `yaml:"redis"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BankConfig enables the in-memory bank settler. Deposits map an address
// to an opening balance in the configured unit.
type BankConfig struct {
	Enabled  bool              `yaml:"enabled"`
	Deposits map[string]string `yaml:"deposits"`
	Frozen   []string          `yaml:"frozen"`
}

// AuditConfig controls the audit trail plugin.
type AuditConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Disabled    []string `yaml:"disabled_actions"`
	MinSeverity string   `yaml:"min_severity"`
}

// KafkaConfig enables the Kafka event publisher when Brokers is non-empty.
type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"`
	Topic       string   `yaml:"topic"`
	Format      string   `yaml:"format"`
	CreateTopic bool     `yaml:"create_topic"`
	Partitions  int32    `yaml:"partitions"`
}

// RedisConfig enables the Redis event publisher when URL is set.
type RedisConfig struct {
	URL          string `yaml:"url"`
	Channel      string `yaml:"channel"`
	Stream       string `yaml:"stream"`
	StreamMaxLen int64  `yaml:"stream_max_len"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Listen:         ":8080",
		MetricsListen:  ":9090",
		Unit:           "ETH",
		RequestTimeout: 30 * time.Second,
		PluginTimeout:  5 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Audit: AuditConfig{Enabled: true},
		Kafka: KafkaConfig{
			Topic:      "tally.events",
			Format:     "json",
			Partitions: 1,
		},
		Redis: RedisConfig{
			Channel: "tally:events",
		},
	}
}

// Load reads path over the defaults. A missing file at the default path
// yields Default(); a missing file that was asked for explicitly is an error.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = FileName
	}

	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: invalid %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every problem found in the configuration.
func (c Config) Validate() error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, errors.New("listen is required"))
	}
	if _, err := c.ParseUnit(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	if c.RequestTimeout < 0 || c.PluginTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}

	switch c.Audit.MinSeverity {
	case "", "info", "warning", "error", "critical":
	default:
		errs = append(errs, fmt.Errorf("audit.min_severity %q must be info, warning, error or critical", c.Audit.MinSeverity))
	}

	for addr, amount := range c.Bank.Deposits {
		if _, err := account.Parse(addr); err != nil {
			errs = append(errs, fmt.Errorf("bank.deposits: %w", err))
		}
		if unit, err := c.ParseUnit(); err == nil {
			if _, err := types.ParseIn(amount, unit); err != nil {
				errs = append(errs, fmt.Errorf("bank.deposits[%s]: %w", addr, err))
			}
		}
	}
	for _, addr := range c.Bank.Frozen {
		if _, err := account.Parse(addr); err != nil {
			errs = append(errs, fmt.Errorf("bank.frozen: %w", err))
		}
	}

	if len(c.Kafka.Brokers) > 0 {
		if c.Kafka.Topic == "" {
			errs = append(errs, errors.New("kafka.topic is required with brokers"))
		}
		switch c.Kafka.Format {
		case "json", "cbor":
		default:
			errs = append(errs, fmt.Errorf("kafka.format %q must be json or cbor", c.Kafka.Format))
		}
	}
	if c.Redis.StreamMaxLen < 0 {
		errs = append(errs, errors.New("redis.stream_max_len must not be negative"))
	}

	return errors.Join(errs...)
}

// ParseUnit resolves the display unit: "ETH", "gwei" or "wei".
func (c Config) ParseUnit() (types.Unit, error) {
	switch strings.ToLower(c.Unit) {
	case "eth", "ether":
		return types.Ether, nil
	case "gwei":
		return types.Gwei, nil
	case "wei":
		return types.Wei, nil
	default:
		return types.Unit{}, fmt.Errorf("unit %q must be ETH, gwei or wei", c.Unit)
	}
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
