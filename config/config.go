// Package config loads and validates the service configuration from a
// JSON file, with defaults for everything that can sensibly default.
package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/c360/logtest/errors"
)

// Duration is a time.Duration that unmarshals from JSON strings like
// "90s" or "5m".
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ListenConfig configures the client socket.
type ListenConfig struct {
	Network       string `json:"network"` // tcp or unix
	Address       string `json:"address"`
	Workers       int    `json:"workers"`
	QueueSize     int    `json:"queue_size"`
	MaxFrameBytes int    `json:"max_frame_bytes"`
}

// SessionConfig configures session lifecycle and per-session stores.
type SessionConfig struct {
	Timeout           Duration `json:"timeout"`
	ReaperInterval    Duration `json:"reaper_interval"`
	HistorySize       int      `json:"history_size"`
	PurgeLookups      int      `json:"accumulator_purge_lookups"`
	PurgeInterval     Duration `json:"accumulator_purge_interval"`
	CorrelationWindow Duration `json:"correlation_window"`
}

// RulesetConfig points at the default production ruleset files.
type RulesetConfig struct {
	DecodersPath string `json:"decoders_path"`
	RulesPath    string `json:"rules_path"`
	CDBDir       string `json:"cdb_dir,omitempty"`
}

// HTTPConfig configures the optional HTTP gateway.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// NATSConfig configures the optional NATS gateway.
type NATSConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	Subject string `json:"subject"`
	Queue   string `json:"queue,omitempty"`
}

// OpsConfig configures the metrics/health endpoint.
type OpsConfig struct {
	Addr string `json:"addr"`
}

// LogConfig configures the root logger.
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json or text
}

// Config is the complete service configuration.
type Config struct {
	Listen          ListenConfig  `json:"listen"`
	Session         SessionConfig `json:"session"`
	Ruleset         RulesetConfig `json:"ruleset"`
	ReportUndecoded bool          `json:"report_undecoded"`
	HTTP            HTTPConfig    `json:"http"`
	NATS            NATSConfig    `json:"nats"`
	Ops             OpsConfig     `json:"ops"`
	Log             LogConfig     `json:"log"`
}

// Default returns the configuration used when the file omits a value.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{
			Network:       "tcp",
			Address:       "127.0.0.1:5567",
			Workers:       8,
			QueueSize:     64,
			MaxFrameBytes: 64 * 1024,
		},
		Session: SessionConfig{
			Timeout:           Duration(15 * time.Minute),
			ReaperInterval:    Duration(time.Minute),
			HistorySize:       64,
			PurgeLookups:      100,
			PurgeInterval:     Duration(5 * time.Minute),
			CorrelationWindow: Duration(2 * time.Minute),
		},
		ReportUndecoded: true,
		Ops:             OpsConfig{Addr: ":9102"},
		Log:             LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads the configuration file at path, layered over the defaults.
// An empty path returns the defaults untouched.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "Config", "Load", "read config file")
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "parse config file")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the service cannot run
// with.
func (c *Config) Validate() error {
	switch c.Listen.Network {
	case "tcp", "unix":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"listen.network must be tcp or unix")
	}
	if c.Listen.Address == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"listen.address is required")
	}
	if c.Session.Timeout.Std() <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"session.timeout must be positive")
	}
	if c.Session.ReaperInterval.Std() <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"session.reaper_interval must be positive")
	}
	if c.Session.HistorySize <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"session.history_size must be positive")
	}
	if c.Session.PurgeLookups <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"session.accumulator_purge_lookups must be positive")
	}
	if c.Session.PurgeInterval.Std() <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"session.accumulator_purge_interval must be positive")
	}
	if c.Session.CorrelationWindow.Std() <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"session.correlation_window must be positive")
	}
	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"http.addr is required when the http gateway is enabled")
	}
	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
				"nats.url is required when the nats gateway is enabled")
		}
		if c.NATS.Subject == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
				"nats.subject is required when the nats gateway is enabled")
		}
	}
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"log.format must be json or text")
	}
	return nil
}
