package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "tcp", cfg.Listen.Network)
	assert.Equal(t, 15*time.Minute, cfg.Session.Timeout.Std())
	assert.Equal(t, 64, cfg.Session.HistorySize)
	assert.True(t, cfg.ReportUndecoded)
	assert.False(t, cfg.HTTP.Enabled)
	assert.False(t, cfg.NATS.Enabled)
}

func TestLoad_OverridesLayeredOnDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"listen": {"network": "unix", "address": "/tmp/logtest.sock"},
		"session": {"timeout": "90s", "reaper_interval": "10s", "history_size": 32},
		"http": {"enabled": true, "addr": ":8080"},
		"log": {"level": "debug", "format": "text"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "unix", cfg.Listen.Network)
	assert.Equal(t, "/tmp/logtest.sock", cfg.Listen.Address)
	assert.Equal(t, 90*time.Second, cfg.Session.Timeout.Std())
	assert.Equal(t, 32, cfg.Session.HistorySize)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Untouched sections keep their defaults
	assert.Equal(t, 8, cfg.Listen.Workers)
	assert.Equal(t, 100, cfg.Session.PurgeLookups)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoad_MalformedJSON(t *testing.T) {
	path := writeConfig(t, "{not json")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `{"session": {"timeout": "soon"}}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults pass", func(*Config) {}, false},
		{"bad network", func(c *Config) { c.Listen.Network = "sctp" }, true},
		{"empty address", func(c *Config) { c.Listen.Address = "" }, true},
		{"zero timeout", func(c *Config) { c.Session.Timeout = 0 }, true},
		{"zero reaper interval", func(c *Config) { c.Session.ReaperInterval = 0 }, true},
		{"zero history", func(c *Config) { c.Session.HistorySize = 0 }, true},
		{"zero purge lookups", func(c *Config) { c.Session.PurgeLookups = 0 }, true},
		{"zero purge interval", func(c *Config) { c.Session.PurgeInterval = 0 }, true},
		{"zero correlation window", func(c *Config) { c.Session.CorrelationWindow = 0 }, true},
		{"http enabled without addr", func(c *Config) { c.HTTP.Enabled = true }, true},
		{"nats enabled without url", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.Subject = "logtest.request"
		}, true},
		{"nats enabled without subject", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.URL = "nats://127.0.0.1:4222"
		}, true},
		{"nats fully configured", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.URL = "nats://127.0.0.1:4222"
			c.NATS.Subject = "logtest.request"
		}, false},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
