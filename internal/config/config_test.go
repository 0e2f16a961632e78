package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Serial.Host)
	assert.Equal(t, 5556, cfg.Serial.Port)
	assert.Equal(t, "192.168.100.1", cfg.Tun.Address)
	assert.Equal(t, "192.168.100.2", cfg.Tun.Peer)
	assert.Equal(t, 1500, cfg.Tun.MTU)
	assert.True(t, cfg.Bridge.Ethernet, "Ethernet translation should be enabled by default")
	assert.Equal(t, time.Second, cfg.Bridge.PollTimeout)
	assert.False(t, cfg.Metrics.Enabled, "metrics should be disabled by default")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/tunbridge.yml")
	require.NoError(t, err, "missing config file should not be an error")
	assert.Equal(t, 5556, cfg.Serial.Port)
}

func TestLoadValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yml")

	configContent := `
serial:
  host: "10.0.0.5"
  port: 7777
  retry_interval: 250ms
tun:
  name: "tun9"
  address: "10.9.0.1"
  netmask: "255.255.0.0"
  peer: "10.9.0.2"
  mtu: 1400
  backend: "raw"
bridge:
  ethernet: false
  poll_timeout: 500ms
log:
  level: "debug"
  format: "json"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.Serial.Host)
	assert.Equal(t, 7777, cfg.Serial.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Serial.RetryInterval)
	assert.Equal(t, "tun9", cfg.Tun.Name)
	assert.Equal(t, "raw", cfg.Tun.Backend)
	assert.False(t, cfg.Bridge.Ethernet)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	// Untouched sections keep their defaults.
	assert.Equal(t, "/var/run/tunbridge.sock", cfg.Control.Socket)
}

func TestValidateRejectsBadValues(t *testing.T) {
	mutations := map[string]func(*Config){
		"log level":      func(c *Config) { c.Log.Level = "verbose" },
		"log format":     func(c *Config) { c.Log.Format = "xml" },
		"serial port":    func(c *Config) { c.Serial.Port = 0 },
		"serial host":    func(c *Config) { c.Serial.Host = "" },
		"retry interval": func(c *Config) { c.Serial.RetryInterval = 0 },
		"tun name":       func(c *Config) { c.Tun.Name = "" },
		"tun address":    func(c *Config) { c.Tun.Address = "not-an-ip" },
		"tun peer":       func(c *Config) { c.Tun.Peer = "999.1.1.1" },
		"tun netmask":    func(c *Config) { c.Tun.Netmask = "fe80::1" },
		"tun netmask v4-mapped": func(c *Config) {
			// ParseIP().To4() is non-nil for this spelling; it must
			// still be rejected.
			c.Tun.Netmask = "::ffff:0:0"
		},
		"tun mtu low":    func(c *Config) { c.Tun.MTU = 10 },
		"tun mtu high":   func(c *Config) { c.Tun.MTU = 9000 },
		"tun backend":    func(c *Config) { c.Tun.Backend = "magic" },
		"poll timeout":   func(c *Config) { c.Bridge.PollTimeout = 0 },
		"control socket": func(c *Config) { c.Control.Socket = "" },
		"metrics listen": func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Listen = "" },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yml")
	require.NoError(t, os.WriteFile(configPath, []byte("serial: [unclosed"), 0644))

	_, err := Load(configPath)
	assert.Error(t, err, "malformed YAML must be rejected")
}
