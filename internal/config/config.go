// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level bridge configuration.
type Config struct {
	Serial  SerialConfig  `mapstructure:"serial"`
	Tun     TunConfig     `mapstructure:"tun"`
	Bridge  BridgeConfig  `mapstructure:"bridge"`
	Control ControlConfig `mapstructure:"control"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

// SerialConfig locates the TCP endpoint carrying the device's serial
// transport (e.g. QEMU's UART exposed on a local port).
type SerialConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// TunConfig describes the virtual interface to create.
type TunConfig struct {
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
	Netmask string `mapstructure:"netmask"`
	Peer    string `mapstructure:"peer"` // device address inside the subnet
	MTU     int    `mapstructure:"mtu"`
	Backend string `mapstructure:"backend"` // auto | assisted | raw
}

// BridgeConfig tunes the relay loop.
type BridgeConfig struct {
	// Ethernet enables translation between link-layer frames on the serial
	// side and raw IP packets on the TUN side. Disable for peers that
	// exchange raw IP directly.
	Ethernet    bool          `mapstructure:"ethernet"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

// ControlConfig contains local control plane settings.
type ControlConfig struct {
	Socket  string `mapstructure:"socket"`
	PIDFile string `mapstructure:"pid_file"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains log output destinations beyond stdout.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures rotated file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures lumberjack log rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// Load reads configuration from path, layering file values over defaults
// and environment variables (TUNBRIDGE_ prefix, e.g. TUNBRIDGE_LOG_LEVEL)
// over both. A missing file is not an error: the defaults describe the
// standard QEMU bridge setup and work as-is.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("TUNBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults mirrors the original QEMU bridge setup: UART on local port
// 5556, 192.168.100.0/24 on the TUN side, Ethernet framing enabled.
func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.host", "127.0.0.1")
	v.SetDefault("serial.port", 5556)
	v.SetDefault("serial.retry_interval", "1s")

	v.SetDefault("tun.name", "tun0")
	v.SetDefault("tun.address", "192.168.100.1")
	v.SetDefault("tun.netmask", "255.255.255.0")
	v.SetDefault("tun.peer", "192.168.100.2")
	v.SetDefault("tun.mtu", 1500)
	v.SetDefault("tun.backend", "auto")

	v.SetDefault("bridge.ethernet", true)
	v.SetDefault("bridge.poll_timeout", "1s")

	v.SetDefault("control.socket", "/var/run/tunbridge.sock")
	v.SetDefault("control.pid_file", "/var/run/tunbridge.pid")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9615")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.outputs.file.enabled", false)
	v.SetDefault("log.outputs.file.path", "/var/log/tunbridge/tunbridge.log")
	v.SetDefault("log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("log.outputs.file.rotation.compress", true)
}

// Validate checks the configuration for values the bridge cannot run with.
func (cfg *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}

	if cfg.Serial.Host == "" {
		return fmt.Errorf("serial.host is required")
	}
	if cfg.Serial.Port < 1 || cfg.Serial.Port > 65535 {
		return fmt.Errorf("invalid serial.port: %d", cfg.Serial.Port)
	}
	if cfg.Serial.RetryInterval <= 0 {
		return fmt.Errorf("serial.retry_interval must be positive")
	}

	if cfg.Tun.Name == "" {
		return fmt.Errorf("tun.name is required")
	}
	for _, addr := range []struct{ key, value string }{
		{"tun.address", cfg.Tun.Address},
		{"tun.peer", cfg.Tun.Peer},
	} {
		if net.ParseIP(addr.value) == nil {
			return fmt.Errorf("invalid %s: %q", addr.key, addr.value)
		}
	}
	// Dotted-quad form only: ParseIP also accepts IPv4-mapped IPv6
	// spellings, which ip(8) does not.
	mask := net.ParseIP(cfg.Tun.Netmask)
	if mask == nil || mask.To4() == nil || strings.Contains(cfg.Tun.Netmask, ":") {
		return fmt.Errorf("invalid tun.netmask: %q", cfg.Tun.Netmask)
	}
	// 68 is the minimum MTU IPv4 requires every link to support.
	if cfg.Tun.MTU < 68 || cfg.Tun.MTU > 1500 {
		return fmt.Errorf("invalid tun.mtu: %d (must be 68..1500)", cfg.Tun.MTU)
	}
	switch cfg.Tun.Backend {
	case "auto", "assisted", "raw":
	default:
		return fmt.Errorf("invalid tun.backend: %q (must be auto/assisted/raw)", cfg.Tun.Backend)
	}

	if cfg.Bridge.PollTimeout <= 0 {
		return fmt.Errorf("bridge.poll_timeout must be positive")
	}

	if cfg.Control.Socket == "" {
		return fmt.Errorf("control.socket is required")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics.enabled=true")
	}

	return nil
}
