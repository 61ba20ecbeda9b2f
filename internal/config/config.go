// Package config loads and validates the application configuration
// from YAML files and SHROUD_* environment variables via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Proxy       ProxyConfig       `mapstructure:"proxy" yaml:"proxy"`
	Fingerprint FingerprintConfig `mapstructure:"fingerprint" yaml:"fingerprint"`
	Store       StoreConfig       `mapstructure:"store" yaml:"store"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ProxyConfig configures the interception proxy.
type ProxyConfig struct {
	// ListenAddr is the client-facing host:port.
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
	// UpstreamURL is the browser's debugging websocket endpoint,
	// e.g. ws://127.0.0.1:9222/devtools/browser/<id>.
	UpstreamURL string `mapstructure:"upstream_url" yaml:"upstream_url"`
	// Rules maps protocol method names to "pass", "block" or
	// "rewrite", layered over the built-in stealth defaults.
	Rules map[string]string `mapstructure:"rules" yaml:"rules"`
	// SuppressEvents lists event names never forwarded to the client.
	SuppressEvents []string `mapstructure:"suppress_events" yaml:"suppress_events"`

	MaxMessageSize   int64         `mapstructure:"max_message_size" yaml:"max_message_size"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
}

// FingerprintConfig selects the identity the proxy spoofs.
type FingerprintConfig struct {
	// Seed pins the identity; empty means a fresh random one per run.
	Seed        string `mapstructure:"seed" yaml:"seed"`
	DeviceClass string `mapstructure:"device_class" yaml:"device_class"`
}

// StoreConfig configures optional profile/stats persistence.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
}

// NewDefaultConfig creates a configuration populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with pure defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "shroud")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Proxy --
	v.SetDefault("proxy.listen_addr", "127.0.0.1:9223")
	v.SetDefault("proxy.upstream_url", "")
	v.SetDefault("proxy.max_message_size", 32<<20)
	v.SetDefault("proxy.handshake_timeout", "10s")

	// -- Fingerprint --
	v.SetDefault("fingerprint.seed", "")
	v.SetDefault("fingerprint.device_class", "desktop")

	// -- Store --
	v.SetDefault("store.enabled", false)
	v.SetDefault("store.url", "")
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	v.BindEnv("store.url", "SHROUD_STORE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Proxy.ListenAddr == "" {
		return fmt.Errorf("proxy.listen_addr is required")
	}
	if c.Proxy.MaxMessageSize <= 0 {
		return fmt.Errorf("proxy.max_message_size must be positive")
	}
	for method, action := range c.Proxy.Rules {
		// Case-insensitive, matching how the proxy resolves them.
		switch strings.ToLower(action) {
		case "pass", "block", "rewrite":
		default:
			return fmt.Errorf("proxy.rules[%s]: unknown action %q", method, action)
		}
	}
	switch c.Fingerprint.DeviceClass {
	case "", "desktop", "mobile", "tablet":
	default:
		return fmt.Errorf("fingerprint.device_class must be desktop, mobile or tablet")
	}
	if c.Store.Enabled && c.Store.URL == "" {
		return fmt.Errorf("store.url is required when store.enabled is true")
	}
	return nil
}
