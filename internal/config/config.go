// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config is the top-level hub configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Stream    StreamConfig    `yaml:"stream"`
	Database  DatabaseConfig  `yaml:"database"`
	History   HistoryConfig   `yaml:"history"`
	Relay     RelayConfig     `yaml:"relay"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StreamConfig holds per-stream defaults.
type StreamConfig struct {
	HeartbeatInterval time.Duration     `yaml:"heartbeat_interval"`
	OutboundBuffer    int               `yaml:"outbound_buffer"`
	InputBuffer       int               `yaml:"input_buffer"`
	CORS              map[string]string `yaml:"cors"` // merged into SSE responses verbatim
}

// DatabaseConfig holds SQLite settings for session accounting.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // file path or ":memory:"
}

// HistoryConfig holds the per-channel replay buffer settings.
type HistoryConfig struct {
	Enabled     bool          `yaml:"enabled"`
	PerChannel  int           `yaml:"per_channel"`
	MaxChannels int           `yaml:"max_channels"`
	IdleTTL     time.Duration `yaml:"idle_ttl"`
}

// RelayConfig configures the optional upstream SSE relay.
type RelayConfig struct {
	Enabled    bool          `yaml:"enabled"`
	URL        string        `yaml:"url"`     // upstream SSE endpoint
	Channel    string        `yaml:"channel"` // local channel republished into
	Auth       RelayAuth     `yaml:"auth"`
	MinBackoff time.Duration `yaml:"min_backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// RelayAuth holds OAuth2 client-credentials settings for the upstream.
// All fields empty means unauthenticated.
type RelayAuth struct {
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

// Enabled reports whether OAuth2 authentication is configured.
func (a RelayAuth) Enabled() bool { return a.TokenURL != "" }

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Stream: StreamConfig{
			HeartbeatInterval: 15 * time.Second,
			OutboundBuffer:    10,
			InputBuffer:       10,
		},
		Database: DatabaseConfig{
			DSN: "beacon.db",
		},
		History: HistoryConfig{
			Enabled:     true,
			PerChannel:  256,
			MaxChannels: 10_000,
			IdleTTL:     time.Hour,
		},
		Relay: RelayConfig{
			MinBackoff: time.Second,
			MaxBackoff: 30 * time.Second,
		},
	}
}

// Load reads and parses a YAML config file, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Stream.HeartbeatInterval <= 0 {
		return fmt.Errorf("stream.heartbeat_interval must be positive, got %s", c.Stream.HeartbeatInterval)
	}
	if c.Stream.OutboundBuffer <= 0 || c.Stream.InputBuffer <= 0 {
		return fmt.Errorf("stream buffers must be positive")
	}
	if c.Relay.Enabled {
		if c.Relay.URL == "" {
			return fmt.Errorf("relay.url is required when relay is enabled")
		}
		if c.Relay.Channel == "" {
			return fmt.Errorf("relay.channel is required when relay is enabled")
		}
	}
	return nil
}
