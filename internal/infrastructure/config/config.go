package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Terminal  TerminalConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// TerminalConfig holds terminal session settings.
type TerminalConfig struct {
	// BridgePath is the binary spawned as the pty bridge. Empty means the
	// running executable, invoked with the "bridge" subcommand.
	BridgePath      string        `envconfig:"TERMINAL_BRIDGE_PATH"`
	WorkDir         string        `envconfig:"TERMINAL_WORKDIR"`
	BufferLimit     int           `envconfig:"TERMINAL_BUFFER_LIMIT" default:"200000"`
	Heartbeat       time.Duration `envconfig:"TERMINAL_HEARTBEAT" default:"15s"`
	JanitorInterval time.Duration `envconfig:"TERMINAL_JANITOR_INTERVAL" default:"2m"`
	IdleTimeout     time.Duration `envconfig:"TERMINAL_IDLE_TIMEOUT" default:"1h"`
	MaxAge          time.Duration `envconfig:"TERMINAL_MAX_AGE" default:"4h"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration for the control endpoint.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects settings the terminal host cannot run with.
func (c *Config) Validate() error {
	t := c.Terminal
	if t.BufferLimit <= 0 {
		return fmt.Errorf("TERMINAL_BUFFER_LIMIT must be positive, got %d", t.BufferLimit)
	}
	if t.Heartbeat <= 0 || t.JanitorInterval <= 0 {
		return fmt.Errorf("TERMINAL_HEARTBEAT and TERMINAL_JANITOR_INTERVAL must be positive")
	}
	if t.IdleTimeout <= 0 || t.MaxAge <= 0 {
		return fmt.Errorf("TERMINAL_IDLE_TIMEOUT and TERMINAL_MAX_AGE must be positive")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
		},
		Terminal: TerminalConfig{
			BufferLimit:     200000,
			Heartbeat:       15 * time.Second,
			JanitorInterval: 2 * time.Minute,
			IdleTimeout:     time.Hour,
			MaxAge:          4 * time.Hour,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
