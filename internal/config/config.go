// Package config loads daemon configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/andyk/termmux/internal/model"
)

// Config holds all daemon configuration.
type Config struct {
	Server  ServerConfig
	Session SessionConfig
	Relay   RelayConfig
	Logging LogConfig
}

// ServerConfig holds listener configuration.
type ServerConfig struct {
	// Port is the TCP port the socket protocol listens on.
	Port string `envconfig:"TERMMUX_PORT" default:"9923"`
	// HTTPPort serves the health/status endpoints and WebSocket attach.
	HTTPPort string `envconfig:"TERMMUX_HTTP_PORT" default:"9924"`
	Host     string `envconfig:"TERMMUX_HOST" default:"0.0.0.0"`
}

// SessionConfig holds subprocess configuration.
type SessionConfig struct {
	// Mode selects direct or rendered subprocesses for new sessions.
	Mode string `envconfig:"TERMMUX_MODE" default:"direct"`
	// Shell is the binary spawned when newSession omits a binary path.
	Shell string `envconfig:"TERMMUX_SHELL" default:"/bin/bash"`
	// HelperPath is the rendered-mode helper binary.
	HelperPath string `envconfig:"TERMMUX_HELPER" default:"termview"`
	// ViewTimeout bounds how long a view request waits for a helper reply.
	ViewTimeout time.Duration `envconfig:"TERMMUX_VIEW_TIMEOUT" default:"5s"`
	// RecordDir is where session transcripts are written. Empty disables
	// recording.
	RecordDir string `envconfig:"TERMMUX_RECORD_DIR" default:""`
}

// RelayConfig holds output relay configuration.
type RelayConfig struct {
	// Interval is the coalescing flush cadence.
	Interval time.Duration `envconfig:"TERMMUX_RELAY_INTERVAL" default:"2s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"TERMMUX_LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"TERMMUX_LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     "9923",
			HTTPPort: "9924",
			Host:     "0.0.0.0",
		},
		Session: SessionConfig{
			Mode:        string(model.ProcModeDirect),
			Shell:       "/bin/bash",
			HelperPath:  "termview",
			ViewTimeout: 5 * time.Second,
		},
		Relay: RelayConfig{
			Interval: 2 * time.Second,
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}

// Mode returns the configured process mode.
func (c *Config) Mode() model.ProcMode {
	return model.ProcMode(c.Session.Mode)
}

func (c *Config) validate() error {
	switch model.ProcMode(c.Session.Mode) {
	case model.ProcModeDirect, model.ProcModeRendered:
	default:
		return fmt.Errorf("invalid TERMMUX_MODE %q", c.Session.Mode)
	}
	if c.Relay.Interval <= 0 {
		return fmt.Errorf("relay interval must be positive")
	}
	if c.Session.ViewTimeout <= 0 {
		return fmt.Errorf("view timeout must be positive")
	}
	return nil
}
