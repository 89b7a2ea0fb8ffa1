// Package config provides configuration management for the mail server.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// DefaultPort is the TCP port used when none is configured.
const DefaultPort = 65000

// FileConfig is the top-level wrapper for the configuration file.
type FileConfig struct {
	Flatmail Config `toml:"flatmail"`
}

// Config holds the complete server configuration.
type Config struct {
	Hostname       string         `toml:"hostname"`
	LogLevel       string         `toml:"log_level"`
	LogFormat      string         `toml:"log_format"`
	Listen         string         `toml:"listen"`
	Backlog        int            `toml:"backlog"`
	MaxConnections int            `toml:"max_connections"`
	Mailbox        MailboxConfig  `toml:"mailbox"`
	Limits         LimitsConfig   `toml:"limits"`
	Timeouts       TimeoutsConfig `toml:"timeouts"`
	Metrics        MetricsConfig  `toml:"metrics"`
}

// MailboxConfig locates the mailbox directory and the registered address list.
type MailboxConfig struct {
	Directory string `toml:"directory"`
	Addresses string `toml:"addresses"`
}

// LimitsConfig defines resource limits for the server.
type LimitsConfig struct {
	MaxLineLength int `toml:"max_line_length"`
}

// TimeoutsConfig defines timeout durations.
type TimeoutsConfig struct {
	Idle string `toml:"idle"`
}

// MetricsConfig holds configuration for Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Path    string `toml:"path"`
}

// Default returns a Config with sensible default values.
func Default() Config {
	return Config{
		Hostname:       "localhost",
		LogLevel:       "info",
		LogFormat:      "text",
		Listen:         fmt.Sprintf("0.0.0.0:%d", DefaultPort),
		Backlog:        5,
		MaxConnections: 1,
		Mailbox: MailboxConfig{
			Directory: "./mailboxes",
			Addresses: "./addresses.txt",
		},
		Limits: LimitsConfig{
			MaxLineLength: 4096,
		},
		Timeouts: TimeoutsConfig{
			Idle: "5m",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9100",
			Path:    "/metrics",
		},
	}
}

// Validate checks that the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.Hostname == "" {
		return errors.New("hostname is required")
	}

	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.Listen, err)
	}

	if c.Backlog <= 0 {
		return errors.New("backlog must be positive")
	}

	if c.MaxConnections <= 0 {
		return errors.New("max_connections must be positive")
	}

	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q (valid: text, json)", c.LogFormat)
	}

	if c.Mailbox.Directory == "" {
		return errors.New("mailbox directory is required")
	}

	if c.Mailbox.Addresses == "" {
		return errors.New("mailbox address list is required")
	}

	if c.Limits.MaxLineLength <= 0 {
		return errors.New("max_line_length must be positive")
	}

	if c.Timeouts.Idle != "" {
		d, err := time.ParseDuration(c.Timeouts.Idle)
		if err != nil {
			return fmt.Errorf("invalid idle timeout: %w", err)
		}
		if d < 0 {
			return errors.New("idle timeout must not be negative")
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Address == "" {
			return errors.New("metrics address is required when metrics are enabled")
		}
		if c.Metrics.Path == "" {
			return errors.New("metrics path is required when metrics are enabled")
		}
	}

	return nil
}

// IdleTimeout returns the idle timeout as a time.Duration.
// An empty value means 5 minutes; "0" disables the timeout.
func (c *TimeoutsConfig) IdleTimeout() time.Duration {
	if c.Idle == "" {
		return 5 * time.Minute
	}
	d, err := time.ParseDuration(c.Idle)
	if err != nil || d < 0 {
		return 5 * time.Minute
	}
	return d
}
