package config

import (
	"os"
	"strconv"
)

// ApplyEnv applies environment variable overrides to the configuration.
// Environment variables take precedence over TOML config but are overridden by command-line flags.
func ApplyEnv(cfg Config) Config {
	if v := os.Getenv("FLATMAIL_HOSTNAME"); v != "" {
		cfg.Hostname = v
	}
	if v := os.Getenv("FLATMAIL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLATMAIL_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("FLATMAIL_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("FLATMAIL_MAILBOX_DIR"); v != "" {
		cfg.Mailbox.Directory = v
	}
	if v := os.Getenv("FLATMAIL_ADDRESSES"); v != "" {
		cfg.Mailbox.Addresses = v
	}
	if v := os.Getenv("FLATMAIL_MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConnections = n
		}
	}
	if v := os.Getenv("FLATMAIL_METRICS_ADDRESS"); v != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = v
	}

	return cfg
}
