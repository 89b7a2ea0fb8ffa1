package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"

	toml "github.com/pelletier/go-toml/v2"
)

// Flags holds command-line flag values.
type Flags struct {
	ConfigPath     string
	Hostname       string
	LogLevel       string
	LogFormat      string
	Listen         string
	Port           int
	MailboxDir     string
	Addresses      string
	MaxConnections int
}

// ParseFlags parses command-line flags and returns a Flags struct.
func ParseFlags() *Flags {
	f, err := ParseFlagSet(flag.CommandLine, os.Args[1:])
	if err != nil {
		// flag.CommandLine uses ExitOnError, so this is unreachable.
		panic(err)
	}
	return f
}

// ParseFlagSet registers the server flags on fs and parses args.
func ParseFlagSet(fs *flag.FlagSet, args []string) (*Flags, error) {
	f := &Flags{}

	fs.StringVar(&f.ConfigPath, "config", "./flatmail.toml", "Path to configuration file")
	fs.StringVar(&f.Hostname, "hostname", "", "Server hostname")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFormat, "log-format", "", "Log format (text, json)")
	fs.StringVar(&f.Listen, "listen", "", "Listen address (host:port)")
	fs.IntVar(&f.Port, "port", 0, "Listen port (keeps the configured host)")
	fs.StringVar(&f.MailboxDir, "mailbox-dir", "", "Mailbox directory")
	fs.StringVar(&f.Addresses, "addresses", "", "Path to the registered address list")
	fs.IntVar(&f.MaxConnections, "max-connections", 0, "Maximum concurrently served connections")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// Load parses a TOML configuration file and returns the Config.
// If the file does not exist, returns the default configuration.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig FileConfig
	if err := toml.Unmarshal(data, &fileConfig); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	// Merge file config into defaults
	cfg = mergeConfig(cfg, fileConfig.Flatmail)

	return cfg, nil
}

// ApplyFlags merges command-line flag values into the config.
// Non-zero/non-empty flag values override config file values.
func ApplyFlags(cfg Config, f *Flags) Config {
	if f.Hostname != "" {
		cfg.Hostname = f.Hostname
	}

	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}

	if f.LogFormat != "" {
		cfg.LogFormat = f.LogFormat
	}

	if f.Listen != "" {
		cfg.Listen = f.Listen
	}

	if f.Port > 0 {
		host, _, err := net.SplitHostPort(cfg.Listen)
		if err != nil {
			host = ""
		}
		cfg.Listen = net.JoinHostPort(host, strconv.Itoa(f.Port))
	}

	if f.MailboxDir != "" {
		cfg.Mailbox.Directory = f.MailboxDir
	}

	if f.Addresses != "" {
		cfg.Mailbox.Addresses = f.Addresses
	}

	if f.MaxConnections > 0 {
		cfg.MaxConnections = f.MaxConnections
	}

	return cfg
}

// LoadWithFlags loads configuration from the path specified in flags,
// applies environment overrides, then applies flag overrides.
func LoadWithFlags(f *Flags) (Config, error) {
	cfg, err := Load(f.ConfigPath)
	if err != nil {
		return cfg, err
	}
	return ApplyFlags(ApplyEnv(cfg), f), nil
}

// mergeConfig merges non-zero values from src into dst.
func mergeConfig(dst, src Config) Config {
	if src.Hostname != "" {
		dst.Hostname = src.Hostname
	}

	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}

	if src.LogFormat != "" {
		dst.LogFormat = src.LogFormat
	}

	if src.Listen != "" {
		dst.Listen = src.Listen
	}

	if src.Backlog > 0 {
		dst.Backlog = src.Backlog
	}

	if src.MaxConnections > 0 {
		dst.MaxConnections = src.MaxConnections
	}

	if src.Mailbox.Directory != "" {
		dst.Mailbox.Directory = src.Mailbox.Directory
	}

	if src.Mailbox.Addresses != "" {
		dst.Mailbox.Addresses = src.Mailbox.Addresses
	}

	if src.Limits.MaxLineLength > 0 {
		dst.Limits.MaxLineLength = src.Limits.MaxLineLength
	}

	if src.Timeouts.Idle != "" {
		dst.Timeouts.Idle = src.Timeouts.Idle
	}

	// Metrics: enabled is explicitly set (boolean), so we merge if source has any non-zero value
	if src.Metrics.Enabled {
		dst.Metrics.Enabled = src.Metrics.Enabled
	}

	if src.Metrics.Address != "" {
		dst.Metrics.Address = src.Metrics.Address
	}

	if src.Metrics.Path != "" {
		dst.Metrics.Path = src.Metrics.Path
	}

	return dst
}
