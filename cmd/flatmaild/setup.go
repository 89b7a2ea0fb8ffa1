package main

import (
	"fmt"
	"log/slog"

	"github.com/infodancer/flatmail/internal/config"
	"github.com/infodancer/flatmail/internal/mailbox"
	"github.com/infodancer/flatmail/internal/metrics"
)

// loadConfig loads the configuration named by flags, applies environment
// and flag overrides, and validates the result.
func loadConfig(flags *config.Flags) (config.Config, error) {
	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		return cfg, fmt.Errorf("error loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// openStore reads the registered address list and opens the mailbox
// directory. Both failures are fatal at startup.
func openStore(cfg config.Config, logger *slog.Logger, collector metrics.Collector) (*mailbox.Store, error) {
	addresses, err := mailbox.LoadAddressList(cfg.Mailbox.Addresses)
	if err != nil {
		return nil, err
	}

	return mailbox.Open(cfg.Mailbox.Directory, addresses,
		mailbox.WithLogger(logger),
		mailbox.WithCollector(collector),
	)
}
