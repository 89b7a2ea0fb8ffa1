package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/infodancer/flatmail/internal/config"
	"github.com/infodancer/flatmail/internal/logging"
	"github.com/infodancer/flatmail/internal/metrics"
	"github.com/infodancer/flatmail/internal/server"
	"github.com/infodancer/flatmail/internal/smtp"
)

func runServe() {
	flags := config.ParseFlags()

	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)

	collector, metricsServer := metrics.New(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Address: cfg.Metrics.Address,
		Path:    cfg.Metrics.Path,
	})

	store, err := openStore(cfg, logger, collector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	if cfg.Metrics.Enabled {
		go func() {
			if err := metricsServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("starting flatmaild",
		"hostname", cfg.Hostname,
		"listen", cfg.Listen,
		"mailbox_dir", store.Dir(),
		"addresses", len(store.Addresses()),
		"max_connections", cfg.MaxConnections)

	srv := server.New(&cfg, logger)
	srv.SetHandler(smtp.Handler(smtp.HandlerConfig{
		Mailboxes:     store,
		Collector:     collector,
		MaxLineLength: cfg.Limits.MaxLineLength,
	}))

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
