package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/infodancer/flatmail/internal/config"
	"github.com/infodancer/flatmail/internal/logging"
)

// runCheck validates the configuration and the address list and prepares
// the mailbox directory without listening. It returns the exit status.
func runCheck(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)

	flags, err := config.ParseFlagSet(fs, args)
	if err != nil {
		return 1
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	logger := logging.New(stderr, cfg.LogLevel, cfg.LogFormat)

	store, err := openStore(cfg, logger, nil)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "configuration ok: %d registered addresses, mailbox directory %s, listen %s\n",
		len(store.Addresses()), store.Dir(), cfg.Listen)
	return 0
}
