package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/infodancer/flatmail/internal/config"
	"github.com/infodancer/flatmail/internal/logging"
)

// Server owns the listener and runs mail sessions until shut down.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	handler ConnectionHandler

	listener *Listener
	ready    chan struct{}
	mu       sync.Mutex
}

// New creates a new Server with the given configuration. If logger is nil
// one is built from the configured level and format.
func New(cfg *config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	return &Server{
		cfg:    cfg,
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// SetHandler sets the connection handler.
// Must be called before Run.
func (s *Server) SetHandler(handler ConnectionHandler) {
	s.handler = handler
}

// Run starts the listener and blocks until the context is cancelled.
// Open sessions are given the chance to say goodbye before Run returns.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()

	if s.handler == nil {
		s.handler = s.defaultHandler
	}

	s.listener = NewListener(ListenerConfig{
		Address:        s.cfg.Listen,
		Backlog:        s.cfg.Backlog,
		MaxConnections: s.cfg.MaxConnections,
		IdleTimeout:    s.cfg.Timeouts.IdleTimeout(),
		LogTransaction: s.cfg.LogLevel == "debug",
		Logger:         s.logger,
		Handler:        s.handler,
	})
	listener := s.listener
	close(s.ready)

	s.mu.Unlock()

	s.logger.Info("starting server",
		slog.String("hostname", s.cfg.Hostname),
		slog.String("listen", s.cfg.Listen),
		slog.Int("max_connections", listener.MaxConnections()),
	)

	err := listener.Start(ctx)

	s.logger.Info("server stopped")

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("listener %s: %w", listener.Address(), err)
	}
	return err
}

// Shutdown stops accepting new connections. Sessions end when the context
// passed to Run is cancelled.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		_ = s.listener.Close()
	}
}

// Addr blocks until the listener is bound or ctx is done and returns the
// bound address.
func (s *Server) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()

	select {
	case <-l.Ready():
		return l.Addr(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// Config returns the server's configuration.
func (s *Server) Config() *config.Config {
	return s.cfg
}

func (s *Server) defaultHandler(ctx context.Context, conn *Connection) {
	logger := logging.FromContext(ctx)
	logger.Info("no session handler configured, closing connection")
}
