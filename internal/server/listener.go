package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/infodancer/flatmail/internal/logging"
)

// ConnectionHandler is called for each new connection.
// It receives the context and connection, and should run the mail session.
type ConnectionHandler func(ctx context.Context, conn *Connection)

// DefaultBacklog is the listen backlog used when none is configured.
const DefaultBacklog = 5

// Listener manages a single TCP listener for accepting mail connections.
type Listener struct {
	address string
	backlog int
	slots   int64
	sem     *semaphore.Weighted
	connCfg ConnectionConfig
	handler ConnectionHandler
	logger  *slog.Logger

	listener net.Listener
	ready    chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	closed   bool
}

// ListenerConfig holds configuration for creating a new Listener.
type ListenerConfig struct {
	Address string
	Backlog int
	// MaxConnections bounds the sessions served at once. One means a
	// connection is not accepted until the previous one has closed.
	MaxConnections int
	IdleTimeout    time.Duration
	LogTransaction bool
	Logger         *slog.Logger
	Handler        ConnectionHandler
}

// NewListener creates a new Listener with the given configuration.
func NewListener(cfg ListenerConfig) *Listener {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	backlog := cfg.Backlog
	if backlog <= 0 {
		backlog = DefaultBacklog
	}

	slots := int64(cfg.MaxConnections)
	if slots <= 0 {
		slots = 1
	}

	return &Listener{
		address: cfg.Address,
		backlog: backlog,
		slots:   slots,
		sem:     semaphore.NewWeighted(slots),
		connCfg: ConnectionConfig{
			IdleTimeout:    cfg.IdleTimeout,
			LogTransaction: cfg.LogTransaction,
			Logger:         logger,
		},
		handler: cfg.Handler,
		logger:  logging.WithListener(logger, cfg.Address),
		ready:   make(chan struct{}),
	}
}

// Start begins listening for connections.
// It blocks until the context is cancelled or an unrecoverable error occurs,
// then waits for every open session to return.
func (l *Listener) Start(ctx context.Context) error {
	ln, err := Listen(ctx, l.address, l.backlog)
	if err != nil {
		return err
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		_ = ln.Close()
		return errors.New("listener closed")
	}
	l.listener = ln
	l.mu.Unlock()
	close(l.ready)

	l.logger.Info("listener started",
		slog.String("address", ln.Addr().String()),
		slog.Int("backlog", l.backlog),
		slog.Int64("max_connections", l.slots),
	)

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		l.acceptLoop(ctx)
	}()

	select {
	case <-ctx.Done():
	case <-acceptDone:
	}

	l.logger.Info("listener shutting down")

	if err := l.Close(); err != nil {
		l.logger.Debug("error closing listener",
			slog.String("error", err.Error()),
		)
	}

	<-acceptDone
	l.wg.Wait()

	l.logger.Info("listener stopped")
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.New("accept loop stopped")
}

// acceptLoop accepts connections until the listener is closed. A slot is
// taken before each Accept so that, with a single slot, the next client is
// left in the kernel backlog until the current session has ended.
func (l *Listener) acceptLoop(ctx context.Context) {
	for {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return
		}

		conn, err := l.listener.Accept()
		if err != nil {
			l.sem.Release(1)

			l.mu.Lock()
			closed := l.closed
			l.mu.Unlock()

			if closed {
				return
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				l.logger.Warn("temporary accept error",
					slog.String("error", err.Error()),
				)
				time.Sleep(5 * time.Millisecond)
				continue
			}

			l.logger.Error("accept error",
				slog.String("error", err.Error()),
			)
			return
		}

		l.wg.Add(1)
		go l.handleConnection(ctx, conn)
	}
}

// handleConnection wraps a connection and calls the handler.
func (l *Listener) handleConnection(ctx context.Context, netConn net.Conn) {
	defer l.wg.Done()
	defer l.sem.Release(1)

	conn := NewConnection(netConn, l.connCfg)

	conn.Logger().Info("connection accepted")

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	connCtx = logging.NewContext(connCtx, conn.Logger())

	if err := conn.ResetIdleTimeout(); err != nil {
		conn.Logger().Error("failed to set initial timeout",
			slog.String("error", err.Error()),
		)
		_ = conn.Close()
		return
	}

	go conn.IdleMonitor(connCtx)

	if l.handler != nil {
		l.handler(connCtx, conn)
	}

	_ = conn.Close()
	conn.Logger().Info("connection closed")
}

// Close stops the listener from accepting new connections.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	if l.listener != nil {
		return l.listener.Close()
	}
	return nil
}

// Ready is closed once the socket is bound and listening.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

// Addr returns the bound address, or nil before Ready is closed.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

// Address returns the configured listen address.
func (l *Listener) Address() string {
	return l.address
}

// MaxConnections returns the number of sessions served at once.
func (l *Listener) MaxConnections() int {
	return int(l.slots)
}
