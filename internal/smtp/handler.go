package smtp

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/infodancer/flatmail/internal/logging"
	"github.com/infodancer/flatmail/internal/mailbox"
	"github.com/infodancer/flatmail/internal/metrics"
	"github.com/infodancer/flatmail/internal/server"
)

// Mailboxes is the mailbox store as seen by the protocol handler.
type Mailboxes interface {
	Registry
	Append(addr string, body []byte) error
}

// HandlerConfig configures the protocol handler.
type HandlerConfig struct {
	Mailboxes     Mailboxes
	Collector     metrics.Collector // nil for no-op
	MaxLineLength int               // 0 for DefaultMaxLineLength
}

// Handler returns a ConnectionHandler that runs one mail session per
// connection. When the connection context is cancelled the client is sent
// 421 and the connection is closed.
func Handler(cfg HandlerConfig) server.ConnectionHandler {
	collector := cfg.Collector
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}
	machine := NewMachine(NewCommandRegistry(cfg.Mailboxes), collector)

	return func(ctx context.Context, conn *server.Connection) {
		collector.ConnectionOpened()
		defer collector.ConnectionClosed()

		c := &conversation{
			conn:      conn,
			framer:    NewFramer(conn.Reader(), conn, cfg.MaxLineLength),
			machine:   machine,
			mailboxes: cfg.Mailboxes,
			collector: collector,
			logger:    logging.FromContext(ctx),
		}

		shutdownDone := make(chan struct{})
		stop := context.AfterFunc(ctx, func() {
			defer close(shutdownDone)
			c.logger.Info("server shutting down, closing connection")
			c.reply(ServiceNotAvailable)
			_ = conn.Close()
		})
		defer func() {
			if !stop() {
				<-shutdownDone
			}
		}()

		c.run(ctx)
	}
}

// conversation is the state of one connection's session.
type conversation struct {
	conn      *server.Connection
	framer    *Framer
	machine   *Machine
	mailboxes Mailboxes
	collector metrics.Collector
	logger    *slog.Logger
	session   Session
}

func (c *conversation) run(ctx context.Context) {
	if err := c.reply(ConnectionEstablished); err != nil {
		return
	}

	for ctx.Err() == nil {
		verb, err := c.framer.ReadCommand()
		if err != nil {
			if errors.Is(err, ErrCommandSyntax) {
				// No reply is sent for a verb cut short by a line terminator.
				c.logger.Warn("malformed command verb, closing connection",
					slog.String("verb", verb))
				return
			}
			c.logDisconnect(err)
			return
		}

		arg, err := c.framer.ReadLine()
		if err != nil {
			if !errors.Is(err, ErrSyntax) {
				c.logDisconnect(err)
				return
			}
			c.logger.Debug("rejecting command line",
				slog.String("verb", verb),
				slog.String("error", err.Error()))
			if err := c.framer.Discard(); err != nil {
				c.logDisconnect(err)
				return
			}
			if err := c.reply(SyntaxError); err != nil {
				return
			}
			c.touch()
			continue
		}
		arg = strings.TrimPrefix(arg, " ")

		var result Result
		c.session, result = c.machine.Execute(ctx, c.session, verb, arg)
		c.logger.Debug("command processed",
			slog.String("verb", verb),
			slog.Int("code", int(result.Code)))

		if err := c.reply(result.Code); err != nil {
			return
		}
		if result.Close {
			return
		}
		c.touch()

		if result.Intake {
			if err := c.receive(); err != nil {
				c.logDisconnect(err)
				return
			}
			c.touch()
		}
	}
}

// receive reads a message body up to the terminating "." line and stores
// it for the session recipient. It returns an error only when the client
// went away, in which case nothing has been stored.
func (c *conversation) receive() error {
	logger := logging.WithMessage(c.logger, uuid.NewString())
	logger.Debug("receiving message",
		slog.String("sender", c.session.Sender.String()),
		slog.String("recipient", c.session.Recipient.String()))

	var body bytes.Buffer
	for {
		line, err := c.framer.ReadLine()
		if err != nil {
			if !errors.Is(err, ErrSyntax) {
				return err
			}
			logger.Debug("rejecting body line", slog.String("error", err.Error()))
			if err := c.framer.Discard(); err != nil {
				return err
			}
			if err := c.reply(SyntaxError); err != nil {
				return err
			}
			continue
		}
		c.touch()

		if line == "." {
			break
		}

		// The offending line is dropped and intake carries on.
		if !isASCII(line) {
			logger.Warn("non-ASCII byte in message body")
			if err := c.reply(LocalProcessingError); err != nil {
				return err
			}
			continue
		}

		body.WriteString(line)
		body.WriteByte('\n')
	}

	return c.store(logger, body.Bytes())
}

func (c *conversation) store(logger *slog.Logger, body []byte) error {
	recipient := c.session.Recipient

	err := c.mailboxes.Append(recipient.String(), body)
	switch {
	case err == nil:
		c.collector.MessageAccepted(recipient.Domain, int64(len(body)))
		logger.Info("message stored",
			slog.String("recipient", recipient.String()),
			slog.Int("size", len(body)))
		return c.reply(OK)
	case errors.Is(err, mailbox.ErrEmailDoesNotExist):
		c.collector.MessageRejected("unknown_address")
		logger.Warn("recipient mailbox vanished",
			slog.String("recipient", recipient.String()))
		return c.reply(AddressUnknown)
	default:
		c.collector.MessageRejected("store_error")
		logger.Error("storing message failed",
			slog.String("recipient", recipient.String()),
			slog.String("error", err.Error()))
		return c.reply(LocalProcessingError)
	}
}

// reply sends code to the client.
func (c *conversation) reply(code Code) error {
	if err := c.framer.WriteReply(code); err != nil {
		c.logger.Debug("failed to write reply",
			slog.Int("code", int(code)),
			slog.String("error", err.Error()))
		return err
	}
	c.collector.ReplySent(int(code))
	return nil
}

// touch pushes the idle deadline forward.
func (c *conversation) touch() {
	if err := c.conn.ResetIdleTimeout(); err != nil {
		c.logger.Debug("failed to reset idle timeout", slog.String("error", err.Error()))
	}
}

func (c *conversation) logDisconnect(err error) {
	if err == ErrDisconnect {
		c.logger.Info("client disconnected")
		return
	}
	c.logger.Info("client disconnected", slog.String("error", err.Error()))
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
