// Package metrics provides interfaces and implementations for collecting
// mail server metrics. This package defines the Collector interface for
// recording metrics and the Server interface for exposing them.
package metrics

import "context"

// Collector defines the interface for recording server metrics.
type Collector interface {
	// Connection metrics
	ConnectionOpened()
	ConnectionClosed()

	// Protocol metrics. verb is the upper-cased 4-byte command.
	CommandProcessed(verb string)
	ReplySent(code int)

	// Message metrics (recipient domain first)
	MessageAccepted(recipientDomain string, sizeBytes int64)
	MessageRejected(reason string)

	// Mailbox store metrics.
	// result should be "success", "unknown_address", or "error"
	MailboxAppend(result string)
}

// Server defines the interface for a metrics HTTP server.
type Server interface {
	// Start begins serving metrics. It blocks until the context is canceled
	// or an error occurs.
	Start(ctx context.Context) error

	// Shutdown gracefully stops the metrics server.
	Shutdown(ctx context.Context) error
}
