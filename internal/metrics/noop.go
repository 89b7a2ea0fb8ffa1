package metrics

// NoopCollector is a no-op implementation of the Collector interface.
type NoopCollector struct{}

// ConnectionOpened is a no-op.
func (n *NoopCollector) ConnectionOpened() {}

// ConnectionClosed is a no-op.
func (n *NoopCollector) ConnectionClosed() {}

// CommandProcessed is a no-op.
func (n *NoopCollector) CommandProcessed(verb string) {}

// ReplySent is a no-op.
func (n *NoopCollector) ReplySent(code int) {}

// MessageAccepted is a no-op.
func (n *NoopCollector) MessageAccepted(recipientDomain string, sizeBytes int64) {}

// MessageRejected is a no-op.
func (n *NoopCollector) MessageRejected(reason string) {}

// MailboxAppend is a no-op.
func (n *NoopCollector) MailboxAppend(result string) {}
