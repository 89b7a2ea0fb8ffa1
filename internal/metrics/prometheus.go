package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements the Collector interface using Prometheus metrics.
type PrometheusCollector struct {
	connectionsTotal  prometheus.Counter
	connectionsActive prometheus.Gauge

	commandsTotal *prometheus.CounterVec
	repliesTotal  *prometheus.CounterVec

	messagesAcceptedTotal *prometheus.CounterVec
	messagesRejectedTotal *prometheus.CounterVec
	messagesSizeBytes     prometheus.Histogram

	mailboxAppendsTotal *prometheus.CounterVec
}

// NewPrometheusCollector creates a new PrometheusCollector with all metrics registered.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flatmail_connections_total",
			Help: "Total number of client connections accepted.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flatmail_connections_active",
			Help: "Number of client connections currently being served.",
		}),

		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flatmail_commands_total",
			Help: "Total number of commands processed, by verb.",
		}, []string{"verb"}),
		repliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flatmail_replies_total",
			Help: "Total number of status replies sent, by code.",
		}, []string{"code"}),

		messagesAcceptedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flatmail_messages_accepted_total",
			Help: "Total number of messages appended to a mailbox.",
		}, []string{"recipient_domain"}),
		messagesRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flatmail_messages_rejected_total",
			Help: "Total number of messages or message lines rejected.",
		}, []string{"reason"}),
		messagesSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flatmail_messages_size_bytes",
			Help:    "Size of accepted message bodies in bytes.",
			Buckets: []float64{64, 256, 1024, 4096, 16384, 65536, 262144, 1048576},
		}),

		mailboxAppendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flatmail_mailbox_appends_total",
			Help: "Total number of mailbox append attempts, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.connectionsTotal,
		c.connectionsActive,
		c.commandsTotal,
		c.repliesTotal,
		c.messagesAcceptedTotal,
		c.messagesRejectedTotal,
		c.messagesSizeBytes,
		c.mailboxAppendsTotal,
	)

	return c
}

// ConnectionOpened increments the connection counter and active gauge.
func (c *PrometheusCollector) ConnectionOpened() {
	c.connectionsTotal.Inc()
	c.connectionsActive.Inc()
}

// ConnectionClosed decrements the active connections gauge.
func (c *PrometheusCollector) ConnectionClosed() {
	c.connectionsActive.Dec()
}

// CommandProcessed increments the command counter.
func (c *PrometheusCollector) CommandProcessed(verb string) {
	c.commandsTotal.WithLabelValues(verb).Inc()
}

// ReplySent increments the reply counter for code.
func (c *PrometheusCollector) ReplySent(code int) {
	c.repliesTotal.WithLabelValues(strconv.Itoa(code)).Inc()
}

// MessageAccepted increments the accepted counter and observes message size.
func (c *PrometheusCollector) MessageAccepted(recipientDomain string, sizeBytes int64) {
	c.messagesAcceptedTotal.WithLabelValues(recipientDomain).Inc()
	c.messagesSizeBytes.Observe(float64(sizeBytes))
}

// MessageRejected increments the rejected counter.
func (c *PrometheusCollector) MessageRejected(reason string) {
	c.messagesRejectedTotal.WithLabelValues(reason).Inc()
}

// MailboxAppend increments the mailbox append counter.
func (c *PrometheusCollector) MailboxAppend(result string) {
	c.mailboxAppendsTotal.WithLabelValues(result).Inc()
}
