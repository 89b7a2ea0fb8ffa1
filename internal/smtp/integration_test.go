package smtp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/infodancer/flatmail/internal/config"
	"github.com/infodancer/flatmail/internal/mailbox"
	"github.com/infodancer/flatmail/internal/metrics"
	"github.com/infodancer/flatmail/internal/server"
)

type testServer struct {
	addr   string
	store  *mailbox.Store
	cancel context.CancelFunc
	done   chan error
	once   sync.Once
}

// startTestServer runs a full server on a loopback port.
func startTestServer(t *testing.T, maxConns int, collector metrics.Collector, addresses ...string) *testServer {
	t.Helper()

	store, err := mailbox.Open(t.TempDir(), addresses, mailbox.WithCollector(collector))
	if err != nil {
		t.Fatalf("mailbox.Open: %v", err)
	}

	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.MaxConnections = maxConns

	srv := server.New(&cfg, slog.Default())
	srv.SetHandler(Handler(HandlerConfig{
		Mailboxes:     store,
		Collector:     collector,
		MaxLineLength: cfg.Limits.MaxLineLength,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{store: store, cancel: cancel, done: make(chan error, 1)}
	go func() { ts.done <- srv.Run(ctx) }()

	addrCtx, addrCancel := context.WithTimeout(ctx, 2*time.Second)
	defer addrCancel()
	addr, err := srv.Addr(addrCtx)
	if err != nil {
		cancel()
		t.Fatalf("server did not start: %v", err)
	}
	ts.addr = addr.String()

	t.Cleanup(ts.stop)
	return ts
}

func (ts *testServer) stop() {
	ts.once.Do(func() {
		ts.cancel()
		select {
		case <-ts.done:
		case <-time.After(2 * time.Second):
		}
	})
}

// rawClient speaks the protocol line by line.
type rawClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dialRaw(t *testing.T, addr string) *rawClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	return &rawClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *rawClient) expect(want string) {
	c.t.Helper()
	line, err := c.r.ReadString('\n')
	if err != nil {
		c.t.Fatalf("waiting for %q: %v", want, err)
	}
	if got := strings.TrimRight(line, "\r\n"); got != want {
		c.t.Fatalf("got %q, want %q", got, want)
	}
}

func (c *rawClient) send(line string) {
	c.t.Helper()
	if _, err := io.WriteString(c.conn, line+"\r\n"); err != nil {
		c.t.Fatalf("send %q: %v", line, err)
	}
}

func TestEndToEndRawSession(t *testing.T) {
	ts := startTestServer(t, 1, nil, "reg@example.com")

	c := dialRaw(t, ts.addr)
	c.expect("220 connection established")
	c.send("HELO example.com")
	c.expect("250 ok")
	c.send("MAIL FROM:<user@example.com>")
	c.expect("250 ok")
	c.send("RCPT TO:<reg@example.com>")
	c.expect("250 ok")
	c.send("DATA")
	c.expect("354 start mail input")
	c.send("hello")
	c.send(".")
	c.expect("250 ok")
	c.send("QUIT")
	c.expect("221 closing")

	if _, err := c.r.ReadByte(); !errors.Is(err, io.EOF) {
		t.Errorf("expected the server to close the connection, got %v", err)
	}

	data, err := os.ReadFile(ts.store.Path("reg@example.com"))
	if err != nil {
		t.Fatalf("reading mailbox: %v", err)
	}
	if string(data) != "hello\n" {
		t.Errorf("mailbox = %q, want %q", data, "hello\n")
	}
}

func TestEndToEndGoSMTPClient(t *testing.T) {
	ts := startTestServer(t, 1, nil, "reg@example.com")

	c, err := gosmtp.Dial(ts.addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = c.Close() }()

	// EHLO is rejected with 500 and the client falls back to HELO.
	if err := c.Hello("example.com"); err != nil {
		t.Fatalf("Hello: %v", err)
	}
	if err := c.Mail("user@example.com", nil); err != nil {
		t.Fatalf("Mail: %v", err)
	}

	err = c.Rcpt("nobody@example.com", nil)
	var smtpErr *gosmtp.SMTPError
	if !errors.As(err, &smtpErr) || smtpErr.Code != 550 {
		t.Fatalf("Rcpt unregistered: err = %v, want 550", err)
	}

	if err := c.Rcpt("reg@example.com", nil); err != nil {
		t.Fatalf("Rcpt: %v", err)
	}

	w, err := c.Data()
	if err != nil {
		t.Fatalf("Data: %v", err)
	}
	if _, err := io.WriteString(w, "Subject: hi\r\n\r\nbody text\r\n"); err != nil {
		t.Fatalf("writing body: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing body: %v", err)
	}

	if err := c.Quit(); err != nil {
		t.Fatalf("Quit: %v", err)
	}

	data, err := os.ReadFile(ts.store.Path("reg@example.com"))
	if err != nil {
		t.Fatalf("reading mailbox: %v", err)
	}
	if string(data) != "Subject: hi\n\nbody text\n" {
		t.Errorf("mailbox = %q", data)
	}
}

func TestEndToEndSequentialClients(t *testing.T) {
	ts := startTestServer(t, 1, nil)

	first := dialRaw(t, ts.addr)
	first.expect("220 connection established")

	second := dialRaw(t, ts.addr)
	_ = second.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, err := second.r.ReadByte(); err == nil {
		t.Fatal("second client was greeted while the first session was open")
	}

	first.send("QUIT")
	first.expect("221 closing")

	_ = second.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	second.expect("220 connection established")
	second.send("QUIT")
	second.expect("221 closing")
}

func TestEndToEndShutdownNotifiesClient(t *testing.T) {
	ts := startTestServer(t, 1, nil)

	c := dialRaw(t, ts.addr)
	c.expect("220 connection established")

	ts.stop()

	c.expect("421 service not available")
	if _, err := c.r.ReadByte(); err == nil {
		t.Error("expected the connection to be closed after 421")
	}
}

func TestEndToEndPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewPrometheusCollector(reg)
	ts := startTestServer(t, 1, collector, "reg@example.com")

	c := dialRaw(t, ts.addr)
	c.expect("220 connection established")
	c.send("HELO example.com")
	c.expect("250 ok")
	c.send("MAIL FROM:<user@example.com>")
	c.expect("250 ok")
	c.send("RCPT TO:<reg@example.com>")
	c.expect("250 ok")
	c.send("DATA")
	c.expect("354 start mail input")
	c.send("hello")
	c.send(".")
	c.expect("250 ok")
	c.send("QUIT")
	c.expect("221 closing")

	// The gauge drops once the session has been torn down.
	activeZero := `
# HELP flatmail_connections_active Number of client connections currently being served.
# TYPE flatmail_connections_active gauge
flatmail_connections_active 0
`
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := testutil.GatherAndCompare(reg, strings.NewReader(activeZero), "flatmail_connections_active")
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("active connections did not return to zero: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := testutil.CollectAndCount(reg, "flatmail_messages_accepted_total"); got != 1 {
		t.Errorf("accepted series = %d, want 1", got)
	}

	expected := `
# HELP flatmail_mailbox_appends_total Total number of mailbox append attempts, by result.
# TYPE flatmail_mailbox_appends_total counter
flatmail_mailbox_appends_total{result="success"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "flatmail_mailbox_appends_total"); err != nil {
		t.Errorf("unexpected mailbox metrics: %v", err)
	}
}
