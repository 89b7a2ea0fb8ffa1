package smtp

import (
	"context"
	"regexp"
	"strings"

	"github.com/infodancer/flatmail/internal/address"
	"github.com/infodancer/flatmail/internal/metrics"
)

// Session is the envelope state of one connection. It is passed into each
// command by value and the updated copy is handed back.
//
// A sender is only ever set after a domain, and a recipient after a sender.
type Session struct {
	Domain    string
	Sender    address.Address
	Recipient address.Address
}

// HasDomain reports whether HELO has succeeded.
func (s Session) HasDomain() bool { return s.Domain != "" }

// HasSender reports whether MAIL has succeeded.
func (s Session) HasSender() bool { return !s.Sender.IsZero() }

// HasRecipient reports whether RCPT has succeeded.
func (s Session) HasRecipient() bool { return !s.Recipient.IsZero() }

// Reset returns the empty session.
func (s Session) Reset() Session { return Session{} }

// Result is the outcome of a single command.
type Result struct {
	Code Code
	// Intake is set when the client should now send a message body.
	Intake bool
	// Close is set when the connection should be closed after the reply.
	Close bool
}

// Command is one protocol verb.
type Command interface {
	Execute(ctx context.Context, s Session, arg string) (Session, Result)
}

// Registry answers whether an address has a mailbox.
type Registry interface {
	Exists(addr string) bool
}

// CommandRegistry maps 4-byte verbs to their commands.
type CommandRegistry struct {
	commands map[string]Command
}

// NewCommandRegistry creates a registry holding every supported verb.
// Recipients are checked against registered.
func NewCommandRegistry(registered Registry) *CommandRegistry {
	r := &CommandRegistry{
		commands: map[string]Command{
			"HELO": heloCommand{},
			"MAIL": mailCommand{},
			"RCPT": rcptCommand{registered: registered},
			"DATA": dataCommand{},
			"RSET": rsetCommand{},
			"NOOP": noopCommand{},
			"QUIT": quitCommand{},
		},
	}

	// Recognized but deliberately unsupported
	for _, verb := range []string{"SEND", "SOML", "SAML", "VRFY", "EXPN", "HELP", "TURN"} {
		r.commands[verb] = notImplementedCommand{}
	}

	return r
}

// Lookup returns the command for verb. verb must already be upper-cased.
func (r *CommandRegistry) Lookup(verb string) (Command, bool) {
	cmd, ok := r.commands[verb]
	return cmd, ok
}

// Machine applies commands to sessions and records what it did.
type Machine struct {
	registry  *CommandRegistry
	collector metrics.Collector
}

// NewMachine creates a Machine. A nil collector disables metrics.
func NewMachine(registry *CommandRegistry, collector metrics.Collector) *Machine {
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}
	return &Machine{registry: registry, collector: collector}
}

// Execute runs verb against s. Unknown verbs get a syntax error and leave s
// untouched.
func (m *Machine) Execute(ctx context.Context, s Session, verb, arg string) (Session, Result) {
	cmd, ok := m.registry.Lookup(verb)
	if !ok {
		m.collector.CommandProcessed("UNKNOWN")
		return s, Result{Code: SyntaxError}
	}

	m.collector.CommandProcessed(verb)
	return cmd.Execute(ctx, s, arg)
}

// Envelope argument patterns. The angle brackets are optional.
var (
	fromPattern = regexp.MustCompile(`(?i)^FROM:\s*(?:<([^<>]*)>|([^<>\s]+))$`)
	toPattern   = regexp.MustCompile(`(?i)^TO:\s*(?:<([^<>]*)>|([^<>\s]+))$`)
)

// envelopeAddress extracts the address from a FROM: or TO: argument.
func envelopeAddress(pattern *regexp.Regexp, arg string) (string, bool) {
	m := pattern.FindStringSubmatch(arg)
	if m == nil {
		return "", false
	}
	if m[1] != "" {
		return m[1], true
	}
	return m[2], true
}

type heloCommand struct{}

func (heloCommand) Execute(ctx context.Context, s Session, arg string) (Session, Result) {
	if !address.ValidDomain(arg) {
		return s, Result{Code: InvalidParameter}
	}
	return Session{Domain: arg}, Result{Code: OK}
}

type mailCommand struct{}

func (mailCommand) Execute(ctx context.Context, s Session, arg string) (Session, Result) {
	if !s.HasDomain() {
		return s, Result{Code: BadSequence}
	}

	raw, ok := envelopeAddress(fromPattern, arg)
	if !ok {
		return s, Result{Code: SyntaxError}
	}

	sender, err := address.Parse(raw)
	if err != nil {
		return s, Result{Code: InvalidParameter}
	}

	// The sender must belong to the domain announced with HELO.
	if !strings.EqualFold(sender.Domain, s.Domain) {
		return s, Result{Code: InvalidParameter}
	}

	s.Sender = sender
	s.Recipient = address.Address{}
	return s, Result{Code: OK}
}

type rcptCommand struct {
	registered Registry
}

func (c rcptCommand) Execute(ctx context.Context, s Session, arg string) (Session, Result) {
	if !s.HasSender() {
		return s, Result{Code: BadSequence}
	}

	raw, ok := envelopeAddress(toPattern, arg)
	if !ok {
		return s, Result{Code: SyntaxError}
	}

	// Membership is checked before syntax.
	if !c.registered.Exists(raw) {
		return s, Result{Code: AddressUnknown}
	}

	recipient, err := address.Parse(raw)
	if err != nil {
		return s, Result{Code: InvalidParameter}
	}

	s.Recipient = recipient
	return s, Result{Code: OK}
}

type dataCommand struct{}

func (dataCommand) Execute(ctx context.Context, s Session, arg string) (Session, Result) {
	if !s.HasRecipient() {
		return s, Result{Code: BadSequence}
	}
	return s, Result{Code: StartMailInput, Intake: true}
}

type rsetCommand struct{}

func (rsetCommand) Execute(ctx context.Context, s Session, arg string) (Session, Result) {
	return s.Reset(), Result{Code: OK}
}

type noopCommand struct{}

func (noopCommand) Execute(ctx context.Context, s Session, arg string) (Session, Result) {
	return s, Result{Code: OK}
}

type quitCommand struct{}

func (quitCommand) Execute(ctx context.Context, s Session, arg string) (Session, Result) {
	return s.Reset(), Result{Code: Closing, Close: true}
}

type notImplementedCommand struct{}

func (notImplementedCommand) Execute(ctx context.Context, s Session, arg string) (Session, Result) {
	return s, Result{Code: NotImplemented}
}
