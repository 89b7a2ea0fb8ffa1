package smtp

import (
	"context"
	"testing"

	"github.com/infodancer/flatmail/internal/address"
)

// registrySet is an in-memory Registry.
type registrySet map[string]bool

func (r registrySet) Exists(addr string) bool { return r[addr] }

func mustParse(t *testing.T, s string) address.Address {
	t.Helper()
	a, err := address.Parse(s)
	if err != nil {
		t.Fatalf("address.Parse(%q): %v", s, err)
	}
	return a
}

func newTestMachine(registered ...string) *Machine {
	set := registrySet{}
	for _, a := range registered {
		set[a] = true
	}
	return NewMachine(NewCommandRegistry(set), nil)
}

func greetedSession() Session {
	return Session{Domain: "example.com"}
}

func senderSession(t *testing.T) Session {
	s := greetedSession()
	s.Sender = mustParse(t, "user@example.com")
	return s
}

func recipientSession(t *testing.T) Session {
	s := senderSession(t)
	s.Recipient = mustParse(t, "reg@example.com")
	return s
}

func TestSessionPredicates(t *testing.T) {
	var s Session
	if s.HasDomain() || s.HasSender() || s.HasRecipient() {
		t.Errorf("zero session should be empty: %+v", s)
	}

	s = recipientSession(t)
	if !s.HasDomain() || !s.HasSender() || !s.HasRecipient() {
		t.Errorf("full session should report all parts: %+v", s)
	}

	if r := s.Reset(); r != (Session{}) {
		t.Errorf("Reset() = %+v, want empty", r)
	}
}

func TestHELOCommand(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine()

	t.Run("valid HELO", func(t *testing.T) {
		s, res := m.Execute(ctx, Session{}, "HELO", "example.com")
		if res.Code != OK {
			t.Errorf("Code = %d, want 250", res.Code)
		}
		if s.Domain != "example.com" {
			t.Errorf("domain = %q, want example.com", s.Domain)
		}
	})

	t.Run("HELO clears envelope", func(t *testing.T) {
		s, res := m.Execute(ctx, recipientSession(t), "HELO", "other.org")
		if res.Code != OK {
			t.Errorf("Code = %d, want 250", res.Code)
		}
		if s.HasSender() || s.HasRecipient() {
			t.Errorf("envelope not cleared: %+v", s)
		}
		if s.Domain != "other.org" {
			t.Errorf("domain = %q, want other.org", s.Domain)
		}
	})

	invalid := []string{"", "user@example.com", "bad domain", "ex_ample.com"}
	for _, arg := range invalid {
		t.Run("invalid "+arg, func(t *testing.T) {
			before := greetedSession()
			s, res := m.Execute(ctx, before, "HELO", arg)
			if res.Code != InvalidParameter {
				t.Errorf("Code = %d, want 501", res.Code)
			}
			if s != before {
				t.Errorf("session changed on failure: %+v", s)
			}
		})
	}
}

func TestMAILCommand(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine()

	tests := []struct {
		name    string
		session Session
		arg     string
		want    Code
		sender  string
	}{
		{"before HELO", Session{}, "FROM:<user@example.com>", BadSequence, ""},
		{"bracketed", greetedSession(), "FROM:<user@example.com>", OK, "user@example.com"},
		{"unbracketed", greetedSession(), "FROM:user@example.com", OK, "user@example.com"},
		{"space after colon", greetedSession(), "FROM: <user@example.com>", OK, "user@example.com"},
		{"lowercase prefix", greetedSession(), "from:<user@example.com>", OK, "user@example.com"},
		{"missing prefix", greetedSession(), "<user@example.com>", SyntaxError, ""},
		{"wrong prefix", greetedSession(), "TO:<user@example.com>", SyntaxError, ""},
		{"trailing parameter", greetedSession(), "FROM:<user@example.com> SIZE=10", SyntaxError, ""},
		{"invalid address", greetedSession(), "FROM:<User@example.com>", InvalidParameter, ""},
		{"empty address", greetedSession(), "FROM:<>", InvalidParameter, ""},
		{"domain mismatch", greetedSession(), "FROM:<user@other.com>", InvalidParameter, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, res := m.Execute(ctx, tt.session, "MAIL", tt.arg)
			if res.Code != tt.want {
				t.Errorf("Code = %d, want %d", res.Code, tt.want)
			}
			if tt.want == OK {
				if s.Sender.String() != tt.sender {
					t.Errorf("sender = %q, want %q", s.Sender, tt.sender)
				}
			} else if s != tt.session {
				t.Errorf("session changed on failure: %+v", s)
			}
		})
	}

	t.Run("domain match ignores case", func(t *testing.T) {
		s, res := m.Execute(ctx, Session{Domain: "EXAMPLE.COM"}, "MAIL", "FROM:<user@example.com>")
		if res.Code != OK || !s.HasSender() {
			t.Errorf("Code = %d, sender = %q; want 250 with sender", res.Code, s.Sender)
		}
	})

	t.Run("MAIL clears recipient", func(t *testing.T) {
		s, res := m.Execute(ctx, recipientSession(t), "MAIL", "FROM:<other@example.com>")
		if res.Code != OK {
			t.Fatalf("Code = %d, want 250", res.Code)
		}
		if s.HasRecipient() {
			t.Errorf("recipient not cleared: %+v", s)
		}
		if s.Sender.String() != "other@example.com" {
			t.Errorf("sender = %q", s.Sender)
		}
	})
}

func TestRCPTCommand(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine("reg@example.com")

	t.Run("before MAIL", func(t *testing.T) {
		_, res := m.Execute(ctx, greetedSession(), "RCPT", "TO:<reg@example.com>")
		if res.Code != BadSequence {
			t.Errorf("Code = %d, want 503", res.Code)
		}
	})

	t.Run("registered", func(t *testing.T) {
		s, res := m.Execute(ctx, senderSession(t), "RCPT", "TO:<reg@example.com>")
		if res.Code != OK {
			t.Errorf("Code = %d, want 250", res.Code)
		}
		if s.Recipient.String() != "reg@example.com" {
			t.Errorf("recipient = %q", s.Recipient)
		}
	})

	t.Run("unbracketed", func(t *testing.T) {
		_, res := m.Execute(ctx, senderSession(t), "RCPT", "to: reg@example.com")
		if res.Code != OK {
			t.Errorf("Code = %d, want 250", res.Code)
		}
	})

	t.Run("not registered", func(t *testing.T) {
		before := senderSession(t)
		s, res := m.Execute(ctx, before, "RCPT", "TO:<nobody@example.com>")
		if res.Code != AddressUnknown {
			t.Errorf("Code = %d, want 550", res.Code)
		}
		if s != before {
			t.Errorf("session changed on failure: %+v", s)
		}
	})

	t.Run("bad prefix", func(t *testing.T) {
		_, res := m.Execute(ctx, senderSession(t), "RCPT", "FROM:<reg@example.com>")
		if res.Code != SyntaxError {
			t.Errorf("Code = %d, want 500", res.Code)
		}
	})

	t.Run("invalid syntax is reported after membership", func(t *testing.T) {
		// Only reachable when the registry holds an address Parse rejects.
		m := newTestMachine("Bad.Address@example.com")
		_, res := m.Execute(ctx, senderSession(t), "RCPT", "TO:<Bad.Address@example.com>")
		if res.Code != InvalidParameter {
			t.Errorf("Code = %d, want 501", res.Code)
		}

		_, res = m.Execute(ctx, senderSession(t), "RCPT", "TO:<Also.Bad@example.com>")
		if res.Code != AddressUnknown {
			t.Errorf("Code = %d, want 550 for unregistered invalid address", res.Code)
		}
	})

	t.Run("replaces recipient", func(t *testing.T) {
		m := newTestMachine("reg@example.com", "two@example.com")
		s, _ := m.Execute(ctx, recipientSession(t), "RCPT", "TO:<two@example.com>")
		if s.Recipient.String() != "two@example.com" {
			t.Errorf("recipient = %q, want two@example.com", s.Recipient)
		}
	})
}

func TestDATACommand(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine()

	_, res := m.Execute(ctx, senderSession(t), "DATA", "")
	if res.Code != BadSequence || res.Intake {
		t.Errorf("DATA without recipient = %+v, want 503", res)
	}

	s, res := m.Execute(ctx, recipientSession(t), "DATA", "")
	if res.Code != StartMailInput || !res.Intake {
		t.Errorf("DATA = %+v, want 354 with intake", res)
	}
	if s != recipientSession(t) {
		t.Errorf("DATA changed the envelope: %+v", s)
	}
}

func TestRSETCommand(t *testing.T) {
	s, res := newTestMachine().Execute(context.Background(), recipientSession(t), "RSET", "")
	if res.Code != OK {
		t.Errorf("Code = %d, want 250", res.Code)
	}
	if s != (Session{}) {
		t.Errorf("RSET left state behind: %+v", s)
	}
}

func TestNOOPCommand(t *testing.T) {
	before := recipientSession(t)
	s, res := newTestMachine().Execute(context.Background(), before, "NOOP", "anything")
	if res.Code != OK {
		t.Errorf("Code = %d, want 250", res.Code)
	}
	if s != before {
		t.Errorf("NOOP changed the session: %+v", s)
	}
}

func TestQUITCommand(t *testing.T) {
	s, res := newTestMachine().Execute(context.Background(), recipientSession(t), "QUIT", "")
	if res.Code != Closing || !res.Close {
		t.Errorf("QUIT = %+v, want 221 with close", res)
	}
	if s != (Session{}) {
		t.Errorf("QUIT left state behind: %+v", s)
	}
}

func TestUnsupportedCommands(t *testing.T) {
	m := newTestMachine()
	for _, verb := range []string{"SEND", "SOML", "SAML", "VRFY", "EXPN", "HELP", "TURN"} {
		t.Run(verb, func(t *testing.T) {
			before := senderSession(t)
			s, res := m.Execute(context.Background(), before, verb, "")
			if res.Code != NotImplemented {
				t.Errorf("Code = %d, want 502", res.Code)
			}
			if s != before {
				t.Errorf("session changed: %+v", s)
			}
		})
	}
}

func TestUnknownCommand(t *testing.T) {
	m := newTestMachine()
	for _, verb := range []string{"EHLO", "AUTH", "XXXX", "STAR"} {
		t.Run(verb, func(t *testing.T) {
			_, res := m.Execute(context.Background(), Session{}, verb, "")
			if res.Code != SyntaxError {
				t.Errorf("Code = %d, want 500", res.Code)
			}
		})
	}
}

func TestFullConversation(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine("reg@example.com")

	steps := []struct {
		verb string
		arg  string
		want Code
	}{
		{"DATA", "", BadSequence},
		{"HELO", "example.com", OK},
		{"RCPT", "TO:<reg@example.com>", BadSequence},
		{"MAIL", "FROM:<user@example.com>", OK},
		{"DATA", "", BadSequence},
		{"RCPT", "TO:<reg@example.com>", OK},
		{"DATA", "", StartMailInput},
		{"RSET", "", OK},
		{"MAIL", "FROM:<user@example.com>", BadSequence},
		{"QUIT", "", Closing},
	}

	var s Session
	for i, step := range steps {
		var res Result
		s, res = m.Execute(ctx, s, step.verb, step.arg)
		if res.Code != step.want {
			t.Fatalf("step %d %s %s: Code = %d, want %d", i, step.verb, step.arg, res.Code, step.want)
		}
	}
}
