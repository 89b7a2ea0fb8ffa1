// Package testutil provides test helpers for mailbox fixtures.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// DefaultAddresses are the registered addresses used by most tests.
var DefaultAddresses = []string{"reg@example.com", "other@example.org"}

// Fixture is an on-disk layout for a server under test:
//
//	<Base>/
//	├── addresses.txt
//	├── flatmail.toml   (only when Config was given)
//	└── mailboxes/
//	    └── <address>   (created by the server on first delivery)
type Fixture struct {
	Base          string
	AddressesPath string
	MailboxDir    string
	ConfigPath    string
}

// SetupFixture writes an address list holding addresses, one per line, and
// reserves a mailbox directory path. The mailbox directory itself is not
// created so tests can observe the server creating it.
func SetupFixture(t *testing.T, addresses ...string) *Fixture {
	t.Helper()

	base := t.TempDir()
	f := &Fixture{
		Base:          base,
		AddressesPath: filepath.Join(base, "addresses.txt"),
		MailboxDir:    filepath.Join(base, "mailboxes"),
	}

	content := ""
	if len(addresses) > 0 {
		content = strings.Join(addresses, "\n") + "\n"
	}
	WriteFile(t, f.AddressesPath, content)

	return f
}

// SetupDefaultFixture is SetupFixture with DefaultAddresses.
func SetupDefaultFixture(t *testing.T) *Fixture {
	t.Helper()
	return SetupFixture(t, DefaultAddresses...)
}

// WithConfig writes a TOML configuration file into the fixture.
func (f *Fixture) WithConfig(t *testing.T, content string) *Fixture {
	t.Helper()
	f.ConfigPath = filepath.Join(f.Base, "flatmail.toml")
	WriteFile(t, f.ConfigPath, content)
	return f
}

// Mailbox returns the contents of the mailbox file for addr, or "" if the
// file does not exist yet.
func (f *Fixture) Mailbox(t *testing.T, addr string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.MailboxDir, addr))
	if os.IsNotExist(err) {
		return ""
	}
	if err != nil {
		t.Fatalf("reading mailbox %s: %v", addr, err)
	}
	return string(data)
}

// WriteFile writes content to path with owner-only permissions.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}
