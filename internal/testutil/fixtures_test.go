package testutil

import (
	"os"
	"strings"
	"testing"
)

func TestSetupFixture(t *testing.T) {
	f := SetupFixture(t, "a@b.com", "c@d.org")

	data, err := os.ReadFile(f.AddressesPath)
	if err != nil {
		t.Fatalf("address list not written: %v", err)
	}
	if string(data) != "a@b.com\nc@d.org\n" {
		t.Errorf("address list = %q", data)
	}

	if _, err := os.Stat(f.MailboxDir); !os.IsNotExist(err) {
		t.Errorf("mailbox directory should not exist yet, stat err = %v", err)
	}

	if got := f.Mailbox(t, "a@b.com"); got != "" {
		t.Errorf("Mailbox() before delivery = %q, want empty", got)
	}
}

func TestSetupDefaultFixtureWithConfig(t *testing.T) {
	f := SetupDefaultFixture(t).WithConfig(t, "[flatmail]\nhostname = \"x\"\n")

	data, err := os.ReadFile(f.AddressesPath)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(string(data), "\n") != len(DefaultAddresses) {
		t.Errorf("address list = %q", data)
	}

	cfg, err := os.ReadFile(f.ConfigPath)
	if err != nil || !strings.Contains(string(cfg), "[flatmail]") {
		t.Errorf("config = %q, %v", cfg, err)
	}
}

func TestMockMailboxes(t *testing.T) {
	m := NewMockMailboxes("reg@example.com")

	if !m.Exists("reg@example.com") || m.Exists("nobody@example.com") {
		t.Error("Exists() does not follow the registered set")
	}

	if err := m.Append("reg@example.com", []byte("one\n")); err != nil {
		t.Fatal(err)
	}
	if err := m.Append("reg@example.com", []byte("two\n")); err != nil {
		t.Fatal(err)
	}
	if got := m.Contents("reg@example.com"); got != "one\ntwo\n" {
		t.Errorf("Contents() = %q", got)
	}

	m.ShouldError = true
	if err := m.Append("reg@example.com", []byte("x")); err != ErrMockAppend {
		t.Errorf("Append() error = %v, want ErrMockAppend", err)
	}
	if m.Calls() != 3 {
		t.Errorf("Calls() = %d, want 3", m.Calls())
	}

	m.Reset()
	if m.Contents("reg@example.com") != "" || m.Calls() != 0 || m.ShouldError {
		t.Error("Reset() left state behind")
	}

	var open MockMailboxes
	if !open.Exists("anyone@anywhere.com") {
		t.Error("nil registered set should accept every address")
	}
}
