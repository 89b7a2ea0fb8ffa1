package testutil

import (
	"errors"
	"sync"
)

// ErrMockAppend is returned by MockMailboxes when ShouldError is set and no
// ErrorToReturn was given.
var ErrMockAppend = errors.New("mock mailbox append error")

// MockMailboxes is an in-memory mailbox store for protocol tests.
type MockMailboxes struct {
	mu sync.Mutex

	// Registered is the set of addresses that exist. A nil map accepts
	// every address.
	Registered map[string]bool
	// ShouldError, if true, causes Append to fail after the membership check.
	ShouldError bool
	// ErrorToReturn is the error to return when ShouldError is true.
	ErrorToReturn error

	boxes map[string][]byte
	calls int
}

// NewMockMailboxes returns a MockMailboxes with addrs registered.
func NewMockMailboxes(addrs ...string) *MockMailboxes {
	m := &MockMailboxes{Registered: make(map[string]bool, len(addrs))}
	for _, a := range addrs {
		m.Registered[a] = true
	}
	return m
}

// Exists reports whether addr is registered.
func (m *MockMailboxes) Exists(addr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Registered == nil || m.Registered[addr]
}

// Append records body for addr.
func (m *MockMailboxes) Append(addr string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.ShouldError {
		if m.ErrorToReturn != nil {
			return m.ErrorToReturn
		}
		return ErrMockAppend
	}

	if m.boxes == nil {
		m.boxes = make(map[string][]byte)
	}
	m.boxes[addr] = append(m.boxes[addr], body...)
	return nil
}

// Contents returns everything appended for addr so far.
func (m *MockMailboxes) Contents(addr string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.boxes[addr])
}

// Calls returns how many times Append was called.
func (m *MockMailboxes) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Reset clears recorded mail and error settings.
func (m *MockMailboxes) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boxes = nil
	m.calls = 0
	m.ShouldError = false
	m.ErrorToReturn = nil
}
