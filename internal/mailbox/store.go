// Package mailbox stores accepted messages in flat, append-only files, one
// per registered address, under a single owner-only directory.
package mailbox

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/infodancer/flatmail/internal/address"
	"github.com/infodancer/flatmail/internal/metrics"
)

// DirMode is the permission applied to a newly created mailbox directory.
const DirMode fs.FileMode = 0o700

// FileMode is the permission applied to a newly created mailbox file.
const FileMode fs.FileMode = 0o600

var (
	// ErrEmailDoesNotExist is returned by Append for an unregistered address.
	ErrEmailDoesNotExist = errors.New("email does not exist")

	// ErrNotDirectory is returned by Open when the mailbox path is not a directory.
	ErrNotDirectory = errors.New("not a directory")

	// ErrNoAccess is returned by Open when the directory is not readable and writable.
	ErrNoAccess = errors.New("directory is not readable and writable")
)

// StartupError reports a mailbox directory or registration problem that
// prevents the server from starting.
type StartupError struct {
	Path string
	Err  error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("mailbox directory %s: %v", e.Path, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// Store owns the registered address set and the mailbox directory.
// The address set and lock table are fixed at Open and only read afterwards.
type Store struct {
	dir       string
	addresses []string
	locks     map[string]*sync.Mutex
	logger    *slog.Logger
	collector metrics.Collector
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for append diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCollector sets the metrics collector notified on every append.
func WithCollector(c metrics.Collector) Option {
	return func(s *Store) {
		if c != nil {
			s.collector = c
		}
	}
}

// Open prepares dir as the mailbox directory and registers addresses.
// A missing directory is created with DirMode. An existing path must be a
// directory the process can read and write; it is otherwise left untouched,
// so calling Open again with the same arguments changes nothing on disk.
// Mailbox files are not created until the first Append.
func Open(dir string, addresses []string, opts ...Option) (*Store, error) {
	if err := prepareDir(dir); err != nil {
		return nil, err
	}

	s := &Store{
		dir:       dir,
		locks:     make(map[string]*sync.Mutex, len(addresses)),
		logger:    slog.Default(),
		collector: &metrics.NoopCollector{},
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, a := range addresses {
		// Registered addresses become file names, so they must never carry
		// path separators.
		if _, err := address.Parse(a); err != nil {
			return nil, &StartupError{Path: dir, Err: err}
		}
		if _, dup := s.locks[a]; dup {
			continue
		}
		s.locks[a] = &sync.Mutex{}
		s.addresses = append(s.addresses, a)
	}

	s.logger.Debug("mailbox store opened",
		slog.String("dir", dir),
		slog.Int("addresses", len(s.addresses)))

	return s, nil
}

func prepareDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(dir, DirMode); err != nil {
			return &StartupError{Path: dir, Err: err}
		}
		// MkdirAll is subject to the umask; set the mode explicitly.
		if err := os.Chmod(dir, DirMode); err != nil {
			return &StartupError{Path: dir, Err: err}
		}
		return nil
	case err != nil:
		return &StartupError{Path: dir, Err: err}
	case !info.IsDir():
		return &StartupError{Path: dir, Err: ErrNotDirectory}
	}

	if err := checkAccess(dir); err != nil {
		return &StartupError{Path: dir, Err: fmt.Errorf("%w: %v", ErrNoAccess, err)}
	}
	return nil
}

// Dir returns the mailbox directory.
func (s *Store) Dir() string {
	return s.dir
}

// Addresses returns a copy of the registered addresses in registration order.
func (s *Store) Addresses() []string {
	out := make([]string, len(s.addresses))
	copy(out, s.addresses)
	return out
}

// Exists reports whether addr is registered. Matching is exact.
func (s *Store) Exists(addr string) bool {
	_, ok := s.locks[addr]
	return ok
}

// Path returns the mailbox file for addr.
func (s *Store) Path(addr string) string {
	return filepath.Join(s.dir, addr)
}

// Append adds body to the end of the mailbox for addr, creating the file if
// needed. No framing is added between messages. Appends to the same address
// are serialized; an unregistered address fails with ErrEmailDoesNotExist
// before any file is touched.
func (s *Store) Append(addr string, body []byte) error {
	mu, ok := s.locks[addr]
	if !ok {
		s.collector.MailboxAppend("unknown_address")
		return ErrEmailDoesNotExist
	}

	mu.Lock()
	defer mu.Unlock()

	if err := s.appendFile(s.Path(addr), body); err != nil {
		s.collector.MailboxAppend("error")
		s.logger.Error("mailbox append failed",
			slog.String("address", addr),
			slog.String("error", err.Error()))
		return fmt.Errorf("appending to mailbox %s: %w", addr, err)
	}

	s.collector.MailboxAppend("success")
	s.logger.Debug("mailbox append",
		slog.String("address", addr),
		slog.Int("size", len(body)))
	return nil
}

func (s *Store) appendFile(path string, body []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, FileMode)
	if err != nil {
		return err
	}

	if _, err := f.Write(body); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
