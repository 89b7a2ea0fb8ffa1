package smtp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DefaultMaxLineLength bounds a single line, not counting its terminator.
const DefaultMaxLineLength = 4096

// Framing errors. ErrLineTooLong, ErrBareCR and ErrCommandSyntax all
// satisfy errors.Is(err, ErrSyntax).
var (
	ErrDisconnect    = errors.New("client disconnected")
	ErrSyntax        = errors.New("syntax error")
	ErrCommandSyntax = fmt.Errorf("%w: line terminator in command verb", ErrSyntax)
	ErrLineTooLong   = fmt.Errorf("%w: line too long", ErrSyntax)
	ErrBareCR        = fmt.Errorf("%w: bare carriage return", ErrSyntax)
)

// LineWriter sends a complete reply to the peer.
type LineWriter interface {
	WriteString(s string) error
}

// Framer turns the connection byte stream into command verbs and lines.
// Reads must come from a single goroutine; writes may come from any.
type Framer struct {
	r       *bufio.Reader
	w       LineWriter
	maxLine int
}

// NewFramer returns a Framer reading from r and writing to w.
// A non-positive maxLineLength selects DefaultMaxLineLength.
func NewFramer(r *bufio.Reader, w LineWriter, maxLineLength int) *Framer {
	if maxLineLength <= 0 {
		maxLineLength = DefaultMaxLineLength
	}
	return &Framer{r: r, w: w, maxLine: maxLineLength}
}

// ReadCommand reads the 4-byte command verb and returns it upper-cased.
// The rest of the line is left for ReadLine. If a line terminator shows up
// before four bytes were read, the bytes read so far are returned together
// with ErrCommandSyntax.
func (f *Framer) ReadCommand() (string, error) {
	var verb [4]byte
	for i := range verb {
		b, err := f.r.ReadByte()
		if err != nil {
			return string(verb[:i]), disconnect(err)
		}
		if b == '\r' || b == '\n' {
			return string(verb[:i]), ErrCommandSyntax
		}
		verb[i] = b
	}
	return strings.ToUpper(string(verb[:])), nil
}

// ReadLine reads up to and including the next "\n" or "\r\n" and returns
// the line without its terminator.
//
// A line longer than the limit is returned truncated with ErrLineTooLong and
// the rest of it is left unread; call Discard to skip it. A "\r" that is not
// followed by "\n" is returned as part of the line with ErrBareCR.
func (f *Framer) ReadLine() (string, error) {
	var buf []byte
	for {
		b, err := f.r.ReadByte()
		if err != nil {
			return string(buf), disconnect(err)
		}

		switch b {
		case '\n':
			return string(buf), nil
		case '\r':
			next, err := f.r.ReadByte()
			if err != nil {
				return string(buf), disconnect(err)
			}
			if next == '\n' {
				return string(buf), nil
			}
			_ = f.r.UnreadByte()
			return string(append(buf, b)), ErrBareCR
		}

		if len(buf) >= f.maxLine {
			_ = f.r.UnreadByte()
			return string(buf), ErrLineTooLong
		}
		buf = append(buf, b)
	}
}

// Discard skips the remainder of the current line, terminator included.
func (f *Framer) Discard() error {
	for {
		b, err := f.r.ReadByte()
		if err != nil {
			return disconnect(err)
		}
		if b == '\n' {
			return nil
		}
	}
}

// WriteLine sends text, adding "\r\n" unless it already ends in a newline.
func (f *Framer) WriteLine(text string) error {
	if !strings.HasSuffix(text, "\n") {
		text += "\r\n"
	}
	return f.w.WriteString(text)
}

// WriteReply sends the reply line for code.
func (f *Framer) WriteReply(code Code) error {
	return f.WriteLine(code.String())
}

// disconnect maps a read failure onto ErrDisconnect, keeping the cause
// for anything other than a clean EOF.
func disconnect(err error) error {
	if errors.Is(err, io.EOF) {
		return ErrDisconnect
	}
	return fmt.Errorf("%w: %w", ErrDisconnect, err)
}
