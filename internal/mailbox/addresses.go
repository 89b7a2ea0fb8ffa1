package mailbox

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/infodancer/flatmail/internal/address"
)

// AddressListError identifies the first invalid line of an address list.
type AddressListError struct {
	Line    int
	Content string
	Err     error
}

func (e *AddressListError) Error() string {
	return fmt.Sprintf("address list line %d %q: %v", e.Line, e.Content, e.Err)
}

func (e *AddressListError) Unwrap() error {
	return e.Err
}

// ReadAddressList reads one address per line. Every line must be a valid
// address; reading stops at the first invalid line.
func ReadAddressList(r io.Reader) ([]string, error) {
	var addresses []string

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if _, err := address.Parse(text); err != nil {
			return nil, &AddressListError{Line: line, Content: text, Err: err}
		}
		addresses = append(addresses, text)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading address list: %w", err)
	}

	return addresses, nil
}

// LoadAddressList reads the address list file at path.
func LoadAddressList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening address list: %w", err)
	}
	defer func() { _ = f.Close() }()

	addresses, err := ReadAddressList(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return addresses, nil
}
