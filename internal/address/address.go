// Package address parses and validates the mailbox addresses and HELO
// domains accepted by the server.
package address

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidAddress is matched by every error returned from Parse.
var ErrInvalidAddress = errors.New("invalid address")

// Reason identifies which part of an address failed validation.
type Reason string

const (
	ReasonEmpty      Reason = "empty"
	ReasonMissingAt  Reason = "missing @"
	ReasonMultipleAt Reason = "multiple @"
	ReasonLocalPart  Reason = "invalid local part"
	ReasonDomain     Reason = "invalid domain"
)

// ValidationError describes why an address was rejected.
type ValidationError struct {
	Input  string
	Reason Reason
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid address %q: %s", e.Input, e.Reason)
}

// Is reports ErrInvalidAddress as a match so callers can test the kind.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidAddress
}

// Address is a validated local@domain pair. Domain includes the top-level label.
type Address struct {
	Local  string
	Domain string
}

// String returns the address in local@domain form.
func (a Address) String() string {
	if a.IsZero() {
		return ""
	}
	return a.Local + "@" + a.Domain
}

// IsZero reports whether a is the empty Address.
func (a Address) IsZero() bool {
	return a.Local == "" && a.Domain == ""
}

const maxDomainLen = 255

var (
	localPattern  = regexp.MustCompile(`^[a-z0-9.]{1,40}$`)
	domainPattern = regexp.MustCompile(`^[a-z0-9]{1,10}\.[a-z]{2,3}$`)
	heloPattern   = regexp.MustCompile(`^[A-Za-z0-9.-]+$`)
)

// Parse validates s and splits it into its local and domain parts.
// The whole string must match; surrounding whitespace is not trimmed.
func Parse(s string) (Address, error) {
	if s == "" {
		return Address{}, &ValidationError{Input: s, Reason: ReasonEmpty}
	}

	switch strings.Count(s, "@") {
	case 0:
		return Address{}, &ValidationError{Input: s, Reason: ReasonMissingAt}
	case 1:
	default:
		return Address{}, &ValidationError{Input: s, Reason: ReasonMultipleAt}
	}

	local, domain, _ := strings.Cut(s, "@")
	if !localPattern.MatchString(local) {
		return Address{}, &ValidationError{Input: s, Reason: ReasonLocalPart}
	}
	if !domainPattern.MatchString(domain) {
		return Address{}, &ValidationError{Input: s, Reason: ReasonDomain}
	}

	return Address{Local: local, Domain: domain}, nil
}

// Valid reports whether s is an acceptable address.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// ValidDomain reports whether s is acceptable as a HELO domain.
func ValidDomain(s string) bool {
	if len(s) > maxDomainLen {
		return false
	}
	return heloPattern.MatchString(s)
}
