package smtp

import (
	"strconv"
	"strings"
)

// Code is a numeric status reply sent to the client.
type Code int

// Status replies understood by the server.
const (
	ConnectionEstablished Code = 220
	Closing               Code = 221
	OK                    Code = 250
	StartMailInput        Code = 354
	ServiceNotAvailable   Code = 421
	LocalProcessingError  Code = 451
	SyntaxError           Code = 500
	InvalidParameter      Code = 501
	NotImplemented        Code = 502
	BadSequence           Code = 503
	AddressUnknown        Code = 550
)

var codeNames = map[Code]string{
	ConnectionEstablished: "CONNECTION_ESTABLISHED",
	Closing:               "CLOSING",
	OK:                    "OK",
	StartMailInput:        "START_MAIL_INPUT",
	ServiceNotAvailable:   "SERVICE_NOT_AVAILABLE",
	LocalProcessingError:  "LOCAL_PROCESSING_ERROR",
	SyntaxError:           "SYNTAX_ERROR",
	InvalidParameter:      "INVALID_PARAMETER",
	NotImplemented:        "NOT_IMPLEMENTED",
	BadSequence:           "BAD_SEQUENCE",
	AddressUnknown:        "ADDRESS_UNKNOWN",
}

// Name returns the symbolic name of the code, or "UNKNOWN".
func (c Code) Name() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// String returns the reply line without its terminator, e.g. "250 ok".
func (c Code) String() string {
	text := strings.ToLower(strings.ReplaceAll(c.Name(), "_", " "))
	return strconv.Itoa(int(c)) + " " + text
}
