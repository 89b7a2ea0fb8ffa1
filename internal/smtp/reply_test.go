package smtp

import "testing"

func TestCodeString(t *testing.T) {
	tests := []struct {
		code Code
		name string
		want string
	}{
		{ConnectionEstablished, "CONNECTION_ESTABLISHED", "220 connection established"},
		{Closing, "CLOSING", "221 closing"},
		{OK, "OK", "250 ok"},
		{StartMailInput, "START_MAIL_INPUT", "354 start mail input"},
		{ServiceNotAvailable, "SERVICE_NOT_AVAILABLE", "421 service not available"},
		{LocalProcessingError, "LOCAL_PROCESSING_ERROR", "451 local processing error"},
		{SyntaxError, "SYNTAX_ERROR", "500 syntax error"},
		{InvalidParameter, "INVALID_PARAMETER", "501 invalid parameter"},
		{NotImplemented, "NOT_IMPLEMENTED", "502 not implemented"},
		{BadSequence, "BAD_SEQUENCE", "503 bad sequence"},
		{AddressUnknown, "ADDRESS_UNKNOWN", "550 address unknown"},
		{Code(999), "UNKNOWN", "999 unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.code.Name(); got != tt.name {
				t.Errorf("Name() = %q, want %q", got, tt.name)
			}
			if got := tt.code.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
