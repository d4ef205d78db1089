package ftp

import "testing"

func TestEncodeCommand_RejectsCRLF(t *testing.T) {
	tests := []struct {
		name string
		arg  string
	}{
		{"embedded CR", "foo\rbar"},
		{"embedded LF", "foo\nbar"},
		{"embedded CRLF", "foo\r\nQUIT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := encodeCommand(cmdCwd, tt.arg); err == nil {
				t.Fatal("expected UsageError for CR/LF in argument")
			} else if _, ok := err.(*UsageError); !ok {
				t.Errorf("got %T, want *UsageError", err)
			}
		})
	}
}

func TestEncodeCommand_WellFormed(t *testing.T) {
	line, err := encodeCommand(cmdCwd, "/pub/files")
	if err != nil {
		t.Fatalf("encodeCommand: %v", err)
	}
	if line != "CWD /pub/files\r\n" {
		t.Errorf("line = %q", line)
	}
}

func TestEncodeCommand_NoArgs(t *testing.T) {
	line, err := encodeCommand(cmdNoop)
	if err != nil {
		t.Fatalf("encodeCommand: %v", err)
	}
	if line != "NOOP\r\n" {
		t.Errorf("line = %q", line)
	}
}
