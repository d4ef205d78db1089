package ftp

import (
	"net/textproto"
	"testing"
	"time"
)

// S5: a command that never gets a reply must surface a *TimeoutError
// rather than block forever, bounded by the Client's configured timeout.
func TestScenario_ControlChannelTimeout(t *testing.T) {
	handlers := map[string]func(*textproto.Conn, string){
		"NOOP": func(tp *textproto.Conn, arg string) {
			// Deliberately never reply.
		},
	}
	srv := newMockServer(t, handlers)

	c, err := Dial(srv.addr(), WithTimeout(200*time.Millisecond))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.cc.transport.Close()

	err = c.Noop()
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if _, ok := err.(*TimeoutError); !ok {
		t.Errorf("got %T (%v), want *TimeoutError", err, err)
	}

	// The control channel must now be latched unusable: any further
	// command is rejected locally rather than attempted over a
	// connection that may have lost synchronization with the server.
	err = c.Noop()
	if _, ok := err.(*UsageError); !ok {
		t.Errorf("got %T (%v) for follow-up Noop, want *UsageError", err, err)
	}
}
