package ftp

import (
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
)

// mockServer is a bare-bones scripted control-channel server for tests
// that need to inspect the exact command bytes a Client sends, rather
// than drive a full filesystem-backed session (see internal/ftptest for
// that). Grounded on the same net.Listener + net/textproto.Conn shape
// used throughout this package's own prior test suite.
type mockServer struct {
	ln       net.Listener
	handlers map[string]func(*textproto.Conn, string)

	mu       sync.Mutex
	received []string
}

func newMockServer(t *testing.T, handlers map[string]func(*textproto.Conn, string)) *mockServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &mockServer{ln: ln, handlers: handlers}
	go s.serve()
	t.Cleanup(func() { s.ln.Close() })
	return s
}

func (s *mockServer) addr() string { return s.ln.Addr().String() }

func (s *mockServer) serve() {
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	tp := textproto.NewConn(conn)
	defer tp.Close()

	tp.Writer.W.WriteString("220 mock ready\r\n")
	tp.Writer.W.Flush()

	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		cmd := line
		arg := ""
		if idx := strings.IndexByte(line, ' '); idx >= 0 {
			cmd, arg = line[:idx], line[idx+1:]
		}
		cmd = strings.ToUpper(cmd)

		s.mu.Lock()
		s.received = append(s.received, line)
		s.mu.Unlock()

		h, ok := s.handlers[cmd]
		if !ok {
			tp.Writer.W.WriteString("502 not implemented\r\n")
			tp.Writer.W.Flush()
			continue
		}
		h(tp, arg)
		if cmd == "QUIT" {
			return
		}
	}
}

func (s *mockServer) commandsReceived() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.received))
	copy(out, s.received)
	return out
}

func writeReply(tp *textproto.Conn, line string) {
	tp.Writer.W.WriteString(line + "\r\n")
	tp.Writer.W.Flush()
}
