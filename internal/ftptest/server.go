// Package ftptest is a minimal scripted FTP server used only by this
// module's own test suite. It is not a general-purpose server
// implementation; it exists to give the control/data channel code
// something real to talk to over a loopback TCP connection, grounded on
// the session-handling shape of a production FTP daemon but trimmed to
// the handful of commands the client exercises.
package ftptest

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"sync"
)

// Server is an in-process FTP daemon backed by a temporary directory.
type Server struct {
	ln       net.Listener
	root     string
	user     string
	pass     string
	tlsConf  *tls.Config
	closeMu  sync.Mutex
	closed   bool
	sessions sync.WaitGroup
}

// Option configures a Server before it starts listening.
type Option func(*Server)

// WithCredentials requires USER/PASS to match user/pass exactly; any
// other combination is rejected with 530. Without this option, the
// server accepts any username and password.
func WithCredentials(user, pass string) Option {
	return func(s *Server) { s.user, s.pass = user, pass }
}

// WithTLS enables AUTH TLS using cfg for the handshake.
func WithTLS(cfg *tls.Config) Option {
	return func(s *Server) { s.tlsConf = cfg }
}

// New starts a server listening on 127.0.0.1 with an OS-assigned port,
// rooted at a fresh temporary directory.
func New(opts ...Option) (*Server, error) {
	root, err := os.MkdirTemp("", "ftptest-")
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		os.RemoveAll(root)
		return nil, err
	}
	s := &Server{ln: ln, root: root}
	for _, opt := range opts {
		opt(s)
	}
	go s.serve()
	return s, nil
}

// Addr returns the "host:port" a Client can Dial.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Root returns the temporary directory backing the server's filesystem.
func (s *Server) Root() string { return s.root }

// Close stops accepting new connections, waits for in-flight sessions to
// finish, and removes the backing directory.
func (s *Server) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	err := s.ln.Close()
	s.sessions.Wait()
	os.RemoveAll(s.root)
	return err
}

func (s *Server) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.sessions.Add(1)
		go func() {
			defer s.sessions.Done()
			newSession(s, conn).run()
		}()
	}
}

func (s *Server) authOK(user, pass string) bool {
	if s.user == "" {
		return true
	}
	return user == s.user && pass == s.pass
}

func fmtReply(code int, text string) string {
	return fmt.Sprintf("%d %s\r\n", code, text)
}
