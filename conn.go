package ftp

import (
	"net"
	"time"
)

// deadlineConn wraps a data connection and re-arms a read/write deadline
// before every operation, the same way netTransport does for the control
// connection. Without this a data connection has no notion of the
// configured timeout at all: a server that sends a preliminary reply and
// then stalls mid-transfer, never sending data and never closing, would
// hang a Read or Write forever.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

// Read and Write deliberately return the underlying net.Conn's error
// unclassified: callers (transfer.go, listing.go) drain with io.Copy or
// io.ReadAll, which compare against io.EOF to recognize a clean end of a
// stream-mode transfer, and wrapping that into
// one of the package's typed errors here would break that comparison.
func (c *deadlineConn) Read(b []byte) (n int, err error) {
	if c.timeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (n int, err error) {
	if c.timeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}
