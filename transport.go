package ftp

import (
	"bufio"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
)

// Transport is the abstract control/data connection contract the session
// engine is built against. The concrete implementation in this file wraps
// net.Conn/tls.Conn; the tests run it over loopback connections to
// internal/ftptest or an inline mock server, and reply parsing is tested
// through the narrower lineReader interface.
type Transport interface {
	Connect(host string, port int, timeout time.Duration) error
	ReadSome(max int) ([]byte, error)
	ReadUntil(delim byte) ([]byte, error)
	Write(b []byte) (int, error)
	Close() error
	LocalHost() string

	// ListenAccept binds a listener on an ephemeral local port, invokes
	// onListening with that port (the hook point for sending PORT/EPRT
	// and the transfer command), then accepts one connection. The
	// onListening callback's control-channel round trip runs
	// concurrently with Accept. If onListening fails the listener is
	// closed at once, which unblocks a pending Accept, and its error is
	// the one returned; on every other path the listener is closed once
	// both finish.
	ListenAccept(timeout time.Duration, onListening func(port int) error) (net.Conn, error)
}

// netTransport is the default Transport, a TCP connection optionally
// upgraded to TLS, with every blocking call bounded by a deadline derived
// from the configured timeout.
type netTransport struct {
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
	dialer  *net.Dialer
}

func newNetTransport(dialer *net.Dialer, timeout time.Duration) *netTransport {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	return &netTransport{dialer: dialer, timeout: timeout}
}

func (t *netTransport) Connect(host string, port int, timeout time.Duration) error {
	addr := net.JoinHostPort(host, itoa(port))
	ctx, cancel := dialContext(timeout)
	defer cancel()
	conn, err := t.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &TransportError{Op: "connect", Err: err}
	}
	t.conn = conn
	t.reader = bufio.NewReader(conn)
	return nil
}

func (t *netTransport) upgradeTLS(cfg *tls.Config, timeout time.Duration) error {
	tlsConn := tls.Client(t.conn, cfg)
	if err := tlsConn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return &TransportError{Op: "tls handshake", Err: err}
	}
	if err := tlsConn.Handshake(); err != nil {
		return &TransportError{Op: "tls handshake", Err: err}
	}
	_ = tlsConn.SetDeadline(time.Time{})
	t.conn = tlsConn
	t.reader = bufio.NewReader(tlsConn)
	return nil
}

func (t *netTransport) deadline() time.Time {
	if t.timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(t.timeout)
}

func (t *netTransport) ReadSome(max int) ([]byte, error) {
	if err := t.conn.SetReadDeadline(t.deadline()); err != nil {
		return nil, &TransportError{Op: "read", Err: err}
	}
	buf := make([]byte, max)
	n, err := t.reader.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	return nil, classifyReadErr("read", err)
}

func (t *netTransport) ReadUntil(delim byte) ([]byte, error) {
	if err := t.conn.SetReadDeadline(t.deadline()); err != nil {
		return nil, &TransportError{Op: "read", Err: err}
	}
	line, err := t.reader.ReadBytes(delim)
	if err != nil && len(line) == 0 {
		return nil, classifyReadErr("read", err)
	}
	return line, nil
}

func (t *netTransport) Write(b []byte) (int, error) {
	if err := t.conn.SetWriteDeadline(t.deadline()); err != nil {
		return 0, &TransportError{Op: "write", Err: err}
	}
	n, err := t.conn.Write(b)
	if err != nil {
		return n, classifyWriteErr("write", err)
	}
	return n, nil
}

func (t *netTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}

func (t *netTransport) LocalHost() string {
	host, _, _ := net.SplitHostPort(t.conn.LocalAddr().String())
	return host
}

// ListenAccept opens a listener on an ephemeral port bound to the same
// local address family as the control connection, reports that port to
// onListening, and accepts exactly one connection. See the Transport
// interface doc for why onListening and Accept must run concurrently.
func (t *netTransport) ListenAccept(timeout time.Duration, onListening func(port int) error) (net.Conn, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(t.LocalHost(), "0"))
	if err != nil {
		return nil, &TransportError{Op: "listen", Err: err}
	}
	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, &TransportError{Op: "listen", Err: err}
	}
	defer ln.Close()
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port := atoi(portStr)

	g := new(errgroup.Group)
	var conn net.Conn
	g.Go(func() error {
		_ = ln.SetDeadline(time.Now().Add(timeout))
		c, err := ln.AcceptTCP()
		if err != nil {
			return classifyReadErr("accept", err)
		}
		conn = c
		return nil
	})
	var listenErr error
	g.Go(func() error {
		listenErr = onListening(port)
		if listenErr != nil {
			ln.Close() // unblock a still-pending Accept
		}
		return listenErr
	})

	if err := g.Wait(); err != nil {
		if listenErr != nil {
			err = listenErr
		}
		if conn != nil {
			conn.Close()
		}
		return nil, err
	}
	return conn, nil
}

func classifyReadErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) {
		return &EndOfStreamError{Op: op}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Op: op}
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return &TimeoutError{Op: op}
	}
	return &TransportError{Op: op, Err: err}
}

func classifyWriteErr(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Op: op}
	}
	return &TransportError{Op: op, Err: err}
}
