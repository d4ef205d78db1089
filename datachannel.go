package ftp

import (
	"crypto/tls"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// tlsClientData upgrades a freshly dialed or accepted data connection to
// TLS, per RFC 2228's PROT P requirement that data connections are
// protected the same way the control connection is. It reuses the
// session cache installed on cfg so a resumed session avoids a full
// handshake for every transfer.
func tlsClientData(conn net.Conn, cfg *tls.Config, timeout time.Duration) (net.Conn, error) {
	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, &TransportError{Op: "tls data handshake", Err: err}
	}
	if err := tlsConn.Handshake(); err != nil {
		return nil, &TransportError{Op: "tls data handshake", Err: err}
	}
	_ = tlsConn.SetDeadline(time.Time{})
	return tlsConn, nil
}

var (
	pasvRegex = regexp.MustCompile(`(\d+),(\d+),(\d+),(\d+),(\d+),(\d+)`)
	epsvRegex = regexp.MustCompile(`\(\|\|\|(\d+)\|\)`)
)

func parsePASV(text string) (host string, port int, err error) {
	m := pasvRegex.FindStringSubmatch(text)
	if m == nil {
		return "", 0, &MalformedReplyError{Op: "PASV", Raw: text, Reason: "no address tuple found"}
	}
	nums := make([]int, 6)
	for i := 1; i <= 6; i++ {
		nums[i-1], _ = strconv.Atoi(m[i])
	}
	host = fmt.Sprintf("%d.%d.%d.%d", nums[0], nums[1], nums[2], nums[3])
	port = nums[4]*256 + nums[5]
	return host, port, nil
}

func parseEPSV(text string) (port int, err error) {
	m := epsvRegex.FindStringSubmatch(text)
	if m == nil {
		return 0, &MalformedReplyError{Op: "EPSV", Raw: text, Reason: "no port found"}
	}
	port, _ = strconv.Atoi(m[1])
	return port, nil
}

func formatPORT(host string, port int) string {
	ip := net.ParseIP(host).To4()
	p1, p2 := port/256, port%256
	return fmt.Sprintf("%d,%d,%d,%d,%d,%d", ip[0], ip[1], ip[2], ip[3], p1, p2)
}

func formatEPRT(host string, port int) string {
	proto := "1"
	if strings.Contains(host, ":") {
		proto = "2"
	}
	return fmt.Sprintf("|%s|%s|%d|", proto, host, port)
}

// resolveDataAddr rewrites a server-reported 0.0.0.0 PASV address to the
// control connection's own remote host, which is what servers behind NAT
// commonly report and expect the client to paper over.
func resolveDataAddr(reported, controlHost string) string {
	if reported == "0.0.0.0" {
		return controlHost
	}
	return reported
}

// openPassiveDataConn asks the server to listen and connects out to it.
// PASV is preferred over a control connection bound to an IPv4 address
// and EPSV over one bound to IPv6, since PASV's address tuple has no
// way to carry anything but an IPv4 quad; whichever comes second is
// tried as a fallback only if the preferred command comes back 502 (not
// implemented), the same way the package disables EPSV for the rest of
// the session once it sees a 502 for it.
func (c *Client) openPassiveDataConn(op string) (net.Conn, error) {
	preferEPSV := !c.opts.disableEPSV && strings.Contains(c.cc.transport.LocalHost(), ":")

	if preferEPSV {
		if conn, err, handled := c.tryEPSV(op); handled {
			return conn, err
		}
		conn, err, _ := c.tryPASV(op)
		return conn, err
	}

	if !c.opts.disableEPSV {
		if conn, err, handled := c.tryPASV(op); handled {
			return conn, err
		}
		conn, err, _ := c.tryEPSV(op)
		return conn, err
	}

	conn, err, _ := c.tryPASV(op)
	return conn, err
}

// tryEPSV sends EPSV. handled is false only when the server replies 502
// (not implemented), the signal that the caller should fall back to
// PASV and that EPSV should be skipped for the rest of the session.
func (c *Client) tryEPSV(op string) (conn net.Conn, err error, handled bool) {
	reply, err := c.cc.exchange(cmdEpsv)
	if err != nil {
		return nil, err, true
	}
	if reply.Is2xx() {
		port, perr := parseEPSV(reply.String())
		if perr != nil {
			return nil, perr, true
		}
		conn, err = c.dialData(c.host, port)
		return conn, err, true
	}
	if reply.Primary() == 502 {
		c.opts.disableEPSV = true
		return nil, nil, false
	}
	return nil, &UnexpectedReplyError{Op: op, Codes: reply.Codes, Text: reply.String()}, true
}

// tryPASV sends PASV. handled is false only when the server replies 502,
// the rare case of a server that can issue EPSV but not PASV.
func (c *Client) tryPASV(op string) (conn net.Conn, err error, handled bool) {
	reply, err := c.cc.exchange(cmdPasv)
	if err != nil {
		return nil, err, true
	}
	if reply.Primary() == 502 {
		return nil, nil, false
	}
	if !reply.Accepts(227) {
		return nil, &UnexpectedReplyError{Op: op, Codes: reply.Codes, Text: reply.String()}, true
	}
	host, port, perr := parsePASV(reply.String())
	if perr != nil {
		return nil, perr, true
	}
	conn, err = c.dialData(resolveDataAddr(host, c.host), port)
	return conn, err, true
}

func (c *Client) dialData(host string, port int) (net.Conn, error) {
	addr := net.JoinHostPort(host, itoa(port))
	rawConn, err := c.opts.dialer.Dial("tcp", addr)
	if err != nil {
		return nil, &TransportError{Op: "dial data connection", Err: err}
	}
	conn := net.Conn(&deadlineConn{Conn: rawConn, timeout: c.opts.timeout})
	if c.opts.tlsMode != tlsNone {
		return tlsClientData(conn, c.opts.tlsConfig, c.opts.timeout)
	}
	return conn, nil
}

// openActiveDataConn listens locally, tells the server where to connect
// with PORT/EPRT, then accepts concurrently with writing cmd and reading
// its preliminary reply: the server connects back to the data port while
// it is still processing the transfer command, so waiting for that reply
// before accepting would deadlock. Transport.ListenAccept guarantees the
// listener is closed once both finish, on every error path, which is what
// keeps a failed accept from hanging the way it does in a naive
// lazy-accept implementation.
func (c *Client) openActiveDataConn(op string, cmd Command, args []string) (net.Conn, *Reply, error) {
	localHost := c.cc.transport.LocalHost()
	if c.opts.dataAddr != "" {
		localHost = c.opts.dataAddr
	}

	var preliminary *Reply
	dataConn, err := c.cc.transport.ListenAccept(c.opts.timeout, func(port int) error {
		var portErr error
		if strings.Contains(localHost, ":") {
			_, portErr = c.cc.command(op, []int{200}, cmdEprt, formatEPRT(localHost, port))
		} else {
			_, portErr = c.cc.command(op, []int{200}, cmdPort, formatPORT(localHost, port))
		}
		if portErr != nil {
			return portErr
		}
		reply, err := c.cc.exchange(cmd, args...)
		if err != nil {
			return err
		}
		preliminary = reply
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	dataConn = &deadlineConn{Conn: dataConn, timeout: c.opts.timeout}

	if c.opts.tlsMode != tlsNone {
		tlsConn, err := tlsClientData(dataConn, c.opts.tlsConfig, c.opts.timeout)
		if err != nil {
			dataConn.Close()
			return nil, nil, err
		}
		dataConn = tlsConn
	}

	return dataConn, preliminary, nil
}
