package ftp

import (
	"io"
	"net"
	"os"

	"github.com/merowin/ftp/internal/ratelimit"
)

// openTransferConn opens a data connection and sends cmd over the control
// channel, returning the data connection once the preliminary (1xx) reply
// has arrived. In passive mode the command is sent after the data
// connection is already open; in active mode it is sent from inside the
// concurrent accept (see openActiveDataConn) since the server must be
// told where to connect before it will do so.
func (c *Client) openTransferConn(op string, cmd Command, args ...string) (net.Conn, error) {
	if err := c.ensureType(); err != nil {
		return nil, err
	}
	c.transferInProgress.Store(true)

	if c.opts.activeMode {
		conn, reply, err := c.openActiveDataConn(op, cmd, args)
		if err != nil {
			c.transferInProgress.Store(false)
			return nil, err
		}
		if !reply.Is1xx() {
			conn.Close()
			c.transferInProgress.Store(false)
			return nil, &UnexpectedReplyError{Op: op, Codes: reply.Codes, Text: reply.String()}
		}
		return conn, nil
	}

	conn, err := c.openPassiveDataConn(op)
	if err != nil {
		c.transferInProgress.Store(false)
		return nil, err
	}
	reply, err := c.cc.exchange(cmd, args...)
	if err != nil {
		conn.Close()
		c.transferInProgress.Store(false)
		return nil, err
	}
	if !reply.Is1xx() {
		conn.Close()
		c.transferInProgress.Store(false)
		return nil, &UnexpectedReplyError{Op: op, Codes: reply.Codes, Text: reply.String()}
	}
	return conn, nil
}

// finishTransfer closes the data connection and reads the final
// control-channel reply. A clean end-of-stream on the data connection
// while copying is success, not an error — that EOF is what ends the
// io.Copy loop in the first place and never reaches here as an error.
func (c *Client) finishTransfer(op string, conn net.Conn, acceptCodes []int) error {
	conn.Close()
	c.transferInProgress.Store(false)
	reply, err := c.cc.readReply(op)
	if err != nil {
		return err
	}
	if !reply.Accepts(acceptCodes...) {
		return &UnexpectedReplyError{Op: op, Codes: reply.Codes, Text: reply.String()}
	}
	return nil
}

func (c *Client) rateLimitReader(r io.Reader) io.Reader {
	if c.rateLimiter == nil {
		return r
	}
	return ratelimit.NewReader(r, c.rateLimiter)
}

func (c *Client) rateLimitWriter(w io.Writer) io.Writer {
	if c.rateLimiter == nil {
		return w
	}
	return ratelimit.NewWriter(w, c.rateLimiter)
}

// Upload sends the contents of src to path on the server using STOR.
func (c *Client) Upload(path string, src io.Reader) error {
	if err := c.requireAtLeast("Upload", stateAuthenticated); err != nil {
		return err
	}
	conn, err := c.openTransferConn("STOR", cmdStor, path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(c.rateLimitWriter(conn), src); err != nil {
		conn.Close()
		c.transferInProgress.Store(false)
		return &TransportError{Op: "STOR", Err: err}
	}
	return c.finishTransfer("STOR", conn, []int{226, 250})
}

// UploadFile opens local and uploads it to remote.
func (c *Client) UploadFile(local, remote string) error {
	f, err := os.Open(local)
	if err != nil {
		return &TransportError{Op: "UploadFile", Err: err}
	}
	defer f.Close()
	return c.Upload(remote, f)
}

// Append sends the contents of src, appending to path if it already
// exists, using APPE.
func (c *Client) Append(path string, src io.Reader) error {
	if err := c.requireAtLeast("Append", stateAuthenticated); err != nil {
		return err
	}
	conn, err := c.openTransferConn("APPE", cmdAppe, path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(c.rateLimitWriter(conn), src); err != nil {
		conn.Close()
		c.transferInProgress.Store(false)
		return &TransportError{Op: "APPE", Err: err}
	}
	return c.finishTransfer("APPE", conn, []int{226, 250})
}

// DownloadTo retrieves path from the server with RETR, streaming the
// bytes to dst as they arrive.
func (c *Client) DownloadTo(path string, dst io.Writer) error {
	if err := c.requireAtLeast("Download", stateAuthenticated); err != nil {
		return err
	}
	conn, err := c.openTransferConn("RETR", cmdRetr, path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, c.rateLimitReader(conn)); err != nil {
		conn.Close()
		c.transferInProgress.Store(false)
		return &TransportError{Op: "RETR", Err: err}
	}
	return c.finishTransfer("RETR", conn, []int{226, 250})
}

// Download retrieves path and returns its contents in memory.
func (c *Client) Download(path string) ([]byte, error) {
	var buf writeBuffer
	if err := c.DownloadTo(path, &buf); err != nil {
		return nil, err
	}
	return buf.data, nil
}

// DownloadFile retrieves remote and writes it to a newly created local file.
func (c *Client) DownloadFile(remote, local string) error {
	f, err := os.Create(local)
	if err != nil {
		return &TransportError{Op: "DownloadFile", Err: err}
	}
	defer f.Close()
	return c.DownloadTo(remote, f)
}

type writeBuffer struct{ data []byte }

func (b *writeBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}
