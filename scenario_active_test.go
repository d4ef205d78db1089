package ftp

import (
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"
)

// S2: active-mode download with PORT encoding. The server records the
// octets the client sends with PORT, decodes them back into a host:port,
// dials the client's listener itself (standing in for what a real server
// would do right after a transfer command), and ships back a small
// payload over that connection.
func TestScenario_ActiveDownloadPortEncoding(t *testing.T) {
	payload := "active mode bytes\r\n"

	handlers := map[string]func(*textproto.Conn, string){
		"USER": func(tp *textproto.Conn, arg string) { writeReply(tp, "230 logged in") },
		"TYPE": func(tp *textproto.Conn, arg string) { writeReply(tp, "200 type set") },
		"PORT": func(tp *textproto.Conn, arg string) {
			host, port, err := decodePORT(arg)
			if err != nil {
				t.Errorf("decodePORT(%q): %v", arg, err)
				writeReply(tp, "501 malformed")
				return
			}
			if host != "127.0.0.1" {
				t.Errorf("PORT host = %q, want 127.0.0.1", host)
			}
			writeReply(tp, "200 PORT ok")

			// Stand in for the server connecting back for the transfer
			// that follows immediately on the wire.
			go func() {
				conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), 2*time.Second)
				if err != nil {
					return
				}
				defer conn.Close()
				conn.Write([]byte(payload))
			}()
		},
		"RETR": func(tp *textproto.Conn, arg string) {
			writeReply(tp, "150 opening data connection")
			writeReply(tp, "226 transfer complete")
		},
	}

	srv := newMockServer(t, handlers)

	c, err := Dial(srv.addr(), WithTimeout(5*time.Second), WithActiveMode())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.cc.transport.Close()

	if err := c.Login("anonymous", "anon@example.com"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	got, err := c.Download("file.bin")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(got) != payload {
		t.Errorf("Download() = %q, want %q", got, payload)
	}
}

// decodePORT reverses formatPORT for test assertions.
func decodePORT(arg string) (host string, port int, err error) {
	parts := strings.Split(arg, ",")
	if len(parts) != 6 {
		return "", 0, &MalformedReplyError{Op: "PORT", Raw: arg, Reason: "expected 6 octets"}
	}
	host = strings.Join(parts[:4], ".")
	p1, err1 := strconv.Atoi(parts[4])
	p2, err2 := strconv.Atoi(parts[5])
	if err1 != nil || err2 != nil {
		return "", 0, &MalformedReplyError{Op: "PORT", Raw: arg, Reason: "non-numeric octet"}
	}
	return host, p1*256 + p2, nil
}
