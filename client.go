package ftp

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/merowin/ftp/internal/ratelimit"
)

// Client is a single FTP session: one control connection plus whatever
// transient data connections its transfers open. A Client is not safe
// for concurrent use by multiple goroutines issuing commands at once —
// the control channel allows only one command in flight — but the
// internal mutex does make it safe to call Quit from a different
// goroutine than the one driving transfers.
type Client struct {
	opts *Options
	cc   *controlChannel
	host string
	port int

	mu    sync.Mutex
	state sessionState

	features       map[string]string
	featuresLoaded bool

	transferInProgress atomic.Bool
	keepAliveStop      chan struct{}
	keepAliveDone      chan struct{}

	currentType string // representation type last confirmed on the wire; "" means none sent yet

	rateLimiter *ratelimit.Limiter
}

// Dial opens a control connection to addr ("host:port" or a bare host,
// which defaults to port 21) and performs the initial greeting handshake.
// If WithImplicitTLS was supplied the TLS handshake happens before any
// FTP dialogue; otherwise the connection starts in plaintext and
// WithExplicitTLS (if set) is applied with AUTH TLS right after the 220
// greeting.
func Dial(addr string, opts ...Option) (*Client, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
		portStr = "21"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, &UsageError{Op: "Dial", Reason: "invalid port in address"}
	}

	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	c := &Client{opts: o, host: host, port: port, state: stateDisconnected}
	if o.rateLimitBytesPerSec > 0 {
		c.rateLimiter = ratelimit.New(o.rateLimitBytesPerSec)
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	if o.idleTimeout > 0 {
		c.startKeepAlive(o.idleTimeout)
	}
	return c, nil
}

// Connect parses a ftp://, ftps:// (implicit TLS) or ftp+explicit://
// (explicit TLS) URL and dials it, applying any credentials embedded in
// the URL via Login.
func Connect(rawURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &UsageError{Op: "Connect", Reason: "invalid URL: " + err.Error()}
	}

	switch u.Scheme {
	case "ftp":
	case "ftps":
		opts = append([]Option{WithImplicitTLS(nil)}, opts...)
	case "ftp+explicit":
		opts = append([]Option{WithExplicitTLS(nil)}, opts...)
	default:
		return nil, &UsageError{Op: "Connect", Reason: "unsupported scheme " + u.Scheme}
	}

	host := u.Host
	if !strings.Contains(host, ":") {
		host = net.JoinHostPort(host, "21")
	}

	c, err := Dial(host, opts...)
	if err != nil {
		return nil, err
	}

	if u.User != nil {
		pass, _ := u.User.Password()
		if err := c.Login(u.User.Username(), pass); err != nil {
			c.Quit()
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) connect() error {
	t := newNetTransport(c.opts.dialer, c.opts.timeout)
	if err := t.Connect(c.host, c.port, c.opts.timeout); err != nil {
		return err
	}
	if c.opts.tlsMode == tlsImplicit {
		if err := t.upgradeTLS(c.opts.tlsConfig, c.opts.timeout); err != nil {
			return err
		}
	}

	c.cc = &controlChannel{transport: t, sink: c.opts.sink, debug: c.opts.debug}
	c.cc.onFatal = func() { c.setState(stateDisconnected) }

	reply, err := c.cc.readReply("connect")
	if err != nil {
		return err
	}
	if !reply.Accepts(220) {
		return &UnexpectedReplyError{Op: "connect", Codes: reply.Codes, Text: reply.String()}
	}
	c.setState(stateConnected)

	if c.opts.tlsMode == tlsImplicit {
		c.setState(stateSecured)
	} else if c.opts.tlsMode == tlsExplicit {
		if err := c.upgradeToTLS(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) upgradeToTLS() error {
	reply, err := c.cc.command("AUTH TLS", []int{234}, cmdAuth, "TLS")
	if err != nil {
		return err
	}
	_ = reply

	nt, ok := c.cc.transport.(*netTransport)
	if !ok {
		return &UsageError{Op: "AUTH TLS", Reason: "transport does not support TLS upgrade"}
	}
	if err := nt.upgradeTLS(c.opts.tlsConfig, c.opts.timeout); err != nil {
		return err
	}

	if _, err := c.cc.command("PBSZ", []int{200}, cmdPbsz, "0"); err != nil {
		return err
	}
	if _, err := c.cc.command("PROT", []int{200}, cmdProt, "P"); err != nil {
		return err
	}
	c.setState(stateSecured)
	return nil
}

// Login authenticates with USER/PASS, following the standard 331
// (need password) / 230 (logged in) / 232 (logged in, authorized by
// security data exchange) branches.
func (c *Client) Login(user, pass string) error {
	if err := c.requireAtLeast("Login", stateConnected); err != nil {
		return err
	}
	reply, err := c.cc.exchange(cmdUser, user)
	if err != nil {
		return err
	}
	switch {
	case reply.Accepts(230, 232):
		c.setState(stateAuthenticated)
		return nil
	case reply.Accepts(331):
		// continue to PASS
	default:
		return &UnexpectedReplyError{Op: "USER", Codes: reply.Codes, Text: reply.String()}
	}

	reply, err = c.cc.exchange(cmdPass, pass)
	if err != nil {
		return err
	}
	if !reply.Accepts(230, 232) {
		return &UnexpectedReplyError{Op: "PASS", Codes: reply.Codes, Text: reply.String()}
	}
	c.setState(stateAuthenticated)
	return nil
}

// Logout sends REIN, returning the session to the CONNECTED state without
// closing the control connection. Not every server implements it.
func (c *Client) Logout() error {
	if err := c.requireAtLeast("Logout", stateConnected); err != nil {
		return err
	}
	_, err := c.cc.command("Logout", []int{220}, cmdRein)
	if err != nil {
		return err
	}
	c.setState(stateConnected)
	return nil
}

// Quit sends QUIT and closes the control connection. It is idempotent:
// calling it on an already-disconnected Client is a no-op.
func (c *Client) Quit() error {
	c.mu.Lock()
	if c.state == stateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.stopKeepAlive()

	_, err := c.cc.command("QUIT", []int{221}, cmdQuit)
	closeErr := c.cc.transport.Close()
	c.setState(stateDisconnected)
	if c.rateLimiter != nil {
		c.rateLimiter.Stop()
	}
	if err != nil {
		return err
	}
	return closeErr
}

// Host sends the HOST command (RFC 7151) so a server fronting multiple
// virtual FTP hosts knows which one this session is for. Must be sent
// before Login.
func (c *Client) Host(host string) error {
	if err := c.requireAtLeast("Host", stateConnected); err != nil {
		return err
	}
	_, err := c.cc.command("HOST", []int{220}, cmdHost, host)
	return err
}

// SetType issues TYPE A or TYPE I for the remainder of the session.
func (c *Client) SetType(t string) error {
	if t != "A" && t != "I" {
		return &UsageError{Op: "SetType", Reason: "unsupported type " + t}
	}
	if err := c.requireAtLeast("SetType", stateConnected); err != nil {
		return err
	}
	if _, err := c.cc.command("TYPE", []int{200}, cmdType, t); err != nil {
		return err
	}
	c.opts.typeCode = t
	c.currentType = t
	return nil
}

// ensureType sends TYPE for the configured representation type if the
// server hasn't already been told, mirroring how the teacher sends TYPE
// before every transfer but skips the command once it's already in
// effect. Without this, transfers would run under the server's RFC 959
// default (ASCII) instead of the caller's WithType choice.
func (c *Client) ensureType() error {
	if c.currentType == c.opts.typeCode {
		return nil
	}
	if _, err := c.cc.command("TYPE", []int{200}, cmdType, c.opts.typeCode); err != nil {
		return err
	}
	c.currentType = c.opts.typeCode
	return nil
}

// Features sends FEAT and parses the RFC 2389 response, caching the
// result for the life of the session.
func (c *Client) Features() (map[string]string, error) {
	if err := c.requireAtLeast("Features", stateConnected); err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.featuresLoaded {
		defer c.mu.Unlock()
		return c.features, nil
	}
	c.mu.Unlock()

	reply, err := c.cc.command("FEAT", []int{211}, cmdFeat)
	if err != nil {
		return nil, err
	}
	feats := parseFeatureLines(reply.Lines)

	c.mu.Lock()
	c.features = feats
	c.featuresLoaded = true
	c.mu.Unlock()
	return feats, nil
}

// HasFeature reports whether the server advertised name in its FEAT
// response, fetching and caching FEAT on first use. Errors fetching FEAT
// are treated as "no features known" rather than propagated, matching
// the teacher's convenience-query style for this one check.
func (c *Client) HasFeature(name string) bool {
	feats, err := c.Features()
	if err != nil {
		return false
	}
	_, ok := feats[strings.ToUpper(name)]
	return ok
}

// parseFeatureLines handles both common RFC 2389 renderings: a bare
// " FEAT-NAME params" continuation line, and the less common
// "FEAT-NAME params" line with no leading space.
func parseFeatureLines(lines []string) map[string]string {
	feats := make(map[string]string)
	for _, line := range lines {
		trimmed := strings.TrimPrefix(line, " ")
		if trimmed == line {
			// no leading space; skip the framing lines ("211-Features:" / "211 End")
			if strings.HasPrefix(line, "211") {
				continue
			}
		}
		trimmed = strings.TrimSpace(trimmed)
		if trimmed == "" {
			continue
		}
		parts := strings.SplitN(trimmed, " ", 2)
		name := strings.ToUpper(parts[0])
		value := ""
		if len(parts) == 2 {
			value = parts[1]
		}
		feats[name] = value
	}
	return feats
}

// SetOption issues OPTS for a single server option/value pair, e.g.
// SetOption("UTF8", "ON").
func (c *Client) SetOption(option, value string) error {
	args := []string{option}
	if value != "" {
		args = append(args, value)
	}
	_, err := c.cc.command("OPTS", []int{200}, cmdOpts, args...)
	return err
}

// SystemInfo sends SYST.
func (c *Client) SystemInfo() (string, error) {
	reply, err := c.cc.command("SYST", []int{215}, cmdSyst)
	if err != nil {
		return "", err
	}
	return reply.String(), nil
}

// Progress sends STAT with no argument to query overall session status.
func (c *Client) Progress() (string, error) {
	reply, err := c.cc.command("STAT", []int{211, 212, 213}, cmdStat)
	if err != nil {
		return "", err
	}
	return reply.String(), nil
}

// Noop sends NOOP, mainly useful to keep an idle session alive manually.
func (c *Client) Noop() error {
	_, err := c.cc.command("NOOP", []int{200}, cmdNoop)
	return err
}

// Abort sends ABOR to cancel an in-progress transfer.
func (c *Client) Abort() error {
	reply, err := c.cc.command("ABOR", []int{225, 226}, cmdAbor)
	_ = reply
	return err
}

// Quote sends an arbitrary command, its verb upper-cased and its
// arguments unchanged, for extensions this package has no typed method
// for.
func (c *Client) Quote(cmd string, args ...string) (*Reply, error) {
	return c.cc.exchange(Command(strings.ToUpper(cmd)), args...)
}

// Hash sends the HASH command (an extension some servers implement) and
// returns the raw reply text, which carries the algorithm name and the
// digest.
func (c *Client) Hash(path string) (string, error) {
	reply, err := c.cc.command("HASH", []int{213}, cmdHash, path)
	if err != nil {
		return "", err
	}
	return reply.String(), nil
}

func (c *Client) startKeepAlive(interval time.Duration) {
	c.keepAliveStop = make(chan struct{})
	c.keepAliveDone = make(chan struct{})
	go func() {
		defer close(c.keepAliveDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.keepAliveStop:
				return
			case <-ticker.C:
				if c.transferInProgress.Load() {
					continue
				}
				if err := c.Noop(); err != nil {
					c.opts.sink.Warn("ftp: keepalive NOOP failed", "error", err)
					return
				}
			}
		}
	}()
}

func (c *Client) stopKeepAlive() {
	if c.keepAliveStop == nil {
		return
	}
	select {
	case <-c.keepAliveStop:
		// already closed
	default:
		close(c.keepAliveStop)
	}
	<-c.keepAliveDone
}

func (c *Client) String() string {
	return fmt.Sprintf("ftp.Client{%s:%d state=%s}", c.host, c.port, c.state)
}
