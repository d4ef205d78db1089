package ftp

import (
	"crypto/tls"
	"net"
	"time"
)

type tlsMode int

const (
	tlsNone tlsMode = iota
	tlsExplicit
	tlsImplicit
)

// Options is the Go rendering of the connection options a Client is
// built from: everything an Option can tune before the control
// connection is opened. Credentials are not part of it; they are passed
// to Login.
type Options struct {
	timeout     time.Duration
	idleTimeout time.Duration

	tlsMode   tlsMode
	tlsConfig *tls.Config

	activeMode  bool
	disableEPSV bool
	dataAddr    string // local address to bind for active-mode listeners; "" picks automatically

	typeCode  string // "A" or "I"
	structure string // "F" (file) is the only supported value
	mode      string // "S" (stream) is the only supported value

	sink   Sink
	dialer *net.Dialer

	rateLimitBytesPerSec int64

	parsers []ListingParser

	debug bool
}

func defaultOptions() *Options {
	return &Options{
		timeout:   30 * time.Second,
		typeCode:  "I",
		structure: "F",
		mode:      "S",
		sink:      noopSink{},
		dialer:    &net.Dialer{},
	}
}

// Option configures a Client before it dials.
type Option func(*Options) error

// WithTimeout bounds every control-channel read and write.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) error {
		o.timeout = d
		return nil
	}
}

// WithIdleTimeout enables a background NOOP keepalive sent at interval d
// whenever no transfer is in progress.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *Options) error {
		o.idleTimeout = d
		return nil
	}
}

// WithExplicitTLS upgrades the connection with AUTH TLS after the initial
// plaintext greeting. Mutually exclusive with WithImplicitTLS.
func WithExplicitTLS(cfg *tls.Config) Option {
	return func(o *Options) error {
		if o.tlsMode != tlsNone {
			return &UsageError{Op: "WithExplicitTLS", Reason: "TLS mode already set"}
		}
		o.tlsMode = tlsExplicit
		o.tlsConfig = withSessionCache(cfg)
		return nil
	}
}

// WithImplicitTLS dials straight into a TLS handshake before any FTP
// dialogue occurs. Mutually exclusive with WithExplicitTLS.
func WithImplicitTLS(cfg *tls.Config) Option {
	return func(o *Options) error {
		if o.tlsMode != tlsNone {
			return &UsageError{Op: "WithImplicitTLS", Reason: "TLS mode already set"}
		}
		o.tlsMode = tlsImplicit
		o.tlsConfig = withSessionCache(cfg)
		return nil
	}
}

func withSessionCache(cfg *tls.Config) *tls.Config {
	if cfg == nil {
		cfg = &tls.Config{}
	}
	if cfg.ClientSessionCache == nil {
		clone := cfg.Clone()
		clone.ClientSessionCache = tls.NewLRUClientSessionCache(0)
		return clone
	}
	return cfg
}

// WithActiveMode forces PORT/EPRT data connections instead of PASV/EPSV.
func WithActiveMode() Option {
	return func(o *Options) error {
		o.activeMode = true
		return nil
	}
}

// WithActiveModeAddr is like WithActiveMode but binds the active-mode
// listener to a specific local address instead of letting the kernel pick.
func WithActiveModeAddr(addr string) Option {
	return func(o *Options) error {
		o.activeMode = true
		o.dataAddr = addr
		return nil
	}
}

// WithDisableEPSV skips the EPSV attempt and goes straight to PASV, for
// servers whose EPSV support is broken rather than simply absent (EPSV
// is otherwise disabled automatically on the first 502 reply).
func WithDisableEPSV() Option {
	return func(o *Options) error {
		o.disableEPSV = true
		return nil
	}
}

// WithLogger installs sink as the Client's logging sink.
func WithLogger(sink Sink) Option {
	return func(o *Options) error {
		o.sink = sink
		return nil
	}
}

// WithDialer overrides how the control connection's TCP socket is opened.
func WithDialer(d *net.Dialer) Option {
	return func(o *Options) error {
		o.dialer = d
		return nil
	}
}

// WithDebug routes the raw control-channel dialogue to the Sink at debug
// level.
func WithDebug() Option {
	return func(o *Options) error {
		o.debug = true
		return nil
	}
}

// WithRateLimit throttles data-channel transfers to bytesPerSecond.
func WithRateLimit(bytesPerSecond int64) Option {
	return func(o *Options) error {
		o.rateLimitBytesPerSec = bytesPerSecond
		return nil
	}
}

// WithCustomListParser adds a ListingParser tried before any previously
// added custom parsers and before the built-in Unix/DOS/EPLF parsers.
func WithCustomListParser(p ListingParser) Option {
	return func(o *Options) error {
		o.parsers = append([]ListingParser{p}, o.parsers...)
		return nil
	}
}

// WithType selects the representation type used for data transfers: "A"
// for ASCII or "I" for image (binary). Anything else is a UsageError,
// since non-stream structure/mode values are out of scope.
func WithType(t string) Option {
	return func(o *Options) error {
		if t != "A" && t != "I" {
			return &UsageError{Op: "WithType", Reason: "unsupported type " + t}
		}
		o.typeCode = t
		return nil
	}
}

// WithStructure accepts only "F" (file structure); any other value is
// rejected since record/page structure is unimplemented.
func WithStructure(s string) Option {
	return func(o *Options) error {
		if s != "F" {
			return &UsageError{Op: "WithStructure", Reason: "unsupported structure " + s}
		}
		o.structure = s
		return nil
	}
}

// WithMode accepts only "S" (stream mode); block and compressed mode are
// unimplemented.
func WithMode(m string) Option {
	return func(o *Options) error {
		if m != "S" {
			return &UsageError{Op: "WithMode", Reason: "unsupported mode " + m}
		}
		o.mode = m
		return nil
	}
}
