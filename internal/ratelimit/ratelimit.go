// Package ratelimit throttles FTP data-channel transfers to a configured
// bytes-per-second rate using a token bucket.
package ratelimit

import (
	"context"
	"io"
	"time"

	"golang.org/x/time/rate"
)

// Limiter throttles reads and writes to a configured byte rate, with
// burst capacity equal to one second of data so short spikes don't stall
// on every chunk boundary. A new Limiter starts with an empty bucket, so
// throttling applies from the first byte.
type Limiter struct {
	rl *rate.Limiter
}

// New creates a limiter capped at bytesPerSecond. A non-positive rate
// means "unlimited" and New returns nil, matching how NewReader/NewWriter
// treat a nil Limiter as a pass-through.
func New(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	rl := rate.NewLimiter(rate.Limit(bytesPerSecond), int(bytesPerSecond))
	rl.AllowN(time.Now(), int(bytesPerSecond)) // drain the initial burst
	return &Limiter{rl: rl}
}

// Stop is a no-op retained for API compatibility with the bespoke token
// bucket this package used to hand-roll; rate.Limiter has no background
// goroutine to tear down. Safe to call on a nil Limiter.
func (l *Limiter) Stop() {}

// waitN blocks until n bytes' worth of tokens are available, capping a
// single request at the bucket's burst size so a caller asking for more
// than the burst doesn't get an error from the underlying limiter.
func (l *Limiter) waitN(n int) {
	if l == nil || n <= 0 {
		return
	}
	burst := l.rl.Burst()
	ctx := context.Background()
	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}
		_ = l.rl.WaitN(ctx, chunk)
		n -= chunk
	}
}

type reader struct {
	r       io.Reader
	limiter *Limiter
}

// NewReader wraps r so every Read is throttled by limiter. A nil limiter
// returns r unchanged.
func NewReader(r io.Reader, limiter *Limiter) io.Reader {
	if limiter == nil {
		return r
	}
	return &reader{r: r, limiter: limiter}
}

func (r *reader) Read(p []byte) (int, error) {
	const maxChunk = 8 * 1024
	if len(p) > maxChunk {
		p = p[:maxChunk]
	}
	r.limiter.waitN(len(p))
	return r.r.Read(p)
}

type writer struct {
	w       io.Writer
	limiter *Limiter
}

// NewWriter wraps w so every Write is throttled by limiter. A nil limiter
// returns w unchanged.
func NewWriter(w io.Writer, limiter *Limiter) io.Writer {
	if limiter == nil {
		return w
	}
	return &writer{w: w, limiter: limiter}
}

func (w *writer) Write(p []byte) (int, error) {
	const maxChunk = 64 * 1024
	total := 0
	for total < len(p) {
		end := total + maxChunk
		if end > len(p) {
			end = len(p)
		}
		w.limiter.waitN(end - total)
		n, err := w.w.Write(p[total:end])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
