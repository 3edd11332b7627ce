package internal

import (
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// maxLimiterBurst caps how many bytes a single read may take from the bucket
const maxLimiterBurst = 256 << 10

// SpeedChangedHandler is a callback function for speed change events
type SpeedChangedHandler func(sender interface{}, newRequestedSpeed int64)

// DownloadSpeedLimiter throttles patch downloads to a requested number of bytes per second.
// A speed of zero or less means unlimited.
type DownloadSpeedLimiter struct {
	// Event handlers
	DownloadSpeedChangedEvent SpeedChangedHandler

	requestedSpeed atomic.Int64
	limiter        *rate.Limiter

	// Mutex for event handler operations
	mu sync.RWMutex
}

// NewDownloadSpeedLimiter creates a limiter with an initial speed
func NewDownloadSpeedLimiter(initialSpeed int64) *DownloadSpeedLimiter {
	s := &DownloadSpeedLimiter{limiter: rate.NewLimiter(rate.Inf, maxLimiterBurst)}
	s.apply(initialSpeed)
	return s
}

func limiterBurst(speed int64) int {
	return int(max(1, min(speed, maxLimiterBurst)))
}

func (s *DownloadSpeedLimiter) apply(speed int64) {
	s.requestedSpeed.Store(speed)
	if speed <= 0 {
		s.limiter.SetLimit(rate.Inf)
		return
	}
	s.limiter.SetBurst(limiterBurst(speed))
	s.limiter.SetLimit(rate.Limit(speed))
}

// SetSpeed changes the limit for every reader sharing this limiter
func (s *DownloadSpeedLimiter) SetSpeed(newRequestedSpeed int64) {
	s.apply(newRequestedSpeed)

	s.mu.RLock()
	handler := s.DownloadSpeedChangedEvent
	s.mu.RUnlock()

	if handler != nil {
		handler(s, newRequestedSpeed)
	}
}

// Speed returns the requested speed
func (s *DownloadSpeedLimiter) Speed() int64 {
	return s.requestedSpeed.Load()
}

// Unlimited reports whether reads pass through without waiting
func (s *DownloadSpeedLimiter) Unlimited() bool {
	return s.Speed() <= 0
}

// Reader wraps r so reads wait for their share of the limit. Waiting stops when ctx is done.
func (s *DownloadSpeedLimiter) Reader(ctx context.Context, r io.Reader) io.Reader {
	return &throttledReader{ctx: ctx, reader: r, limiter: s}
}

type throttledReader struct {
	ctx     context.Context
	reader  io.Reader
	limiter *DownloadSpeedLimiter
}

func (t *throttledReader) Read(p []byte) (int, error) {
	if t.limiter.Unlimited() {
		return t.reader.Read(p)
	}

	burst := t.limiter.limiter.Burst()
	if len(p) > burst {
		p = p[:burst]
	}
	n, err := t.reader.Read(p)

	// the burst may shrink while waiting, so take tokens in burst-sized steps
	for remaining := n; remaining > 0; {
		step := min(remaining, t.limiter.limiter.Burst())
		if waitErr := t.limiter.limiter.WaitN(t.ctx, step); waitErr != nil {
			return n, waitErr
		}
		remaining -= step
	}
	return n, err
}

type throttledBody struct {
	io.Reader
	io.Closer
}

type throttledTransport struct {
	base    http.RoundTripper
	limiter *DownloadSpeedLimiter
}

func (t *throttledTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	resp.Body = &throttledBody{
		Reader: t.limiter.Reader(req.Context(), resp.Body),
		Closer: resp.Body,
	}
	return resp, nil
}

// Transport wraps base so every response body is throttled. A nil base means http.DefaultTransport.
func (s *DownloadSpeedLimiter) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &throttledTransport{base: base, limiter: s}
}
