package canvas

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// recoveryWindow is how long the limiter must observe zero 429s before
// nudging the rate back up.
const recoveryWindow = time.Minute

// AdaptiveLimiter is a token bucket whose sustained rate reacts to
// Canvas throttling: each 429 halves the rate (floored at min), and
// every quiet minute raises it by 10% (capped at max). Wait blocks until
// a token is available; the underlying bucket serializes acquisitions.
type AdaptiveLimiter struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	current   float64
	min       float64
	max       float64
	last429   time.Time
	lastRaise time.Time
	now       func() time.Time
	logger    *slog.Logger
}

// LimiterSnapshot is a read-only view for diagnostics.
type LimiterSnapshot struct {
	Rate     float64   `json:"rate"`
	Min      float64   `json:"min"`
	Max      float64   `json:"max"`
	Burst    int       `json:"burst"`
	Last429  time.Time `json:"last_429"`
	Throttle bool      `json:"throttled_recently"`
}

// LimiterOption configures an AdaptiveLimiter.
type LimiterOption func(*AdaptiveLimiter)

// WithLimiterClock injects a clock, for tests.
func WithLimiterClock(now func() time.Time) LimiterOption {
	return func(l *AdaptiveLimiter) { l.now = now }
}

// WithLimiterLogger sets the logger used for rate-change notices.
func WithLimiterLogger(logger *slog.Logger) LimiterOption {
	return func(l *AdaptiveLimiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewAdaptiveLimiter builds a limiter with the given sustained rates
// (requests per second) and burst capacity.
func NewAdaptiveLimiter(initial, min, max float64, burst int, opts ...LimiterOption) *AdaptiveLimiter {
	if min <= 0 {
		min = 0.1
	}
	if initial < min {
		initial = min
	}
	if max < initial {
		max = initial
	}
	if burst < 1 {
		burst = 1
	}
	l := &AdaptiveLimiter{
		limiter: rate.NewLimiter(rate.Limit(initial), burst),
		current: initial,
		min:     min,
		max:     max,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	// Recovery is measured from startup, not from the zero time.
	l.lastRaise = l.now()
	return l
}

// Wait blocks until a token is available or ctx is done. A consumed
// token is never refunded, even if the caller is cancelled afterwards.
func (l *AdaptiveLimiter) Wait(ctx context.Context) error {
	l.maybeRecover()
	return l.limiter.Wait(ctx)
}

// OnRateLimited records a 429 and halves the sustained rate.
func (l *AdaptiveLimiter) OnRateLimited() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last429 = l.now()
	next := l.current / 2
	if next < l.min {
		next = l.min
	}
	if next != l.current {
		l.current = next
		l.limiter.SetLimit(rate.Limit(next))
		l.logger.Warn("canvas throttling detected; request rate halved",
			"rate_per_sec", next)
	}
}

// maybeRecover raises the rate by 10% after a full quiet window.
func (l *AdaptiveLimiter) maybeRecover() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if !l.last429.IsZero() && now.Sub(l.last429) < recoveryWindow {
		return
	}
	if now.Sub(l.lastRaise) < recoveryWindow {
		return
	}
	if l.current >= l.max {
		return
	}
	next := l.current * 1.1
	if next > l.max {
		next = l.max
	}
	l.current = next
	l.lastRaise = now
	l.limiter.SetLimit(rate.Limit(next))
	l.logger.Debug("quiet minute; request rate raised", "rate_per_sec", next)
}

// Snapshot returns the limiter's current state.
func (l *AdaptiveLimiter) Snapshot() LimiterSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LimiterSnapshot{
		Rate:     l.current,
		Min:      l.min,
		Max:      l.max,
		Burst:    l.limiter.Burst(),
		Last429:  l.last429,
		Throttle: !l.last429.IsZero() && l.now().Sub(l.last429) < recoveryWindow,
	}
}
