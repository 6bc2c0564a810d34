// Package ratelimit throttles outbound price-API calls. One limiter is
// shared process-wide across every resolver that reaches the external API.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/ledgerkit/txledger/internal/metrics"
)

// Limiter is a single-permit token bucket: one permit every
// 60s / permitsPerMinute, no bursting.
type Limiter struct {
	limiter *rate.Limiter
}

// NewPerMinute creates a limiter allowing permitsPerMinute calls, spaced
// evenly. permitsPerMinute below 1 is treated as 1.
func NewPerMinute(permitsPerMinute int) *Limiter {
	if permitsPerMinute < 1 {
		permitsPerMinute = 1
	}
	interval := time.Minute / time.Duration(permitsPerMinute)
	return &Limiter{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Interval returns the spacing between permits.
func (l *Limiter) Interval() time.Duration {
	return time.Duration(float64(time.Second) / float64(l.limiter.Limit()))
}

// Acquire blocks until a permit is available or ctx is done. It never
// deadlocks: the wait is bounded by the permit interval and holds no locks.
func (l *Limiter) Acquire(ctx context.Context) error {
	r := l.limiter.Reserve()
	if !r.OK() {
		// Unreachable with burst 1 and no deadline, kept for safety.
		return context.DeadlineExceeded
	}
	delay := r.Delay()
	if delay > 0 {
		metrics.PriceAPIRateLimitWaits.Inc()
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			r.Cancel()
			return ctx.Err()
		}
	}
	return nil
}

// TryAcquire takes a permit if one is immediately available, returning false
// rather than waiting.
func (l *Limiter) TryAcquire() bool {
	return l.limiter.Allow()
}
