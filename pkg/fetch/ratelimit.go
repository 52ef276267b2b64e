package fetch

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiter caps the aggregate request rate across the crawler and all workers.
// A zero rate disables it.
type RateLimiter struct {
	limiter *rate.Limiter
	log     *logrus.Entry
}

// NewRateLimiter creates a RateLimiter allowing perSecond requests with a burst of one
func NewRateLimiter(perSecond float64, log *logrus.Entry) *RateLimiter {
	rl := &RateLimiter{log: log}
	if perSecond > 0 {
		rl.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return rl
}

// Enabled reports whether a global cap is in effect
func (rl *RateLimiter) Enabled() bool {
	return rl != nil && rl.limiter != nil
}

// Wait blocks until a request may be made or ctx is done
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if !rl.Enabled() {
		return nil
	}
	start := time.Now()
	if err := rl.limiter.Wait(ctx); err != nil {
		return err
	}
	if waited := time.Since(start); waited > 10*time.Millisecond {
		rl.log.WithField("waited", waited).Debug("Global rate limit applied")
	}
	return nil
}

// Sleep pauses for d unless ctx is cancelled first.
// Returns ctx.Err() when interrupted.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
