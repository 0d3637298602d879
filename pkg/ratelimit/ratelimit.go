package ratelimit

import (
	"context"
	"math/rand/v2"
	"time"
)

// Limiter spaces out operations to at most rps per second, optionally adding
// positive jitter after each tick. It is safe for concurrent use.
type Limiter struct {
	ticker   *time.Ticker
	jitter   float64
	interval time.Duration
}

// NewLimiter creates a limiter. rps <= 0 yields a limiter that never blocks.
// jitter is clamped to [0, 1] and is a fraction of the tick interval.
func NewLimiter(rps float64, jitter float64) *Limiter {
	if rps <= 0 {
		return &Limiter{}
	}
	interval := time.Duration(float64(time.Second) / rps)
	return &Limiter{
		ticker:   time.NewTicker(interval),
		jitter:   clamp(jitter),
		interval: interval,
	}
}

// Wait blocks until the next tick or until ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.ticker == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ticker.C:
	}

	if l.jitter == 0 {
		return nil
	}
	// A ticker cannot fire early, so only the positive half of the jitter
	// range has an effect.
	extra := time.Duration(float64(l.interval) * l.jitter * (rand.Float64()*2 - 1))
	if extra <= 0 {
		return nil
	}
	return Pause(ctx, extra)
}

// Stop releases the underlying ticker.
func (l *Limiter) Stop() {
	if l != nil && l.ticker != nil {
		l.ticker.Stop()
	}
}

// Pause sleeps for d or until ctx is done, whichever comes first. Only the
// calling goroutine is suspended.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
