package resilience

import (
	"context"
	"time"
)

// Default backoff parameters.
const (
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffMax  = 8 * time.Second
)

// Backoff computes an exponential retry schedule: base, 2*base, 4*base, …
// capped at max. It carries no mutable state; the attempt number selects the
// delay.
type Backoff struct {
	// Base is the delay before the first retry. Doubles each attempt.
	// Defaults to 500ms if zero.
	Base time.Duration

	// Max is the upper limit on any single delay. Defaults to 8s if zero.
	Max time.Duration
}

// Delay returns the wait before retry number attempt (1-based). Attempt
// values below 1 return zero.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	base := b.Base
	if base <= 0 {
		base = defaultBackoffBase
	}
	max := b.Max
	if max <= 0 {
		max = defaultBackoffMax
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Wait sleeps for the attempt's delay or until ctx is done, returning
// ctx.Err() in the latter case.
func (b Backoff) Wait(ctx context.Context, attempt int) error {
	d := b.Delay(attempt)
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
