package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/memsearch/memsearch/internal/memerr"
)

// Backoff describes a retry schedule: up to Attempts tries total, sleeping
// between tries with full jitter over an exponential window that starts at
// Base and doubles up to Cap.
type Backoff struct {
	Attempts int
	Base     time.Duration
	Cap      time.Duration
}

// DefaultBackoff is tuned for a local embedding server: quick first retry,
// never more than a couple hundred milliseconds of added latency.
func DefaultBackoff() Backoff {
	return Backoff{Attempts: 3, Base: 50 * time.Millisecond, Cap: 200 * time.Millisecond}
}

// window returns the jitter window before try number attempt (0-based for
// the first retry): min(Cap, Base << attempt).
func (p Backoff) window(attempt int) time.Duration {
	d := p.Base << attempt
	if d <= 0 || d > p.Cap {
		d = p.Cap
	}
	return d
}

// Retry runs fn until it succeeds, fails permanently, or the schedule is
// exhausted. Permanent failures — bad input, a dimension mismatch,
// cancellation — are returned immediately; only provider-side transients
// (upstream errors, rate limits, I/O) are retried.
func Retry[T any](ctx context.Context, p Backoff, fn func() (T, error)) (T, error) {
	var zero T
	if p.Attempts <= 0 {
		p.Attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if attempt > 0 {
			wait := time.Duration(rand.Int63n(int64(p.window(attempt-1)) + 1))
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn()
		if err == nil {
			return v, nil
		}
		if Permanent(err) {
			return zero, err
		}
		lastErr = err
	}
	return zero, fmt.Errorf("gave up after %d attempts: %w", p.Attempts, lastErr)
}

// Permanent reports whether retrying err could possibly help. Caller
// mistakes and cancellations are permanent; everything else is presumed
// transient.
func Permanent(err error) bool {
	switch memerr.KindOf(err) {
	case memerr.InvalidArgument, memerr.Shape, memerr.NotFound, memerr.Conflict, memerr.Cancelled:
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
