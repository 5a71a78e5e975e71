// Package resilience guards the embedding-provider boundary: a failure
// breaker that stops hammering a provider that keeps erroring, and a
// bounded retry schedule for the transient failures worth retrying at all.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Run when the breaker is rejecting calls.
var ErrOpen = errors.New("provider breaker open")

// Breaker trips after a run of consecutive provider failures and rejects
// calls for a cooldown period. Once the cooldown elapses a single probe
// call is admitted: if it succeeds the breaker closes, if it fails the
// cooldown restarts. Context cancellation is the caller's doing, not the
// provider's, and never counts as a strike.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	strikes  int
	openedAt time.Time
	probing  bool
}

// NewBreaker builds a Breaker that opens after threshold consecutive
// failures and cools down for the given duration before probing.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Run executes fn under the breaker. While open and cooling down it
// returns ErrOpen without calling fn; the first caller after the cooldown
// is admitted as the probe, and concurrent callers keep getting ErrOpen
// until the probe settles.
func (b *Breaker) Run(ctx context.Context, fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn()
	b.settle(ctx, probe, err)
	return err
}

// RunValue is Run for calls that produce a value.
func RunValue[T any](ctx context.Context, b *Breaker, fn func() (T, error)) (T, error) {
	var out T
	err := b.Run(ctx, func() error {
		v, ferr := fn()
		if ferr != nil {
			return ferr
		}
		out = v
		return nil
	})
	return out, err
}

// Open reports whether the breaker is currently rejecting calls.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.strikes >= b.threshold && (b.now().Sub(b.openedAt) < b.cooldown || b.probing)
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.strikes < b.threshold {
		return false, nil
	}
	if b.now().Sub(b.openedAt) < b.cooldown || b.probing {
		return false, ErrOpen
	}
	b.probing = true
	return true, nil
}

func (b *Breaker) settle(ctx context.Context, probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probing = false
	}
	switch {
	case err == nil:
		b.strikes = 0
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		// The caller went away mid-call; the provider proved nothing
		// either way, so the strike count stays where it was.
	default:
		b.strikes++
		if b.strikes >= b.threshold {
			b.openedAt = b.now()
		}
	}
}
