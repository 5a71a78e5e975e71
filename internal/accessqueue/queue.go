// Package accessqueue implements a bounded access-bookkeeping queue:
// access-counter bumps after recall are fire-and-forget, at-least-once,
// and must be "a bounded work queue drained by a single writer... never
// unstructured task spawning" so shutdown can drain it deterministically.
package accessqueue

import (
	"context"
	"log/slog"
	"sync"
)

// Bump is one fire-and-forget access-counter update: bump AccessCount and
// LastAccessedAt for unit id. Duplicates are tolerated (counters are
// monotone increments, so at-least-once delivery is safe).
type Bump struct {
	ID string
}

// Apply is the single-writer side effect a Queue drains bumps into —
// MemoryService wires this to its store's Get-then-Upsert access-bump
// logic.
type Apply func(ctx context.Context, b Bump) error

// Queue is a bounded channel drained by exactly one goroutine. Enqueue
// never blocks the caller: a full queue drops the bump and logs a warning
// rather than applying backpressure to recall's hot path: background
// access-counter updates never surface errors to the caller.
type Queue struct {
	ch     chan Bump
	apply  Apply
	log    *slog.Logger
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a Queue with the given buffer capacity and starts its single
// drain goroutine bound to ctx; call Stop to drain deterministically at
// shutdown.
func New(ctx context.Context, capacity int, apply Apply, log *slog.Logger) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	if log == nil {
		log = slog.Default()
	}
	runCtx, cancel := context.WithCancel(ctx)
	q := &Queue{
		ch:     make(chan Bump, capacity),
		apply:  apply,
		log:    log,
		cancel: cancel,
	}
	q.wg.Add(1)
	go q.drain(runCtx)
	return q
}

// Enqueue schedules b for application. Non-blocking: if the queue is full
// the bump is dropped (logged at warn) rather than stalling the caller.
func (q *Queue) Enqueue(b Bump) {
	select {
	case q.ch <- b:
	default:
		q.log.Warn("accessqueue full, dropping bump", "id", b.ID)
	}
}

func (q *Queue) drain(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case b := <-q.ch:
			if err := q.apply(ctx, b); err != nil {
				q.log.Warn("access bump failed", "id", b.ID, "error", err)
			}
		case <-ctx.Done():
			// Drain whatever is already buffered before exiting so a
			// Stop() during shutdown applies every bump that was
			// successfully enqueued before cancellation.
			for {
				select {
				case b := <-q.ch:
					if err := q.apply(context.Background(), b); err != nil {
						q.log.Warn("access bump failed during drain", "id", b.ID, "error", err)
					}
				default:
					return
				}
			}
		}
	}
}

// Stop cancels the queue's context and blocks until the drain goroutine
// exits, deterministically flushing whatever was already buffered. The
// channel itself is never closed: Enqueue may still be called concurrently
// with Stop (e.g. from an in-flight recall), and sending on a closed
// channel would panic.
func (q *Queue) Stop() {
	q.cancel()
	q.wg.Wait()
}
