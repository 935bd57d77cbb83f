package distantapi

import (
	"context"
	"sync/atomic"
	"time"
)

// sessionLimiter bounds the number of concurrent SSH sessions one Api
// opens against its connection, adapted from the teacher's
// client/semaphore.go poolSemaphore (there bounding concurrent PSRP
// runspace pipelines via MaxRunspaces); here it bounds concurrent SSH
// sessions per connection instead, since sshd's MaxSessions setting
// makes an unbounded burst of proc_spawn/copy/system_info calls fail
// outright rather than queue.
type sessionLimiter struct {
	tokens  chan struct{}
	waiting int32
	timeout time.Duration
}

// newSessionLimiter builds a limiter allowing up to max concurrent
// sessions. max <= 0 means unbounded (a closed channel is never used;
// acquire short-circuits instead).
func newSessionLimiter(max int, timeout time.Duration) *sessionLimiter {
	if max <= 0 {
		return &sessionLimiter{timeout: timeout}
	}
	return &sessionLimiter{tokens: make(chan struct{}, max), timeout: timeout}
}

// acquire blocks until a session slot is free, ctx is canceled, or the
// limiter's timeout elapses. Unbounded limiters always succeed.
func (l *sessionLimiter) acquire(ctx context.Context) error {
	if l.tokens == nil {
		return nil
	}

	select {
	case l.tokens <- struct{}{}:
		return nil
	default:
	}

	atomic.AddInt32(&l.waiting, 1)
	defer atomic.AddInt32(&l.waiting, -1)

	timeout := l.timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case l.tokens <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return context.DeadlineExceeded
	}
}

// release returns a slot, a no-op for unbounded limiters.
func (l *sessionLimiter) release() {
	if l.tokens == nil {
		return
	}
	select {
	case <-l.tokens:
	default:
	}
}
