package netproto

import (
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/smnsjas/go-distant/config"
)

// Clock provides time operations, injectable for deterministic breaker
// tests, grounded on the teacher's client/clock.go.
type Clock interface{ Now() time.Time }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// CircuitState is one state of a CircuitBreaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// ErrCircuitOpen is returned by CircuitBreaker.Execute while the circuit
// is open and failing fast.
var ErrCircuitOpen = errors.New("netproto: circuit breaker is open")

// CircuitBreaker implements the Circuit Breaker pattern guarding a
// ManagerClient's non-streaming send calls, direct port of the teacher's
// client/breaker.go with the event-callback fields dropped (no
// SPEC_FULL.md component observes breaker transitions) and its policy
// type swapped for config.CircuitBreakerPolicy.
type CircuitBreaker struct {
	mu sync.Mutex

	state       CircuitState
	failures    int
	successes   int
	lastFailure time.Time

	threshold        int
	successThreshold int
	timeout          time.Duration
	enabled          bool
	clock            Clock
}

// NewCircuitBreaker builds a breaker from policy.
func NewCircuitBreaker(policy config.CircuitBreakerPolicy) *CircuitBreaker {
	return &CircuitBreaker{
		state:             StateClosed,
		threshold:         policy.FailureThreshold,
		successThreshold:  policy.SuccessThreshold,
		timeout:           policy.ResetTimeout,
		enabled:           policy.Enabled,
		clock:             realClock{},
	}
}

// Execute runs fn through the breaker, short-circuiting with
// ErrCircuitOpen while open and the reset timeout hasn't elapsed.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.enabled {
		return fn()
	}
	if err := cb.checkState(); err != nil {
		return err
	}
	err := fn()
	cb.updateState(err)
	return err
}

func (cb *CircuitBreaker) checkState() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.clock.Now().Sub(cb.lastFailure) > cb.timeout {
			cb.state = StateHalfOpen
			cb.successes = 0
			return nil
		}
		return ErrCircuitOpen
	}
	return nil
}

func (cb *CircuitBreaker) updateState(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.successes++
			threshold := cb.successThreshold
			if threshold < 1 {
				threshold = 1
			}
			if cb.successes >= threshold {
				cb.state = StateClosed
			}
		}
		return
	}
	if errors.Is(err, ErrCircuitOpen) {
		return
	}

	cb.failures++
	cb.lastFailure = cb.clock.Now()

	if cb.state == StateHalfOpen {
		cb.state = StateOpen
		return
	}
	if cb.state == StateClosed && cb.failures >= cb.threshold {
		cb.state = StateOpen
	}
}

// State reports the breaker's current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// IsRetryableError classifies transport-level failures as transient,
// direct port of the teacher's client/retry.go isRetryableError, with
// the PSRP-pool-specific sentinels dropped (no runspace concept here).
// netproto's own ErrEndOfStream is an alias for io.EOF (a clean peer
// close) and is deliberately NOT retryable, unlike a mid-frame
// io.ErrUnexpectedEOF.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrEndOfStream) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "connection reset") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "i/o timeout") ||
		strings.Contains(s, "network is unreachable") ||
		strings.Contains(s, "no route to host") ||
		strings.Contains(s, "broken pipe")
}

// RetryBackoff computes the delay before retry attempt n (1-based),
// exponential with cap, direct port of the teacher's
// client/retry.go calculateRetryBackoff.
func RetryBackoff(attempt int, policy config.RetryPolicy) time.Duration {
	delay := policy.InitialDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	if attempt <= 1 {
		return delay
	}

	multiplier := policy.Multiplier
	if multiplier < 1.0 {
		multiplier = 2.0
	}

	backoff := float64(delay) * math.Pow(multiplier, float64(attempt-1))
	maxDelay := policy.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	if backoff > float64(maxDelay) || backoff > float64(math.MaxInt64) {
		return maxDelay
	}
	return time.Duration(backoff)
}

// RetryWithPolicy runs fn, retrying per policy while ctx is live and the
// error is retryable, sleeping RetryBackoff(attempt) between attempts.
func RetryWithPolicy(ctx context.Context, policy config.RetryPolicy, fn func() error) error {
	if !policy.Enabled {
		return fn()
	}

	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !IsRetryableError(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-time.After(RetryBackoff(attempt, policy)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
