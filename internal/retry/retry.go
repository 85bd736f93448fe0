// Package retry runs network operations under a fixed-delay, bounded-attempt policy.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultAttempts is the number of retries before the final attempt
	DefaultAttempts = 3

	// DefaultDelay is the fixed wait between attempts
	DefaultDelay = 60 * time.Second
)

// FatalError is returned when an operation still fails after all retries.
type FatalError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Policy describes when and how often an operation is retried.
type Policy struct {
	// Attempts is the number of retries; one final attempt follows them.
	Attempts int
	Delay    time.Duration
	// Retryable selects the errors worth retrying. Nil retries nothing.
	Retryable func(error) bool
	// OnRetry is called before each wait. Nil logs with slog.
	OnRetry func(op string, attempt int, err error)
	// Sleep waits between attempts. Nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns the default policy for the given error classifier.
func DefaultPolicy(retryable func(error) bool) Policy {
	return Policy{
		Attempts:  DefaultAttempts,
		Delay:     DefaultDelay,
		Retryable: retryable,
	}
}

// Do runs fn under the policy. A non-retryable error is returned as is; a
// retryable error that survives every attempt is wrapped in *FatalError.
func Do[T any](ctx context.Context, p Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if !p.retryable(err) {
			return v, err
		}

		p.onRetry(op, attempt, err)
		if serr := p.sleep(ctx); serr != nil {
			var zero T
			return zero, fmt.Errorf("%s: %w", op, serr)
		}
	}

	v, err := fn(ctx)
	if err == nil {
		return v, nil
	}
	if !p.retryable(err) {
		return v, err
	}

	var zero T
	return zero, &FatalError{Op: op, Attempts: p.Attempts + 1, Err: err}
}

func (p Policy) retryable(err error) bool {
	return p.Retryable != nil && p.Retryable(err)
}

func (p Policy) onRetry(op string, attempt int, err error) {
	if p.OnRetry != nil {
		p.OnRetry(op, attempt, err)
		return
	}
	slog.Warn("Operation failed, retrying", "op", op, "attempt", attempt, "delay", p.Delay, "error", err)
}

func (p Policy) sleep(ctx context.Context) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, p.Delay)
	}
	timer := time.NewTimer(p.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
