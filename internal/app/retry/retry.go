// Package retry implements a bounded, fixed-delay retry executor for remote
// calls. No jitter, no circuit breaker — attempts are capped and the delay
// between them is constant.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy bounds one retry loop.
type Policy struct {
	MaxAttempts int           // total attempts, including the first (min 1)
	Delay       time.Duration // fixed wait between attempts
	OnRetry     func(attempt int, err error)
}

// DefaultPolicy matches the generation workflow: 3 attempts, 2s apart.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Delay: 2 * time.Second}
}

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Do stops immediately instead of retrying.
// Validation-class failures (the remote explicitly rejected the request
// semantics) are permanent; network/timeout/5xx-class failures are not.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do invokes op up to p.MaxAttempts times, waiting p.Delay between attempts.
// Before each retry it calls p.OnRetry(attempt, err) with the just-failed
// attempt number (1-based). It returns the first success, or the last error
// after the attempt budget is spent. Permanent errors and context
// cancellation end the loop early. The attempt count is always returned so
// callers can surface it.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (result T, attempts int, err error) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result, err = op(ctx)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err

		var pe *permanentError
		if errors.As(err, &pe) {
			return result, attempt, pe.err
		}

		if attempt == p.MaxAttempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		select {
		case <-ctx.Done():
			return result, attempt, ctx.Err()
		case <-time.After(p.Delay):
		}
	}
	return result, p.MaxAttempts, lastErr
}
