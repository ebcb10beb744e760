// Package retry implements the bounded exponential backoff used when a
// session to an endpoint cannot be opened on the first attempt.
//
// The policy is explicit and comes from configuration; callers never loop
// on their own.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// maxMultiplier caps the backoff growth factor.
const maxMultiplier = 100

// ErrInvalidPolicy is returned by Do when the policy cannot be applied.
var ErrInvalidPolicy = errors.New("retry: invalid policy")

// Policy describes how many attempts to make and how long to wait between them.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first. Values
	// below 1 mean a single attempt.
	MaxAttempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration

	// Multiplier grows the delay after each failed attempt. Zero means 2.
	Multiplier float64

	// Jitter adds up to 25% random extra delay.
	Jitter bool

	// OnRetry, when set, is called before each backoff sleep with the failed
	// attempt number, its error and the upcoming delay.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Once is a policy that makes exactly one attempt.
func Once() Policy {
	return Policy{MaxAttempts: 1}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns it unwrapped
// immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do calls fn until it succeeds, returns a Permanent error, ctx is done, or
// the policy runs out of attempts. The last error is wrapped in the result.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.InitialDelay < 0 || p.MaxDelay < 0 || p.Multiplier < 0 {
		return fmt.Errorf("%w: negative delay or multiplier", ErrInvalidPolicy)
	}
	if p.MaxDelay > 0 && p.MaxDelay < p.InitialDelay {
		return fmt.Errorf("%w: max delay shorter than initial delay", ErrInvalidPolicy)
	}

	attempts := max(p.MaxAttempts, 1)
	multiplier := p.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}
	multiplier = min(multiplier, maxMultiplier)

	delay := p.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled after attempt %d: %w", attempt, errors.Join(ctx.Err(), lastErr))
		}

		wait := delay
		if p.Jitter && delay >= 4 {
			wait += time.Duration(rand.Int63n(int64(delay / 4)))
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry cancelled during backoff after attempt %d: %w", attempt, errors.Join(ctx.Err(), lastErr))
			case <-timer.C:
			}
		}

		delay = nextDelay(delay, multiplier, p.MaxDelay)
	}

	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr)
}

// DoValue is Do for functions that produce a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, p, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

func nextDelay(current time.Duration, multiplier float64, ceiling time.Duration) time.Duration {
	next := float64(current) * multiplier
	if ceiling > 0 && next > float64(ceiling) {
		return ceiling
	}
	if next > float64(time.Duration(1<<62)) {
		return time.Duration(1 << 62)
	}
	return time.Duration(next)
}
