// SPDX-License-Identifier: Apache-2.0

package fault

import (
	"context"
	"math/rand/v2"
	"time"
)

// A RetryPredicate decides whether a failed call is tried again, given the
// number of calls made so far and the error value of the last one.
//
// Predicates that wait, such as the backoffs, do so before returning true.
type RetryPredicate = func(context.Context, int, error) bool

// BackoffOption configures [FixedBackoff] and [ExponentialBackoff].
type BackoffOption func(*backoffConfig)

type backoffConfig struct {
	fullJitter    bool
	percentJitter float64       // 0 disables
	maxDelay      time.Duration // 0 disables
	multiplier    float64
}

func newBackoffConfig(opts []BackoffOption) backoffConfig {
	cfg := backoffConfig{multiplier: 2}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithFullJitter replaces each delay with a random one between zero and the
// delay. It overrides [WithPercentageJitter]; the last of the two wins.
func WithFullJitter() BackoffOption {
	return func(c *backoffConfig) {
		c.fullJitter = true
		c.percentJitter = 0
	}
}

// WithPercentageJitter spreads each delay by up to percent of it either way:
// WithPercentageJitter(0.2) waits between 80% and 120% of the delay. It
// overrides [WithFullJitter]; the last of the two wins.
func WithPercentageJitter(percent float64) BackoffOption {
	return func(c *backoffConfig) {
		c.fullJitter = false
		c.percentJitter = percent
	}
}

// WithMaxDelay caps each delay, after jitter.
func WithMaxDelay(max time.Duration) BackoffOption {
	return func(c *backoffConfig) {
		c.maxDelay = max
	}
}

// WithMultiplier sets the growth factor of [ExponentialBackoff], 2 by
// default. [FixedBackoff] ignores it.
func WithMultiplier(m float64) BackoffOption {
	return func(c *backoffConfig) {
		c.multiplier = m
	}
}

// delay applies jitter and the cap to d.
//
// Jitter draws from math/rand/v2, which is seeded from the OS and good enough
// to spread retries apart.
func (c *backoffConfig) delay(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return 0
	case c.fullJitter:
		// #nosec G404
		d = time.Duration(rand.Int64N(int64(d) + 1))
	case c.percentJitter > 0:
		spread := float64(d) * c.percentJitter
		// #nosec G404
		d = time.Duration(float64(d) + rand.Float64()*2*spread - spread)
		if d < 0 {
			d = 0
		}
	}
	if c.maxDelay > 0 && d > c.maxDelay {
		d = c.maxDelay
	}
	return d
}

// wait sleeps for d, reporting false if ctx ends first.
func wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Retry wraps fn so that it is called again while it fails, based on the given
// predicates.
//
// All predicates must return true for a retry to occur. If any predicate
// returns false, the last error value is returned immediately. Panics and plain
// errors from fn count as failures, as native error values.
//
// If no predicates are provided, this defaults to retrying up to 3 times with
// exponential backoff starting at 100ms and full jitter to prevent thundering
// herd problems.
//
// Example:
//
//	charge := fault.Retry(payments.Charge,
//	    fault.UpTo(5),
//	    fault.OnlyTagged(ErrTransient),
//	    fault.ExponentialBackoff(50*time.Millisecond, fault.WithMaxDelay(2*time.Second)),
//	)
func Retry[A, R any](
	fn func(context.Context, A) (R, error),
	predicates ...RetryPredicate,
) func(context.Context, A) (R, error) {
	if len(predicates) == 0 {
		predicates = []RetryPredicate{
			UpTo(3),
			ExponentialBackoff(100*time.Millisecond, WithFullJitter()),
		}
	}
	return func(ctx context.Context, a A) (R, error) {
		attempts := 0
		for {
			r, err := Guard(func() (R, error) {
				return fn(ctx, a)
			})
			if err == nil {
				return r, nil
			}
			attempts++
			for _, predicate := range predicates {
				if !predicate(ctx, attempts, err) {
					return r, err
				}
			}
		}
	}
}

// RetryAsync is [Retry] for stages that return a [Future], such as those given
// to [ThenAsync]. Each attempt is awaited before the predicates are consulted.
func RetryAsync[A, R any](
	fn func(context.Context, A) *Future[R],
	predicates ...RetryPredicate,
) func(context.Context, A) *Future[R] {
	retried := Retry(func(ctx context.Context, a A) (R, error) {
		return fn(ctx, a).Await(ctx)
	}, predicates...)
	return func(ctx context.Context, a A) *Future[R] {
		return Go(ctx, func(ctx context.Context) (R, error) {
			return retried(ctx, a)
		})
	}
}

// Repeat wraps fn so that it is called again while it fails, at most n more
// times. The last result is returned, whether or not it failed.
//
// Unlike [Retry], Repeat does not wait between calls and ignores context
// cancellation: it is meant for cheap, synchronous functions.
func Repeat[A, R any](n int, fn func(A) (R, error)) func(A) (R, error) {
	try := Try(fn)
	return func(a A) (R, error) {
		for i := 1; ; i++ {
			r, err := try(a)
			if err == nil || i > n {
				return r, err
			}
		}
	}
}

// Until wraps fn so that it is called again until pass accepts its result.
//
// pass sees every result, failed or not, and there is no limit on the number
// of calls.
//
// Example:
//
//	nextOdd := fault.Until(func(n int, err error) bool {
//	    return err == nil && n%2 == 1
//	}, roll)
func Until[A, R any](pass func(R, error) bool, fn func(A) (R, error)) func(A) (R, error) {
	try := Try(fn)
	return func(a A) (R, error) {
		for {
			r, err := try(a)
			if pass(r, err) {
				return r, err
			}
		}
	}
}

// UpTo allows at most maxAttempts calls in total.
func UpTo(maxAttempts int) RetryPredicate {
	return func(_ context.Context, attempts int, _ error) bool {
		return attempts < maxAttempts
	}
}

// FixedBackoff waits delay before each retry.
//
// It stops retrying if ctx ends during the wait. [WithMultiplier] has no
// effect on it.
func FixedBackoff(delay time.Duration, opts ...BackoffOption) RetryPredicate {
	cfg := newBackoffConfig(opts)
	return func(ctx context.Context, _ int, _ error) bool {
		return wait(ctx, cfg.delay(delay))
	}
}

// ExponentialBackoff waits base × multiplier^(attempts-1) before each retry:
// 100ms, 200ms, 400ms and so on for a base of 100ms.
//
// Attempt counts below 1 count as 1. A delay that overflows falls back to
// base with the default multiplier, and to a year otherwise; use
// [WithMaxDelay] to bound growth. It stops retrying if ctx ends during the
// wait.
func ExponentialBackoff(base time.Duration, opts ...BackoffOption) RetryPredicate {
	cfg := newBackoffConfig(opts)
	return func(ctx context.Context, attempts int, _ error) bool {
		attempts = max(attempts, 1)

		var delay time.Duration
		if cfg.multiplier == 2 {
			// #nosec G115 -- attempts >= 1
			shift := min(uint(attempts)-1, 62)
			delay = base << shift
			if delay>>shift != base {
				delay = base
			}
		} else {
			delay = base
			for i := 1; i < attempts; i++ {
				delay = time.Duration(float64(delay) * cfg.multiplier)
				if delay <= 0 {
					delay = 365 * 24 * time.Hour
					break
				}
			}
		}
		return wait(ctx, cfg.delay(delay))
	}
}

// OnlyIf retries only error values that check accepts.
func OnlyIf(check func(error) bool) RetryPredicate {
	return func(_ context.Context, _ int, err error) bool {
		return check(err)
	}
}

// OnlyTagged retries only error values tagged with tag (see [Tagger]).
//
// Native error values, such as panics in the retried function, are never
// retried.
func OnlyTagged[T comparable](tag T) RetryPredicate {
	return func(_ context.Context, _ int, err error) bool {
		return HasTag(tag, err)
	}
}

// SkipNative stops retrying on native error values: panics, plain errors and
// context errors.
func SkipNative() RetryPredicate {
	return func(_ context.Context, _ int, err error) bool {
		return !IsNative(err)
	}
}
