// SPDX-License-Identifier: Apache-2.0

package fault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// ==== Test Helpers: Error Variables ====

var error1 = errors.New("error 1")
var error2 = errors.New("error 2")

var tooSmall = New("too small")

type testTag string

const (
	tagTransient testTag = "transient"
	tagPermanent testTag = "permanent"
)

var errTransient = Tagger(tagTransient)
var errPermanent = Tagger(tagPermanent)

// ==== Test Helpers: Stages ====

// counter counts calls made through the functions it returns.
type counter struct {
	calls atomic.Int64
}

func (c *counter) count() int64 {
	return c.calls.Load()
}

// double returns a stage that doubles its input.
func (c *counter) double() func(int) (int, error) {
	return func(n int) (int, error) {
		c.calls.Add(1)
		return n * 2, nil
	}
}

// failWith returns a stage that fails with err.
func (c *counter) failWith(err error) func(int) (int, error) {
	return func(int) (int, error) {
		c.calls.Add(1)
		return 0, err
	}
}

// later returns a future that settles with v, err after d.
func later[T any](ctx context.Context, d time.Duration, v T, err error) *Future[T] {
	return Go(ctx, func(ctx context.Context) (T, error) {
		select {
		case <-time.After(d):
			return v, err
		case <-ctx.Done():
			return v, ctx.Err()
		}
	})
}

// pending returns a future that never settles until ctx ends.
func pending[T any](ctx context.Context) *Future[T] {
	return Go(ctx, func(ctx context.Context) (T, error) {
		<-ctx.Done()
		var zero T
		return zero, ctx.Err()
	})
}

// ==== Test Helpers: Error Validators ====

// isNil validates that the error is nil.
func isNil(testErr error) error {
	if testErr != nil {
		return fmt.Errorf("unexpected error: %w", testErr)
	}
	return nil
}

// isErrValue validates that the error is an error value.
func isErrValue(testErr error) error {
	if !IsErr(testErr) {
		return fmt.Errorf("expected an error value, got %#v", testErr)
	}
	return nil
}

// isNative validates that the error is a native error value.
func isNative(testErr error) error {
	if !IsNative(testErr) {
		return fmt.Errorf("expected a native error value, got %v", testErr)
	}
	return nil
}

// isNotNative validates that the error is an error value that is not native.
func isNotNative(testErr error) error {
	if !IsErr(testErr) || IsNative(testErr) {
		return fmt.Errorf("expected a non-native error value, got %v", testErr)
	}
	return nil
}

// all returns a validator that passes only if all the given validators pass.
func all(validators ...func(error) error) func(error) error {
	return func(testErr error) error {
		for _, validator := range validators {
			if err := validator(testErr); err != nil {
				return err
			}
		}
		return nil
	}
}

// matches returns a validator that checks if the error matches the target error using errors.Is.
func matches(targetErr error) func(error) error {
	return func(testErr error) error {
		if !errors.Is(testErr, targetErr) {
			return fmt.Errorf("expected error %v to match error %v", testErr, targetErr)
		}
		return nil
	}
}

// hasTag returns a validator that checks the tag of an error value.
func hasTag[T comparable](tag T) func(error) error {
	return func(testErr error) error {
		if !HasTag(tag, testErr) {
			return fmt.Errorf("expected error value tagged %v, got %v", tag, testErr)
		}
		return nil
	}
}

// isRecoveredPanic validates that the error wraps a RecoveredPanic.
func isRecoveredPanic(testErr error) error {
	var recoveredPanic *RecoveredPanic
	if !errors.As(testErr, &recoveredPanic) {
		return fmt.Errorf("expected RecoveredPanic error, got %v", testErr)
	}
	return nil
}

// contains returns a validator that checks if the error message contains the given substring.
func contains(substring string) func(error) error {
	return func(testErr error) error {
		if testErr == nil || !strings.Contains(testErr.Error(), substring) {
			return fmt.Errorf("expected error to contain %q, got %v", substring, testErr)
		}
		return nil
	}
}

// check runs validator on testErr, failing the test if it does not pass.
func check(t *testing.T, testErr error, validator func(error) error) {
	t.Helper()
	if err := validator(testErr); err != nil {
		t.Error(err)
	}
}

// mustPanic runs fn and returns what it panicked with, failing the test if it
// did not panic.
func mustPanic(t *testing.T, fn func()) (r any) {
	t.Helper()
	defer func() {
		r = recover()
		if r == nil {
			t.Error("expected a panic")
		}
	}()
	fn()
	return nil
}
