// SPDX-License-Identifier: Apache-2.0

package fault

import (
	"context"
	"fmt"
)

type nativeTag struct{ _ byte }

func (*nativeTag) String() string { return "native" }

var nativeTagID = &nativeTag{}

var nativeErr = Tagger(nativeTagID)

// Native builds error values for failures that did not start out as error
// values: panics, and plain Go errors returned by code that does not use this
// package.
//
// Every boundary in the package (pipe stages, futures, flow routines) converts
// such failures with Native, so downstream code can tell "something panicked or
// returned a foreign error" apart from "a stage deliberately returned an error
// value" by checking [IsNative].
func Native(payload any) Err {
	return nativeErr(payload)
}

// IsNative reports whether v is an error value built by [Native].
func IsNative(v any) bool {
	return HasTag(nativeTagID, v)
}

// RecoveredPanic is the payload of a native error value built from a panic.
type RecoveredPanic struct {
	Value any
}

func (p *RecoveredPanic) Error() string {
	return fmt.Sprintf("panic recovered: %v", p.Value)
}

// Unwrap returns the panic value when it is an error.
func (p *RecoveredPanic) Unwrap() error {
	if err, ok := p.Value.(error); ok {
		return err
	}
	return nil
}

// toErr converts a non-nil error into an error value.
func toErr(err error) Err {
	if e, ok := err.(Err); ok && e.marker == errMarker {
		return e
	}
	return Native(err)
}

// adopt returns nil for nil, err itself for error values, and a native error
// value for anything else.
//
// Every error that leaves a boundary of this package has gone through adopt, so
// a non-nil error seen past a boundary always satisfies [IsErr].
func adopt(err error) error {
	if err == nil {
		return nil
	}
	return toErr(err)
}

func recovered(r any) Err {
	return Native(&RecoveredPanic{Value: r})
}

// Guard calls fn, converting a panic or a plain error into a native error
// value.
//
// Example:
//
//	cfg, err := fault.Guard(func() (*Config, error) {
//	    return loadConfig(path) // may panic on malformed input
//	})
func Guard[R any](fn func() (R, error)) (r R, err error) {
	defer func() {
		if p := recover(); p != nil {
			var zero R
			r, err = zero, recovered(p)
		}
	}()
	r, err = fn()
	if err != nil {
		var zero R
		return zero, toErr(err)
	}
	return r, nil
}

// call is Guard for one-argument functions, without the extra closure.
func call[A, B any](fn func(A) (B, error), a A) (b B, err error) {
	defer func() {
		if p := recover(); p != nil {
			var zero B
			b, err = zero, recovered(p)
		}
	}()
	b, err = fn(a)
	if err != nil {
		var zero B
		return zero, toErr(err)
	}
	return b, nil
}

// Try wraps fn so that it never panics and only fails with error values.
//
// Panics become native error values with a [*RecoveredPanic] payload; plain
// errors become native error values with the error as payload. Error values
// returned by fn pass through untouched.
//
// Example:
//
//	decode := fault.Try(func(b []byte) (Order, error) {
//	    var o Order
//	    return o, json.Unmarshal(b, &o)
//	})
func Try[A, R any](fn func(A) (R, error)) func(A) (R, error) {
	return func(a A) (R, error) {
		return call(fn, a)
	}
}

// TryAsync wraps a blocking fn so that each call runs it on its own goroutine
// and returns a [Future] that settles with its result.
//
// The conversions are the same as for [Try].
//
// Example:
//
//	fetch := fault.TryAsync(func(ctx context.Context, url string) (*http.Response, error) {
//	    req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return http.DefaultClient.Do(req)
//	})
//	res, err := fetch(ctx, "https://example.com").Await(ctx)
func TryAsync[A, R any](fn func(context.Context, A) (R, error)) func(context.Context, A) *Future[R] {
	return func(ctx context.Context, a A) *Future[R] {
		return Go(ctx, func(ctx context.Context) (R, error) {
			return fn(ctx, a)
		})
	}
}
