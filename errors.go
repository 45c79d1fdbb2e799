// SPDX-License-Identifier: Apache-2.0

package fault

import (
	"fmt"
	"reflect"
)

// marker is the identity that makes an [Err] an error value.
//
// It must not be zero-sized: distinct pointers to zero-sized values may
// compare equal.
type marker struct{ _ byte }

var errMarker = &marker{}

// Err is an error value: a failure returned, rather than panicked.
//
// An Err is created by [New], by a [Constructor] returned from [Tagger], or by
// the native conversions ([Native], [Try], [Guard]). It is immutable and has no
// identity beyond its marker, tag and payload. The zero Err is not an error
// value, and neither is any other type that merely looks like one; use [IsErr]
// to tell them apart.
//
// Err implements error so that it travels through the usual (T, error) return
// slot. Its payload is exposed to [errors.Is] and [errors.As] when it is itself
// an error.
//
// Two Errs compare equal with == when their tags and payloads do. Comparing
// Errs whose payloads are not comparable (slices, maps) with == panics, just
// like any other interface comparison; use [Equal] for those.
type Err struct {
	marker  *marker
	payload any
	tag     any
	tagged  bool
}

// New creates an error value carrying payload.
//
// Example:
//
//	func parsePort(s string) (int, error) {
//	    n, convErr := strconv.Atoi(s)
//	    if convErr != nil || n <= 0 || n > 65535 {
//	        return 0, fault.New("invalid port")
//	    }
//	    return n, nil
//	}
func New(payload any) Err {
	return Err{marker: errMarker, payload: payload}
}

// IsErr reports whether v is an error value produced by this package.
//
// It is the only test used anywhere in the package to decide whether a
// computation failed. It never reports true for values that were not built by
// [New], a [Constructor], or a native conversion, no matter how they are shaped.
func IsErr(v any) bool {
	e, ok := v.(Err)
	return ok && e.marker == errMarker
}

// Payload returns what the error value carries.
//
// Payload of a value that is not an error value returns nil; guard with [IsErr].
func (e Err) Payload() any {
	if e.marker != errMarker {
		return nil
	}
	return e.payload
}

// Error implements the error interface.
func (e Err) Error() string {
	if e.tagged {
		return fmt.Sprintf("%v: %v", e.tag, e.payload)
	}
	return fmt.Sprint(e.payload)
}

// Unwrap returns the payload when it is an error.
func (e Err) Unwrap() error {
	if err, ok := e.payload.(error); ok {
		return err
	}
	return nil
}

// Is reports whether target is an equal error value, for use with [errors.Is].
func (e Err) Is(target error) bool {
	t, ok := target.(Err)
	return ok && Equal(e, t)
}

// Equal reports whether a and b are both error values with the same tag and
// payload.
//
// Unlike ==, Equal does not panic on payloads that are not comparable; those
// are compared with [reflect.DeepEqual].
func Equal(a, b Err) bool {
	if !IsErr(a) || !IsErr(b) || a.tagged != b.tagged {
		return false
	}
	return looseEqual(a.tag, b.tag) && looseEqual(a.payload, b.payload)
}

func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	// Value.Comparable looks into interface fields, which Type.Comparable
	// does not.
	if va.Comparable() && vb.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// PayloadAs returns the payload of v as a P.
//
// It reports false if v is not an error value or its payload is not a P.
//
// Example:
//
//	_, err := checkout(ctx, cart)
//	if reason, ok := fault.PayloadAs[string](err); ok {
//	    log.Printf("checkout refused: %s", reason)
//	}
func PayloadAs[P any](v any) (P, bool) {
	e, ok := v.(Err)
	if !ok || e.marker != errMarker {
		var zero P
		return zero, false
	}
	p, ok := e.payload.(P)
	return p, ok
}

// UnexpectedError is the panic value raised by [Must] when it meets an error
// value.
type UnexpectedError struct {
	// Err is the error value that was not expected.
	Err Err
}

// Error implements the error interface.
func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected error: %v", e.Err)
}

// Unwrap returns the error value that was not expected.
func (e *UnexpectedError) Unwrap() error {
	return e.Err
}

// Must returns v when err is nil and panics with an [*UnexpectedError]
// otherwise.
//
// Must is the one place where an error value is turned back into a panic. It
// suits call sites that know failure is impossible or want to crash on it:
//
//	port := fault.Must(parsePort("8080"))
//
// An err that is not an error value is first converted with [Native].
func Must[T any](v T, err error) T {
	if err != nil {
		panic(&UnexpectedError{Err: toErr(err)})
	}
	return v
}

// OrDefault returns v when err is nil and fallback otherwise.
func OrDefault[T any](v T, err error, fallback T) T {
	if err != nil {
		return fallback
	}
	return v
}

// OrZero returns v when err is nil and the zero value of T otherwise.
func OrZero[T any](v T, err error) T {
	var zero T
	return OrDefault(v, err, zero)
}
