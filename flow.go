// SPDX-License-Identifier: Apache-2.0

package fault

import (
	"context"
	"sync/atomic"
)

// A Routine is a computation that can suspend on pending values.
//
// A routine suspends by calling [Await] with the [Yield] it was given; [Run]
// waits for the value it suspended on, and resumes it with the result. If the
// value turns out to be an error value the routine is not resumed at all: the
// run ends with that error value. This makes a routine read like straight-line
// blocking code in which every failure returns early, without any error checks.
//
// Routines compose by calling each other with the same ctx and y:
//
//	func loadCart(ctx context.Context, y *fault.Yield) (Cart, error) {
//	    user := fault.Await(y, fault.Go(ctx, session.User))
//	    return fault.Await(y, carts.Load(ctx, user.ID)), nil
//	}
//
//	func checkout(ctx context.Context, y *fault.Yield) (Receipt, error) {
//	    cart, err := loadCart(ctx, y)
//	    if err != nil {
//	        return Receipt{}, err
//	    }
//	    return fault.Await(y, payments.Charge(ctx, cart)), nil
//	}
type Routine[R any] = func(ctx context.Context, y *Yield) (R, error)

// State is the lifecycle state of a routine being run.
type State int32

// Routine states. A routine moves from Created to Running, then between
// Running and Suspended, and ends Completed or Failed.
const (
	Created State = iota
	Running
	Suspended
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Suspended:
		return "suspended"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Yield is a routine's handle on the run driving it.
//
// A Yield belongs to one call of [Run]. It must only be used by the routine
// that received it, on the goroutine that routine was started on, and only
// while that run is in progress.
type Yield struct {
	// ctx is the context points are awaited with; decorators such as Named and
	// WithTimeout swap it for the duration of the routine they wrap.
	ctx     context.Context
	yield   func(point) bool
	resumed any
	state   atomic.Int32
	points  int
}

// State returns the routine's current state.
func (y *Yield) State() State {
	return State(y.state.Load())
}

// withContext installs ctx as the awaiting context and returns a function that
// restores the previous one.
func (y *Yield) withContext(ctx context.Context) func() {
	prev := y.ctx
	y.ctx = ctx
	return func() {
		y.ctx = prev
	}
}

// abandoned unwinds a routine that will never be resumed.
type abandoned struct{}

func (y *Yield) suspend(p point) any {
	if !y.state.CompareAndSwap(int32(Running), int32(Suspended)) {
		panic("fault: Await called on a routine that is not running")
	}
	if !y.yield(p) {
		panic(abandoned{})
	}
	return y.resumed
}

// point is the type-erased view of a Point that the runner works with.
type point interface {
	awaitAny(ctx context.Context) (any, error)
}

// A Point is something a [Routine] can suspend on with [Await].
//
// Points are [*Future] values, settled results made with [Of] and [Just], and
// the combinators [All] and [Race].
type Point[T any] interface {
	point
	future(ctx context.Context) *Future[T]
}

func (f *Future[T]) future(context.Context) *Future[T] { return f }

func (f *Future[T]) awaitAny(ctx context.Context) (any, error) {
	return f.Await(ctx)
}

type settled[T any] struct {
	value T
	err   error
}

// Of makes a Point from a (T, error) result, so that ordinary fallible calls
// can be awaited:
//
//	n := fault.Await(y, fault.Of(strconv.Atoi(s)))
//
// An err that is not an error value is converted with [Native].
func Of[T any](v T, err error) Point[T] {
	return settled[T]{value: v, err: adopt(err)}
}

// Just makes a Point that resumes with v.
func Just[T any](v T) Point[T] {
	return settled[T]{value: v}
}

func (s settled[T]) future(context.Context) *Future[T] {
	return settle(s.value, s.err)
}

func (s settled[T]) awaitAny(context.Context) (any, error) {
	return s.value, s.err
}

// Await suspends the routine on p and returns p's value once it has settled.
//
// If p settles with an error value, Await does not return: the run ends with
// that error value and the rest of the routine is abandoned. Deferred calls in
// the routine still run as it unwinds, but it must not recover from the unwind
// and carry on, and Await called from them panics.
//
// A panic while waiting for p, for example because p is a nil [*Future], fails
// the run with a native error value like any other failed point.
//
// Await must be called on the goroutine the routine was started on. Calling it
// from a goroutine the routine spawned is caught only when it races with the
// routine's own Await; otherwise it crashes the program with a fatal error
// that cannot be recovered.
func Await[T any](y *Yield, p Point[T]) T {
	v := y.suspend(p)
	if v == nil {
		var zero T
		return zero
	}
	return v.(T)
}

type allPoint[T any] struct {
	points []Point[T]
}

// All returns a Point that waits for all of points concurrently.
//
// Awaiting it suspends the routine once, not once per point. It resumes with
// the values of all points in the order given, or fails with the first error
// value to settle, which is not necessarily the one earliest in the list.
//
// Example:
//
//	prices := fault.Await(y, fault.All(
//	    quote(ctx, "AAPL"),
//	    quote(ctx, "GOOG"),
//	))
func All[T any](points ...Point[T]) Point[[]T] {
	return allPoint[T]{points: points}
}

func (a allPoint[T]) wait(ctx context.Context) ([]T, error) {
	futures := make([]*Future[T], len(a.points))
	for i, p := range a.points {
		futures[i] = p.future(ctx)
	}
	return WaitAll(ctx, futures...)
}

func (a allPoint[T]) future(ctx context.Context) *Future[[]T] {
	return Go(ctx, a.wait)
}

func (a allPoint[T]) awaitAny(ctx context.Context) (any, error) {
	return a.wait(ctx)
}

type racePoint[T any] struct {
	points []Point[T]
}

// Race returns a Point that settles like the first of points to settle, with
// its value or its error value as is.
//
// With no points, awaiting Race fails with a native error value wrapping
// [ErrNoFutures].
func Race[T any](points ...Point[T]) Point[T] {
	return racePoint[T]{points: points}
}

func (r racePoint[T]) wait(ctx context.Context) (T, error) {
	futures := make([]*Future[T], len(r.points))
	for i, p := range r.points {
		futures[i] = p.future(ctx)
	}
	return WaitFirst(ctx, futures...)
}

func (r racePoint[T]) future(ctx context.Context) *Future[T] {
	return Go(ctx, r.wait)
}

func (r racePoint[T]) awaitAny(ctx context.Context) (any, error) {
	return r.wait(ctx)
}
