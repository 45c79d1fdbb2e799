// SPDX-License-Identifier: Apache-2.0

package fault

import (
	"context"
	"fmt"
	"reflect"
)

// builder is the state shared by every view of one pipe.
type builder struct {
	// fn is a func(I) (O, error) while the pipe is synchronous, and a
	// func(context.Context, I) (O, error) once it has become asynchronous.
	// Either way, a non-nil error it returns is an error value.
	fn any

	// async never goes back to false once set.
	async bool
}

// A Pipe composes stage functions into one function that stops at the first
// error value.
//
// A Pipe is built with [NewPipe] or [NewAsyncPipe] and grown with [Then], [ThenAsync],
// [Pipe.Append], [Pipe.Tap] and [TapAsync]. Each of these replaces the pipe's
// function with one that calls the previous function, returns its error value
// unchanged if it failed, and otherwise feeds its result to the new stage.
// Stages therefore run strictly in the order they were added, and a stage after
// a failing one is never called.
//
// Growing a pipe mutates it and returns a view of the same pipe typed with the
// new output. A view whose output type no longer matches the pipe panics when
// used. A Pipe is a builder owned by one goroutine; do not grow it from several.
// The functions obtained from it with [Pipe.Sync], [Pipe.Async] or [Pipe.Run]
// keep no state and are safe for concurrent use.
//
// A pipe stays synchronous, calling its stages directly without goroutines or
// futures, until a stage that returns a [Future] is added with [ThenAsync] or
// [TapAsync]. From then on it is asynchronous for good: every call goes through
// futures, including the stages that were added before.
//
// Panics and plain errors from stages are converted into native error values
// (see [Native]); nothing panics out of a pipe.
//
// Example:
//
//	price := fault.Then(
//	    fault.NewPipe(parseOrder),       // func([]byte) (Order, error)
//	    applyDiscount,                   // func(Order) (Order, error)
//	).Append(addServiceCharge)           // func(Order) (Order, error)
//
//	total, err := price.Run(ctx, body)
type Pipe[I, O any] struct {
	b *builder
}

// NewPipe creates a synchronous pipe whose first stage is stage.
func NewPipe[I, O any](stage func(I) (O, error)) Pipe[I, O] {
	return Pipe[I, O]{b: &builder{fn: Try(stage)}}
}

// NewAsyncPipe creates an asynchronous pipe whose first stage is stage.
func NewAsyncPipe[I, O any](stage func(context.Context, I) *Future[O]) Pipe[I, O] {
	return Pipe[I, O]{b: &builder{
		fn: func(ctx context.Context, in I) (O, error) {
			return awaitStage(ctx, stage, in)
		},
		async: true,
	}}
}

func (p Pipe[I, O]) shared() *builder {
	if p.b == nil {
		panic("fault: use of a Pipe not created by NewPipe or NewAsyncPipe")
	}
	return p.b
}

func (p Pipe[I, O]) stale() {
	panic(fmt.Sprintf("fault: Pipe[%v, %v] used after a stage changed its output type",
		reflect.TypeFor[I](), reflect.TypeFor[O]()))
}

func (p Pipe[I, O]) syncFn() func(I) (O, error) {
	fn, ok := p.shared().fn.(func(I) (O, error))
	if !ok {
		p.stale()
	}
	return fn
}

func (p Pipe[I, O]) asyncFn() func(context.Context, I) (O, error) {
	fn, ok := p.shared().fn.(func(context.Context, I) (O, error))
	if !ok {
		p.stale()
	}
	return fn
}

// blocking returns the pipe's function in its asynchronous shape, whatever the
// pipe's current mode.
func (p Pipe[I, O]) blocking() func(context.Context, I) (O, error) {
	if p.shared().async {
		return p.asyncFn()
	}
	fn := p.syncFn()
	return func(_ context.Context, in I) (O, error) {
		return fn(in)
	}
}

// awaitStage starts an asynchronous stage and waits for its future.
func awaitStage[A, B any](ctx context.Context, stage func(context.Context, A) *Future[B], a A) (B, error) {
	return Guard(func() (B, error) {
		return stage(ctx, a).Await(ctx)
	})
}

// Then appends a synchronous stage to p.
//
// While p is synchronous the result stays synchronous: calling it costs little
// more than calling the stages directly.
func Then[I, A, B any](p Pipe[I, A], stage func(A) (B, error)) Pipe[I, B] {
	b := p.shared()
	if !b.async {
		prev := p.syncFn()
		b.fn = func(in I) (B, error) {
			a, err := prev(in)
			if err != nil {
				var zero B
				return zero, err
			}
			return call(stage, a)
		}
		return Pipe[I, B]{b: b}
	}
	prev := p.asyncFn()
	b.fn = func(ctx context.Context, in I) (B, error) {
		a, err := prev(ctx, in)
		if err != nil {
			var zero B
			return zero, err
		}
		return call(stage, a)
	}
	return Pipe[I, B]{b: b}
}

// ThenAsync appends an asynchronous stage to p, making p asynchronous.
//
// The stage starts its work and returns a [Future]; the pipe waits for it
// before running the next stage.
func ThenAsync[I, A, B any](p Pipe[I, A], stage func(context.Context, A) *Future[B]) Pipe[I, B] {
	b := p.shared()
	prev := p.blocking()
	b.fn = func(ctx context.Context, in I) (B, error) {
		a, err := prev(ctx, in)
		if err != nil {
			var zero B
			return zero, err
		}
		return awaitStage(ctx, stage, a)
	}
	b.async = true
	return Pipe[I, B]{b: b}
}

// Append appends a synchronous stage that keeps the output type.
//
// It is [Then] as a method, for fluent chains.
func (p Pipe[I, O]) Append(stage func(O) (O, error)) Pipe[I, O] {
	return Then(p, stage)
}

// AppendAsync appends an asynchronous stage that keeps the output type.
//
// It is [ThenAsync] as a method, for fluent chains.
func (p Pipe[I, O]) AppendAsync(stage func(context.Context, O) *Future[O]) Pipe[I, O] {
	return ThenAsync(p, stage)
}

// Tap appends a stage that observes the current value without changing it.
//
// fn is not called if an earlier stage failed. A panic in fn fails the pipe
// with a native error value.
func (p Pipe[I, O]) Tap(fn func(O)) Pipe[I, O] {
	return Then(p, func(o O) (O, error) {
		fn(o)
		return o, nil
	})
}

// TapAsync appends an asynchronous stage that observes the current value
// without changing it, making p asynchronous.
//
// The pipe waits for fn's future to settle and then discards its result,
// including an error value it declared. A native error value fails the pipe
// instead: a panic in fn or in its future, a plain error, or ctx ending while
// the pipe waits.
func TapAsync[I, O, R any](p Pipe[I, O], fn func(context.Context, O) *Future[R]) Pipe[I, O] {
	b := p.shared()
	prev := p.blocking()
	b.fn = func(ctx context.Context, in I) (O, error) {
		o, err := prev(ctx, in)
		if err != nil {
			return o, err
		}
		f, err := Guard(func() (*Future[R], error) {
			return fn(ctx, o), nil
		})
		if err != nil {
			var zero O
			return zero, err
		}
		if f != nil {
			if err := f.Wait(ctx); IsNative(err) {
				var zero O
				return zero, err
			}
		}
		return o, nil
	}
	b.async = true
	return Pipe[I, O]{b: b}
}

// IsAsync reports whether the pipe has become asynchronous.
func (p Pipe[I, O]) IsAsync() bool {
	return p.shared().async
}

// Sync returns the pipe's function if the pipe is still synchronous.
//
// It reports false once the pipe has become asynchronous; use [Pipe.Async] or
// [Pipe.Run] then.
func (p Pipe[I, O]) Sync() (func(I) (O, error), bool) {
	if p.shared().async {
		return nil, false
	}
	return p.syncFn(), true
}

// Async returns the pipe's function in asynchronous form.
//
// For an asynchronous pipe, each call runs the pipe on a new goroutine and
// returns a future that is pending until the last stage settles. For a
// synchronous pipe, each call runs the pipe right away and returns an already
// settled future.
func (p Pipe[I, O]) Async() func(context.Context, I) *Future[O] {
	if !p.shared().async {
		fn := p.syncFn()
		return func(_ context.Context, in I) *Future[O] {
			return settle(fn(in))
		}
	}
	fn := p.asyncFn()
	return func(ctx context.Context, in I) *Future[O] {
		return Go(ctx, func(ctx context.Context) (O, error) {
			return fn(ctx, in)
		})
	}
}

// Run runs the pipe on in and waits for its result.
//
// The error is nil or an error value. ctx is only used by asynchronous pipes.
func (p Pipe[I, O]) Run(ctx context.Context, in I) (O, error) {
	if !p.shared().async {
		return p.syncFn()(in)
	}
	return p.asyncFn()(ctx, in)
}
