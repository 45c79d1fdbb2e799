// SPDX-License-Identifier: Apache-2.0

package fault

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// ErrNoFutures is the payload of the native error value returned by
// [WaitFirst] and [Race] when given nothing to wait for.
var ErrNoFutures = errors.New("no futures to wait for")

// settledChan is shared by every future that is created already settled.
var settledChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// A Future is a pending result: a value of type T or an error value, which
// becomes available once the computation behind it settles.
//
// A Future settles exactly once. Its result can be awaited any number of times,
// from any number of goroutines.
//
// Futures are how asynchronous stages hand their results to a [Pipe], and are
// the usual thing a [Routine] suspends on.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Go runs fn on a new goroutine and returns a Future for its result.
//
// A panic in fn settles the future with a native error value, as does a plain
// error; see [Try].
//
// Example:
//
//	user := fault.Go(ctx, func(ctx context.Context) (*User, error) {
//	    return db.LoadUser(ctx, id)
//	})
//	orders := fault.Go(ctx, func(ctx context.Context) ([]Order, error) {
//	    return db.LoadOrders(ctx, id)
//	})
//	u, err := user.Await(ctx)
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.value, f.err = Guard(func() (T, error) {
			return fn(ctx)
		})
	}()
	return f
}

// Resolve returns a Future already settled with v.
func Resolve[T any](v T) *Future[T] {
	return &Future[T]{done: settledChan, value: v}
}

// Reject returns a Future already settled with err.
//
// A nil err gives a future settled with the zero value. An err that is not an
// error value is converted with [Native].
func Reject[T any](err error) *Future[T] {
	return &Future[T]{done: settledChan, err: adopt(err)}
}

// settle returns an already settled Future for a (T, error) result that has
// already gone through adopt.
func settle[T any](v T, err error) *Future[T] {
	return &Future[T]{done: settledChan, value: v, err: err}
}

// Done returns a channel that is closed once the future has settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future settles or ctx ends.
//
// The error is nil or an error value. If ctx ends first, the error is a native
// error value wrapping the context's error.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, Native(ctx.Err())
	}
}

// Wait is Await without the value.
func (f *Future[T]) Wait(ctx context.Context) error {
	_, err := f.Await(ctx)
	return err
}

// WaitAll waits for all futures concurrently.
//
// If all of them succeed, their values are returned in the order the futures
// were given, regardless of the order they settled in. Otherwise the first
// error value to settle is returned, which is not necessarily the error of the
// earliest future in the list; the remaining waits are abandoned.
//
// Example:
//
//	prices, err := fault.WaitAll(ctx,
//	    quote(ctx, "AAPL"),
//	    quote(ctx, "GOOG"),
//	    quote(ctx, "MSFT"),
//	)
func WaitAll[T any](ctx context.Context, futures ...*Future[T]) ([]T, error) {
	results := make([]T, len(futures))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, f := range futures {
		group.Go(func() error {
			v, err := f.Await(groupCtx)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// WaitFirst waits for the first of futures to settle and returns its result as
// is, whether it succeeded or failed.
//
// Among futures that have already settled when WaitFirst is called, the
// earliest in the list wins. With no futures, WaitFirst fails with a native
// error value wrapping [ErrNoFutures].
func WaitFirst[T any](ctx context.Context, futures ...*Future[T]) (T, error) {
	if len(futures) == 0 {
		var zero T
		return zero, Native(ErrNoFutures)
	}
	for _, f := range futures {
		select {
		case <-f.done:
			return f.value, f.err
		default:
		}
	}

	type result struct {
		value T
		err   error
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so the losers never block after the winner has been taken.
	results := make(chan result, len(futures))
	for _, f := range futures {
		go func() {
			v, err := f.Await(ctx)
			results <- result{value: v, err: err}
		}()
	}
	r := <-results
	return r.value, r.err
}
