// SPDX-License-Identifier: Apache-2.0

package fault

import (
	"context"
	"iter"
	"log/slog"
)

// Run drives routine to completion and returns its result.
//
// The routine runs as a coroutine: each time it calls [Await], Run waits for
// the point it suspended on (without holding up the routine's goroutine for
// anything else) and resumes it with the value. Points are awaited one at a
// time, in program order.
//
// If a point settles with an error value, the routine is never resumed again,
// and Run returns that error value. Otherwise Run returns whatever the routine
// returns, including an error value it returned itself. A panic in the routine,
// or a plain error it returns, becomes a native error value.
//
// There is no cancellation other than this: to stop a routine early, make the
// point it waits on fail, for example by cancelling the ctx it is awaited with.
//
// Example:
//
//	total, err := fault.Run(ctx, func(ctx context.Context, y *fault.Yield) (float64, error) {
//	    a := fault.Await(y, fault.Of(roll()))
//	    b := fault.Await(y, fault.Of(roll()))
//	    return a + b*5, nil
//	})
func Run[R any](ctx context.Context, routine Routine[R]) (R, error) {
	y := &Yield{ctx: ctx}
	var (
		result    R
		resultErr error
	)
	next, stop := iter.Pull(func(yield func(point) bool) {
		y.yield = yield
		y.state.Store(int32(Running))
		result, resultErr = routine(ctx, y)
	})

	for {
		p, more, err := pull(next)
		if err != nil {
			y.state.Store(int32(Failed))
			Slogger(y.ctx).Log(y.ctx, slog.LevelDebug, "flow panicked",
				"name", fullName(y.ctx), "point", y.points, "error", err)
			var zero R
			return zero, err
		}
		if !more {
			if resultErr != nil {
				y.state.Store(int32(Failed))
				var zero R
				return zero, toErr(resultErr)
			}
			y.state.Store(int32(Completed))
			return result, nil
		}

		y.points++
		v, err := y.await(p)
		if err != nil {
			y.state.Store(int32(Failed))
			Slogger(y.ctx).Log(y.ctx, slog.LevelDebug, "flow short-circuited",
				"name", fullName(y.ctx), "point", y.points, "native", IsNative(err), "error", err)
			abandon(stop)
			var zero R
			return zero, err
		}
		y.resumed = v
		y.state.Store(int32(Running))
	}
}

// pull resumes the routine, turning a panic in it into a native error value.
func pull(next func() (point, bool)) (p point, more bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, more, err = nil, false, recovered(r)
		}
	}()
	p, more = next()
	return p, more, nil
}

// abandon unwinds a suspended routine that will not be resumed.
//
// The routine sees its pending Await panic with abandoned; that panic, and any
// other raised by the routine's deferred calls while unwinding, ends here.
func abandon(stop func()) {
	defer func() {
		_ = recover()
	}()
	stop()
}

// await waits for p with the routine's current context, recording the wait in
// the active trace, if any.
func (y *Yield) await(p point) (any, error) {
	f := lookup(y.ctx)
	if f == nil || f.trace == nil {
		return awaitPoint(y.ctx, p)
	}
	idx := f.trace.newEvent(Names(y.ctx), y.points)
	v, err := awaitPoint(y.ctx, p)
	f.trace.recordFinish(idx, err)
	return v, err
}

// awaitPoint waits for p, turning a panic while waiting, such as one from a
// nil future, into a native error value.
func awaitPoint(ctx context.Context, p point) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, recovered(r)
		}
	}()
	return p.awaitAny(ctx)
}
