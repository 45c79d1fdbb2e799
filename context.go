// SPDX-License-Identifier: Apache-2.0

package fault

import (
	"context"
	"log/slog"
	"time"
)

// faultCtxKey is the context key for retrieving the faultCtx.
type faultCtxKey struct{}

// faultCtx consolidates the package's context values (trace, names, logger)
// so they cost a single lookup instead of one context hop each.
//
// The faultCtx embeds the parent context.Context to delegate cancellation,
// deadlines, and all other values.
type faultCtx struct {
	context.Context

	// trace is the active trace, nil when not tracing.
	trace *trace

	// names is the routine name stack, oldest first.
	names []string

	// slogger is the logger used by Run and WithSlogging.
	slogger *slog.Logger
}

// Value intercepts faultCtxKey lookups and delegates everything else to the
// parent context.
func (f *faultCtx) Value(key any) any {
	if _, ok := key.(faultCtxKey); ok {
		return f
	}
	return f.Context.Value(key)
}

// lookup returns the nearest faultCtx in ctx, or nil.
func lookup(ctx context.Context) *faultCtx {
	f, _ := ctx.Value(faultCtxKey{}).(*faultCtx)
	return f
}

// newFaultCtx wraps parent, inheriting package state from origin.
//
// A nil origin starts from the defaults: no trace, no names, slog.Default().
func newFaultCtx(parent context.Context, origin *faultCtx) *faultCtx {
	if origin == nil {
		return &faultCtx{Context: parent, slogger: slog.Default()}
	}
	return &faultCtx{
		Context: parent,
		trace:   origin.trace,
		names:   origin.names,
		slogger: origin.slogger,
	}
}

// WithTimeout wraps a routine so that it runs under a context that ends after
// timeout.
//
// When the timeout passes, the point the routine is suspended on fails with a
// native error value wrapping [context.DeadlineExceeded], which ends the run.
//
// Example:
//
//	fault.Run(ctx, fault.WithTimeout(5*time.Second, checkout))
func WithTimeout[R any](timeout time.Duration, routine Routine[R]) Routine[R] {
	return func(ctx context.Context, y *Yield) (R, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		defer y.withContext(ctx)()
		return routine(ctx, y)
	}
}

// Sleep returns a future that settles after d, or fails with a native error
// value if ctx ends first.
//
// Example:
//
//	for !ready {
//	    fault.Await(y, fault.Sleep(ctx, time.Second))
//	    ready = fault.Await(y, checkStatus(ctx))
//	}
func Sleep(ctx context.Context, d time.Duration) *Future[struct{}] {
	return Go(ctx, func(ctx context.Context) (struct{}, error) {
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-timer.C:
			return struct{}{}, nil
		case <-ctx.Done():
			return struct{}{}, ctx.Err()
		}
	})
}
