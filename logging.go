// SPDX-License-Identifier: Apache-2.0

package fault

import (
	"context"
	"log/slog"
	"time"
)

// Slogger returns the [slog.Logger] from the context, or [slog.Default] if none is set.
//
// This is useful for custom logging decorators that need to access the configured
// structured logger.
//
// Example:
//
//	func Audited[R any](routine fault.Routine[R]) fault.Routine[R] {
//	    return func(ctx context.Context, y *fault.Yield) (R, error) {
//	        fault.Slogger(ctx).Info("audit", "names", fault.Names(ctx))
//	        return routine(ctx, y)
//	    }
//	}
func Slogger(ctx context.Context) *slog.Logger {
	f := lookup(ctx)
	if f == nil || f.slogger == nil {
		return slog.Default()
	}
	return f.slogger
}

// WithSlogger returns a context carrying logger for [Run], [WithSlogging] and
// [Slogger].
//
// [Run] logs at debug level when a routine fails: the routine's name, the
// number of the point it failed at, and whether the error value is native. If
// no logger is configured, [slog.Default] is used.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//	ctx = fault.WithSlogger(ctx, logger)
//	receipt, err := fault.Run(ctx, checkout)
func WithSlogger(ctx context.Context, logger *slog.Logger) context.Context {
	f := newFaultCtx(ctx, lookup(ctx))
	f.slogger = logger
	return f
}

// WithSlogging wraps a [Routine] with structured logging that emits log records
// when the routine starts and finishes, including execution duration.
//
// The log records include the full dotted path of routine names from the
// context as a "name" attribute (e.g., "checkout.payment"). If no names are set,
// the name attribute will be "<unknown>". The finish record includes a
// "duration_ms" attribute, and an "error" attribute if the routine failed.
//
// A routine that fails at a point it awaited does not return normally, so its
// finish record is logged while it unwinds.
//
// Example:
//
//	routine := fault.Named("checkout",
//	    fault.WithSlogging(slog.LevelInfo,
//	        fault.Named("payment",
//	            fault.WithSlogging(slog.LevelDebug, charge))))
//
// This would emit structured log records similar to:
//
//	{"level":"INFO","msg":"starting routine","name":"checkout"}
//	{"level":"DEBUG","msg":"starting routine","name":"checkout.payment"}
//	{"level":"DEBUG","msg":"finished routine","name":"checkout.payment","duration_ms":5}
//	{"level":"INFO","msg":"finished routine","name":"checkout","duration_ms":10}
func WithSlogging[R any](level slog.Level, routine Routine[R]) Routine[R] {
	return func(ctx context.Context, y *Yield) (result R, err error) {
		name := fullName(ctx)
		logger := Slogger(ctx)

		logger.Log(ctx, level, "starting routine", "name", name)
		start := time.Now()
		returned := false
		defer func() {
			attrs := []any{"name", name, "duration_ms", time.Since(start).Milliseconds()}
			if !returned {
				attrs = append(attrs, "abandoned", true)
			} else if err != nil {
				attrs = append(attrs, "error", err)
			}
			logger.Log(ctx, level, "finished routine", attrs...)
		}()
		result, err = routine(ctx, y)
		returned = true
		return result, err
	}
}
