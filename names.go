// SPDX-License-Identifier: Apache-2.0

package fault

import (
	"context"
	"runtime"
	"strings"
)

// Names returns a copy of the routine name stack from the context.
// Returns nil if no names are present in the context.
//
// This is useful for custom logging decorators or other functionality
// that needs to inspect the current routine hierarchy.
func Names(ctx context.Context) []string {
	f := lookup(ctx)
	if f == nil || len(f.names) == 0 {
		return nil
	}
	return append([]string{}, f.names...)
}

// fullName joins the name stack in ctx with dots, or returns "<unknown>".
func fullName(ctx context.Context) string {
	names := Names(ctx)
	if len(names) == 0 {
		return "<unknown>"
	}
	return strings.Join(names, ".")
}

// Named wraps a [Routine] with a name.
//
// Named pushes the name onto a stack of routine names in the context, which
// can be retrieved using [Names]. When Named routines call each other, each
// appends its name to the stack, creating a hierarchical path (e.g.,
// "checkout.payment.charge"). Logs and traces of the points a routine
// suspends on carry that path.
//
// The error value the routine fails with is returned unchanged: a name never
// wraps or alters it, so [HasTag] and [Equal] keep working.
func Named[R any](name string, routine Routine[R]) Routine[R] {
	return func(ctx context.Context, y *Yield) (R, error) {
		f := newFaultCtx(ctx, lookup(ctx))
		f.names = append(append([]string{}, f.names...), name)
		defer y.withContext(f)()
		return routine(f, y)
	}
}

type autoNamedOptions struct {
	callerSkip int
}

// An AutoNamedOption is a function option for [AutoNamed].
type AutoNamedOption func(*autoNamedOptions)

// SkipCaller adds a delta to the number of skipped stack frames.
//
// This is useful when wrapping decorators inside helper functions, allowing
// AutoNamed to skip intermediate layers and identify the original caller.
//
// Example:
//
//	func ChargeCard() fault.Routine[Receipt] {
//	    return withRetries(func(ctx context.Context, y *fault.Yield) (Receipt, error) {
//	        // Implementation
//	    })
//	}
//
//	func withRetries[R any](routine fault.Routine[R]) fault.Routine[R] {
//	    // Skip withRetries so AutoNamed picks ChargeCard instead
//	    return fault.AutoNamed(routine, fault.SkipCaller(1))
//	}
func SkipCaller(delta int) AutoNamedOption {
	return func(o *autoNamedOptions) {
		o.callerSkip += delta
	}
}

// AutoNamed wraps a [Routine] with a name derived from the calling function.
//
// This reduces repetition when naming routines in routine constructors.
//
// Example:
//
//	func LoadCart() fault.Routine[Cart] {
//	    return fault.AutoNamed(func(ctx context.Context, y *fault.Yield) (Cart, error) {
//	        // Implementation
//	    })
//	}
//	// Points awaited by this routine are traced as "LoadCart".
//
// Note: AutoNamed only works when called directly from a named function.
// Called from a closure it picks up the closure's generated name, such as "func1".
func AutoNamed[R any](routine Routine[R], opts ...AutoNamedOption) Routine[R] {
	const minimumCallerSkip = 1
	config := autoNamedOptions{callerSkip: minimumCallerSkip}
	for _, opt := range opts {
		opt(&config)
	}

	pc, _, _, ok := runtime.Caller(config.callerSkip)
	if !ok {
		return routine
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return routine
	}
	return Named(extractFunctionName(fn.Name()), routine)
}

// extractFunctionName extracts the simple function name from a full Go function path.
//
// Examples:
//   - "github.com/sam-fredrickson/fault.LoadCart" -> "LoadCart"
//   - "main.(*Server).HandleRequest" -> "HandleRequest"
//   - "github.com/user/pkg.init.0" -> "0"
func extractFunctionName(fullName string) string {
	parts := strings.Split(fullName, "/")
	lastPart := parts[len(parts)-1]
	if idx := strings.LastIndex(lastPart, "."); idx != -1 {
		lastPart = lastPart[idx+1:]
	}
	return lastPart
}
