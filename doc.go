// SPDX-License-Identifier: Apache-2.0

// Package fault provides error values that are ordinary data, and two ways of
// composing fallible computations around them: pipes of stage functions and
// routines that suspend on pending values. Both stop at the first failure
// without a single error check in user code.
//
// # The Problem
//
// A function that can fail in several ways usually reports them with a mix of
// returned errors and panics from deeper down. Callers wrap and check each
// call, and a chain of ten fallible steps, some of them asynchronous, turns
// into ten if-statements and a handful of goroutines and channels. Panics from
// third-party code escape all of it.
//
// Fault addresses this by making every failure an [Err] value, converting
// panics and foreign errors to error values at every boundary, and
// short-circuiting composed computations on the first error value.
//
// # Error Values
//
// [New] makes an error value from any payload, and [IsErr] is the one test for
// telling an error value from anything else:
//
//	err := fault.New("too small")
//	fault.IsErr(err)         // true
//	fault.IsErr(fault.Err{}) // false: only New and Tagger make error values
//	fault.IsErr("too small") // false
//
// Error values can carry a tag, a comparable value shared by all errors of one
// kind. [Tagger] returns a constructor for a tag, and [HasTag] tests for it:
//
//	var NotFound = fault.Tagger("not found")
//
//	err := NotFound(userID)
//	fault.HasTag("not found", err) // true
//
// Panics and plain Go errors are "native" failures. [Try], [TryAsync] and
// [Guard] convert them into error values with the native tag, which
// [IsNative] detects. Everything in this package does so at its boundaries, so
// an error it returns is always nil or an error value.
//
// [Must], [OrDefault] and [OrZero] take a (value, error) result back to a plain
// value.
//
// # Pipes
//
// A [Pipe] chains stage functions into one function. Each stage receives the
// previous stage's result; the first stage to fail ends the pipe, and the
// stages after it never run:
//
//	price := fault.Then(
//	    fault.Then(fault.NewPipe(parseOrder), validate),
//	    applyDiscount,
//	)
//	total, err := price.Run(ctx, body)
//
// A pipe of synchronous stages calls them directly. Adding a stage that
// returns a [Future] with [ThenAsync] makes the whole pipe asynchronous:
//
//	checkout := fault.ThenAsync(price, chargeCard) // func(ctx, Total) *Future[Receipt]
//	receipt, err := checkout.Async()(ctx, body).Await(ctx)
//
// # Routines
//
// A [Routine] reads like blocking code. It suspends on a pending value with
// [Await], and [Run] resumes it with the value, or ends the run if the value
// turned out to be an error value:
//
//	receipt, err := fault.Run(ctx, func(ctx context.Context, y *fault.Yield) (Receipt, error) {
//	    order := fault.Await(y, fault.Of(parseOrder(body)))
//	    quotes := fault.Await(y, fault.All(
//	        shipping.Quote(ctx, order),
//	        tax.Quote(ctx, order),
//	    ))
//	    return fault.Await(y, payments.Charge(ctx, order, quotes)), nil
//	})
//
// [All] waits for several points at once and [Race] for the first of them.
//
// # Futures
//
// A [Future] is the pending value pipes and routines work with. [Go] starts
// one, [WaitAll] and [WaitFirst] combine them outside of routines.
//
// # Retries
//
// [Retry] calls a function again while it fails, as long as all of its
// predicates agree. The predicates limit attempts ([UpTo]), wait between them
// ([FixedBackoff], [ExponentialBackoff]), or look at the error value
// ([OnlyTagged], [OnlyIf], [SkipNative]). [Repeat] and [Until] are the simple
// synchronous forms.
//
// # Observability
//
// [Named] gives a routine a name, pushed on a stack readable with [Names].
// [WithSlogger] configures the [log/slog] logger used by [Run] and
// [WithSlogging]. [Traced] records every point a routine suspends on:
//
//	receipt, trace, err := fault.Traced(fault.Named("checkout", checkout))(ctx)
//	trace.WriteText(os.Stderr)
//
// # Concurrency
//
// Error values are immutable and safe to share. Futures may be awaited from
// any number of goroutines. A Pipe must be built by one goroutine, but the
// functions it produces are safe for concurrent use. A [Yield] belongs to the
// routine it was passed to.
package fault
