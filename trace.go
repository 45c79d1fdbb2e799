// SPDX-License-Identifier: Apache-2.0

package fault

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TraceEvent records one suspension of a traced routine: the wait for one
// point passed to [Await].
type TraceEvent struct {
	// TraceID identifies the run the event belongs to, so that streamed events
	// of concurrent runs can be told apart.
	TraceID uuid.UUID `json:"trace_id"`

	// Names is the routine name stack at the time of the suspension.
	// For example: ["checkout", "payment"]
	Names []string `json:"names"`

	// Point is the 1-based number of the point within the run.
	Point int `json:"point"`

	// Start is when the routine suspended.
	Start time.Time `json:"start"`

	// Duration is how long the point took to settle.
	Duration time.Duration `json:"duration"`

	// Error is the message of the error value the point failed with, empty
	// otherwise. A failed point is always the last event of a run.
	Error string `json:"error,omitempty"`

	// Native reports whether that error value was native.
	Native bool `json:"native,omitempty"`
}

// TraceOption configures trace behavior.
type TraceOption func(*traceOptions)

type traceOptions struct {
	streamTo io.Writer
	id       uuid.UUID
}

// WithStreamTo configures the trace to stream events as JSON Lines to the given writer.
//
// Events are written one per line as their points settle, so traces survive a
// crash of the process. This is different from [Trace.WriteTo], which outputs
// a pretty-printed JSON array after the run.
//
// Write failures to the stream are best-effort and never fail the run.
//
// Example:
//
//	f, _ := os.Create("trace.jsonl")
//	defer f.Close()
//	receipt, trace, err := fault.Traced(checkout, fault.WithStreamTo(f))(ctx)
func WithStreamTo(w io.Writer) TraceOption {
	return func(opts *traceOptions) {
		opts.streamTo = w
	}
}

// WithTraceID sets the ID of the trace, for example to correlate it with a
// request ID. By default each traced run gets a new random UUID.
func WithTraceID(id uuid.UUID) TraceOption {
	return func(opts *traceOptions) {
		opts.id = id
	}
}

// trace is the collector installed in the context of a traced run.
type trace struct {
	mu      sync.Mutex
	encoder *json.Encoder
	result  *Trace
}

// Trace is the record of a traced run.
type Trace struct {
	// ID identifies the run.
	ID uuid.UUID

	// Events is the list of all recorded trace events, in point order.
	Events []TraceEvent

	// Start is when the run began.
	Start time.Time

	// Duration is the total execution time of the run.
	Duration time.Duration

	// TotalPoints is the number of points the routine suspended on.
	TotalPoints int

	// TotalErrors is the number of points that failed; at most one per run.
	TotalErrors int
}

// eventIdx is a type-safe index into the trace's event array.
type eventIdx int

// Traced wraps a routine into a function that runs it with [Run] and records
// every point it suspends on.
//
// Each event carries the routine name stack (see [Named]), so traces read
// best when routines are named. The trace is returned whether or not the run
// failed.
//
// Example:
//
//	receipt, trace, err := fault.Traced(
//	    fault.Named("checkout", checkout),
//	)(ctx)
//	trace.WriteText(os.Stderr)
//
// Tracing is opt-in and costs a single context lookup per point when not used.
func Traced[R any](routine Routine[R], opts ...TraceOption) func(context.Context) (R, *Trace, error) {
	options := traceOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	return func(ctx context.Context) (R, *Trace, error) {
		id := options.id
		if id == uuid.Nil {
			id = uuid.New()
		}
		result := &Trace{
			ID:     id,
			Start:  time.Now(),
			Events: make([]TraceEvent, 0),
		}
		tr := &trace{result: result}
		if options.streamTo != nil {
			tr.encoder = json.NewEncoder(options.streamTo)
		}

		f := newFaultCtx(ctx, lookup(ctx))
		f.trace = tr

		v, err := Run(f, routine)

		result.Duration = time.Since(result.Start)
		if options.streamTo != nil {
			if flusher, ok := options.streamTo.(interface{ Flush() error }); ok {
				_ = flusher.Flush()
			}
		}
		return v, result, err
	}
}

// newEvent starts the event for a point and returns its index.
//
// The returned index must be passed to recordFinish when the point settles.
func (t *trace) newEvent(names []string, point int) eventIdx {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := len(t.result.Events)
	t.result.Events = append(t.result.Events, TraceEvent{
		TraceID: t.result.ID,
		Names:   names,
		Point:   point,
		Start:   time.Now(),
	})
	t.result.TotalPoints++

	return eventIdx(idx)
}

// recordFinish completes an event with its duration and error value, if any.
func (t *trace) recordFinish(idx eventIdx, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	event := &t.result.Events[idx]
	event.Duration = time.Since(event.Start)
	if err != nil {
		event.Error = err.Error()
		event.Native = IsNative(err)
		t.result.TotalErrors++
	}

	if t.encoder != nil {
		_ = t.encoder.Encode(event)
	}
}

// WriteTo serializes the trace as a pretty-printed JSON array of events.
//
// Returns the number of bytes written and any error.
func (t *Trace) WriteTo(w io.Writer) (int64, error) {
	data, err := json.MarshalIndent(t.Events, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("failed to marshal trace: %w", err)
	}
	data = append(data, '\n')

	n, err := w.Write(data)
	if err != nil {
		return int64(n), fmt.Errorf("failed to write trace: %w", err)
	}
	return int64(n), nil
}

// WriteText outputs a human-readable view of the trace, one point per line.
//
// Indentation reflects the depth of the name stack, and the displayed name is
// the last element of it.
//
// Example output:
//
//	checkout #1 (45ms)
//	  payment #2 (120ms)
//	  payment #3 (2.3s) [ERROR: card declined]
func (t *Trace) WriteText(w io.Writer) (int64, error) {
	var totalBytes int64
	for _, event := range t.Events {
		depth := len(event.Names)
		if depth > 0 {
			depth--
		}
		indent := strings.Repeat("  ", depth)

		name := "<unknown>"
		if len(event.Names) > 0 {
			name = event.Names[len(event.Names)-1]
		}

		line := fmt.Sprintf("%s%s #%d (%s)", indent, name, event.Point, event.Duration)
		if event.Error != "" {
			line += fmt.Sprintf(" [ERROR: %s]", event.Error)
		}
		line += "\n"

		n, err := io.WriteString(w, line)
		totalBytes += int64(n)
		if err != nil {
			return totalBytes, fmt.Errorf("failed to write text: %w", err)
		}
	}
	return totalBytes, nil
}
