// SPDX-License-Identifier: Apache-2.0

package fault

import (
	"bytes"
	"context"
	"encoding/json"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// ==== Trace Validators ====

type traceValidator func(*testing.T, *Trace)

func expectEvents(n int) traceValidator {
	return func(t *testing.T, trace *Trace) {
		t.Helper()
		if len(trace.Events) != n || trace.TotalPoints != n {
			t.Errorf("expected %d events, got %d (TotalPoints %d)", n, len(trace.Events), trace.TotalPoints)
		}
	}
}

func expectErrorCount(n int) traceValidator {
	return func(t *testing.T, trace *Trace) {
		t.Helper()
		if trace.TotalErrors != n {
			t.Errorf("expected %d errors, got %d", n, trace.TotalErrors)
		}
	}
}

func expectEventPath(i int, names ...string) traceValidator {
	return func(t *testing.T, trace *Trace) {
		t.Helper()
		if i >= len(trace.Events) {
			t.Fatalf("no event %d in %d events", i, len(trace.Events))
		}
		if got := trace.Events[i].Names; !slices.Equal(got, names) {
			t.Errorf("event %d: expected path %v, got %v", i, names, got)
		}
	}
}

func runTraceTest[R any](t *testing.T, routine Routine[R], validators ...traceValidator) *Trace {
	t.Helper()
	_, trace, _ := Traced(routine)(t.Context())
	if trace == nil {
		t.Fatal("Traced returned a nil trace")
	}
	for i, event := range trace.Events {
		if event.Point != i+1 {
			t.Errorf("event %d has point number %d", i, event.Point)
		}
		if event.TraceID != trace.ID {
			t.Errorf("event %d has trace ID %v, want %v", i, event.TraceID, trace.ID)
		}
	}
	for _, validate := range validators {
		validate(t, trace)
	}
	return trace
}

func TestTraced(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		routine    Routine[int]
		validators []traceValidator
	}{
		{
			name: "NoPoints",
			routine: Named("empty", func(context.Context, *Yield) (int, error) {
				return 0, nil
			}),
			validators: []traceValidator{expectEvents(0), expectErrorCount(0)},
		},
		{
			name: "OnePointPerAwait",
			routine: Named("sum", func(ctx context.Context, y *Yield) (int, error) {
				a := Await(y, Just(1))
				b := Await(y, Resolve(2))
				Await(y, Sleep(ctx, time.Millisecond))
				return a + b, nil
			}),
			validators: []traceValidator{
				expectEvents(3),
				expectEventPath(0, "sum"),
				expectEventPath(2, "sum"),
			},
		},
		{
			name: "AllIsOnePoint",
			routine: func(ctx context.Context, y *Yield) (int, error) {
				return len(Await(y, All[int](Just(1), Just(2), Just(3)))), nil
			},
			validators: []traceValidator{expectEvents(1), expectEventPath(0)},
		},
		{
			name: "NestedNames",
			routine: Named("parent", func(ctx context.Context, y *Yield) (int, error) {
				a, _ := Named("child1", func(ctx context.Context, y *Yield) (int, error) {
					return Await(y, Just(1)), nil
				})(ctx, y)
				b, _ := Named("child2", func(ctx context.Context, y *Yield) (int, error) {
					return Await(y, Just(2)), nil
				})(ctx, y)
				return a + b + Await(y, Just(3)), nil
			}),
			validators: []traceValidator{
				expectEvents(3),
				expectEventPath(0, "parent", "child1"),
				expectEventPath(1, "parent", "child2"),
				expectEventPath(2, "parent"),
			},
		},
		{
			name: "FailedPointIsLast",
			routine: Named("failing", func(ctx context.Context, y *Yield) (int, error) {
				Await(y, Just(1))
				Await(y, Of(0, error(tooSmall)))
				return Await(y, Just(3)), nil
			}),
			validators: []traceValidator{expectEvents(2), expectErrorCount(1)},
		},
		{
			name: "ReturnedErrorIsNotAPoint",
			routine: Named("returning", func(ctx context.Context, y *Yield) (int, error) {
				Await(y, Just(1))
				return 0, tooSmall
			}),
			validators: []traceValidator{expectEvents(1), expectErrorCount(0)},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			runTraceTest(t, tc.routine, tc.validators...)
		})
	}
}

func TestTracedResult(t *testing.T) {
	t.Parallel()

	v, trace, err := Traced(Named("work", func(ctx context.Context, y *Yield) (string, error) {
		return Await(y, later(ctx, 5*time.Millisecond, "done", nil)), nil
	}))(t.Context())
	check(t, err, isNil)
	if v != "done" {
		t.Errorf("got %q, want %q", v, "done")
	}
	if trace.ID == uuid.Nil {
		t.Error("trace has no ID")
	}
	if len(trace.Events) != 1 || trace.Duration < 5*time.Millisecond {
		t.Errorf("unexpected trace: %d events in %v", len(trace.Events), trace.Duration)
	}

	_, trace, err = Traced(Named("work", func(ctx context.Context, y *Yield) (string, error) {
		return Await(y, Of("", error1)), nil
	}))(t.Context())
	check(t, err, isNative)
	event := trace.Events[0]
	if !event.Native || event.Error != "native: error 1" {
		t.Errorf("unexpected failed event: %+v", event)
	}
}

func TestTracedIDs(t *testing.T) {
	t.Parallel()

	routine := func(ctx context.Context, y *Yield) (int, error) {
		return Await(y, Just(1)), nil
	}
	_, first, _ := Traced(routine)(t.Context())
	_, second, _ := Traced(routine)(t.Context())
	if first.ID == second.ID {
		t.Error("two traced runs share an ID")
	}

	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	_, fixed, _ := Traced(routine, WithTraceID(id))(t.Context())
	if fixed.ID != id || fixed.Events[0].TraceID != id {
		t.Errorf("WithTraceID not applied: %v", fixed.ID)
	}
}

func TestTracedNotTracingOutside(t *testing.T) {
	t.Parallel()

	// Runs without Traced carry no trace, even when nested in a traced run.
	_, trace, err := Traced(func(ctx context.Context, y *Yield) (int, error) {
		Await(y, Just(1))
		return Run(context.Background(), func(ctx context.Context, y *Yield) (int, error) {
			return Await(y, Just(2)), nil
		})
	})(t.Context())
	check(t, err, isNil)
	if len(trace.Events) != 1 {
		t.Errorf("expected 1 event, got %d", len(trace.Events))
	}
}

func TestTracedStreaming(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	_, trace, err := Traced(Named("stream", func(ctx context.Context, y *Yield) (int, error) {
		Await(y, Just(1))
		Await(y, Just(2))
		return Await(y, Reject[int](tooSmall)), nil
	}), WithStreamTo(&buf))(t.Context())
	check(t, err, matches(tooSmall))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 JSON lines, got %d: %s", len(lines), buf.String())
	}
	for i, line := range lines {
		var event TraceEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			t.Fatalf("line %d: failed to parse JSON: %v", i, err)
		}
		if event.Point != i+1 || event.TraceID != trace.ID {
			t.Errorf("line %d: unexpected event %+v", i, event)
		}
	}
	var last TraceEvent
	_ = json.Unmarshal([]byte(lines[2]), &last)
	if last.Error != "too small" || last.Native {
		t.Errorf("expected the failure in the last streamed event, got %+v", last)
	}
	if len(trace.Events) != 3 {
		t.Errorf("expected 3 events in memory, got %d", len(trace.Events))
	}
}

func TestTraceWriteTo(t *testing.T) {
	t.Parallel()

	_, trace, _ := Traced(Named("write", func(ctx context.Context, y *Yield) (int, error) {
		return Await(y, Just(1)) + Await(y, Just(2)), nil
	}))(t.Context())

	var buf bytes.Buffer
	n, err := trace.WriteTo(&buf)
	check(t, err, isNil)
	if n != int64(buf.Len()) {
		t.Errorf("reported %d bytes, wrote %d", n, buf.Len())
	}
	var events []TraceEvent
	if err := json.Unmarshal(buf.Bytes(), &events); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if len(events) != 2 || !slices.Equal(events[1].Names, []string{"write"}) {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestTraceWriteText(t *testing.T) {
	t.Parallel()

	trace := &Trace{Events: []TraceEvent{
		{Names: []string{"checkout"}, Point: 1, Duration: 45 * time.Millisecond},
		{Names: []string{"checkout", "payment"}, Point: 2, Duration: 2 * time.Second, Error: "card declined"},
		{Point: 3, Duration: time.Millisecond},
	}}

	var buf bytes.Buffer
	n, err := trace.WriteText(&buf)
	check(t, err, isNil)
	want := "checkout #1 (45ms)\n" +
		"  payment #2 (2s) [ERROR: card declined]\n" +
		"<unknown> #3 (1ms)\n"
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
	if n != int64(len(want)) {
		t.Errorf("reported %d bytes, want %d", n, len(want))
	}
}

func TestTraceFilters(t *testing.T) {
	t.Parallel()

	trace := &Trace{
		ID: uuid.New(),
		Events: []TraceEvent{
			{Names: []string{"checkout"}, Point: 1, Duration: 10 * time.Millisecond},
			{Names: []string{"checkout", "payment"}, Point: 2, Duration: 2 * time.Second},
			{Names: []string{"checkout", "payment", "charge"}, Point: 3, Duration: 3 * time.Second, Error: "native: timeout", Native: true},
		},
		TotalPoints: 3,
		TotalErrors: 1,
	}

	testCases := []struct {
		name    string
		filters []TraceFilter
		points  []int
	}{
		{name: "None", filters: nil, points: []int{1, 2, 3}},
		{name: "MinDuration", filters: []TraceFilter{MinDuration(time.Second)}, points: []int{2, 3}},
		{name: "HasError", filters: []TraceFilter{HasError()}, points: []int{3}},
		{name: "HasNativeError", filters: []TraceFilter{HasNativeError()}, points: []int{3}},
		{name: "PathMatches", filters: []TraceFilter{PathMatches("checkout.payment*")}, points: []int{2, 3}},
		{name: "MalformedPattern", filters: []TraceFilter{PathMatches("[")}, points: []int{}},
		{name: "HasPathPrefix", filters: []TraceFilter{HasPathPrefix("checkout", "payment")}, points: []int{2, 3}},
		{
			name:    "Combined",
			filters: []TraceFilter{HasPathPrefix("checkout"), MinDuration(time.Second), noMatch()},
			points:  []int{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			filtered := trace.Filter(tc.filters...)
			var points []int
			for _, event := range filtered.Events {
				points = append(points, event.Point)
			}
			if !slices.Equal(points, tc.points) {
				t.Errorf("got points %v, want %v", points, tc.points)
			}
			if filtered.TotalPoints != len(tc.points) {
				t.Errorf("got TotalPoints %d, want %d", filtered.TotalPoints, len(tc.points))
			}
			if filtered.ID != trace.ID {
				t.Error("Filter dropped the trace ID")
			}

			found := trace.FindEvent(tc.filters...)
			if len(tc.points) == 0 {
				if found != nil {
					t.Errorf("FindEvent found %+v, want nil", found)
				}
			} else if found == nil || found.Point != tc.points[0] {
				t.Errorf("FindEvent found %+v, want point %d", found, tc.points[0])
			}
		})
	}

	if len(trace.Events) != 3 {
		t.Error("Filter modified the original trace")
	}
}

func noMatch() TraceFilter {
	return func(TraceEvent) bool { return false }
}
