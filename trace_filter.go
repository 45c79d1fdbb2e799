// SPDX-License-Identifier: Apache-2.0

package fault

import (
	"path/filepath"
	"strings"
	"time"
)

// TraceFilter is a predicate function for filtering trace events.
type TraceFilter func(TraceEvent) bool

func matchAll(event TraceEvent, filters []TraceFilter) bool {
	for _, filter := range filters {
		if !filter(event) {
			return false
		}
	}
	return true
}

// FindEvent returns the first event matching all provided filters, or nil if none match.
//
// Example:
//
//	// Find the first slow payment call
//	event := trace.FindEvent(
//	    fault.PathMatches("checkout.payment*"),
//	    fault.MinDuration(time.Second),
//	)
func (t *Trace) FindEvent(filters ...TraceFilter) *TraceEvent {
	for i := range t.Events {
		if matchAll(t.Events[i], filters) {
			return &t.Events[i]
		}
	}
	return nil
}

// Filter returns a new Trace containing only events matching all provided filters.
//
// The original trace is not modified. The returned trace keeps the ID and
// Start of the original; its Duration is the sum of the durations of the
// filtered events, and its totals count only the filtered events.
func (t *Trace) Filter(filters ...TraceFilter) *Trace {
	filtered := &Trace{
		ID:     t.ID,
		Start:  t.Start,
		Events: make([]TraceEvent, 0, len(t.Events)),
	}
	for _, event := range t.Events {
		if !matchAll(event, filters) {
			continue
		}
		filtered.Events = append(filtered.Events, event)
		filtered.Duration += event.Duration
		if event.Error != "" {
			filtered.TotalErrors++
		}
	}
	filtered.TotalPoints = len(filtered.Events)
	return filtered
}

// MinDuration returns a filter that matches events with duration >= d.
func MinDuration(d time.Duration) TraceFilter {
	return func(event TraceEvent) bool {
		return event.Duration >= d
	}
}

// HasError returns a filter that matches events whose point failed.
func HasError() TraceFilter {
	return func(event TraceEvent) bool {
		return event.Error != ""
	}
}

// HasNativeError returns a filter that matches events whose point failed with
// a native error value.
func HasNativeError() TraceFilter {
	return func(event TraceEvent) bool {
		return event.Native
	}
}

// PathMatches returns a filter that matches events where the full
// dotted name path matches the glob pattern.
//
// Patterns use filepath.Match semantics. If the pattern is malformed, no
// events match.
func PathMatches(pattern string) TraceFilter {
	return func(event TraceEvent) bool {
		if len(event.Names) == 0 {
			return false
		}
		matched, err := filepath.Match(pattern, strings.Join(event.Names, "."))
		return err == nil && matched
	}
}

// HasPathPrefix returns a filter that matches events where the name stack
// starts with prefix.
func HasPathPrefix(prefix ...string) TraceFilter {
	return func(event TraceEvent) bool {
		if len(event.Names) < len(prefix) {
			return false
		}
		for i, p := range prefix {
			if event.Names[i] != p {
				return false
			}
		}
		return true
	}
}
