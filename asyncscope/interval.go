// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package asyncscope

import (
	"cmp"
	"slices"
	"time"

	"github.com/z5labs/telemetry"
)

// Interval is a closed time range covered by a span or an async scope.
//
// For async scopes ID is the scope token. Synchronous spans are numbered
// in the order their End event appears.
type Interval struct {
	ID       uint64
	Name     string
	Async    bool
	ThreadID uint64
	Depth    uint32
	ParentID uint64
	Begin    time.Time
	End      time.Time
}

// Duration returns the length of the interval.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Begin)
}

// Contains reports whether child lies within iv, bounds included.
func (iv Interval) Contains(child Interval) bool {
	return !child.Begin.Before(iv.Begin) && !child.End.After(iv.End)
}

// Pair rebuilds intervals from span events. Synchronous spans are
// matched per thread, innermost first. Async scopes are matched by token
// regardless of thread or delivery order and are sorted by token.
// Events without a partner are dropped.
func Pair(events []telemetry.SpanEvent) (spans, scopes []Interval) {
	stacks := make(map[uint64][]telemetry.SpanEvent)
	begins := make(map[uint64]telemetry.SpanEvent)
	ends := make(map[uint64]telemetry.SpanEvent)

	for _, e := range events {
		switch e.Kind {
		case telemetry.SpanBegin:
			stacks[e.ThreadID] = append(stacks[e.ThreadID], e)
		case telemetry.SpanEnd:
			stack := stacks[e.ThreadID]
			if len(stack) == 0 {
				continue
			}
			begin := stack[len(stack)-1]
			stacks[e.ThreadID] = stack[:len(stack)-1]
			spans = append(spans, Interval{
				ID:       uint64(len(spans) + 1),
				Name:     begin.SpanName(),
				ThreadID: e.ThreadID,
				Depth:    begin.Depth,
				Begin:    begin.Time,
				End:      e.Time,
			})
		case telemetry.AsyncBegin:
			begins[e.SpanID] = e
		case telemetry.AsyncEnd:
			ends[e.SpanID] = e
		}
	}

	for token, begin := range begins {
		end, ok := ends[token]
		if !ok {
			continue
		}
		scopes = append(scopes, Interval{
			ID:       token,
			Name:     begin.SpanName(),
			Async:    true,
			ThreadID: begin.ThreadID,
			Depth:    begin.Depth,
			ParentID: begin.ParentID,
			Begin:    begin.Time,
			End:      end.Time,
		})
	}
	slices.SortFunc(scopes, func(a, b Interval) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return spans, scopes
}

// Enclosing returns the scope which contains child. When several do, the
// narrowest wins, then the one which began last, then the lowest ID.
func Enclosing(scopes []Interval, child Interval) (Interval, bool) {
	var (
		best  Interval
		found bool
	)
	for _, s := range scopes {
		if !s.Contains(child) {
			continue
		}
		if !found || narrower(s, best) {
			best = s
			found = true
		}
	}
	return best, found
}

func narrower(a, b Interval) bool {
	if da, db := a.Duration(), b.Duration(); da != db {
		return da < db
	}
	if !a.Begin.Equal(b.Begin) {
		return a.Begin.After(b.Begin)
	}
	return a.ID < b.ID
}
