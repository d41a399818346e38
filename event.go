// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package telemetry

import (
	"runtime"
	"time"

	"github.com/z5labs/telemetry/intern"
)

// Scope describes a synchronous span whose name is known at compile time.
// Scopes are meant to be package level variables so that the source
// location is captured once:
//
//	var physicsScope = telemetry.NewScope("physics")
type Scope struct {
	Name string
	File string
	Line int
}

// NewScope returns a Scope named name, located at the caller.
func NewScope(name string) *Scope {
	_, file, line, _ := runtime.Caller(1)
	return &Scope{
		Name: name,
		File: file,
		Line: line,
	}
}

// LogEvent is a single record on the Log channel. Target names the
// component which emitted it and may be empty.
type LogEvent struct {
	Time       time.Time
	Level      Level
	Target     string
	Message    string
	Properties *intern.PropertySet
	Trace      TraceContext
}

// TraceContext identifies the OpenTelemetry span a log event was recorded
// under. The ids are kept on the event, never interned, since every trace
// has new ones.
type TraceContext struct {
	TraceID string
	SpanID  string
}

// IsZero reports whether tc carries no ids.
func (tc TraceContext) IsZero() bool {
	return tc.TraceID == "" && tc.SpanID == ""
}

// MetricEvent is a single measurement on the Metric channel.
type MetricEvent struct {
	Time       time.Time
	Name       string
	Unit       string
	Value      float64
	Integer    bool
	Properties *intern.PropertySet
}

// SpanEventKind distinguishes the four kinds of span events.
type SpanEventKind uint8

const (
	SpanBegin SpanEventKind = iota + 1
	SpanEnd
	AsyncBegin
	AsyncEnd
)

// String implements the [fmt.Stringer] interface.
func (k SpanEventKind) String() string {
	switch k {
	case SpanBegin:
		return "begin"
	case SpanEnd:
		return "end"
	case AsyncBegin:
		return "async_begin"
	case AsyncEnd:
		return "async_end"
	default:
		return "unknown"
	}
}

// SpanEvent is a single boundary on the Span channel.
//
// Name holds the interned runtime name for spans which are not statically
// named, e.g. spans translated by the ambient bridge. For async events
// SpanID is the [AsyncToken] and ParentID/Depth carry the caller supplied
// correlation values.
type SpanEvent struct {
	Kind     SpanEventKind
	Scope    *Scope
	Name     intern.String
	Time     time.Time
	ThreadID uint64
	Depth    uint32
	SpanID   uint64
	ParentID uint64
}

// SpanName returns the dynamic name if present, otherwise the scope name.
func (e SpanEvent) SpanName() string {
	if !e.Name.IsZero() {
		return e.Name.Value()
	}
	if e.Scope != nil {
		return e.Scope.Name
	}
	return ""
}

// LogBlock is a flushed batch of log events.
type LogBlock struct {
	ProcessID string
	Events    []LogEvent
}

// MetricBlock is a flushed batch of metric events.
type MetricBlock struct {
	ProcessID string
	Events    []MetricEvent
}

// SpanBlock is a flushed batch of span events from a single [Stream].
type SpanBlock struct {
	ProcessID  string
	ThreadID   uint64
	ThreadName string
	Events     []SpanEvent
}
