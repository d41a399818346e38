// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package otlpsink provides a [telemetry.Sink] which turns span events into
// OpenTelemetry spans.
//
// Begin and end events are paired per thread, and async events by token,
// across blocks. A span is exported once both of its events have been
// seen. Log and metric blocks are ignored.
package otlpsink

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/z5labs/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/z5labs/telemetry/sink/otlpsink"

// Attribute keys set on every exported span besides the semconv ones.
const (
	DepthKey = attribute.Key("telemetry.depth")
	AsyncKey = attribute.Key("telemetry.async")
)

// DefaultMaxPending is the default for [MaxPending].
const DefaultMaxPending = 4096

type options struct {
	serviceName   string
	logger        *zap.Logger
	exportTimeout time.Duration
	maxPending    int
	closers       []func() error
}

// Option configures a [Sink].
type Option func(*options)

// ServiceName sets the service.name resource attribute.
func ServiceName(name string) Option {
	return func(o *options) {
		o.serviceName = name
	}
}

// Logger sets the logger used to report export failures.
func Logger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// ExportTimeout bounds a single export call.
func ExportTimeout(d time.Duration) Option {
	return func(o *options) {
		o.exportTimeout = d
	}
}

// MaxPending bounds both the async begins waiting for their end and the
// async ends waiting for their begin. When either is full the oldest
// entry is dropped and counted by [Sink.Unmatched]. Non-positive values
// select [DefaultMaxPending].
func MaxPending(n int) Option {
	return func(o *options) {
		o.maxPending = n
	}
}

type open struct {
	name   string
	sc     trace.SpanContext
	parent trace.SpanContext
	start  time.Time
	attrs  []attribute.KeyValue
}

// Sink pairs span events and exports the completed spans. Safe for
// concurrent use.
type Sink struct {
	exp           sdktrace.SpanExporter
	log           *zap.Logger
	serviceName   string
	exportTimeout time.Duration
	closers       []func() error

	mu        sync.Mutex
	stacks    map[uint64][]open
	async     *pending[open]
	lateEnds  *pending[time.Time]
	traceIDs  map[string]trace.TraceID
	resources map[string]*resource.Resource

	exported  atomic.Int64
	failed    atomic.Int64
	unmatched atomic.Int64
}

// New returns a Sink exporting through exp.
func New(exp sdktrace.SpanExporter, opts ...Option) *Sink {
	o := &options{
		serviceName:   "telemetry",
		logger:        zap.NewNop(),
		exportTimeout: 10 * time.Second,
		maxPending:    DefaultMaxPending,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.maxPending <= 0 {
		o.maxPending = DefaultMaxPending
	}
	return &Sink{
		exp:           exp,
		log:           o.logger,
		serviceName:   o.serviceName,
		exportTimeout: o.exportTimeout,
		closers:       o.closers,
		stacks:        make(map[uint64][]open),
		async:         newPending[open](o.maxPending),
		lateEnds:      newPending[time.Time](o.maxPending),
		traceIDs:      make(map[string]trace.TraceID),
		resources:     make(map[string]*resource.Resource),
	}
}

// Exported returns the number of spans handed to the exporter successfully.
func (s *Sink) Exported() int64 { return s.exported.Load() }

// Failed returns the number of spans the exporter rejected.
func (s *Sink) Failed() int64 { return s.failed.Load() }

// Unmatched returns the number of end events which had no begin, plus the
// async halves evicted while waiting for their partner.
func (s *Sink) Unmatched() int64 { return s.unmatched.Load() }

// Pending returns the number of async halves waiting for their partner.
func (s *Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.async.len() + s.lateEnds.len()
}

// ProcessLogBlock implements the [telemetry.Sink] interface.
func (s *Sink) ProcessLogBlock(telemetry.LogBlock) {}

// ProcessMetricBlock implements the [telemetry.Sink] interface.
func (s *Sink) ProcessMetricBlock(telemetry.MetricBlock) {}

// ProcessSpanBlock implements the [telemetry.Sink] interface.
func (s *Sink) ProcessSpanBlock(b telemetry.SpanBlock) {
	spans := s.pair(b)
	if len(spans) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.exportTimeout)
	defer cancel()

	err := s.exp.ExportSpans(ctx, spans)
	if err != nil {
		s.failed.Add(int64(len(spans)))
		s.log.Error("failed to export spans", zap.Int("spans", len(spans)), zap.Error(err))
		return
	}
	s.exported.Add(int64(len(spans)))
}

func (s *Sink) pair(b telemetry.SpanBlock) []sdktrace.ReadOnlySpan {
	s.mu.Lock()
	defer s.mu.Unlock()

	traceID := s.traceID(b.ProcessID)
	res := s.resource(b.ProcessID)

	var spans []sdktrace.ReadOnlySpan
	finish := func(o open, end time.Time) {
		spans = append(spans, tracetest.SpanStub{
			Name:        o.name,
			SpanContext: o.sc,
			Parent:      o.parent,
			SpanKind:    trace.SpanKindInternal,
			StartTime:   o.start,
			EndTime:     end,
			Attributes:  o.attrs,
			Resource:    res,
			InstrumentationLibrary: instrumentation.Library{
				Name: instrumentationName,
			},
		}.Snapshot())
	}

	stack := s.stacks[b.ThreadID]
	for _, e := range b.Events {
		switch e.Kind {
		case telemetry.SpanBegin:
			var parent trace.SpanContext
			if n := len(stack); n > 0 {
				parent = stack[n-1].sc
			}
			stack = append(stack, open{
				name:   e.SpanName(),
				sc:     newSpanContext(traceID),
				parent: parent,
				start:  e.Time,
				attrs:  attributes(b, e, false),
			})
		case telemetry.SpanEnd:
			n := len(stack)
			if n == 0 {
				s.unmatched.Add(1)
				continue
			}
			o := stack[n-1]
			stack = stack[:n-1]
			finish(o, e.Time)
		case telemetry.AsyncBegin:
			var parent trace.SpanContext
			if p, ok := s.async.get(e.ParentID); ok && e.ParentID != 0 {
				parent = p.sc
			}
			o := open{
				name:   e.SpanName(),
				sc:     newSpanContext(traceID),
				parent: parent,
				start:  e.Time,
				attrs:  attributes(b, e, true),
			}
			if end, ok := s.lateEnds.take(e.SpanID); ok {
				finish(o, end)
				continue
			}
			s.evicted(s.async.put(e.SpanID, o))
		case telemetry.AsyncEnd:
			o, ok := s.async.take(e.SpanID)
			if !ok {
				s.evicted(s.lateEnds.put(e.SpanID, e.Time))
				continue
			}
			finish(o, e.Time)
		}
	}
	if len(stack) == 0 {
		delete(s.stacks, b.ThreadID)
	} else {
		s.stacks[b.ThreadID] = stack
	}
	return spans
}

func (s *Sink) evicted(n int) {
	if n == 0 {
		return
	}
	s.unmatched.Add(int64(n))
	s.log.Warn("dropped unpaired async span events", zap.Int("events", n))
}

func attributes(b telemetry.SpanBlock, e telemetry.SpanEvent, async bool) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ThreadID(int(b.ThreadID)),
		DepthKey.Int(int(e.Depth)),
	}
	if b.ThreadName != "" {
		attrs = append(attrs, semconv.ThreadName(b.ThreadName))
	}
	if e.Scope != nil && e.Scope.File != "" {
		attrs = append(attrs,
			semconv.CodeFilepath(e.Scope.File),
			semconv.CodeLineNumber(e.Scope.Line),
		)
	}
	if async {
		attrs = append(attrs, AsyncKey.Bool(true))
	}
	return attrs
}

// traceID maps a process onto a single trace. Process ids generated by the
// dispatcher are uuids and are used verbatim.
func (s *Sink) traceID(processID string) trace.TraceID {
	if id, ok := s.traceIDs[processID]; ok {
		return id
	}
	u, err := uuid.Parse(processID)
	if err != nil {
		u = uuid.NewSHA1(uuid.NameSpaceOID, []byte(processID))
	}
	id := trace.TraceID(u)
	s.traceIDs[processID] = id
	return id
}

func (s *Sink) resource(processID string) *resource.Resource {
	if r, ok := s.resources[processID]; ok {
		return r
	}
	r := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(s.serviceName),
		semconv.ServiceInstanceID(processID),
	)
	s.resources[processID] = r
	return r
}

func newSpanContext(traceID trace.TraceID) trace.SpanContext {
	u := uuid.New()
	var spanID trace.SpanID
	copy(spanID[:], u[:8])
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
}

// Shutdown shuts down the exporter. Spans which are still open are
// discarded.
func (s *Sink) Shutdown(ctx context.Context) error {
	errs := []error{s.exp.Shutdown(ctx)}
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
