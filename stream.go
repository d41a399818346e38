// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package telemetry

import (
	"context"

	"github.com/z5labs/telemetry/intern"
)

// Stream is the Span channel of a single worker. It is owned by the
// goroutine which registered it and must never be used from another
// goroutine, which is what lets span emission run without locks.
//
// Every method is a no-op on a nil, detached or closed Stream.
type Stream struct {
	d        *Dispatcher
	id       uint64
	name     string
	events   []SpanEvent
	depth    uint32
	detached bool
}

// ID returns the thread identity stamped on this stream's events.
func (s *Stream) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}

// Name returns the thread name given at registration.
func (s *Stream) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

// Depth returns the number of currently open synchronous spans.
func (s *Stream) Depth() uint32 {
	if s == nil {
		return 0
	}
	return s.depth
}

// Recording reports whether events pushed to s are recorded. It is safe to
// call on a nil Stream.
func (s *Stream) Recording() bool {
	return s.active()
}

func (s *Stream) active() bool {
	return s != nil && !s.detached && s.d.active()
}

// Begin opens a span described by scope.
func (s *Stream) Begin(scope *Scope) Span {
	return s.BeginNamed(scope, intern.String{})
}

// BeginNamed opens a span described by scope but reported under the
// interned runtime name.
func (s *Stream) BeginNamed(scope *Scope, name intern.String) Span {
	if !s.active() {
		return Span{}
	}
	s.push(SpanEvent{
		Kind:     SpanBegin,
		Scope:    scope,
		Name:     name,
		Time:     s.d.clock.Now(),
		ThreadID: s.id,
		Depth:    s.depth,
	})
	s.depth++
	return Span{stream: s, scope: scope, name: name}
}

// End closes the innermost open span. An End without a matching Begin
// is ignored.
func (s *Stream) End(scope *Scope) {
	s.EndNamed(scope, intern.String{})
}

// EndNamed closes the innermost open span opened with [Stream.BeginNamed].
func (s *Stream) EndNamed(scope *Scope, name intern.String) {
	if !s.active() || s.depth == 0 {
		return
	}
	s.depth--
	s.push(SpanEvent{
		Kind:     SpanEnd,
		Scope:    scope,
		Name:     name,
		Time:     s.d.clock.Now(),
		ThreadID: s.id,
		Depth:    s.depth,
	})
}

// BeginAsync records the start of an async scope and returns its token.
// The token is zero if nothing was recorded.
func (s *Stream) BeginAsync(scope *Scope, parent uint64, depth uint32) AsyncToken {
	if !s.active() {
		return 0
	}
	token := s.d.nextAsyncID.Add(1)
	s.push(SpanEvent{
		Kind:     AsyncBegin,
		Scope:    scope,
		Time:     s.d.clock.Now(),
		ThreadID: s.id,
		Depth:    depth,
		SpanID:   token,
		ParentID: parent,
	})
	return AsyncToken(token)
}

// EndAsync records the end of the async scope identified by token.
// A zero token is ignored.
func (s *Stream) EndAsync(scope *Scope, token AsyncToken) {
	if !s.active() || token == 0 {
		return
	}
	s.push(SpanEvent{
		Kind:     AsyncEnd,
		Scope:    scope,
		Time:     s.d.clock.Now(),
		ThreadID: s.id,
		SpanID:   uint64(token),
	})
}

// Flush delivers every buffered span event to the sink.
func (s *Stream) Flush() {
	if s == nil || s.detached || len(s.events) == 0 {
		return
	}
	if !s.d.active() {
		// the sink is gone once the dispatcher closes
		s.events = s.events[:0]
		return
	}
	events := s.events
	s.events = make([]SpanEvent, 0, cap(events))
	s.d.deliverSpans(s, events)
}

func (s *Stream) push(e SpanEvent) {
	s.events = append(s.events, e)
	if len(s.events) >= s.d.spanBufferSize {
		s.Flush()
	}
}

func (s *Stream) detach() {
	if s == nil || s.detached {
		return
	}
	s.Flush()
	s.detached = true
	s.events = nil
}

// Span is the handle returned when a span is opened. The zero Span is the
// sentinel returned when nothing was recorded; ending it does nothing.
type Span struct {
	stream *Stream
	scope  *Scope
	name   intern.String
}

// End closes the span. It must be called at most once, from the goroutine
// which opened the span.
func (sp Span) End() {
	sp.stream.EndNamed(sp.scope, sp.name)
}

// IsRecording reports whether the Begin event was recorded.
func (sp Span) IsRecording() bool {
	return sp.stream != nil
}

// AsyncToken identifies an in-flight async scope. Zero is the sentinel for
// a scope which was not recorded.
type AsyncToken uint64

type streamKey struct{}

type threadNameKey struct{}

// StreamFromContext returns the Stream registered in ctx, or nil.
func StreamFromContext(ctx context.Context) *Stream {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(streamKey{}).(*Stream)
	return s
}

// WithThreadName names the Stream which a later [RegisterThread] creates.
func WithThreadName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, threadNameKey{}, name)
}

// RegisterThread attaches a new Stream, owned by the calling goroutine, to
// ctx. If ctx already carries a live Stream of the installed Dispatcher,
// ctx is returned unchanged. Nothing happens when no Dispatcher is
// installed or CPU tracing is disabled.
func RegisterThread(ctx context.Context) context.Context {
	return Current().RegisterThread(ctx)
}

// RegisterThread is the Dispatcher bound variant of the package level
// [RegisterThread].
func (d *Dispatcher) RegisterThread(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if !d.active() || !d.cpuTracing {
		return ctx
	}
	if s := StreamFromContext(ctx); s.active() && s.d == d {
		return ctx
	}
	name, _ := ctx.Value(threadNameKey{}).(string)
	return context.WithValue(ctx, streamKey{}, d.newStream(name))
}

// FlushThread delivers the span events buffered by the Stream in ctx.
func FlushThread(ctx context.Context) {
	StreamFromContext(ctx).Flush()
}

// UnregisterThread flushes and detaches the Stream in ctx. Spans emitted
// with ctx afterwards are not recorded.
func UnregisterThread(ctx context.Context) {
	StreamFromContext(ctx).detach()
}
