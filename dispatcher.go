// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package telemetry

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/z5labs/telemetry/intern"
	"github.com/z5labs/telemetry/internal/noop"
	"github.com/z5labs/telemetry/internal/try"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
)

// Default buffer capacities, in events.
const (
	DefaultLogBufferSize    = 1024
	DefaultMetricBufferSize = 1024
	DefaultSpanBufferSize   = 4096
)

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithClock sets the clock used to timestamp events.
func WithClock(c clockz.Clock) Option {
	return func(d *Dispatcher) {
		d.clock = c
	}
}

// WithLogger sets the logger used to report sink failures.
// It must not route back into the Dispatcher.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// WithMinLevel sets the minimum severity of recorded log events.
func WithMinLevel(l Level) Option {
	return func(d *Dispatcher) {
		d.minLevel.Store(int32(l))
	}
}

// WithCPUTracing enables span capture. When disabled, [RegisterThread]
// does nothing and every span emission is a no-op.
func WithCPUTracing(enabled bool) Option {
	return func(d *Dispatcher) {
		d.cpuTracing = enabled
	}
}

// WithProcessID overrides the randomly generated process identity stamped
// on every block.
func WithProcessID(id string) Option {
	return func(d *Dispatcher) {
		d.processID = id
	}
}

// WithBufferSizes sets the capacity, in events, of the log, metric and
// per-thread span buffers. Non-positive values keep the default.
func WithBufferSizes(logs, metrics, spans int) Option {
	return func(d *Dispatcher) {
		if logs > 0 {
			d.logBufferSize = logs
		}
		if metrics > 0 {
			d.metricBufferSize = metrics
		}
		if spans > 0 {
			d.spanBufferSize = spans
		}
	}
}

// Dispatcher owns the Log and Metric channels and hands out span streams.
// All methods are safe for concurrent use and are no-ops on a nil or closed
// Dispatcher.
type Dispatcher struct {
	sink      Sink
	clock     clockz.Clock
	logger    *slog.Logger
	processID string

	minLevel   atomic.Int32
	cpuTracing bool

	logBufferSize    int
	metricBufferSize int
	spanBufferSize   int

	logs    *sharedChannel[LogEvent]
	metrics *sharedChannel[MetricEvent]

	nextThreadID atomic.Uint64
	nextAsyncID  atomic.Uint64
	sinkPanics   atomic.Uint64
	closed       atomic.Bool
}

// NewDispatcher returns a Dispatcher delivering flushed blocks to sink.
// A nil sink discards everything.
func NewDispatcher(sink Sink, opts ...Option) *Dispatcher {
	if sink == nil {
		sink = Discard
	}
	d := &Dispatcher{
		sink:             sink,
		clock:            clockz.RealClock,
		logger:           noop.Logger(),
		processID:        uuid.NewString(),
		logBufferSize:    DefaultLogBufferSize,
		metricBufferSize: DefaultMetricBufferSize,
		spanBufferSize:   DefaultSpanBufferSize,
	}
	d.minLevel.Store(int32(LevelInfo))
	for _, opt := range opts {
		opt(d)
	}

	d.logs = newSharedChannel(d.logBufferSize, d.deliverLogs)
	d.metrics = newSharedChannel(d.metricBufferSize, d.deliverMetrics)
	return d
}

// ProcessID returns the identity stamped on every block.
func (d *Dispatcher) ProcessID() string {
	if d == nil {
		return ""
	}
	return d.processID
}

// CPUTracingEnabled reports whether span capture is enabled.
func (d *Dispatcher) CPUTracingEnabled() bool {
	return d != nil && d.cpuTracing
}

// SetMinLevel changes the minimum severity of recorded log events.
func (d *Dispatcher) SetMinLevel(l Level) {
	if d == nil {
		return
	}
	d.minLevel.Store(int32(l))
}

// MinLevel returns the minimum severity of recorded log events.
func (d *Dispatcher) MinLevel() Level {
	if d == nil {
		return LevelFatal
	}
	return Level(d.minLevel.Load())
}

// Enabled reports whether a log event at level l would be recorded.
func (d *Dispatcher) Enabled(l Level) bool {
	return d.active() && l.Enabled(d.MinLevel())
}

// SinkPanics returns the number of blocks whose delivery panicked.
func (d *Dispatcher) SinkPanics() uint64 {
	if d == nil {
		return 0
	}
	return d.sinkPanics.Load()
}

func (d *Dispatcher) active() bool {
	return d != nil && !d.closed.Load()
}

// EmitLog records a log event if l passes the minimum level.
func (d *Dispatcher) EmitLog(l Level, msg string, props *intern.PropertySet) {
	d.EmitTargetLog(l, "", msg, props)
}

// EmitTargetLog is like [Dispatcher.EmitLog] but attributes the event to target.
func (d *Dispatcher) EmitTargetLog(l Level, target, msg string, props *intern.PropertySet) {
	d.EmitTracedLog(l, target, msg, props, TraceContext{})
}

// EmitTracedLog is like [Dispatcher.EmitTargetLog] but also records the
// trace the event belongs to.
func (d *Dispatcher) EmitTracedLog(l Level, target, msg string, props *intern.PropertySet, tc TraceContext) {
	if !d.Enabled(l) {
		return
	}
	d.logs.append(d.clock, func(now time.Time) LogEvent {
		return LogEvent{
			Time:       now,
			Level:      l,
			Target:     target,
			Message:    msg,
			Properties: props,
			Trace:      tc,
		}
	})
}

// EmitMetric records a floating point measurement.
func (d *Dispatcher) EmitMetric(name, unit string, value float64, props *intern.PropertySet) {
	d.emitMetric(name, unit, value, false, props)
}

// EmitIntMetric records an integer measurement.
func (d *Dispatcher) EmitIntMetric(name, unit string, value int64, props *intern.PropertySet) {
	d.emitMetric(name, unit, float64(value), true, props)
}

func (d *Dispatcher) emitMetric(name, unit string, value float64, integer bool, props *intern.PropertySet) {
	if !d.active() {
		return
	}
	d.metrics.append(d.clock, func(now time.Time) MetricEvent {
		return MetricEvent{
			Time:       now,
			Name:       name,
			Unit:       unit,
			Value:      value,
			Integer:    integer,
			Properties: props,
		}
	})
}

// FlushLogs delivers every buffered log event to the sink.
func (d *Dispatcher) FlushLogs() {
	if d == nil {
		return
	}
	d.logs.flush()
}

// FlushMetrics delivers every buffered metric event to the sink.
func (d *Dispatcher) FlushMetrics() {
	if d == nil {
		return
	}
	d.metrics.flush()
}

// Close flushes the shared channels and stops recording. Streams which are
// still registered stop recording as well; their unflushed events are lost
// unless their owners flush before Close.
func (d *Dispatcher) Close() {
	if d == nil || d.closed.Swap(true) {
		return
	}
	d.logs.flush()
	d.metrics.flush()
}

func (d *Dispatcher) newStream(name string) *Stream {
	return &Stream{
		d:      d,
		id:     d.nextThreadID.Add(1),
		name:   name,
		events: make([]SpanEvent, 0, d.spanBufferSize),
	}
}

func (d *Dispatcher) deliverLogs(events []LogEvent) {
	d.deliver("log", func() {
		d.sink.ProcessLogBlock(LogBlock{ProcessID: d.processID, Events: events})
	})
}

func (d *Dispatcher) deliverMetrics(events []MetricEvent) {
	d.deliver("metric", func() {
		d.sink.ProcessMetricBlock(MetricBlock{ProcessID: d.processID, Events: events})
	})
}

func (d *Dispatcher) deliverSpans(s *Stream, events []SpanEvent) {
	d.deliver("span", func() {
		d.sink.ProcessSpanBlock(SpanBlock{
			ProcessID:  d.processID,
			ThreadID:   s.id,
			ThreadName: s.name,
			Events:     events,
		})
	})
}

func (d *Dispatcher) deliver(channel string, f func()) {
	err := try.Call(f)
	if err == nil {
		return
	}
	d.sinkPanics.Add(1)
	d.logger.Error("telemetry sink failed to process block",
		slog.String("channel", channel),
		slog.Any("error", err),
	)
}

// sharedChannel is a fixed capacity buffer which any goroutine may append
// to. Appends hold mu only for the append itself. A cut takes a ticket under
// mu and then waits, without mu, for its turn to deliver, so blocks reach
// the sink in the order they were cut while emitters keep appending.
type sharedChannel[E any] struct {
	mu       sync.Mutex
	buf      []E
	capacity int
	tickets  uint64

	deliverMu sync.Mutex
	turn      *sync.Cond
	served    uint64
	deliver   func([]E)
}

func newSharedChannel[E any](capacity int, deliver func([]E)) *sharedChannel[E] {
	c := &sharedChannel[E]{
		buf:      make([]E, 0, capacity),
		capacity: capacity,
		deliver:  deliver,
	}
	c.turn = sync.NewCond(&c.deliverMu)
	return c
}

func (c *sharedChannel[E]) append(clock clockz.Clock, build func(time.Time) E) {
	c.mu.Lock()
	c.buf = append(c.buf, build(clock.Now()))
	if len(c.buf) < c.capacity {
		c.mu.Unlock()
		return
	}
	c.cutLocked()
}

// flush returns once every block cut before it has been delivered.
func (c *sharedChannel[E]) flush() {
	c.mu.Lock()
	c.cutLocked()
}

// cutLocked must be called with mu held and always releases it.
func (c *sharedChannel[E]) cutLocked() {
	events := c.buf
	if len(events) > 0 {
		c.buf = make([]E, 0, c.capacity)
	}
	ticket := c.tickets
	c.tickets++
	c.mu.Unlock()

	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	for c.served != ticket {
		c.turn.Wait()
	}
	defer func() {
		c.served++
		c.turn.Broadcast()
	}()

	if len(events) > 0 {
		c.deliver(events)
	}
}
