// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package memory provides a [telemetry.Sink] which keeps every flushed
// event in memory, for tests.
//
// The counters only reflect flushed blocks. Deterministic tests must flush
// the channels they inspect first.
package memory

import (
	"sync"
	"sync/atomic"

	"github.com/z5labs/telemetry"
)

// Sink retains every block it receives. Safe for concurrent use.
type Sink struct {
	logCount    atomic.Int64
	metricCount atomic.Int64
	spanCount   atomic.Int64

	mu      sync.Mutex
	logs    []telemetry.LogEvent
	metrics []telemetry.MetricEvent
	spans   []telemetry.SpanBlock
}

// New returns an empty Sink.
func New() *Sink {
	return &Sink{}
}

// ProcessLogBlock implements the [telemetry.Sink] interface.
func (s *Sink) ProcessLogBlock(b telemetry.LogBlock) {
	s.mu.Lock()
	s.logs = append(s.logs, b.Events...)
	s.mu.Unlock()
	s.logCount.Add(int64(len(b.Events)))
}

// ProcessMetricBlock implements the [telemetry.Sink] interface.
func (s *Sink) ProcessMetricBlock(b telemetry.MetricBlock) {
	s.mu.Lock()
	s.metrics = append(s.metrics, b.Events...)
	s.mu.Unlock()
	s.metricCount.Add(int64(len(b.Events)))
}

// ProcessSpanBlock implements the [telemetry.Sink] interface.
func (s *Sink) ProcessSpanBlock(b telemetry.SpanBlock) {
	s.mu.Lock()
	s.spans = append(s.spans, b)
	s.mu.Unlock()
	s.spanCount.Add(int64(len(b.Events)))
}

// TotalLogEvents returns the number of flushed log events.
func (s *Sink) TotalLogEvents() int64 {
	return s.logCount.Load()
}

// TotalMetricEvents returns the number of flushed metric events.
func (s *Sink) TotalMetricEvents() int64 {
	return s.metricCount.Load()
}

// TotalSpanEvents returns the number of flushed span events.
func (s *Sink) TotalSpanEvents() int64 {
	return s.spanCount.Load()
}

// Logs returns a copy of the flushed log events in delivery order.
func (s *Sink) Logs() []telemetry.LogEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]telemetry.LogEvent, len(s.logs))
	copy(out, s.logs)
	return out
}

// Metrics returns a copy of the flushed metric events in delivery order.
func (s *Sink) Metrics() []telemetry.MetricEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]telemetry.MetricEvent, len(s.metrics))
	copy(out, s.metrics)
	return out
}

// SpanBlocks returns the flushed span blocks in delivery order.
func (s *Sink) SpanBlocks() []telemetry.SpanBlock {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]telemetry.SpanBlock, len(s.spans))
	copy(out, s.spans)
	return out
}

// Spans returns every flushed span event, block by block.
func (s *Sink) Spans() []telemetry.SpanEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []telemetry.SpanEvent
	for _, b := range s.spans {
		out = append(out, b.Events...)
	}
	return out
}

// Reset drops everything received so far.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = nil
	s.metrics = nil
	s.spans = nil
	s.logCount.Store(0)
	s.metricCount.Store(0)
	s.spanCount.Store(0)
}
