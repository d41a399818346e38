// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package promsink provides a [telemetry.Sink] which mirrors events into
// Prometheus collectors.
//
// Every metric event sets a gauge labelled by metric name and unit. Log
// and span events are counted, and synchronous spans feed a duration
// histogram labelled by span name.
package promsink

import (
	"errors"
	"sync"

	"github.com/z5labs/telemetry"

	"github.com/prometheus/client_golang/prometheus"
)

// OtherLabel replaces label values past the cardinality limit.
const OtherLabel = "_other"

type options struct {
	namespace      string
	registerer     prometheus.Registerer
	maxCardinality int
	buckets        []float64
}

// Option configures a [Sink].
type Option func(*options)

// Namespace prefixes every collector name. Defaults to "telemetry".
func Namespace(ns string) Option {
	return func(o *options) {
		o.namespace = ns
	}
}

// Registerer sets where the collectors are registered. Defaults to
// [prometheus.DefaultRegisterer].
func Registerer(r prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = r
	}
}

// MaxLabelCardinality caps the distinct metric and span names tracked.
// Names seen after the cap are reported as [OtherLabel].
func MaxLabelCardinality(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxCardinality = n
		}
	}
}

// DurationBuckets sets the span duration histogram buckets, in seconds.
func DurationBuckets(b []float64) Option {
	return func(o *options) {
		o.buckets = b
	}
}

// Sink updates Prometheus collectors. Safe for concurrent use.
type Sink struct {
	metricValue  *prometheus.GaugeVec
	metricEvents *prometheus.CounterVec
	logEvents    *prometheus.CounterVec
	spanEvents   *prometheus.CounterVec
	spanDuration *prometheus.HistogramVec

	maxCardinality int

	mu     sync.Mutex
	names  map[string]struct{}
	stacks map[uint64][]telemetry.SpanEvent
}

// New returns a Sink with its collectors registered.
func New(opts ...Option) (*Sink, error) {
	o := &options{
		namespace:      "telemetry",
		registerer:     prometheus.DefaultRegisterer,
		maxCardinality: 1000,
		buckets:        []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}
	for _, opt := range opts {
		opt(o)
	}

	s := &Sink{
		metricValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: o.namespace,
			Name:      "metric_value",
			Help:      "Last value emitted for each metric.",
		}, []string{"name", "unit"}),
		metricEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "metric_events_total",
			Help:      "Number of metric events received.",
		}, []string{"name"}),
		logEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "log_events_total",
			Help:      "Number of log events received by level.",
		}, []string{"level"}),
		spanEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "span_events_total",
			Help:      "Number of span events received by kind.",
		}, []string{"kind"}),
		spanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: o.namespace,
			Name:      "span_duration_seconds",
			Help:      "Duration of synchronous spans.",
			Buckets:   o.buckets,
		}, []string{"name"}),
		maxCardinality: o.maxCardinality,
		names:          make(map[string]struct{}),
		stacks:         make(map[uint64][]telemetry.SpanEvent),
	}

	var err error
	if s.metricValue, err = register(o.registerer, s.metricValue); err != nil {
		return nil, err
	}
	if s.metricEvents, err = register(o.registerer, s.metricEvents); err != nil {
		return nil, err
	}
	if s.logEvents, err = register(o.registerer, s.logEvents); err != nil {
		return nil, err
	}
	if s.spanEvents, err = register(o.registerer, s.spanEvents); err != nil {
		return nil, err
	}
	if s.spanDuration, err = register(o.registerer, s.spanDuration); err != nil {
		return nil, err
	}
	return s, nil
}

// register adopts the existing collector when an identical one is
// already registered.
func register[C prometheus.Collector](r prometheus.Registerer, c C) (C, error) {
	err := r.Register(c)
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, err
}

func (s *Sink) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		s.metricValue,
		s.metricEvents,
		s.logEvents,
		s.spanEvents,
		s.spanDuration,
	}
}

// Unregister removes the collectors from r.
func (s *Sink) Unregister(r prometheus.Registerer) {
	for _, c := range s.collectors() {
		r.Unregister(c)
	}
}

// label must be called with mu held.
func (s *Sink) label(name string) string {
	if _, ok := s.names[name]; ok {
		return name
	}
	if len(s.names) >= s.maxCardinality {
		return OtherLabel
	}
	s.names[name] = struct{}{}
	return name
}

// ProcessLogBlock implements the [telemetry.Sink] interface.
func (s *Sink) ProcessLogBlock(b telemetry.LogBlock) {
	for _, e := range b.Events {
		s.logEvents.WithLabelValues(e.Level.String()).Inc()
	}
}

// ProcessMetricBlock implements the [telemetry.Sink] interface.
func (s *Sink) ProcessMetricBlock(b telemetry.MetricBlock) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range b.Events {
		name := s.label(e.Name)
		s.metricValue.WithLabelValues(name, e.Unit).Set(e.Value)
		s.metricEvents.WithLabelValues(name).Inc()
	}
}

// ProcessSpanBlock implements the [telemetry.Sink] interface.
func (s *Sink) ProcessSpanBlock(b telemetry.SpanBlock) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stack := s.stacks[b.ThreadID]
	for _, e := range b.Events {
		s.spanEvents.WithLabelValues(e.Kind.String()).Inc()

		switch e.Kind {
		case telemetry.SpanBegin:
			stack = append(stack, e)
		case telemetry.SpanEnd:
			n := len(stack)
			if n == 0 {
				continue
			}
			begin := stack[n-1]
			stack = stack[:n-1]
			s.spanDuration.
				WithLabelValues(s.label(begin.SpanName())).
				Observe(e.Time.Sub(begin.Time).Seconds())
		}
	}
	if len(stack) == 0 {
		delete(s.stacks, b.ThreadID)
		return
	}
	s.stacks[b.ThreadID] = stack
}
