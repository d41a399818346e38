// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package promsink

import (
	"testing"
	"time"

	"github.com/z5labs/telemetry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newSink(t *testing.T, opts ...Option) *Sink {
	reg := prometheus.NewRegistry()
	s, err := New(append([]Option{Registerer(reg)}, opts...)...)
	require.NoError(t, err)
	return s
}

func TestSink_ProcessMetricBlock(t *testing.T) {
	t.Run("will set the gauge to the latest value", func(t *testing.T) {
		t.Run("if a metric is emitted more than once", func(t *testing.T) {
			s := newSink(t)

			s.ProcessMetricBlock(telemetry.MetricBlock{
				Events: []telemetry.MetricEvent{
					{Name: "entities", Unit: "count", Value: 10, Integer: true},
					{Name: "entities", Unit: "count", Value: 12, Integer: true},
					{Name: "frame_time", Unit: "ms", Value: 16.6},
				},
			})

			require.Equal(t, float64(12), testutil.ToFloat64(s.metricValue.WithLabelValues("entities", "count")))
			require.Equal(t, 16.6, testutil.ToFloat64(s.metricValue.WithLabelValues("frame_time", "ms")))
			require.Equal(t, float64(2), testutil.ToFloat64(s.metricEvents.WithLabelValues("entities")))
		})
	})

	t.Run("will fold names into the other label", func(t *testing.T) {
		t.Run("if the cardinality limit is reached", func(t *testing.T) {
			s := newSink(t, MaxLabelCardinality(2))

			s.ProcessMetricBlock(telemetry.MetricBlock{
				Events: []telemetry.MetricEvent{
					{Name: "a", Unit: "u", Value: 1},
					{Name: "b", Unit: "u", Value: 2},
					{Name: "c", Unit: "u", Value: 3},
					{Name: "d", Unit: "u", Value: 4},
				},
			})

			require.Equal(t, float64(2), testutil.ToFloat64(s.metricEvents.WithLabelValues(OtherLabel)))
			require.Equal(t, float64(4), testutil.ToFloat64(s.metricValue.WithLabelValues(OtherLabel, "u")))
		})
	})
}

func TestSink_ProcessLogBlock(t *testing.T) {
	t.Run("will count logs by level", func(t *testing.T) {
		s := newSink(t)

		s.ProcessLogBlock(telemetry.LogBlock{
			Events: []telemetry.LogEvent{
				{Level: telemetry.LevelInfo},
				{Level: telemetry.LevelInfo},
				{Level: telemetry.LevelError},
			},
		})

		require.Equal(t, float64(2), testutil.ToFloat64(s.logEvents.WithLabelValues(telemetry.LevelInfo.String())))
		require.Equal(t, float64(1), testutil.ToFloat64(s.logEvents.WithLabelValues(telemetry.LevelError.String())))
	})
}

func TestSink_ProcessSpanBlock(t *testing.T) {
	t.Run("will observe span durations", func(t *testing.T) {
		t.Run("if the end arrives in a later block", func(t *testing.T) {
			s := newSink(t)

			start := time.Unix(0, 0)
			scope := telemetry.NewScope("physics")
			s.ProcessSpanBlock(telemetry.SpanBlock{
				ThreadID: 1,
				Events:   []telemetry.SpanEvent{{Kind: telemetry.SpanBegin, Scope: scope, Time: start}},
			})
			s.ProcessSpanBlock(telemetry.SpanBlock{
				ThreadID: 1,
				Events: []telemetry.SpanEvent{
					{Kind: telemetry.SpanEnd, Scope: scope, Time: start.Add(5 * time.Millisecond)},
					{Kind: telemetry.SpanEnd, Scope: scope, Time: start.Add(6 * time.Millisecond)},
				},
			})

			require.Equal(t, float64(1), testutil.ToFloat64(s.spanEvents.WithLabelValues("begin")))
			require.Equal(t, float64(2), testutil.ToFloat64(s.spanEvents.WithLabelValues("end")))
			require.Equal(t, 1, testutil.CollectAndCount(s.spanDuration))
			require.Empty(t, s.stacks)
		})
	})
}

func TestNew(t *testing.T) {
	t.Run("will reuse registered collectors", func(t *testing.T) {
		t.Run("if the collectors are already registered", func(t *testing.T) {
			reg := prometheus.NewRegistry()
			first, err := New(Registerer(reg))
			require.NoError(t, err)

			second, err := New(Registerer(reg))
			require.NoError(t, err)
			require.Same(t, first.logEvents, second.logEvents)

			second.ProcessLogBlock(telemetry.LogBlock{Events: []telemetry.LogEvent{{Level: telemetry.LevelWarn}}})
			require.Equal(t, float64(1), testutil.ToFloat64(first.logEvents.WithLabelValues(telemetry.LevelWarn.String())))
		})
	})
}
