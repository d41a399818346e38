// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type countingSink struct {
	logs, metrics, spans int
	shutdownErr          error
	shutdowns            int
}

func (s *countingSink) ProcessLogBlock(b LogBlock)       { s.logs += len(b.Events) }
func (s *countingSink) ProcessMetricBlock(b MetricBlock) { s.metrics += len(b.Events) }
func (s *countingSink) ProcessSpanBlock(b SpanBlock)     { s.spans += len(b.Events) }

func (s *countingSink) Shutdown(context.Context) error {
	s.shutdowns++
	return s.shutdownErr
}

type explodingSink struct {
	discardSink
}

func (explodingSink) ProcessMetricBlock(MetricBlock) {
	panic(errors.New("metric sink exploded"))
}

func TestMultiSink(t *testing.T) {
	t.Run("will deliver to every sink", func(t *testing.T) {
		t.Run("if sinks are nested or nil", func(t *testing.T) {
			a := &countingSink{}
			b := &countingSink{}
			ms := MultiSink(a, nil, MultiSink(b))

			require.Len(t, ms, 2)

			ms.ProcessLogBlock(LogBlock{Events: make([]LogEvent, 2)})
			ms.ProcessMetricBlock(MetricBlock{Events: make([]MetricEvent, 3)})
			ms.ProcessSpanBlock(SpanBlock{Events: make([]SpanEvent, 4)})

			for _, s := range []*countingSink{a, b} {
				require.Equal(t, 2, s.logs)
				require.Equal(t, 3, s.metrics)
				require.Equal(t, 4, s.spans)
			}
		})

		t.Run("even if an earlier sink panics", func(t *testing.T) {
			after := &countingSink{}
			ms := MultiSink(explodingSink{}, after)

			v := recovered(func() {
				ms.ProcessMetricBlock(MetricBlock{Events: make([]MetricEvent, 1)})
			})
			require.Equal(t, 1, after.metrics)

			err, ok := v.(error)
			require.True(t, ok)
			require.ErrorContains(t, err, "metric sink exploded")
		})
	})

	t.Run("will shut down", func(t *testing.T) {
		t.Run("every sink which supports it", func(t *testing.T) {
			a := &countingSink{}
			b := &countingSink{shutdownErr: errors.New("flush failed")}
			ms := MultiSink(a, Discard, b)

			sd, ok := ms.(shutdowner)
			require.True(t, ok)

			err := sd.Shutdown(context.Background())
			require.ErrorContains(t, err, "flush failed")
			require.Equal(t, 1, a.shutdowns)
			require.Equal(t, 1, b.shutdowns)
		})
	})
}

func recovered(f func()) (v any) {
	defer func() {
		v = recover()
	}()
	f()
	return nil
}
