// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package telemetry_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/z5labs/telemetry"
	"github.com/z5labs/telemetry/intern"
	"github.com/z5labs/telemetry/sink/memory"

	"github.com/stretchr/testify/require"
)

func TestDispatcher_EmitLog(t *testing.T) {
	t.Run("will record logs", func(t *testing.T) {
		t.Run("from goroutines which never registered", func(t *testing.T) {
			sink := memory.New()
			d := telemetry.NewDispatcher(sink)

			var wg sync.WaitGroup
			for i := range 4 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					d.EmitLog(telemetry.LevelInfo, fmt.Sprintf("goroutine %d reporting", i), nil)
					d.EmitIntMetric("thread_tick", "count", 1, nil)
					d.EmitMetric("thread_value", "units", float64(i), nil)
				}()
			}
			wg.Wait()

			d.FlushLogs()
			d.FlushMetrics()

			require.EqualValues(t, 4, sink.TotalLogEvents())
			require.EqualValues(t, 8, sink.TotalMetricEvents())
		})

		t.Run("with their property set", func(t *testing.T) {
			sink := memory.New()
			d := telemetry.NewDispatcher(sink)
			props := intern.Props(intern.Property{Key: "system", Value: "a"})

			d.EmitLog(telemetry.LevelWarn, "slow frame", props)
			d.FlushLogs()

			logs := sink.Logs()
			require.Len(t, logs, 1)
			require.Same(t, props, logs[0].Properties)
			require.Equal(t, telemetry.LevelWarn, logs[0].Level)
		})
	})

	t.Run("will drop logs", func(t *testing.T) {
		t.Run("if the level is below the minimum", func(t *testing.T) {
			sink := memory.New()
			d := telemetry.NewDispatcher(sink, telemetry.WithMinLevel(telemetry.LevelWarn))

			d.EmitLog(telemetry.LevelInfo, "dropped", nil)
			d.EmitLog(telemetry.LevelError, "kept", nil)
			d.FlushLogs()

			require.EqualValues(t, 1, sink.TotalLogEvents())

			d.SetMinLevel(telemetry.LevelTrace)
			d.EmitLog(telemetry.LevelTrace, "kept", nil)
			d.FlushLogs()

			require.EqualValues(t, 2, sink.TotalLogEvents())
		})

		t.Run("if the dispatcher is closed", func(t *testing.T) {
			sink := memory.New()
			d := telemetry.NewDispatcher(sink)

			d.EmitLog(telemetry.LevelInfo, "before", nil)
			d.Close()
			d.EmitLog(telemetry.LevelInfo, "after", nil)
			d.EmitMetric("after", "ms", 1, nil)
			d.FlushLogs()
			d.FlushMetrics()

			require.EqualValues(t, 1, sink.TotalLogEvents())
			require.Zero(t, sink.TotalMetricEvents())
		})

		t.Run("if the dispatcher is nil", func(t *testing.T) {
			var d *telemetry.Dispatcher

			require.NotPanics(t, func() {
				d.EmitLog(telemetry.LevelError, "nowhere", nil)
				d.EmitMetric("nowhere", "ms", 1, nil)
				d.FlushLogs()
				d.FlushMetrics()
				d.Close()
			})
		})
	})
}

func TestDispatcher_Flush(t *testing.T) {
	t.Run("will deliver a block", func(t *testing.T) {
		t.Run("if the buffer reaches capacity", func(t *testing.T) {
			sink := memory.New()
			d := telemetry.NewDispatcher(sink, telemetry.WithBufferSizes(4, 4, 4))

			for i := range 9 {
				d.EmitLog(telemetry.LevelInfo, fmt.Sprint(i), nil)
			}

			require.EqualValues(t, 8, sink.TotalLogEvents())

			d.FlushLogs()
			require.EqualValues(t, 9, sink.TotalLogEvents())
		})
	})

	t.Run("will keep channel order", func(t *testing.T) {
		t.Run("across blocks", func(t *testing.T) {
			sink := memory.New()
			d := telemetry.NewDispatcher(sink, telemetry.WithBufferSizes(3, 3, 3))

			for i := range 10 {
				d.EmitLog(telemetry.LevelInfo, fmt.Sprint(i), nil)
			}
			d.FlushLogs()

			logs := sink.Logs()
			require.Len(t, logs, 10)
			for i, l := range logs {
				require.Equal(t, fmt.Sprint(i), l.Message)
				if i > 0 {
					require.False(t, l.Time.Before(logs[i-1].Time))
				}
			}
		})
	})

	t.Run("will keep accepting events", func(t *testing.T) {
		t.Run("while a full block waits on a slow sink", func(t *testing.T) {
			sink := &gatedSink{
				Sink:    memory.New(),
				entered: make(chan struct{}),
				release: make(chan struct{}),
			}
			d := telemetry.NewDispatcher(sink, telemetry.WithBufferSizes(2, 2, 2))

			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				d.EmitLog(telemetry.LevelInfo, "0", nil)
				d.EmitLog(telemetry.LevelInfo, "1", nil)
			}()
			<-sink.entered

			go func() {
				defer wg.Done()
				d.EmitLog(telemetry.LevelInfo, "2", nil)
				d.EmitLog(telemetry.LevelInfo, "3", nil)
			}()

			emitted := make(chan struct{})
			go func() {
				defer close(emitted)
				d.EmitLog(telemetry.LevelInfo, "4", nil)
			}()

			select {
			case <-emitted:
			case <-time.After(time.Second):
				t.Fatal("emit blocked behind a block delivery")
			}

			close(sink.release)
			wg.Wait()
			d.FlushLogs()

			logs := sink.Logs()
			require.Len(t, logs, 5)
			require.Equal(t, "0", logs[0].Message)
			require.Equal(t, "1", logs[1].Message)
		})
	})

	t.Run("will not change counts", func(t *testing.T) {
		t.Run("if the buffer is empty", func(t *testing.T) {
			sink := memory.New()
			d := telemetry.NewDispatcher(sink)

			d.EmitLog(telemetry.LevelInfo, "one", nil)
			d.FlushLogs()
			d.FlushLogs()
			d.FlushMetrics()

			require.EqualValues(t, 1, sink.TotalLogEvents())
			require.Zero(t, sink.TotalMetricEvents())
		})
	})
}

type gatedSink struct {
	*memory.Sink
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *gatedSink) ProcessLogBlock(b telemetry.LogBlock) {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	s.Sink.ProcessLogBlock(b)
}

type panicSink struct {
	telemetry.Sink
}

func (panicSink) ProcessLogBlock(telemetry.LogBlock) {
	panic("sink exploded")
}

func TestDispatcher_SinkPanics(t *testing.T) {
	t.Run("will recover", func(t *testing.T) {
		t.Run("if the sink panics while processing a block", func(t *testing.T) {
			mem := memory.New()
			d := telemetry.NewDispatcher(telemetry.MultiSink(panicSink{Sink: telemetry.Discard}, mem))

			d.EmitLog(telemetry.LevelInfo, "boom", nil)
			require.NotPanics(t, d.FlushLogs)

			require.EqualValues(t, 1, d.SinkPanics())
			require.EqualValues(t, 1, mem.TotalLogEvents())
		})
	})
}

func TestInstall(t *testing.T) {
	t.Run("will return ErrAlreadyInstalled", func(t *testing.T) {
		t.Run("if another dispatcher is installed", func(t *testing.T) {
			first := telemetry.NewDispatcher(nil)
			require.NoError(t, telemetry.Install(first))
			t.Cleanup(func() { telemetry.Uninstall(first) })

			second := telemetry.NewDispatcher(nil)
			require.ErrorIs(t, telemetry.Install(second), telemetry.ErrAlreadyInstalled)
			require.False(t, telemetry.Uninstall(second))
			require.Same(t, first, telemetry.Current())
		})
	})

	t.Run("will route package level emission", func(t *testing.T) {
		t.Run("to the installed dispatcher", func(t *testing.T) {
			sink := memory.New()
			d := telemetry.NewDispatcher(sink, telemetry.WithMinLevel(telemetry.LevelDebug))
			require.NoError(t, telemetry.Install(d))
			t.Cleanup(func() { telemetry.Uninstall(d) })

			telemetry.Debugf("frame %d", 1)
			telemetry.Tracef("filtered %d", 2)
			telemetry.EmitIntMetric("kills", "count", 3, nil)
			telemetry.FlushLogs()
			telemetry.FlushMetrics()

			require.EqualValues(t, 1, sink.TotalLogEvents())
			require.Equal(t, "frame 1", sink.Logs()[0].Message)
			require.EqualValues(t, 1, sink.TotalMetricEvents())
			require.True(t, sink.Metrics()[0].Integer)
		})
	})

	t.Run("will do nothing", func(t *testing.T) {
		t.Run("if no dispatcher is installed", func(t *testing.T) {
			require.Nil(t, telemetry.Current())
			require.NotPanics(t, func() {
				telemetry.Infof("nobody listens")
				telemetry.EmitMetric("m", "u", 1, nil)
				telemetry.FlushLogs()
				telemetry.SetMinLevel(telemetry.LevelTrace)
			})
		})
	})
}
