// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package telemetrytest_test

import (
	"context"
	"testing"

	"github.com/z5labs/telemetry"
	"github.com/z5labs/telemetry/intern"
	"github.com/z5labs/telemetry/schedule"
	"github.com/z5labs/telemetry/taskpool"
	"github.com/z5labs/telemetry/telemetrytest"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var systemScope = telemetry.NewScope("system_body")

func gameplaySystem(name string) schedule.System {
	props := intern.Props(intern.Property{Key: "system", Value: name})
	return schedule.SystemFunc(name, func(ctx context.Context) error {
		telemetry.EmitLog(telemetry.LevelInfo, name+" ticked", props)
		telemetry.EmitIntMetric("entities", "count", 12, props)
		telemetry.EmitMetric("frame_budget", "ms", 0.4, props)
		telemetry.BeginSpan(ctx, systemScope).End()
		return nil
	})
}

func runGameplay(t *testing.T, h *telemetrytest.Harness) {
	t.Helper()

	app := schedule.New()
	require.Same(t, h.Guard.Pool(), app.Pool())

	app.AddSystems(schedule.Update, gameplaySystem("movement"), gameplaySystem("combat"))
	require.NoError(t, app.RunFrames(h.Ctx, 5))
	h.Flush()
}

func TestWorkerPool(t *testing.T) {
	t.Run("will capture every channel", func(t *testing.T) {
		t.Run("if workers register on spawn", func(t *testing.T) {
			taskpool.ResetForTesting()
			h := telemetrytest.New(t, telemetrytest.WithWorkers(4))
			require.Equal(t, 4, h.Guard.Pool().ThreadNum())

			runGameplay(t, h)

			require.EqualValues(t, 10, h.Sink.TotalLogEvents())
			require.EqualValues(t, 20, h.Sink.TotalMetricEvents())
			require.GreaterOrEqual(t, h.Sink.TotalSpanEvents(), int64(20))

			for _, b := range h.Sink.SpanBlocks() {
				require.NotEmpty(t, b.ThreadName)
			}
		})
	})

	t.Run("will only capture logs and metrics", func(t *testing.T) {
		t.Run("if cpu tracing is disabled", func(t *testing.T) {
			taskpool.ResetForTesting()
			h := telemetrytest.New(t, telemetrytest.WithWorkers(4), telemetrytest.WithoutCPUTracing())

			runGameplay(t, h)

			require.EqualValues(t, 10, h.Sink.TotalLogEvents())
			require.EqualValues(t, 20, h.Sink.TotalMetricEvents())
			require.Zero(t, h.Sink.TotalSpanEvents())
		})
	})
}

func TestBridge(t *testing.T) {
	t.Run("will intern each distinct label once", func(t *testing.T) {
		t.Run("if phase notifications repeat a label", func(t *testing.T) {
			intern.ResetForTesting()
			h := telemetrytest.New(t, telemetrytest.WithBridge())

			labels := []string{"First", "PreUpdate", "Update", "PostUpdate", "Last", "Last"}
			tracer := otel.Tracer("host")
			for _, label := range labels {
				_, span := tracer.Start(h.Ctx, schedule.SpanName, trace.WithAttributes(
					attribute.String(schedule.LabelKey, label),
				))
				span.End()
			}
			h.Flush()

			require.Equal(t, 5, intern.Len())

			spans := h.Sink.Spans()
			require.Len(t, spans, 12)
			for i, label := range labels {
				begin, end := spans[2*i], spans[2*i+1]
				require.Equal(t, telemetry.SpanBegin, begin.Kind)
				require.Equal(t, telemetry.SpanEnd, end.Kind)
				require.Equal(t, label, begin.SpanName())
				require.Equal(t, begin.Name, end.Name)
			}
			require.Equal(t, spans[8].Name, spans[10].Name)
		})
	})

	t.Run("will record host phases", func(t *testing.T) {
		t.Run("if the host runs frames on the hooked pool", func(t *testing.T) {
			taskpool.ResetForTesting()
			h := telemetrytest.New(t, telemetrytest.WithBridge(), telemetrytest.WithWorkers(2))

			app := schedule.New()
			app.AddSystems(schedule.Update, gameplaySystem("ai"))
			require.NoError(t, app.Update(h.Ctx))
			h.Flush()

			var phases []string
			for _, b := range h.Sink.SpanBlocks() {
				if b.ThreadName != "main" {
					continue
				}
				for _, e := range b.Events {
					if e.Kind == telemetry.SpanBegin && e.Scope != nil && e.Scope.Name == schedule.SpanName {
						phases = append(phases, e.SpanName())
					}
				}
			}
			require.Equal(t, []string{"First", "PreUpdate", "Update", "PostUpdate", "Last"}, phases)
		})
	})
}
