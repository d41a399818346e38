// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package bridge

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/z5labs/telemetry"
	"github.com/z5labs/telemetry/intern"
	"github.com/z5labs/telemetry/sink/memory"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestLogHandler_Handle(t *testing.T) {
	t.Run("will record the message", func(t *testing.T) {
		t.Run("with attributes as properties", func(t *testing.T) {
			sink := memory.New()
			d := telemetry.NewDispatcher(sink)
			in := intern.New()

			log := NewLogger(LogDispatcher(d), LogInterner(in)).
				With(slog.String("target", "physics")).
				With(slog.String("world", "main")).
				WithGroup("frame")

			log.Warn("slow step", slog.Int("phase", 2), slog.Group("cost", slog.String("unit", "ms")))
			d.FlushLogs()

			logs := sink.Logs()
			require.Len(t, logs, 1)
			require.Equal(t, "slow step", logs[0].Message)
			require.Equal(t, telemetry.LevelWarn, logs[0].Level)
			require.Equal(t, "physics", logs[0].Target)

			expected := in.Props(
				intern.Property{Key: "world", Value: "main"},
				intern.Property{Key: "frame.phase", Value: "2"},
				intern.Property{Key: "frame.cost.unit", Value: "ms"},
			)
			require.Same(t, expected, logs[0].Properties)
		})

		t.Run("without properties if there are no attributes", func(t *testing.T) {
			sink := memory.New()
			d := telemetry.NewDispatcher(sink)

			NewLogger(LogDispatcher(d)).Info("plain")
			d.FlushLogs()

			logs := sink.Logs()
			require.Len(t, logs, 1)
			require.Nil(t, logs[0].Properties)
		})

		t.Run("with the trace context if enabled", func(t *testing.T) {
			sink := memory.New()
			d := telemetry.NewDispatcher(sink)

			tp := sdktrace.NewTracerProvider()
			t.Cleanup(func() { tp.Shutdown(context.Background()) })

			ctx, span := tp.Tracer("log_test").Start(context.Background(), "request")
			defer span.End()

			in := intern.New()
			NewLogger(LogDispatcher(d), LogInterner(in), IncludeTraceContext(true)).
				InfoContext(ctx, "traced")
			d.FlushLogs()

			logs := sink.Logs()
			require.Len(t, logs, 1)
			require.Equal(t, span.SpanContext().TraceID().String(), logs[0].Trace.TraceID)
			require.Equal(t, span.SpanContext().SpanID().String(), logs[0].Trace.SpanID)
			require.Nil(t, logs[0].Properties)
			require.Zero(t, in.PropertySetLen())
		})
	})

	t.Run("will mask values", func(t *testing.T) {
		t.Run("if a mask is registered for the attribute or message", func(t *testing.T) {
			sink := memory.New()
			d := telemetry.NewDispatcher(sink)
			in := intern.New()

			log := NewLogger(
				LogDispatcher(d),
				LogInterner(in),
				MaskAttr("player_id", AnonymousString),
				MaskMessage(strings.ToLower),
			)
			log.With(slog.Int("player_id", 1234)).Info("Player JOINED", slog.Int("player_id", 98), slog.String("zone", "north"))
			d.FlushLogs()

			logs := sink.Logs()
			require.Len(t, logs, 1)
			require.Equal(t, "player joined", logs[0].Message)
			require.Equal(t, []intern.Property{
				{Key: "player_id", Value: "****"},
				{Key: "zone", Value: "north"},
			}, logs[0].Properties.All())
		})
	})

	t.Run("will drop the record", func(t *testing.T) {
		t.Run("if the level is below the dispatcher minimum", func(t *testing.T) {
			sink := memory.New()
			d := telemetry.NewDispatcher(sink, telemetry.WithMinLevel(telemetry.LevelWarn))

			log := NewLogger(LogDispatcher(d))
			require.False(t, log.Enabled(context.Background(), slog.LevelInfo))

			log.Info("dropped")
			log.Error("kept")
			d.FlushLogs()

			require.EqualValues(t, 1, sink.TotalLogEvents())
		})

		t.Run("if no dispatcher is installed", func(t *testing.T) {
			require.NotPanics(t, func() {
				NewLogger().Error("nobody listens")
			})
		})
	})
}
