// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/z5labs/telemetry/taskpool"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		tp.Shutdown(context.Background())
	})
	return rec
}

func labelOf(s sdktrace.ReadOnlySpan) string {
	for _, kv := range s.Attributes() {
		if kv.Key == attribute.Key(LabelKey) {
			return kv.Value.AsString()
		}
	}
	return ""
}

func TestApp_Update(t *testing.T) {
	t.Run("will wrap every phase in a schedule span", func(t *testing.T) {
		t.Run("in phase order", func(t *testing.T) {
			t.Cleanup(taskpool.ResetForTesting)
			rec := withRecorder(t)

			app := New(NumThreads(2))
			err := app.Update(context.Background())
			require.NoError(t, err)
			require.EqualValues(t, 1, app.Frame())

			var names []string
			for _, s := range rec.Ended() {
				require.Equal(t, SpanName, s.Name())
				names = append(names, labelOf(s))
			}
			require.Equal(t, []string{"First", "PreUpdate", "Update", "PostUpdate", "Last"}, names)
		})
	})

	t.Run("will run every system", func(t *testing.T) {
		t.Run("once per frame", func(t *testing.T) {
			t.Cleanup(taskpool.ResetForTesting)
			rec := withRecorder(t)

			var movement, physics atomic.Int32
			app := New(NumThreads(2)).
				AddSystems(Update,
					SystemFunc("movement", func(context.Context) error {
						movement.Add(1)
						return nil
					}),
					SystemFunc("physics", func(context.Context) error {
						physics.Add(1)
						return nil
					}),
				)

			err := app.RunFrames(context.Background(), 3)
			require.NoError(t, err)

			require.EqualValues(t, 3, movement.Load())
			require.EqualValues(t, 3, physics.Load())

			systems := 0
			for _, s := range rec.Ended() {
				if s.Name() == "system" {
					systems++
				}
			}
			require.Equal(t, 6, systems)
		})
	})

	t.Run("will return a PhaseError", func(t *testing.T) {
		t.Run("if a system fails", func(t *testing.T) {
			t.Cleanup(taskpool.ResetForTesting)
			withRecorder(t)

			sysErr := errors.New("system failed")
			app := New(NumThreads(1)).
				AddSystems(PostUpdate, SystemFunc("broken", func(context.Context) error {
					return sysErr
				}))

			err := app.Update(context.Background())

			var perr PhaseError
			require.ErrorAs(t, err, &perr)
			require.Equal(t, PostUpdate, perr.Phase)
			require.ErrorIs(t, err, sysErr)
			require.Zero(t, app.Frame())
		})
	})

	t.Run("will stop early", func(t *testing.T) {
		t.Run("if the context is cancelled", func(t *testing.T) {
			t.Cleanup(taskpool.ResetForTesting)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			app := New(NumThreads(1))
			err := app.RunFrames(ctx, 10)
			require.ErrorIs(t, err, context.Canceled)
			require.Zero(t, app.Frame())
		})
	})
}

func TestNew(t *testing.T) {
	t.Run("will reuse the compute pool", func(t *testing.T) {
		t.Run("if it already exists", func(t *testing.T) {
			t.Cleanup(taskpool.ResetForTesting)

			existing := taskpool.GetOrInit(func() *taskpool.Pool {
				return taskpool.NewBuilder().NumThreads(1).Build()
			})

			app := New(NumThreads(8))
			require.Same(t, existing, app.Pool())
		})
	})
}
