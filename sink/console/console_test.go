// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package console

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/z5labs/telemetry"
	"github.com/z5labs/telemetry/intern"

	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	var lines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		lines = append(lines, m)
	}
	return lines
}

func TestSink(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("will print trace ids", func(t *testing.T) {
		t.Run("if the log event carries a trace context", func(t *testing.T) {
			var buf bytes.Buffer
			s, err := New(&buf, WithFormat(FormatJSON))
			require.NoError(t, err)

			s.ProcessLogBlock(telemetry.LogBlock{
				Events: []telemetry.LogEvent{
					{Time: now, Level: telemetry.LevelInfo, Message: "traced", Trace: telemetry.TraceContext{TraceID: "abc", SpanID: "def"}},
					{Time: now, Level: telemetry.LevelInfo, Message: "plain"},
				},
			})
			require.NoError(t, s.Sync())

			lines := decodeLines(t, &buf)
			require.Len(t, lines, 2)
			require.Equal(t, "abc", lines[0]["trace_id"])
			require.Equal(t, "def", lines[0]["span_id"])
			require.NotContains(t, lines[1], "trace_id")
		})
	})

	t.Run("will print one line per event", func(t *testing.T) {
		t.Run("if the format is json", func(t *testing.T) {
			var buf bytes.Buffer
			s, err := New(&buf, WithFormat(FormatJSON))
			require.NoError(t, err)

			s.ProcessLogBlock(telemetry.LogBlock{
				ProcessID: "proc",
				Events: []telemetry.LogEvent{{
					Time:       now,
					Level:      telemetry.LevelWarn,
					Target:     "physics",
					Message:    "slow frame",
					Properties: intern.Props(intern.Property{Key: "frame", Value: "7"}),
				}},
			})
			s.ProcessMetricBlock(telemetry.MetricBlock{
				ProcessID: "proc",
				Events: []telemetry.MetricEvent{{
					Time:    now,
					Name:    "entities",
					Unit:    "count",
					Value:   42,
					Integer: true,
				}},
			})
			scope := telemetry.NewScope("update")
			s.ProcessSpanBlock(telemetry.SpanBlock{
				ProcessID:  "proc",
				ThreadID:   3,
				ThreadName: "worker-3",
				Events: []telemetry.SpanEvent{
					{Kind: telemetry.SpanBegin, Scope: scope, Time: now},
					{Kind: telemetry.SpanEnd, Scope: scope, Time: now},
				},
			})
			require.NoError(t, s.Sync())

			lines := decodeLines(t, &buf)
			require.Len(t, lines, 4)

			log := lines[0]
			require.Equal(t, "warn", log["level"])
			require.Equal(t, "physics", log["logger"])
			require.Equal(t, "slow frame", log["msg"])
			require.Equal(t, "7", log["frame"])
			require.Equal(t, "proc", log["process_id"])
			require.Equal(t, now.Format(time.RFC3339Nano), log["ts"])

			metric := lines[1]
			require.Equal(t, "metric", metric["logger"])
			require.Equal(t, "entities", metric["msg"])
			require.Equal(t, float64(42), metric["value"])

			begin, end := lines[2], lines[3]
			require.Equal(t, "begin", begin["kind"])
			require.Equal(t, "end", end["kind"])
			require.Equal(t, "update", end["msg"])
			require.Equal(t, "worker-3", end["thread_name"])
		})

		t.Run("if the format is console", func(t *testing.T) {
			var buf bytes.Buffer
			s, err := New(&buf)
			require.NoError(t, err)

			s.ProcessLogBlock(telemetry.LogBlock{
				Events: []telemetry.LogEvent{{Time: now, Level: telemetry.LevelError, Message: "disk full"}},
			})

			out := buf.String()
			require.Contains(t, out, "ERROR")
			require.Contains(t, out, "disk full")
		})
	})

	t.Run("will skip events", func(t *testing.T) {
		t.Run("if spans and metrics are disabled", func(t *testing.T) {
			var buf bytes.Buffer
			s, err := New(&buf, WithFormat(FormatJSON), PrintSpans(false), PrintMetrics(false))
			require.NoError(t, err)

			s.ProcessMetricBlock(telemetry.MetricBlock{Events: make([]telemetry.MetricEvent, 2)})
			s.ProcessSpanBlock(telemetry.SpanBlock{Events: make([]telemetry.SpanEvent, 2)})

			require.Zero(t, buf.Len())
		})
	})

	t.Run("will return UnknownFormatError", func(t *testing.T) {
		t.Run("if the format is not supported", func(t *testing.T) {
			_, err := New(nil, WithFormat("xml"))

			var fmtErr UnknownFormatError
			require.ErrorAs(t, err, &fmtErr)
			require.Equal(t, Format("xml"), fmtErr.Format)
		})
	})
}

func TestZapLevel(t *testing.T) {
	testCases := []struct {
		Name  string
		Level telemetry.Level
		Want  string
	}{
		{Name: "trace folds into debug", Level: telemetry.LevelTrace, Want: "debug"},
		{Name: "debug", Level: telemetry.LevelDebug, Want: "debug"},
		{Name: "info", Level: telemetry.LevelInfo, Want: "info"},
		{Name: "warn", Level: telemetry.LevelWarn, Want: "warn"},
		{Name: "error", Level: telemetry.LevelError, Want: "error"},
		{Name: "fatal", Level: telemetry.LevelFatal, Want: "fatal"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.Name, func(t *testing.T) {
			require.Equal(t, testCase.Want, zapLevel(testCase.Level).String())
		})
	}
}
