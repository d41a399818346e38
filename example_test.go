// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package telemetry_test

import (
	"context"
	"fmt"

	"github.com/z5labs/telemetry"
	"github.com/z5labs/telemetry/intern"
	"github.com/z5labs/telemetry/sink/memory"
)

func Example() {
	sink := memory.New()
	d := telemetry.NewDispatcher(sink, telemetry.WithCPUTracing(true))
	if err := telemetry.Install(d); err != nil {
		fmt.Println(err)
		return
	}
	defer telemetry.Uninstall(d)

	ctx := telemetry.RegisterThread(context.Background())
	defer telemetry.UnregisterThread(ctx)

	span := telemetry.BeginSpan(ctx, telemetry.NewScope("frame"))
	telemetry.Infof("rendering frame %d", 1)
	telemetry.EmitIntMetric("entities", "count", 42, intern.Props(intern.Property{Key: "world", Value: "main"}))
	span.End()

	telemetry.FlushThread(ctx)
	telemetry.FlushLogs()
	telemetry.FlushMetrics()

	fmt.Println(sink.TotalLogEvents(), sink.TotalMetricEvents(), sink.TotalSpanEvents())
	// Output: 1 1 2
}

func ExampleStream_BeginNamed() {
	sink := memory.New()
	d := telemetry.NewDispatcher(sink, telemetry.WithCPUTracing(true))

	ctx := d.RegisterThread(context.Background())
	s := telemetry.StreamFromContext(ctx)

	scope := telemetry.NewScope("system")
	s.BeginNamed(scope, intern.Intern("movement")).End()
	s.Flush()

	for _, e := range sink.Spans() {
		fmt.Println(e.Kind, e.SpanName())
	}
	// Output:
	// begin movement
	// end movement
}
