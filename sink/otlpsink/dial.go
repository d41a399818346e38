// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package otlpsink

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// DialError is returned when the collector connection could not be set up.
type DialError struct {
	Target string
	Cause  error
}

// Error implements the [builtin.error] interface.
func (e DialError) Error() string {
	return fmt.Sprintf("otlpsink: failed to dial %s: %s", e.Target, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e DialError) Unwrap() error {
	return e.Cause
}

// Dial connects to an OTLP/gRPC collector at target and returns a Sink
// exporting to it. The connection is closed by [Sink.Shutdown].
//
// Dial blocks until the connection is up or timeout expires.
func Dial(ctx context.Context, target string, timeout time.Duration, opts ...Option) (*Sink, error) {
	if timeout <= 0 {
		timeout = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := grpc.DialContext(
		ctx,
		target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, DialError{Target: target, Cause: err}
	}

	exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		conn.Close()
		return nil, DialError{Target: target, Cause: err}
	}

	opts = append(opts, func(o *options) {
		o.closers = append(o.closers, conn.Close)
	})
	return New(exp, opts...), nil
}

// Stdout returns a Sink writing every span as JSON to w, or to os.Stdout
// when w is nil.
func Stdout(w io.Writer, opts ...Option) (*Sink, error) {
	if w == nil {
		w = os.Stdout
	}
	exp, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
	)
	if err != nil {
		return nil, err
	}
	return New(exp, opts...), nil
}
