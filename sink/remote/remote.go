// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package remote provides a [telemetry.Sink] which ships every flushed block
// to an HTTP collector.
//
// Blocks are encoded on the flushing goroutine and handed to a single
// shipper goroutine through a bounded queue. When the queue is full, or the
// collector keeps failing, blocks are dropped and counted. The sink never
// blocks the instrumented program on the network.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/z5labs/telemetry"
	"github.com/z5labs/telemetry/internal/httpclient"

	"go.uber.org/zap"
)

// ErrClosed is returned by [Sink.Shutdown] when called more than once.
var ErrClosed = errors.New("remote: sink already shut down")

// RequestError is reported for a block the collector did not accept.
type RequestError struct {
	Endpoint string
	Cause    error
}

// Error implements the [builtin.error] interface.
func (e RequestError) Error() string {
	return fmt.Sprintf("remote: failed to ship block to %s: %s", e.Endpoint, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e RequestError) Unwrap() error {
	return e.Cause
}

type options struct {
	logger    *zap.Logger
	client    *http.Client
	timeout   time.Duration
	retryMax  int
	queueSize int
	onFailure func(error)
	headers   http.Header
}

// Option configures a [Sink].
type Option func(*options)

// Logger sets the logger used for delivery diagnostics.
func Logger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Client overrides the http client. Timeout and RetryMax are ignored
// when set.
func Client(c *http.Client) Option {
	return func(o *options) {
		o.client = c
	}
}

// Timeout bounds a single request attempt.
func Timeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// RetryMax sets how many times a failed request is retried.
func RetryMax(n int) Option {
	return func(o *options) {
		o.retryMax = n
	}
}

// QueueSize sets how many encoded blocks may wait for the shipper.
func QueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// OnFailure registers a callback for every block which could not be shipped.
// It runs on the shipper goroutine.
func OnFailure(f func(error)) Option {
	return func(o *options) {
		o.onFailure = f
	}
}

// Header adds a header to every request.
func Header(key, value string) Option {
	return func(o *options) {
		o.headers.Add(key, value)
	}
}

// Sink ships blocks to a collector. Safe for concurrent use.
type Sink struct {
	endpoint  string
	log       *zap.Logger
	client    *http.Client
	codec     *Codec
	headers   http.Header
	onFailure func(error)

	queue    chan []byte
	done     chan struct{}
	stop     chan struct{}
	closing  sync.RWMutex
	closed   bool
	stopOnce sync.Once

	shipped atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// New returns a Sink posting to endpoint and starts its shipper.
func New(endpoint string, opts ...Option) (*Sink, error) {
	o := &options{
		logger:    zap.NewNop(),
		timeout:   10 * time.Second,
		retryMax:  2,
		queueSize: 256,
		headers:   http.Header{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if endpoint == "" {
		return nil, errors.New("remote: endpoint must not be empty")
	}

	codec, err := NewCodec()
	if err != nil {
		return nil, err
	}

	client := o.client
	if client == nil {
		client = httpclient.New(
			httpclient.Timeout(o.timeout),
			httpclient.Transport(httpclient.RoundTripperWith(
				http.DefaultTransport,
				httpclient.CircuitBreaker(
					httpclient.CircuitName(endpoint),
					httpclient.CircuitLogger(o.logger),
				),
			)),
			httpclient.RetryRequests(
				httpclient.MaxRetries(o.retryMax),
				httpclient.RetryAttemptLogger(o.logger),
			),
		)
	}

	s := &Sink{
		endpoint:  endpoint,
		log:       o.logger,
		client:    client,
		codec:     codec,
		headers:   o.headers,
		onFailure: o.onFailure,
		queue:     make(chan []byte, o.queueSize),
		done:      make(chan struct{}),
		stop:      make(chan struct{}),
	}
	go s.ship()
	return s, nil
}

// Shipped returns the number of blocks the collector accepted.
func (s *Sink) Shipped() int64 { return s.shipped.Load() }

// Dropped returns the number of blocks discarded because the queue was full
// or the sink was shut down.
func (s *Sink) Dropped() int64 { return s.dropped.Load() }

// Failed returns the number of blocks the collector rejected or never saw.
func (s *Sink) Failed() int64 { return s.failed.Load() }

// ProcessLogBlock implements the [telemetry.Sink] interface.
func (s *Sink) ProcessLogBlock(b telemetry.LogBlock) {
	s.enqueue(logEnvelope(b))
}

// ProcessMetricBlock implements the [telemetry.Sink] interface.
func (s *Sink) ProcessMetricBlock(b telemetry.MetricBlock) {
	s.enqueue(metricEnvelope(b))
}

// ProcessSpanBlock implements the [telemetry.Sink] interface.
func (s *Sink) ProcessSpanBlock(b telemetry.SpanBlock) {
	s.enqueue(spanEnvelope(b))
}

func (s *Sink) enqueue(env Envelope) {
	body, err := s.codec.Encode(env)
	if err != nil {
		s.log.Error("failed to encode block", zap.String("kind", env.Kind), zap.Error(err))
		s.dropped.Add(1)
		return
	}

	s.closing.RLock()
	defer s.closing.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.queue <- body:
	default:
		s.dropped.Add(1)
		s.log.Warn("remote queue full, dropping block", zap.String("kind", env.Kind))
	}
}

func (s *Sink) ship() {
	defer close(s.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for body := range s.queue {
		if ctx.Err() != nil {
			s.dropped.Add(1)
			continue
		}
		err := s.post(ctx, body)
		if err == nil {
			s.shipped.Add(1)
			continue
		}
		s.failed.Add(1)
		s.log.Warn("failed to ship block", zap.String("endpoint", s.endpoint), zap.Error(err))
		if s.onFailure != nil {
			s.onFailure(err)
		}
	}
}

func (s *Sink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return RequestError{Endpoint: s.endpoint, Cause: err}
	}
	for k, vs := range s.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set("Content-Encoding", ContentEncoding)

	resp, err := s.client.Do(req)
	if err != nil {
		return RequestError{Endpoint: s.endpoint, Cause: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return RequestError{
			Endpoint: s.endpoint,
			Cause:    httpclient.StatusCodeError{StatusCode: resp.StatusCode},
		}
	}
	return nil
}

// Shutdown stops accepting blocks and waits for the queued ones to be
// shipped. If ctx is done first, the remaining blocks are dropped.
func (s *Sink) Shutdown(ctx context.Context) error {
	s.closing.Lock()
	if s.closed {
		s.closing.Unlock()
		return ErrClosed
	}
	s.closed = true
	close(s.queue)
	s.closing.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		s.stopOnce.Do(func() { close(s.stop) })
		<-s.done
		return ctx.Err()
	}
}
