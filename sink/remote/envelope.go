// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package remote

import (
	"fmt"

	"github.com/z5labs/telemetry"
	"github.com/z5labs/telemetry/intern"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// Media types of a request body.
const (
	ContentType     = "application/cbor"
	ContentEncoding = "zstd"
)

// Envelope is the body of a single POST. It carries exactly one block.
type Envelope struct {
	Kind       string   `cbor:"kind"`
	ProcessID  string   `cbor:"process_id"`
	ThreadID   uint64   `cbor:"thread_id,omitempty"`
	ThreadName string   `cbor:"thread_name,omitempty"`
	Logs       []Log    `cbor:"logs,omitempty"`
	Metrics    []Metric `cbor:"metrics,omitempty"`
	Spans      []Span   `cbor:"spans,omitempty"`
}

// Log is the wire form of [telemetry.LogEvent]. Times are unix nanoseconds.
type Log struct {
	Time       int64             `cbor:"time"`
	Level      string            `cbor:"level"`
	Target     string            `cbor:"target,omitempty"`
	Message    string            `cbor:"message"`
	Properties map[string]string `cbor:"properties,omitempty"`
	TraceID    string            `cbor:"trace_id,omitempty"`
	SpanID     string            `cbor:"span_id,omitempty"`
}

// Metric is the wire form of [telemetry.MetricEvent].
type Metric struct {
	Time       int64             `cbor:"time"`
	Name       string            `cbor:"name"`
	Unit       string            `cbor:"unit"`
	Value      float64           `cbor:"value"`
	Integer    bool              `cbor:"integer,omitempty"`
	Properties map[string]string `cbor:"properties,omitempty"`
}

// Span is the wire form of [telemetry.SpanEvent].
type Span struct {
	Kind     string `cbor:"kind"`
	Name     string `cbor:"name"`
	File     string `cbor:"file,omitempty"`
	Line     int    `cbor:"line,omitempty"`
	Time     int64  `cbor:"time"`
	Depth    uint32 `cbor:"depth"`
	SpanID   uint64 `cbor:"span_id,omitempty"`
	ParentID uint64 `cbor:"parent_id,omitempty"`
}

// Codec encodes envelopes as deterministic CBOR compressed with zstd.
// It is safe for concurrent use.
type Codec struct {
	enc  cbor.EncMode
	zenc *zstd.Encoder
	zdec *zstd.Decoder
}

// NewCodec returns a Codec.
func NewCodec() (*Codec, error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	zenc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	zdec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Codec{enc: enc, zenc: zenc, zdec: zdec}, nil
}

// Encode returns the request body for env.
func (c *Codec) Encode(env Envelope) ([]byte, error) {
	b, err := c.enc.Marshal(env)
	if err != nil {
		return nil, err
	}
	return c.zenc.EncodeAll(b, nil), nil
}

// Decode parses a request body produced by [Codec.Encode].
func (c *Codec) Decode(body []byte) (Envelope, error) {
	var env Envelope
	b, err := c.zdec.DecodeAll(body, nil)
	if err != nil {
		return env, fmt.Errorf("remote: invalid zstd frame: %w", err)
	}
	err = cbor.Unmarshal(b, &env)
	if err != nil {
		return env, fmt.Errorf("remote: invalid cbor envelope: %w", err)
	}
	return env, nil
}

func properties(ps *intern.PropertySet) map[string]string {
	if ps.Len() == 0 {
		return nil
	}
	m := make(map[string]string, ps.Len())
	for _, p := range ps.All() {
		m[p.Key] = p.Value
	}
	return m
}

func logEnvelope(b telemetry.LogBlock) Envelope {
	logs := make([]Log, len(b.Events))
	for i, e := range b.Events {
		logs[i] = Log{
			Time:       e.Time.UnixNano(),
			Level:      e.Level.String(),
			Target:     e.Target,
			Message:    e.Message,
			Properties: properties(e.Properties),
			TraceID:    e.Trace.TraceID,
			SpanID:     e.Trace.SpanID,
		}
	}
	return Envelope{Kind: "log", ProcessID: b.ProcessID, Logs: logs}
}

func metricEnvelope(b telemetry.MetricBlock) Envelope {
	metrics := make([]Metric, len(b.Events))
	for i, e := range b.Events {
		metrics[i] = Metric{
			Time:       e.Time.UnixNano(),
			Name:       e.Name,
			Unit:       e.Unit,
			Value:      e.Value,
			Integer:    e.Integer,
			Properties: properties(e.Properties),
		}
	}
	return Envelope{Kind: "metric", ProcessID: b.ProcessID, Metrics: metrics}
}

func spanEnvelope(b telemetry.SpanBlock) Envelope {
	spans := make([]Span, len(b.Events))
	for i, e := range b.Events {
		s := Span{
			Kind:     e.Kind.String(),
			Name:     e.SpanName(),
			Time:     e.Time.UnixNano(),
			Depth:    e.Depth,
			SpanID:   e.SpanID,
			ParentID: e.ParentID,
		}
		if e.Scope != nil {
			s.File = e.Scope.File
			s.Line = e.Scope.Line
		}
		spans[i] = s
	}
	return Envelope{
		Kind:       "span",
		ProcessID:  b.ProcessID,
		ThreadID:   b.ThreadID,
		ThreadName: b.ThreadName,
		Spans:      spans,
	}
}
