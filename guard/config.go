// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package guard

import (
	"time"

	"github.com/z5labs/telemetry"
	"github.com/z5labs/telemetry/bridge"
	"github.com/z5labs/telemetry/sink/console"
)

// Protocol selects how the remote sink ships events.
type Protocol string

const (
	ProtocolNone   Protocol = ""
	ProtocolHTTP   Protocol = "http"
	ProtocolOTLP   Protocol = "otlp"
	ProtocolStdout Protocol = "stdout"
)

// ConsoleConfig configures the console sink.
type ConsoleConfig struct {
	Enabled bool           `config:"enabled"`
	Format  console.Format `config:"format"`
	Spans   bool           `config:"spans"`
	Metrics bool           `config:"metrics"`
}

// RemoteConfig configures the optional remote sink.
type RemoteConfig struct {
	Endpoint  string        `config:"endpoint"`
	Protocol  Protocol      `config:"protocol"`
	Timeout   time.Duration `config:"timeout"`
	RetryMax  int           `config:"retry_max"`
	QueueSize int           `config:"queue_size"`
}

// PrometheusConfig configures the Prometheus sink.
type PrometheusConfig struct {
	Enabled             bool   `config:"enabled"`
	Namespace           string `config:"namespace"`
	MaxLabelCardinality int    `config:"max_label_cardinality"`
}

// BridgeConfig configures the ambient instrumentation bridge.
type BridgeConfig struct {
	Install  bool   `config:"install"`
	Target   string `config:"target"`
	LabelKey string `config:"label_key"`

	// LogTraceContext attaches OpenTelemetry trace and span ids to records
	// logged through [Guard.Logger].
	LogTraceContext bool `config:"log_trace_context"`
}

// BufferConfig sets channel capacities in events.
type BufferConfig struct {
	Log    int `config:"log"`
	Metric int `config:"metric"`
	Span   int `config:"span"`
}

// WorkerConfig configures the compute pool hooks.
type WorkerConfig struct {
	Install    bool `config:"install"`
	NumThreads int  `config:"num_threads"`
}

// Config is everything needed to build a [Guard].
type Config struct {
	ServiceName      string          `config:"service_name"`
	MinLevel         telemetry.Level `config:"min_level"`
	EnableCPUTracing bool            `config:"enable_cpu_tracing"`

	Console    ConsoleConfig    `config:"console"`
	Remote     RemoteConfig     `config:"remote"`
	Prometheus PrometheusConfig `config:"prometheus"`
	Bridge     BridgeConfig     `config:"bridge"`
	Buffers    BufferConfig     `config:"buffers"`
	Workers    WorkerConfig     `config:"workers"`
}

// DefaultConfig returns the configuration used for any value a source
// leaves unset.
func DefaultConfig() Config {
	return Config{
		ServiceName:      "telemetry",
		MinLevel:         telemetry.LevelInfo,
		EnableCPUTracing: true,
		Console: ConsoleConfig{
			Format:  console.FormatConsole,
			Metrics: true,
		},
		Remote: RemoteConfig{
			Timeout:   10 * time.Second,
			RetryMax:  2,
			QueueSize: 256,
		},
		Prometheus: PrometheusConfig{
			Namespace:           "telemetry",
			MaxLabelCardinality: 1000,
		},
		Bridge: BridgeConfig{
			Target:   bridge.DefaultTarget,
			LabelKey: bridge.DefaultLabelKey,
		},
		Buffers: BufferConfig{
			Log:    telemetry.DefaultLogBufferSize,
			Metric: telemetry.DefaultMetricBufferSize,
			Span:   telemetry.DefaultSpanBufferSize,
		},
	}
}

// Validate reports the first invalid field.
func (cfg Config) Validate() error {
	switch cfg.Console.Format {
	case console.FormatConsole, console.FormatJSON:
	default:
		return InvalidConfigError{Field: "console.format", Reason: "must be console or json"}
	}

	switch cfg.Remote.Protocol {
	case ProtocolNone, ProtocolStdout:
	case ProtocolHTTP, ProtocolOTLP:
		if cfg.Remote.Endpoint == "" {
			return InvalidConfigError{Field: "remote.endpoint", Reason: "required when remote.protocol is " + string(cfg.Remote.Protocol)}
		}
	default:
		return InvalidConfigError{Field: "remote.protocol", Reason: "must be http, otlp or stdout"}
	}
	if cfg.Remote.Timeout < 0 {
		return InvalidConfigError{Field: "remote.timeout", Reason: "must not be negative"}
	}
	if cfg.Remote.RetryMax < 0 {
		return InvalidConfigError{Field: "remote.retry_max", Reason: "must not be negative"}
	}

	if cfg.Buffers.Log < 0 || cfg.Buffers.Metric < 0 || cfg.Buffers.Span < 0 {
		return InvalidConfigError{Field: "buffers", Reason: "capacities must not be negative"}
	}
	if cfg.Bridge.Install && cfg.Bridge.Target == "" {
		return InvalidConfigError{Field: "bridge.target", Reason: "required when bridge.install is set"}
	}
	if cfg.Workers.NumThreads < 0 {
		return InvalidConfigError{Field: "workers.num_threads", Reason: "must not be negative"}
	}
	return nil
}
