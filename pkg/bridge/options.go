package bridge

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/telemetrybridge/internal/telemetry"
)

// Option configures Install.
type Option func(*options)

type options struct {
	configFile string
	config     *Config
	settings   []telemetry.SettingsOption
	telemetry  []telemetry.Option
	cores      []zapcore.Core
	logWriter  io.Writer
	registerer prometheus.Registerer
}

// WithConfigFile loads configuration from a YAML file. Environment
// variables still apply on top.
func WithConfigFile(path string) Option {
	return func(o *options) {
		o.configFile = path
	}
}

// WithConfig uses cfg as is, skipping file and environment loading.
func WithConfig(cfg *Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithServiceVersion overrides the version detected from build info.
func WithServiceVersion(version string) Option {
	return func(o *options) {
		o.settings = append(o.settings, telemetry.WithServiceVersion(version))
	}
}

// WithCapturePrefix sets the log category prefix mirrored onto spans.
// It defaults to the service name.
func WithCapturePrefix(prefix string) Option {
	return func(o *options) {
		o.settings = append(o.settings, telemetry.WithCapturePrefix(prefix))
	}
}

// WithInstanceID overrides the detected service instance id.
func WithInstanceID(id string) Option {
	return func(o *options) {
		o.settings = append(o.settings, telemetry.WithInstanceID(id))
	}
}

// WithSpanExporter adds a synchronous span exporter next to the configured
// pipeline.
func WithSpanExporter(exp sdktrace.SpanExporter) Option {
	return WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exp))
}

// WithSpanProcessor adds a span processor next to the configured pipeline.
func WithSpanProcessor(sp sdktrace.SpanProcessor) Option {
	return func(o *options) {
		o.telemetry = append(o.telemetry, telemetry.WithSpanProcessor(sp))
	}
}

// WithMetricReader adds a metric reader next to the configured pipeline.
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(o *options) {
		o.telemetry = append(o.telemetry, telemetry.WithMetricReader(r))
	}
}

// WithLogExporter adds a synchronous log exporter next to the configured
// pipeline.
func WithLogExporter(exp sdklog.Exporter) Option {
	return func(o *options) {
		o.telemetry = append(o.telemetry, telemetry.WithLogProcessor(sdklog.NewSimpleProcessor(exp)))
	}
}

// WithStdoutWriter redirects the stdout exporters.
func WithStdoutWriter(w io.Writer) Option {
	return func(o *options) {
		o.telemetry = append(o.telemetry, telemetry.WithStdoutWriter(w))
	}
}

// WithZapCore tees an additional core into the logger.
func WithZapCore(core zapcore.Core) Option {
	return func(o *options) {
		o.cores = append(o.cores, core)
	}
}

// WithLogWriter redirects the stdout log sink.
func WithLogWriter(w io.Writer) Option {
	return func(o *options) {
		o.logWriter = w
	}
}

// WithRegisterer registers the bridge self-metrics on reg instead of a
// private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}
