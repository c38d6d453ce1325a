package telemetry

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc/credentials"

	"github.com/fyrsmithlabs/telemetrybridge/internal/endpoint"
)

// Option configures pipeline construction.
type Option func(*options)

type options struct {
	resolver       endpoint.Resolver
	stdout         io.Writer
	spanProcessors []trace.SpanProcessor
	metricReaders  []metric.Reader
	logProcessors  []sdklog.Processor
}

// WithResolver overrides the environment used for endpoint resolution.
func WithResolver(r endpoint.Resolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

// WithStdoutWriter redirects the stdout exporters.
func WithStdoutWriter(w io.Writer) Option {
	return func(o *options) {
		o.stdout = w
	}
}

// WithSpanProcessor registers an additional span processor (for testing).
func WithSpanProcessor(sp trace.SpanProcessor) Option {
	return func(o *options) {
		o.spanProcessors = append(o.spanProcessors, sp)
	}
}

// WithMetricReader registers an additional metric reader (for testing).
func WithMetricReader(r metric.Reader) Option {
	return func(o *options) {
		o.metricReaders = append(o.metricReaders, r)
	}
}

// WithLogProcessor registers an additional log processor (for testing).
func WithLogProcessor(p sdklog.Processor) Option {
	return func(o *options) {
		o.logProcessors = append(o.logProcessors, p)
	}
}

// newResource creates a resource describing the service instance.
func newResource(s Settings) *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(s.ServiceName()),
		semconv.ServiceVersion(s.ServiceVersion()),
		semconv.ServiceInstanceID(s.InstanceID()),
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		attrs = append(attrs, semconv.HostName(host))
	}

	// Standalone resource avoids schema URL conflicts with resource.Default().
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

// newSampler maps the configured rate onto a parent-based sampler.
func newSampler(rate float64) trace.Sampler {
	var sampler trace.Sampler
	switch {
	case rate >= 1.0:
		sampler = trace.AlwaysSample()
	case rate <= 0:
		sampler = trace.NeverSample()
	default:
		sampler = trace.TraceIDRatioBased(rate)
	}
	return trace.ParentBased(sampler)
}

// newTracerProvider creates a TracerProvider exporting to the resolved
// traces endpoint.
func newTracerProvider(ctx context.Context, cfg *Config, res *resource.Resource, o *options) (*trace.TracerProvider, error) {
	tpOpts := []trace.TracerProviderOption{
		trace.WithResource(res),
		trace.WithSampler(newSampler(cfg.Sampling.Rate)),
	}

	if cfg.Exporter != ExporterNone {
		exporter, err := newSpanExporter(ctx, cfg, o)
		if err != nil {
			return nil, fmt.Errorf("creating trace exporter: %w", err)
		}
		tpOpts = append(tpOpts, trace.WithBatcher(exporter))
	}

	for _, sp := range o.spanProcessors {
		tpOpts = append(tpOpts, trace.WithSpanProcessor(sp))
	}

	return trace.NewTracerProvider(tpOpts...), nil
}

func newSpanExporter(ctx context.Context, cfg *Config, o *options) (trace.SpanExporter, error) {
	if cfg.Exporter == ExporterStdout {
		return stdouttrace.New(stdouttrace.WithWriter(o.stdoutWriter()))
	}

	ep := o.resolver.Resolve(endpoint.SignalTraces)
	tlsCfg := cfg.tlsConfig(ep)

	switch ep.EffectiveProtocol() {
	case endpoint.ProtocolHTTPProtobuf:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(ep.String())}
		if h := cfg.headers(); h != nil {
			opts = append(opts, otlptracehttp.WithHeaders(h))
		}
		if tlsCfg != nil {
			opts = append(opts, otlptracehttp.WithTLSClientConfig(tlsCfg))
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpointURL(ep.String())}
		if h := cfg.headers(); h != nil {
			opts = append(opts, otlptracegrpc.WithHeaders(h))
		}
		if tlsCfg != nil {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(tlsCfg)))
		}
		return otlptracegrpc.New(ctx, opts...)
	}
}

// newMeterProvider creates a MeterProvider exporting to the resolved
// metrics endpoint.
func newMeterProvider(ctx context.Context, cfg *Config, res *resource.Resource, o *options) (*metric.MeterProvider, error) {
	mpOpts := []metric.Option{metric.WithResource(res)}

	if cfg.Metrics.Enabled && cfg.Exporter != ExporterNone {
		exporter, err := newMetricExporter(ctx, cfg, o)
		if err != nil {
			return nil, fmt.Errorf("creating metric exporter: %w", err)
		}
		mpOpts = append(mpOpts, metric.WithReader(
			metric.NewPeriodicReader(
				exporter,
				metric.WithInterval(cfg.Metrics.ExportInterval.Duration()),
			),
		))
	}

	for _, r := range o.metricReaders {
		mpOpts = append(mpOpts, metric.WithReader(r))
	}

	return metric.NewMeterProvider(mpOpts...), nil
}

func newMetricExporter(ctx context.Context, cfg *Config, o *options) (metric.Exporter, error) {
	if cfg.Exporter == ExporterStdout {
		return stdoutmetric.New(stdoutmetric.WithWriter(o.stdoutWriter()))
	}

	// Cumulative temporality keeps Prometheus-compatible backends happy and
	// overrides OTEL_EXPORTER_OTLP_METRICS_TEMPORALITY_PREFERENCE.
	cumulativeSelector := func(metric.InstrumentKind) metricdata.Temporality {
		return metricdata.CumulativeTemporality
	}

	ep := o.resolver.Resolve(endpoint.SignalMetrics)
	tlsCfg := cfg.tlsConfig(ep)

	switch ep.EffectiveProtocol() {
	case endpoint.ProtocolHTTPProtobuf:
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpointURL(ep.String()),
			otlpmetrichttp.WithTemporalitySelector(cumulativeSelector),
		}
		if h := cfg.headers(); h != nil {
			opts = append(opts, otlpmetrichttp.WithHeaders(h))
		}
		if tlsCfg != nil {
			opts = append(opts, otlpmetrichttp.WithTLSClientConfig(tlsCfg))
		}
		return otlpmetrichttp.New(ctx, opts...)
	default:
		opts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpointURL(ep.String()),
			otlpmetricgrpc.WithTemporalitySelector(cumulativeSelector),
		}
		if h := cfg.headers(); h != nil {
			opts = append(opts, otlpmetricgrpc.WithHeaders(h))
		}
		if tlsCfg != nil {
			opts = append(opts, otlpmetricgrpc.WithTLSCredentials(credentials.NewTLS(tlsCfg)))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	}
}

// newLoggerProvider creates a LoggerProvider exporting to the resolved logs
// endpoint. It feeds the otelzap bridge core.
func newLoggerProvider(ctx context.Context, cfg *Config, res *resource.Resource, o *options) (*sdklog.LoggerProvider, error) {
	lpOpts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}

	if cfg.Logs.Enabled && cfg.Exporter != ExporterNone {
		exporter, err := newLogExporter(ctx, cfg, o)
		if err != nil {
			return nil, fmt.Errorf("creating log exporter: %w", err)
		}
		lpOpts = append(lpOpts, sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)))
	}

	for _, p := range o.logProcessors {
		lpOpts = append(lpOpts, sdklog.WithProcessor(p))
	}

	return sdklog.NewLoggerProvider(lpOpts...), nil
}

func newLogExporter(ctx context.Context, cfg *Config, o *options) (sdklog.Exporter, error) {
	if cfg.Exporter == ExporterStdout {
		return stdoutlog.New(stdoutlog.WithWriter(o.stdoutWriter()))
	}

	ep := o.resolver.Resolve(endpoint.SignalLogs)
	tlsCfg := cfg.tlsConfig(ep)

	switch ep.EffectiveProtocol() {
	case endpoint.ProtocolHTTPProtobuf:
		opts := []otlploghttp.Option{otlploghttp.WithEndpointURL(ep.String())}
		if h := cfg.headers(); h != nil {
			opts = append(opts, otlploghttp.WithHeaders(h))
		}
		if tlsCfg != nil {
			opts = append(opts, otlploghttp.WithTLSClientConfig(tlsCfg))
		}
		return otlploghttp.New(ctx, opts...)
	default:
		opts := []otlploggrpc.Option{otlploggrpc.WithEndpointURL(ep.String())}
		if h := cfg.headers(); h != nil {
			opts = append(opts, otlploggrpc.WithHeaders(h))
		}
		if tlsCfg != nil {
			opts = append(opts, otlploggrpc.WithTLSCredentials(credentials.NewTLS(tlsCfg)))
		}
		return otlploggrpc.New(ctx, opts...)
	}
}

// tlsConfig returns a verification-skipping TLS config for https endpoints
// when requested, nil otherwise.
func (c *Config) tlsConfig(ep endpoint.Endpoint) *tls.Config {
	if !c.TLSSkipVerify || ep.URL == nil || ep.URL.Scheme != "https" {
		return nil
	}
	return &tls.Config{
		InsecureSkipVerify: true, //nolint:gosec // User explicitly requested
	}
}

func (o *options) stdoutWriter() io.Writer {
	if o.stdout != nil {
		return o.stdout
	}
	return os.Stdout
}
