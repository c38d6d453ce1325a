// Package bridge wires OpenTelemetry tracing, metrics and logs into a Go
// service with one call.
//
// Install resolves the process identity, builds the export pipelines for the
// endpoints found in the environment, installs the W3C trace context and
// baggage propagator once per process, and returns a Bridge holding the
// instrument cache, the decorated logger and the HTTP interceptors:
//
//	b, err := bridge.Install(ctx, "orders")
//	if err != nil {
//	    return err
//	}
//	defer b.Shutdown(context.Background())
//
//	e := echo.New()
//	b.Pipeline().Install(e)
//	client := b.HTTPClient()
//
// Log entries written through b.Logger (or any logger from b.Named whose
// category starts with the capture prefix) are also mirrored as "log" events
// onto the active span.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/telemetrybridge/internal/diagnostics"
	"github.com/fyrsmithlabs/telemetrybridge/internal/instruments"
	"github.com/fyrsmithlabs/telemetrybridge/internal/logging"
	"github.com/fyrsmithlabs/telemetrybridge/internal/telemetry"
	"github.com/fyrsmithlabs/telemetrybridge/internal/tracescope"
)

var (
	// ErrInvalidArgument is returned by Install for unusable arguments or
	// configuration. The underlying cause is wrapped alongside it.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAlreadyInstalled is returned by Install while another bridge is
	// installed in the process. Shut that bridge down first.
	ErrAlreadyInstalled = errors.New("telemetry bridge already installed")
)

// Bridge is the handle returned by Install.
type Bridge struct {
	config      *Config
	settings    telemetry.Settings
	telemetry   *telemetry.Telemetry
	instruments *instruments.Cache
	metrics     *diagnostics.Metrics
	registerer  prometheus.Registerer
	base        *logging.Logger
	logger      *logging.Logger
	pipeline    *tracescope.Pipeline
	clients     *tracescope.ClientFactory

	shutdownOnce sync.Once
	shutdownErr  error
}

// Install builds the bridge for serviceName. The name is trimmed; a blank
// name fails with ErrInvalidArgument.
//
// One bridge owns the process identity, the global providers and the
// instrument cache at a time. Install fails with ErrAlreadyInstalled until
// the installed bridge is shut down; Current returns it.
func Install(ctx context.Context, serviceName string, opts ...Option) (*Bridge, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	settings, err := telemetry.NewSettings(serviceName, o.settings...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	cfg := o.config
	if cfg == nil {
		cfg, err = LoadConfig(o.configFile)
		if err != nil {
			return nil, fmt.Errorf("%w: loading bridge config: %w", ErrInvalidArgument, err)
		}
	} else if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if !cfg.Logging.Output.Stdout && !cfg.Logging.Output.OTEL && len(o.cores) == 0 {
		return nil, fmt.Errorf("%w: logging: at least one output must be enabled", ErrInvalidArgument)
	}

	globalBootstrap.mu.Lock()
	defer globalBootstrap.mu.Unlock()
	if current := globalBootstrap.active; current != nil {
		return nil, fmt.Errorf("%w: service %q", ErrAlreadyInstalled, current.settings.ServiceName())
	}

	b, err := install(ctx, settings, cfg, o)
	if err != nil {
		return nil, err
	}
	globalBootstrap.active = b
	return b, nil
}

// Current returns the installed bridge, or nil when none is.
func Current() *Bridge {
	globalBootstrap.mu.Lock()
	defer globalBootstrap.mu.Unlock()
	return globalBootstrap.active
}

// bootstrapCell holds the bridge that owns the process.
type bootstrapCell struct {
	mu     sync.Mutex
	active *Bridge
}

var globalBootstrap bootstrapCell

// release clears the cell if b still owns it.
func (c *bootstrapCell) release(b *Bridge) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == b {
		c.active = nil
	}
}

func install(ctx context.Context, settings telemetry.Settings, cfg *Config, o *options) (*Bridge, error) {
	globalPropagator.ensure()

	tel, err := telemetry.New(ctx, cfg.Telemetry, settings, o.telemetry...)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	metrics := diagnostics.New(o.registerer)

	redactor, err := logging.NewRedactor(cfg.Logging.Redaction)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("initializing redaction: %w", err)
	}
	mirror := logging.NewMirror(settings.LogCapturePrefix(),
		logging.WithRedactor(redactor),
		logging.WithMirrorMetrics(metrics),
	)

	var lp log.LoggerProvider
	if cfg.Logging.Output.OTEL {
		lp = tel.LoggerProvider()
	}
	logOpts := []logging.Option{
		logging.WithMirror(mirror),
		logging.WithScopeName(settings.ServiceName()),
	}
	for _, core := range o.cores {
		logOpts = append(logOpts, logging.WithCore(core))
	}
	if o.logWriter != nil {
		logOpts = append(logOpts, logging.WithWriter(o.logWriter))
	}
	base, err := logging.NewLogger(cfg.Logging, lp, logOpts...)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := base.Named(settings.ServiceName())

	otelOpts := []otelhttp.Option{
		otelhttp.WithTracerProvider(tel.TracerProvider()),
		otelhttp.WithMeterProvider(tel.MeterProvider()),
		otelhttp.WithPropagators(otel.GetTextMapPropagator()),
	}
	scope := tracescope.Options{
		Logger:  logger.Named("http"),
		Metrics: metrics,
	}

	meter := tel.Meter(settings.ServiceName(), metric.WithInstrumentationVersion(settings.ServiceVersion()))

	b := &Bridge{
		config:      cfg,
		settings:    settings,
		telemetry:   tel,
		instruments: instruments.New(meter),
		metrics:     metrics,
		registerer:  o.registerer,
		base:        base,
		logger:      logger,
		pipeline:    tracescope.NewPipeline(settings.ServiceName(), scope, otelOpts...),
		clients:     tracescope.NewClientFactory(scope, otelOpts...),
	}

	logger.Info(ctx, "telemetry bridge installed",
		logging.Event(eventInstalled, "BridgeInstalled"),
		zap.String("service.version", settings.ServiceVersion()),
		zap.String("exporter", cfg.Telemetry.Exporter),
		zap.Bool("exporting", tel.Exporting()),
	)
	return b, nil
}

const eventInstalled = 1000

// Settings returns the immutable process identity.
func (b *Bridge) Settings() telemetry.Settings { return b.settings }

// Config returns the effective configuration.
func (b *Bridge) Config() *Config { return b.config }

// Instruments returns the process-wide instrument cache.
func (b *Bridge) Instruments() *instruments.Cache { return b.instruments }

// Logger returns the service logger. Its category is the service name.
func (b *Bridge) Logger() *logging.Logger { return b.logger }

// Named returns a logger for category. Entries are mirrored onto spans when
// category starts with the capture prefix.
func (b *Bridge) Named(category string) *logging.Logger { return b.base.Named(category) }

// Tracer returns a tracer named after the service.
func (b *Bridge) Tracer(opts ...trace.TracerOption) trace.Tracer {
	return b.telemetry.Tracer(b.settings.ServiceName(), opts...)
}

// Telemetry returns the underlying pipelines.
func (b *Bridge) Telemetry() *telemetry.Telemetry { return b.telemetry }

// Pipeline returns the inbound interceptor installer.
func (b *Bridge) Pipeline() *tracescope.Pipeline { return b.pipeline }

// Clients returns the instrumented client factory.
func (b *Bridge) Clients() *tracescope.ClientFactory { return b.clients }

// HTTPClient returns an instrumented client with the configured timeout and
// retry defaults. opts apply after the defaults.
func (b *Bridge) HTTPClient(opts ...tracescope.ClientOption) *http.Client {
	c := b.config.Client
	defaults := []tracescope.ClientOption{
		tracescope.WithTimeout(c.Timeout.Duration()),
		tracescope.WithRetries(c.Retries),
		tracescope.WithRetryWait(c.RetryWaitMin.Duration(), c.RetryWaitMax.Duration()),
	}
	return b.clients.Client(append(defaults, opts...)...)
}

// Metrics returns the bridge self-metrics.
func (b *Bridge) Metrics() *diagnostics.Metrics { return b.metrics }

// Registry returns the gatherer holding the bridge self-metrics: the
// private registry, or the registerer given to WithRegisterer when it can
// also gather.
func (b *Bridge) Registry() prometheus.Gatherer {
	if reg := b.metrics.Registry(); reg != nil {
		return reg
	}
	if g, ok := b.registerer.(prometheus.Gatherer); ok {
		return g
	}
	return nil
}

// Shutdown releases every cached instrument, flushes the logger and shuts
// down the pipelines. Errors are joined. Later calls return the first
// result.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.shutdownOnce.Do(func() {
		var errs []error

		released := b.instruments.Close()
		b.logger.Debug(ctx, "instrument cache closed", zap.Int("released", released))

		if err := b.logger.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("logger sync: %w", err))
		}
		if err := b.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		b.shutdownErr = errors.Join(errs...)
		globalBootstrap.release(b)
	})
	return b.shutdownErr
}
