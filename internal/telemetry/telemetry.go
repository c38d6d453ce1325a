package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Telemetry owns the tracer, meter and logger providers of the process.
//
// Exporter failures do not crash the application; the affected pipeline is
// left out and the instance reports itself degraded.
type Telemetry struct {
	config   *Config
	settings Settings
	resource *resource.Resource

	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	logProvider    *sdklog.LoggerProvider

	// Health tracking
	healthy  atomic.Bool
	degraded atomic.Bool
	errs     []error
}

// New creates the pipelines for settings and installs them as the global
// tracer, meter and logger providers.
//
// The propagation format is not installed here; see the bridge bootstrap.
func New(ctx context.Context, cfg *Config, settings Settings, opts ...Option) (*Telemetry, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}
	if settings.IsZero() {
		return nil, ErrInvalidServiceName
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	t := &Telemetry{
		config:   cfg,
		settings: settings,
		resource: newResource(settings),
	}
	t.healthy.Store(true)

	tp, err := newTracerProvider(ctx, cfg, t.resource, o)
	if err != nil {
		t.setDegraded(err)
	} else {
		t.tracerProvider = tp
		otel.SetTracerProvider(tp)
	}

	mp, err := newMeterProvider(ctx, cfg, t.resource, o)
	if err != nil {
		t.setDegraded(err)
	} else {
		t.meterProvider = mp
		otel.SetMeterProvider(mp)
	}

	lp, err := newLoggerProvider(ctx, cfg, t.resource, o)
	if err != nil {
		t.setDegraded(err)
	} else {
		t.logProvider = lp
		global.SetLoggerProvider(lp)
	}

	return t, nil
}

// Settings returns the process identity the pipelines were built for.
func (t *Telemetry) Settings() Settings {
	if t == nil {
		return Settings{}
	}
	return t.settings
}

// Resource returns the resource attached to every signal.
func (t *Telemetry) Resource() *resource.Resource {
	if t == nil {
		return resource.Empty()
	}
	return t.resource
}

// Tracer returns a tracer for the given instrumentation scope.
//
// Falls back to the global provider if the trace pipeline is unavailable.
func (t *Telemetry) Tracer(name string, opts ...oteltrace.TracerOption) oteltrace.Tracer {
	return t.TracerProvider().Tracer(name, opts...)
}

// Meter returns a meter for the given instrumentation scope.
//
// Falls back to the global provider if the metric pipeline is unavailable.
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	return t.MeterProvider().Meter(name, opts...)
}

// TracerProvider returns the trace provider, or the global one.
func (t *Telemetry) TracerProvider() oteltrace.TracerProvider {
	if t == nil || t.tracerProvider == nil {
		return otel.GetTracerProvider()
	}
	return t.tracerProvider
}

// MeterProvider returns the meter provider, or the global one.
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	if t == nil || t.meterProvider == nil {
		return otel.GetMeterProvider()
	}
	return t.meterProvider
}

// LoggerProvider returns the log provider for the OTEL logging bridge.
//
// May return nil if the log pipeline is unavailable.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if t == nil || t.logProvider == nil {
		return nil
	}
	return t.logProvider
}

// Shutdown gracefully shuts down all telemetry providers.
//
// Uses the shutdown timeout from config if ctx carries no deadline.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok && t.config != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.Shutdown.Timeout.Duration())
		defer cancel()
	}

	var errs []error

	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
	}

	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	if t.logProvider != nil {
		if err := t.logProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("log provider shutdown: %w", err))
		}
	}

	t.healthy.Store(false)
	return errors.Join(errs...)
}

// ForceFlush immediately exports all pending telemetry data.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil {
		return nil
	}

	var errs []error

	if t.tracerProvider != nil {
		if err := t.tracerProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace flush: %w", err))
		}
	}

	if t.meterProvider != nil {
		if err := t.meterProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter flush: %w", err))
		}
	}

	if t.logProvider != nil {
		if err := t.logProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("log flush: %w", err))
		}
	}

	return errors.Join(errs...)
}

// HealthStatus describes the state of the pipelines.
type HealthStatus struct {
	Healthy  bool
	Degraded bool
	Errors   []error
}

// Health returns the current telemetry health status.
func (t *Telemetry) Health() HealthStatus {
	if t == nil {
		return HealthStatus{Healthy: false, Degraded: true}
	}
	return HealthStatus{
		Healthy:  t.healthy.Load(),
		Degraded: t.degraded.Load(),
		Errors:   t.errs,
	}
}

// Exporting returns true if signals leave the process and the pipelines
// are healthy.
func (t *Telemetry) Exporting() bool {
	if t == nil || t.config == nil {
		return false
	}
	return t.config.Exporter != ExporterNone && t.healthy.Load()
}

// setDegraded marks telemetry as degraded due to a pipeline error.
func (t *Telemetry) setDegraded(err error) {
	t.degraded.Store(true)
	t.errs = append(t.errs, err)
	otel.Handle(err)
}
