// Package tracescope pushes the active trace and span identifiers into the
// ambient logging scope around every inbound request and outbound call, so
// log entries written during the exchange carry them.
package tracescope

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/telemetrybridge/internal/diagnostics"
	"github.com/fyrsmithlabs/telemetrybridge/internal/logging"
)

// Scope field keys.
const (
	TraceIDKey = "trace_id"
	SpanIDKey  = "span_id"
)

// Options configures the interceptors.
type Options struct {
	// Logger, when set, writes one debug entry per exchange inside the scope.
	Logger *logging.Logger

	// Metrics counts opened scopes.
	Metrics *diagnostics.Metrics
}

// Values returns the scope fields for sc, or nil when sc is invalid.
func Values(sc trace.SpanContext) []zap.Field {
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String(TraceIDKey, sc.TraceID().String()),
		zap.String(SpanIDKey, sc.SpanID().String()),
	}
}

// Begin opens a logging scope for the span active in ctx. Without a valid
// span, ctx is returned unchanged, the EndFunc does nothing and ok is false.
func (o Options) Begin(ctx context.Context, direction string) (_ context.Context, end logging.EndFunc, ok bool) {
	fields := Values(trace.SpanContextFromContext(ctx))
	if fields == nil {
		return ctx, func() {}, false
	}
	o.Metrics.ScopeOpened(direction)
	ctx, end = logging.BeginScope(ctx, fields...)
	return ctx, end, true
}
