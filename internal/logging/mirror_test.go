package logging

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/telemetrybridge/internal/diagnostics"
)

func eventAttrs(kvs []attribute.KeyValue) map[string]interface{} {
	out := make(map[string]interface{}, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

// startSpan returns a context carrying a recording span and a func ending it
// and returning the recorded events.
func startSpan(t *testing.T) (context.Context, func() []sdktrace.Event) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	ctx, span := tp.Tracer("mirror-test").Start(context.Background(), "op")
	return ctx, func() []sdktrace.Event {
		span.End()
		ended := recorder.Ended()
		require.Len(t, ended, 1)
		return ended[0].Events()
	}
}

type orderError struct{ id string }

func (e *orderError) Error() string { return "order " + e.id + " rejected" }

func TestMirror_ErrorRecord(t *testing.T) {
	ctx, finish := startSpan(t)
	m := NewMirror("orders")
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	added := m.Record(ctx, Record{
		Category: "orders.api",
		Level:    zapcore.ErrorLevel,
		Event:    EventID{ID: 42, Name: "OrderRejected"},
		Message:  "msg",
		Err:      &orderError{id: "o-9"},
		Stack:    "goroutine 1 [running]",
		Time:     ts,
	})
	require.True(t, added)

	events := finish()
	require.Len(t, events, 1)
	assert.Equal(t, "log", events[0].Name)
	assert.Equal(t, ts, events[0].Time)

	attrs := eventAttrs(events[0].Attributes)
	assert.Equal(t, "Error", attrs[AttrSeverity])
	assert.Equal(t, "orders.api", attrs[AttrCategory])
	assert.Equal(t, int64(42), attrs[AttrEventID])
	assert.Equal(t, "OrderRejected", attrs[AttrEventName])
	assert.Equal(t, "msg", attrs[AttrMessage])
	assert.Equal(t, "order o-9 rejected", attrs["exception.message"])
	assert.Equal(t, "github.com/fyrsmithlabs/telemetrybridge/internal/logging.orderError", attrs["exception.type"])
	assert.Equal(t, "goroutine 1 [running]", attrs["exception.stacktrace"])
}

func TestMirror_OptionalAttributes(t *testing.T) {
	ctx, finish := startSpan(t)
	m := NewMirror("")

	m.Record(ctx, Record{
		Category: "any",
		Level:    zapcore.InfoLevel,
		Event:    EventID{Name: "  "},
		Message:  " ",
		Err:      errors.New("boom"),
	})

	events := finish()
	require.Len(t, events, 1)
	attrs := eventAttrs(events[0].Attributes)
	assert.Equal(t, "Information", attrs[AttrSeverity])
	assert.Equal(t, int64(0), attrs[AttrEventID], "event id is always present")
	assert.NotContains(t, attrs, AttrEventName)
	assert.NotContains(t, attrs, AttrMessage)
	assert.Equal(t, "", attrs["exception.stacktrace"], "stacktrace present even when unavailable")
	assert.Equal(t, "errors.errorString", attrs["exception.type"])
	assert.False(t, events[0].Time.IsZero())
}

func TestMirror_NoOp(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	neverSampled := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample()))

	tests := []struct {
		name     string
		ctx      func() context.Context
		category string
	}{
		{
			name:     "no span",
			ctx:      context.Background,
			category: "orders",
		},
		{
			name: "non-recording span",
			ctx: func() context.Context {
				ctx, _ := neverSampled.Tracer("t").Start(context.Background(), "op")
				return ctx
			},
			category: "orders",
		},
		{
			name: "remote span context only",
			ctx: func() context.Context {
				sc := trace.NewSpanContext(trace.SpanContextConfig{
					TraceID: trace.TraceID{1},
					SpanID:  trace.SpanID{2},
					Remote:  true,
				})
				return trace.ContextWithRemoteSpanContext(context.Background(), sc)
			},
			category: "orders",
		},
		{
			name: "category outside prefix",
			ctx: func() context.Context {
				ctx, _ := tp.Tracer("t").Start(context.Background(), "op")
				return ctx
			},
			category: "billing.api",
		},
	}

	m := NewMirror("orders")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var added bool
			assert.NotPanics(t, func() {
				added = m.Record(tt.ctx(), Record{Category: tt.category, Level: zapcore.ErrorLevel, Message: "x"})
			})
			assert.False(t, added)
		})
	}

	var nilMirror *Mirror
	assert.False(t, nilMirror.Record(context.Background(), Record{}))
}

func TestMirror_State(t *testing.T) {
	ctx, finish := startSpan(t)
	redactor, err := NewRedactor(NewDefaultConfig().Redaction)
	require.NoError(t, err)
	m := NewMirror("", WithRedactor(redactor))

	m.Record(ctx, Record{
		Category: "svc",
		Level:    zapcore.InfoLevel,
		Fields: []zap.Field{
			zap.String("user", "alice"),
			zap.Int("attempt", 1),
			zap.Int("attempt", 2),
			zap.Bool("cached", true),
			zap.Float64("ratio", 0.5),
			zap.Duration("elapsed", 1500*time.Millisecond),
			zap.Strings("tags", []string{"a", "b"}),
			zap.String("token", "abc123"),
			zap.String("note", "api_key=sk-live-123"),
			zap.Any("nested", map[string]interface{}{"password": "p", "region": "eu"}),
			zap.Skip(),
			Event(7, "Ignored"),
			zap.String("", "no key"),
		},
	})

	attrs := eventAttrs(finish()[0].Attributes)
	assert.Equal(t, "alice", attrs["log.state.user"])
	assert.Equal(t, int64(2), attrs["log.state.attempt"], "last write wins")
	assert.Equal(t, true, attrs["log.state.cached"])
	assert.Equal(t, 0.5, attrs["log.state.ratio"])
	assert.Equal(t, "1.5s", attrs["log.state.elapsed"])
	assert.Equal(t, []string{"a", "b"}, attrs["log.state.tags"])
	assert.Equal(t, "[REDACTED]", attrs["log.state.token"])
	assert.Equal(t, "[REDACTED:pattern]", attrs["log.state.note"])
	assert.Equal(t, `{"password":"[REDACTED]","region":"eu"}`, attrs["log.state.nested"])
	assert.NotContains(t, attrs, "log.state.")
	assert.NotContains(t, attrs, "log.state.event_id", "event identity is not state")
}

type panickingMarshaler struct{}

func (panickingMarshaler) MarshalLogObject(zapcore.ObjectEncoder) error {
	panic("marshal exploded")
}

func TestMirror_FailuresSwallowed(t *testing.T) {
	ctx, finish := startSpan(t)
	metrics := diagnostics.New(nil)
	m := NewMirror("", WithMirrorMetrics(metrics))

	var added bool
	require.NotPanics(t, func() {
		added = m.Record(ctx, Record{
			Category: "svc",
			Level:    zapcore.WarnLevel,
			Fields:   []zap.Field{zap.Object("bad", panickingMarshaler{})},
		})
	})
	assert.False(t, added)
	assert.Empty(t, finish())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MirrorFailures))
}

func TestMirror_CountsMirroredEvents(t *testing.T) {
	ctx, finish := startSpan(t)
	metrics := diagnostics.New(nil)
	m := NewMirror("", WithMirrorMetrics(metrics))

	for i := 0; i < 3; i++ {
		m.Record(ctx, Record{Category: "svc", Level: zapcore.WarnLevel, Message: fmt.Sprintf("w%d", i)})
	}

	assert.Len(t, finish(), 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.MirroredEvents.WithLabelValues(SeverityWarning)))
}

func TestMirror_Captures(t *testing.T) {
	m := NewMirror("orders")
	assert.True(t, m.Captures("orders"))
	assert.True(t, m.Captures("orders.http"))
	assert.False(t, m.Captures("billing"))
	assert.False(t, m.Captures(""))
	assert.Equal(t, "orders", m.Prefix())
	assert.True(t, NewMirror("").Captures(""))
}

func TestSplitError(t *testing.T) {
	first := errors.New("first")
	fields := []zap.Field{
		zap.String("k", "v"),
		zap.Error(first),
		zap.NamedError("cause", errors.New("second")),
	}

	err, rest := splitError(fields)
	assert.Same(t, first, err)
	require.Len(t, rest, 2)
	assert.Equal(t, "k", rest[0].Key)
	assert.Equal(t, "cause", rest[1].Key)
	assert.Len(t, fields, 3, "input is not modified")

	err, rest = splitError([]zap.Field{zap.Error(nil)})
	assert.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestEventFromFields(t *testing.T) {
	ev, ok := eventFromFields([]zap.Field{zap.String("a", "b"), Event(9, "Nine")})
	require.True(t, ok)
	assert.Equal(t, EventID{ID: 9, Name: "Nine"}, ev)

	_, ok = eventFromFields([]zap.Field{zap.String("a", "b")})
	assert.False(t, ok)
}
