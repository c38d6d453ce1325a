package logging

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/telemetrybridge/internal/diagnostics"
)

// Span event vocabulary.
const (
	EventName = "log"

	AttrSeverity  = "log.severity"
	AttrCategory  = "log.category"
	AttrEventID   = "log.event_id"
	AttrEventName = "log.event_name"
	AttrMessage   = "log.message"
	StatePrefix   = "log.state."
)

// Record is one log call as seen by the mirror.
type Record struct {
	Category string
	Level    zapcore.Level
	Event    EventID
	Message  string
	Err      error
	Stack    string
	Fields   []zap.Field
	Time     time.Time
}

// MirrorOption configures a Mirror.
type MirrorOption func(*Mirror)

// WithRedactor applies redaction rules to mirrored state values.
func WithRedactor(r *Redactor) MirrorOption {
	return func(m *Mirror) {
		m.redactor = r
	}
}

// WithMirrorMetrics counts mirrored events and swallowed failures.
func WithMirrorMetrics(metrics *diagnostics.Metrics) MirrorOption {
	return func(m *Mirror) {
		m.metrics = metrics
	}
}

// Mirror copies log records onto the span active in the logging context as
// "log" span events. It holds no mutable state and is safe for concurrent use.
type Mirror struct {
	prefix   string
	redactor *Redactor
	metrics  *diagnostics.Metrics
}

// NewMirror creates a mirror for categories starting with prefix. An empty
// prefix captures every category.
func NewMirror(prefix string, opts ...MirrorOption) *Mirror {
	m := &Mirror{prefix: prefix}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Prefix returns the capture prefix.
func (m *Mirror) Prefix() string { return m.prefix }

// Captures reports whether records of category are mirrored.
func (m *Mirror) Captures(category string) bool {
	return m != nil && strings.HasPrefix(category, m.prefix)
}

// Record attaches rec to the recording span in ctx. It reports whether an
// event was added. Record never panics; failures are counted and dropped.
func (m *Mirror) Record(ctx context.Context, rec Record) (added bool) {
	if m == nil || ctx == nil || !m.Captures(rec.Category) {
		return false
	}
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() || !span.IsRecording() {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			added = false
			m.metrics.MirrorFailed()
		}
	}()

	severity := SeverityName(rec.Level)
	ts := rec.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	span.AddEvent(EventName,
		trace.WithTimestamp(ts),
		trace.WithAttributes(m.attributes(rec, severity)...),
	)
	m.metrics.EventMirrored(severity)
	return true
}

func (m *Mirror) attributes(rec Record, severity string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 6+len(rec.Fields))
	attrs = append(attrs,
		attribute.String(AttrSeverity, severity),
		attribute.String(AttrCategory, rec.Category),
		attribute.Int64(AttrEventID, rec.Event.ID),
	)
	if strings.TrimSpace(rec.Event.Name) != "" {
		attrs = append(attrs, attribute.String(AttrEventName, rec.Event.Name))
	}
	if strings.TrimSpace(rec.Message) != "" {
		attrs = append(attrs, attribute.String(AttrMessage, rec.Message))
	}
	if rec.Err != nil {
		attrs = append(attrs,
			semconv.ExceptionTypeKey.String(exceptionType(rec.Err)),
			semconv.ExceptionMessageKey.String(rec.Err.Error()),
			semconv.ExceptionStacktraceKey.String(rec.Stack),
		)
	}
	return append(attrs, m.state(rec.Fields)...)
}

// state flattens structured fields into log.state.* attributes, sorted by
// key. Later fields overwrite earlier ones under the same key.
func (m *Mirror) state(fields []zap.Field) []attribute.KeyValue {
	if len(fields) == 0 {
		return nil
	}
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		if f.Type == zapcore.SkipType {
			continue
		}
		if f.Type == zapcore.InlineMarshalerType {
			if _, ok := f.Interface.(EventID); ok {
				continue
			}
		}
		f.AddTo(enc)
	}

	keys := make([]string, 0, len(enc.Fields))
	for k := range enc.Fields {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		if kv, ok := m.stateAttr(k, enc.Fields[k]); ok {
			attrs = append(attrs, kv)
		}
	}
	return attrs
}

func (m *Mirror) stateAttr(key string, v interface{}) (attribute.KeyValue, bool) {
	k := StatePrefix + key
	if m.redactor.Key(key) {
		return attribute.String(k, redacted), true
	}

	switch val := v.(type) {
	case nil:
		return attribute.KeyValue{}, false
	case string:
		return attribute.String(k, m.redactor.String(key, val)), true
	case bool:
		return attribute.Bool(k, val), true
	case int:
		return attribute.Int(k, val), true
	case int8:
		return attribute.Int64(k, int64(val)), true
	case int16:
		return attribute.Int64(k, int64(val)), true
	case int32:
		return attribute.Int64(k, int64(val)), true
	case int64:
		return attribute.Int64(k, val), true
	case uint8:
		return attribute.Int64(k, int64(val)), true
	case uint16:
		return attribute.Int64(k, int64(val)), true
	case uint32:
		return attribute.Int64(k, int64(val)), true
	case uint:
		return uintAttr(k, uint64(val)), true
	case uint64:
		return uintAttr(k, val), true
	case uintptr:
		return uintAttr(k, uint64(val)), true
	case float32:
		return attribute.Float64(k, float64(val)), true
	case float64:
		return attribute.Float64(k, val), true
	case time.Duration:
		return attribute.String(k, val.String()), true
	case time.Time:
		return attribute.String(k, val.Format(time.RFC3339Nano)), true
	case []byte:
		return attribute.String(k, base64.StdEncoding.EncodeToString(val)), true
	case complex64, complex128:
		return attribute.String(k, fmt.Sprint(val)), true
	case []interface{}:
		if strs, ok := stringSlice(val); ok {
			for i := range strs {
				strs[i] = m.redactor.String(key, strs[i])
			}
			return attribute.StringSlice(k, strs), true
		}
		return attribute.String(k, m.jsonString(val)), true
	case map[string]interface{}:
		return attribute.String(k, m.jsonString(m.redactMap(val))), true
	default:
		return attribute.String(k, m.redactor.String(key, fmt.Sprint(val))), true
	}
}

// redactMap applies key and value redaction to a nested object.
func (m *Mirror) redactMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case string:
			out[k] = m.redactor.String(k, val)
		case map[string]interface{}:
			if m.redactor.Key(k) {
				out[k] = redacted
			} else {
				out[k] = m.redactMap(val)
			}
		default:
			if m.redactor.Key(k) {
				out[k] = redacted
			} else {
				out[k] = val
			}
		}
	}
	return out
}

func (m *Mirror) jsonString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func uintAttr(key string, v uint64) attribute.KeyValue {
	if v > math.MaxInt64 {
		return attribute.String(key, fmt.Sprint(v))
	}
	return attribute.Int64(key, int64(v))
}

func stringSlice(vals []interface{}) ([]string, bool) {
	out := make([]string, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}

// exceptionType returns the package-qualified type name of err, falling back
// to the %T form for unnamed types.
func exceptionType(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return fmt.Sprintf("%T", err)
}

// splitError pulls the first error field out of fields. It is mirrored as the
// exception and left out of the state attributes.
func splitError(fields []zap.Field) (error, []zap.Field) {
	for i, f := range fields {
		if f.Type != zapcore.ErrorType {
			continue
		}
		err, ok := f.Interface.(error)
		if !ok || err == nil {
			continue
		}
		rest := make([]zap.Field, 0, len(fields)-1)
		rest = append(rest, fields[:i]...)
		rest = append(rest, fields[i+1:]...)
		return err, rest
	}
	return nil, fields
}
