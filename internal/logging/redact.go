package logging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/telemetrybridge/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	redacted        = "[REDACTED]"
	redactedPattern = "[REDACTED:pattern]"

	// Basic ReDoS protection.
	maxPatternLen = 200
)

// secretMarshaler wraps config.Secret for Zap object marshaling.
type secretMarshaler struct {
	key string
	val config.Secret
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (s *secretMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString(s.key, fmt.Sprintf("[REDACTED:%d]", len(s.val.Value())))
	return nil
}

// Secret creates a Zap field for config.Secret with redaction indicator.
func Secret(key string, val config.Secret) zap.Field {
	return zap.Object(key, &secretMarshaler{key: key, val: val})
}

// RedactedString creates a Zap field with redacted value and length.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// Redactor decides which keys and values must never leave the process in
// clear text. It is shared by the sink encoder and the span mirror.
// A nil *Redactor redacts nothing.
type Redactor struct {
	fields   map[string]bool
	patterns []*regexp.Regexp
}

// NewRedactor compiles the redaction rules. A disabled config yields a
// redactor that passes everything through.
func NewRedactor(cfg RedactionConfig) (*Redactor, error) {
	r := &Redactor{fields: make(map[string]bool)}
	if !cfg.Enabled {
		return r, nil
	}

	for _, f := range cfg.Fields {
		r.fields[strings.ToLower(f)] = true
	}

	for _, p := range cfg.Patterns {
		if len(p) > maxPatternLen {
			return nil, fmt.Errorf("redaction pattern too long (max %d chars): %q", maxPatternLen, p)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

// Key reports whether values under key are redacted wholesale.
func (r *Redactor) Key(key string) bool {
	if r == nil {
		return false
	}
	return r.fields[strings.ToLower(key)]
}

// String returns the value to emit for key=val.
func (r *Redactor) String(key, val string) string {
	if r == nil {
		return val
	}
	if r.Key(key) {
		return redacted
	}
	for _, re := range r.patterns {
		if re.MatchString(val) {
			return redactedPattern
		}
	}
	return val
}

// Fields returns fields with sensitive entries replaced. The input slice is
// never modified.
func (r *Redactor) Fields(fields []zapcore.Field) []zapcore.Field {
	if r == nil {
		return fields
	}
	var out []zapcore.Field
	for i, f := range fields {
		replacement, ok := r.field(f)
		if !ok {
			continue
		}
		if out == nil {
			out = make([]zapcore.Field, len(fields))
			copy(out, fields)
		}
		out[i] = replacement
	}
	if out == nil {
		return fields
	}
	return out
}

func (r *Redactor) field(f zapcore.Field) (zapcore.Field, bool) {
	if f.Key == "" {
		return f, false
	}
	if r.Key(f.Key) {
		return zap.String(f.Key, redacted), true
	}
	if f.Type == zapcore.StringType {
		if v := r.String(f.Key, f.String); v != f.String {
			return zap.String(f.Key, v), true
		}
	}
	return f, false
}

// RedactingEncoder wraps a zapcore.Encoder to redact sensitive fields.
type RedactingEncoder struct {
	zapcore.Encoder
	redactor *Redactor
}

// NewRedactingEncoder wraps an encoder with redaction rules.
func NewRedactingEncoder(base zapcore.Encoder, redactor *Redactor) *RedactingEncoder {
	return &RedactingEncoder{Encoder: base, redactor: redactor}
}

// EncodeEntry redacts per-call fields, which the wrapped encoder would
// otherwise add to its own clone without passing through this wrapper.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	return e.Encoder.EncodeEntry(ent, e.redactor.Fields(fields))
}

// AddString redacts sensitive field names and value patterns.
func (e *RedactingEncoder) AddString(key, val string) {
	e.Encoder.AddString(key, e.redactor.String(key, val))
}

// AddByteString redacts sensitive field names.
func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.redactor.Key(key) {
		e.Encoder.AddByteString(key, []byte(redacted))
		return
	}
	e.Encoder.AddByteString(key, val)
}

// AddBinary redacts sensitive field names.
func (e *RedactingEncoder) AddBinary(key string, val []byte) {
	if e.redactor.Key(key) {
		e.Encoder.AddBinary(key, []byte(redacted))
		return
	}
	e.Encoder.AddBinary(key, val)
}

// AddReflected redacts sensitive field names.
// Note: This redacts the entire reflected value if the key is sensitive.
// For deep inspection of reflected structs/maps, use explicit zap.Object() with custom marshalers.
func (e *RedactingEncoder) AddReflected(key string, val interface{}) error {
	if e.redactor.Key(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

// AddArray redacts sensitive field names.
func (e *RedactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.redactor.Key(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

// AddObject redacts sensitive field names.
func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.redactor.Key(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

// Clone creates a copy of the encoder.
func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{
		Encoder:  e.Encoder.Clone(),
		redactor: e.redactor,
	}
}
