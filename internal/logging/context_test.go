package logging

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func assertFieldExists(t *testing.T, fields []zap.Field, key, value string) {
	t.Helper()
	for _, f := range fields {
		if f.Key == key {
			assert.Equal(t, value, f.String)
			return
		}
	}
	t.Errorf("field %q not found", key)
}

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestContextFields_ScopesThenRequest(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req_456")
	ctx, end := BeginScope(ctx, zap.String("trace_id", "t1"), zap.String("span_id", "s1"))
	defer end()

	fields := ContextFields(ctx)
	require.Len(t, fields, 3)
	assert.Equal(t, "trace_id", fields[0].Key)
	assert.Equal(t, "span_id", fields[1].Key)
	assert.Equal(t, "request.id", fields[2].Key)
	assertFieldExists(t, fields, "request.id", "req_456")
}

func TestWithRequestID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want string
	}{
		{"valid", "req_123-abc", "req_123-abc"},
		{"empty ignored", "", ""},
		{"invalid characters ignored", "req 123;drop", ""},
		{"too long ignored", strings.Repeat("a", maxIDLen+1), ""},
		{"max length", strings.Repeat("a", maxIDLen), strings.Repeat("a", maxIDLen)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithRequestID(context.Background(), tt.id)
			assert.Equal(t, tt.want, RequestIDFromContext(ctx))
		})
	}
}

func TestLogger_InContext(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)

	assert.Same(t, tl.Logger, FromContext(ctx))
}

func TestLogger_FromContextMissing(t *testing.T) {
	logger := FromContext(context.Background())
	require.NotNil(t, logger)

	assert.NotPanics(t, func() {
		logger.Info(context.Background(), "discarded")
	})
}
