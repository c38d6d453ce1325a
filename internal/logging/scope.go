package logging

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// EndFunc closes a logging scope. Calling it more than once is harmless.
type EndFunc func()

// scopeFrame is one entry of the ambient scope stack carried by a context.
// Frames are immutable apart from the closed flag, so a context may be
// shared across goroutines.
type scopeFrame struct {
	parent *scopeFrame
	fields []zap.Field
	closed atomic.Bool
}

type scopeCtxKey struct{}

// BeginScope pushes fields onto the ambient scope stack of ctx. Every log
// call made with the returned context, or a context derived from it, carries
// the fields until the EndFunc runs.
//
//	ctx, end := logging.BeginScope(ctx, zap.String("order_id", id))
//	defer end()
func BeginScope(ctx context.Context, fields ...zap.Field) (context.Context, EndFunc) {
	frame := &scopeFrame{
		parent: frameFromContext(ctx),
		fields: fields,
	}
	return context.WithValue(ctx, scopeCtxKey{}, frame), func() {
		frame.closed.Store(true)
	}
}

// ScopeFields returns the fields of every open scope in ctx, oldest first.
func ScopeFields(ctx context.Context) []zap.Field {
	var open []*scopeFrame
	for f := frameFromContext(ctx); f != nil; f = f.parent {
		if !f.closed.Load() {
			open = append(open, f)
		}
	}

	var fields []zap.Field
	for i := len(open) - 1; i >= 0; i-- {
		fields = append(fields, open[i].fields...)
	}
	return fields
}

// ScopeDepth returns the number of open scopes in ctx.
func ScopeDepth(ctx context.Context) int {
	n := 0
	for f := frameFromContext(ctx); f != nil; f = f.parent {
		if !f.closed.Load() {
			n++
		}
	}
	return n
}

func frameFromContext(ctx context.Context) *scopeFrame {
	if ctx == nil {
		return nil
	}
	f, _ := ctx.Value(scopeCtxKey{}).(*scopeFrame)
	return f
}
