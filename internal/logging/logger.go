package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps Zap with context-aware methods. When built with a Mirror,
// every entry at or above the configured level is also attached to the span
// active in the call context.
type Logger struct {
	zap    *zap.Logger
	config *Config
	mirror *Mirror
}

// Option configures logger construction.
type Option func(*loggerOptions)

type loggerOptions struct {
	mirror    *Mirror
	cores     []zapcore.Core
	scopeName string
	writer    io.Writer
}

// WithMirror routes every log call through m before the sinks.
func WithMirror(m *Mirror) Option {
	return func(o *loggerOptions) {
		o.mirror = m
	}
}

// WithCore adds an extra sink, typically an observer core in tests.
func WithCore(core zapcore.Core) Option {
	return func(o *loggerOptions) {
		if core != nil {
			o.cores = append(o.cores, core)
		}
	}
}

// WithScopeName sets the instrumentation scope of records sent to the OTel
// logs pipeline.
func WithScopeName(name string) Option {
	return func(o *loggerOptions) {
		o.scopeName = name
	}
}

// WithWriter replaces os.Stdout as the destination of the stdout sink.
func WithWriter(w io.Writer) Option {
	return func(o *loggerOptions) {
		o.writer = w
	}
}

// NewLogger creates a logger from config.
// otelProvider can be nil to disable OTEL output.
func NewLogger(cfg *Config, otelProvider log.LoggerProvider, opts ...Option) (*Logger, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := loggerOptions{scopeName: defaultScopeName}
	for _, opt := range opts {
		opt(&o)
	}

	core, err := newDualCore(cfg, otelProvider, o)
	if err != nil {
		return nil, fmt.Errorf("failed to create core: %w", err)
	}

	zapOpts := []zap.Option{}
	if cfg.Caller.Enabled {
		// One extra frame for the internal log helper.
		zapOpts = append(zapOpts, zap.AddCaller(), zap.AddCallerSkip(cfg.Caller.Skip+1))
	}
	if cfg.Stacktrace.Level != 0 {
		zapOpts = append(zapOpts, zap.AddStacktrace(cfg.Stacktrace.Level))
	}

	zapLogger := zap.New(core, zapOpts...)

	if len(cfg.Fields) > 0 {
		fields := make([]zap.Field, 0, len(cfg.Fields))
		for k, v := range cfg.Fields {
			fields = append(fields, zap.String(k, v))
		}
		zapLogger = zapLogger.With(fields...)
	}

	return &Logger{
		zap:    zapLogger,
		config: cfg,
		mirror: o.mirror,
	}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}

// newEncoder creates JSON or console encoder.
func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == "console" {
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}

// Context-aware logging methods

func (l *Logger) Trace(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, TraceLevel, msg, fields)
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.DebugLevel, msg, fields)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.InfoLevel, msg, fields)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.WarnLevel, msg, fields)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.ErrorLevel, msg, fields)
}

func (l *Logger) DPanic(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.DPanicLevel, msg, fields)
}

func (l *Logger) Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.FatalLevel, msg, fields)
}

// Log writes msg at an arbitrary level.
func (l *Logger) Log(ctx context.Context, lvl zapcore.Level, msg string, fields ...zap.Field) {
	l.log(ctx, lvl, msg, fields)
}

// log mirrors the entry onto the active span, then hands it to the sinks.
// Mirroring happens first so fatal entries are still attached before exit.
func (l *Logger) log(ctx context.Context, lvl zapcore.Level, msg string, fields []zap.Field) {
	if ctx == nil {
		ctx = context.Background()
	}
	ce := l.zap.Check(lvl, msg)

	if l.mirror != nil && l.config.Level.Enabled(lvl) {
		l.mirrorEntry(ctx, lvl, msg, ce, fields)
	}

	if ce == nil {
		return
	}
	ce.Write(append(ContextFields(ctx), fields...)...)
}

func (l *Logger) mirrorEntry(ctx context.Context, lvl zapcore.Level, msg string, ce *zapcore.CheckedEntry, fields []zap.Field) {
	rec := Record{
		Category: l.zap.Name(),
		Level:    lvl,
		Message:  msg,
		Time:     time.Now(),
	}
	if ce != nil {
		rec.Category = ce.LoggerName
		rec.Time = ce.Time
		rec.Stack = ce.Stack
	}
	rec.Event, _ = eventFromFields(fields)
	rec.Err, rec.Fields = splitError(fields)
	l.mirror.Record(ctx, rec)
}

// Child logger creation

func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{
		zap:    l.zap.With(fields...),
		config: l.config,
		mirror: l.mirror,
	}
}

// Named returns a child logger whose category is the dotted join of the
// parent category and name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		zap:    l.zap.Named(name),
		config: l.config,
		mirror: l.mirror,
	}
}

// Category returns the logger name used as the mirror category.
func (l *Logger) Category() string {
	return l.zap.Name()
}

// Mirror returns the span mirror, or nil.
func (l *Logger) Mirror() *Mirror {
	return l.mirror
}

// Enabled returns true if the given level is enabled.
func (l *Logger) Enabled(level zapcore.Level) bool {
	return l.zap.Core().Enabled(level)
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	err := l.zap.Sync()
	// Ignore sync errors on stdout/stderr (common on Linux)
	if err != nil && isStdoutSyncError(err) {
		return nil
	}
	return err
}

// Underlying returns the underlying zap.Logger.
// Useful when integrating with libraries that require a *zap.Logger.
// Entries written through it bypass the mirror.
func (l *Logger) Underlying() *zap.Logger {
	return l.zap
}

// isStdoutSyncError checks if error is harmless stdout/stderr sync error.
// On Linux, syncing stdout/stderr returns EINVAL or ENOTTY which are safe to ignore.
func isStdoutSyncError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EINVAL || errno == syscall.ENOTTY
	}
	return false
}
