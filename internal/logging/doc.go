// Package logging provides structured logging with OpenTelemetry integration.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Dual output (stdout + OpenTelemetry logs via otelzap)
//   - Ambient scopes whose fields are added to every entry (BeginScope)
//   - A span mirror that copies each entry onto the active span as a "log" event
//   - Secret redaction shared by the sinks and the mirror
//   - Level-aware sampling (errors never sampled)
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, loggerProvider,
//	    logging.WithMirror(logging.NewMirror("orders")),
//	)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx, end := logging.BeginScope(ctx, zap.String("order_id", id))
//	defer end()
//	logger.Named("orders").Warn(ctx, "stock low", logging.Event(1001, "StockLow"))
//
// # Span Mirror
//
// With a mirror configured, an entry logged while a recording span is in the
// context, under a category starting with the capture prefix, becomes a span
// event named "log" with log.severity, log.category and log.event_id, plus
// log.event_name, log.message, exception.* and log.state.* when present.
// The category is the logger name built with Named. Mirroring never fails the
// log call; recovered failures are counted by the diagnostics metrics.
//
// # Secret Redaction
//
// Secrets are redacted at multiple layers:
//  1. Domain primitives (config.Secret type)
//  2. Field name filtering
//  3. Value pattern matching
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
//	tl.AssertNoSecrets(t)
//
// # Concurrency Safety
//
// Logger and Mirror are safe for concurrent use. Child loggers (With, Named)
// are independent and do not affect parent or siblings.
package logging
