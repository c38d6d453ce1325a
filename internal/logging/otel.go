package logging

import (
	"fmt"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

const defaultScopeName = "github.com/fyrsmithlabs/telemetrybridge"

// newDualCore creates core with stdout and/or OTEL outputs plus any extra
// cores supplied through options.
func newDualCore(cfg *Config, otelProvider log.LoggerProvider, o loggerOptions) (zapcore.Core, error) {
	cores := make([]zapcore.Core, 0, 2+len(o.cores))

	if cfg.Output.Stdout {
		redactor, err := NewRedactor(cfg.Redaction)
		if err != nil {
			return nil, fmt.Errorf("failed to create redacting encoder: %w", err)
		}
		writer := o.writer
		if writer == nil {
			writer = os.Stdout
		}
		encoder := NewRedactingEncoder(newEncoder(cfg.Format), redactor)
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(writer), cfg.Level))
	}

	if cfg.Output.OTEL && otelProvider != nil {
		otelCore := otelzap.NewCore(o.scopeName,
			otelzap.WithLoggerProvider(otelProvider),
		)
		cores = append(cores, &levelFilterCore{Core: otelCore, minLevel: cfg.Level, hasMin: true})
	}

	cores = append(cores, o.cores...)

	if len(cores) == 0 {
		return nil, fmt.Errorf("at least one output must be enabled and available")
	}

	var core zapcore.Core
	if len(cores) == 1 {
		core = cores[0]
	} else {
		core = zapcore.NewTee(cores...)
	}

	// Wrap with sampling if enabled
	core = newSampledCore(core, cfg.Sampling)

	return core, nil
}
