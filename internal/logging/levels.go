package logging

import (
	"go.uber.org/zap/zapcore"
)

// TraceLevel is a custom level below Debug for ultra-verbose logging.
// Value: -2 (Debug is -1, Info is 0)
const TraceLevel = zapcore.Level(-2)

// Severity names carried by mirrored span events.
const (
	SeverityTrace       = "Trace"
	SeverityDebug       = "Debug"
	SeverityInformation = "Information"
	SeverityWarning     = "Warning"
	SeverityError       = "Error"
	SeverityCritical    = "Critical"
)

// LevelFromString parses a string into a zapcore.Level, supporting "trace".
func LevelFromString(level string) (zapcore.Level, error) {
	if level == "trace" {
		return TraceLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}

// SeverityName maps a zap level onto the severity vocabulary used in span
// events. Levels above error all map to Critical.
func SeverityName(lvl zapcore.Level) string {
	switch {
	case lvl <= TraceLevel:
		return SeverityTrace
	case lvl == zapcore.DebugLevel:
		return SeverityDebug
	case lvl == zapcore.InfoLevel:
		return SeverityInformation
	case lvl == zapcore.WarnLevel:
		return SeverityWarning
	case lvl == zapcore.ErrorLevel:
		return SeverityError
	default:
		return SeverityCritical
	}
}
