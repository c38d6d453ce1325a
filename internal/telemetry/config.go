package telemetry

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/telemetrybridge/internal/config"
)

// Exporter kinds.
const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

// Config holds exporter pipeline configuration.
//
// The collector endpoint and protocol are not configured here; they are
// resolved from the deployment environment per signal.
type Config struct {
	Exporter      string                   `koanf:"exporter"`
	Headers       map[string]config.Secret `koanf:"headers"`
	TLSSkipVerify bool                     `koanf:"tls_skip_verify"` // https endpoints only
	Sampling      SamplingConfig           `koanf:"sampling"`
	Metrics       MetricsConfig            `koanf:"metrics"`
	Logs          LogsConfig               `koanf:"logs"`
	Shutdown      ShutdownConfig           `koanf:"shutdown"`
}

// SamplingConfig controls trace sampling behavior.
type SamplingConfig struct {
	Rate float64 `koanf:"rate"` // 0.0-1.0, default 1.0 (always on)
}

// MetricsConfig controls metrics export.
type MetricsConfig struct {
	Enabled        bool            `koanf:"enabled"`
	ExportInterval config.Duration `koanf:"export_interval"`
}

// LogsConfig controls log record export.
type LogsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// ShutdownConfig controls graceful shutdown behavior.
type ShutdownConfig struct {
	Timeout config.Duration `koanf:"timeout"`
}

// NewDefaultConfig returns production-ready telemetry defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Exporter: ExporterOTLP,
		Sampling: SamplingConfig{
			Rate: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled:        true,
			ExportInterval: config.Duration(15 * time.Second),
		},
		Logs: LogsConfig{
			Enabled: true,
		},
		Shutdown: ShutdownConfig{
			Timeout: config.Duration(5 * time.Second),
		},
	}
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	switch c.Exporter {
	case ExporterOTLP, ExporterStdout, ExporterNone:
	default:
		return fmt.Errorf("exporter must be %q, %q or %q, got %q", ExporterOTLP, ExporterStdout, ExporterNone, c.Exporter)
	}

	for k := range c.Headers {
		if k == "" {
			return fmt.Errorf("header name cannot be empty")
		}
	}

	if c.Sampling.Rate < 0 || c.Sampling.Rate > 1 {
		return fmt.Errorf("sampling.rate must be between 0 and 1, got %f", c.Sampling.Rate)
	}

	if c.Metrics.Enabled && c.Metrics.ExportInterval.Duration() <= 0 {
		return fmt.Errorf("metrics.export_interval must be positive when metrics enabled")
	}

	if c.Shutdown.Timeout.Duration() <= 0 {
		return fmt.Errorf("shutdown.timeout must be positive")
	}

	return nil
}

// headers returns the plain header values for exporter options.
func (c *Config) headers() map[string]string {
	if len(c.Headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(c.Headers))
	for k, v := range c.Headers {
		out[k] = v.Value()
	}
	return out
}
