package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/telemetrybridge/internal/config"
	"github.com/fyrsmithlabs/telemetrybridge/internal/logging"
	"github.com/fyrsmithlabs/telemetrybridge/internal/telemetry"
)

// Config is the complete bridge configuration.
//
// Load order: defaults, then the YAML file, then BRIDGE_* environment
// variables. See config.Load for the key mapping.
type Config struct {
	Telemetry *telemetry.Config `koanf:"telemetry"`
	Logging   *logging.Config   `koanf:"logging"`
	Client    ClientConfig      `koanf:"client"`
}

// ClientConfig holds defaults for clients returned by Bridge.HTTPClient.
type ClientConfig struct {
	Timeout      config.Duration `koanf:"timeout"`
	Retries      int             `koanf:"retries"`
	RetryWaitMin config.Duration `koanf:"retry_wait_min"`
	RetryWaitMax config.Duration `koanf:"retry_wait_max"`
}

// NewDefaultConfig returns production defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Telemetry: telemetry.NewDefaultConfig(),
		Logging:   logging.NewDefaultConfig(),
		Client: ClientConfig{
			Timeout:      config.Duration(30 * time.Second),
			RetryWaitMin: config.Duration(100 * time.Millisecond),
			RetryWaitMax: config.Duration(2 * time.Second),
		},
	}
}

// LoadConfig loads configuration from path and the environment over the
// defaults. An empty or missing path uses defaults and environment only.
func LoadConfig(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	if err := config.Load(path, config.DefaultEnvPrefix, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Telemetry == nil || c.Logging == nil {
		return errors.New("telemetry and logging sections are required")
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Client.Retries < 0 {
		return fmt.Errorf("client.retries must be >= 0, got %d", c.Client.Retries)
	}
	if c.Client.RetryWaitMax.Duration() < c.Client.RetryWaitMin.Duration() {
		return fmt.Errorf("client.retry_wait_max must be >= client.retry_wait_min")
	}
	return nil
}
