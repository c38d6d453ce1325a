// Package config provides layered configuration loading for telemetrybridge.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// DefaultEnvPrefix is the environment prefix used by the bridge.
	DefaultEnvPrefix = "BRIDGE_"

	// envNestingSeparator separates nested keys in environment variable names.
	envNestingSeparator = "__"
)

// Load layers a YAML file and prefixed environment variables over the values
// already present in out, then unmarshals the result into out.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (BRIDGE_TELEMETRY__EXPORTER, BRIDGE_LOGGING__FORMAT, ...)
//  2. YAML config file at path (skipped when path is empty or missing)
//  3. Values already set in out (defaults)
//
// # Environment Variable Mapping
//
// The prefix is stripped, the remainder is lowercased and double underscores
// become key separators. Single underscores are kept inside field names:
//
//	BRIDGE_TELEMETRY__EXPORTER              -> telemetry.exporter
//	BRIDGE_TELEMETRY__SAMPLING__RATE        -> telemetry.sampling.rate
//	BRIDGE_TELEMETRY__SHUTDOWN__TIMEOUT     -> telemetry.shutdown.timeout
//	BRIDGE_LOGGING__OUTPUT__OTEL            -> logging.output.otel
//
// # Example
//
//	cfg := bridge.NewDefaultConfig()
//	if err := config.Load("/etc/orders/bridge.yaml", config.DefaultEnvPrefix, cfg); err != nil {
//	    log.Fatal(err)
//	}
func Load(path, envPrefix string, out any) error {
	if out == nil {
		return errors.New("config target cannot be nil")
	}

	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// Missing file falls through to env and defaults.
		case err != nil:
			return err
		default:
			// Use rawbytes provider to avoid re-opening the file
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		}
	}

	if envPrefix != "" {
		if err := k.Load(env.Provider(envPrefix, ".", EnvKeyTransformer(envPrefix)), nil); err != nil {
			return fmt.Errorf("failed to load environment variables: %w", err)
		}
	}

	if err := k.Unmarshal("", out); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return nil
}

// EnvKeyTransformer maps PREFIX_SECTION__FIELD_NAME to section.field_name.
func EnvKeyTransformer(prefix string) func(string) string {
	return func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, prefix))
		return strings.ReplaceAll(key, envNestingSeparator, ".")
	}
}

// readConfigFile reads a config file after checking it is a regular file
// within the size limit. The file is opened once to avoid a TOCTOU race.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("config path %s is not a regular file", path)
	}

	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}
