// Package main implements bridge-demo, a small service host that exercises
// the telemetry bridge end to end: an instrumented HTTP API and a periodic
// background worker.
package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/telemetrybridge/pkg/bridge"
)

var (
	// configFile is the optional bridge YAML configuration.
	configFile string
	// serviceName is reported as service.name.
	serviceName string
	// downstreamURL is the base URL probed by /ping and the worker.
	downstreamURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bridge-demo",
	Short: "Demo host for the telemetry bridge",
	Long: `bridge-demo runs an HTTP API or a background worker with tracing, metrics
and logs wired through the telemetry bridge.

The collector endpoint is resolved from the environment:
  APP_ENVIRONMENT / GO_ENVIRONMENT   Development, Dev or Local selects the local HTTP collector
  OTEL_EXPORTER_OTLP_ENDPOINT        collector base URL override
  OTEL_EXPORTER_OTLP_PROTOCOL        grpc or http/protobuf (development only)`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "bridge YAML config file")
	rootCmd.PersistentFlags().StringVar(&serviceName, "service", "bridge-demo", "service name")
	rootCmd.PersistentFlags().StringVar(&downstreamURL, "downstream", "", "base URL of a downstream service to probe")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
}

// installBridge installs the bridge for the configured service.
func installBridge(ctx context.Context) (*bridge.Bridge, error) {
	opts := []bridge.Option{bridge.WithConfigFile(configFile)}
	if version != "dev" {
		opts = append(opts, bridge.WithServiceVersion(version))
	}
	return bridge.Install(ctx, serviceName, opts...)
}

// shutdownBridge flushes telemetry with a fresh deadline, since the run
// context is already cancelled by the time it is called.
func shutdownBridge(b *bridge.Bridge) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return b.Shutdown(ctx)
}
