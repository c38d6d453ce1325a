// Package telemetry provides the OpenTelemetry pipelines behind the bridge.
//
// # Overview
//
// Telemetry owns one tracer, meter and logger provider per process. Each
// pipeline exports to the collector endpoint resolved for its signal by the
// endpoint package, so the transport follows the deployment environment
// instead of hardcoded addresses.
//
// # Usage
//
//	settings, err := telemetry.NewSettings("orders")
//	if err != nil {
//	    return err
//	}
//	tel, err := telemetry.New(ctx, telemetry.NewDefaultConfig(), settings)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
// # Configuration
//
//	telemetry:
//	  exporter: otlp        # otlp | stdout | none
//	  headers:
//	    authorization: "Bearer ..."
//	  sampling:
//	    rate: 1.0
//	  metrics:
//	    enabled: true
//	    export_interval: "15s"
//	  logs:
//	    enabled: true
//	  shutdown:
//	    timeout: "5s"
//
// # Error Handling
//
// Exporter construction failures leave the affected pipeline out and mark the
// instance degraded. Transport errors stay inside the SDK exporters.
//
// # Testing
//
//	tt := telemetry.NewTestTelemetry("orders")
//	_, span := tt.Tracer("test").Start(ctx, "test-span")
//	span.End()
//	tt.AssertSpanExists(t, "test-span")
package telemetry
