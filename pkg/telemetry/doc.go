// Package telemetry provides observability instrumentation for genie-forge.
//
// It integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry) and metrics (Prometheus) behind a single Telemetry value
// that the CLI builds at startup and passes down.
//
// # Usage
//
//	tel, err := telemetry.NewTelemetry(telemetry.NewConfig(telemetry.Options{
//	    Version:     version,
//	    Environment: env,
//	    MetricsFile: "metrics.prom",
//	}))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// Library packages take a zerolog.Logger; the CLI hands them
// tel.Logger.Zerolog(), already tagged with the environment. Logs go to
// stderr with secrets masked.
//
// # Tracing
//
// Reconciler operations and remote API calls each start a span, and
// StartOperation tags the context logger with the operation name and trace
// id. Spans are exported over OTLP/gRPC, printed to stdout, or dropped,
// depending on TracingConfig.Exporter.
//
// # Metrics
//
// The CLI runs for seconds, so nothing scrapes it. Metrics accumulate in a
// private registry and are written in the Prometheus text format on
// Shutdown when MetricsConfig.TextfilePath is set. All recording methods
// are no-ops on a nil or disabled *Metrics.
package telemetry
