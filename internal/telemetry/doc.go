// Package telemetry configures OpenTelemetry tracing for scan runs.
//
// Init selects an exporter (none, stdout or otlp over gRPC) and installs it
// as the global tracer provider. StartSpan and EndSpan are thin helpers used
// by the scan orchestrator to open one span per lifecycle phase.
package telemetry
