// Package telemetry installs the OpenTelemetry tracer and meter providers
// that export hierctx spans and metrics over OTLP.
//
// Telemetry is off by default. When enabled, exporter failures degrade the
// instance instead of failing startup: spans and metrics are then dropped
// and Health reports Degraded.
package telemetry
