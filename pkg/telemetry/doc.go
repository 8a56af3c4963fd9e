// Package telemetry wires the observability stack: zerolog logging,
// Prometheus metrics, and OpenTelemetry tracing, configured from one
// Config struct.
package telemetry
