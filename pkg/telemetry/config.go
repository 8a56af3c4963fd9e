package telemetry

import "time"

// Config bundles the observability settings of the CLI.
type Config struct {
	Logging LoggingConfig
	Metrics MetricsConfig
	Tracing TracingConfig
}

// LoggingConfig controls the zerolog output.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string

	// Format is "json" or "console".
	Format string

	// Output is "stdout", "stderr", or a file path.
	Output string
}

// MetricsConfig controls the Prometheus registry.
type MetricsConfig struct {
	Enabled bool

	// Namespace prefixes every metric name.
	Namespace string
}

// TracingConfig controls OpenTelemetry span export.
type TracingConfig struct {
	Enabled bool

	// Exporter is "otlp", "stdout", or "none".
	Exporter string

	// Endpoint is the OTLP collector address, host:port.
	Endpoint string

	// SamplingRate is the head sampling ratio, 0 to 1.
	SamplingRate float64

	// ExportTimeout bounds one export batch.
	ExportTimeout time.Duration
}

// DefaultConfig returns sane local-use defaults: console logs, metrics on,
// tracing off.
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "captura",
		},
		Tracing: TracingConfig{
			Enabled:       false,
			Exporter:      "none",
			SamplingRate:  1.0,
			ExportTimeout: 30 * time.Second,
		},
	}
}
