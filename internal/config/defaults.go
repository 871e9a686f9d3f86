package config

import (
	"github.com/coral-mesh/resmon/internal/constants"
)

// DefaultConfig returns a config with the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: SchemaVersion,
		Sampling: SamplingConfig{
			Interval:      constants.DefaultSampleInterval,
			ShutdownGrace: constants.DefaultShutdownGrace,
		},
		Telemetry: TelemetryConfig{
			Enabled:     true,
			Command:     constants.DefaultTelemetryCommand,
			Interval:    constants.DefaultTelemetryInterval,
			MaxRestarts: constants.DefaultTelemetryRestarts,
		},
		Annotations: AnnotationsConfig{
			Enabled: true,
			Prompt:  "annotate> ",
		},
		Output: OutputConfig{
			Dir:    ".",
			CSV:    true,
			DuckDB: true,
			Chart:  true,
			Status: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}
