package config

import "time"

// SchemaVersion is the configuration schema version.
const SchemaVersion = "1"

// Config represents ~/.resmon/config.yaml merged with environment overrides.
type Config struct {
	Version     string            `yaml:"version"`
	Target      TargetConfig      `yaml:"target"`
	Sampling    SamplingConfig    `yaml:"sampling"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Annotations AnnotationsConfig `yaml:"annotations"`
	Output      OutputConfig      `yaml:"output"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// TargetConfig identifies the observed process.
// PID wins over Name when both are set.
type TargetConfig struct {
	PID  int32  `yaml:"pid,omitempty" env:"RESMON_PID"`
	Name string `yaml:"name,omitempty" env:"RESMON_TARGET"`
	// Wait polls discovery until a process matching Name appears.
	Wait bool `yaml:"wait" env:"RESMON_WAIT"`
}

// SamplingConfig controls the cadence loop.
type SamplingConfig struct {
	Interval time.Duration `yaml:"interval" env:"RESMON_INTERVAL"`
	// Duration bounds the session; zero means until interrupted or target exit.
	Duration      time.Duration `yaml:"duration,omitempty" env:"RESMON_DURATION"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace" env:"RESMON_SHUTDOWN_GRACE"`
}

// TelemetryConfig controls the privileged powermetrics stream.
type TelemetryConfig struct {
	Enabled     bool          `yaml:"enabled" env:"RESMON_TELEMETRY_ENABLED"`
	Command     string        `yaml:"command" env:"RESMON_TELEMETRY_COMMAND"`
	Args        []string      `yaml:"args,omitempty" env:"RESMON_TELEMETRY_ARGS"`
	Interval    time.Duration `yaml:"interval" env:"RESMON_TELEMETRY_INTERVAL"`
	MaxRestarts int           `yaml:"max_restarts" env:"RESMON_TELEMETRY_MAX_RESTARTS"`
}

// AnnotationsConfig controls the operator annotation prompt.
type AnnotationsConfig struct {
	Enabled     bool   `yaml:"enabled" env:"RESMON_ANNOTATIONS_ENABLED"`
	Prompt      string `yaml:"prompt"`
	HistoryFile string `yaml:"history_file,omitempty" env:"RESMON_ANNOTATIONS_HISTORY"`
}

// OutputConfig selects the export collaborators run after finalization.
type OutputConfig struct {
	Dir  string `yaml:"dir" env:"RESMON_OUTPUT_DIR"`
	Base string `yaml:"base,omitempty" env:"RESMON_OUTPUT_BASE"`

	CSV    bool `yaml:"csv" env:"RESMON_OUTPUT_CSV"`
	DuckDB bool `yaml:"duckdb" env:"RESMON_OUTPUT_DUCKDB"`
	OTLP   bool `yaml:"otlp" env:"RESMON_OUTPUT_OTLP"`
	Chart  bool `yaml:"chart" env:"RESMON_OUTPUT_CHART"`
	// Status prints one status line per sample while recording.
	Status bool `yaml:"status" env:"RESMON_OUTPUT_STATUS"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"RESMON_LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"RESMON_LOG_PRETTY"`
	File   string `yaml:"file,omitempty" env:"RESMON_LOG_FILE"`
}
