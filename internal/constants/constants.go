// Package constants defines shared configuration constants.
package constants

var (
	ConfigFile = "config.yaml"

	DefaultDir = ".resmon"

	// ConfigEnvVar overrides the configuration file location.
	ConfigEnvVar = "RESMON_CONFIG"

	// OutputSuffix is appended to the target name when no output base is given,
	// followed by a YYYYmmdd_HHMMSS stamp.
	OutputSuffix = "_monitor"

	// OutputTimeLayout formats the timestamp part of generated output names.
	OutputTimeLayout = "20060102_150405"

	CSVExtension    = ".csv"
	DuckDBExtension = ".duckdb"
	OTLPExtension   = ".otlp.json"

	// DefaultTelemetryCommand is the macOS privileged power sampler.
	DefaultTelemetryCommand = "powermetrics"

	// DefaultANECores is the Neural Engine size on every Apple Silicon generation so far.
	DefaultANECores = 16
)
