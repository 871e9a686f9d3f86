package constants

import "time"

// Sampling defaults.
const (
	// DefaultSampleInterval is the cadence between ticks.
	DefaultSampleInterval = 2 * time.Second

	// DefaultShutdownGrace bounds how long STOPPING waits for each concurrent activity.
	DefaultShutdownGrace = 3 * time.Second

	// DefaultTargetWaitPoll is how often discovery re-scans while waiting for a target.
	DefaultTargetWaitPoll = time.Second

	// MaxConsecutiveTickErrors fails a running session whose target can no
	// longer be read although it still exists.
	MaxConsecutiveTickErrors = 5
)

// Telemetry defaults.
const (
	// DefaultTelemetryInterval is passed to powermetrics as -i in milliseconds.
	DefaultTelemetryInterval = time.Second

	// DefaultTelemetryRestarts is the number of restarts after an unexpected exit.
	DefaultTelemetryRestarts = 1

	// MaxTelemetryBlockLines drops a block that never terminates.
	MaxTelemetryBlockLines = 10000

	// TelemetryStderrTail is how many bytes of stderr are kept for diagnostics.
	TelemetryStderrTail = 4096
)

// Presentation defaults.
const (
	DefaultChartWidth  = 72
	DefaultChartHeight = 6
)
