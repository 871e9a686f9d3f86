// Package telemetry reads system-wide GPU and Neural Engine metrics from the
// privileged macOS powermetrics stream and publishes the latest values
// through a lock-free cell.
//
// The values are host-wide observations. They are correlated in time with the
// observed process but never attributed to it.
package telemetry

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Reading is one metric value. An unavailable reading is distinct from zero
// and is excluded from summary statistics.
type Reading struct {
	Value     float64
	Available bool
}

// Available wraps a measured value.
func Available(v float64) Reading {
	return Reading{Value: v, Available: true}
}

// Unavailable returns the "no reading obtained" marker.
func Unavailable() Reading {
	return Reading{}
}

// String renders the value with two decimals, or "n/a".
func (r Reading) String() string {
	if !r.Available {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", r.Value)
}

// Status describes the health of the telemetry stream.
type Status string

const (
	// StatusStarting means the subprocess runs but has not completed a block yet.
	StatusStarting Status = "starting"
	// StatusStreaming means at least one block has been published.
	StatusStreaming Status = "streaming"
	// StatusUnavailable is permanent for the session: launch failed or the
	// stream died after its restart budget was spent.
	StatusUnavailable Status = "unavailable"
	// StatusStopped is set after a requested shutdown.
	StatusStopped Status = "stopped"
	// StatusDisabled means telemetry was turned off by configuration.
	StatusDisabled Status = "disabled"
)

// State is the latest published telemetry.
type State struct {
	GPUActivePercent Reading
	GPUPowerWatts    Reading
	ANEPowerWatts    Reading

	// UpdatedAt is when the last block was published; zero before the first.
	UpdatedAt time.Time
	Blocks    uint64
	Restarts  int
	Status    Status
	// Detail explains an unavailable or disabled status.
	Detail string
}

// Fresh reports whether a block was published within maxAge of now.
func (s State) Fresh(now time.Time, maxAge time.Duration) bool {
	if s.UpdatedAt.IsZero() {
		return false
	}
	return now.Sub(s.UpdatedAt) <= maxAge
}

// unavailableState keeps counters but drops every reading.
func unavailableState(prev State, status Status, detail string) State {
	return State{
		GPUActivePercent: Unavailable(),
		GPUPowerWatts:    Unavailable(),
		ANEPowerWatts:    Unavailable(),
		UpdatedAt:        prev.UpdatedAt,
		Blocks:           prev.Blocks,
		Restarts:         prev.Restarts,
		Status:           status,
		Detail:           detail,
	}
}

// Cell holds the latest State. It has one writer (the stream reader); readers
// never block and always see a complete State.
type Cell struct {
	p atomic.Pointer[State]
}

// NewCell returns a cell holding initial.
func NewCell(initial State) *Cell {
	c := &Cell{}
	c.Store(initial)
	return c
}

// Load returns the latest State.
func (c *Cell) Load() State {
	if s := c.p.Load(); s != nil {
		return *s
	}
	return State{Status: StatusStarting}
}

// Store publishes s.
func (c *Cell) Store(s State) {
	c.p.Store(&s)
}
