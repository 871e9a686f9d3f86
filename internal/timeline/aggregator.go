package timeline

import (
	"context"

	"github.com/coral-mesh/resmon/internal/proctree"
	"github.com/coral-mesh/resmon/internal/telemetry"
)

// TreeSource produces process-tree snapshots.
type TreeSource interface {
	Snapshot(ctx context.Context) (proctree.Snapshot, error)
}

// TelemetrySource returns the last published telemetry without blocking.
type TelemetrySource interface {
	Latest() telemetry.State
}

// Aggregator merges one snapshot with the latest telemetry per tick.
type Aggregator struct {
	timeline  *Timeline
	tree      TreeSource
	telemetry TelemetrySource
}

// NewAggregator creates an aggregator writing into tl. telem may be nil, in
// which case every telemetry field is unavailable.
func NewAggregator(tl *Timeline, tree TreeSource, telem TelemetrySource) *Aggregator {
	return &Aggregator{timeline: tl, tree: tree, telemetry: telem}
}

// Timeline returns the buffer the aggregator writes into.
func (a *Aggregator) Timeline() *Timeline {
	return a.timeline
}

// Tick takes a snapshot, merges it with the latest telemetry and appends the
// result. When the target is gone no sample is appended and the error wraps
// proctree.ErrTargetGone.
func (a *Aggregator) Tick(ctx context.Context) (Sample, error) {
	snap, err := a.tree.Snapshot(ctx)
	if err != nil {
		return Sample{}, err
	}

	var st telemetry.State
	if a.telemetry != nil {
		st = a.telemetry.Latest()
	}
	return a.timeline.Append(Merge(snap, st))
}

// Merge builds a sample from a snapshot and a telemetry state. Telemetry
// readings are carried verbatim, including unavailable ones.
func Merge(snap proctree.Snapshot, st telemetry.State) Sample {
	return Sample{
		Timestamp:        snap.TakenAt,
		MemoryBytes:      snap.MemoryBytes,
		CPUPercent:       snap.CPUPercent,
		Threads:          snap.Threads,
		SwapBytes:        snap.SwapBytes,
		Pressure:         snap.Pressure,
		Processes:        len(snap.PIDs),
		GPUActivePercent: st.GPUActivePercent,
		GPUPowerWatts:    st.GPUPowerWatts,
		ANEPowerWatts:    st.ANEPowerWatts,
	}
}
