// Package proctree samples the resource usage of a target process and all of
// its live descendants.
package proctree

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	rerrors "github.com/coral-mesh/resmon/internal/errors"
)

var (
	// ErrTargetGone is returned by Snapshot when the target process no longer exists.
	ErrTargetGone = errors.New("target process exited")
	// ErrNoProcess is returned by a Table for a PID that does not exist.
	ErrNoProcess = errors.New("no such process")
)

// Stat is the per-process resource reading summed across the tree.
type Stat struct {
	RSSBytes   uint64
	CPUPercent float64
}

// Table is the view of the OS process table used by the sampler.
type Table interface {
	Exists(ctx context.Context, pid int32) (bool, error)
	Children(ctx context.Context, pid int32) ([]int32, error)
	Stat(ctx context.Context, pid int32) (Stat, error)
	Threads(ctx context.Context, pid int32) (int32, error)
	// Forget drops cached state for every PID not in keep.
	Forget(keep map[int32]struct{})
}

// SystemProbe reads host-wide memory metrics.
type SystemProbe interface {
	SwapUsed(ctx context.Context) (uint64, error)
	Pressure(ctx context.Context) (Pressure, error)
}

// Snapshot is one point-in-time reading of the target tree.
type Snapshot struct {
	TargetPID   int32
	PIDs        []int32
	MemoryBytes uint64
	CPUPercent  float64
	Threads     int32
	SwapBytes   uint64
	Pressure    Pressure
	// Vanished counts descendants that exited between discovery and read.
	Vanished int
	TakenAt  time.Time
}

// Partial reports whether descendants were skipped.
func (s Snapshot) Partial() bool {
	return s.Vanished > 0
}

// Sampler takes snapshots of one target process tree.
type Sampler struct {
	pid    int32
	table  Table
	system SystemProbe
	logger zerolog.Logger
	now    func() time.Time
}

// NewSampler creates a sampler for pid. system may be nil, in which case swap
// and pressure are reported as zero and unknown.
func NewSampler(pid int32, table Table, system SystemProbe, logger zerolog.Logger) *Sampler {
	return &Sampler{
		pid:    pid,
		table:  table,
		system: system,
		logger: logger.With().Str("component", "proctree").Int32("pid", pid).Logger(),
		now:    time.Now,
	}
}

// PID returns the target process identifier.
func (s *Sampler) PID() int32 {
	return s.pid
}

// Exists reports whether the target process is alive.
func (s *Sampler) Exists(ctx context.Context) (bool, error) {
	return s.table.Exists(ctx, s.pid)
}

// Snapshot reads the target and every live descendant and sums their memory
// and CPU. Descendants that disappear mid-read are skipped. When the target
// itself is gone the returned error wraps ErrTargetGone.
func (s *Sampler) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{TargetPID: s.pid, Pressure: PressureUnknown}

	target, err := s.table.Stat(ctx, s.pid)
	if err != nil {
		return snap, s.targetError(ctx, err)
	}
	threads, err := s.table.Threads(ctx, s.pid)
	if err != nil {
		return snap, s.targetError(ctx, err)
	}

	snap.PIDs = append(snap.PIDs, s.pid)
	snap.MemoryBytes = target.RSSBytes
	snap.CPUPercent = target.CPUPercent
	snap.Threads = threads

	seen := map[int32]struct{}{s.pid: {}}
	queue := s.children(ctx, s.pid, seen)
	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]

		st, err := s.table.Stat(ctx, pid)
		if err != nil {
			snap.Vanished++
			s.logger.Trace().
				Int32("child", pid).
				Str("code", string(rerrors.CodePartialTreeRead)).
				Err(err).
				Msg("Descendant vanished during snapshot")
			continue
		}
		snap.PIDs = append(snap.PIDs, pid)
		snap.MemoryBytes += st.RSSBytes
		snap.CPUPercent += st.CPUPercent

		queue = append(queue, s.children(ctx, pid, seen)...)
	}

	s.table.Forget(seen)
	s.readSystem(ctx, &snap)
	snap.TakenAt = s.now()

	return snap, nil
}

// children returns the unseen children of pid and marks them seen. Errors are
// treated as an empty child list.
func (s *Sampler) children(ctx context.Context, pid int32, seen map[int32]struct{}) []int32 {
	kids, err := s.table.Children(ctx, pid)
	if err != nil {
		s.logger.Trace().Int32("parent", pid).Err(err).Msg("Failed to list children")
		return nil
	}

	out := kids[:0:0]
	for _, kid := range kids {
		if _, ok := seen[kid]; ok {
			continue
		}
		seen[kid] = struct{}{}
		out = append(out, kid)
	}
	return out
}

func (s *Sampler) readSystem(ctx context.Context, snap *Snapshot) {
	if s.system == nil {
		return
	}
	if swap, err := s.system.SwapUsed(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to read swap usage")
	} else {
		snap.SwapBytes = swap
	}
	if p, err := s.system.Pressure(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to read memory pressure")
	} else {
		snap.Pressure = p
	}
}

func (s *Sampler) targetError(ctx context.Context, readErr error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	alive, err := s.table.Exists(ctx, s.pid)
	if errors.Is(readErr, ErrNoProcess) || (err == nil && !alive) {
		return rerrors.Wrap(rerrors.CodeTargetLost, ErrTargetGone, fmt.Sprintf("process %d", s.pid))
	}
	return fmt.Errorf("failed to read target process %d: %w", s.pid, readErr)
}
