package proctree

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shirou/gopsutil/v4/process"
)

type trackedProcess struct {
	proc      *process.Process
	createdAt int64
}

// GopsutilTable reads the live OS process table. It keeps one handle per PID
// so that CPU percentages are computed as deltas between consecutive reads.
type GopsutilTable struct {
	mu    sync.Mutex
	procs map[int32]*trackedProcess
}

// NewGopsutilTable creates an empty table.
func NewGopsutilTable() *GopsutilTable {
	return &GopsutilTable{procs: make(map[int32]*trackedProcess)}
}

// Exists reports whether pid refers to a live process.
func (t *GopsutilTable) Exists(ctx context.Context, pid int32) (bool, error) {
	return process.PidExistsWithContext(ctx, pid)
}

// Children returns the direct children of pid.
func (t *GopsutilTable) Children(ctx context.Context, pid int32) ([]int32, error) {
	p, err := t.handle(ctx, pid)
	if err != nil {
		return nil, err
	}
	kids, err := p.ChildrenWithContext(ctx)
	if err != nil {
		if errors.Is(err, process.ErrorNoChildren) {
			return nil, nil
		}
		return nil, err
	}

	pids := make([]int32, 0, len(kids))
	for _, kid := range kids {
		pids = append(pids, kid.Pid)
	}
	return pids, nil
}

// Stat returns RSS and CPU utilization since the previous Stat of the same
// process. The first read of a process reports 0% CPU.
func (t *GopsutilTable) Stat(ctx context.Context, pid int32) (Stat, error) {
	p, err := t.handle(ctx, pid)
	if err != nil {
		return Stat{}, err
	}

	memInfo, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return Stat{}, t.readError(ctx, pid, err)
	}
	if memInfo == nil {
		return Stat{}, fmt.Errorf("no memory info for process %d", pid)
	}

	cpuPercent, err := p.PercentWithContext(ctx, 0)
	if err != nil {
		return Stat{}, t.readError(ctx, pid, err)
	}

	return Stat{RSSBytes: memInfo.RSS, CPUPercent: cpuPercent}, nil
}

// Threads returns the thread count of pid.
func (t *GopsutilTable) Threads(ctx context.Context, pid int32) (int32, error) {
	p, err := t.handle(ctx, pid)
	if err != nil {
		return 0, err
	}
	n, err := p.NumThreadsWithContext(ctx)
	if err != nil {
		return 0, t.readError(ctx, pid, err)
	}
	return n, nil
}

// Forget drops handles for PIDs outside keep.
func (t *GopsutilTable) Forget(keep map[int32]struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for pid := range t.procs {
		if _, ok := keep[pid]; !ok {
			delete(t.procs, pid)
		}
	}
}

// handle returns the cached process for pid, replacing it when the PID has
// been reused by a different process.
func (t *GopsutilTable) handle(ctx context.Context, pid int32) (*process.Process, error) {
	t.mu.Lock()
	tracked, ok := t.procs[pid]
	t.mu.Unlock()

	if ok {
		created, err := tracked.proc.CreateTimeWithContext(ctx)
		if err == nil && created == tracked.createdAt {
			return tracked.proc, nil
		}
	}

	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return nil, fmt.Errorf("process %d: %w", pid, ErrNoProcess)
		}
		return nil, fmt.Errorf("failed to open process %d: %w", pid, err)
	}
	created, err := p.CreateTimeWithContext(ctx)
	if err != nil {
		return nil, t.readError(ctx, pid, err)
	}

	t.mu.Lock()
	t.procs[pid] = &trackedProcess{proc: p, createdAt: created}
	t.mu.Unlock()
	return p, nil
}

func (t *GopsutilTable) readError(ctx context.Context, pid int32, err error) error {
	if alive, existsErr := process.PidExistsWithContext(ctx, pid); existsErr == nil && !alive {
		return fmt.Errorf("process %d: %w", pid, ErrNoProcess)
	}
	return fmt.Errorf("failed to read process %d: %w", pid, err)
}
