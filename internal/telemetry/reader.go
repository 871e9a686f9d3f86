package telemetry

import (
	"bufio"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/resmon/internal/constants"
	rerrors "github.com/coral-mesh/resmon/internal/errors"
)

// Reader owns the telemetry subprocess for one session.
//
// Launch failure, or an exit before the first block of the first launch,
// makes telemetry unavailable for the rest of the session. A later unexpected
// exit is retried maxRestarts times before giving up.
type Reader struct {
	launcher      Launcher
	cell          *Cell
	logger        zerolog.Logger
	maxRestarts   int
	maxBlockLines int
	now           func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	current Process
}

// Option configures a Reader.
type Option func(*Reader)

// WithMaxRestarts sets the restart budget after an unexpected exit.
func WithMaxRestarts(n int) Option {
	return func(r *Reader) { r.maxRestarts = n }
}

// WithClock overrides time.Now for publication timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reader) { r.now = now }
}

// NewReader creates a reader; nothing runs until Start.
func NewReader(launcher Launcher, logger zerolog.Logger, opts ...Option) *Reader {
	r := &Reader{
		launcher:      launcher,
		cell:          NewCell(unavailableState(State{}, StatusStarting, "")),
		logger:        logger.With().Str("component", "telemetry").Logger(),
		maxRestarts:   constants.DefaultTelemetryRestarts,
		maxBlockLines: constants.MaxTelemetryBlockLines,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the subprocess and its reader goroutine. A launch failure
// is recorded in the published state, never returned. Start is a no-op when
// called more than once.
func (r *Reader) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	proc, err := r.launcher.Launch(runCtx)
	if err != nil {
		r.markUnavailable(fmt.Sprintf("launch failed: %v", err))
		close(r.done)
		return
	}

	r.current = proc
	r.logger.Info().Msg("Telemetry stream started")
	go r.run(runCtx, proc)
}

// Latest returns the most recently published state without blocking.
func (r *Reader) Latest() State {
	return r.cell.Load()
}

// Stop terminates the subprocess and joins the reader goroutine. When ctx
// expires first the process is killed and a shutdown_timeout error is
// returned; the goroutine is left to exit on its own.
func (r *Reader) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if done == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	r.mu.Lock()
	proc := r.current
	r.mu.Unlock()
	if proc != nil {
		if err := proc.Kill(); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to kill telemetry process")
		}
	}
	r.logger.Warn().Str("code", string(rerrors.CodeShutdownTimeout)).Msg("Telemetry reader did not stop in time, process killed")
	return rerrors.Wrap(rerrors.CodeShutdownTimeout, ctx.Err(), "telemetry reader did not stop")
}

func (r *Reader) run(ctx context.Context, proc Process) {
	defer close(r.done)

	restarts := 0
	for {
		blocks := r.consume(ctx, proc)
		waitErr := proc.Wait()

		if ctx.Err() != nil {
			prev := r.cell.Load()
			if prev.Status != StatusUnavailable {
				prev.Status = StatusStopped
				r.cell.Store(prev)
			}
			r.logger.Debug().Msg("Telemetry stream stopped")
			return
		}

		detail := exitDetail(waitErr, proc.Diagnostics())

		if restarts == 0 && blocks == 0 && r.cell.Load().Blocks == 0 {
			r.markUnavailable("exited before producing data: " + detail)
			return
		}

		if restarts >= r.maxRestarts {
			r.markUnavailable("stream exited: " + detail)
			return
		}

		restarts++
		r.logger.Warn().
			Str("exit", detail).
			Int("restart", restarts).
			Msg("Telemetry stream exited unexpectedly, restarting")

		next, err := r.launcher.Launch(ctx)
		if err != nil {
			r.markUnavailable(fmt.Sprintf("restart failed: %v", err))
			return
		}

		r.mu.Lock()
		r.current = next
		r.mu.Unlock()

		st := r.cell.Load()
		st.Restarts = restarts
		r.cell.Store(st)
		proc = next
	}
}

// consume reads proc's output until EOF and returns the number of blocks published.
func (r *Reader) consume(ctx context.Context, proc Process) int {
	scanner := bufio.NewScanner(proc.Stdout())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	acc := NewAccumulator(r.maxBlockLines)

	published := 0
	for scanner.Scan() {
		if lines, ok := acc.Feed(scanner.Text()); ok {
			r.publish(ParseBlock(lines))
			published++
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		// Nobody drains stdout from here on; a live process would block on
		// the full pipe and Wait would never return.
		r.logger.Warn().Err(err).Msg("Telemetry stream read error, killing process")
		if err := proc.Kill(); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to kill telemetry process")
		}
		return published
	}

	// A trailing block cut short by cancellation is discarded; one ended by
	// a clean EOF counts if it carried any field.
	if lines, ok := acc.Flush(); ok && ctx.Err() == nil {
		if b := ParseBlock(lines); b.Fields() > 0 {
			r.publish(b)
			published++
		}
	}

	return published
}

func (r *Reader) publish(b Block) {
	prev := r.cell.Load()
	r.cell.Store(State{
		GPUActivePercent: b.GPUActivePercent,
		GPUPowerWatts:    b.GPUPowerWatts,
		ANEPowerWatts:    b.ANEPowerWatts,
		UpdatedAt:        r.now(),
		Blocks:           prev.Blocks + 1,
		Restarts:         prev.Restarts,
		Status:           StatusStreaming,
	})

	if prev.Blocks == 0 {
		r.logger.Info().
			Str("gpu_active", b.GPUActivePercent.String()).
			Str("gpu_watts", b.GPUPowerWatts.String()).
			Str("ane_watts", b.ANEPowerWatts.String()).
			Msg("First telemetry block received")
	}
}

func (r *Reader) markUnavailable(detail string) {
	r.cell.Store(unavailableState(r.cell.Load(), StatusUnavailable, detail))
	r.logger.Warn().
		Str("code", string(rerrors.CodeTelemetryUnavailable)).
		Str("detail", detail).
		Msg("Hardware telemetry unavailable for the rest of the session")
}

func exitDetail(waitErr error, diag string) string {
	detail := "exit status 0"
	if waitErr != nil {
		detail = waitErr.Error()
	}
	if diag != "" {
		detail += ": " + diag
	}
	return detail
}

// Disabled is a telemetry source that never produces readings.
type Disabled struct {
	reason string
}

// NewDisabled returns a source reporting StatusDisabled with reason.
func NewDisabled(reason string) *Disabled {
	return &Disabled{reason: reason}
}

// Start implements the session's telemetry source contract.
func (d *Disabled) Start(context.Context) {}

// Latest returns an all-unavailable state.
func (d *Disabled) Latest() State {
	return unavailableState(State{}, StatusDisabled, d.reason)
}

// Stop implements the session's telemetry source contract.
func (d *Disabled) Stop(context.Context) error { return nil }
