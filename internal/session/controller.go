// Package session runs one observation session: it owns the cadence loop,
// starts and stops the telemetry and annotation activities, and finalizes the
// timeline.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/resmon/internal/annotate"
	"github.com/coral-mesh/resmon/internal/constants"
	rerrors "github.com/coral-mesh/resmon/internal/errors"
	"github.com/coral-mesh/resmon/internal/proctree"
	"github.com/coral-mesh/resmon/internal/telemetry"
	"github.com/coral-mesh/resmon/internal/timeline"
)

// TreeSampler snapshots the target process tree.
type TreeSampler interface {
	timeline.TreeSource
	Exists(ctx context.Context) (bool, error)
}

// TelemetrySource is a best-effort hardware telemetry activity.
type TelemetrySource interface {
	Start(ctx context.Context)
	Latest() telemetry.State
	Stop(ctx context.Context) error
}

// AnnotationSource delivers operator labels into a sink.
type AnnotationSource interface {
	Start(ctx context.Context, sink annotate.Sink) error
	Stop(ctx context.Context) error
}

// Config holds the cadence settings of a session.
type Config struct {
	Interval time.Duration
	// Duration bounds the RUNNING state; zero means unbounded.
	Duration time.Duration
	// ShutdownGrace bounds the wait for each activity during STOPPING.
	ShutdownGrace time.Duration
}

// Validate checks the cadence settings.
func (c Config) Validate() error {
	switch {
	case c.Interval <= 0:
		return rerrors.Newf(rerrors.CodeConfigInvalid, "sampling interval must be positive, got %s", c.Interval)
	case c.Duration < 0:
		return rerrors.Newf(rerrors.CodeConfigInvalid, "duration must be positive when set, got %s", c.Duration)
	case c.ShutdownGrace <= 0:
		return rerrors.Newf(rerrors.CodeConfigInvalid, "shutdown grace must be positive, got %s", c.ShutdownGrace)
	}
	return nil
}

// Result is the outcome of Run.
type Result struct {
	ID     string
	State  State
	Reason Reason
	// Err is set when State is StateFailed.
	Err error

	TargetPID int32
	Dataset   *timeline.Dataset

	TelemetryStatus telemetry.Status
	TelemetryDetail string
	// Warnings are coded, non-fatal problems for the operator.
	Warnings []error
}

// Option configures a Controller.
type Option func(*Controller)

// WithAnnotations attaches an annotation source.
func WithAnnotations(src AnnotationSource) Option {
	return func(c *Controller) { c.annotations = src }
}

// WithSampleObserver is called from the cadence loop after every appended sample.
func WithSampleObserver(fn func(timeline.Sample)) Option {
	return func(c *Controller) { c.onSample = fn }
}

// WithStateObserver is called after every state transition.
func WithStateObserver(fn func(from, to State, reason Reason)) Option {
	return func(c *Controller) { c.onState = fn }
}

// WithID overrides the generated session identifier.
func WithID(id string) Option {
	return func(c *Controller) { c.id = id }
}

// Controller is the session state machine. Run may be called once.
type Controller struct {
	id          string
	cfg         Config
	pid         int32
	tree        TreeSampler
	telemetry   TelemetrySource
	annotations AnnotationSource
	logger      zerolog.Logger
	onSample    func(timeline.Sample)
	onState     func(from, to State, reason Reason)

	stateMu sync.RWMutex
	state   State
	reason  Reason

	interrupt     chan struct{}
	interruptOnce sync.Once
}

// New creates a controller for the target sampled by tree. telem may be nil
// when telemetry is disabled.
func New(cfg Config, pid int32, tree TreeSampler, telem TelemetrySource, logger zerolog.Logger, opts ...Option) *Controller {
	c := &Controller{
		id:        uuid.NewString(),
		cfg:       cfg,
		pid:       pid,
		tree:      tree,
		telemetry: telem,
		logger:    logger,
		state:     StateInit,
		interrupt: make(chan struct{}),
	}
	if c.telemetry == nil {
		c.telemetry = telemetry.NewDisabled("telemetry disabled")
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "session").Str("session_id", c.id).Logger()
	return c
}

// ID returns the session identifier.
func (c *Controller) ID() string {
	return c.id
}

// State returns the current state.
func (c *Controller) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// Reason returns the stop reason, empty until STOPPING.
func (c *Controller) Reason() Reason {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.reason
}

// Interrupt requests an operator stop. Safe to call from any goroutine, any
// number of times.
func (c *Controller) Interrupt() {
	c.interruptOnce.Do(func() { close(c.interrupt) })
}

// Run executes the session to a terminal state. Cancelling ctx is treated as
// an operator stop. A non-nil error is returned only for StateFailed.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	res := &Result{ID: c.id, TargetPID: c.pid}

	if err := c.cfg.Validate(); err != nil {
		return c.fail(res, err)
	}

	alive, err := c.tree.Exists(ctx)
	if err != nil {
		return c.fail(res, fmt.Errorf("failed to look up process %d: %w", c.pid, err))
	}
	if !alive {
		return c.fail(res, rerrors.Newf(rerrors.CodeTargetNotFound, "process %d not found", c.pid))
	}

	start := time.Now()
	tl := timeline.New(start)
	agg := timeline.NewAggregator(tl, c.tree, c.telemetry)

	// Activities outlive an interrupt of ctx until STOPPING stops them.
	actCtx, cancelActivities := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelActivities()

	c.telemetry.Start(actCtx)
	if c.annotations != nil {
		if err := c.annotations.Start(actCtx, tl); err != nil {
			c.logger.Warn().Err(err).Msg("Annotations unavailable")
			res.Warnings = append(res.Warnings, err)
		}
	}

	if err := c.transition(StateRunning, ReasonNone); err != nil {
		return c.fail(res, err)
	}
	c.logger.Info().
		Int32("pid", c.pid).
		Dur("interval", c.cfg.Interval).
		Dur("duration", c.cfg.Duration).
		Msg("Session running")

	reason, loopErr := c.loop(ctx, agg)
	telem := c.telemetry.Latest()

	if loopErr != nil {
		c.stopActivities(res)
		return c.fail(res, loopErr)
	}

	if err := c.transition(StateStopping, reason); err != nil {
		c.stopActivities(res)
		return c.fail(res, err)
	}
	c.stopActivities(res)

	ds := tl.Finalize(time.Now())
	ds.ID = c.id

	res.Reason = reason
	res.Dataset = ds
	res.TelemetryStatus = telem.Status
	res.TelemetryDetail = telem.Detail
	if telem.Status == telemetry.StatusUnavailable {
		res.Warnings = append(res.Warnings, rerrors.New(rerrors.CodeTelemetryUnavailable, telem.Detail))
	}

	if err := c.transition(StateFinalized, reason); err != nil {
		return c.fail(res, err)
	}
	res.State = StateFinalized

	c.logger.Info().
		Str("reason", string(reason)).
		Int("samples", len(ds.Samples)).
		Int("annotations", len(ds.Annotations)).
		Str("telemetry", string(telem.Status)).
		Msg("Session finalized")
	return res, nil
}

// loop drives the cadence until a stop event. The next tick fires interval
// minus the time spent on the previous tick, or immediately when the tick
// overran.
func (c *Controller) loop(ctx context.Context, agg *timeline.Aggregator) (Reason, error) {
	var deadline <-chan time.Time
	if c.cfg.Duration > 0 {
		timer := time.NewTimer(c.cfg.Duration)
		defer timer.Stop()
		deadline = timer.C
	}

	next := time.NewTimer(0)
	defer next.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return ReasonOperatorStop, nil
		case <-c.interrupt:
			return ReasonOperatorStop, nil
		case <-deadline:
			return ReasonDurationReached, nil
		case <-next.C:
		}

		// A stop event that became ready together with the tick wins.
		if reason, ok := c.pendingStop(ctx, deadline); ok {
			return reason, nil
		}

		began := time.Now()
		sample, err := agg.Tick(ctx)
		switch {
		case err == nil:
			failures = 0
			if c.onSample != nil {
				c.onSample(sample)
			}
		case errors.Is(err, proctree.ErrTargetGone):
			c.logger.Info().
				Str("code", string(rerrors.CodeTargetLost)).
				Int32("pid", c.pid).
				Msg("Target process exited")
			return ReasonTargetExited, nil
		case ctx.Err() != nil:
			return ReasonOperatorStop, nil
		default:
			failures++
			c.logger.Warn().Err(err).Int("consecutive", failures).Msg("Sample skipped")
			if failures >= constants.MaxConsecutiveTickErrors {
				return ReasonNone, fmt.Errorf("target process %d unreadable for %d consecutive ticks: %w", c.pid, failures, err)
			}
		}

		wait := c.cfg.Interval - time.Since(began)
		if wait < 0 {
			wait = 0
		}
		next.Reset(wait)
	}
}

func (c *Controller) pendingStop(ctx context.Context, deadline <-chan time.Time) (Reason, bool) {
	select {
	case <-ctx.Done():
		return ReasonOperatorStop, true
	case <-c.interrupt:
		return ReasonOperatorStop, true
	case <-deadline:
		return ReasonDurationReached, true
	default:
		return ReasonNone, false
	}
}

// stopActivities stops annotations then telemetry, each bounded by the
// shutdown grace. Timeouts are recorded as warnings.
func (c *Controller) stopActivities(res *Result) {
	if c.annotations != nil {
		if err := c.stopWithGrace(c.annotations.Stop); err != nil {
			c.logger.Warn().Err(err).Msg("Annotation channel did not stop cleanly")
			res.Warnings = append(res.Warnings, err)
		}
	}
	if err := c.stopWithGrace(c.telemetry.Stop); err != nil {
		c.logger.Warn().Err(err).Msg("Telemetry reader did not stop cleanly")
		res.Warnings = append(res.Warnings, err)
	}
}

func (c *Controller) stopWithGrace(stop func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownGrace)
	defer cancel()
	return stop(ctx)
}

func (c *Controller) transition(to State, reason Reason) error {
	c.stateMu.Lock()
	from := c.state
	if !canTransition(from, to) {
		c.stateMu.Unlock()
		return fmt.Errorf("invalid session transition %s -> %s", from, to)
	}
	c.state = to
	if reason != ReasonNone {
		c.reason = reason
	}
	c.stateMu.Unlock()

	c.logger.Debug().
		Str("from", from.String()).
		Str("to", to.String()).
		Str("reason", string(reason)).
		Msg("Session state changed")
	if c.onState != nil {
		c.onState(from, to, reason)
	}
	return nil
}

func (c *Controller) fail(res *Result, err error) (*Result, error) {
	c.stateMu.Lock()
	from := c.state
	if canTransition(from, StateFailed) {
		c.state = StateFailed
	}
	c.stateMu.Unlock()

	code, _ := rerrors.CodeOf(err)
	c.logger.Error().Err(err).Str("code", string(code)).Str("from", from.String()).Msg("Session failed")
	if c.onState != nil && from != StateFailed {
		c.onState(from, StateFailed, ReasonNone)
	}

	res.State = StateFailed
	res.Err = err
	return res, err
}
