package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/resmon/internal/annotate"
	rerrors "github.com/coral-mesh/resmon/internal/errors"
	"github.com/coral-mesh/resmon/internal/proctree"
	"github.com/coral-mesh/resmon/internal/telemetry"
	"github.com/coral-mesh/resmon/internal/testutil"
	"github.com/coral-mesh/resmon/internal/timeline"
)

type fakeTree struct {
	exists bool
	// goneAfter makes the target vanish after this many snapshots; 0 never.
	goneAfter int32
	work      time.Duration
	err       error
	calls     atomic.Int32
}

func (f *fakeTree) Exists(context.Context) (bool, error) { return f.exists, nil }

func (f *fakeTree) Snapshot(context.Context) (proctree.Snapshot, error) {
	n := f.calls.Add(1)
	if f.goneAfter > 0 && n > f.goneAfter {
		return proctree.Snapshot{}, rerrors.Wrap(rerrors.CodeTargetLost, proctree.ErrTargetGone, "process 1")
	}
	if f.err != nil {
		return proctree.Snapshot{}, f.err
	}
	if f.work > 0 {
		time.Sleep(f.work)
	}
	return proctree.Snapshot{
		TargetPID:   1,
		PIDs:        []int32{1, 2},
		MemoryBytes: 1 << 20,
		CPUPercent:  12,
		Threads:     4,
		TakenAt:     time.Now(),
	}, nil
}

type fakeTelemetry struct {
	state   telemetry.State
	stopErr error

	started atomic.Bool
	stopped atomic.Bool
	// ctxAliveAtStop records whether the start context survived until Stop.
	ctxAliveAtStop atomic.Bool
	startCtx       context.Context
	mu             sync.Mutex
}

func (f *fakeTelemetry) Start(ctx context.Context) {
	f.mu.Lock()
	f.startCtx = ctx
	f.mu.Unlock()
	f.started.Store(true)
}

func (f *fakeTelemetry) Latest() telemetry.State { return f.state }

func (f *fakeTelemetry) Stop(context.Context) error {
	f.mu.Lock()
	if f.startCtx != nil {
		f.ctxAliveAtStop.Store(f.startCtx.Err() == nil)
	}
	f.mu.Unlock()
	f.stopped.Store(true)
	return f.stopErr
}

// fakeAnnotations stores one mark-only annotation on start.
type fakeAnnotations struct {
	stopped atomic.Bool
}

func (f *fakeAnnotations) Start(_ context.Context, sink annotate.Sink) error {
	_, err := sink.AddAnnotation("", time.Now())
	return err
}

func (f *fakeAnnotations) Stop(context.Context) error {
	f.stopped.Store(true)
	return nil
}

func streaming() telemetry.State {
	return telemetry.State{
		GPUActivePercent: telemetry.Available(30),
		GPUPowerWatts:    telemetry.Available(2.5),
		ANEPowerWatts:    telemetry.Available(0),
		Status:           telemetry.StatusStreaming,
	}
}

func cfg(interval, duration time.Duration) Config {
	return Config{Interval: interval, Duration: duration, ShutdownGrace: time.Second}
}

func TestRun_DurationReached(t *testing.T) {
	tree := &fakeTree{exists: true}
	telem := &fakeTelemetry{state: streaming()}

	c := New(cfg(100*time.Millisecond, 500*time.Millisecond), 1, tree, telem, testutil.NewTestLogger(t))
	res, err := c.Run(testutil.NewTestContext(t))
	require.NoError(t, err)

	assert.Equal(t, StateFinalized, res.State)
	assert.Equal(t, ReasonDurationReached, res.Reason)
	assert.Equal(t, StateFinalized, c.State())
	assert.Equal(t, ReasonDurationReached, c.Reason())
	require.NotNil(t, res.Dataset)
	assert.GreaterOrEqual(t, len(res.Dataset.Samples), 4)
	assert.LessOrEqual(t, len(res.Dataset.Samples), 6)
	assert.Equal(t, c.ID(), res.Dataset.ID)
	assert.Equal(t, telemetry.StatusStreaming, res.TelemetryStatus)
	assert.Empty(t, res.Warnings)
	assert.True(t, telem.started.Load())
	assert.True(t, telem.stopped.Load())

	samples := res.Dataset.Samples
	for i := 1; i < len(samples); i++ {
		assert.True(t, samples[i].Timestamp.After(samples[i-1].Timestamp))
	}
	assert.Equal(t, telemetry.Available(30), samples[0].GPUActivePercent)
}

func TestRun_TargetNotFound(t *testing.T) {
	telem := &fakeTelemetry{}
	c := New(cfg(time.Second, 0), 99, &fakeTree{exists: false}, telem, testutil.NewTestLogger(t))

	res, err := c.Run(testutil.NewTestContext(t))
	require.Error(t, err)
	assert.True(t, rerrors.HasCode(err, rerrors.CodeTargetNotFound))
	assert.Equal(t, StateFailed, res.State)
	assert.Nil(t, res.Dataset)
	assert.False(t, telem.started.Load(), "activities never start")
}

func TestRun_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero interval", Config{Interval: 0, ShutdownGrace: time.Second}},
		{"negative interval", Config{Interval: -time.Second, ShutdownGrace: time.Second}},
		{"negative duration", Config{Interval: time.Second, Duration: -time.Second, ShutdownGrace: time.Second}},
		{"zero grace", Config{Interval: time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.cfg, 1, &fakeTree{exists: true}, nil, testutil.NewTestLogger(t))
			res, err := c.Run(context.Background())
			require.Error(t, err)
			assert.True(t, rerrors.HasCode(err, rerrors.CodeConfigInvalid))
			assert.Equal(t, StateFailed, res.State)
		})
	}
}

func TestRun_TargetExits(t *testing.T) {
	tree := &fakeTree{exists: true, goneAfter: 3}
	telem := &fakeTelemetry{state: streaming()}

	var exitSeen time.Time
	c := New(cfg(10*time.Millisecond, 0), 1, tree, telem, testutil.NewTestLogger(t),
		WithStateObserver(func(_, to State, _ Reason) {
			if to == StateStopping {
				exitSeen = time.Now()
			}
		}))

	res, err := c.Run(testutil.NewTestContext(t))
	require.NoError(t, err)

	assert.Equal(t, StateFinalized, res.State)
	assert.Equal(t, ReasonTargetExited, res.Reason)
	require.Len(t, res.Dataset.Samples, 3)
	for _, s := range res.Dataset.Samples {
		assert.True(t, s.Timestamp.Before(exitSeen))
	}
	assert.True(t, telem.stopped.Load())
}

func TestRun_Interrupt(t *testing.T) {
	tree := &fakeTree{exists: true}
	var c *Controller
	c = New(cfg(10*time.Millisecond, 0), 1, tree, nil, testutil.NewTestLogger(t),
		WithSampleObserver(func(s timeline.Sample) {
			if s.Seq == 2 {
				c.Interrupt()
				c.Interrupt()
			}
		}))

	res, err := c.Run(testutil.NewTestContext(t))
	require.NoError(t, err)
	assert.Equal(t, ReasonOperatorStop, res.Reason)
	assert.Len(t, res.Dataset.Samples, 2)
	assert.Equal(t, telemetry.StatusDisabled, res.TelemetryStatus)
}

func TestRun_ContextCancelIsOperatorStop(t *testing.T) {
	tree := &fakeTree{exists: true}
	telem := &fakeTelemetry{state: streaming()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := New(cfg(10*time.Millisecond, 0), 1, tree, telem, testutil.NewTestLogger(t),
		WithSampleObserver(func(s timeline.Sample) {
			if s.Seq == 3 {
				cancel()
			}
		}))

	res, err := c.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateFinalized, res.State)
	assert.Equal(t, ReasonOperatorStop, res.Reason)
	assert.Len(t, res.Dataset.Samples, 3)
	assert.True(t, telem.ctxAliveAtStop.Load(), "activities are stopped explicitly, not by the interrupt")
}

func TestRun_TelemetryUnavailable(t *testing.T) {
	tree := &fakeTree{exists: true}
	telem := &fakeTelemetry{state: telemetry.State{
		Status: telemetry.StatusUnavailable,
		Detail: "launch failed: powermetrics must be invoked as the superuser",
	}}

	c := New(cfg(10*time.Millisecond, 80*time.Millisecond), 1, tree, telem, testutil.NewTestLogger(t))
	res, err := c.Run(testutil.NewTestContext(t))
	require.NoError(t, err)

	assert.Equal(t, StateFinalized, res.State)
	require.NotEmpty(t, res.Dataset.Samples)
	for _, s := range res.Dataset.Samples {
		assert.False(t, s.GPUActivePercent.Available)
		assert.False(t, s.GPUPowerWatts.Available)
		assert.False(t, s.ANEPowerWatts.Available)
		assert.Equal(t, uint64(1<<20), s.MemoryBytes)
	}
	assert.False(t, res.Dataset.Summary.GPUPowerWatts.Available())
	assert.True(t, res.Dataset.Summary.MemoryBytes.Available())

	require.Len(t, res.Warnings, 1)
	assert.True(t, rerrors.HasCode(res.Warnings[0], rerrors.CodeTelemetryUnavailable))
	assert.Equal(t, telemetry.StatusUnavailable, res.TelemetryStatus)
}

func TestRun_OverrunTicksFireImmediately(t *testing.T) {
	tree := &fakeTree{exists: true, work: 40 * time.Millisecond}

	c := New(cfg(10*time.Millisecond, 200*time.Millisecond), 1, tree, nil, testutil.NewTestLogger(t))
	res, err := c.Run(testutil.NewTestContext(t))
	require.NoError(t, err)

	samples := res.Dataset.Samples
	assert.GreaterOrEqual(t, len(samples), 3)
	assert.LessOrEqual(t, len(samples), 6, "no backlog of missed ticks")
	for i := 1; i < len(samples); i++ {
		gap := samples[i].Timestamp.Sub(samples[i-1].Timestamp)
		assert.GreaterOrEqual(t, gap, 40*time.Millisecond, "timestamps reflect actual elapsed time")
	}
}

func TestRun_AnnotationsAreFinalized(t *testing.T) {
	tree := &fakeTree{exists: true}
	ann := &fakeAnnotations{}

	c := New(cfg(10*time.Millisecond, 60*time.Millisecond), 1, tree, nil, testutil.NewTestLogger(t), WithAnnotations(ann))
	res, err := c.Run(testutil.NewTestContext(t))
	require.NoError(t, err)

	assert.True(t, ann.stopped.Load())
	require.Len(t, res.Dataset.Annotations, 1)
	a := res.Dataset.Annotations[0]
	assert.Equal(t, "", a.Label)
	first, last := res.Dataset.Samples[0], res.Dataset.Samples[len(res.Dataset.Samples)-1]
	assert.False(t, a.Timestamp.Before(first.Timestamp))
	assert.False(t, a.Timestamp.After(last.Timestamp))
}

func TestRun_ShutdownTimeoutIsWarning(t *testing.T) {
	tree := &fakeTree{exists: true}
	telem := &fakeTelemetry{
		state:   streaming(),
		stopErr: rerrors.Wrap(rerrors.CodeShutdownTimeout, context.DeadlineExceeded, "telemetry reader did not stop"),
	}

	c := New(cfg(10*time.Millisecond, 30*time.Millisecond), 1, tree, telem, testutil.NewTestLogger(t))
	res, err := c.Run(testutil.NewTestContext(t))
	require.NoError(t, err)

	assert.Equal(t, StateFinalized, res.State)
	require.Len(t, res.Warnings, 1)
	assert.True(t, rerrors.HasCode(res.Warnings[0], rerrors.CodeShutdownTimeout))
}

func TestRun_UnreadableTargetFails(t *testing.T) {
	tree := &fakeTree{exists: true, err: errors.New("permission denied")}
	telem := &fakeTelemetry{}

	c := New(cfg(time.Millisecond, 0), 1, tree, telem, testutil.NewTestLogger(t))
	res, err := c.Run(testutil.NewTestContext(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StateFailed, c.State())
	assert.Nil(t, res.Dataset)
	assert.True(t, telem.stopped.Load(), "activities are stopped on failure")
}

func TestRun_StateSequence(t *testing.T) {
	var mu sync.Mutex
	var seen []State

	c := New(cfg(10*time.Millisecond, 30*time.Millisecond), 1, &fakeTree{exists: true}, nil, testutil.NewTestLogger(t),
		WithID("fixed-id"),
		WithStateObserver(func(_, to State, _ Reason) {
			mu.Lock()
			seen = append(seen, to)
			mu.Unlock()
		}))
	assert.Equal(t, StateInit, c.State())

	res, err := c.Run(testutil.NewTestContext(t))
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", res.ID)
	assert.Equal(t, []State{StateRunning, StateStopping, StateFinalized}, seen)
}

func TestTransitions(t *testing.T) {
	assert.True(t, canTransition(StateInit, StateRunning))
	assert.True(t, canTransition(StateInit, StateFailed))
	assert.True(t, canTransition(StateRunning, StateStopping))
	assert.True(t, canTransition(StateRunning, StateFailed))
	assert.True(t, canTransition(StateStopping, StateFinalized))
	assert.False(t, canTransition(StateStopping, StateFailed))
	assert.False(t, canTransition(StateFinalized, StateRunning))
	assert.False(t, canTransition(StateInit, StateFinalized))
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateStopping.Terminal())
	assert.Equal(t, "RUNNING", StateRunning.String())
	assert.Equal(t, "duration reached", ReasonDurationReached.Describe())
}
