package telemetry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/coral-mesh/resmon/internal/errors"
	"github.com/coral-mesh/resmon/internal/testutil"
)

type fakeProcess struct {
	r       *io.PipeReader
	w       *io.PipeWriter
	waitErr error
	diag    string
	killed  atomic.Bool
}

func newFakeProcess() *fakeProcess {
	r, w := io.Pipe()
	return &fakeProcess{r: r, w: w}
}

func (p *fakeProcess) Stdout() io.Reader   { return p.r }
func (p *fakeProcess) Wait() error         { return p.waitErr }
func (p *fakeProcess) Diagnostics() string { return p.diag }

func (p *fakeProcess) Kill() error {
	p.killed.Store(true)
	return p.w.Close()
}

func (p *fakeProcess) emit(t *testing.T, s string) {
	t.Helper()
	_, err := io.WriteString(p.w, s)
	require.NoError(t, err)
}

func (p *fakeProcess) exit() {
	_ = p.w.Close()
}

// scriptedLauncher hands out processes in order and counts launches.
type scriptedLauncher struct {
	mu       sync.Mutex
	procs    []*fakeProcess
	launches int
	err      error
	// closeOnCancel ends the process when the launch context is cancelled.
	closeOnCancel bool
}

func (l *scriptedLauncher) Launch(ctx context.Context) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	if l.err != nil {
		return nil, l.err
	}
	if len(l.procs) == 0 {
		return nil, errors.New("no more processes")
	}
	p := l.procs[0]
	l.procs = l.procs[1:]
	if l.closeOnCancel {
		go func() {
			<-ctx.Done()
			p.exit()
		}()
	}
	return p, nil
}

func (l *scriptedLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

func block(gpuMW int) string {
	return "*** Sampled system activity (x) ***\n" +
		"GPU HW active residency:  10.00%\n" +
		"GPU Power: " + strconv.Itoa(gpuMW) + " mW\n" +
		"ANE Power: 0 mW\n"
}

func stopCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestReader_LaunchFailureIsPermanentlyUnavailable(t *testing.T) {
	launcher := &scriptedLauncher{err: errors.New("exec: \"powermetrics\": executable file not found in $PATH")}
	r := NewReader(launcher, testutil.NewTestLogger(t))

	r.Start(testutil.NewTestContext(t))

	st := r.Latest()
	assert.Equal(t, StatusUnavailable, st.Status)
	assert.Contains(t, st.Detail, "launch failed")
	assert.False(t, st.GPUActivePercent.Available)
	assert.False(t, st.GPUPowerWatts.Available)
	assert.False(t, st.ANEPowerWatts.Available)
	assert.Equal(t, 1, launcher.count())

	require.NoError(t, r.Stop(stopCtx(t)))
}

func TestReader_PublishesCompletedBlocks(t *testing.T) {
	proc := newFakeProcess()
	launcher := &scriptedLauncher{procs: []*fakeProcess{proc}, closeOnCancel: true}
	r := NewReader(launcher, testutil.NewTestLogger(t))

	r.Start(testutil.NewTestContext(t))
	assert.Equal(t, StatusStarting, r.Latest().Status)

	proc.emit(t, block(1500))
	// The first block completes when the second header arrives.
	proc.emit(t, block(2500))

	testutil.Eventually(t, time.Second, func() bool {
		return r.Latest().Blocks == 1
	}, "first block published")

	st := r.Latest()
	assert.Equal(t, StatusStreaming, st.Status)
	assert.InDelta(t, 1.5, st.GPUPowerWatts.Value, 1e-9)
	assert.InDelta(t, 10.0, st.GPUActivePercent.Value, 1e-9)
	assert.Equal(t, Available(0), st.ANEPowerWatts)
	assert.False(t, st.UpdatedAt.IsZero())

	require.NoError(t, r.Stop(stopCtx(t)))
	assert.Equal(t, StatusStopped, r.Latest().Status)
	assert.Equal(t, 1, launcher.count())
}

func TestReader_ExitBeforeFirstBlockIsUnavailable(t *testing.T) {
	proc := newFakeProcess()
	proc.waitErr = errors.New("exit status 1")
	proc.diag = "powermetrics must be invoked as the superuser"
	launcher := &scriptedLauncher{procs: []*fakeProcess{proc, newFakeProcess()}}
	r := NewReader(launcher, testutil.NewTestLogger(t))

	r.Start(testutil.NewTestContext(t))
	proc.exit()

	testutil.Eventually(t, time.Second, func() bool {
		return r.Latest().Status == StatusUnavailable
	}, "telemetry marked unavailable")

	assert.Contains(t, r.Latest().Detail, "superuser")
	assert.Equal(t, 1, launcher.count(), "no restart after a launch that never produced data")
	require.NoError(t, r.Stop(stopCtx(t)))
}

func TestReader_RestartsExactlyOnce(t *testing.T) {
	first, second := newFakeProcess(), newFakeProcess()
	launcher := &scriptedLauncher{procs: []*fakeProcess{first, second, newFakeProcess()}}
	r := NewReader(launcher, testutil.NewTestLogger(t))

	r.Start(testutil.NewTestContext(t))

	first.emit(t, block(1000))
	first.exit() // EOF flushes the block, then the stream died

	testutil.Eventually(t, time.Second, func() bool {
		return launcher.count() == 2
	}, "restart attempted")
	testutil.Eventually(t, time.Second, func() bool {
		return r.Latest().Restarts == 1
	}, "restart recorded")

	second.emit(t, block(2000))
	second.exit()

	testutil.Eventually(t, time.Second, func() bool {
		return r.Latest().Status == StatusUnavailable
	}, "telemetry unavailable after second exit")

	st := r.Latest()
	assert.Equal(t, uint64(2), st.Blocks)
	assert.False(t, st.GPUPowerWatts.Available, "readings degrade to unavailable")
	assert.Equal(t, 2, launcher.count(), "exactly one restart")
	require.NoError(t, r.Stop(stopCtx(t)))
}

func TestReader_RestartLaunchFailure(t *testing.T) {
	first := newFakeProcess()
	launcher := &scriptedLauncher{procs: []*fakeProcess{first}}
	r := NewReader(launcher, testutil.NewTestLogger(t))

	r.Start(testutil.NewTestContext(t))
	first.emit(t, block(1000))
	first.exit()

	testutil.Eventually(t, time.Second, func() bool {
		return r.Latest().Status == StatusUnavailable
	}, "unavailable after failed restart")
	assert.Contains(t, r.Latest().Detail, "restart failed")
}

func TestReader_NoRestartBudget(t *testing.T) {
	first := newFakeProcess()
	launcher := &scriptedLauncher{procs: []*fakeProcess{first, newFakeProcess()}}
	r := NewReader(launcher, testutil.NewTestLogger(t), WithMaxRestarts(0))

	r.Start(testutil.NewTestContext(t))
	first.emit(t, block(1000))
	first.exit()

	testutil.Eventually(t, time.Second, func() bool {
		return r.Latest().Status == StatusUnavailable
	}, "unavailable without restart")
	assert.Equal(t, 1, launcher.count())
}

func TestReader_StopTimeoutKillsProcess(t *testing.T) {
	proc := newFakeProcess()
	// The process ignores cancellation: only Kill ends it.
	launcher := &scriptedLauncher{procs: []*fakeProcess{proc}}
	r := NewReader(launcher, testutil.NewTestLogger(t))

	r.Start(testutil.NewTestContext(t))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := r.Stop(ctx)
	require.Error(t, err)
	assert.True(t, rerrors.HasCode(err, rerrors.CodeShutdownTimeout))
	assert.True(t, proc.killed.Load())
}

func TestReader_ReadErrorKillsProcess(t *testing.T) {
	first, second := newFakeProcess(), newFakeProcess()
	launcher := &scriptedLauncher{procs: []*fakeProcess{first, second}, closeOnCancel: true}
	r := NewReader(launcher, testutil.NewTestLogger(t))

	r.Start(testutil.NewTestContext(t))
	first.emit(t, block(1000))
	first.emit(t, block(1100))

	testutil.Eventually(t, time.Second, func() bool {
		return r.Latest().Blocks == 1
	}, "first block published")

	// A line longer than the scanner buffer stops the reader mid-stream.
	go func() {
		_, _ = first.w.Write(bytes.Repeat([]byte("a"), 2<<20))
	}()

	testutil.Eventually(t, time.Second, func() bool {
		return launcher.count() == 2
	}, "restart after the read error")
	assert.True(t, first.killed.Load(), "unread process is killed")

	second.emit(t, block(3000))
	second.emit(t, block(3100))
	testutil.Eventually(t, time.Second, func() bool {
		return r.Latest().Blocks == 2
	}, "restarted stream publishes")
	assert.Equal(t, 1, r.Latest().Restarts)

	require.NoError(t, r.Stop(stopCtx(t)))
}

func TestReader_LatestNeverBlocks(t *testing.T) {
	proc := newFakeProcess()
	launcher := &scriptedLauncher{procs: []*fakeProcess{proc}, closeOnCancel: true}
	r := NewReader(launcher, testutil.NewTestLogger(t))
	r.Start(testutil.NewTestContext(t))

	// Half a block is pending in the accumulator.
	proc.emit(t, "*** Sampled system activity (x) ***\nGPU Power: 100 mW\n")

	done := make(chan State, 1)
	go func() { done <- r.Latest() }()

	select {
	case st := <-done:
		assert.Equal(t, uint64(0), st.Blocks)
	case <-time.After(time.Second):
		t.Fatal("Latest blocked on a pending block")
	}

	require.NoError(t, r.Stop(stopCtx(t)))
}

func TestDisabled(t *testing.T) {
	d := NewDisabled("disabled by --no-telemetry")
	d.Start(context.Background())

	st := d.Latest()
	assert.Equal(t, StatusDisabled, st.Status)
	assert.False(t, st.GPUActivePercent.Available)
	assert.NoError(t, d.Stop(context.Background()))
}

func TestStateFresh(t *testing.T) {
	now := time.Now()
	assert.False(t, State{}.Fresh(now, time.Second))
	assert.True(t, State{UpdatedAt: now.Add(-500 * time.Millisecond)}.Fresh(now, time.Second))
	assert.False(t, State{UpdatedAt: now.Add(-2 * time.Second)}.Fresh(now, time.Second))
}
