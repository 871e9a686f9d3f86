package telemetry

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/coral-mesh/resmon/internal/constants"
)

// Process is one running telemetry subprocess.
type Process interface {
	// Stdout is the line-oriented metric stream. It reaches EOF when the
	// process exits.
	Stdout() io.Reader
	// Wait blocks until the process has exited.
	Wait() error
	// Kill terminates the process without waiting for it to flush.
	Kill() error
	// Diagnostics returns the tail of the process's stderr.
	Diagnostics() string
}

// Launcher starts telemetry subprocesses. Cancelling ctx must terminate the
// process it started.
type Launcher interface {
	Launch(ctx context.Context) (Process, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context) (Process, error)

// Launch implements Launcher.
func (f LauncherFunc) Launch(ctx context.Context) (Process, error) {
	return f(ctx)
}

// CommandConfig describes the powermetrics invocation.
type CommandConfig struct {
	Path string
	Args []string
	// Interval is enforced as "-i <milliseconds>".
	Interval time.Duration
	// Grace is how long a cancelled process may take to exit after SIGTERM
	// before it is killed.
	Grace time.Duration
}

// Normalize fills defaults and makes sure the sampling interval argument
// matches Interval.
func (c CommandConfig) Normalize() CommandConfig {
	n := c
	if n.Path == "" {
		n.Path = constants.DefaultTelemetryCommand
	}
	if n.Interval <= 0 {
		n.Interval = constants.DefaultTelemetryInterval
	}
	if n.Grace <= 0 {
		n.Grace = constants.DefaultShutdownGrace
	}
	n.Args = ensureIntervalArgument(append([]string{}, c.Args...), n.Interval)
	return n
}

// String renders the command line for logs.
func (c CommandConfig) String() string {
	return strings.TrimSpace(c.Path + " " + strings.Join(c.Args, " "))
}

func ensureIntervalArgument(args []string, interval time.Duration) []string {
	ms := fmt.Sprintf("%d", interval.Milliseconds())
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-i" || args[i] == "--sample-rate" {
			args[i+1] = ms
			return args
		}
	}
	return append(args, "-i", ms)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

// privilegeHint adds the usual fix to powermetrics' superuser complaint.
func privilegeHint(diag string) string {
	lower := strings.ToLower(diag)
	if strings.Contains(lower, "superuser") || strings.Contains(lower, "root") ||
		strings.Contains(lower, "permission") {
		return diag + " (run resmon with sudo to enable GPU/ANE telemetry)"
	}
	return diag
}
