//go:build unix

package telemetry

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"golang.org/x/sys/unix"

	"github.com/coral-mesh/resmon/internal/constants"
)

type commandLauncher struct {
	cfg CommandConfig
}

// NewCommandLauncher launches cfg as a subprocess. Cancelling the launch
// context sends SIGTERM; a process still alive after cfg.Grace is killed.
func NewCommandLauncher(cfg CommandConfig) Launcher {
	return &commandLauncher{cfg: cfg.Normalize()}
}

func (l *commandLauncher) Launch(ctx context.Context) (Process, error) {
	// #nosec G204 - command comes from operator configuration
	cmd := exec.CommandContext(ctx, l.cfg.Path, l.cfg.Args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(unix.SIGTERM)
	}
	cmd.WaitDelay = l.cfg.Grace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr := newTailBuffer(constants.TelemetryStderrTail)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", l.cfg.Path, err)
	}

	return &commandProcess{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

type commandProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr *tailBuffer
}

func (p *commandProcess) Stdout() io.Reader { return p.stdout }

func (p *commandProcess) Wait() error { return p.cmd.Wait() }

func (p *commandProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Signal(unix.SIGKILL)
}

func (p *commandProcess) Diagnostics() string { return privilegeHint(p.stderr.String()) }
