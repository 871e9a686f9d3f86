package proctree

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"

	rerrors "github.com/coral-mesh/resmon/internal/errors"
)

// Match is a process found by name.
type Match struct {
	PID  int32
	Name string
}

// Lister enumerates processes by PID and name.
type Lister interface {
	List(ctx context.Context) ([]Match, error)
}

// ListerFunc adapts a function to the Lister interface.
type ListerFunc func(ctx context.Context) ([]Match, error)

// List implements Lister.
func (f ListerFunc) List(ctx context.Context) ([]Match, error) {
	return f(ctx)
}

// SystemLister lists processes from the OS via gopsutil.
var SystemLister Lister = ListerFunc(listSystem)

func listSystem(ctx context.Context) ([]Match, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	out := make([]Match, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		out = append(out, Match{PID: p.Pid, Name: name})
	}
	return out, nil
}

// FindByName returns the lowest-PID process whose name contains name,
// ignoring case. The calling process is never matched.
func FindByName(ctx context.Context, lister Lister, name string) (Match, error) {
	if name == "" {
		return Match{}, rerrors.New(rerrors.CodeConfigInvalid, "process name is empty")
	}

	procs, err := lister.List(ctx)
	if err != nil {
		return Match{}, err
	}

	self := int32(os.Getpid())
	needle := strings.ToLower(name)

	var best Match
	found := false
	for _, p := range procs {
		if p.PID == self || !strings.Contains(strings.ToLower(p.Name), needle) {
			continue
		}
		if !found || p.PID < best.PID {
			best = p
			found = true
		}
	}
	if !found {
		return Match{}, rerrors.Newf(rerrors.CodeTargetNotFound, "no process matching %q", name)
	}
	return best, nil
}

// WaitForName polls FindByName every poll interval until a process appears
// or ctx is done.
func WaitForName(ctx context.Context, lister Lister, name string, poll time.Duration, logger zerolog.Logger) (Match, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	logged := false
	for {
		m, err := FindByName(ctx, lister, name)
		if err == nil {
			return m, nil
		}
		if !rerrors.HasCode(err, rerrors.CodeTargetNotFound) {
			return Match{}, err
		}
		if !logged {
			logger.Info().Str("name", name).Dur("poll", poll).Msg("Waiting for target process to start")
			logged = true
		}

		select {
		case <-ctx.Done():
			return Match{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// NameOf returns the name of pid, or "" when it cannot be read.
func NameOf(ctx context.Context, pid int32) string {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return ""
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return ""
	}
	return name
}
