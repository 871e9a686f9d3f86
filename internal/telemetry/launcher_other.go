//go:build !unix

package telemetry

import (
	"context"
	"fmt"
	"runtime"
)

// NewCommandLauncher reports that powermetrics is unavailable on this platform.
func NewCommandLauncher(cfg CommandConfig) Launcher {
	return LauncherFunc(func(context.Context) (Process, error) {
		return nil, fmt.Errorf("telemetry command %s is not supported on %s", cfg.Path, runtime.GOOS)
	})
}
