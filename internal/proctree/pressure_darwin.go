//go:build darwin

package proctree

import (
	"context"
	"os/exec"
	"time"
)

const pressureCommandTimeout = 2 * time.Second

// hostPressure runs memory_pressure and falls back to the usage heuristic
// when the tool is missing or fails.
func hostPressure(ctx context.Context) (Pressure, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, pressureCommandTimeout)
	defer cancel()

	out, err := exec.CommandContext(cmdCtx, "memory_pressure").Output()
	if err != nil {
		return usedPercentPressure(ctx)
	}
	return classifyPressureOutput(string(out)), nil
}
