//go:build darwin

package sysinfo

import (
	"context"
	"os/exec"
	"time"
)

const probeTimeout = 10 * time.Second

func (d *Detector) detectPlatform(ctx context.Context, desc *Descriptor) {
	if out, err := run(ctx, "system_profiler", "SPHardwareDataType"); err != nil {
		d.logger.Warn().Err(err).Msg("Could not get full system info")
	} else {
		applyHardwareOverview(out, desc)
	}

	if out, err := run(ctx, "ioreg", "-l"); err != nil {
		d.logger.Debug().Err(err).Msg("Failed to read GPU core count")
	} else {
		desc.GPUCores = parseGPUCores(out)
	}

	desc.ANECores = aneCores(desc.Arch)
}

func run(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).Output()
	return string(out), err
}
