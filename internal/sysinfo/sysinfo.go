// Package sysinfo describes the host the session runs on. The descriptor is
// informational and attached to exported output.
package sysinfo

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/coral-mesh/resmon/internal/constants"
)

// Descriptor is the static capability summary of the host.
type Descriptor struct {
	Chip             string `json:"chip"`
	CPUCores         int    `json:"cpu_cores"`
	PerformanceCores int    `json:"performance_cores,omitempty"`
	EfficiencyCores  int    `json:"efficiency_cores,omitempty"`
	GPUCores         int    `json:"gpu_cores,omitempty"`
	ANECores         int    `json:"ane_cores,omitempty"`
	MemoryBytes      uint64 `json:"memory_bytes"`
	OS               string `json:"os"`
	Arch             string `json:"arch"`
	Kernel           string `json:"kernel,omitempty"`
}

// MemoryGB returns installed memory in whole gigabytes.
func (d Descriptor) MemoryGB() int {
	return int(math.Round(float64(d.MemoryBytes) / (1 << 30)))
}

// String renders e.g. "Apple M4 Pro • 14-core CPU (10P + 4E) • 20-core GPU • 16-core Neural Engine • 48 GB RAM".
func (d Descriptor) String() string {
	var parts []string
	if d.Chip != "" {
		parts = append(parts, d.Chip)
	}
	switch {
	case d.PerformanceCores > 0 && d.EfficiencyCores > 0:
		parts = append(parts, fmt.Sprintf("%d-core CPU (%dP + %dE)", d.CPUCores, d.PerformanceCores, d.EfficiencyCores))
	case d.CPUCores > 0:
		parts = append(parts, fmt.Sprintf("%d-core CPU", d.CPUCores))
	}
	if d.GPUCores > 0 {
		parts = append(parts, fmt.Sprintf("%d-core GPU", d.GPUCores))
	}
	if d.ANECores > 0 {
		parts = append(parts, fmt.Sprintf("%d-core Neural Engine", d.ANECores))
	}
	if gb := d.MemoryGB(); gb > 0 {
		parts = append(parts, fmt.Sprintf("%d GB RAM", gb))
	}
	return strings.Join(parts, " • ")
}

// Detector gathers a Descriptor.
type Detector struct {
	logger zerolog.Logger
}

// NewDetector creates a detector.
func NewDetector(logger zerolog.Logger) *Detector {
	return &Detector{logger: logger.With().Str("component", "sysinfo").Logger()}
}

// Detect returns the best descriptor it can build. Individual probe failures
// are logged and leave the corresponding fields empty.
func (d *Detector) Detect(ctx context.Context) Descriptor {
	desc := Descriptor{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
		Chip: "Unknown",
	}

	if info, err := host.InfoWithContext(ctx); err != nil {
		d.logger.Debug().Err(err).Msg("Failed to read host info")
	} else {
		if info.Platform != "" {
			desc.OS = strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
		}
		desc.Kernel = info.KernelVersion
	}

	if n, err := cpu.CountsWithContext(ctx, true); err != nil {
		d.logger.Debug().Err(err).Msg("Failed to count CPUs")
	} else {
		desc.CPUCores = n
	}

	if infos, err := cpu.InfoWithContext(ctx); err != nil {
		d.logger.Debug().Err(err).Msg("Failed to read CPU info")
	} else if len(infos) > 0 && infos[0].ModelName != "" {
		desc.Chip = strings.TrimSpace(infos[0].ModelName)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		d.logger.Debug().Err(err).Msg("Failed to read memory size")
	} else {
		desc.MemoryBytes = vm.Total
	}

	d.detectPlatform(ctx, &desc)

	d.logger.Debug().
		Str("chip", desc.Chip).
		Int("cpu_cores", desc.CPUCores).
		Int("gpu_cores", desc.GPUCores).
		Uint64("memory_bytes", desc.MemoryBytes).
		Str("os", desc.OS).
		Msg("System detected")
	return desc
}

var (
	coreSplitPattern = regexp.MustCompile(`(\d+)\s*\((\d+)\s*performance\s+and\s+(\d+)\s*efficiency\)`)
	firstIntPattern  = regexp.MustCompile(`(\d+)`)
	memoryGBPattern  = regexp.MustCompile(`(\d+)\s*GB`)
	gpuCoresPattern  = regexp.MustCompile(`=\s*(\d+)`)
)

// applyHardwareOverview overlays the fields printed by
// `system_profiler SPHardwareDataType` onto desc.
func applyHardwareOverview(out string, desc *Descriptor) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.TrimSpace(key) {
		case "Chip", "Processor Name":
			if value != "" {
				desc.Chip = value
			}
		case "Total Number of Cores":
			if m := coreSplitPattern.FindStringSubmatch(value); m != nil {
				desc.CPUCores = atoi(m[1])
				desc.PerformanceCores = atoi(m[2])
				desc.EfficiencyCores = atoi(m[3])
			} else if m := firstIntPattern.FindStringSubmatch(value); m != nil {
				desc.CPUCores = atoi(m[1])
			}
		case "Memory":
			if m := memoryGBPattern.FindStringSubmatch(value); m != nil {
				desc.MemoryBytes = uint64(atoi(m[1])) << 30
			}
		}
	}
}

// parseGPUCores returns the first gpu-core-count in `ioreg -l` output.
func parseGPUCores(out string) int {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(strings.ToLower(line), "gpu-core-count") {
			continue
		}
		if m := gpuCoresPattern.FindStringSubmatch(line); m != nil {
			return atoi(m[1])
		}
	}
	return 0
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// aneCores is fixed on every Apple Silicon generation.
func aneCores(arch string) int {
	if arch == "arm64" {
		return constants.DefaultANECores
	}
	return 0
}
