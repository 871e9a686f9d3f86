package proctree

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v4/mem"
)

// Pressure is the host memory pressure level.
type Pressure int8

const (
	// PressureUnknown is reported when no level could be read.
	PressureUnknown Pressure = -1
	PressureNormal  Pressure = 0
	PressureWarning Pressure = 1
	// PressureCritical means the host is actively reclaiming memory.
	PressureCritical Pressure = 2
)

// String returns the lowercase level name.
func (p Pressure) String() string {
	switch p {
	case PressureNormal:
		return "normal"
	case PressureWarning:
		return "warning"
	case PressureCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParsePressure is the inverse of String. Unrecognized names are unknown.
func ParsePressure(name string) Pressure {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "normal":
		return PressureNormal
	case "warning":
		return PressureWarning
	case "critical":
		return PressureCritical
	default:
		return PressureUnknown
	}
}

// Thresholds on used memory percentage for hosts without a native pressure signal.
const (
	warningUsedPercent  = 85.0
	criticalUsedPercent = 95.0
)

// classifyPressureOutput maps the text printed by the macOS memory_pressure
// tool to a level.
func classifyPressureOutput(out string) Pressure {
	lower := strings.ToLower(out)
	switch {
	case strings.Contains(lower, "critical"):
		return PressureCritical
	case strings.Contains(lower, "warn"):
		return PressureWarning
	default:
		return PressureNormal
	}
}

// classifyUsedPercent derives a level from virtual memory usage.
func classifyUsedPercent(used float64) Pressure {
	switch {
	case used >= criticalUsedPercent:
		return PressureCritical
	case used >= warningUsedPercent:
		return PressureWarning
	default:
		return PressureNormal
	}
}

func usedPercentPressure(ctx context.Context) (Pressure, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return PressureUnknown, err
	}
	return classifyUsedPercent(vm.UsedPercent), nil
}
