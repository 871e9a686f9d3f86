package proctree

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/mem"
)

// HostProbe reads swap and memory pressure from the running host.
type HostProbe struct{}

// NewHostProbe returns the host-backed SystemProbe.
func NewHostProbe() *HostProbe {
	return &HostProbe{}
}

// SwapUsed returns used swap in bytes.
func (HostProbe) SwapUsed(ctx context.Context) (uint64, error) {
	swap, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read swap memory: %w", err)
	}
	return swap.Used, nil
}

// Pressure returns the host memory pressure level.
func (HostProbe) Pressure(ctx context.Context) (Pressure, error) {
	return hostPressure(ctx)
}
