//go:build !darwin

package proctree

import "context"

func hostPressure(ctx context.Context) (Pressure, error) {
	return usedPercentPressure(ctx)
}
