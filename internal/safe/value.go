package safe

import (
	"math"
)

// Uint64ToInt64 converts val for storage in a signed BIGINT column, clamping
// to math.MaxInt64. The boolean reports whether clamping occurred.
func Uint64ToInt64(val uint64) (int64, bool) {
	if val > math.MaxInt64 {
		return math.MaxInt64, true
	}
	return int64(val), false
}

// Int64ToUint64 converts a stored BIGINT back to a byte count, clamping
// negative values to zero.
func Int64ToUint64(val int64) uint64 {
	if val < 0 {
		return 0
	}
	return uint64(val)
}
