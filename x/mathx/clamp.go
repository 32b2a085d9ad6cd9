package mathx

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Clamp limits v to [lo, hi]. Swapped bounds are put back in order.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}

// Unit clamps a duty cycle, volume or blend factor to [0, 1]. NaN maps to 0
// so a bad computation switches an output off rather than fully on.
func Unit[T constraints.Float](v T) T {
	if math.IsNaN(float64(v)) {
		return 0
	}
	return Clamp(v, 0, 1)
}
