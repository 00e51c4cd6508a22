package utils

import (
	"golang.org/x/exp/constraints"
)

// Mod returns x mod m in [0, m). m must be positive.
func Mod[T constraints.Signed](x, m T) T {
	x %= m
	if x < 0 {
		x += m
	}
	return x
}

// CenteredLift returns the representative of x mod t in (-t/2, t/2].
func CenteredLift(x, t uint64) int64 {
	x %= t
	if x > t>>1 {
		return -int64(t - x)
	}
	return int64(x)
}

// ReduceSlice returns the values of s reduced into [0, m).
func ReduceSlice[T constraints.Signed](s []T, m T) (r []T) {
	r = make([]T, len(s))
	for i := range s {
		r[i] = Mod(s[i], m)
	}
	return
}

// IsPowerOfTwo reports whether x is a positive power of two.
func IsPowerOfTwo[T constraints.Integer](x T) bool {
	return x > 0 && x&(x-1) == 0
}
