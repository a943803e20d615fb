// Package pow2 provides power-of-two sizing arithmetic. The hash table's
// capacity growth uses Grow; chunk buffers and the value and frame stacks
// do not use this package. Ceil is built on
// brimutil.PowerOfTwoNeeded (github.com/gholt/brimutil), the same
// exponent helper the teacher repo uses to size its memory-mapped value
// pages, generalized here into the doubling-growth helper this module's
// buffers need.
package pow2

import "github.com/gholt/brimutil"

// Min is the smallest capacity Grow ever returns.
const Min = 8

// Grow returns the next capacity to use after old fills up: old doubled,
// floored at Min. Matches the GROW_CAPACITY macro of the original source.
func Grow(old int) int {
	if old < Min {
		return Min
	}
	return old * 2
}

// Ceil returns the smallest power of two that is >= n, floored at Min.
func Ceil(n int) int {
	if n <= Min {
		return Min
	}
	return 1 << brimutil.PowerOfTwoNeeded(uint64(n))
}

// IsPowerOfTwo reports whether n is a power of two (n > 0).
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
