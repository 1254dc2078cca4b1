// SPDX-License-Identifier: MIT
/*
Package bitint provides power-of-two helpers for sizing ring buffers and
FFT frames.

Rings sized to a power of two can wrap their cursors with a mask instead of
a modulo, which keeps index arithmetic branch-free on the real-time path:

	size := bitint.NextPowerOfTwo(1000) // 1024
	mask := bitint.Mask(size)           // 1023
	i = (i + 1) & mask

NextPowerOfTwo subtracts one before taking the bit length so that exact
powers of two map to themselves: bits.Len(7) is 3 and 1<<3 is 8, whereas
bits.Len(8) would be 4 and double the input.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size. Non-positive sizes
// return 1.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2. Powers of two have
// a single bit set, so clearing the lowest set bit leaves zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// Mask returns size-1 for a power-of-two size, suitable for wrapping ring
// indices. It panics if size is not a power of two.
func Mask(size int) int {
	if !IsPowerOfTwo(size) {
		panic("bitint: mask of non power of two")
	}
	return size - 1
}

// Log2 returns the base-2 logarithm of a power-of-two n.
func Log2(n int) int {
	return bits.TrailingZeros(uint(n))
}
