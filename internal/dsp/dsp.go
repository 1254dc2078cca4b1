// SPDX-License-Identifier: MIT
/*
Package dsp implements the effect modules driven by the chain controller:
a 7-band equalizer, a low-shelf bass boost, a WSOLA granular pitch shifter
and a bit-depth/sample-rate degrader.

Modules keep their filter and buffer state across calls, so a stream
processed quantum by quantum is identical to one processed in a single
call. Process methods write len(src) samples of dst, never allocate and may
be called with dst and src aliasing unless stated otherwise.

None of the modules are safe for concurrent use. They are owned by the
real-time context.
*/
package dsp

import "github.com/cwbudde/algo-dsp/dsp/filter/biquad"

// identity is a pass-through biquad, used for bands that cannot be realised
// at the current sample rate.
var identity = biquad.Coefficients{B0: 1}

// designed returns c unless it is the zero value returned by the design
// package for unrealisable frequencies.
func designed(c biquad.Coefficients) biquad.Coefficients {
	if c == (biquad.Coefficients{}) {
		return identity
	}
	return c
}
