// SPDX-License-Identifier: MIT
package dsp

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
)

const (
	// BassMaxGain bounds the shelf gain in dB.
	BassMaxGain = 20.0
	// BassFrequency is the shelf corner in Hz.
	BassFrequency = 150.0

	// bassControlBlock is the sub-block length over which an automated gain
	// is held before the shelf is redesigned.
	bassControlBlock = 32
	bassGainEpsilon  = 0.01
)

// BassBoost is a low-shelf filter with automatable gain.
type BassBoost struct {
	sampleRate float64
	gain       float64
	section    biquad.Section
}

// NewBassBoost returns a bass boost at 0 dB.
func NewBassBoost(sampleRate float64) *BassBoost {
	b := &BassBoost{sampleRate: sampleRate}
	b.section.Coefficients = b.design(0)
	return b
}

func (b *BassBoost) design(gain float64) biquad.Coefficients {
	return designed(design.LowShelf(BassFrequency, gain, shelfQ, b.sampleRate))
}

// SetGain sets the shelf gain in dB, clamped to ±BassMaxGain.
func (b *BassBoost) SetGain(gain float64) {
	gain = min(max(gain, -BassMaxGain), BassMaxGain)
	if gain == b.gain {
		return
	}
	b.gain = gain
	b.section.Coefficients = b.design(gain)
}

// Gain returns the current shelf gain in dB.
func (b *BassBoost) Gain() float64 {
	return b.gain
}

// Process filters src into dst. gains, when non-nil, carries one gain per
// sample; it is sampled at the start of every control sub-block and the
// shelf is redesigned when it has moved.
func (b *BassBoost) Process(dst, src []float32, gains []float64) {
	for start := 0; start < len(src); start += bassControlBlock {
		if start < len(gains) {
			if g := gains[start]; math.Abs(g-b.gain) > bassGainEpsilon {
				b.SetGain(g)
			}
		}
		end := min(start+bassControlBlock, len(src))
		for i := start; i < end; i++ {
			dst[i] = float32(b.section.ProcessSample(float64(src[i])))
		}
	}
}

// Reset clears the filter state.
func (b *BassBoost) Reset() {
	b.section.Reset()
}
