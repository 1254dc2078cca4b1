// SPDX-License-Identifier: MIT
package dsp

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/effects"
)

const (
	MinBitDepth   = 4
	MaxBitDepth   = 16
	MinDownsample = 1
	MaxDownsample = 8
)

// LoFi reduces amplitude resolution and holds samples to lower the
// effective sample rate.
//
// Quantization runs through an algo-dsp BitCrusher with its own hold
// disabled. The crusher snaps to 2^(depth-1) steps per unit, so it is given
// the fractional depth that yields 2^bits-1 steps. The hold is kept here
// because the crusher only refreshes its held value at the end of a hold
// period, and the first sample of every period must be the one captured.
type LoFi struct {
	bits       int
	downsample int
	crusher    *effects.BitCrusher

	held    float32
	counter int
}

// NewLoFi returns a degrader at 16 bits and no downsampling. It panics if
// sampleRate is not positive.
func NewLoFi(sampleRate float64) *LoFi {
	crusher, err := effects.NewBitCrusher(sampleRate,
		effects.WithBitCrusherDownsample(1),
		effects.WithBitCrusherMix(1),
	)
	if err != nil {
		panic(err)
	}
	l := &LoFi{crusher: crusher}
	l.Set(MaxBitDepth, MinDownsample)
	return l
}

// crusherDepth is the fractional crusher depth that quantizes to
// 2^bits-1 levels per unit.
func crusherDepth(bits int) float64 {
	return math.Log2(float64(int(1)<<bits-1)) + 1
}

// Set updates bit depth and downsample factor. Values are rounded and
// clamped to their ranges.
func (l *LoFi) Set(bits, downsample float64) {
	b := int(math.Round(min(max(bits, MinBitDepth), MaxBitDepth)))
	d := int(math.Round(min(max(downsample, MinDownsample), MaxDownsample)))
	if b != l.bits {
		l.bits = b
		// In range for every depth between MinBitDepth and MaxBitDepth.
		_ = l.crusher.SetBitDepth(crusherDepth(b))
	}
	l.downsample = d
}

// BitDepth returns the active bit depth.
func (l *LoFi) BitDepth() int { return l.bits }

// Downsample returns the active hold factor.
func (l *LoFi) Downsample() int { return l.downsample }

// Neutral reports whether the settings leave the signal unchanged.
func (l *LoFi) Neutral() bool {
	return l.bits >= MaxBitDepth && l.downsample <= MinDownsample
}

// Process quantizes each input sample and holds the result for downsample
// samples. The hold counter carries across calls.
func (l *LoFi) Process(dst, src []float32) {
	for i, s := range src {
		if l.counter == 0 {
			l.held = float32(l.crusher.ProcessSample(float64(s)))
		}
		dst[i] = l.held
		l.counter++
		if l.counter >= l.downsample {
			l.counter = 0
		}
	}
}

// Reset clears the held sample.
func (l *LoFi) Reset() {
	l.held = 0
	l.counter = 0
	l.crusher.Reset()
}
