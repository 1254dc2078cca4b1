// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"sync/atomic"
)

// Gate decides whether a processed quantum is loud enough to be worth
// analysing. It never affects the audio path or recording.
type Gate struct {
	enabled   atomic.Bool
	threshold atomic.Uint32 // float32 bits, absolute peak 0..1
}

// NewGate returns an enabled gate with the given threshold.
func NewGate(threshold float64) *Gate {
	g := &Gate{}
	g.SetThreshold(threshold)
	g.enabled.Store(true)
	return g
}

func (g *Gate) Enable()  { g.enabled.Store(true) }
func (g *Gate) Disable() { g.enabled.Store(false) }

// Enabled reports whether the gate is filtering.
func (g *Gate) Enabled() bool { return g.enabled.Load() }

// SetThreshold adjusts the gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (g *Gate) SetThreshold(threshold float64) {
	threshold = math.Max(0, math.Min(1, threshold))
	g.threshold.Store(math.Float32bits(float32(threshold)))
}

// Threshold returns the current threshold.
func (g *Gate) Threshold() float64 {
	return float64(math.Float32frombits(g.threshold.Load()))
}

// Open reports whether samples should pass. A disabled gate is always open.
func (g *Gate) Open(samples []float32) bool {
	if !g.enabled.Load() {
		return true
	}
	return Peak(samples) > math.Float32frombits(g.threshold.Load())
}

// Peak returns the largest absolute sample value.
func Peak(samples []float32) float32 {
	var peak float32
	for _, s := range samples {
		// Clearing the sign bit is abs without a branch.
		a := math.Float32frombits(math.Float32bits(s) &^ (1 << 31))
		peak = max(peak, a)
	}
	return peak
}
