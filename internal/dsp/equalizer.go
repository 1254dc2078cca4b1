// SPDX-License-Identifier: MIT
package dsp

import (
	"fxengine/internal/params"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
)

const (
	// EQMaxGain bounds every band in dB.
	EQMaxGain = 15.0

	shelfQ = 0.707
	peakQ  = 1.0
)

// Equalizer is a cascade of seven biquads: a low shelf at the lowest band,
// peaking filters in between and a high shelf at the top band.
type Equalizer struct {
	sampleRate float64
	gains      [params.NumEQBands]float64
	sections   [params.NumEQBands]biquad.Section
}

// NewEqualizer returns a flat equalizer for the given sample rate.
func NewEqualizer(sampleRate float64) *Equalizer {
	e := &Equalizer{sampleRate: sampleRate}
	for i := range e.sections {
		e.sections[i].Coefficients = e.design(i, 0)
	}
	return e
}

func (e *Equalizer) design(band int, gain float64) biquad.Coefficients {
	f := params.EQFrequencies[band]
	switch band {
	case 0:
		return designed(design.LowShelf(f, gain, shelfQ, e.sampleRate))
	case params.NumEQBands - 1:
		return designed(design.HighShelf(f, gain, shelfQ, e.sampleRate))
	default:
		return designed(design.Peak(f, gain, peakQ, e.sampleRate))
	}
}

// SetGain sets one band in dB, clamped to ±EQMaxGain. Coefficients are only
// recomputed when the gain changes; filter state is kept.
func (e *Equalizer) SetGain(band int, gain float64) {
	if band < 0 || band >= params.NumEQBands {
		return
	}
	gain = min(max(gain, -EQMaxGain), EQMaxGain)
	if gain == e.gains[band] {
		return
	}
	e.gains[band] = gain
	e.sections[band].Coefficients = e.design(band, gain)
}

// Gain returns the gain of one band in dB.
func (e *Equalizer) Gain(band int) float64 {
	return e.gains[band]
}

// SetGains applies the seven band gains of a resolved frame.
func (e *Equalizer) SetGains(f *params.Frame) {
	for i, id := range params.EQBands {
		e.SetGain(i, f.Value(id))
	}
}

// Process filters src into dst through all bands.
func (e *Equalizer) Process(dst, src []float32) {
	for i, s := range src {
		x := float64(s)
		for b := range e.sections {
			x = e.sections[b].ProcessSample(x)
		}
		dst[i] = float32(x)
	}
}

// ResponseDB returns the combined magnitude response at freq Hz.
func (e *Equalizer) ResponseDB(freq float64) float64 {
	var db float64
	for i := range e.sections {
		db += e.sections[i].Coefficients.MagnitudeDB(freq, e.sampleRate)
	}
	return db
}

// Reset clears the filter state but keeps the gains.
func (e *Equalizer) Reset() {
	for i := range e.sections {
		e.sections[i].Reset()
	}
}
