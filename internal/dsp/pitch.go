// SPDX-License-Identifier: MIT
package dsp

import (
	"math"

	"gonum.org/v1/gonum/dsp/window"
)

const (
	MinSemitones = -12.0
	MaxSemitones = 12.0
	MinRatio     = 0.25
	MaxRatio     = 4.0

	MinWindowSize     = 0.06
	MaxWindowSize     = 0.24
	DefaultWindowSize = 0.16
	DefaultCrossfade  = 0.5

	minGrain = 32
	minHop   = 8
)

// PitchShifter is a granular pitch shifter in the WSOLA family. Input is
// written into a two-lane ring of two seconds; output is read back by a head
// advancing at the pitch ratio, as two half-grain-offset grains weighted by
// a Hann table and summed.
type PitchShifter struct {
	sampleRate float64

	ringL      []float32
	ringR      []float32
	writeIndex int
	readPhase  float64

	windowBuf []float64
	window    []float64
	grain     int
	overlap   int
	rebuilds  int

	windowSize float64
	crossfade  float64
	ratio      float64
}

// NewPitchShifter allocates the ring and the largest window table the ring
// allows, so later window changes never allocate.
func NewPitchShifter(sampleRate float64) *PitchShifter {
	size := int(2 * sampleRate)
	p := &PitchShifter{
		sampleRate: sampleRate,
		ringL:      make([]float32, size),
		ringR:      make([]float32, size),
		windowBuf:  make([]float64, size>>1),
		windowSize: DefaultWindowSize,
		crossfade:  DefaultCrossfade,
		ratio:      1,
	}
	p.updateWindow(int(math.Floor(p.windowSize * sampleRate)))
	return p
}

// SetSemitones sets the shift in semitones, clamped to ±12.
func (p *PitchShifter) SetSemitones(semitones float64) {
	semitones = min(max(semitones, MinSemitones), MaxSemitones)
	p.ratio = math.Pow(2, semitones/12)
}

// SetRatio sets the playback-rate ratio directly, clamped to [0.25, 4].
func (p *PitchShifter) SetRatio(ratio float64) {
	p.ratio = min(max(ratio, MinRatio), MaxRatio)
}

// Ratio returns the ratio used when Process is given no per-sample ratios.
func (p *PitchShifter) Ratio() float64 { return p.ratio }

// SetWindowSize sets the grain length in seconds, clamped to [0.06, 0.24].
// The table is rebuilt at the next Process if the grain length changes.
func (p *PitchShifter) SetWindowSize(seconds float64) {
	p.windowSize = min(max(seconds, MinWindowSize), MaxWindowSize)
}

// WindowSize returns the configured grain length in seconds.
func (p *PitchShifter) WindowSize() float64 { return p.windowSize }

// SetCrossfade sets the grain crossfade amount, clamped to [0, 1].
func (p *PitchShifter) SetCrossfade(amount float64) {
	p.crossfade = min(max(amount, 0), 1)
}

// Crossfade returns the configured crossfade amount.
func (p *PitchShifter) Crossfade() float64 { return p.crossfade }

// GrainSize returns the current grain length in samples.
func (p *PitchShifter) GrainSize() int { return p.grain }

// Overlap returns the overlap in samples derived from the grain length.
func (p *PitchShifter) Overlap() int { return p.overlap }

// Rebuilds returns how many times the window table has been built.
func (p *PitchShifter) Rebuilds() int { return p.rebuilds }

// Capacity returns the ring length per lane in samples.
func (p *PitchShifter) Capacity() int { return len(p.ringL) }

func (p *PitchShifter) updateWindow(size int) {
	n := max(minGrain, min(len(p.ringL)>>1, size))
	if p.window != nil && len(p.window) == n {
		return
	}
	p.grain = n
	p.overlap = max(minHop, n/2)
	p.window = p.windowBuf[:n]
	for i := range p.window {
		p.window[i] = 1
	}
	window.Hann(p.window)
	p.rebuilds++
}

func (p *PitchShifter) write(inL, inR []float32) {
	size := len(p.ringL)
	for i, s := range inL {
		p.ringL[p.writeIndex] = s
		if inR != nil {
			p.ringR[p.writeIndex] = inR[i]
		} else {
			p.ringR[p.writeIndex] = s
		}
		p.writeIndex++
		if p.writeIndex == size {
			p.writeIndex = 0
		}
	}
}

func lerp(ring []float32, idx float64) float64 {
	size := len(ring)
	fl := math.Floor(idx)
	i0 := int(fl) % size
	i1 := (i0 + 1) % size
	frac := idx - fl
	return float64(ring[i0])*(1-frac) + float64(ring[i1])*frac
}

// Process shifts a mono block. ratios, when non-nil, gives the read-head
// advance per sample; otherwise the configured ratio is used.
func (p *PitchShifter) Process(dst, src []float32, ratios []float64) {
	p.ProcessStereo(dst, nil, src, nil, ratios)
}

// ProcessStereo shifts one block on both lanes. A nil inR duplicates inL
// into the second lane; a nil outR skips reading it back.
func (p *PitchShifter) ProcessStereo(outL, outR, inL, inR []float32, ratios []float64) {
	p.updateWindow(int(math.Floor(p.windowSize * p.sampleRate)))
	p.write(inL, inR)

	n := len(inL)
	size := float64(len(p.ringL))
	grain := p.grain
	half := float64(grain) * 0.5
	hop := max(minHop, int(math.Floor((1-p.crossfade)*float64(grain))))
	phase := p.readPhase

	for i := range n {
		p0 := phase
		p1 := phase + half

		wIdx := i % grain
		w := p.window[wIdx]
		w2 := p.window[(wIdx+(grain>>1))%grain]

		outL[i] = float32(lerp(p.ringL, p0)*w + lerp(p.ringL, p1)*w2)
		if outR != nil {
			outR[i] = float32(lerp(p.ringR, p0)*w + lerp(p.ringR, p1)*w2)
		}

		if i < len(ratios) {
			phase += ratios[i]
		} else {
			phase += p.ratio
		}

		if i%hop == 0 {
			if phase >= size {
				phase -= size
			}
			if phase < 0 {
				phase += size
			}
		}
	}

	p.readPhase = math.Mod(p.readPhase+float64(n), size)
}

// Reset clears the ring and cursors. Settings and the window table are kept.
func (p *PitchShifter) Reset() {
	clear(p.ringL)
	clear(p.ringR)
	p.writeIndex = 0
	p.readPhase = 0
}
