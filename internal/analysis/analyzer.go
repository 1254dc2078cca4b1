// SPDX-License-Identifier: MIT
/*
Package analysis measures the processed output off the real-time thread.

An Analyzer is an audio.Sink: the engine's tap goroutine hands it every
processed quantum, and it keeps a sliding window of the most recent FFTSize
samples. After each quantum it recomputes the magnitude spectrum and the
energy in each equalizer band. Readers such as the UDP publisher copy the
latest results out under a read lock.
*/
package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"

	"fxengine/internal/audio"
	"fxengine/internal/log"
	"fxengine/internal/params"
	"fxengine/pkg/bitint"
)

// NumBands is the number of band energies reported, one per EQ band.
const NumBands = params.NumEQBands

// lowestBandHz is the lower edge of the first band.
const lowestBandHz = 20.0

// ErrInvalid is wrapped by every construction failure.
var ErrInvalid = errors.New("analysis: invalid configuration")

// band is the half-open bin range [lo, hi) that belongs to one EQ band.
type band struct {
	lo, hi int
}

// Analyzer computes the spectrum and EQ-band energies of processed audio.
type Analyzer struct {
	fft        *fourier.FFT
	size       int
	sampleRate float64
	window     WindowFunc
	bands      [NumBands]band

	// Owned by the Consume goroutine.
	history []float64
	input   []float64
	coeffs  []complex128
	taper   []float64
	scale   float64

	mu        sync.RWMutex
	magnitude []float64
	energy    [NumBands]float64
	time      float64
	frames    uint64
}

var _ audio.Sink = (*Analyzer)(nil)

// NewAnalyzer builds an analyzer with a size-point FFT. size must be a power
// of two of at least 64.
func NewAnalyzer(size int, sampleRate float64, w WindowFunc) (*Analyzer, error) {
	if size < 64 || !bitint.IsPowerOfTwo(size) {
		return nil, fmt.Errorf("%w: fft size must be a power of 2 >= 64, got %d", ErrInvalid, size)
	}
	if !(sampleRate > 0) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %v", ErrInvalid, sampleRate)
	}

	bins := size/2 + 1
	a := &Analyzer{
		fft:        fourier.NewFFT(size),
		size:       size,
		sampleRate: sampleRate,
		window:     w,
		history:    make([]float64, size),
		input:      make([]float64, size),
		coeffs:     make([]complex128, bins),
		taper:      make([]float64, size),
		magnitude:  make([]float64, bins),
	}
	fillWindow(a.taper, w)

	// Single-sided amplitude: a full-scale sine centred on a bin reads 1.
	var sum float64
	for _, c := range a.taper {
		sum += c
	}
	a.scale = 2 / sum

	a.layoutBands()
	log.Debugf("Analysis: FFT size %d, %.0f Hz, %s window, %d bins", size, sampleRate, w, bins)
	return a, nil
}

// layoutBands splits the spectrum at the geometric midpoints between
// neighbouring EQ centre frequencies.
func (a *Analyzer) layoutBands() {
	bins := len(a.magnitude)
	binHz := a.sampleRate / float64(a.size)
	edge := func(hz float64) int {
		return min(bins, max(0, int(math.Ceil(hz/binHz))))
	}

	f := params.EQFrequencies
	lo := edge(lowestBandHz)
	for i := range NumBands {
		hi := bins
		if i+1 < NumBands {
			hi = edge(math.Sqrt(f[i] * f[i+1]))
		}
		a.bands[i] = band{lo: lo, hi: max(lo, hi)}
		lo = a.bands[i].hi
	}
}

// Consume slides b into the analysis window and refreshes the results.
func (a *Analyzer) Consume(b *audio.Block) {
	s := b.Samples[:]
	if len(s) >= a.size {
		s = s[len(s)-a.size:]
	} else {
		copy(a.history, a.history[len(s):])
	}
	dst := a.history[a.size-len(s):]
	for i, v := range s {
		dst[i] = float64(v)
	}

	for i, v := range a.history {
		a.input[i] = v * a.taper[i]
	}
	a.fft.Coefficients(a.coeffs, a.input)

	a.mu.Lock()
	for i, c := range a.coeffs {
		a.magnitude[i] = cmplx.Abs(c) * a.scale
	}
	for i, bd := range a.bands {
		var e float64
		for _, m := range a.magnitude[bd.lo:bd.hi] {
			e += m * m
		}
		a.energy[i] = e
	}
	a.time = b.Time
	a.frames++
	a.mu.Unlock()
}

// Size returns the FFT size.
func (a *Analyzer) Size() int {
	return a.size
}

// Bins returns the number of magnitude bins, Size/2 + 1.
func (a *Analyzer) Bins() int {
	return len(a.magnitude)
}

// SampleRate returns the rate the analyzer was built for.
func (a *Analyzer) SampleRate() float64 {
	return a.sampleRate
}

// Window returns the taper in use.
func (a *Analyzer) Window() WindowFunc {
	return a.window
}

// FrequencyForBin returns the centre frequency of bin i, or 0 when i is out
// of range.
func (a *Analyzer) FrequencyForBin(i int) float64 {
	if i < 0 || i >= len(a.magnitude) {
		return 0
	}
	return float64(i) * a.sampleRate / float64(a.size)
}

// BandRange returns the frequency range [low, high) covered by band i.
func (a *Analyzer) BandRange(i int) (low, high float64) {
	binHz := a.sampleRate / float64(a.size)
	bd := a.bands[i]
	return float64(bd.lo) * binHz, float64(bd.hi) * binHz
}

// Magnitudes returns a copy of the latest spectrum.
func (a *Analyzer) Magnitudes() []float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	m := make([]float64, len(a.magnitude))
	copy(m, a.magnitude)
	return m
}

// MagnitudesInto copies the latest spectrum into dst, which must hold
// exactly Bins values.
func (a *Analyzer) MagnitudesInto(dst []float64) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(dst) != len(a.magnitude) {
		return fmt.Errorf("destination length %d does not match %d bins", len(dst), len(a.magnitude))
	}
	copy(dst, a.magnitude)
	return nil
}

// BandEnergies returns the summed squared magnitude per EQ band, lowest
// band first.
func (a *Analyzer) BandEnergies() [NumBands]float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.energy
}

// Time returns the engine time of the most recent block and the number of
// blocks analysed so far.
func (a *Analyzer) Time() (float64, uint64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.time, a.frames
}

// FrameSize is the number of values FrameInto writes: the spectrum followed
// by the band energies.
func (a *Analyzer) FrameSize() int {
	return len(a.magnitude) + NumBands
}

// FrameInto writes the spectrum and then the band energies into dst as one
// consistent snapshot. dst must hold exactly FrameSize values.
func (a *Analyzer) FrameInto(dst []float32) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(dst) != len(a.magnitude)+NumBands {
		return fmt.Errorf("destination length %d does not match frame size %d", len(dst), len(a.magnitude)+NumBands)
	}
	for i, m := range a.magnitude {
		dst[i] = float32(m)
	}
	tail := dst[len(a.magnitude):]
	for i, e := range a.energy {
		tail[i] = float32(e)
	}
	return nil
}
