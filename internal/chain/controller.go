// SPDX-License-Identifier: MIT
/*
Package chain sequences the effect modules over one quantum.

The order is fixed: equalizer, bass boost, pitch shift, lo-fi. The output
buffer starts as a copy of the input; each enabled, non-neutral stage reads
the output buffer and writes a private scratch buffer, which is copied back
before the next stage runs. A stage that panics is skipped for that quantum
and the chain carries on with the pre-stage content.

A Controller is owned by the real-time context. Its state changes only
through SetEnabled, Apply and Reset, which the callback host calls while
draining commands at a quantum boundary.
*/
package chain

import (
	"math"
	"sync/atomic"

	"fxengine/internal/dsp"
	"fxengine/internal/params"
)

// Neutral thresholds below which an enabled stage is bypassed.
const (
	BassNeutralDB    = 0.1
	PitchNeutralBand = 0.01
)

// Stage is one slot of the chain.
type Stage interface {
	// Neutral reports whether the resolved parameters leave the signal
	// unchanged, so the stage can be bypassed.
	Neutral(f *params.Frame) bool
	// Process reads src and writes len(src) samples to dst.
	Process(dst, src []float32, f *params.Frame)
}

// FaultHandler is called from the real-time context when a stage panics.
// It must not block.
type FaultHandler func(e Effect, recovered any)

// Controller runs the chain.
type Controller struct {
	stages  [NumEffects]Stage
	state   State
	scratch []float32

	eq    *dsp.Equalizer
	bass  *dsp.BassBoost
	pitch *dsp.PitchShifter
	lofi  *dsp.LoFi

	onFault FaultHandler
	faults  [NumEffects]atomic.Uint64
	skips   [NumEffects]atomic.Uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithStage replaces the stage in slot e.
func WithStage(e Effect, s Stage) Option {
	return func(c *Controller) {
		c.stages[e] = s
	}
}

// WithFaultHandler installs h to observe stage panics.
func WithFaultHandler(h FaultHandler) Option {
	return func(c *Controller) {
		c.onFault = h
	}
}

// New builds a chain with every slot disabled, for quanta of up to quantum
// samples.
func New(sampleRate float64, quantum int, opts ...Option) *Controller {
	c := &Controller{
		scratch: make([]float32, quantum),
		eq:      dsp.NewEqualizer(sampleRate),
		bass:    dsp.NewBassBoost(sampleRate),
		pitch:   dsp.NewPitchShifter(sampleRate),
		lofi:    dsp.NewLoFi(sampleRate),
	}
	c.stages = [NumEffects]Stage{
		EQ:         &eqStage{c.eq},
		BassBoost:  &bassStage{c.bass},
		PitchShift: &pitchStage{c.pitch},
		LoFi:       &lofiStage{c.lofi},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Process runs one quantum from in to out.
func (c *Controller) Process(in, out []float32, f *params.Frame) {
	n := min(len(in), len(out), len(c.scratch))
	out = out[:n]
	copy(out, in[:n])

	for _, e := range Order {
		if !c.state.Enabled[e] {
			continue
		}
		if c.run(e, out, f) {
			copy(out, c.scratch[:n])
		}
	}
}

// run executes one stage into scratch and reports whether scratch holds a
// result to keep.
func (c *Controller) run(e Effect, out []float32, f *params.Frame) (applied bool) {
	defer func() {
		if r := recover(); r != nil {
			applied = false
			c.faults[e].Add(1)
			if c.onFault != nil {
				c.onFault(e, r)
			}
		}
	}()

	s := c.stages[e]
	if s.Neutral(f) {
		c.skips[e].Add(1)
		return false
	}
	s.Process(c.scratch[:len(out)], out, f)
	return true
}

// SetEnabled toggles one slot.
func (c *Controller) SetEnabled(e Effect, on bool) {
	if e.Valid() {
		c.state.Enabled[e] = on
	}
}

// Apply merges a partial update into the chain state.
func (c *Controller) Apply(p Patch) {
	c.state.Apply(p)
}

// Reset disables every slot and clears the filter, ring and hold state of
// each module. Settings such as the pitch grain window are kept.
func (c *Controller) Reset() {
	c.state = State{}
	c.eq.Reset()
	c.bass.Reset()
	c.pitch.Reset()
	c.lofi.Reset()
}

// State returns a copy of the chain state.
func (c *Controller) State() State {
	return c.state
}

// Pitch returns the pitch shifter so its grain settings can be configured.
func (c *Controller) Pitch() *dsp.PitchShifter {
	return c.pitch
}

// Faults returns how many times the stage in slot e panicked.
func (c *Controller) Faults(e Effect) uint64 {
	return c.faults[e].Load()
}

// TotalFaults sums Faults over all slots.
func (c *Controller) TotalFaults() uint64 {
	var n uint64
	for i := range c.faults {
		n += c.faults[i].Load()
	}
	return n
}

// Skips returns how many quanta bypassed slot e as neutral.
func (c *Controller) Skips(e Effect) uint64 {
	return c.skips[e].Load()
}

type eqStage struct{ eq *dsp.Equalizer }

func (s *eqStage) Neutral(*params.Frame) bool { return false }

func (s *eqStage) Process(dst, src []float32, f *params.Frame) {
	s.eq.SetGains(f)
	s.eq.Process(dst, src)
}

type bassStage struct{ bass *dsp.BassBoost }

func (s *bassStage) Neutral(f *params.Frame) bool {
	return withinOf(f, params.BassBoost, 0, BassNeutralDB)
}

func (s *bassStage) Process(dst, src []float32, f *params.Frame) {
	gains := f.Samples(params.BassBoost)
	if gains == nil {
		s.bass.SetGain(f.Value(params.BassBoost))
	}
	s.bass.Process(dst, src, gains)
}

type pitchStage struct{ pitch *dsp.PitchShifter }

func (s *pitchStage) Neutral(f *params.Frame) bool {
	return withinOf(f, params.PitchShift, 1, PitchNeutralBand)
}

func (s *pitchStage) Process(dst, src []float32, f *params.Frame) {
	ratios := f.Samples(params.PitchShift)
	if ratios == nil {
		s.pitch.SetRatio(f.Value(params.PitchShift))
	}
	s.pitch.Process(dst, src, ratios)
}

type lofiStage struct{ lofi *dsp.LoFi }

func (s *lofiStage) Neutral(f *params.Frame) bool {
	return f.Value(params.LoFiBitDepth) >= dsp.MaxBitDepth && f.Value(params.LoFiDownsample) <= dsp.MinDownsample
}

func (s *lofiStage) Process(dst, src []float32, f *params.Frame) {
	s.lofi.Set(f.Value(params.LoFiBitDepth), f.Value(params.LoFiDownsample))
	s.lofi.Process(dst, src)
}

// withinOf reports whether every value of id in the frame lies strictly
// within eps of ref.
func withinOf(f *params.Frame, id params.ID, ref, eps float64) bool {
	if math.Abs(f.Value(id)-ref) >= eps {
		return false
	}
	for _, v := range f.Samples(id) {
		if math.Abs(v-ref) >= eps {
			return false
		}
	}
	return true
}

var (
	_ Stage = (*eqStage)(nil)
	_ Stage = (*bassStage)(nil)
	_ Stage = (*pitchStage)(nil)
	_ Stage = (*lofiStage)(nil)
)
