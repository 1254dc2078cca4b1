// SPDX-License-Identifier: MIT
package chain

import (
	"testing"

	"fxengine/internal/dsp"
	"fxengine/internal/params"
	"fxengine/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRate    = 48000.0
	testQuantum = 128
)

func newFrame(set map[params.ID]float64) *params.Frame {
	f := params.NewFrame(testQuantum)
	for id, v := range set {
		f.Set(id, v)
	}
	return f
}

func TestIdentityWhenAllDisabled(t *testing.T) {
	c := New(testRate, testQuantum)
	in := utils.GenerateComplexWave(testQuantum, testRate)
	out := make([]float32, testQuantum)

	c.Process(in, out, newFrame(nil))

	assert.Equal(t, in, out)
}

func TestNeutralSkip(t *testing.T) {
	tests := []struct {
		name   string
		effect Effect
		frame  map[params.ID]float64
	}{
		{"BassBelowThreshold", BassBoost, map[params.ID]float64{params.BassBoost: 0.05}},
		{"PitchNearUnity", PitchShift, map[params.ID]float64{params.PitchShift: 1.005}},
		{"LoFiFullResolution", LoFi, map[params.ID]float64{params.LoFiBitDepth: 16, params.LoFiDownsample: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(testRate, testQuantum)
			c.SetEnabled(tt.effect, true)
			in := utils.GenerateComplexWave(testQuantum, testRate)
			out := make([]float32, testQuantum)

			c.Process(in, out, newFrame(tt.frame))

			assert.Equal(t, in, out, "neutral stage must leave output identical")
			assert.Equal(t, uint64(1), c.Skips(tt.effect))
		})
	}
}

func TestNeutralSkipConsidersWholeQuantum(t *testing.T) {
	c := New(testRate, testQuantum)
	c.SetEnabled(BassBoost, true)
	f := params.NewFrame(testQuantum)
	f.Samples(params.BassBoost)[100] = 6

	in := utils.GenerateComplexWave(testQuantum, testRate)
	out := make([]float32, testQuantum)
	c.Process(in, out, f)

	assert.Zero(t, c.Skips(BassBoost), "a ramp leaving the neutral band must run the stage")
}

func TestEQHasNoNeutralSkip(t *testing.T) {
	c := New(testRate, testQuantum)
	c.SetEnabled(EQ, true)
	in := utils.GenerateComplexWave(testQuantum, testRate)
	out := make([]float32, testQuantum)

	c.Process(in, out, newFrame(nil))

	assert.Zero(t, c.Skips(EQ))
	assert.Less(t, utils.MaxAbsDiff(in, out), 1e-4)
}

type recordingStage struct {
	effect Effect
	calls  *[]Effect
	panics int
	gain   float32
}

func (s *recordingStage) Neutral(*params.Frame) bool { return false }

func (s *recordingStage) Process(dst, src []float32, _ *params.Frame) {
	*s.calls = append(*s.calls, s.effect)
	if s.panics > 0 {
		s.panics--
		dst[0] = 99 // partial write that must be discarded
		panic("stage failure")
	}
	for i := range src {
		dst[i] = src[i] * s.gain
	}
}

func TestFixedOrder(t *testing.T) {
	var calls []Effect
	opts := make([]Option, 0, NumEffects)
	for _, e := range []Effect{LoFi, PitchShift, BassBoost, EQ} {
		opts = append(opts, WithStage(e, &recordingStage{effect: e, calls: &calls, gain: 1}))
	}
	c := New(testRate, testQuantum, opts...)
	for e := range NumEffects {
		c.SetEnabled(e, true)
	}

	in := make([]float32, testQuantum)
	out := make([]float32, testQuantum)
	c.Process(in, out, newFrame(nil))

	assert.Equal(t, []Effect{EQ, BassBoost, PitchShift, LoFi}, calls)
}

func TestFaultIsolation(t *testing.T) {
	var calls []Effect
	var faulted []Effect
	faulty := &recordingStage{effect: EQ, calls: &calls, panics: 1, gain: 0.5}
	c := New(testRate, testQuantum,
		WithStage(EQ, faulty),
		WithFaultHandler(func(e Effect, r any) { faulted = append(faulted, e) }),
	)
	c.SetEnabled(EQ, true)
	c.SetEnabled(LoFi, true)
	f := newFrame(map[params.ID]float64{params.LoFiBitDepth: 4})

	in := utils.GenerateSineWave(testQuantum, testRate, 440, 0.8)
	out := make([]float32, testQuantum)

	// Quantum 1: EQ panics, lo-fi still runs on the unmodified signal.
	ref := dsp.NewLoFi(testRate)
	ref.Set(4, 1)
	want := make([]float32, testQuantum)
	ref.Process(want, in)

	c.Process(in, out, f)
	assert.Equal(t, want, out)
	assert.Equal(t, uint64(1), c.Faults(EQ))
	assert.Equal(t, []Effect{EQ}, faulted)

	// Quantum 2: EQ recovers, no persistent failure state.
	halved := make([]float32, testQuantum)
	for i := range in {
		halved[i] = in[i] * 0.5
	}
	ref.Process(want, halved)

	c.Process(in, out, f)
	assert.Equal(t, want, out)
	assert.Equal(t, uint64(1), c.TotalFaults())
}

func TestStateCommands(t *testing.T) {
	c := New(testRate, testQuantum)
	c.SetEnabled(EQ, true)

	p, err := PatchFromMap(map[string]bool{"bassBoost": true, "loFi": true})
	require.NoError(t, err)
	c.Apply(p)

	assert.Equal(t, map[string]bool{"eq": true, "bassBoost": true, "pitchShift": false, "loFi": true}, c.State().Map())

	c.Apply(Patch{}.With(EQ, false))
	assert.False(t, c.State().Enabled[EQ])
	assert.True(t, c.State().Enabled[BassBoost], "partial merge keeps other slots")

	c.Reset()
	assert.Equal(t, State{}, c.State())

	_, err = PatchFromMap(map[string]bool{"reverb": true})
	assert.Error(t, err)
}

func TestResetClearsModuleState(t *testing.T) {
	f := newFrame(map[params.ID]float64{
		params.EQ1k:           12,
		params.BassBoost:      12,
		params.PitchShift:     2,
		params.LoFiBitDepth:   4,
		params.LoFiDownsample: 4,
	})
	enableAll := func(c *Controller) {
		for e := range NumEffects {
			c.SetEnabled(e, true)
		}
	}
	silence := make([]float32, testQuantum)
	out := make([]float32, testQuantum)

	tail := New(testRate, testQuantum)
	enableAll(tail)
	tail.Process(utils.GenerateComplexWave(testQuantum, testRate), out, f)
	tail.Process(silence, out, f)
	require.NotEqual(t, silence, out, "modules ring on without a reset")

	c := New(testRate, testQuantum)
	c.Pitch().SetWindowSize(0.1)
	enableAll(c)
	c.Process(utils.GenerateComplexWave(testQuantum, testRate), out, f)
	c.Reset()
	assert.Equal(t, State{}, c.State())

	enableAll(c)
	c.Process(silence, out, f)
	assert.Equal(t, silence, out)
	assert.Equal(t, 0.1, c.Pitch().WindowSize())
}

func TestEffectNames(t *testing.T) {
	for e := range NumEffects {
		b, err := e.MarshalText()
		require.NoError(t, err)
		var got Effect
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, e, got)
	}
	assert.Equal(t, "pitchShift", PitchShift.String())
}

func TestProcessDoesNotAllocate(t *testing.T) {
	c := New(testRate, testQuantum)
	for e := range NumEffects {
		c.SetEnabled(e, true)
	}
	f := newFrame(map[params.ID]float64{
		params.BassBoost:      6,
		params.PitchShift:     1.5,
		params.LoFiBitDepth:   8,
		params.LoFiDownsample: 2,
		params.EQ1k:           3,
	})
	in := utils.GenerateComplexWave(testQuantum, testRate)
	out := make([]float32, testQuantum)

	allocs := testing.AllocsPerRun(100, func() {
		c.Process(in, out, f)
	})
	assert.Zero(t, allocs)
}

func BenchmarkFullChain(b *testing.B) {
	c := New(testRate, testQuantum)
	for e := range NumEffects {
		c.SetEnabled(e, true)
	}
	f := newFrame(map[params.ID]float64{params.BassBoost: 6, params.PitchShift: 1.5, params.LoFiBitDepth: 8})
	in := utils.GenerateComplexWave(testQuantum, testRate)
	out := make([]float32, testQuantum)
	b.ReportAllocs()
	for b.Loop() {
		c.Process(in, out, f)
	}
}
