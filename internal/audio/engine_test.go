// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxengine/internal/chain"
	"fxengine/internal/config"
	"fxengine/internal/control"
	"fxengine/internal/params"
	"fxengine/pkg/utils"
)

type countingSink struct {
	blocks int
	last   float64
}

func (s *countingSink) Consume(b *Block) {
	s.blocks++
	s.last = b.Time
}

func newTestEngine(t *testing.T, sinks ...Sink) (*Engine, *control.Channel) {
	t.Helper()
	cfg := config.Default()
	cfg.Audio.SampleRate = testSampleRate
	ch := control.NewChannel(64)
	e, err := newEngine(cfg, ch, sinks...)
	require.NoError(t, err)
	return e, ch
}

func runQuanta(e *Engine, signal []float32) {
	out := make([]float32, QuantumSize)
	for i := 0; i+QuantumSize <= len(signal); i += QuantumSize {
		e.host.Process(signal[i:i+QuantumSize], out)
		e.drainOnce()
	}
}

func TestEngineRecordsProcessedOutput(t *testing.T) {
	e, _ := newTestEngine(t)
	filename := filepath.Join(t.TempDir(), "out.wav")

	require.NoError(t, e.StartRecording(filename))
	assert.True(t, e.Recording())
	assert.ErrorContains(t, e.StartRecording(filename), "already recording")

	const blocks = 20
	runQuanta(e, utils.GenerateSineWave(blocks*QuantumSize, testSampleRate, 440, 0.5))
	require.NoError(t, e.StopRecording())
	assert.False(t, e.Recording())
	require.NoError(t, e.StopRecording(), "stop when not recording")

	f, err := os.Open(filename)
	require.NoError(t, err)
	defer f.Close()

	d := wav.NewDecoder(f)
	buf, err := d.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, uint32(testSampleRate), d.SampleRate)
	assert.Equal(t, uint16(16), d.BitDepth)
	assert.Equal(t, uint16(1), d.NumChans)
	assert.Len(t, buf.Data, blocks*QuantumSize)

	peak := 0
	for _, v := range buf.Data {
		peak = max(peak, v, -v)
	}
	assert.InDelta(t, 0.5*32767, peak, 200)
}

func TestEngineRecordingErrors(t *testing.T) {
	e, _ := newTestEngine(t)
	assert.Error(t, e.StartRecording("/nonexistent/path/file.wav"))
	assert.False(t, e.Recording())

	_, err := NewRecorder(filepath.Join(t.TempDir(), "x.wav"), 44100, 8)
	assert.Error(t, err)
}

func TestRecorderClips(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "clip.wav")
	r, err := NewRecorder(filename, 8000, 16)
	require.NoError(t, err)
	require.NoError(t, r.Write([]float32{2, -2, 0.5}))
	require.NoError(t, r.Close())

	f, err := os.Open(filename)
	require.NoError(t, err)
	defer f.Close()
	buf, err := wav.NewDecoder(f).FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, []int{32767, -32767, 16384}, buf.Data)
}

func TestEngineGateFiltersSinks(t *testing.T) {
	sink := &countingSink{}
	e, _ := newTestEngine(t, sink)
	quiet := utils.GenerateSineWave(4*QuantumSize, testSampleRate, 440, 0.0001)
	loud := utils.GenerateSineWave(4*QuantumSize, testSampleRate, 440, 0.5)

	runQuanta(e, quiet)
	assert.Zero(t, sink.blocks, "quiet quanta are gated")

	runQuanta(e, loud)
	assert.Equal(t, 4, sink.blocks)
	assert.InDelta(t, 7*QuantumSize/testSampleRate, sink.last, 1e-12)

	e.Gate().Disable()
	runQuanta(e, quiet)
	assert.Equal(t, 8, sink.blocks)
}

func TestGateThreshold(t *testing.T) {
	g := NewGate(2)
	assert.Equal(t, 1.0, g.Threshold())
	g.SetThreshold(-1)
	assert.Zero(t, g.Threshold())
	assert.True(t, g.Open([]float32{0.001}))
	assert.False(t, g.Open([]float32{0}), "silence never exceeds the threshold")

	assert.Equal(t, float32(0.75), Peak([]float32{0.1, -0.75, 0.5}))

	samples := []float32{0.1, -0.2}
	allocs := testing.AllocsPerRun(100, func() {
		g.Open(samples)
	})
	assert.Zero(t, allocs)
}

func TestEngineWorkersStop(t *testing.T) {
	sink := &countingSink{}
	e, _ := newTestEngine(t, sink)

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.startWorkers(ctx)

	in := utils.GenerateSineWave(QuantumSize, testSampleRate, 440, 0.5)
	e.host.Process(in, make([]float32, QuantumSize))

	done := make(chan struct{})
	go func() {
		assert.NoError(t, e.Close())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not stop the workers")
	}
	assert.Equal(t, 1, sink.blocks, "pending blocks are drained on stop")
}

func TestConfigureFitsMinimumQueue(t *testing.T) {
	ch := control.NewChannel(config.MinQueueCapacity)
	h, err := NewHost(testSampleRate, ch)
	require.NoError(t, err)
	s := control.NewSurface(ch, h)

	ec := config.Default().Effects
	ec.Enabled = []string{"eq", "bassBoost", "pitchShift", "loFi"}
	ec.EQPreset = "rock"
	ec.Parameters = make(map[string]float64, params.Count)
	for id := range params.Count {
		ec.Parameters[id.String()] = id.Descriptor().Default
	}

	require.NoError(t, Configure(s, ec), "startup commands must fit before the first quantum")
	assert.Equal(t, 2+params.NumEQBands+int(params.Count), ch.Commands.Len())
}

func TestConfigureAppliesEffectsSection(t *testing.T) {
	ch := control.NewChannel(64)
	h, err := NewHost(testSampleRate, ch)
	require.NoError(t, err)
	s := control.NewSurface(ch, h)

	ec := config.EffectsConfig{
		Enabled:        []string{"eq", "loFi"},
		EQPreset:       "jazz",
		Parameters:     map[string]float64{"eq_1khz": -3, "loFiBitDepth": 8},
		PitchWindow:    0.1,
		PitchCrossfade: 0.25,
	}
	require.NoError(t, Configure(s, ec))

	h.Process(make([]float32, QuantumSize), make([]float32, QuantumSize))
	require.True(t, ch.Commands.Push(control.Command{Type: control.TypeGetStatus}))
	h.Process(make([]float32, QuantumSize), make([]float32, QuantumSize))

	r, ok := ch.Responses.Pop()
	require.True(t, ok)
	assert.Equal(t, [chain.NumEffects]bool{true, false, false, true}, r.Chain.Enabled)
	assert.Equal(t, 3.0, r.Params[params.EQ100], "jazz preset")
	assert.Equal(t, -3.0, r.Params[params.EQ1k], "explicit value wins over preset")
	assert.Equal(t, 8.0, r.Params[params.LoFiBitDepth])
	assert.Equal(t, 0.1, h.chain.Pitch().WindowSize())
	assert.Equal(t, 0.25, h.chain.Pitch().Crossfade())

	assert.Error(t, Configure(s, config.EffectsConfig{Enabled: []string{"reverb"}, PitchWindow: 0.1}))
}
