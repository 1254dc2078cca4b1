// SPDX-License-Identifier: MIT
/*
Package render runs a WAV file through the effect chain offline.

The input is mixed down to mono, resampled to the engine rate when the rates
differ, and pushed through an audio.Host one quantum at a time, exactly as
the real-time callback would. The processed signal is written with the same
recorder the live engine uses.
*/
package render

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/wav"
	resampling "github.com/tphakala/go-audio-resampler"
	"github.com/tphakala/simd/f32"

	"fxengine/internal/audio"
	"fxengine/internal/config"
	"fxengine/internal/control"
	"fxengine/internal/log"
)

// ErrInput is wrapped by failures reading the source file.
var ErrInput = errors.New("render: invalid input")

// Options describe one render.
type Options struct {
	Input  string
	Output string

	// SampleRate is the engine rate. Zero keeps the input rate.
	SampleRate int
	BitDepth   int
	Gain       float64 // linear output gain, zero means unity
	Quality    resampling.QualityPreset

	Effects config.EffectsConfig
	Sinks   []audio.Sink
}

// Result summarises a finished render.
type Result struct {
	InputRate  int
	SampleRate int
	Frames     int
	Quanta     int
	Peak       float32
	Faults     uint64
}

// Render processes opts.Input into opts.Output.
func Render(ctx context.Context, opts Options) (*Result, error) {
	samples, inRate, err := ReadWAV(opts.Input)
	if err != nil {
		return nil, err
	}

	rate := opts.SampleRate
	if rate == 0 {
		rate = inRate
	}
	if rate != inRate {
		log.Infof("Render: resampling %d Hz -> %d Hz", inRate, rate)
		samples, err = resampling.ResampleMonoFloat32(samples, float64(inRate), float64(rate), opts.Quality)
		if err != nil {
			return nil, fmt.Errorf("resampling: %w", err)
		}
	}

	ch := control.NewChannel(config.DefaultQueueCapacity)
	host, err := audio.NewHost(float64(rate), ch)
	if err != nil {
		return nil, err
	}
	if err := audio.Configure(control.NewSurface(ch, host), opts.Effects); err != nil {
		return nil, err
	}

	bitDepth := opts.BitDepth
	if bitDepth == 0 {
		bitDepth = config.DefaultBitDepth
	}
	rec, err := audio.NewRecorder(opts.Output, rate, bitDepth)
	if err != nil {
		return nil, err
	}

	res, err := process(ctx, host, samples, opts, rec)
	if cerr := rec.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		os.Remove(opts.Output)
		return nil, err
	}
	res.InputRate = inRate
	res.SampleRate = rate
	log.Infof("Render: %d frames in %d quanta, peak %.3f, %d faults", res.Frames, res.Quanta, res.Peak, res.Faults)
	return res, nil
}

func process(ctx context.Context, host *audio.Host, samples []float32, opts Options, rec *audio.Recorder) (*Result, error) {
	gain := float32(opts.Gain)
	if gain == 0 {
		gain = 1
	}

	res := &Result{Frames: len(samples)}
	var in [audio.QuantumSize]float32
	var blk audio.Block

	for off := 0; off < len(samples); off += audio.QuantumSize {
		if res.Quanta%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		n := copy(in[:], samples[off:])
		clear(in[n:])
		blk.Time = host.Now()
		host.Process(in[:], blk.Samples[:])
		res.Quanta++

		out := blk.Samples[:n]
		if gain != 1 {
			f32.Scale(out, out, gain)
		}
		res.Peak = max(res.Peak, audio.Peak(out))
		for _, s := range opts.Sinks {
			s.Consume(&blk)
		}
		if err := rec.Write(out); err != nil {
			return nil, err
		}
	}
	res.Faults = host.Faults()
	host.Logs().Flush()
	return res, nil
}

// ReadWAV decodes path into mono float32 samples in [-1, 1] and returns them
// with the file's sample rate. Multi-channel files are averaged.
func ReadWAV(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrInput, err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: %s is not a WAV file", ErrInput, path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: decoding %s: %w", ErrInput, path, err)
	}

	channels := buf.Format.NumChannels
	if channels < 1 || buf.SourceBitDepth < 8 {
		return nil, 0, fmt.Errorf("%w: %d channels at %d bits", ErrInput, channels, buf.SourceBitDepth)
	}
	// 8-bit WAV is unsigned; the decoder leaves the offset in place.
	var offset float64
	if buf.SourceBitDepth == 8 {
		offset = 128
	}
	scale := 1 / (math.Exp2(float64(buf.SourceBitDepth-1)) * float64(channels))

	frames := len(buf.Data) / channels
	out := make([]float32, frames)
	for i := range out {
		var sum float64
		for c := range channels {
			sum += float64(buf.Data[i*channels+c]) - offset
		}
		out[i] = float32(sum * scale)
	}
	return out, buf.Format.SampleRate, nil
}
