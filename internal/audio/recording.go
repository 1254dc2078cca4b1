// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"fxengine/internal/log"
)

// Recorder writes mono float32 quanta to a PCM WAV file. It is used from
// control goroutines only, never from the audio callback.
type Recorder struct {
	file      *os.File
	encoder   *wav.Encoder
	sampleBuf *audio.IntBuffer // reusable buffer for format conversion
	fullScale float64
}

// NewRecorder creates filename and writes a mono WAV header for the given
// sample rate and bit depth (16 or 24).
func NewRecorder(filename string, sampleRate, bitDepth int) (*Recorder, error) {
	if bitDepth != 16 && bitDepth != 24 {
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	return &Recorder{
		file:    file,
		encoder: wav.NewEncoder(file, sampleRate, bitDepth, 1, 1),
		sampleBuf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
			Data:           make([]int, 0, QuantumSize),
			SourceBitDepth: bitDepth,
		},
		fullScale: math.Exp2(float64(bitDepth-1)) - 1,
	}, nil
}

// Write appends samples, clipping them to [-1, 1].
func (r *Recorder) Write(samples []float32) error {
	data := r.sampleBuf.Data[:0]
	for _, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		data = append(data, int(math.Round(v*r.fullScale)))
	}
	r.sampleBuf.Data = data
	return r.encoder.Write(r.sampleBuf)
}

// Close finalises the WAV header and closes the file.
func (r *Recorder) Close() error {
	if err := r.encoder.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// StartRecording begins writing the processed output to filename.
func (e *Engine) StartRecording(filename string) error {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	if e.recorder != nil {
		return fmt.Errorf("already recording")
	}
	r, err := NewRecorder(filename, int(e.host.SampleRate()), e.config.Recording.BitDepth)
	if err != nil {
		return err
	}
	e.recorder = r
	return nil
}

// StopRecording closes the current recording, if any.
func (e *Engine) StopRecording() error {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	if e.recorder == nil {
		return nil
	}
	err := e.recorder.Close()
	e.recorder = nil
	return err
}

// Recording reports whether a recording is in progress.
func (e *Engine) Recording() bool {
	e.recMu.Lock()
	defer e.recMu.Unlock()
	return e.recorder != nil
}

func (e *Engine) record(b *Block) {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	if e.recorder == nil {
		return
	}
	if err := e.recorder.Write(b.Samples[:]); err != nil {
		log.Errorf("Error writing to WAV file: %v", err)
		e.recorder.Close()
		e.recorder = nil
	}
}
