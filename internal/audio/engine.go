// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"fxengine/internal/config"
	"fxengine/internal/control"
	"fxengine/internal/log"
)

const tapInterval = 5 * time.Millisecond

// Sink consumes processed quanta on the tap goroutine. The block is only
// valid for the duration of the call.
type Sink interface {
	Consume(b *Block)
}

// Engine runs a Host inside a PortAudio duplex stream and services its tap:
// recording, analysis sinks and deferred log entries.
type Engine struct {
	config *config.Config
	host   *Host
	logs   *log.Deferred
	tap    *control.Queue[Block]
	gate   *Gate
	sinks  []Sink

	inputDevice   *portaudio.DeviceInfo
	outputDevice  *portaudio.DeviceInfo
	inputLatency  time.Duration
	outputLatency time.Duration
	stream        *portaudio.Stream

	recMu    sync.Mutex
	recorder *Recorder

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine resolves the configured devices and builds the host. PortAudio
// must already be initialized.
func NewEngine(cfg *config.Config, ch *control.Channel, sinks ...Sink) (*Engine, error) {
	e, err := newEngine(cfg, ch, sinks...)
	if err != nil {
		return nil, err
	}

	e.inputDevice, err = InputDevice(cfg.Audio.InputDevice)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInit, err)
	}
	e.outputDevice, err = OutputDevice(cfg.Audio.OutputDevice)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInit, err)
	}

	if cfg.Audio.LowLatency {
		e.inputLatency = e.inputDevice.DefaultLowInputLatency
		e.outputLatency = e.outputDevice.DefaultLowOutputLatency
	} else {
		e.inputLatency = e.inputDevice.DefaultHighInputLatency
		e.outputLatency = e.outputDevice.DefaultHighOutputLatency
	}
	return e, nil
}

// newEngine builds everything but the devices.
func newEngine(cfg *config.Config, ch *control.Channel, sinks ...Sink) (*Engine, error) {
	logs := log.NewDeferred(256)
	tap := control.NewQueue[Block](config.DefaultTapCapacity)

	host, err := NewHost(cfg.Audio.SampleRate, ch, WithDeferredLog(logs), WithTap(tap))
	if err != nil {
		return nil, err
	}
	return &Engine{
		config: cfg,
		host:   host,
		logs:   logs,
		tap:    tap,
		gate:   NewGate(0.001),
		sinks:  sinks,
	}, nil
}

// Host returns the engine's real-time host. It doubles as the engine clock.
func (e *Engine) Host() *Host {
	return e.host
}

// Gate returns the analysis gate.
func (e *Engine) Gate() *Gate {
	return e.gate
}

// Start opens and starts the duplex stream and the tap goroutines.
func (e *Engine) Start(ctx context.Context) error {
	if e.stream != nil {
		return fmt.Errorf("engine already started")
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: 1,
			Device:   e.inputDevice,
			Latency:  e.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 1,
			Device:   e.outputDevice,
			Latency:  e.outputLatency,
		},
		FramesPerBuffer: QuantumSize,
		SampleRate:      e.host.SampleRate(),
	}

	stream, err := portaudio.OpenStream(params, e.processStream)
	if err != nil {
		return fmt.Errorf("%w: opening stream: %w", ErrInit, err)
	}

	ctx, e.cancel = context.WithCancel(ctx)
	e.startWorkers(ctx)

	if err := stream.Start(); err != nil {
		stream.Close()
		e.stopWorkers()
		return fmt.Errorf("%w: starting stream: %w", ErrInit, err)
	}
	e.stream = stream

	log.Infof("Engine started: %s -> %s at %.0f Hz, %d frames per quantum",
		e.inputDevice.Name, e.outputDevice.Name, e.host.SampleRate(), QuantumSize)
	return nil
}

// Stop stops the stream and the tap goroutines.
func (e *Engine) Stop() error {
	if e.stream != nil {
		if err := e.stream.Stop(); err != nil {
			return err
		}
		if err := e.stream.Close(); err != nil {
			return err
		}
		e.stream = nil
	}
	e.stopWorkers()
	return nil
}

// Close stops recording and the stream.
func (e *Engine) Close() error {
	if err := e.StopRecording(); err != nil {
		return err
	}
	return e.Stop()
}

// processStream is the PortAudio callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Uses pre-allocated buffers only
// - No dynamic allocations in the hot path
func (e *Engine) processStream(in, out []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	e.host.Process(in, out)
}

func (e *Engine) startWorkers(ctx context.Context) {
	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.logs.Run(ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.drainTap(ctx)
	}()
}

func (e *Engine) stopWorkers() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	e.wg.Wait()
	e.cancel = nil
}

func (e *Engine) drainTap(ctx context.Context) {
	ticker := time.NewTicker(tapInterval)
	defer ticker.Stop()

	for {
		e.drainOnce()
		select {
		case <-ctx.Done():
			e.drainOnce()
			return
		case <-ticker.C:
		}
	}
}

// drainOnce services every block currently in the tap.
func (e *Engine) drainOnce() {
	for {
		b, ok := e.tap.Pop()
		if !ok {
			return
		}
		e.record(&b)
		if !e.gate.Open(b.Samples[:]) {
			continue
		}
		for _, s := range e.sinks {
			s.Consume(&b)
		}
	}
}
