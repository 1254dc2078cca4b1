// SPDX-License-Identifier: MIT
/*
Package audio runs the effect chain in real time.

Host is the per-quantum entry point. It is driven by the PortAudio callback
in Engine, or directly by offline renderers and tests. Each call drains the
command queue, resolves automation for the quantum, runs the chain through
the bridge buffers and publishes the result.

Thread Safety:
  - Process runs on one thread at a time and never blocks or allocates
  - Commands arrive over a lock-free queue and apply at quantum boundaries
  - Now, Level and Faults are atomic and safe from any goroutine
*/
package audio

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/tphakala/simd/f32"

	"fxengine/internal/bridge"
	"fxengine/internal/chain"
	"fxengine/internal/control"
	"fxengine/internal/log"
	"fxengine/internal/params"
)

// QuantumSize is the number of mono samples processed per call.
const QuantumSize = 128

// ErrInit is wrapped by every construction failure.
var ErrInit = errors.New("audio: initialization failed")

// Block is one processed quantum handed to the tap.
type Block struct {
	Samples [QuantumSize]float32
	Time    float64 // engine time of the first sample in seconds
}

// Host owns the chain, automation and bridge of one engine instance.
type Host struct {
	sampleRate float64

	ch     *control.Channel
	chain  *chain.Controller
	auto   *params.Automation
	frame  *params.Frame
	bridge *bridge.Bridge
	logs   *log.Deferred
	tap    *control.Queue[Block]

	frames atomic.Uint64
	faults atomic.Uint64
	level  atomic.Uint32 // float32 bits of the last quantum's RMS
	ready  atomic.Bool

	beforeChain func() // test hook
}

// HostOption configures a Host.
type HostOption func(*hostOptions)

type hostOptions struct {
	chainOpts []chain.Option
	logs      *log.Deferred
	tap       *control.Queue[Block]
	region    *bridge.Region
}

// WithChainOptions forwards options to the chain controller.
func WithChainOptions(opts ...chain.Option) HostOption {
	return func(o *hostOptions) {
		o.chainOpts = append(o.chainOpts, opts...)
	}
}

// WithDeferredLog routes real-time log entries to d.
func WithDeferredLog(d *log.Deferred) HostOption {
	return func(o *hostOptions) {
		o.logs = d
	}
}

// WithTap publishes every processed quantum to q, dropping when q is full.
func WithTap(q *control.Queue[Block]) HostOption {
	return func(o *hostOptions) {
		o.tap = q
	}
}

// WithRegion places the bridge buffers in r.
func WithRegion(r *bridge.Region) HostOption {
	return func(o *hostOptions) {
		o.region = r
	}
}

// NewHost builds a host for the given sample rate that takes commands from
// ch. Automation starts at the parameter defaults and every effect starts
// disabled.
func NewHost(sampleRate float64, ch *control.Channel, opts ...HostOption) (*Host, error) {
	if !(sampleRate > 0) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("%w: invalid sample rate %v", ErrInit, sampleRate)
	}
	if ch == nil {
		return nil, fmt.Errorf("%w: no control channel", ErrInit)
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInit, err)
	}

	o := hostOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logs == nil {
		o.logs = log.NewDeferred(64)
	}
	if o.region == nil {
		o.region = bridge.NewRegion(2 * QuantumSize)
	}

	br, err := bridge.New(o.region, QuantumSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInit, err)
	}

	h := &Host{
		sampleRate: sampleRate,
		ch:         ch,
		auto:       params.NewAutomation(),
		frame:      params.NewFrame(QuantumSize),
		bridge:     br,
		logs:       o.logs,
		tap:        o.tap,
	}
	h.chain = chain.New(sampleRate, QuantumSize, append([]chain.Option{
		chain.WithFaultHandler(h.stageFault),
	}, o.chainOpts...)...)
	h.ready.Store(true)
	return h, nil
}

// SampleRate returns the rate fixed at construction.
func (h *Host) SampleRate() float64 {
	return h.sampleRate
}

// Now returns the engine time in seconds at the start of the next quantum.
func (h *Host) Now() float64 {
	return float64(h.frames.Load()) / h.sampleRate
}

// Faults counts quanta that fell back to passthrough plus stage faults.
func (h *Host) Faults() uint64 {
	return h.faults.Load() + h.chain.TotalFaults()
}

// QuantumFaults counts quanta that fell back to passthrough.
func (h *Host) QuantumFaults() uint64 {
	return h.faults.Load()
}

// Level returns the RMS of the most recent output quantum.
func (h *Host) Level() float32 {
	return math.Float32frombits(h.level.Load())
}

// Logs returns the deferred log sink the host writes to.
func (h *Host) Logs() *log.Deferred {
	return h.logs
}

// Bridge returns the buffers the chain runs on.
func (h *Host) Bridge() *bridge.Bridge {
	return h.bridge
}

// Process handles one quantum. A nil or empty in or out leaves everything
// untouched. If processing panics, out receives a copy of in for this
// quantum only.
func (h *Host) Process(in, out []float32) {
	if len(in) == 0 || len(out) == 0 {
		return
	}

	now := h.Now()
	h.drain(now)

	if !h.run(in, out, now) {
		copy(out, in)
	}

	h.frames.Add(QuantumSize)
	n := min(len(out), QuantumSize)
	h.meter(out[:n])
	h.publish(out[:n], now)
}

func (h *Host) run(in, out []float32, now float64) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			h.faults.Add(1)
			h.logs.Post(log.LevelError, "Quantum failed, passing input through: %v", r, nil)
			ok = false
		}
	}()

	if h.beforeChain != nil {
		h.beforeChain()
	}

	inView, outView := h.bridge.Views()
	n := copy(inView, in)
	clear(inView[n:])

	h.auto.Resolve(now, h.sampleRate, h.frame)
	h.chain.Process(inView, outView, h.frame)

	copy(out, outView)
	return true
}

func (h *Host) stageFault(e chain.Effect, r any) {
	h.logs.Post(log.LevelWarn, "Effect %s failed, skipped for this quantum: %v", e, r)
}

// drain applies every queued command. Bounded by the queue capacity so a
// producer racing the drain cannot hold the quantum.
func (h *Host) drain(now float64) {
	for range h.ch.Commands.Cap() {
		cmd, ok := h.ch.Commands.Pop()
		if !ok {
			return
		}
		h.apply(cmd, now)
	}
}

func (h *Host) apply(cmd control.Command, now float64) {
	switch cmd.Type {
	case control.TypeEnableEffect:
		h.chain.SetEnabled(cmd.Effect, cmd.Enabled)
		if cmd.Effect.Valid() {
			h.respond(control.Response{
				Type:    control.TypeEffectStatus,
				Effect:  cmd.Effect,
				Enabled: h.chain.State().Enabled[cmd.Effect],
			})
		}
	case control.TypeSetEffectsChain:
		h.chain.Apply(cmd.Patch)
	case control.TypeResetEffects:
		h.chain.Reset()
	case control.TypeGetStatus:
		r := control.Response{
			Type:        control.TypeStatusResponse,
			Chain:       h.chain.State(),
			SampleRate:  h.sampleRate,
			BufferSize:  QuantumSize,
			EngineReady: h.ready.Load(),
			Faults:      h.Faults(),
			Seq:         cmd.Seq,
		}
		h.auto.SnapshotAt(now, &r.Params)
		h.respond(r)
	case control.TypeScheduleParam:
		if !cmd.Param.Valid() {
			return
		}
		if !h.auto.Schedule(cmd.Param, cmd.Event, now) {
			h.logs.Post(log.LevelWarn, "Automation lane %s full, event dropped", cmd.Param, nil)
		}
	case control.TypeConfigurePitch:
		p := h.chain.Pitch()
		if cmd.SetWindow {
			p.SetWindowSize(cmd.WindowSize)
		}
		if cmd.SetCrossfade {
			p.SetCrossfade(cmd.Crossfade)
		}
	}
}

func (h *Host) respond(r control.Response) {
	if !h.ch.Responses.Push(r) {
		h.logs.Post(log.LevelWarn, "Response queue full, %s dropped", r.Type, nil)
	}
	h.ch.Notify()
}

func (h *Host) meter(out []float32) {
	if len(out) == 0 {
		return
	}
	sq := f32.DotProductUnsafe(out, out)
	rms := float32(math.Sqrt(float64(sq) / float64(len(out))))
	h.level.Store(math.Float32bits(rms))
}

func (h *Host) publish(out []float32, now float64) {
	if h.tap == nil {
		return
	}
	var b Block
	copy(b.Samples[:], out)
	b.Time = now
	h.tap.Push(b)
}
