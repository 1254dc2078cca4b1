// SPDX-License-Identifier: MIT
package control

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"fxengine/internal/chain"
	"fxengine/internal/dsp"
	"fxengine/internal/log"
	"fxengine/internal/params"
)

const (
	// DefaultStatusTimeout bounds how long GetStatus waits for the engine.
	DefaultStatusTimeout = time.Second
	pollInterval         = 10 * time.Millisecond
)

var (
	ErrQueueFull     = errors.New("control: command queue full")
	ErrUnknownBand   = errors.New("control: no EQ band at frequency")
	ErrUnknownPreset = errors.New("control: unknown EQ preset")
)

// Clock reports the engine's current time in seconds.
type Clock interface {
	Now() float64
}

// Handler receives a response from the engine on the pump goroutine.
type Handler func(Response)

// Surface is the non-real-time API over a Channel. Setters clamp their input,
// turn it into Commands and return without waiting for the engine.
type Surface struct {
	ch            *Channel
	clock         Clock
	statusTimeout time.Duration

	sendMu sync.Mutex // serializes producers of ch.Commands
	seq    atomic.Uint64

	mu       sync.Mutex
	handlers map[MessageType]Handler
	subs     map[int]Handler
	nextSub  int
	waiters  map[uint64]chan Response
}

// SurfaceOption configures a Surface.
type SurfaceOption func(*Surface)

// WithStatusTimeout overrides DefaultStatusTimeout.
func WithStatusTimeout(d time.Duration) SurfaceOption {
	return func(s *Surface) {
		if d > 0 {
			s.statusTimeout = d
		}
	}
}

// NewSurface returns a Surface posting to ch. clock supplies the engine time
// used to anchor scheduled events.
func NewSurface(ch *Channel, clock Clock, opts ...SurfaceOption) *Surface {
	s := &Surface{
		ch:            ch,
		clock:         clock,
		statusTimeout: DefaultStatusTimeout,
		handlers:      make(map[MessageType]Handler),
		subs:          make(map[int]Handler),
		waiters:       make(map[uint64]chan Response),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run pumps responses from the engine until ctx is done.
func (s *Surface) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		s.drain()
		select {
		case <-ctx.Done():
			return
		case <-s.ch.Wake():
		case <-ticker.C:
		}
	}
}

func (s *Surface) drain() {
	for {
		r, ok := s.ch.Responses.Pop()
		if !ok {
			return
		}
		s.deliver(r)
	}
}

func (s *Surface) deliver(r Response) {
	s.mu.Lock()
	if w, ok := s.waiters[r.Seq]; ok && r.Seq != 0 {
		delete(s.waiters, r.Seq)
		w <- r
	}
	h := s.handlers[r.Type]
	subs := make([]Handler, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	if h != nil {
		h(r)
	}
	for _, sub := range subs {
		sub(r)
	}
}

// OnMessage registers h for responses of type t, replacing any earlier one.
func (s *Surface) OnMessage(t MessageType, h Handler) {
	s.mu.Lock()
	s.handlers[t] = h
	s.mu.Unlock()
}

// OffMessage removes the handler for t.
func (s *Surface) OffMessage(t MessageType) {
	s.mu.Lock()
	delete(s.handlers, t)
	s.mu.Unlock()
}

// Subscribe registers h for every response. The returned func removes it.
func (s *Surface) Subscribe(h Handler) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = h
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Surface) send(cmd Command) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if !s.ch.Commands.Push(cmd) {
		log.Warnf("Dropping %s command: queue full", cmd.Type)
		return ErrQueueFull
	}
	return nil
}

// EnableEffect turns one effect on.
func (s *Surface) EnableEffect(e chain.Effect) error {
	return s.setEnabled(e, true)
}

// DisableEffect turns one effect off.
func (s *Surface) DisableEffect(e chain.Effect) error {
	return s.setEnabled(e, false)
}

func (s *Surface) setEnabled(e chain.Effect, on bool) error {
	if !e.Valid() {
		return fmt.Errorf("%w: %d", chain.ErrUnknownEffect, int(e))
	}
	return s.send(Command{Type: TypeEnableEffect, Effect: e, Enabled: on})
}

// SetEffectsChain applies a partial enable map. Effects the patch does not
// name keep their state.
func (s *Surface) SetEffectsChain(p chain.Patch) error {
	return s.send(Command{Type: TypeSetEffectsChain, Patch: p})
}

// ResetEffects disables every effect and clears the modules' filter, ring
// and hold state.
func (s *Surface) ResetEffects() error {
	return s.send(Command{Type: TypeResetEffects})
}

// RequestStatus asks for a status_response without waiting for it. The reply
// reaches OnMessage handlers and subscribers.
func (s *Surface) RequestStatus() error {
	return s.send(Command{Type: TypeGetStatus})
}

// GetStatus asks the engine for its status and waits for the reply. It
// returns nil if no reply arrives within the status timeout or ctx ends
// first. Run must be pumping responses.
func (s *Surface) GetStatus(ctx context.Context) *Status {
	seq := s.seq.Add(1)
	reply := make(chan Response, 1)

	s.mu.Lock()
	s.waiters[seq] = reply
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.waiters, seq)
		s.mu.Unlock()
	}()

	if err := s.send(Command{Type: TypeGetStatus, Seq: seq}); err != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.statusTimeout)
	defer cancel()

	select {
	case r := <-reply:
		return r.Status()
	case <-ctx.Done():
		log.Warnf("Status request timed out after %v", s.statusTimeout)
		return nil
	}
}

// clampParam clamps v into the parameter's range, warning when it moves.
func clampParam(id params.ID, v float64) float64 {
	c := params.Clamp(id, v)
	if c != v {
		log.Warnf("%s value %g out of range, clamped to %g", id, v, c)
	}
	return c
}

// SetParameter sets a parameter by wire name at the current engine time.
func (s *Surface) SetParameter(name string, v float64) error {
	id, err := params.Parse(name)
	if err != nil {
		return err
	}
	return s.set(id, v)
}

func (s *Surface) set(id params.ID, v float64) error {
	return s.send(Command{
		Type:  TypeScheduleParam,
		Param: id,
		Event: params.Event{Curve: params.Set, Value: clampParam(id, v), Time: s.clock.Now()},
	})
}

// SetPitchShift sets the playback ratio applied by the pitch shifter.
func (s *Surface) SetPitchShift(ratio float64) error {
	return s.set(params.PitchShift, ratio)
}

// SetSemitones sets the pitch shift as an interval in semitones.
func (s *Surface) SetSemitones(semitones float64) error {
	st := math.Max(dsp.MinSemitones, math.Min(dsp.MaxSemitones, semitones))
	if st != semitones {
		log.Warnf("Pitch shift %g semitones out of range, clamped to %g", semitones, st)
	}
	return s.set(params.PitchShift, math.Pow(2, st/12))
}

// SetBassBoost sets the bass shelf gain in dB.
func (s *Surface) SetBassBoost(gainDB float64) error {
	return s.set(params.BassBoost, gainDB)
}

// SetLoFi sets the bit depth and downsample factor together.
func (s *Surface) SetLoFi(bitDepth, downsample float64) error {
	if err := s.set(params.LoFiBitDepth, bitDepth); err != nil {
		return err
	}
	return s.set(params.LoFiDownsample, downsample)
}

// SetEQBand sets the gain of the band centred on freq.
func (s *Surface) SetEQBand(freq, gainDB float64) error {
	id, ok := params.EQBand(freq)
	if !ok {
		log.Warnf("Invalid EQ frequency: %g", freq)
		return fmt.Errorf("%w: %g Hz", ErrUnknownBand, freq)
	}
	return s.set(id, gainDB)
}

// SetEQPreset loads a named set of band gains.
func (s *Surface) SetEQPreset(name string) error {
	p, ok := LookupPreset(name)
	if !ok {
		log.Warnf("Unknown EQ preset: %s", name)
		return fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	for i, id := range params.EQBands {
		if err := s.set(id, p[i]); err != nil {
			return err
		}
	}
	return nil
}

// AnimateParameter ramps a parameter to target over d using curve. A Set
// curve jumps to target once d has elapsed.
func (s *Surface) AnimateParameter(name string, target float64, d time.Duration, curve params.Curve) error {
	if d < 0 {
		d = 0
	}
	return s.ScheduleParameter(name, target, s.clock.Now()+d.Seconds(), curve)
}

// ScheduleParameter queues an automation event that reaches target at the
// absolute engine time at, in seconds.
func (s *Surface) ScheduleParameter(name string, target, at float64, kind params.Curve) error {
	id, err := params.Parse(name)
	if err != nil {
		return err
	}
	return s.send(Command{
		Type:  TypeScheduleParam,
		Param: id,
		Event: params.Event{Curve: kind, Value: clampParam(id, target), Time: at},
	})
}

// ConfigurePitch sets the pitch shifter's grain window in seconds and its
// crossfade amount.
func (s *Surface) ConfigurePitch(windowSize, crossfade float64) error {
	return s.configurePitch(&windowSize, &crossfade)
}

// configurePitch clamps and sends the settings that are not nil.
func (s *Surface) configurePitch(windowSize, crossfade *float64) error {
	cmd := Command{Type: TypeConfigurePitch}
	if windowSize != nil {
		w := math.Max(dsp.MinWindowSize, math.Min(dsp.MaxWindowSize, *windowSize))
		if w != *windowSize {
			log.Warnf("Pitch window %g s out of range, clamped to %g", *windowSize, w)
		}
		cmd.WindowSize, cmd.SetWindow = w, true
	}
	if crossfade != nil {
		c := math.Max(0, math.Min(1, *crossfade))
		if c != *crossfade {
			log.Warnf("Pitch crossfade %g out of range, clamped to %g", *crossfade, c)
		}
		cmd.Crossfade, cmd.SetCrossfade = c, true
	}
	return s.send(cmd)
}

// Handle validates a client request and posts the matching commands.
// Replies, including status, arrive asynchronously through subscribers.
func (s *Surface) Handle(req Request) error {
	switch req.Type {
	case TypeEnableEffect:
		e, err := chain.ParseEffect(req.Effect)
		if err != nil {
			return err
		}
		on := true
		if req.Enabled != nil {
			on = *req.Enabled
		}
		return s.setEnabled(e, on)
	case TypeSetEffectsChain:
		p, err := chain.PatchFromMap(req.Effects)
		if err != nil {
			return err
		}
		return s.SetEffectsChain(p)
	case TypeResetEffects:
		return s.ResetEffects()
	case TypeGetStatus:
		return s.RequestStatus()
	case TypeSetParam:
		return s.SetParameter(req.Param, req.Value)
	case TypeAnimate:
		d := time.Duration(req.Duration * float64(time.Second))
		return s.AnimateParameter(req.Param, req.Value, d, req.Curve)
	case TypeScheduleParam:
		at := s.clock.Now()
		if req.Time != nil {
			at = *req.Time
		}
		return s.ScheduleParameter(req.Param, req.Value, at, req.Kind)
	case TypeSetEQBand:
		return s.SetEQBand(req.Frequency, req.Gain)
	case TypeSetEQPreset:
		return s.SetEQPreset(req.Preset)
	case TypeConfigurePitch:
		return s.configurePitch(req.WindowSize, req.Crossfade)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, req.Type)
	}
}
