// SPDX-License-Identifier: MIT
package params

import (
	"fmt"
	"math"
	"strings"
)

// Curve selects how a scheduled event reaches its value.
type Curve uint8

const (
	// Set jumps to the value at the event time.
	Set Curve = iota
	// Linear ramps linearly from the previous event, ending at the event time.
	Linear
	// Exponential ramps geometrically from the previous event. Endpoints of
	// opposite sign or zero hold the previous value until the end time.
	Exponential
)

func (c Curve) String() string {
	switch c {
	case Set:
		return "set"
	case Linear:
		return "linear"
	case Exponential:
		return "exponential"
	default:
		return "unknown"
	}
}

// ParseCurve converts a curve name (case-insensitive) to a Curve.
func ParseCurve(s string) (Curve, error) {
	switch strings.ToLower(s) {
	case "set", "":
		return Set, nil
	case "linear":
		return Linear, nil
	case "exponential", "exp":
		return Exponential, nil
	default:
		return Set, fmt.Errorf("unknown curve %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Curve) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Curve) UnmarshalText(b []byte) error {
	v, err := ParseCurve(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Event is a scheduled value change. For ramps, Time is the end time.
type Event struct {
	Curve Curve
	Value float64
	Time  float64 // seconds on the engine sample clock
}

// MaxEvents is the number of pending events a lane can hold.
const MaxEvents = 32

type anchor struct {
	value float64
	time  float64
}

// Lane is the automation timeline of a single parameter. It is owned by the
// real-time context: scheduling and evaluation never allocate.
type Lane struct {
	id     ID
	events [MaxEvents]Event
	n      int
	anchor anchor
	last   float64
}

func (l *Lane) init(id ID) {
	l.id = id
	l.n = 0
	v := descriptors[id].Default
	l.anchor = anchor{value: v}
	l.last = v
}

// Schedule inserts e in time order. now is the current engine time; a ramp
// scheduled with no pending events starts from now rather than from a stale
// anchor. Returns false if the lane is full.
func (l *Lane) Schedule(e Event, now float64) bool {
	if l.n == MaxEvents {
		return false
	}
	e.Value = Clamp(l.id, e.Value)
	if l.n == 0 && e.Curve != Set && l.anchor.time < now {
		l.anchor.time = now
		l.anchor.value = l.last
	}

	i := l.n
	for i > 0 && l.events[i-1].Time > e.Time {
		l.events[i] = l.events[i-1]
		i--
	}
	l.events[i] = e
	l.n++
	return true
}

// Cancel drops every pending event and holds the current value.
func (l *Lane) Cancel(now float64) {
	l.n = 0
	l.anchor = anchor{value: l.last, time: now}
}

// Pending returns the number of events not yet reached.
func (l *Lane) Pending() int {
	return l.n
}

// Value returns the most recently evaluated value.
func (l *Lane) Value() float64 {
	return l.last
}

// ValueAt evaluates the lane at time t. Successive calls must use
// non-decreasing times; reached events are consumed.
func (l *Lane) ValueAt(t float64) float64 {
	for l.n > 0 && l.events[0].Time <= t {
		l.anchor = anchor{value: l.events[0].Value, time: l.events[0].Time}
		copy(l.events[:l.n-1], l.events[1:l.n])
		l.n--
	}

	v := l.anchor.value
	if l.n > 0 && t > l.anchor.time {
		next := &l.events[0]
		span := next.Time - l.anchor.time
		frac := (t - l.anchor.time) / span
		switch next.Curve {
		case Linear:
			v = l.anchor.value + (next.Value-l.anchor.value)*frac
		case Exponential:
			if l.anchor.value*next.Value > 0 {
				v = l.anchor.value * math.Pow(next.Value/l.anchor.value, frac)
			}
		}
	}

	l.last = v
	return v
}

// Frame is the resolved parameter state for one quantum. Per-block values are
// evaluated at the quantum start; per-sample parameters also carry one value
// per sample.
type Frame struct {
	Block   [Count]float64
	samples [Count][]float64
	n       int
}

// NewFrame allocates a frame for quanta of n samples.
func NewFrame(n int) *Frame {
	f := &Frame{n: n}
	Defaults(&f.Block)
	for i := range descriptors {
		if descriptors[i].Rate == PerSample {
			s := make([]float64, n)
			for j := range s {
				s[j] = descriptors[i].Default
			}
			f.samples[i] = s
		}
	}
	return f
}

// Len returns the quantum length the frame was built for.
func (f *Frame) Len() int {
	return f.n
}

// Value returns the block-start value of id.
func (f *Frame) Value(id ID) float64 {
	return f.Block[id]
}

// Samples returns the per-sample values of id, or nil for per-block parameters.
func (f *Frame) Samples(id ID) []float64 {
	return f.samples[id]
}

// Set overrides id for the whole frame. Used by offline processing and tests.
func (f *Frame) Set(id ID, v float64) {
	v = Clamp(id, v)
	f.Block[id] = v
	for i := range f.samples[id] {
		f.samples[id][i] = v
	}
}

// Automation owns one lane per parameter.
type Automation struct {
	lanes [Count]Lane
}

// NewAutomation returns lanes holding every parameter at its default.
func NewAutomation() *Automation {
	a := &Automation{}
	for i := range a.lanes {
		a.lanes[i].init(ID(i))
	}
	return a
}

// Lane returns the lane for id.
func (a *Automation) Lane(id ID) *Lane {
	return &a.lanes[id]
}

// Schedule adds e to the lane of id. Returns false for an invalid id or a
// full lane.
func (a *Automation) Schedule(id ID, e Event, now float64) bool {
	if !id.Valid() {
		return false
	}
	return a.lanes[id].Schedule(e, now)
}

// Resolve evaluates every lane for a quantum starting at t0.
func (a *Automation) Resolve(t0, sampleRate float64, f *Frame) {
	dt := 1 / sampleRate
	for i := range a.lanes {
		lane := &a.lanes[i]
		s := f.samples[i]
		if s == nil {
			f.Block[i] = lane.ValueAt(t0)
			continue
		}
		if lane.n == 0 {
			v := lane.ValueAt(t0)
			for j := range s {
				s[j] = v
			}
			f.Block[i] = v
			continue
		}
		for j := range s {
			s[j] = lane.ValueAt(t0 + float64(j)*dt)
		}
		f.Block[i] = s[0]
	}
}

// Snapshot copies the current value of every lane into dst.
func (a *Automation) Snapshot(dst *[Count]float64) {
	for i := range a.lanes {
		dst[i] = a.lanes[i].last
	}
}

// SnapshotAt evaluates every lane at t into dst, consuming reached events.
// t must not precede the last evaluated time.
func (a *Automation) SnapshotAt(t float64, dst *[Count]float64) {
	for i := range a.lanes {
		dst[i] = a.lanes[i].ValueAt(t)
	}
}
