// SPDX-License-Identifier: MIT
package chain

import (
	"errors"
	"fmt"
)

// ErrUnknownEffect is returned for names or values that are not chain slots.
var ErrUnknownEffect = errors.New("unknown effect")

// Effect names one slot of the chain. The numeric order is the processing
// order.
type Effect int

const (
	EQ Effect = iota
	BassBoost
	PitchShift
	LoFi

	// NumEffects is the number of chain slots.
	NumEffects
)

var effectNames = [NumEffects]string{
	EQ:         "eq",
	BassBoost:  "bassBoost",
	PitchShift: "pitchShift",
	LoFi:       "loFi",
}

// Order is the fixed processing order.
var Order = [NumEffects]Effect{EQ, BassBoost, PitchShift, LoFi}

// Valid reports whether e is a chain slot.
func (e Effect) Valid() bool {
	return e >= 0 && e < NumEffects
}

func (e Effect) String() string {
	if !e.Valid() {
		return fmt.Sprintf("Effect(%d)", int(e))
	}
	return effectNames[e]
}

// ParseEffect resolves a wire name such as "bassBoost".
func ParseEffect(name string) (Effect, error) {
	for i, n := range effectNames {
		if n == name {
			return Effect(i), nil
		}
	}
	return -1, fmt.Errorf("%w %q", ErrUnknownEffect, name)
}

// MarshalText implements encoding.TextMarshaler.
func (e Effect) MarshalText() ([]byte, error) {
	if !e.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEffect, int(e))
	}
	return []byte(effectNames[e]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Effect) UnmarshalText(b []byte) error {
	v, err := ParseEffect(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// State is the enable flag of every slot.
type State struct {
	Enabled [NumEffects]bool
}

// Map returns the state keyed by wire name.
func (s State) Map() map[string]bool {
	m := make(map[string]bool, NumEffects)
	for i, on := range s.Enabled {
		m[effectNames[i]] = on
	}
	return m
}

// StateFromMap builds a state from wire names. Unknown names are an error.
func StateFromMap(m map[string]bool) (State, error) {
	var s State
	for name, on := range m {
		e, err := ParseEffect(name)
		if err != nil {
			return State{}, err
		}
		s.Enabled[e] = on
	}
	return s, nil
}

// Patch is a partial state update: only slots with Set true change.
type Patch struct {
	Set     [NumEffects]bool
	Enabled [NumEffects]bool
}

// With returns p with e set to on.
func (p Patch) With(e Effect, on bool) Patch {
	p.Set[e] = true
	p.Enabled[e] = on
	return p
}

// PatchFromMap builds a patch from wire names. Unknown names are an error.
func PatchFromMap(m map[string]bool) (Patch, error) {
	var p Patch
	for name, on := range m {
		e, err := ParseEffect(name)
		if err != nil {
			return Patch{}, err
		}
		p = p.With(e, on)
	}
	return p, nil
}

// Apply merges p into s.
func (s *State) Apply(p Patch) {
	for i := range s.Enabled {
		if p.Set[i] {
			s.Enabled[i] = p.Enabled[i]
		}
	}
}
