// SPDX-License-Identifier: MIT
/*
Package params holds the fixed table of automatable effect parameters.

Parameters are addressed by an enum-indexed ID rather than by name so the
real-time path can resolve values with array indexing only. Names are used
at the edges (control messages, config, CLI) and mapped through Lookup.

Every value entering the table is clamped silently to the descriptor's
[Min, Max] range. Callers that want to warn about out-of-range input must
check before scheduling.
*/
package params

import (
	"errors"
	"fmt"
	"math"
)

// ID identifies one automatable parameter.
type ID int

const (
	PitchShift ID = iota
	BassBoost
	LoFiBitDepth
	LoFiDownsample
	EQ100
	EQ250
	EQ500
	EQ1k
	EQ2k
	EQ4k
	EQ8k

	// Count is the number of parameters in the table.
	Count
)

// Rate is the resolution at which a parameter is evaluated inside a quantum.
type Rate uint8

const (
	PerBlock Rate = iota
	PerSample
)

func (r Rate) String() string {
	if r == PerSample {
		return "per-sample"
	}
	return "per-block"
}

// Descriptor describes a parameter's identity, range and resolution.
type Descriptor struct {
	Name    string
	Default float64
	Min     float64
	Max     float64
	Rate    Rate
}

// ErrUnknownParameter is returned when a name does not resolve to an ID.
var ErrUnknownParameter = errors.New("unknown parameter")

var descriptors = [Count]Descriptor{
	PitchShift:     {Name: "pitchShift", Default: 1.0, Min: 0.25, Max: 4.0, Rate: PerSample},
	BassBoost:      {Name: "bassBoost", Default: 0, Min: -20, Max: 20, Rate: PerSample},
	LoFiBitDepth:   {Name: "loFiBitDepth", Default: 16, Min: 4, Max: 16, Rate: PerBlock},
	LoFiDownsample: {Name: "loFiDownsample", Default: 1, Min: 1, Max: 8, Rate: PerBlock},
	EQ100:          {Name: "eq_100hz", Default: 0, Min: -15, Max: 15, Rate: PerBlock},
	EQ250:          {Name: "eq_250hz", Default: 0, Min: -15, Max: 15, Rate: PerBlock},
	EQ500:          {Name: "eq_500hz", Default: 0, Min: -15, Max: 15, Rate: PerBlock},
	EQ1k:           {Name: "eq_1khz", Default: 0, Min: -15, Max: 15, Rate: PerBlock},
	EQ2k:           {Name: "eq_2khz", Default: 0, Min: -15, Max: 15, Rate: PerBlock},
	EQ4k:           {Name: "eq_4khz", Default: 0, Min: -15, Max: 15, Rate: PerBlock},
	EQ8k:           {Name: "eq_8khz", Default: 0, Min: -15, Max: 15, Rate: PerBlock},
}

// NumEQBands is the number of equalizer bands.
const NumEQBands = 7

// EQBands lists the equalizer gain parameters from lowest to highest band.
var EQBands = [NumEQBands]ID{EQ100, EQ250, EQ500, EQ1k, EQ2k, EQ4k, EQ8k}

// EQFrequencies are the centre frequencies (Hz) matching EQBands.
var EQFrequencies = [NumEQBands]float64{100, 250, 500, 1000, 2000, 4000, 8000}

// Valid reports whether id addresses an entry of the table.
func (id ID) Valid() bool {
	return id >= 0 && id < Count
}

// Descriptor returns the descriptor for id. It panics on an invalid id.
func (id ID) Descriptor() Descriptor {
	return descriptors[id]
}

func (id ID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("ID(%d)", int(id))
	}
	return descriptors[id].Name
}

// Lookup resolves a parameter name.
func Lookup(name string) (ID, bool) {
	for i := range descriptors {
		if descriptors[i].Name == name {
			return ID(i), true
		}
	}
	return -1, false
}

// Parse is Lookup with an error for unknown names.
func Parse(name string) (ID, error) {
	id, ok := Lookup(name)
	if !ok {
		return -1, fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	return id, nil
}

// EQBand returns the gain parameter for a band centre frequency in Hz.
func EQBand(freqHz float64) (ID, bool) {
	for i, f := range EQFrequencies {
		if f == freqHz {
			return EQBands[i], true
		}
	}
	return -1, false
}

// Descriptors returns a copy of the full table in ID order.
func Descriptors() []Descriptor {
	out := make([]Descriptor, Count)
	copy(out, descriptors[:])
	return out
}

// Clamp limits v to the range of id. NaN maps to the default.
func Clamp(id ID, v float64) float64 {
	d := &descriptors[id]
	if math.IsNaN(v) {
		return d.Default
	}
	return min(max(v, d.Min), d.Max)
}

// InRange reports whether v lies inside the declared range of id.
func InRange(id ID, v float64) bool {
	d := &descriptors[id]
	return v >= d.Min && v <= d.Max
}

// Defaults fills dst with the default value of every parameter.
func Defaults(dst *[Count]float64) {
	for i := range descriptors {
		dst[i] = descriptors[i].Default
	}
}

// Validate checks that every descriptor satisfies Min <= Default <= Max.
func Validate() error {
	for i, d := range descriptors {
		if d.Name == "" {
			return fmt.Errorf("parameter %d has no name", i)
		}
		if d.Min > d.Default || d.Default > d.Max {
			return fmt.Errorf("parameter %s: default %.3f outside [%.3f, %.3f]", d.Name, d.Default, d.Min, d.Max)
		}
	}
	return nil
}
