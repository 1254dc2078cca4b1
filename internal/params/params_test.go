// SPDX-License-Identifier: MIT
package params

import (
	"errors"
	"math"
	"testing"
)

func TestTableValid(t *testing.T) {
	if err := Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if len(Descriptors()) != 11 {
		t.Fatalf("expected 11 parameters, got %d", len(Descriptors()))
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name string
		want ID
		ok   bool
	}{
		{"pitchShift", PitchShift, true},
		{"bassBoost", BassBoost, true},
		{"loFiBitDepth", LoFiBitDepth, true},
		{"loFiDownsample", LoFiDownsample, true},
		{"eq_100hz", EQ100, true},
		{"eq_1khz", EQ1k, true},
		{"eq_8khz", EQ8k, true},
		{"eq_16khz", -1, false},
		{"", -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Lookup(tt.name)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Lookup(%q) = (%v, %v), want (%v, %v)", tt.name, got, ok, tt.want, tt.ok)
			}
		})
	}

	if _, err := Parse("nope"); !errors.Is(err, ErrUnknownParameter) {
		t.Errorf("Parse(nope) error = %v, want ErrUnknownParameter", err)
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		id   ID
		in   float64
		want float64
	}{
		{PitchShift, 10, 4},
		{PitchShift, 0.1, 0.25},
		{PitchShift, 1.5, 1.5},
		{EQ250, -50, -15},
		{EQ8k, 15, 15},
		{BassBoost, 25, 20},
		{LoFiBitDepth, 2, 4},
		{LoFiDownsample, 12, 8},
		{BassBoost, math.NaN(), 0},
	}

	for _, tt := range tests {
		if got := Clamp(tt.id, tt.in); got != tt.want {
			t.Errorf("Clamp(%s, %v) = %v, want %v", tt.id, tt.in, got, tt.want)
		}
	}
}

func TestEQBand(t *testing.T) {
	for i, f := range EQFrequencies {
		id, ok := EQBand(f)
		if !ok || id != EQBands[i] {
			t.Errorf("EQBand(%v) = (%v, %v), want %v", f, id, ok, EQBands[i])
		}
	}
	if _, ok := EQBand(300); ok {
		t.Error("EQBand(300) should not resolve")
	}
}

func TestRates(t *testing.T) {
	for i := range Count {
		want := PerBlock
		if i == PitchShift || i == BassBoost {
			want = PerSample
		}
		if got := i.Descriptor().Rate; got != want {
			t.Errorf("%s rate = %s, want %s", i, got, want)
		}
	}
}
