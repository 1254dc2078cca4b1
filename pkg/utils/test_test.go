// SPDX-License-Identifier: MIT
package utils

import (
	"math"
	"os"
	"testing"
)

const (
	testSize       = 4800
	testSampleRate = 48000
	testFrequency  = 440.0 // A4 note
)

var (
	testMagnitudes []float64
	testSineWave   []float32
)

func TestMain(m *testing.M) {
	testMagnitudes = make([]float64, 1024)

	// Creates a "hill" with peak at position 256.
	for i := range testMagnitudes {
		testMagnitudes[i] = math.Exp(-0.01 * math.Pow(float64(i-256), 2))
	}

	testSineWave = GenerateSineWave(testSize, testSampleRate, testFrequency, 0.5)

	os.Exit(m.Run())
}

func TestRMS(t *testing.T) {
	got := RMS(testSineWave)
	want := 0.5 / math.Sqrt2
	if math.Abs(got-want) > 1e-3 {
		t.Errorf("RMS = %v, want %v", got, want)
	}
	if RMS(nil) != 0 {
		t.Error("RMS(nil) should be 0")
	}
}

func TestToneMagnitude(t *testing.T) {
	tests := []struct {
		name      string
		frequency float64
		want      float64
		tolerance float64
	}{
		{"Fundamental", testFrequency, 0.5, 0.01},
		{"Absent Tone", 3000, 0, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToneMagnitude(testSineWave, testSampleRate, tt.frequency)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("ToneMagnitude(%v) = %v, want %v", tt.frequency, got, tt.want)
			}
		})
	}
}

func TestComplexWaveHarmonics(t *testing.T) {
	wave := GenerateComplexWave(testSize, testSampleRate)
	fundamental := ToneMagnitude(wave, testSampleRate, 440)
	second := ToneMagnitude(wave, testSampleRate, 880)
	if fundamental <= second {
		t.Errorf("fundamental %v should dominate harmonic %v", fundamental, second)
	}
}

func TestMaxAbsDiff(t *testing.T) {
	a := []float32{0, 0.5, 1}
	b := []float32{0, 0.25, 1, 9}
	if got := MaxAbsDiff(a, b); got != 0.25 {
		t.Errorf("MaxAbsDiff = %v, want 0.25", got)
	}
}

func TestFindPeakBin(t *testing.T) {
	tests := []struct {
		name       string
		magnitudes []float64
		startBin   int
		endBin     int
		want       int
	}{
		{"Full Range", testMagnitudes, 0, len(testMagnitudes) - 1, 256},
		{"Empty", nil, 0, 10, 0},
		{"Clamped Range", testMagnitudes, -5, 5000, 256},
		{"Before Peak", testMagnitudes, 0, 100, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FindPeakBin(tt.magnitudes, tt.startBin, tt.endBin); got != tt.want {
				t.Errorf("FindPeakBin() = %d, want %d", got, tt.want)
			}
		})
	}
}
