// SPDX-License-Identifier: MIT
// Package utils holds signal generators and measurements shared by tests.
package utils

import "math"

// GenerateSineWave returns size samples of a sine at frequency Hz with the
// given peak amplitude.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(math.Sin(2*math.Pi*frequency*t) * amplitude)
	}
	return buffer
}

// GenerateComplexWave returns a 440 Hz fundamental with two harmonics, peaking
// below 0.9.
func GenerateComplexWave(size int, sampleRate float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.1
		buffer[i] = float32(signal)
	}
	return buffer
}

// RMS returns the root mean square of buffer.
func RMS(buffer []float32) float64 {
	if len(buffer) == 0 {
		return 0
	}
	var sum float64
	for _, s := range buffer {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(buffer)))
}

// ToneMagnitude measures the amplitude of the frequency component at
// frequency Hz using the Goertzel recurrence. A full-scale sine of amplitude A
// whose period divides the buffer yields approximately A.
func ToneMagnitude(buffer []float32, sampleRate, frequency float64) float64 {
	n := len(buffer)
	if n == 0 {
		return 0
	}
	w := 2 * math.Pi * frequency / sampleRate
	coeff := 2 * math.Cos(w)
	var s1, s2 float64
	for _, x := range buffer {
		s0 := float64(x) + coeff*s1 - s2
		s2, s1 = s1, s0
	}
	power := s1*s1 + s2*s2 - coeff*s1*s2
	return 2 * math.Sqrt(math.Max(power, 0)) / float64(n)
}

// MaxAbsDiff returns the largest absolute sample difference between a and b
// over their common length.
func MaxAbsDiff(a, b []float32) float64 {
	n := min(len(a), len(b))
	var d float64
	for i := range n {
		d = math.Max(d, math.Abs(float64(a[i])-float64(b[i])))
	}
	return d
}

// FindPeakBin returns the index of the largest magnitude in [startBin, endBin].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}
