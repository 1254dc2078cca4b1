// SPDX-License-Identifier: MIT
package audio

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/gordonklaus/portaudio"
)

func setupPortAudio(t *testing.T) {
	t.Helper()
	if err := Initialize(); err != nil {
		t.Skipf("PortAudio unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := Terminate(); err != nil {
			t.Errorf("Failed to terminate PortAudio: %v", err)
		}
	})
}

// mockDevices swaps the device list for the duration of a test.
func mockDevices(t *testing.T, devices []*portaudio.DeviceInfo, err error) {
	t.Helper()
	orig := paLibDevicesFunc
	paLibDevicesFunc = func() ([]*portaudio.DeviceInfo, error) { return devices, err }
	t.Cleanup(func() { paLibDevicesFunc = orig })
}

var fakeDevices = []*portaudio.DeviceInfo{
	{Name: "Mic", MaxInputChannels: 1, DefaultSampleRate: 48000},
	{Name: "Speakers", MaxOutputChannels: 2, DefaultSampleRate: 44100},
	{Name: "Interface", MaxInputChannels: 2, MaxOutputChannels: 2, DefaultSampleRate: 96000},
}

func TestHostDevices(t *testing.T) {
	mockDevices(t, fakeDevices, nil)

	devices, err := HostDevices()
	if err != nil {
		t.Fatalf("HostDevices error: %v", err)
	}
	if len(devices) != len(fakeDevices) {
		t.Fatalf("got %d devices, want %d", len(devices), len(fakeDevices))
	}
	for i, d := range devices {
		if d.ID != i {
			t.Errorf("Device ID mismatch: got %d, want %d", d.ID, i)
		}
		if d.Name != fakeDevices[i].Name {
			t.Errorf("Device %d name = %q, want %q", i, d.Name, fakeDevices[i].Name)
		}
	}
}

func TestHostDevices_paDevicesError(t *testing.T) {
	mockDevices(t, nil, fmt.Errorf("mock error"))

	_, err := HostDevices()
	if err == nil || !strings.Contains(err.Error(), "mock error") {
		t.Errorf("expected mock error, got %v", err)
	}
}

func TestDeviceLookup(t *testing.T) {
	mockDevices(t, fakeDevices, nil)

	tests := []struct {
		name   string
		lookup func(int) (*portaudio.DeviceInfo, error)
		id     int
		want   string
		substr string
	}{
		{"input", InputDevice, 0, "Mic", ""},
		{"duplex as input", InputDevice, 2, "Interface", ""},
		{"output", OutputDevice, 1, "Speakers", ""},
		{"output-only as input", InputDevice, 1, "", "does not support input"},
		{"input-only as output", OutputDevice, 0, "", "does not support output"},
		{"negative ID", InputDevice, -2, "", "invalid device ID"},
		{"too high ID", OutputDevice, 10, "", "invalid device ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, err := tt.lookup(tt.id)
			if tt.substr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.substr) {
					t.Errorf("error = %v, want substring %q", err, tt.substr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if dev.Name != tt.want {
				t.Errorf("device = %q, want %q", dev.Name, tt.want)
			}
		})
	}
}

func TestDefaultDeviceFallback(t *testing.T) {
	mockDevices(t, fakeDevices, nil)

	orig := paLibDefaultInputDeviceFunc
	t.Cleanup(func() { paLibDefaultInputDeviceFunc = orig })
	paLibDefaultInputDeviceFunc = func() (*portaudio.DeviceInfo, error) {
		return nil, fmt.Errorf("mock default input error")
	}

	_, err := InputDevice(-1)
	if err == nil || !strings.Contains(err.Error(), "mock default input error") {
		t.Errorf("expected mock error, got %v", err)
	}

	paLibDefaultInputDeviceFunc = func() (*portaudio.DeviceInfo, error) {
		return fakeDevices[2], nil
	}
	dev, err := InputDevice(-1)
	if err != nil || dev.Name != "Interface" {
		t.Errorf("InputDevice(-1) = %v, %v", dev, err)
	}
}

func TestErrorInitialize(t *testing.T) {
	orig := paLibInitialize
	defer func() { paLibInitialize = orig }()

	paLibInitialize = func() error { return nil }
	if err := Initialize(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	paLibInitialize = func() error { return fmt.Errorf("mock init error") }
	if err := Initialize(); err == nil || !strings.Contains(err.Error(), "mock init error") {
		t.Errorf("expected mock init error, got %v", err)
	}
}

func TestErrorTerminate(t *testing.T) {
	orig := paLibTerminate
	defer func() { paLibTerminate = orig }()

	paLibTerminate = func() error { return nil }
	if err := Terminate(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	paLibTerminate = func() error { return fmt.Errorf("mock term error") }
	if err := Terminate(); err == nil || !strings.Contains(err.Error(), "mock term error") {
		t.Errorf("expected mock term error, got %v", err)
	}
}

func TestNilDevices(t *testing.T) {
	mockDevices(t, nil, nil)

	devices, err := paDevices()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if devices == nil || len(devices) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", devices)
	}
}

func TestListDevices(t *testing.T) {
	mockDevices(t, fakeDevices, nil)

	var buf bytes.Buffer
	if err := ListDevices(&buf); err != nil {
		t.Fatalf("ListDevices error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"[0] Mic (Input)", "[1] Speakers (Output)", "[2] Interface (Input/Output)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSystemDevices(t *testing.T) {
	setupPortAudio(t)

	devices, err := HostDevices()
	if err != nil {
		t.Fatalf("HostDevices error: %v", err)
	}
	for i, d := range devices {
		if d.Name == "" {
			t.Errorf("Device %d has empty name", i)
		}
	}
}
