// SPDX-License-Identifier: MIT
package config

import "time"

// Boundaries and defaults for the effects engine.
const (
	DefaultDeviceID      = MinDeviceID // system default device
	DefaultSampleRate    = 44100
	DefaultControlAddr   = ":8080"
	DefaultQueueCapacity = 256
	DefaultTapCapacity   = 64
	DefaultStatusTimeout = time.Second
	DefaultFFTSize       = 1024
	DefaultFFTWindow     = "Hann"
	DefaultBitDepth      = 16
	DefaultFormat        = "wav"

	MinDeviceID   = -1 // -1 represents the system default device
	MinSampleRate = 8000
	MaxSampleRate = 192000
	MaxFFTSize    = 16384

	// MinQueueCapacity holds the startup burst queued before the stream
	// drains: pitch settings, a preset, every parameter and the chain.
	MinQueueCapacity = 32
)

// Config is the runtime configuration, loaded from YAML and overridden by
// environment variables and command line flags.
type Config struct {
	Debug     bool            `yaml:"debug"`
	LogLevel  string          `yaml:"log_level"`
	Audio     AudioConfig     `yaml:"audio"`
	Effects   EffectsConfig   `yaml:"effects"`
	Control   ControlConfig   `yaml:"control"`
	Recording RecordingConfig `yaml:"recording"`
	Transport TransportConfig `yaml:"transport"`
}

// AudioConfig selects devices and the engine sample rate. The engine always
// runs mono quanta of 128 frames.
type AudioConfig struct {
	InputDevice  int     `yaml:"input_device"`  // PortAudio device index, -1 for default
	OutputDevice int     `yaml:"output_device"` // PortAudio device index, -1 for default
	SampleRate   float64 `yaml:"sample_rate"`
	LowLatency   bool    `yaml:"low_latency"`
	FFTSize      int     `yaml:"fft_size"`   // analysis frame length, power of two
	FFTWindow    string  `yaml:"fft_window"` // any gonum dsp/window taper name
}

// EffectsConfig is the state the chain is put in at startup.
type EffectsConfig struct {
	Enabled        []string           `yaml:"enabled"`         // wire names, e.g. "bassBoost"
	Parameters     map[string]float64 `yaml:"parameters"`      // initial values by parameter name
	EQPreset       string             `yaml:"eq_preset"`       // applied before Parameters
	PitchWindow    float64            `yaml:"pitch_window"`    // grain window in seconds
	PitchCrossfade float64            `yaml:"pitch_crossfade"` // 0..1
}

// ControlConfig configures the control surface and its WebSocket endpoint.
type ControlConfig struct {
	Address       string        `yaml:"address"` // empty disables the endpoint
	StatusTimeout time.Duration `yaml:"status_timeout"`
	QueueCapacity int           `yaml:"queue_capacity"`
}

// RecordingConfig holds settings for recording the processed output.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
	Format    string `yaml:"format"`    // only "wav"
	BitDepth  int    `yaml:"bit_depth"` // 16 or 24
}

// TransportConfig holds settings for publishing analysis data over UDP.
type TransportConfig struct {
	UDPEnabled       bool          `yaml:"udp_enabled"`
	UDPTargetAddress string        `yaml:"udp_target_address"` // host:port
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`
}

// Default returns the built-in configuration used when no file is found.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:  DefaultDeviceID,
			OutputDevice: DefaultDeviceID,
			SampleRate:   DefaultSampleRate,
			FFTSize:      DefaultFFTSize,
			FFTWindow:    DefaultFFTWindow,
		},
		Effects: EffectsConfig{
			PitchWindow:    0.16,
			PitchCrossfade: 0.5,
		},
		Control: ControlConfig{
			Address:       DefaultControlAddr,
			StatusTimeout: DefaultStatusTimeout,
			QueueCapacity: DefaultQueueCapacity,
		},
		Recording: RecordingConfig{
			OutputDir: "./recordings",
			Format:    DefaultFormat,
			BitDepth:  DefaultBitDepth,
		},
		Transport: TransportConfig{
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  50 * time.Millisecond,
		},
	}
}
