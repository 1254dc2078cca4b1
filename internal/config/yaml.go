// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"fxengine/internal/chain"
	"fxengine/internal/control"
	"fxengine/internal/dsp"
	"fxengine/internal/log"
	"fxengine/internal/params"
	"fxengine/pkg/bitint"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// LoadConfig loads configuration from the YAML file at path. If path is empty
// it looks for "config.yaml" in the working directory and falls back to
// Default when none exists. Environment overrides are applied last, then
// the result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{
			"config.yaml",
			"fxengine.yaml",
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section and reports the first problem found.
func (c *Config) Validate() error {
	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		return invalid("log_level %q is not a level", c.LogLevel)
	}

	// Audio
	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		return invalid("audio.sample_rate %v outside [%d, %d]", c.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if c.Audio.InputDevice < MinDeviceID || c.Audio.OutputDevice < MinDeviceID {
		return invalid("audio device ids must be >= %d", MinDeviceID)
	}
	if !bitint.IsPowerOfTwo(c.Audio.FFTSize) || c.Audio.FFTSize < 64 || c.Audio.FFTSize > MaxFFTSize {
		return invalid("audio.fft_size %d must be a power of two in [64, %d]", c.Audio.FFTSize, MaxFFTSize)
	}
	switch strings.ToLower(c.Audio.FFTWindow) {
	case "hann", "hanning", "hamming", "blackman", "blackmannuttall",
		"bartletthann", "lanczos", "nuttall", "rectangular":
	default:
		return invalid("audio.fft_window %q is not supported", c.Audio.FFTWindow)
	}

	// Effects
	for _, name := range c.Effects.Enabled {
		if _, err := chain.ParseEffect(name); err != nil {
			return invalid("effects.enabled: %v", err)
		}
	}
	for name, v := range c.Effects.Parameters {
		id, err := params.Parse(name)
		if err != nil {
			return invalid("effects.parameters: %v", err)
		}
		if !params.InRange(id, v) {
			d := id.Descriptor()
			return invalid("effects.parameters.%s %v outside [%v, %v]", name, v, d.Min, d.Max)
		}
	}
	if c.Effects.EQPreset != "" {
		if _, ok := control.LookupPreset(c.Effects.EQPreset); !ok {
			return invalid("effects.eq_preset %q is unknown", c.Effects.EQPreset)
		}
	}
	if c.Effects.PitchWindow < dsp.MinWindowSize || c.Effects.PitchWindow > dsp.MaxWindowSize {
		return invalid("effects.pitch_window %v outside [%v, %v]", c.Effects.PitchWindow, dsp.MinWindowSize, dsp.MaxWindowSize)
	}
	if c.Effects.PitchCrossfade < 0 || c.Effects.PitchCrossfade > 1 {
		return invalid("effects.pitch_crossfade %v outside [0, 1]", c.Effects.PitchCrossfade)
	}

	// Control
	if c.Control.StatusTimeout <= 0 {
		return invalid("control.status_timeout must be positive")
	}
	if c.Control.QueueCapacity < MinQueueCapacity {
		return invalid("control.queue_capacity %d must be at least %d", c.Control.QueueCapacity, MinQueueCapacity)
	}

	// Recording
	if c.Recording.Format != DefaultFormat {
		return invalid("recording.format %q is not supported", c.Recording.Format)
	}
	if c.Recording.BitDepth != 16 && c.Recording.BitDepth != 24 {
		return invalid("recording.bit_depth %d must be 16 or 24", c.Recording.BitDepth)
	}
	if c.Recording.Enabled && c.Recording.OutputDir == "" {
		return invalid("recording.output_dir must be set when recording is enabled")
	}

	// Transport
	if c.Transport.UDPEnabled {
		if !strings.Contains(c.Transport.UDPTargetAddress, ":") {
			return invalid("transport.udp_target_address %q appears invalid (missing port?)", c.Transport.UDPTargetAddress)
		}
		if c.Transport.UDPSendInterval <= 0 {
			return invalid("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}
	return nil
}

func invalid(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, a...))
}

// applyEnvOverrides reads ENV_* variables. Unparsable values are ignored.
func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Debug = b
			log.Debugf("configuration: overriding debug from env: %v", b)
		}
	}
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
		log.Debugf("configuration: overriding log_level from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_SAMPLE_RATE"); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.Audio.SampleRate = f
			log.Debugf("configuration: overriding audio.sample_rate from env: %v", f)
		}
	}
	if val, ok := os.LookupEnv("ENV_CONTROL_ADDR"); ok {
		c.Control.Address = val
		log.Debugf("configuration: overriding control.address from env: %s", val)
	}

	// ENV_UDP_{...} are specific to the transport layer.
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = b
			log.Debugf("configuration: overriding transport.udp_enabled from env: %v", b)
		}
	}
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
		log.Debugf("configuration: overriding transport.udp_target_address from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if d, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = d
			log.Debugf("configuration: overriding transport.udp_send_interval from env: %s", d)
		}
	}
}
