// SPDX-License-Identifier: MIT
package audio

import (
	"sort"

	"fxengine/internal/chain"
	"fxengine/internal/config"
	"fxengine/internal/control"
)

// Configure posts the startup effect state from ec through s: pitch grain
// settings, the EQ preset, individual parameter values and finally the
// enabled effects. The commands apply on the next quantum.
func Configure(s *control.Surface, ec config.EffectsConfig) error {
	if err := s.ConfigurePitch(ec.PitchWindow, ec.PitchCrossfade); err != nil {
		return err
	}
	if ec.EQPreset != "" {
		if err := s.SetEQPreset(ec.EQPreset); err != nil {
			return err
		}
	}

	names := make([]string, 0, len(ec.Parameters))
	for name := range ec.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.SetParameter(name, ec.Parameters[name]); err != nil {
			return err
		}
	}

	var p chain.Patch
	for _, name := range ec.Enabled {
		e, err := chain.ParseEffect(name)
		if err != nil {
			return err
		}
		p = p.With(e, true)
	}
	return s.SetEffectsChain(p)
}
