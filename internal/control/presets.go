// SPDX-License-Identifier: MIT
package control

import (
	"sort"

	"fxengine/internal/params"
)

// Preset is a named set of EQ band gains in dB, lowest band first.
type Preset [params.NumEQBands]float64

var presets = map[string]Preset{
	"flat":       {0, 0, 0, 0, 0, 0, 0},
	"rock":       {4, 2, -1, -2, 1, 3, 5},
	"pop":        {2, 3, 1, 0, 2, 3, 3},
	"jazz":       {3, 1, 0, 1, 2, 1, 2},
	"classical":  {2, 0, 0, 0, 1, 2, 3},
	"electronic": {5, 2, -1, 0, 2, 4, 6},
}

// LookupPreset returns the gains of a named preset.
func LookupPreset(name string) (Preset, bool) {
	p, ok := presets[name]
	return p, ok
}

// PresetNames lists the available presets in alphabetical order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
