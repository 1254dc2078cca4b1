// SPDX-License-Identifier: MIT
package control

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxengine/internal/chain"
	"fxengine/internal/params"
)

func TestDecodeRequest(t *testing.T) {
	on := true
	off := false
	win := 0.1
	at := 2.0

	tests := []struct {
		name string
		in   string
		want Request
	}{
		{
			name: "enable in envelope",
			in:   `{"type":"enable_effect","data":{"effect":"bassBoost","enabled":true}}`,
			want: Request{Type: TypeEnableEffect, Effect: "bassBoost", Enabled: &on},
		},
		{
			name: "enable at top level",
			in:   `{"type":"enable_effect","effect":"loFi","enabled":false}`,
			want: Request{Type: TypeEnableEffect, Effect: "loFi", Enabled: &off},
		},
		{
			name: "partial chain",
			in:   `{"type":"set_effects_chain","data":{"eq":true,"pitchShift":false}}`,
			want: Request{Type: TypeSetEffectsChain, Effects: map[string]bool{"eq": true, "pitchShift": false}},
		},
		{
			name: "chain at top level",
			in:   `{"type":"set_effects_chain","loFi":true}`,
			want: Request{Type: TypeSetEffectsChain, Effects: map[string]bool{"loFi": true}},
		},
		{
			name: "reset",
			in:   `{"type":"reset_effects"}`,
			want: Request{Type: TypeResetEffects},
		},
		{
			name: "status with null data",
			in:   `{"type":"get_status","data":null}`,
			want: Request{Type: TypeGetStatus},
		},
		{
			name: "ramp",
			in:   `{"type":"animate_param","data":{"param":"bassBoost","value":6,"duration":0.5,"curve":"linear"}}`,
			want: Request{Type: TypeAnimate, Param: "bassBoost", Value: 6, Duration: 0.5, Curve: params.Linear},
		},
		{
			name: "scheduled ramp",
			in:   `{"type":"schedule_param","param":"bassBoost","kind":"linear","value":10,"time":2}`,
			want: Request{Type: TypeScheduleParam, Param: "bassBoost", Kind: params.Linear, Value: 10, Time: &at},
		},
		{
			name: "scheduled jump now",
			in:   `{"type":"schedule_param","data":{"param":"eq_1khz","value":-3}}`,
			want: Request{Type: TypeScheduleParam, Param: "eq_1khz", Value: -3},
		},
		{
			name: "pitch settings",
			in:   `{"type":"configure_pitch","data":{"windowSize":0.1}}`,
			want: Request{Type: TypeConfigurePitch, WindowSize: &win},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRequest([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRequestErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"not json", `enable`},
		{"unknown type", `{"type":"explode"}`},
		{"chain value not bool", `{"type":"set_effects_chain","data":{"eq":"yes"}}`},
		{"bad curve", `{"type":"animate_param","data":{"curve":"cubic"}}`},
		{"bad kind", `{"type":"schedule_param","data":{"param":"bassBoost","kind":"cubic"}}`},
		{"unknown field", `{"type":"set_param","data":{"param":"bassBoost","value":1,"ramp":true}}`},
		{"unknown top level field", `{"type":"enable_effect","effect":"eq","on":true}`},
		{"curve on schedule", `{"type":"schedule_param","data":{"param":"bassBoost","curve":"linear","value":10}}`},
		{"time on animate", `{"type":"animate_param","data":{"param":"bassBoost","value":10,"time":2}}`},
		{"fields on status", `{"type":"get_status","data":{"verbose":true}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRequest([]byte(tt.in))
			assert.Error(t, err)
		})
	}

	_, err := DecodeRequest([]byte(`{"type":"explode"}`))
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = DecodeRequest([]byte(`{"type":"schedule_param","param":"bassBoost","duration":1}`))
	assert.ErrorContains(t, err, `unknown field "duration"`)
}

func TestResponseWireShapes(t *testing.T) {
	t.Run("effect status", func(t *testing.T) {
		b, err := json.Marshal(Response{Type: TypeEffectStatus, Effect: chain.PitchShift, Enabled: true})
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"effect_status","effect":"pitchShift","enabled":true}`, string(b))
	})

	t.Run("status response", func(t *testing.T) {
		r := Response{
			Type:        TypeStatusResponse,
			SampleRate:  48000,
			BufferSize:  128,
			EngineReady: true,
		}
		r.Chain.Enabled[chain.EQ] = true
		params.Defaults(&r.Params)

		b, err := json.Marshal(r)
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, json.Unmarshal(b, &got))
		assert.Equal(t, "status_response", got["type"])
		assert.Equal(t, 48000.0, got["sampleRate"])
		assert.Equal(t, 128.0, got["bufferSize"])
		assert.Equal(t, true, got["engineReady"])
		assert.Equal(t, map[string]any{
			"eq": true, "bassBoost": false, "pitchShift": false, "loFi": false,
		}, got["effectsChain"])

		ps, ok := got["parameters"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, 1.0, ps["pitchShift"])
		assert.Equal(t, 16.0, ps["loFiBitDepth"])
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := json.Marshal(Response{Type: "bogus"})
		assert.Error(t, err)
	})
}
