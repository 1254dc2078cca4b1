// SPDX-License-Identifier: MIT
package control

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"fxengine/internal/chain"
	"fxengine/internal/params"
)

// MessageType tags commands and responses on the wire.
type MessageType string

// Commands.
const (
	TypeEnableEffect    MessageType = "enable_effect"
	TypeSetEffectsChain MessageType = "set_effects_chain"
	TypeResetEffects    MessageType = "reset_effects"
	TypeGetStatus       MessageType = "get_status"
	TypeScheduleParam   MessageType = "schedule_param"
	TypeConfigurePitch  MessageType = "configure_pitch"
)

// Requests accepted at the transport edge and translated by the Surface.
const (
	TypeSetParam    MessageType = "set_param"
	TypeAnimate     MessageType = "animate_param"
	TypeSetEQBand   MessageType = "set_eq_band"
	TypeSetEQPreset MessageType = "set_eq_preset"
)

// Responses.
const (
	TypeEffectStatus   MessageType = "effect_status"
	TypeStatusResponse MessageType = "status_response"
	TypeError          MessageType = "error"
)

// ErrUnknownMessage is returned when decoding an unsupported type tag.
var ErrUnknownMessage = errors.New("unknown message type")

// Command is one instruction for the real-time context. It is a plain value
// so it can pass through a Queue without allocation.
type Command struct {
	Type MessageType

	Effect  chain.Effect
	Enabled bool
	Patch   chain.Patch

	Param params.ID
	Event params.Event

	// Pitch grain settings, applied only when the matching flag is set.
	WindowSize   float64
	Crossfade    float64
	SetWindow    bool
	SetCrossfade bool

	Seq uint64
}

// Response is one reply from the real-time context.
type Response struct {
	Type MessageType

	Effect  chain.Effect
	Enabled bool

	Chain       chain.State
	SampleRate  float64
	BufferSize  int
	EngineReady bool
	Params      [params.Count]float64
	Faults      uint64

	Seq uint64
}

// Status is the decoded form of a status_response.
type Status struct {
	EffectsChain map[string]bool    `json:"effectsChain"`
	SampleRate   float64            `json:"sampleRate"`
	BufferSize   int                `json:"bufferSize"`
	EngineReady  bool               `json:"engineReady"`
	Parameters   map[string]float64 `json:"parameters,omitempty"`
	Faults       uint64             `json:"faults"`
}

// Status converts a status_response into its map form.
func (r Response) Status() *Status {
	s := &Status{
		EffectsChain: r.Chain.Map(),
		SampleRate:   r.SampleRate,
		BufferSize:   r.BufferSize,
		EngineReady:  r.EngineReady,
		Parameters:   make(map[string]float64, params.Count),
		Faults:       r.Faults,
	}
	for i, v := range r.Params {
		s.Parameters[params.ID(i).String()] = v
	}
	return s
}

type effectStatusWire struct {
	Type    MessageType  `json:"type"`
	Effect  chain.Effect `json:"effect"`
	Enabled bool         `json:"enabled"`
}

type statusWire struct {
	Type MessageType `json:"type"`
	*Status
}

// MarshalJSON renders the response in its wire shape.
func (r Response) MarshalJSON() ([]byte, error) {
	switch r.Type {
	case TypeEffectStatus:
		return json.Marshal(effectStatusWire{Type: r.Type, Effect: r.Effect, Enabled: r.Enabled})
	case TypeStatusResponse:
		return json.Marshal(statusWire{Type: r.Type, Status: r.Status()})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, r.Type)
	}
}

// Request is a control message as received from a client, before it is
// validated and turned into Commands by the Surface.
type Request struct {
	Type MessageType `json:"type"`

	Effect  string          `json:"effect,omitempty"`
	Enabled *bool           `json:"enabled,omitempty"`
	Effects map[string]bool `json:"-"`

	Param string  `json:"param,omitempty"`
	Value float64 `json:"value,omitempty"`

	// animate_param
	Curve    params.Curve `json:"curve,omitempty"`
	Duration float64      `json:"duration,omitempty"` // seconds from now

	// schedule_param
	Kind params.Curve `json:"kind,omitempty"`
	Time *float64     `json:"time,omitempty"` // engine seconds, now when absent

	Frequency float64 `json:"frequency,omitempty"`
	Gain      float64 `json:"gain,omitempty"`
	Preset    string  `json:"preset,omitempty"`

	WindowSize *float64 `json:"windowSize,omitempty"`
	Crossfade  *float64 `json:"crossfade,omitempty"`
}

type envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// requestFields lists the payload fields each request type accepts.
var requestFields = map[MessageType][]string{
	TypeEnableEffect:   {"effect", "enabled"},
	TypeSetParam:       {"param", "value"},
	TypeAnimate:        {"param", "value", "curve", "duration"},
	TypeScheduleParam:  {"param", "value", "kind", "time"},
	TypeSetEQBand:      {"frequency", "gain"},
	TypeSetEQPreset:    {"preset"},
	TypeConfigurePitch: {"windowSize", "crossfade"},
}

// DecodeRequest parses {"type": ..., "data": {...}}. For set_effects_chain
// the data object is the partial effect map itself. A message without a data
// object may carry its fields at the top level. Fields the request type does
// not define are rejected.
func DecodeRequest(b []byte) (Request, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Request{}, fmt.Errorf("failed to decode message: %w", err)
	}

	payload := []byte(env.Data)
	if len(payload) == 0 || string(payload) == "null" {
		payload = b
	}

	var raw map[string]json.RawMessage
	switch env.Type {
	case TypeSetEffectsChain, TypeResetEffects, TypeGetStatus:
	default:
		if _, ok := requestFields[env.Type]; !ok {
			return Request{}, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
		}
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Request{}, fmt.Errorf("failed to decode %s: %w", env.Type, err)
	}
	delete(raw, "type")
	delete(raw, "data")

	req := Request{Type: env.Type}
	switch env.Type {
	case TypeSetEffectsChain:
		req.Effects = make(map[string]bool, len(raw))
		for name, v := range raw {
			var on bool
			if err := json.Unmarshal(v, &on); err != nil {
				return Request{}, fmt.Errorf("failed to decode %s.%s: %w", env.Type, name, err)
			}
			req.Effects[name] = on
		}
	case TypeResetEffects, TypeGetStatus:
		if len(raw) > 0 {
			return Request{}, fmt.Errorf("failed to decode %s: takes no fields", env.Type)
		}
	default:
		for name := range raw {
			if !slices.Contains(requestFields[env.Type], name) {
				return Request{}, fmt.Errorf("failed to decode %s: unknown field %q", env.Type, name)
			}
		}
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.DisallowUnknownFields()
		wire := struct {
			*Request
			Data json.RawMessage `json:"data"`
		}{Request: &req}
		if err := dec.Decode(&wire); err != nil {
			return Request{}, fmt.Errorf("failed to decode %s: %w", env.Type, err)
		}
		req.Type = env.Type
	}
	return req, nil
}

// ErrorReply is sent back to a client whose request could not be handled.
type ErrorReply struct {
	Type    MessageType `json:"type"`
	Request MessageType `json:"request,omitempty"`
	Error   string      `json:"error"`
}
