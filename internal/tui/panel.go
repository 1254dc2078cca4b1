// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"fxengine/internal/chain"
	"fxengine/internal/control"
	"fxengine/internal/params"
)

const (
	pollInterval = 250 * time.Millisecond
	barWidth     = 24
)

// Surface is the part of control.Surface the panel drives.
type Surface interface {
	EnableEffect(e chain.Effect) error
	DisableEffect(e chain.Effect) error
	SetParameter(name string, v float64) error
	SetEQPreset(name string) error
	ResetEffects() error
	GetStatus(ctx context.Context) *control.Status
}

var _ Surface = (*control.Surface)(nil)

// Meter reports the output level of the running engine.
type Meter interface {
	Level() float32
}

var (
	keyQuit   = key.NewBinding(key.WithKeys("q", "ctrl+c"))
	keyUp     = key.NewBinding(key.WithKeys("up", "k"))
	keyDown   = key.NewBinding(key.WithKeys("down", "j"))
	keyToggle = key.NewBinding(key.WithKeys(" ", "enter"))
	keyLess   = key.NewBinding(key.WithKeys("left", "h"))
	keyMore   = key.NewBinding(key.WithKeys("right", "l"))
	keyPreset = key.NewBinding(key.WithKeys("p"))
	keyReset  = key.NewBinding(key.WithKeys("r"))
)

// row is one selectable line: an effect toggle or a parameter.
type row struct {
	effect chain.Effect
	param  params.ID
	isFx   bool
}

type statusMsg struct{ status *control.Status }

type tickMsg time.Time

// PanelModel is the live control panel.
type PanelModel struct {
	surface Surface
	meter   Meter
	timeout time.Duration

	rows   []row
	cursor int

	status  *control.Status
	stale   bool
	preset  int
	presets []string
	err     error
}

// NewPanelModel creates a panel driving s. meter may be nil.
func NewPanelModel(s Surface, meter Meter, statusTimeout time.Duration) PanelModel {
	m := PanelModel{
		surface: s,
		meter:   meter,
		timeout: statusTimeout,
		presets: control.PresetNames(),
		preset:  -1,
	}
	for _, e := range chain.Order {
		m.rows = append(m.rows, row{effect: e, isFx: true})
	}
	for id := range params.Count {
		m.rows = append(m.rows, row{param: id})
	}
	return m
}

func (m PanelModel) Init() tea.Cmd {
	return tea.Batch(m.pollStatus, tick())
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m PanelModel) pollStatus() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	return statusMsg{m.surface.GetStatus(ctx)}
}

func (m PanelModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, tea.Batch(m.pollStatus, tick())

	case statusMsg:
		if msg.status == nil {
			m.stale = true
			return m, nil
		}
		m.status = msg.status
		m.stale = false

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keyQuit):
			return m, tea.Quit
		case key.Matches(msg, keyUp):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keyDown):
			if m.cursor < len(m.rows)-1 {
				m.cursor++
			}
		case key.Matches(msg, keyToggle):
			m.err = m.toggle()
		case key.Matches(msg, keyLess):
			m.err = m.adjust(-1)
		case key.Matches(msg, keyMore):
			m.err = m.adjust(1)
		case key.Matches(msg, keyPreset):
			m.preset = (m.preset + 1) % len(m.presets)
			m.err = m.applyPreset(m.presets[m.preset])
		case key.Matches(msg, keyReset):
			m.err = m.surface.ResetEffects()
			if m.err == nil && m.status != nil {
				for name := range m.status.EffectsChain {
					m.status.EffectsChain[name] = false
				}
			}
		}
	}
	return m, nil
}

func (m *PanelModel) toggle() error {
	r := m.rows[m.cursor]
	if !r.isFx {
		return nil
	}
	on := m.enabled(r.effect)
	var err error
	if on {
		err = m.surface.DisableEffect(r.effect)
	} else {
		err = m.surface.EnableEffect(r.effect)
	}
	if err == nil && m.status != nil {
		m.status.EffectsChain[r.effect.String()] = !on
	}
	return err
}

// step is the change applied per key press.
func step(id params.ID) float64 {
	d := id.Descriptor()
	if d.Max-d.Min <= 4 {
		return 0.05
	}
	return 1
}

func (m *PanelModel) adjust(dir float64) error {
	r := m.rows[m.cursor]
	if r.isFx {
		return nil
	}
	v := params.Clamp(r.param, m.value(r.param)+dir*step(r.param))
	// Keep fine steps on a clean grid.
	v = math.Round(v*100) / 100
	if err := m.surface.SetParameter(r.param.String(), v); err != nil {
		return err
	}
	if m.status != nil {
		m.status.Parameters[r.param.String()] = v
	}
	return nil
}

func (m *PanelModel) applyPreset(name string) error {
	if err := m.surface.SetEQPreset(name); err != nil {
		return err
	}
	if m.status != nil {
		gains, _ := control.LookupPreset(name)
		for i, id := range params.EQBands {
			m.status.Parameters[id.String()] = gains[i]
		}
	}
	return nil
}

func (m PanelModel) enabled(e chain.Effect) bool {
	return m.status != nil && m.status.EffectsChain[e.String()]
}

func (m PanelModel) value(id params.ID) float64 {
	if m.status != nil {
		if v, ok := m.status.Parameters[id.String()]; ok {
			return v
		}
	}
	return id.Descriptor().Default
}

func (m PanelModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Effects Engine"))
	sb.WriteString("\n\n")

	switch {
	case m.status == nil:
		sb.WriteString(dimStyle.Render("Waiting for engine status..."))
		sb.WriteString("\n\n")
	case m.stale:
		sb.WriteString(errorStyle.Render("Engine not responding"))
		sb.WriteString("\n\n")
	default:
		fmt.Fprintf(&sb, "%.0f Hz, %d frames per quantum, %d faults\n\n",
			m.status.SampleRate, m.status.BufferSize, m.status.Faults)
	}

	for i, r := range m.rows {
		if i == len(chain.Order) {
			sb.WriteString("\n")
		}
		line := m.renderRow(r)
		if i == m.cursor {
			line = highlightStyle.Render("▶ " + line)
		} else {
			line = "  " + line
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	if m.meter != nil {
		fmt.Fprintf(&sb, "\nLevel  %s\n", bar(float64(m.meter.Level()), 0, 1))
	}
	if m.preset >= 0 {
		fmt.Fprintf(&sb, "Preset %s\n", m.presets[m.preset])
	}
	if m.err != nil {
		sb.WriteString("\n")
		sb.WriteString(errorStyle.Render(m.err.Error()))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(infoStyle.Render("↑/↓: Navigate • Space: Toggle • ←/→: Adjust • p: Preset • r: Reset • q: Quit"))
	return sb.String()
}

func (m PanelModel) renderRow(r row) string {
	if r.isFx {
		mark := "[ ]"
		if m.enabled(r.effect) {
			mark = "[x]"
		}
		return fmt.Sprintf("%s %s", mark, r.effect)
	}
	d := r.param.Descriptor()
	v := m.value(r.param)
	return fmt.Sprintf("%-16s %7.2f %s", d.Name, v, bar(v, d.Min, d.Max))
}

func bar(v, lo, hi float64) string {
	n := 0
	if hi > lo {
		n = int(math.Round((v - lo) / (hi - lo) * barWidth))
	}
	n = min(max(n, 0), barWidth)
	return strings.Repeat("█", n) + dimStyle.Render(strings.Repeat("░", barWidth-n))
}

// RunPanel runs the control panel until the user quits.
func RunPanel(s Surface, meter Meter, statusTimeout time.Duration) error {
	p := tea.NewProgram(NewPanelModel(s, meter, statusTimeout), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
