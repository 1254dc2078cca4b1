// SPDX-License-Identifier: MIT
package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"fxengine/internal/audio"
	"fxengine/internal/config"
)

// ErrCancelled is returned by PickDevices when the user quits without
// confirming.
var ErrCancelled = errors.New("device selection cancelled")

// Selection is the pair of devices chosen in the picker.
type Selection struct {
	Input  int
	Output int
}

var (
	keyInput  = key.NewBinding(key.WithKeys("i"))
	keyOutput = key.NewBinding(key.WithKeys("o"))
	keyAccept = key.NewBinding(key.WithKeys("enter"))
)

// DeviceListModel lists audio devices and lets the user pick the input and
// output used for the duplex stream.
type DeviceListModel struct {
	devices       []audio.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool

	selection Selection
	confirmed bool
	err       error
}

// NewDeviceListModel creates a picker over devices, starting from the
// current selection.
func NewDeviceListModel(devices []audio.Device, current Selection) DeviceListModel {
	return DeviceListModel{devices: devices, selection: current}
}

func (m DeviceListModel) Init() tea.Cmd {
	return nil
}

func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.viewport.SetContent(m.renderDevices())

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keyQuit):
			return m, tea.Quit
		case key.Matches(msg, keyUp):
			if m.selectedIndex > 0 {
				m.selectedIndex--
			}
		case key.Matches(msg, keyDown):
			if m.selectedIndex < len(m.devices)-1 {
				m.selectedIndex++
			}
		case key.Matches(msg, keyInput):
			m.err = m.choose(&m.selection.Input, "input")
		case key.Matches(msg, keyOutput):
			m.err = m.choose(&m.selection.Output, "output")
		case key.Matches(msg, keyAccept):
			m.confirmed = true
			return m, tea.Quit
		}
		m.viewport.SetContent(m.renderDevices())
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *DeviceListModel) choose(dst *int, kind string) error {
	if len(m.devices) == 0 {
		return nil
	}
	d := m.devices[m.selectedIndex]
	channels := d.MaxInputChannels
	if kind == "output" {
		channels = d.MaxOutputChannels
	}
	if channels < 1 {
		return fmt.Errorf("device %d (%s) has no %s channels", d.ID, d.Name, kind)
	}
	*dst = d.ID
	return nil
}

// Selection returns the chosen devices and whether the user confirmed them.
func (m DeviceListModel) Selection() (Selection, bool) {
	return m.selection, m.confirmed
}

func (m DeviceListModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	title := titleStyle.Render("Audio Devices")
	help := infoStyle.Render("↑/↓: Navigate • i: Use as input • o: Use as output • Enter: Accept • q: Cancel")
	if m.err != nil {
		help = errorStyle.Render(m.err.Error()) + "\n" + help
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No audio devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		var roles []string
		if device.ID == m.selection.Input {
			roles = append(roles, "in")
		}
		if device.ID == m.selection.Output {
			roles = append(roles, "out")
		}
		tag := ""
		if len(roles) > 0 {
			tag = " <" + strings.Join(roles, ",") + ">"
		}

		info := fmt.Sprintf("[%d] %s%s\n", device.ID, device.Name, tag)
		info += fmt.Sprintf("    Input channels: %d, Output channels: %d, %.0f Hz\n",
			device.MaxInputChannels, device.MaxOutputChannels, device.DefaultSampleRate)
		if i == m.selectedIndex {
			info = highlightStyle.Render(info)
		}
		sb.WriteString(info)
		sb.WriteString("\n")
	}

	defaults := dimStyle.Render(fmt.Sprintf("Device %d selects the system default.", config.DefaultDeviceID))
	sb.WriteString(defaults)
	return sb.String()
}

// PickDevices runs the picker and returns the confirmed selection.
func PickDevices(devices []audio.Device, current Selection) (Selection, error) {
	p := tea.NewProgram(NewDeviceListModel(devices, current), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return current, err
	}
	sel, ok := final.(DeviceListModel).Selection()
	if !ok {
		return current, ErrCancelled
	}
	return sel, nil
}
