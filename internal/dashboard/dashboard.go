// Package dashboard is the operator's terminal view of a running station.
// It only reads snapshots and forwards commands; it never touches port state.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pyromaniac/pyromaniac/internal/state"
	"github.com/pyromaniac/pyromaniac/pkg/types"
)

// Station is what the dashboard needs from a running station
type Station interface {
	Snapshot() state.Snapshot
	Submit(cmd types.Command)
}

type tickMsg time.Time

// Model is the bubbletea model of the dashboard
type Model struct {
	station  Station
	interval time.Duration
	title    string
	snap     state.Snapshot
	input    string
	quitting bool
}

// NewModel creates a dashboard refreshing every interval
func NewModel(station Station, title string, interval time.Duration) Model {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return Model{
		station:  station,
		interval: interval,
		title:    title,
		snap:     station.Snapshot(),
	}
}

// Run shows the dashboard until the operator quits or ctx ends
func Run(ctx context.Context, station Station, title string, interval time.Duration) error {
	p := tea.NewProgram(NewModel(station, title, interval), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tick(m.interval)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tickMsg:
		m.snap = m.station.Snapshot()
		return m, tick(m.interval)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m.quit()
	case tea.KeyBackspace:
		if len(m.input) > 0 {
			r := []rune(m.input)
			m.input = string(r[:len(r)-1])
		}
		return m, nil
	case tea.KeyEnter:
		m.input = ""
		return m, nil
	case tea.KeyRunes, tea.KeySpace:
	default:
		return m, nil
	}

	key := msg.String()
	if cmd, ok := types.ParseCommand(key); ok && len(msg.Runes) == 1 {
		if cmd == types.CommandQuit {
			return m.quit()
		}
		m.station.Submit(cmd)
		m.snap = m.station.Snapshot()
		return m, nil
	}

	m.input += string(msg.Runes)
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.station.Submit(types.CommandQuit)
	m.quitting = true
	return m, tea.Quit
}

// View implements tea.Model
func (m Model) View() string {
	if m.quitting {
		return "Stopping station...\n"
	}

	var b strings.Builder

	header := titleStyle.Render("🔥 "+m.title) + "  " +
		labelStyle.Render("phase ") + phaseStyle(m.snap.Phase).Render(m.snap.Phase.String())
	b.WriteString(header + "\n")

	last := m.snap.LastEvent
	if last == "" {
		last = "-"
	}
	b.WriteString(labelStyle.Render("last event ") + valueStyle.Render(last) + "\n")
	if m.snap.Alert != "" {
		b.WriteString(critStyle.Render("! "+m.snap.Alert) + "\n")
	}

	b.WriteString(panelStyle.Render(m.portTable()) + "\n")
	b.WriteString(promptStyle.Render(m.snap.Prompt) + "\n")
	b.WriteString(labelStyle.Render("> ") + m.input + "\n")
	b.WriteString(dimStyle.Render("B start burn · q quit") + "\n")

	return b.String()
}

func (m Model) portTable() string {
	nameWidth, mountWidth := 4, 5
	for _, p := range m.snap.Ports {
		nameWidth = max(nameWidth, lipgloss.Width(p.Name))
		mountWidth = max(mountWidth, lipgloss.Width(p.Mount))
	}

	rows := make([]string, 0, len(m.snap.Ports)+1)
	rows = append(rows, labelStyle.Render(fmt.Sprintf("%-*s  %-*s  %s", nameWidth, "PORT", mountWidth, "MOUNT", "STATUS")))
	for _, p := range m.snap.Ports {
		name := portStyle.Render(fmt.Sprintf("%-*s", nameWidth, p.Name))
		mount := valueStyle.Render(fmt.Sprintf("%-*s", mountWidth, p.Mount))
		status := statusStyle(p.Status).Render(p.Status)
		rows = append(rows, name+"  "+mount+"  "+status)
	}
	return strings.Join(rows, "\n")
}
