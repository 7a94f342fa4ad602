package dashboard

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/pyromaniac/pyromaniac/pkg/types"
)

var (
	colorRed    = lipgloss.Color("#FF5555")
	colorYellow = lipgloss.Color("#F1FA8C")
	colorGreen  = lipgloss.Color("#50FA7B")
	colorCyan   = lipgloss.Color("#8BE9FD")
	colorOrange = lipgloss.Color("#FFB86C")
	colorWhite  = lipgloss.Color("#F8F8F2")
	colorGray   = lipgloss.Color("#6272A4")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Padding(0, 1)

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorOrange)
	labelStyle  = lipgloss.NewStyle().Foreground(colorGray)
	valueStyle  = lipgloss.NewStyle().Foreground(colorWhite)
	portStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	warnStyle   = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	critStyle   = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(colorGreen)
	promptStyle = lipgloss.NewStyle().Foreground(colorYellow)
	dimStyle    = lipgloss.NewStyle().Foreground(colorGray)
)

// statusStyle colours a port status line by what it means for the operator
func statusStyle(status string) lipgloss.Style {
	switch {
	case status == types.StatusFinished:
		return okStyle
	case types.IsErrorStatus(status):
		return critStyle
	case status == types.StatusInsert, status == types.StatusSkipped:
		return dimStyle
	case strings.HasPrefix(status, "Media found"):
		return warnStyle
	default:
		return valueStyle
	}
}

func phaseStyle(phase types.Phase) lipgloss.Style {
	switch phase {
	case types.PhaseBurning:
		return warnStyle
	case types.PhaseAwaitRemoval:
		return okStyle
	default:
		return valueStyle
	}
}
