package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/aalvaropc/vgate/internal/domain"
)

type Theme struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Help     lipgloss.Style
	Card     lipgloss.Style
	Toast    lipgloss.Style

	Pass    lipgloss.Style
	Fail    lipgloss.Style
	Pending lipgloss.Style
}

func DefaultTheme() Theme {
	return Theme{
		Title:    lipgloss.NewStyle().Bold(true),
		Subtitle: lipgloss.NewStyle().Faint(true),
		Help:     lipgloss.NewStyle().Faint(true),
		Card: lipgloss.NewStyle().
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")),
		Toast: lipgloss.NewStyle().Italic(true),

		Pass:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Fail:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		Pending: lipgloss.NewStyle().Faint(true),
	}
}

func (t Theme) verdict(v domain.Verdict) string {
	label := strings.ToUpper(string(v))
	if v == domain.VerdictPass {
		return t.Pass.Render(label)
	}
	return t.Fail.Render(label)
}
