package browser

import "github.com/charmbracelet/lipgloss"

var (
	accent  = lipgloss.AdaptiveColor{Light: "#101F38", Dark: "#8BC34A"}
	muted   = lipgloss.AdaptiveColor{Light: "#6a737d", Dark: "#8b949e"}
	border  = lipgloss.AdaptiveColor{Light: "#dce0e5", Dark: "#2a3850"}
	danger  = lipgloss.Color("#e53935")
	codeFg  = lipgloss.Color("#abb2bf")
	success = lipgloss.Color("#8BC34A")
)

// Styles groups the lipgloss styles used by the view.
type Styles struct {
	Title        lipgloss.Style
	Label        lipgloss.Style
	Placeholder  lipgloss.Style
	Error        lipgloss.Style
	Card         lipgloss.Style
	CardCursor   lipgloss.Style
	CardSelected lipgloss.Style
	Primary      lipgloss.Style
	Secondary    lipgloss.Style
	Tertiary     lipgloss.Style
	Button       lipgloss.Style
	ButtonOff    lipgloss.Style
	Output       lipgloss.Style
	OutputError  lipgloss.Style
	Notice       lipgloss.Style
}

// DefaultStyles returns the browser's styles.
func DefaultStyles() Styles {
	card := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1)

	return Styles{
		Title:        lipgloss.NewStyle().Bold(true).Foreground(accent).MarginBottom(1),
		Label:        lipgloss.NewStyle().Bold(true),
		Placeholder:  lipgloss.NewStyle().Foreground(muted).Italic(true),
		Error:        lipgloss.NewStyle().Foreground(danger),
		Card:         card,
		CardCursor:   card.BorderForeground(accent),
		CardSelected: card.BorderForeground(success).BorderStyle(lipgloss.ThickBorder()),
		Primary:      lipgloss.NewStyle().Bold(true),
		Secondary:    lipgloss.NewStyle(),
		Tertiary:     lipgloss.NewStyle().Foreground(muted),
		Button:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffffff")).Background(lipgloss.Color("#2196F3")).Padding(0, 2),
		ButtonOff:    lipgloss.NewStyle().Foreground(muted).Background(border).Padding(0, 2),
		Output:       lipgloss.NewStyle().Foreground(codeFg),
		OutputError:  lipgloss.NewStyle().Foreground(danger),
		Notice:       lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107")),
	}
}
