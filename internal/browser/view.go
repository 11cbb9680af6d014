package browser

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ehr/namaste/internal/client"
)

const defaultVisibleCards = 5

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("NAMAST-E to ICD-11 Terminology Browser"))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	b.WriteString(m.renderResults())
	b.WriteString("\n")

	if m.CanGenerate() {
		b.WriteString(m.styles.Button.Render("Generate FHIR (ctrl+g)"))
		b.WriteString("  " + m.styles.Label.Render("Selected: ") + m.selected.NamasteTerm)
	} else {
		b.WriteString(m.styles.ButtonOff.Render("Generate FHIR (ctrl+g)"))
	}
	if m.notice != "" {
		b.WriteString("  " + m.styles.Notice.Render(m.notice))
	}
	b.WriteString("\n\n")

	b.WriteString(m.styles.Label.Render("FHIR resource"))
	if m.generating {
		b.WriteString(" " + m.spinner.View())
	}
	b.WriteString("\n")
	b.WriteString(m.output.View())
	b.WriteString("\n")

	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) renderResults() string {
	switch m.search {
	case searchIdle:
		return m.styles.Placeholder.Render(fmt.Sprintf(MsgSearchHint, m.minLength))
	case searchFailed:
		return m.styles.Error.Render(MsgSearchFailed)
	case searchRunning:
		if len(m.results) == 0 {
			return m.spinner.View() + " Searching..."
		}
	}
	if len(m.results) == 0 {
		return m.styles.Placeholder.Render(MsgNoResults)
	}

	start, end := visibleRange(len(m.results), m.cursor, m.visibleCards())
	cards := make([]string, 0, end-start+1)
	for i := start; i < end; i++ {
		cards = append(cards, m.renderCard(i))
	}

	footer := fmt.Sprintf("%d of %d results", m.cursor+1, len(m.results))
	if m.search == searchRunning {
		footer = m.spinner.View() + " " + footer
	}
	cards = append(cards, m.styles.Placeholder.Render(footer))
	return lipgloss.JoinVertical(lipgloss.Left, cards...)
}

func (m Model) renderCard(i int) string {
	t := m.results[i]
	body := renderCardBody(t, m.styles)

	style := m.styles.Card
	switch {
	case i == m.selectedIdx:
		style = m.styles.CardSelected
		body = "✓ " + body
	case i == m.cursor:
		style = m.styles.CardCursor
	}
	if m.width > 0 {
		style = style.Width(max(20, m.width-4))
	}
	return style.Render(body)
}

func renderCardBody(t client.Term, s Styles) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		s.Primary.Render(fmt.Sprintf("Primary Term (NAMAST-E): %q", t.NamasteTerm)),
		s.Secondary.Render(fmt.Sprintf("Secondary Term (TM2): %q", t.TM2Term)),
		s.Tertiary.Render(fmt.Sprintf("Tertiary Term (Biomedicine): %q", t.BioTerm)),
	)
}

// visibleCards is how many five-line cards fit beside the fixed chrome and
// the output panel.
func (m Model) visibleCards() int {
	if m.height == 0 {
		return defaultVisibleCards
	}
	free := m.height - m.output.Height - 12
	return max(1, free/5)
}

// visibleRange returns the window [start, end) of at most size items out of n
// that keeps cursor in view.
func visibleRange(n, cursor, size int) (start, end int) {
	if size <= 0 || n <= size {
		return 0, n
	}
	start = cursor - size + 1
	if start < 0 {
		start = 0
	}
	end = start + size
	if end > n {
		end = n
		start = end - size
	}
	return start, end
}

func (m Model) renderOutputText() string {
	if m.outputErr {
		return m.styles.OutputError.Render(m.outputText)
	}
	if m.outputText == MsgOutputPlaceholder || m.outputText == MsgGenerating {
		return m.styles.Placeholder.Render(m.outputText)
	}
	return m.styles.Output.Render(m.outputText)
}
