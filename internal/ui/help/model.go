// Package help renders key hints for the board.
package help

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/travel-crm/internal/keys"
	"github.com/nhle/travel-crm/internal/theme"
)

// Model wraps bubbles/help with the board key map.
type Model struct {
	keys  *keys.KeyMap
	bh    help.Model
	theme theme.Theme
	width int
}

// New creates the help renderer.
func New(k *keys.KeyMap, th theme.Theme, width, _ int) Model {
	bh := help.New()
	bh.Width = width
	return Model{keys: k, bh: bh, theme: th, width: width}
}

// Short renders one line of hints. In the detail pane only the keys that
// act there are listed.
func (m Model) Short(inDetail bool) string {
	if inDetail {
		return m.bh.ShortHelpView([]key.Binding{m.keys.Back, m.keys.Note, m.keys.Quit})
	}
	return m.bh.ShortHelpView(m.keys.ShortHelp())
}

// View renders every binding grouped in columns, with a note on what
// agents can see.
func (m Model) View() string {
	bold := lipgloss.NewStyle().Bold(true)
	body := lipgloss.JoinVertical(lipgloss.Left,
		bold.MarginBottom(1).Render("Lead board keys"),
		m.bh.FullHelpView(m.keys.FullHelp()),
		"",
		m.theme.Help.Render("Agents only see leads assigned to them."),
	)
	return m.theme.Border.
		Padding(1, 2).
		Width(max(m.width-4, 10)).
		Render(body)
}

// SetSize updates the available width.
func (m *Model) SetSize(width, _ int) {
	m.width = width
	m.bh.Width = max(width-4, 10)
}
