// Package note is the one-line input for adding a comment to a lead.
package note

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/travel-crm/internal/theme"
)

// SubmitMsg carries a non-empty note for a lead.
type SubmitMsg struct {
	LeadID string
	Text   string
}

// CancelMsg is sent when the input is closed without a note.
type CancelMsg struct{}

// Model is the note input.
type Model struct {
	input    textinput.Model
	theme    theme.Theme
	leadID   string
	leadName string
	active   bool
	width    int
}

// New creates an inactive note input.
func New(th theme.Theme, width int) Model {
	ti := textinput.New()
	ti.Placeholder = "call notes, preferences, quote sent..."
	ti.Prompt = "> "
	ti.CharLimit = 500
	ti.Width = max(width-6, 10)

	return Model{input: ti, theme: th, width: width}
}

// Start opens the input for a lead.
func (m *Model) Start(leadID, leadName string) tea.Cmd {
	m.leadID = leadID
	m.leadName = leadName
	m.active = true
	m.input.Reset()
	return m.input.Focus()
}

// Active reports whether the input is open.
func (m Model) Active() bool { return m.active }

// Update handles Enter and Esc and forwards the rest to the input.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if kmsg, ok := msg.(tea.KeyMsg); ok {
		switch kmsg.String() {
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			id := m.leadID
			m.close()
			if text == "" {
				return m, func() tea.Msg { return CancelMsg{} }
			}
			return m, func() tea.Msg { return SubmitMsg{LeadID: id, Text: text} }
		case "esc":
			m.close()
			return m, func() tea.Msg { return CancelMsg{} }
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) close() {
	m.active = false
	m.input.Blur()
	m.input.Reset()
}

// View renders the input.
func (m Model) View() string {
	title := lipgloss.NewStyle().
		Bold(true).
		MarginBottom(1).
		Render("Note for " + m.leadName)

	content := lipgloss.JoinVertical(lipgloss.Left, title, m.input.View())
	return m.theme.Border.
		Padding(0, 1).
		Width(max(m.width-4, 10)).
		Render(content)
}

// SetSize updates the input width.
func (m *Model) SetSize(width int) {
	m.width = width
	m.input.Width = max(width-6, 10)
}
