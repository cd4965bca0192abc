// Package detail renders one lead with its reminders and history in a
// scrollable pane.
package detail

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/travel-crm/internal/keys"
	"github.com/nhle/travel-crm/internal/model"
	"github.com/nhle/travel-crm/internal/theme"
)

// BackMsg asks the board to close the pane.
type BackMsg struct{}

// Model is the lead detail pane.
type Model struct {
	lead      *model.Lead
	history   []model.Interaction
	reminders []model.Reminder
	viewport  viewport.Model
	keys      *keys.KeyMap
	theme     theme.Theme
	width     int
	height    int
}

// New creates an empty detail pane.
func New(k *keys.KeyMap, th theme.Theme, width, height int) Model {
	vp := viewport.New(width, max(height-2, 1))
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     k,
		theme:    th,
		width:    width,
		height:   height,
	}
}

// SetLead replaces the shown lead and scrolls to the top.
func (m *Model) SetLead(l model.Lead, history []model.Interaction, reminders []model.Reminder) {
	m.lead = &l
	m.history = history
	m.reminders = reminders
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// Refresh re-renders the current lead in place, keeping the scroll offset.
func (m *Model) Refresh(l model.Lead, history []model.Interaction, reminders []model.Reminder) {
	m.lead = &l
	m.history = history
	m.reminders = reminders
	m.viewport.SetContent(m.renderContent())
}

// Clear drops the shown lead.
func (m *Model) Clear() {
	m.lead = nil
	m.history = nil
	m.reminders = nil
	m.viewport.SetContent("")
}

// LeadID is the id of the shown lead, or "".
func (m Model) LeadID() string {
	if m.lead == nil {
		return ""
	}
	return m.lead.ID
}

// Update handles scrolling and Back.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if kmsg, ok := msg.(tea.KeyMsg); ok && key.Matches(kmsg, m.keys.Back) {
		return m, func() tea.Msg { return BackMsg{} }
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the pane.
func (m Model) View() string {
	if m.lead == nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No lead selected")
	}
	return m.viewport.View()
}

// SetSize updates the pane dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = max(height-2, 1)
	if m.lead != nil {
		m.viewport.SetContent(m.renderContent())
	}
}

func (m Model) renderContent() string {
	if m.lead == nil {
		return ""
	}
	l := m.lead
	label := m.theme.Help
	var sections []string

	title := lipgloss.NewStyle().Bold(true).Render(l.Name)
	badges := lipgloss.JoinHorizontal(lipgloss.Top,
		m.theme.Status(l.Status).Render(string(l.Status)), "  ",
		m.theme.Temperature(l.Temperature).Render(string(l.Temperature)), "  ",
		label.Render(string(l.Source)),
	)
	sections = append(sections, title, badges, "")

	field := func(name, value string) {
		if value == "" {
			return
		}
		sections = append(sections, fmt.Sprintf("%s %s", label.Render(fmt.Sprintf("%-13s", name+":")), value))
	}
	field("Phone", l.ContactInfo.Phone)
	field("Email", l.ContactInfo.Email)
	field("Destination", l.TripDetails.Destination)
	if l.TripDetails.Budget > 0 {
		field("Budget", fmt.Sprintf("%.0f", l.TripDetails.Budget))
	}
	if !l.TripDetails.StartDate.IsZero() {
		field("Travel date", l.TripDetails.StartDate.Format("02 Jan 2006"))
	}
	pax := l.TripDetails.PaxConfig
	field("Pax", fmt.Sprintf("%d adults, %d children", pax.Adults, pax.Children))
	field("Assigned to", l.AssignedTo)
	field("Captured by", l.ReferenceName)
	field("Tags", strings.Join(l.Tags, ", "))
	field("Services", strings.Join(l.Services, ", "))
	if c := l.Commercials; c != nil {
		field("Quoted", fmt.Sprintf("%.0f %s", c.QuotedPrice, c.Currency))
		field("Advance paid", fmt.Sprintf("%.0f %s", c.AdvancePaid, c.Currency))
	}
	if !l.CreatedAt.IsZero() {
		field("Created", l.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	if !l.LastStatusUpdate.IsZero() {
		field("Last update", l.LastStatusUpdate.Local().Format("2006-01-02 15:04"))
	}

	if l.Preferences != "" {
		sections = append(sections, "", lipgloss.NewStyle().Bold(true).Render("Preferences"), l.Preferences)
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorSubtle).
		Render(strings.Repeat("─", max(min(m.width-4, 80), 1)))
	sections = append(sections, "", sep, "")

	sections = append(sections, lipgloss.NewStyle().Bold(true).Render("Reminders"))
	if len(m.reminders) == 0 {
		sections = append(sections, label.Italic(true).Render("None"))
	}
	for _, r := range m.reminders {
		mark := "[ ]"
		if r.Completed {
			mark = "[x]"
		}
		sections = append(sections, fmt.Sprintf("%s %s  %s", mark, r.DueDate.Local().Format("02 Jan 15:04"), r.Task))
	}

	sections = append(sections, "", lipgloss.NewStyle().Bold(true).Render("History"))
	if len(m.history) == 0 {
		sections = append(sections, label.Italic(true).Render("No interactions yet"))
	}
	for _, in := range m.history {
		sections = append(sections, fmt.Sprintf("%s  %s  %s",
			label.Render(in.Timestamp.Local().Format("02 Jan 15:04")),
			string(in.Type),
			in.Content,
		))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
