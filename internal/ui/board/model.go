// Package board is the live pipeline view. It shows the visible leads of
// one status column at a time and re-renders whenever the store signals a
// change, whether from a local write or the remote change feed.
package board

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/travel-crm/internal/keys"
	"github.com/nhle/travel-crm/internal/model"
	"github.com/nhle/travel-crm/internal/sync"
	"github.com/nhle/travel-crm/internal/theme"
	"github.com/nhle/travel-crm/internal/ui"
	"github.com/nhle/travel-crm/internal/ui/detail"
	"github.com/nhle/travel-crm/internal/ui/followup"
	"github.com/nhle/travel-crm/internal/ui/help"
	"github.com/nhle/travel-crm/internal/ui/note"
)

// writeTimeout bounds a status change started from the board.
const writeTimeout = 15 * time.Second

// LeadStore is the part of the lead store the board drives.
type LeadStore interface {
	Loaded() bool
	Changes() <-chan struct{}
	VisibleLeads(actor model.Actor) []model.Lead
	Lead(id string) (model.Lead, bool)
	InteractionsForLead(leadID string) []model.Interaction
	RemindersForLead(leadID string) []model.Reminder
	AddComment(leadID, text string) error
	UpdateStatus(ctx context.Context, id string, status model.LeadStatus, note string) error
	FollowUpPrompt() (model.FollowUpPrompt, bool)
	ScheduleFollowUp(task string, due time.Time) (model.Reminder, error)
	DismissFollowUp()
	DueReminders(now time.Time) []model.Reminder
	CompleteReminder(id string) error
}

// changedMsg is sent when the store signals a change.
type changedMsg struct{}

// statusResultMsg carries the outcome of a status change.
type statusResultMsg struct {
	leadName string
	status   model.LeadStatus
	err      error
}

// Model is the Bubble Tea model of the board.
type Model struct {
	store    LeadStore
	actor    model.Actor
	poller   *sync.Poller
	keys     *keys.KeyMap
	theme    theme.Theme
	frame    ui.Frame
	table    table.Model
	help     help.Model
	followup followup.Model
	detail   detail.Model
	note     note.Model
	now      func() time.Time

	column        int
	leads         []model.Lead
	showHelp      bool
	showReminders bool
	showDetail    bool
	banner        string
	err           error
}

// Option configures a Model.
type Option func(*Model)

// WithPoller delivers due-reminder banners from p.
func WithPoller(p *sync.Poller) Option {
	return func(m *Model) { m.poller = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// New creates a board for actor over s.
func New(s LeadStore, actor model.Actor, th theme.Theme, opts ...Option) Model {
	k := keys.DefaultKeyMap()
	t := table.New(
		table.WithColumns(columns(80)),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true)
	t.SetStyles(styles)

	m := Model{
		store:    s,
		actor:    actor,
		keys:     k,
		theme:    th,
		frame:    ui.NewFrame(th, 80, 24),
		table:    t,
		help:     help.New(k, th, 80, 24),
		followup: followup.New(th, 80, 24),
		detail:   detail.New(k, th, 80, 22),
		note:     note.New(th, 80),
		now:      time.Now,
	}
	for _, o := range opts {
		o(&m)
	}
	m.refresh()
	return m
}

// Init starts listening for store changes and due reminders.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForChange(m.store)}
	if m.poller != nil {
		cmds = append(cmds, m.poller.Start())
	}
	return tea.Batch(cmds...)
}

func waitForChange(s LeadStore) tea.Cmd {
	ch := s.Changes()
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{}
	}
}

// Update handles messages for the board.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)
		return m, nil

	case changedMsg:
		m.refresh()
		m.refreshDetail()
		return m, waitForChange(m.store)

	case detail.BackMsg:
		m.showDetail = false
		m.detail.Clear()
		return m, nil

	case note.SubmitMsg:
		if err := m.store.AddComment(msg.LeadID, msg.Text); err != nil {
			m.err = err
		} else {
			m.banner = "Note added"
		}
		m.refreshDetail()
		return m, nil

	case note.CancelMsg:
		return m, nil

	case sync.ReminderDueMsg:
		m.banner = fmt.Sprintf("Reminder due: %s", msg.Reminder.Task)
		if msg.LeadName != "" {
			m.banner += fmt.Sprintf(" (%s)", msg.LeadName)
		}
		return m, m.poller.WaitForNextResult()

	case statusResultMsg:
		m.err = msg.err
		if msg.err == nil {
			m.banner = fmt.Sprintf("%s moved to %s", msg.leadName, msg.status)
		}
		m.refresh()
		return m, nil

	case followup.ScheduledMsg:
		if _, err := m.store.ScheduleFollowUp(msg.Task, msg.Due); err != nil {
			m.err = err
		} else {
			m.banner = fmt.Sprintf("Follow-up scheduled for %s", msg.Due.Format("Mon 2 Jan 15:04"))
		}
		return m, nil

	case followup.CancelMsg:
		return m, nil
	}

	if m.followup.Active() {
		var cmd tea.Cmd
		m.followup, cmd = m.followup.Update(msg)
		return m, cmd
	}

	if m.note.Active() {
		var cmd tea.Cmd
		m.note, cmd = m.note.Update(msg)
		return m, cmd
	}

	if m.showDetail {
		return m.updateDetail(msg)
	}

	if kmsg, ok := msg.(tea.KeyMsg); ok {
		return m.handleKey(kmsg)
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.poller != nil {
			m.poller.Stop()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keys.Back):
		m.showHelp = false
		m.showReminders = false
		m.banner = ""
		m.err = nil
		return m, nil

	case key.Matches(msg, m.keys.NextStatus):
		m.column = (m.column + 1) % len(model.PipelineStatuses)
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.PrevStatus):
		m.column = (m.column + len(model.PipelineStatuses) - 1) % len(model.PipelineStatuses)
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.Open):
		if lead, ok := m.selected(); ok {
			m.showDetail = true
			m.detail.SetLead(lead,
				m.store.InteractionsForLead(lead.ID),
				m.store.RemindersForLead(lead.ID))
		}
		return m, nil

	case key.Matches(msg, m.keys.Note):
		if lead, ok := m.selected(); ok {
			cmd := m.note.Start(lead.ID, lead.Name)
			return m, cmd
		}
		return m, nil

	case key.Matches(msg, m.keys.Advance):
		if next, ok := nextStatus(m.currentStatus()); ok {
			return m, m.changeStatus(next)
		}
		return m, nil

	case key.Matches(msg, m.keys.Won):
		return m, m.changeStatus(model.StatusWon)

	case key.Matches(msg, m.keys.Lost):
		return m, m.changeStatus(model.StatusLost)

	case key.Matches(msg, m.keys.Reminders):
		m.showReminders = !m.showReminders
		return m, nil

	case key.Matches(msg, m.keys.Complete):
		due := m.store.DueReminders(m.now())
		if len(due) > 0 {
			if err := m.store.CompleteReminder(due[0].ID); err != nil {
				m.err = err
			} else {
				m.banner = fmt.Sprintf("Completed: %s", due[0].Task)
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.FollowUp):
		if p, ok := m.store.FollowUpPrompt(); ok {
			cmd := m.followup.Start(p, m.now())
			return m, cmd
		}
		return m, nil

	case key.Matches(msg, m.keys.DismissTip):
		m.store.DismissFollowUp()
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// updateDetail routes input while the detail pane is open.
func (m Model) updateDetail(msg tea.Msg) (tea.Model, tea.Cmd) {
	if kmsg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(kmsg, m.keys.Quit):
			if m.poller != nil {
				m.poller.Stop()
			}
			return m, tea.Quit
		case key.Matches(kmsg, m.keys.Note):
			if lead, ok := m.store.Lead(m.detail.LeadID()); ok {
				cmd := m.note.Start(lead.ID, lead.Name)
				return m, cmd
			}
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

// refreshDetail re-reads the open lead, closing the pane when the lead is
// gone.
func (m *Model) refreshDetail() {
	if !m.showDetail {
		return
	}
	id := m.detail.LeadID()
	lead, ok := m.store.Lead(id)
	if !ok {
		m.showDetail = false
		m.detail.Clear()
		return
	}
	m.detail.Refresh(lead, m.store.InteractionsForLead(id), m.store.RemindersForLead(id))
}

// changeStatus writes the selected lead's status off the UI goroutine.
func (m Model) changeStatus(status model.LeadStatus) tea.Cmd {
	lead, ok := m.selected()
	if !ok || lead.Status == status {
		return nil
	}
	s := m.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		err := s.UpdateStatus(ctx, lead.ID, status, "")
		return statusResultMsg{leadName: lead.Name, status: status, err: err}
	}
}

func (m Model) currentStatus() model.LeadStatus {
	lead, ok := m.selected()
	if !ok {
		return ""
	}
	return lead.Status
}

func (m Model) selected() (model.Lead, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.leads) {
		return model.Lead{}, false
	}
	return m.leads[i], true
}

// refresh reloads the current column from the store.
func (m *Model) refresh() {
	status := model.PipelineStatuses[m.column]
	var leads []model.Lead
	for _, l := range m.store.VisibleLeads(m.actor) {
		if l.Status == status {
			leads = append(leads, l)
		}
	}
	m.leads = leads

	rows := make([]table.Row, len(leads))
	for i, l := range leads {
		rows[i] = leadRow(l)
	}
	m.table.SetRows(rows)
	if m.table.Cursor() >= len(rows) {
		m.table.SetCursor(max(len(rows)-1, 0))
	}
}

func (m *Model) setSize(width, height int) {
	m.frame = ui.NewFrame(m.theme, width, height)
	m.help.SetSize(width, height)
	m.followup.SetSize(width, height)
	m.detail.SetSize(width, m.frame.BodyHeight())
	m.note.SetSize(width)
	m.table.SetColumns(columns(width))
	m.table.SetWidth(width)
	m.table.SetHeight(max(m.frame.BodyHeight()-4, 3))
}

// View renders the board.
func (m Model) View() string {
	title := m.frame.TitleBar(
		"Travel CRM",
		fmt.Sprintf("%d leads  %s (%s)", len(m.store.VisibleLeads(m.actor)), m.actor.Name, m.actor.Role),
	)
	state := "live"
	if !m.store.Loaded() {
		state = "loading"
	}
	hints := m.frame.HintBar(m.help.Short(m.showDetail), state)

	var body string
	switch {
	case m.followup.Active():
		body = m.followup.View()
	case m.showHelp:
		body = m.help.View()
	case m.showDetail:
		body = m.detail.View()
	default:
		body = m.boardView()
	}
	if m.note.Active() {
		body = lipgloss.JoinVertical(lipgloss.Left, body, m.note.View())
	}

	return m.frame.Compose(title, body, hints)
}

func (m Model) boardView() string {
	var b strings.Builder
	b.WriteString(m.tabs())
	b.WriteString("\n")

	if !m.store.Loaded() {
		b.WriteString(m.theme.Help.Render("Loading leads..."))
	} else if len(m.leads) == 0 {
		b.WriteString(m.theme.Help.Render("No leads in this stage."))
	} else {
		b.WriteString(m.table.View())
	}

	if p, ok := m.store.FollowUpPrompt(); ok {
		b.WriteString("\n")
		b.WriteString(m.theme.Banner.Render(fmt.Sprintf(
			"Schedule a follow-up for %s (%s)? f: schedule  d: dismiss", p.LeadName, p.Status)))
	}
	if m.showReminders {
		b.WriteString("\n")
		b.WriteString(m.remindersView())
	}
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(m.theme.Error.Render("Error: " + m.err.Error()))
	} else if m.banner != "" {
		b.WriteString("\n")
		b.WriteString(m.theme.Help.Render(m.banner))
	}
	return b.String()
}

func (m Model) tabs() string {
	visible := m.store.VisibleLeads(m.actor)
	counts := make(map[model.LeadStatus]int)
	for _, l := range visible {
		counts[l.Status]++
	}

	parts := make([]string, len(model.PipelineStatuses))
	for i, s := range model.PipelineStatuses {
		label := fmt.Sprintf(" %s %d ", s, counts[s])
		style := m.theme.Status(s)
		if i == m.column {
			style = style.Reverse(true)
		}
		parts[i] = style.Render(label)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m Model) remindersView() string {
	due := m.store.DueReminders(m.now())
	if len(due) == 0 {
		return m.theme.Help.Render("No reminders due.")
	}
	lines := make([]string, 0, len(due)+1)
	lines = append(lines, "Due reminders:")
	for _, r := range due {
		lines = append(lines, fmt.Sprintf("  %s  %s", r.DueDate.Format("02 Jan 15:04"), r.Task))
	}
	return m.theme.Border.Render(strings.Join(lines, "\n"))
}

func columns(width int) []table.Column {
	name := max(width/4, 16)
	return []table.Column{
		{Title: "Name", Width: name},
		{Title: "Destination", Width: 16},
		{Title: "Travel", Width: 11},
		{Title: "Budget", Width: 10},
		{Title: "Temp", Width: 5},
		{Title: "Assigned", Width: 14},
	}
}

func leadRow(l model.Lead) table.Row {
	travel := ""
	if !l.TripDetails.StartDate.IsZero() {
		travel = l.TripDetails.StartDate.Format("02 Jan 06")
	}
	budget := ""
	if l.TripDetails.Budget > 0 {
		budget = fmt.Sprintf("%.0f", l.TripDetails.Budget)
	}
	return table.Row{
		l.Name,
		l.TripDetails.Destination,
		travel,
		budget,
		string(l.Temperature),
		l.AssignedTo,
	}
}

// nextStatus is the pipeline stage after s. Won and Lost are terminal and
// On Hold advances to Won.
func nextStatus(s model.LeadStatus) (model.LeadStatus, bool) {
	switch s {
	case "", model.StatusWon, model.StatusLost:
		return "", false
	}
	for i, p := range model.PipelineStatuses {
		if p == s && i+1 < len(model.PipelineStatuses) {
			next := model.PipelineStatuses[i+1]
			return next, next != model.StatusLost
		}
	}
	return model.StatusContacted, true
}
