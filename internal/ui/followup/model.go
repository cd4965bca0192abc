package followup

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/travel-crm/internal/model"
	"github.com/nhle/travel-crm/internal/theme"
)

const dateLayout = "2006-01-02"

// ScheduledMsg is dispatched when the user submits the form.
type ScheduledMsg struct {
	LeadID string
	Task   string
	Due    time.Time
}

// CancelMsg is dispatched when the user aborts the form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	task    string
	dueDate string
	dueTime string
}

// Model is the Bubble Tea model for the follow-up scheduling form.
type Model struct {
	form   *huh.Form
	fb     *formBindings
	prompt model.FollowUpPrompt
	theme  theme.Theme
	width  int
	height int
}

// New creates a new follow-up form model.
func New(th theme.Theme, width, height int) Model {
	return Model{
		fb:     &formBindings{},
		theme:  th,
		width:  width,
		height: height,
	}
}

// Start initializes the form for a prompt. The due date defaults to the
// day after now at 10:00.
func (m *Model) Start(p model.FollowUpPrompt, now time.Time) tea.Cmd {
	m.prompt = p
	m.fb.task = DefaultTask(p)
	m.fb.dueDate = now.AddDate(0, 0, 1).Format(dateLayout)
	m.fb.dueTime = "10:00"
	m.form = buildForm(m.fb).WithWidth(m.formWidth()).WithHeight(m.formHeight())
	return m.form.Init()
}

// Active reports whether a form is open.
func (m Model) Active() bool {
	return m.form != nil
}

// Update handles messages for the follow-up form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.form = nil
		due, err := ParseDue(m.fb.dueDate, m.fb.dueTime, time.Local)
		if err != nil {
			return m, func() tea.Msg { return CancelMsg{} }
		}
		scheduled := ScheduledMsg{LeadID: m.prompt.LeadID, Task: strings.TrimSpace(m.fb.task), Due: due}
		return m, func() tea.Msg { return scheduled }
	case huh.StateAborted:
		m.form = nil
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the follow-up form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	title := m.theme.Banner.MarginBottom(1).Render(
		fmt.Sprintf("Schedule follow-up: %s (%s)", m.prompt.LeadName, m.prompt.Status),
	)

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(title + "\n" + m.form.View())
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// Run shows the form in its own program, for use outside the board. ok is
// false when the user aborts.
func Run(p model.FollowUpPrompt, now time.Time) (task string, due time.Time, ok bool, err error) {
	fb := &formBindings{
		task:    DefaultTask(p),
		dueDate: now.AddDate(0, 0, 1).Format(dateLayout),
		dueTime: "10:00",
	}
	form := buildForm(fb).WithTheme(huh.ThemeCharm())
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", time.Time{}, false, nil
		}
		return "", time.Time{}, false, fmt.Errorf("running follow-up form: %w", err)
	}

	due, err = ParseDue(fb.dueDate, fb.dueTime, now.Location())
	if err != nil {
		return "", time.Time{}, false, err
	}
	return strings.TrimSpace(fb.task), due, true, nil
}

// DefaultTask is the task text suggested for a prompt.
func DefaultTask(p model.FollowUpPrompt) string {
	return fmt.Sprintf("Follow up with %s (%s)", p.LeadName, p.Status)
}

func buildForm(fb *formBindings) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Task").
				Value(&fb.task).
				Validate(validateRequired("Task")),
			huh.NewInput().
				Title("Due date").
				Placeholder("YYYY-MM-DD").
				Value(&fb.dueDate).
				Validate(validateDate),
			huh.NewInput().
				Title("Time").
				Placeholder("HH:MM").
				Value(&fb.dueTime).
				Validate(validateClock),
		),
	)
}

// ParseDue combines a YYYY-MM-DD date and an optional HH:MM clock, which
// defaults to 09:00.
func ParseDue(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	clock = strings.TrimSpace(clock)
	if clock == "" {
		clock = "09:00"
	}
	t, err := time.ParseInLocation(dateLayout+" 15:04", strings.TrimSpace(date)+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing due date: %w", err)
	}
	return t, nil
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 80 {
		w = 80
	}
	return w
}

func (m Model) formHeight() int {
	h := m.height - 6
	if h < 8 {
		h = 8
	}
	return h
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateDate(s string) error {
	if _, err := time.Parse(dateLayout, strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("invalid date format, use YYYY-MM-DD")
	}
	return nil
}

func validateClock(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, err := time.Parse("15:04", s); err != nil {
		return fmt.Errorf("invalid time, use HH:MM")
	}
	return nil
}
