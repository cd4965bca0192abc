package board

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/travel-crm/internal/model"
	"github.com/nhle/travel-crm/internal/remote"
	"github.com/nhle/travel-crm/internal/store"
	"github.com/nhle/travel-crm/internal/theme"
	"github.com/nhle/travel-crm/internal/ui/followup"
	"github.com/nhle/travel-crm/tests/testutil"
)

var admin = model.Actor{Name: "Admin", Role: model.RoleAdmin}

func newBoard(t *testing.T, rows ...remote.Row) (Model, *store.Store) {
	t.Helper()
	fake := testutil.NewFakeTable()
	fake.Seed(rows...)

	s := store.New(fake)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	m := New(s, admin, theme.New(theme.Mono))
	return m, s
}

func press(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestBoardShowsCurrentColumn(t *testing.T) {
	m, _ := newBoard(t,
		remote.Row{"id": "l1", "name": "Asha", "status": "New"},
		remote.Row{"id": "l2", "name": "Ravi", "status": "Contacted"},
	)

	require.Len(t, m.leads, 1)
	assert.Equal(t, "Asha", m.leads[0].Name)

	next, _ := m.Update(press('l'))
	m = next.(Model)
	require.Len(t, m.leads, 1)
	assert.Equal(t, "Ravi", m.leads[0].Name)

	next, _ = m.Update(press('h'))
	m = next.(Model)
	assert.Equal(t, "Asha", m.leads[0].Name)
	assert.Contains(t, m.View(), "Asha")
}

func TestAdvanceUpdatesStatus(t *testing.T) {
	m, s := newBoard(t, remote.Row{"id": "l1", "name": "Asha", "status": "New"})

	_, cmd := m.Update(press('n'))
	require.NotNil(t, cmd)

	msg := cmd()
	res, ok := msg.(statusResultMsg)
	require.True(t, ok)
	require.NoError(t, res.err)
	assert.Equal(t, model.StatusContacted, res.status)

	lead, ok := s.Lead("l1")
	require.True(t, ok)
	assert.Equal(t, model.StatusContacted, lead.Status)

	next, _ := m.Update(msg)
	m = next.(Model)
	assert.Empty(t, m.leads)
	assert.Equal(t, "Asha moved to Contacted", m.banner)
}

func TestChangedMsgRefreshes(t *testing.T) {
	m, s := newBoard(t)
	assert.Empty(t, m.leads)

	_, ok := s.Add(context.Background(), model.Lead{Name: "Meera"})
	require.True(t, ok)

	next, cmd := m.Update(changedMsg{})
	m = next.(Model)
	require.Len(t, m.leads, 1)
	assert.Equal(t, "Meera", m.leads[0].Name)
	assert.NotNil(t, cmd)
}

func TestFollowUpBannerAndDismiss(t *testing.T) {
	m, s := newBoard(t, remote.Row{"id": "l1", "name": "Asha", "status": "New"})

	require.NoError(t, s.UpdateStatus(context.Background(), "l1", model.StatusDiscussion, ""))
	assert.Contains(t, m.View(), "Schedule a follow-up for Asha (Discussion)?")

	next, _ := m.Update(press('d'))
	m = next.(Model)
	_, ok := s.FollowUpPrompt()
	assert.False(t, ok)
	assert.NotContains(t, m.View(), "Schedule a follow-up")
}

func TestScheduledMsgCreatesReminder(t *testing.T) {
	m, s := newBoard(t, remote.Row{"id": "l1", "name": "Asha", "status": "New"})
	require.NoError(t, s.UpdateStatus(context.Background(), "l1", model.StatusWon, ""))

	due := time.Date(2024, 6, 2, 10, 0, 0, 0, time.UTC)
	next, _ := m.Update(followup.ScheduledMsg{LeadID: "l1", Task: "Send invoice", Due: due})
	m = next.(Model)

	reminders := s.Reminders()
	require.Len(t, reminders, 1)
	assert.Equal(t, "Send invoice", reminders[0].Task)
	assert.Contains(t, m.banner, "Follow-up scheduled")
}

func TestNextStatus(t *testing.T) {
	tests := []struct {
		in   model.LeadStatus
		want model.LeadStatus
		ok   bool
	}{
		{model.StatusNew, model.StatusContacted, true},
		{model.StatusFollowUp, model.StatusOnHold, true},
		{model.StatusOnHold, model.StatusWon, true},
		{model.StatusWon, "", false},
		{model.StatusLost, "", false},
		{"Custom", model.StatusContacted, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			got, ok := nextStatus(tt.in)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestDetailPaneAndNote(t *testing.T) {
	m, s := newBoard(t, remote.Row{"id": "l1", "name": "Asha", "status": "New"})

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.True(t, m.showDetail)
	assert.Contains(t, m.View(), "No interactions yet")

	next, _ = m.Update(press('m'))
	m = next.(Model)
	require.True(t, m.note.Active())

	for _, r := range "Wants villa" {
		next, _ = m.Update(press(r))
		m = next.(Model)
	}
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.False(t, m.note.Active())

	next, _ = m.Update(cmd())
	m = next.(Model)
	assert.Equal(t, "Note added", m.banner)

	history := s.InteractionsForLead("l1")
	require.Len(t, history, 1)
	assert.Equal(t, "Wants villa", history[0].Content)
	assert.Contains(t, m.View(), "Wants villa")

	next, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(Model)
	require.NotNil(t, cmd)
	next, _ = m.Update(cmd())
	m = next.(Model)
	assert.False(t, m.showDetail)
}

func TestDetailClosesWhenLeadDeleted(t *testing.T) {
	m, s := newBoard(t, remote.Row{"id": "l1", "name": "Asha", "status": "New"})

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.True(t, m.showDetail)

	require.True(t, s.Delete(context.Background(), "l1"))
	next, _ = m.Update(changedMsg{})
	m = next.(Model)
	assert.False(t, m.showDetail)
	assert.Empty(t, m.leads)
}
