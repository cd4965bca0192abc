package detail

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/travel-crm/internal/keys"
	"github.com/nhle/travel-crm/internal/model"
	"github.com/nhle/travel-crm/internal/theme"
)

func TestRendersLead(t *testing.T) {
	m := New(keys.DefaultKeyMap(), theme.New(theme.Mono), 100, 40)
	assert.Contains(t, m.View(), "No lead selected")

	lead := model.Lead{
		ID:          "l1",
		Name:        "Asha",
		Status:      model.StatusDiscussion,
		Temperature: model.TemperatureHot,
		ContactInfo: model.ContactInfo{Phone: "98450 00001"},
		TripDetails: model.TripDetails{Destination: "Bali", Budget: 50000, PaxConfig: model.DefaultPax()},
	}
	due := time.Date(2024, 6, 2, 10, 0, 0, 0, time.UTC)
	m.SetLead(lead,
		[]model.Interaction{{ID: "i1", LeadID: "l1", Type: model.InteractionNote, Content: "Wants villa"}},
		[]model.Reminder{{ID: "r1", LeadID: "l1", Task: "Send quote", DueDate: due}},
	)

	view := m.View()
	assert.Equal(t, "l1", m.LeadID())
	for _, want := range []string{"Asha", "Discussion", "Bali", "50000", "98450 00001", "Send quote", "Wants villa", "[ ]"} {
		assert.Contains(t, view, want)
	}

	m.Clear()
	assert.Empty(t, m.LeadID())
}

func TestBackKey(t *testing.T) {
	m := New(keys.DefaultKeyMap(), theme.New(theme.Mono), 80, 24)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, BackMsg{}, cmd())
}
