package mapper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/travel-crm/internal/model"
	"github.com/nhle/travel-crm/internal/remote"
)

func TestRoundTripPreservesFields(t *testing.T) {
	created := time.Date(2024, 2, 10, 9, 30, 0, 0, time.UTC)
	in := model.Lead{
		ID:   "lead-1",
		Name: "Asha Rao",
		ContactInfo: model.ContactInfo{
			Phone: "+91 98450 00000",
			Email: "asha@example.com",
		},
		TripDetails: model.TripDetails{
			Destination: "Bali",
			Budget:      50000,
			StartDate:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			PaxConfig:   model.PaxConfig{Adults: 2, Children: 1, ChildAges: []int{7}},
		},
		Preferences: "4 star, breakfast",
		Commercials: &model.Commercials{QuotedPrice: 62000, NetCost: 51000, Currency: "INR"},
		Vendors:     []model.VendorRef{{ID: "v1", Name: "Ubud Villas", Service: "Hotel"}},
		Status:      model.StatusProposalSent,
		Temperature: model.TemperatureHot,
		Source:      model.SourceInstagram,
		Services:    []string{"Flights", "Hotel"},
		Tags:        []string{"honeymoon"},
		AssignedTo:  "Priya",

		CreatedAt:        created,
		LastStatusUpdate: created.Add(time.Hour),
	}

	out := FromRow(ToRow(in))

	assert.Equal(t, in, out)
}

func TestRoundTripBaliBudget(t *testing.T) {
	in := model.Lead{
		Name: "Ravi",
		TripDetails: model.TripDetails{
			Destination: "Bali",
			Budget:      50000,
			StartDate:   time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
			PaxConfig:   model.DefaultPax(),
		},
	}

	row := ToRow(in)
	assert.Equal(t, "Bali", row[ColDestination])
	assert.Equal(t, 50000.0, row[ColBudget])
	assert.Equal(t, "2025-01-15", row[ColTravelDate])
	assert.NotContains(t, row, ColID)
	assert.NotContains(t, row, ColCreatedAt)

	out := FromRow(row)
	assert.Equal(t, "Bali", out.TripDetails.Destination)
	assert.Equal(t, 50000.0, out.TripDetails.Budget)
	assert.Equal(t, in.TripDetails.StartDate, out.TripDetails.StartDate)
}

func TestTravelDateKeepsCalendarDay(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	in := model.Lead{
		ID:   "l1",
		Name: "Asha",
		TripDetails: model.TripDetails{
			StartDate: time.Date(2025, 10, 1, 0, 30, 0, 0, ist),
			PaxConfig: model.DefaultPax(),
		},
	}

	row := ToRow(in)
	assert.Equal(t, "2025-10-01", row[ColTravelDate])

	out := FromRow(row)
	want := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, want, out.TripDetails.StartDate)

	// A normalised date survives a second trip unchanged.
	again := FromRow(ToRow(out))
	assert.Equal(t, out.TripDetails.StartDate, again.TripDetails.StartDate)
}

func TestFromRowDefaults(t *testing.T) {
	now := time.Date(2024, 7, 4, 8, 0, 0, 0, time.UTC)

	lead := FromRowAt(remote.Row{"id": "x", "name": "Bare"}, now)

	assert.Equal(t, "x", lead.ID)
	assert.Equal(t, model.StatusNew, lead.Status)
	assert.Equal(t, model.TemperatureWarm, lead.Temperature)
	assert.Equal(t, model.AssigneeUnassigned, lead.AssignedTo)
	assert.Equal(t, model.DefaultPax(), lead.TripDetails.PaxConfig)
	assert.Equal(t, time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC), lead.TripDetails.StartDate)
	assert.Equal(t, "", lead.ContactInfo.Phone)
	assert.Nil(t, lead.Commercials)
}

func TestFromRowToleratesMalformedValues(t *testing.T) {
	now := time.Date(2024, 7, 4, 8, 0, 0, 0, time.UTC)

	lead := FromRowAt(remote.Row{
		"id":          "y",
		"budget":      "not a number",
		"pax":         "lots",
		"travel_date": "someday",
		"tags":        `["a","b"]`,
		"child_ages":  "[5, 9]",
		"commercials": 42,
	}, now)

	assert.Equal(t, 0.0, lead.TripDetails.Budget)
	assert.Equal(t, 2, lead.TripDetails.PaxConfig.Adults)
	assert.Equal(t, time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC), lead.TripDetails.StartDate)
	assert.Equal(t, []string{"a", "b"}, lead.Tags)
	assert.Equal(t, []int{5, 9}, lead.TripDetails.PaxConfig.ChildAges)
	assert.Nil(t, lead.Commercials)
}

func TestFromRowPrefersNestedShapes(t *testing.T) {
	lead := FromRow(remote.Row{
		"id":    "z",
		"phone": "flat",
		"contact_info": map[string]any{
			"phone": "nested",
			"email": "n@example.com",
		},
		"trip_details": map[string]any{
			"destination": "Goa",
			"budget":      "12000",
			"startDate":   "2024-12-24",
			"paxConfig":   map[string]any{"adults": 3.0, "children": 0.0},
		},
	})

	assert.Equal(t, "nested", lead.ContactInfo.Phone)
	assert.Equal(t, "n@example.com", lead.ContactInfo.Email)
	assert.Equal(t, "Goa", lead.TripDetails.Destination)
	assert.Equal(t, 12000.0, lead.TripDetails.Budget)
	assert.Equal(t, 3, lead.TripDetails.PaxConfig.Adults)
	assert.Equal(t, []int{}, lead.TripDetails.PaxConfig.ChildAges)
	require.False(t, lead.TripDetails.StartDate.IsZero())
	assert.Equal(t, 24, lead.TripDetails.StartDate.Day())
}

func TestPatchRowOmitsAbsentFields(t *testing.T) {
	status := model.StatusWon
	assignee := "Karan"

	row := PatchRow(model.LeadPatch{Status: &status, AssignedTo: &assignee})

	assert.Equal(t, remote.Row{
		ColStatus:     "Won",
		ColAssignedTo: "Karan",
	}, row)
}

func TestPatchRowFlattensNestedFields(t *testing.T) {
	row := PatchRow(model.LeadPatch{
		ContactInfo: &model.ContactInfo{Phone: "123", Email: "e@x.io"},
	})

	assert.Equal(t, remote.Row{ColPhone: "123", ColEmail: "e@x.io"}, row)
	assert.True(t, model.LeadPatch{}.IsEmpty())
}
