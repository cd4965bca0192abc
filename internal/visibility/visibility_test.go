package visibility

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/travel-crm/internal/model"
)

func sampleLeads() []model.Lead {
	return []model.Lead{
		{ID: "1", Name: "A", AssignedTo: "Sonali"},
		{ID: "2", Name: "B", AssignedTo: "Karan"},
		{ID: "3", Name: "C", AssignedTo: model.AssigneeUnassigned},
		{ID: "4", Name: "D", AssignedTo: "Sonali"},
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name    string
		actor   model.Actor
		wantIDs []string
	}{
		{
			name:    "admin sees everything",
			actor:   model.Actor{Name: "Admin", Role: model.RoleAdmin},
			wantIDs: []string{"1", "2", "3", "4"},
		},
		{
			name:    "agent sees own leads",
			actor:   model.Actor{Name: "Sonali", Role: model.RoleAgent},
			wantIDs: []string{"1", "4"},
		},
		{
			name:    "agent with no leads sees nothing",
			actor:   model.Actor{Name: "Meera", Role: model.RoleAgent},
			wantIDs: []string{},
		},
		{
			name:    "name match is exact",
			actor:   model.Actor{Name: "sonali", Role: model.RoleAgent},
			wantIDs: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter(tt.actor, sampleLeads())

			ids := make([]string, 0, len(got))
			for _, l := range got {
				ids = append(ids, l.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestFilterDoesNotAliasInput(t *testing.T) {
	leads := sampleLeads()
	got := Filter(model.Actor{Name: "Admin", Role: model.RoleAdmin}, leads)

	got[0].Name = "changed"
	assert.Equal(t, "A", leads[0].Name)
}
