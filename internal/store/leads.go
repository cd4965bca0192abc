package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/travel-crm/internal/mapper"
	"github.com/nhle/travel-crm/internal/model"
	"github.com/nhle/travel-crm/internal/remote"
)

var errNoRows = errors.New("remote returned no rows")

// Add inserts lead, reads back the stored row and prepends it unless the
// change feed already delivered it. Remote failures are logged and
// reported only as false.
func (s *Store) Add(ctx context.Context, lead model.Lead) (model.Lead, bool) {
	lead = s.prepare(lead)

	rows, err := s.table.Insert(ctx, s.tableName, []remote.Row{mapper.ToRow(lead)})
	if err == nil && len(rows) == 0 {
		err = errNoRows
	}
	if err != nil {
		s.remoteFailed("add", lead.ID, err)
		return model.Lead{}, false
	}

	stored := mapper.FromRowAt(rows[0], s.now())

	s.mu.Lock()
	if s.indexOf(stored.ID) < 0 {
		s.leads = append([]model.Lead{stored}, s.leads...)
		leadsAdded.Inc()
	}
	s.appendActivity(model.ActionNewLead, stored.ID,
		fmt.Sprintf("Added new lead: %s", stored.Name), nil)
	s.mu.Unlock()
	s.notify()

	return stored, true
}

// AddBulk inserts leads in one call and prepends those not already
// present, keeping batch order. One aggregate activity entry is written.
// It returns how many leads were prepended.
func (s *Store) AddBulk(ctx context.Context, leads []model.Lead) int {
	if len(leads) == 0 {
		return 0
	}

	rows := make([]remote.Row, 0, len(leads))
	for _, l := range leads {
		rows = append(rows, mapper.ToRow(s.prepare(l)))
	}

	stored, err := s.table.Insert(ctx, s.tableName, rows)
	if err != nil {
		s.remoteFailed("add_bulk", "", err)
		return 0
	}

	now := s.now()
	s.mu.Lock()
	fresh := make([]model.Lead, 0, len(stored))
	seen := make(map[string]bool, len(stored))
	for _, row := range stored {
		lead := mapper.FromRowAt(row, now)
		if seen[lead.ID] || s.indexOf(lead.ID) >= 0 {
			continue
		}
		seen[lead.ID] = true
		fresh = append(fresh, lead)
	}
	s.leads = append(fresh, s.leads...)
	s.appendActivity(model.ActionNewLead, "",
		fmt.Sprintf("Imported %d leads", len(stored)),
		map[string]string{model.MetaCount: fmt.Sprint(len(stored))})
	s.mu.Unlock()

	leadsAdded.Add(float64(len(fresh)))
	s.notify()

	return len(fresh)
}

// Update writes patch to the lead and replaces the local entry with the
// stored row. It reports whether the remote write succeeded. A lead that
// is missing locally is left missing.
func (s *Store) Update(ctx context.Context, id string, patch model.LeadPatch) bool {
	if patch.IsEmpty() {
		_, ok := s.Lead(id)
		return ok
	}

	rows, err := s.table.Update(ctx, s.tableName, remote.ByID(id), mapper.PatchRow(patch))
	if err == nil && len(rows) == 0 {
		err = fmt.Errorf("%w: %s", ErrLeadNotFound, id)
	}
	if err != nil {
		s.remoteFailed("update", id, err)
		return false
	}

	stored := mapper.FromRowAt(rows[0], s.now())

	s.mu.Lock()
	i := s.indexOf(id)
	replaced := i >= 0 && s.replaceAt(i, stored)
	s.mu.Unlock()

	switch {
	case i < 0:
		s.log.Debug().Str("lead_id", id).Msg("updated lead is not in the local collection")
	case !replaced:
		s.log.Debug().Str("lead_id", id).Msg("kept newer local copy over read-back")
	default:
		s.notify()
	}
	return true
}

// UpdateStatus moves a lead to status. The StatusChange interaction is
// recorded before the remote write and is kept if the write fails. On
// success the activity log gains a STATUS_CHANGE entry and, unless the
// status is Lost or New, a follow-up prompt is opened.
func (s *Store) UpdateStatus(
	ctx context.Context,
	id string,
	status model.LeadStatus,
	note string,
) error {
	content := note
	if content == "" {
		content = fmt.Sprintf("Status updated to %s", status)
	}

	s.mu.Lock()
	var prior model.LeadStatus
	if i := s.indexOf(id); i >= 0 {
		prior = s.leads[i].Status
	}
	s.appendInteraction(id, model.InteractionStatusChange, content)
	s.mu.Unlock()
	s.notify()

	rows, err := s.table.Update(ctx, s.tableName, remote.ByID(id), remote.Row{
		mapper.ColStatus:           string(status),
		mapper.ColLastStatusUpdate: s.now().UTC(),
	})
	if err == nil && len(rows) == 0 {
		err = ErrLeadNotFound
	}
	if err != nil {
		remoteErrors.WithLabelValues("update_status").Inc()
		s.log.Error().Err(err).Str("op", "update_status").Str("lead_id", id).
			Msg("remote write failed")
		return fmt.Errorf("updating status of lead %s: %w", id, err)
	}

	stored := mapper.FromRowAt(rows[0], s.now())

	s.mu.Lock()
	if i := s.indexOf(id); i >= 0 && !s.replaceAt(i, stored) {
		s.log.Debug().Str("lead_id", id).Msg("kept newer local copy over read-back")
	}
	s.appendActivity(model.ActionStatusChange, id,
		fmt.Sprintf("Changed status of %s from %s to %s", stored.Name, prior, status),
		map[string]string{
			model.MetaOldStatus: string(prior),
			model.MetaNewStatus: string(status),
		})
	if status.PromptsFollowUp() {
		s.followUp = &model.FollowUpPrompt{
			LeadID:   id,
			LeadName: stored.Name,
			Status:   status,
		}
	}
	s.mu.Unlock()
	s.notify()

	return nil
}

// Delete removes the lead remotely and then locally, together with its
// interactions and reminders. Remote failures are logged and reported
// only as false.
func (s *Store) Delete(ctx context.Context, id string) bool {
	if err := s.table.Delete(ctx, s.tableName, remote.ByID(id)); err != nil {
		s.remoteFailed("delete", id, err)
		return false
	}

	s.mu.Lock()
	s.removeLead(id)
	s.mu.Unlock()
	s.notify()

	return true
}

// prepare fills the defaults a new lead gets before it is written.
func (s *Store) prepare(lead model.Lead) model.Lead {
	if lead.Status == "" {
		lead.Status = model.StatusNew
	}
	if lead.Temperature == "" {
		lead.Temperature = model.TemperatureWarm
	}
	if lead.Source == "" {
		lead.Source = model.SourceOther
	}
	if lead.AssignedTo == "" {
		lead.AssignedTo = model.AssigneeUnassigned
	}
	pax := &lead.TripDetails.PaxConfig
	if pax.Adults == 0 && pax.Children == 0 {
		*pax = model.DefaultPax()
	}
	if pax.ChildAges == nil {
		pax.ChildAges = []int{}
	}
	if lead.TripDetails.StartDate.IsZero() {
		lead.TripDetails.StartDate = s.now()
	}
	lead.TripDetails.StartDate = model.TravelDate(lead.TripDetails.StartDate)
	if lead.LastStatusUpdate.IsZero() {
		lead.LastStatusUpdate = s.now()
	}

	s.mu.Lock()
	actor := s.actor
	s.mu.Unlock()
	if !actor.IsAdmin() && lead.ReferenceName == "" {
		lead.ReferenceName = actor.Name
	}
	return lead
}
