package store

import (
	"github.com/nhle/travel-crm/internal/mapper"
	"github.com/nhle/travel-crm/internal/model"
	"github.com/nhle/travel-crm/internal/remote"
)

// MergeRemoteEvent applies a change-feed event to the local collection.
// Inserts are prepended unless the id is present. Updates replace an
// existing entry unless it carries a later status update. Deletes remove
// one. Applying the same event twice leaves the collection as applying it
// once.
func (s *Store) MergeRemoteEvent(ev remote.ChangeEvent) {
	if ev.Table != "" && ev.Table != s.tableName {
		feedEvents.WithLabelValues(string(ev.Type), outcomeIgnored).Inc()
		return
	}

	outcome := s.merge(ev)
	feedEvents.WithLabelValues(string(ev.Type), outcome).Inc()

	s.log.Debug().
		Str("event", string(ev.Type)).
		Str("lead_id", ev.RecordID()).
		Str("outcome", outcome).
		Msg("change feed event")

	if outcome == outcomeApplied {
		s.notify()
	}
}

func (s *Store) merge(ev remote.ChangeEvent) string {
	switch ev.Type {
	case remote.EventInsert:
		if ev.New.ID() == "" {
			return outcomeIgnored
		}
		lead := mapper.FromRowAt(ev.New, s.now())

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.indexOf(lead.ID) >= 0 {
			return outcomeDuplicate
		}
		s.leads = append([]model.Lead{lead}, s.leads...)
		return outcomeApplied

	case remote.EventUpdate:
		if ev.New.ID() == "" {
			return outcomeIgnored
		}
		lead := mapper.FromRowAt(ev.New, s.now())

		s.mu.Lock()
		defer s.mu.Unlock()
		i := s.indexOf(lead.ID)
		if i < 0 {
			return outcomeMissing
		}
		if !s.replaceAt(i, lead) {
			return outcomeStale
		}
		return outcomeApplied

	case remote.EventDelete:
		id := ev.Old.ID()
		if id == "" {
			id = ev.New.ID()
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.removeLead(id) {
			return outcomeMissing
		}
		return outcomeApplied

	default:
		return outcomeIgnored
	}
}
