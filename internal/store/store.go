// Package store holds the authoritative lead collection for a running
// session. Writes go to the remote table first and the stored row is read
// back before local state changes; the remote change feed is merged in
// with id dedup so both paths converge on the same collection.
//
// One mutex guards all local state. It is never held across a remote call.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nhle/travel-crm/internal/mapper"
	"github.com/nhle/travel-crm/internal/model"
	"github.com/nhle/travel-crm/internal/remote"
	"github.com/nhle/travel-crm/internal/visibility"
)

// DefaultTable is the remote table holding leads.
const DefaultTable = "leads"

var (
	// ErrLeadNotFound is returned when an operation names a lead that is
	// neither in the local collection nor matched by the remote table.
	ErrLeadNotFound = errors.New("lead not found")

	// ErrReminderNotFound is returned for unknown reminder ids.
	ErrReminderNotFound = errors.New("reminder not found")

	// ErrNoFollowUp is returned by ScheduleFollowUp when no prompt is open.
	ErrNoFollowUp = errors.New("no follow-up pending")

	// ErrEmptyText is returned for blank comments and reminder tasks.
	ErrEmptyText = errors.New("text must not be empty")
)

// Seed is session-local data the store starts with. None of it is read
// from or written to the remote table.
type Seed struct {
	Interactions []model.Interaction `json:"interactions"`
	Reminders    []model.Reminder    `json:"reminders"`
	Activity     []model.ActivityLog `json:"activity"`
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for swallowed remote failures and feed
// diagnostics.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithActor sets who authors activity-log entries.
func WithActor(a model.Actor) Option {
	return func(s *Store) { s.actor = a }
}

// WithSeed preloads interactions, reminders and activity logs.
func WithSeed(seed Seed) Option {
	return func(s *Store) {
		s.interactions = append([]model.Interaction(nil), seed.Interactions...)
		s.reminders = append([]model.Reminder(nil), seed.Reminders...)
		s.activity = append([]model.ActivityLog(nil), seed.Activity...)
	}
}

// WithTable overrides the remote table name.
func WithTable(name string) Option {
	return func(s *Store) { s.tableName = name }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the lead store. Create one per process with New and call Start.
type Store struct {
	table     remote.Table
	tableName string
	log       zerolog.Logger
	now       func() time.Time
	newID     func() string
	changes   chan struct{}

	mu           sync.Mutex
	actor        model.Actor
	leads        []model.Lead // newest first
	interactions []model.Interaction
	reminders    []model.Reminder
	activity     []model.ActivityLog
	followUp     *model.FollowUpPrompt
	loaded       bool
	sub          remote.Subscription

	// While the initial load runs, feed events are queued in backlog and
	// replayed in arrival order once the collection is filled.
	loading bool
	backlog []remote.ChangeEvent
}

// New creates a store writing through table. Nothing is read until Start.
func New(table remote.Table, opts ...Option) *Store {
	s := &Store{
		table:     table,
		tableName: DefaultTable,
		log:       zerolog.Nop(),
		now:       time.Now,
		newID:     uuid.NewString,
		changes:   make(chan struct{}, 1),
		actor:     model.Actor{Name: "System", Role: model.RoleAdmin},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start subscribes to the change feed and then loads the collection once,
// newest first. Events that arrive during the load are held back and
// merged after it, so a write committed between the two is not lost.
// Loaded reports true afterwards even when the load failed; the failure
// is logged. Only a failed subscription is returned. Calling Start again
// is a no-op.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.sub != nil || s.loading {
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	s.mu.Unlock()

	sub, subErr := s.table.Subscribe(ctx, s.tableName, s.onFeedEvent)
	if subErr == nil {
		s.mu.Lock()
		s.sub = sub
		s.mu.Unlock()
	}

	rows, err := s.table.Select(ctx, s.tableName, remote.Order{
		Column: mapper.ColCreatedAt,
		Desc:   true,
	})

	s.mu.Lock()
	if err != nil {
		remoteErrors.WithLabelValues("load").Inc()
		s.log.Error().Err(err).Str("op", "load").Str("table", s.tableName).
			Msg("loading leads failed")
	} else {
		s.leads = s.leads[:0]
		for _, row := range rows {
			lead := mapper.FromRowAt(row, s.now())
			if s.indexOf(lead.ID) >= 0 {
				continue
			}
			s.leads = append(s.leads, lead)
		}
		s.log.Debug().Int("count", len(s.leads)).Msg("leads loaded")
	}
	s.loaded = true
	s.mu.Unlock()

	s.replayBacklog()
	s.notify()

	if subErr != nil {
		return fmt.Errorf("subscribing to %s changes: %w", s.tableName, subErr)
	}
	return nil
}

// onFeedEvent is the handler registered with the table.
func (s *Store) onFeedEvent(ev remote.ChangeEvent) {
	s.mu.Lock()
	if s.loading {
		s.backlog = append(s.backlog, ev)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.MergeRemoteEvent(ev)
}

// replayBacklog merges queued events until none are left. Loading stays
// set while a batch is merged, so later events queue behind it.
func (s *Store) replayBacklog() {
	for {
		s.mu.Lock()
		batch := s.backlog
		s.backlog = nil
		if len(batch) == 0 {
			s.loading = false
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.log.Debug().Int("count", len(batch)).Msg("replaying events received during load")
		for _, ev := range batch {
			s.MergeRemoteEvent(ev)
		}
	}
}

// Close drops the change-feed subscription.
func (s *Store) Close() error {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub == nil {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("unsubscribing from %s changes: %w", s.tableName, err)
	}
	return nil
}

// SetActor changes who authors subsequent activity-log entries.
func (s *Store) SetActor(a model.Actor) {
	s.mu.Lock()
	s.actor = a
	s.mu.Unlock()
}

// Changes delivers a signal after local state changes. Signals coalesce:
// a receiver that falls behind sees one pending signal, not many.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Loaded reports whether the initial load has finished.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Leads returns a copy of the collection, newest first.
func (s *Store) Leads() []model.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Lead(nil), s.leads...)
}

// Lead returns the lead with the given id.
func (s *Store) Lead(id string) (model.Lead, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return model.Lead{}, false
	}
	return s.leads[i], true
}

// LeadsByStatus returns the leads currently in status, newest first.
func (s *Store) LeadsByStatus(status model.LeadStatus) []model.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Lead
	for _, l := range s.leads {
		if l.Status == status {
			out = append(out, l)
		}
	}
	return out
}

// VisibleLeads returns the leads actor may see.
func (s *Store) VisibleLeads(actor model.Actor) []model.Lead {
	return visibility.Filter(actor, s.Leads())
}

// InteractionsForLead returns the lead's interactions, newest first.
func (s *Store) InteractionsForLead(leadID string) []model.Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Interaction
	for i := len(s.interactions) - 1; i >= 0; i-- {
		if s.interactions[i].LeadID == leadID {
			out = append(out, s.interactions[i])
		}
	}
	return out
}

// ActivityLogs returns the audit trail, newest first.
func (s *Store) ActivityLogs() []model.ActivityLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.ActivityLog, 0, len(s.activity))
	for i := len(s.activity) - 1; i >= 0; i-- {
		out = append(out, s.activity[i])
	}
	return out
}

// Snapshot copies the session-local history in insertion order, in the
// shape WithSeed accepts.
func (s *Store) Snapshot() Seed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Seed{
		Interactions: append([]model.Interaction(nil), s.interactions...),
		Reminders:    append([]model.Reminder(nil), s.reminders...),
		Activity:     append([]model.ActivityLog(nil), s.activity...),
	}
}

// FollowUpPrompt returns the pending follow-up prompt, if any.
func (s *Store) FollowUpPrompt() (model.FollowUpPrompt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.followUp == nil {
		return model.FollowUpPrompt{}, false
	}
	return *s.followUp, true
}

// indexOf returns the position of id in the collection or -1. Callers
// hold s.mu.
func (s *Store) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.leads {
		if s.leads[i].ID == id {
			return i
		}
	}
	return -1
}

// replaceAt stores lead at position i unless the entry there carries a
// later status update, which means a newer write already arrived.
// Callers hold s.mu.
func (s *Store) replaceAt(i int, lead model.Lead) bool {
	if !lead.LastStatusUpdate.IsZero() && lead.LastStatusUpdate.Before(s.leads[i].LastStatusUpdate) {
		return false
	}
	s.leads[i] = lead
	return true
}

// removeLead drops the lead and everything session-local that hangs off
// it. Callers hold s.mu.
func (s *Store) removeLead(id string) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.leads = append(s.leads[:i], s.leads[i+1:]...)

	interactions := s.interactions[:0]
	for _, it := range s.interactions {
		if it.LeadID != id {
			interactions = append(interactions, it)
		}
	}
	s.interactions = interactions

	reminders := s.reminders[:0]
	for _, r := range s.reminders {
		if r.LeadID != id {
			reminders = append(reminders, r)
		}
	}
	s.reminders = reminders

	if s.followUp != nil && s.followUp.LeadID == id {
		s.followUp = nil
	}
	return true
}

// appendActivity records an audit entry by the current actor. Callers
// hold s.mu.
func (s *Store) appendActivity(
	action model.ActivityAction,
	leadID, details string,
	meta map[string]string,
) {
	s.activity = append(s.activity, model.ActivityLog{
		ID:        s.newID(),
		Actor:     s.actor.Name,
		Action:    action,
		Details:   details,
		Timestamp: s.now(),
		LeadID:    leadID,
		Metadata:  meta,
	})
}

// appendInteraction records a lead interaction. Callers hold s.mu.
func (s *Store) appendInteraction(leadID string, typ model.InteractionType, content string) {
	s.interactions = append(s.interactions, model.Interaction{
		ID:        s.newID(),
		LeadID:    leadID,
		Type:      typ,
		Content:   content,
		Timestamp: s.now(),
	})
}

// remoteFailed logs and counts a remote failure that is not surfaced to
// the caller.
func (s *Store) remoteFailed(op, leadID string, err error) {
	remoteErrors.WithLabelValues(op).Inc()
	s.log.Error().Err(err).
		Str("op", op).
		Str("lead_id", leadID).
		Str("table", s.tableName).
		Msg("remote write failed")
}
