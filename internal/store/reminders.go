package store

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nhle/travel-crm/internal/model"
)

// AddReminder schedules a follow-up task for a lead.
func (s *Store) AddReminder(leadID, task string, due time.Time) (model.Reminder, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return model.Reminder{}, fmt.Errorf("adding reminder: %w", ErrEmptyText)
	}

	s.mu.Lock()
	r := model.Reminder{
		ID:      s.newID(),
		LeadID:  leadID,
		Task:    task,
		DueDate: due,
	}
	s.reminders = append(s.reminders, r)
	s.mu.Unlock()
	s.notify()

	return r, nil
}

// CompleteReminder marks a reminder done and records a TaskCompleted
// interaction on its lead. Completing a completed reminder does nothing.
func (s *Store) CompleteReminder(id string) error {
	s.mu.Lock()
	i := s.reminderIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("completing reminder %s: %w", id, ErrReminderNotFound)
	}
	if s.reminders[i].Completed {
		s.mu.Unlock()
		return nil
	}
	s.reminders[i].Completed = true
	r := s.reminders[i]
	s.appendInteraction(r.LeadID, model.InteractionTaskCompleted,
		fmt.Sprintf("Completed task: %s", r.Task))
	s.mu.Unlock()
	s.notify()

	return nil
}

// RescheduleReminder moves a reminder's due date.
func (s *Store) RescheduleReminder(id string, due time.Time) error {
	s.mu.Lock()
	i := s.reminderIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("rescheduling reminder %s: %w", id, ErrReminderNotFound)
	}
	s.reminders[i].DueDate = due
	s.mu.Unlock()
	s.notify()

	return nil
}

// DeleteReminder removes a reminder without touching its lead.
func (s *Store) DeleteReminder(id string) error {
	s.mu.Lock()
	i := s.reminderIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("deleting reminder %s: %w", id, ErrReminderNotFound)
	}
	s.reminders = append(s.reminders[:i], s.reminders[i+1:]...)
	s.mu.Unlock()
	s.notify()

	return nil
}

// Reminders returns every reminder ordered by due date.
func (s *Store) Reminders() []model.Reminder {
	s.mu.Lock()
	out := append([]model.Reminder(nil), s.reminders...)
	s.mu.Unlock()

	sortByDue(out)
	return out
}

// RemindersForLead returns the lead's reminders ordered by due date.
func (s *Store) RemindersForLead(leadID string) []model.Reminder {
	s.mu.Lock()
	var out []model.Reminder
	for _, r := range s.reminders {
		if r.LeadID == leadID {
			out = append(out, r)
		}
	}
	s.mu.Unlock()

	sortByDue(out)
	return out
}

// DueReminders returns open reminders due at or before now, oldest first.
func (s *Store) DueReminders(now time.Time) []model.Reminder {
	s.mu.Lock()
	var out []model.Reminder
	for _, r := range s.reminders {
		if !r.Completed && !r.DueDate.After(now) {
			out = append(out, r)
		}
	}
	s.mu.Unlock()

	sortByDue(out)
	return out
}

// AddComment records a note on a lead and a COMMENT activity entry.
func (s *Store) AddComment(leadID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("commenting on lead %s: %w", leadID, ErrEmptyText)
	}

	s.mu.Lock()
	i := s.indexOf(leadID)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("commenting on lead %s: %w", leadID, ErrLeadNotFound)
	}
	name := s.leads[i].Name
	s.appendInteraction(leadID, model.InteractionNote, text)
	s.appendActivity(model.ActionComment, leadID,
		fmt.Sprintf("Commented on %s: %s", name, text), nil)
	s.mu.Unlock()
	s.notify()

	return nil
}

// ScheduleFollowUp turns the pending follow-up prompt into a reminder and
// closes the prompt. A blank task gets a default description.
func (s *Store) ScheduleFollowUp(task string, due time.Time) (model.Reminder, error) {
	s.mu.Lock()
	prompt := s.followUp
	s.followUp = nil
	s.mu.Unlock()

	if prompt == nil {
		return model.Reminder{}, ErrNoFollowUp
	}
	if strings.TrimSpace(task) == "" {
		task = fmt.Sprintf("Follow up with %s (%s)", prompt.LeadName, prompt.Status)
	}
	return s.AddReminder(prompt.LeadID, task, due)
}

// DismissFollowUp closes the pending follow-up prompt without scheduling.
func (s *Store) DismissFollowUp() {
	s.mu.Lock()
	changed := s.followUp != nil
	s.followUp = nil
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

// reminderIndex returns the position of the reminder or -1. Callers hold
// s.mu.
func (s *Store) reminderIndex(id string) int {
	for i := range s.reminders {
		if s.reminders[i].ID == id {
			return i
		}
	}
	return -1
}

func sortByDue(rs []model.Reminder) {
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].DueDate.Before(rs[j].DueDate)
	})
}
