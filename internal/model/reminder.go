package model

import "time"

// Reminder is a scheduled follow-up for a lead.
type Reminder struct {
	ID        string    `json:"id"`
	LeadID    string    `json:"lead_id"`
	Task      string    `json:"task"`
	DueDate   time.Time `json:"due_date"`
	Completed bool      `json:"completed"`
}

// IsOverdue reports whether the reminder is still open past its due date.
func (r Reminder) IsOverdue(now time.Time) bool {
	return !r.Completed && r.DueDate.Before(now)
}

// FollowUpPrompt asks the user to schedule a follow-up after a status
// change. It is UI state held by the store until scheduled or dismissed.
type FollowUpPrompt struct {
	LeadID   string     `json:"lead_id"`
	LeadName string     `json:"lead_name"`
	Status   LeadStatus `json:"status"`
}
