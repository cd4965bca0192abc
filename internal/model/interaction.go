package model

import "time"

// InteractionType classifies an entry of a lead's history.
type InteractionType string

const (
	InteractionStatusChange  InteractionType = "StatusChange"
	InteractionTaskCompleted InteractionType = "TaskCompleted"
	InteractionNote          InteractionType = "Note"
	InteractionCall          InteractionType = "Call"
	InteractionEmail         InteractionType = "Email"
)

// Interaction is an append-only history entry tied to a lead.
// It is never mutated after creation.
type Interaction struct {
	ID        string          `json:"id"`
	LeadID    string          `json:"lead_id"`
	Type      InteractionType `json:"type"`
	Content   string          `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
}
