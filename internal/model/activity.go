package model

import "time"

// ActivityAction is the kind of an audit entry.
type ActivityAction string

const (
	ActionNewLead      ActivityAction = "NEW_LEAD"
	ActionStatusChange ActivityAction = "STATUS_CHANGE"
	ActionComment      ActivityAction = "COMMENT"
)

// Metadata keys used on STATUS_CHANGE and bulk NEW_LEAD entries.
const (
	MetaOldStatus = "oldStatus"
	MetaNewStatus = "newStatus"
	MetaCount     = "count"
)

// ActivityLog is an immutable audit entry.
type ActivityLog struct {
	ID        string            `json:"id"`
	Actor     string            `json:"actor"`
	Action    ActivityAction    `json:"action"`
	Details   string            `json:"details"`
	Timestamp time.Time         `json:"timestamp"`
	LeadID    string            `json:"lead_id"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
