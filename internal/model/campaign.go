package model

import "time"

// Campaign urgency tags, mapped to dispatch priority at expansion time.
const (
	UrgencyLow    = "low"
	UrgencyNormal = "normal"
	UrgencyHigh   = "high"
	UrgencyUrgent = "urgent"
)

type Campaign struct {
	ID           string     `db:"id" json:"id"`
	PublisherID  string     `db:"publisher_id" json:"publisher_id"`
	Name         string     `db:"name" json:"name"`
	Subject      string     `db:"subject" json:"subject"`
	BaseTemplate string     `db:"base_template" json:"base_template"`
	Urgency      string     `db:"urgency" json:"urgency"`
	Status       string     `db:"status" json:"status"`
	ScheduledAt  *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// PriorityForUrgency derives the queue priority from a campaign urgency tag.
// Unknown tags fall back to normal.
func PriorityForUrgency(urgency string) int {
	switch urgency {
	case UrgencyLow:
		return 0
	case UrgencyHigh:
		return 5
	case UrgencyUrgent:
		return 10
	default:
		return 1
	}
}
