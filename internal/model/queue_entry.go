package model

import "time"

// EntryStatus is the lifecycle state of a queue entry.
type EntryStatus string

const (
	StatusPending   EntryStatus = "pending"
	StatusSending   EntryStatus = "sending"
	StatusSent      EntryStatus = "sent"
	StatusFailed    EntryStatus = "failed"
	StatusCancelled EntryStatus = "cancelled"
)

// Terminal reports whether no further transitions may leave the status.
func (s EntryStatus) Terminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusCancelled
}

// Valid reports whether s is one of the known statuses.
func (s EntryStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSending, StatusSent, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// QueueEntry is one scheduled email send job, scoped to a publisher.
type QueueEntry struct {
	ID             string            `db:"id" json:"id"`
	PublisherID    string            `db:"publisher_id" json:"publisher_id"`
	CampaignID     string            `db:"campaign_id" json:"campaign_id,omitempty"`
	RecipientEmail string            `db:"recipient_email" json:"recipient_email"`
	RecipientName  string            `db:"recipient_name" json:"recipient_name,omitempty"`
	Subject        string            `db:"subject" json:"subject"`
	Content        string            `db:"content" json:"content"`
	Status         EntryStatus       `db:"status" json:"status"`
	Priority       int               `db:"priority" json:"priority"`
	ScheduledFor   time.Time         `db:"scheduled_for" json:"scheduled_for"`
	LastAttempt    *time.Time        `db:"last_attempt" json:"last_attempt,omitempty"`
	SentAt         *time.Time        `db:"sent_at" json:"sent_at,omitempty"`
	RetryCount     int               `db:"retry_count" json:"retry_count"`
	LastError      string            `db:"last_error" json:"last_error,omitempty"`
	Metadata       map[string]string `db:"metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`
}

// NewQueueEntry is the caller-supplied part of an entry; the store fills in
// id, status, retry bookkeeping and timestamps on enqueue.
type NewQueueEntry struct {
	PublisherID    string            `json:"publisher_id"`
	CampaignID     string            `json:"campaign_id,omitempty"`
	RecipientEmail string            `json:"recipient_email"`
	RecipientName  string            `json:"recipient_name,omitempty"`
	Subject        string            `json:"subject"`
	Content        string            `json:"content"`
	Priority       int               `json:"priority"`
	ScheduledFor   time.Time         `json:"scheduled_for"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}
