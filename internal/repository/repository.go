package repository

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/sharpsend/sendqueue/internal/apperrors"
	"github.com/sharpsend/sendqueue/internal/model"
)

// QueueRepositoryInterface is the durable send-queue store. Every operation is
// scoped to a publisher; cross-tenant access is impossible by construction.
type QueueRepositoryInterface interface {
	// Enqueue validates and persists a new entry with status pending.
	Enqueue(ctx context.Context, in model.NewQueueEntry) (*model.QueueEntry, error)
	GetByID(ctx context.Context, publisherID, id string) (*model.QueueEntry, error)
	// List returns entries filtered by status (empty status means all),
	// newest first.
	List(ctx context.Context, publisherID string, status model.EntryStatus, limit int) ([]*model.QueueEntry, error)
	// ListDue returns pending entries with scheduled_for <= now, ordered by
	// priority DESC, scheduled_for ASC, insertion ASC, capped at limit.
	ListDue(ctx context.Context, publisherID string, now time.Time, limit int) ([]*model.QueueEntry, error)
	ListByCampaign(ctx context.Context, publisherID, campaignID string) ([]*model.QueueEntry, error)
	// ClaimSending atomically transitions pending -> sending and stamps
	// last_attempt. Returns ConflictError if another claimant won the race.
	ClaimSending(ctx context.Context, publisherID, id string, now time.Time) error
	// MarkSent transitions sending -> sent, stamps sent_at and clears last_error.
	MarkSent(ctx context.Context, publisherID, id string, at time.Time) error
	// MarkFailed transitions sending -> failed, recording the final attempt.
	MarkFailed(ctx context.Context, publisherID, id, lastError string) error
	// Requeue transitions sending -> pending with retry_count incremented and
	// scheduled_for pushed to nextAttempt.
	Requeue(ctx context.Context, publisherID, id, lastError string, nextAttempt time.Time) error
	// Cancel transitions pending -> cancelled and returns the updated entry.
	// ConflictError for any other status.
	Cancel(ctx context.Context, publisherID, id string) (*model.QueueEntry, error)
	// CampaignStats returns per-status counts for one campaign.
	CampaignStats(ctx context.Context, publisherID, campaignID string) (map[string]int, error)
	// Publishers lists tenants that currently have pending entries.
	Publishers(ctx context.Context) ([]string, error)
}

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, publisherID, id string) (*model.Campaign, error)
	List(ctx context.Context, publisherID string, offset, limit int, status string) ([]*model.Campaign, int, error)
	UpdateStatus(ctx context.Context, publisherID, id, status string) error
}

type RecipientRepositoryInterface interface {
	Create(ctx context.Context, r *model.Recipient) error
	GetByIDs(ctx context.Context, publisherID string, ids []string) ([]model.Recipient, error)
	ListByPublisher(ctx context.Context, publisherID string) ([]model.Recipient, error)
}

// validateNewEntry applies the enqueue rules shared by every backend.
// Schedules older than the grace window are rejected rather than silently
// fired immediately.
func validateNewEntry(in *model.NewQueueEntry, now time.Time, grace time.Duration) error {
	if strings.TrimSpace(in.PublisherID) == "" {
		return apperrors.NewValidation("publisher_id", "must not be empty")
	}
	if strings.TrimSpace(in.RecipientEmail) == "" {
		return apperrors.NewValidation("recipient_email", "must not be empty")
	}
	if !strings.Contains(in.RecipientEmail, "@") {
		return apperrors.NewValidation("recipient_email", "must be an email address")
	}
	if strings.TrimSpace(in.Subject) == "" {
		return apperrors.NewValidation("subject", "must not be empty")
	}
	if strings.TrimSpace(in.Content) == "" {
		return apperrors.NewValidation("content", "must not be empty")
	}
	if in.ScheduledFor.IsZero() {
		in.ScheduledFor = now
	} else if in.ScheduledFor.Before(now.Add(-grace)) {
		return apperrors.NewValidation("scheduled_for", "is in the past")
	}
	return nil
}

func marshalMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalMetadata(s string) (map[string]string, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}
