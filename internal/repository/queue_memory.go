package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/sharpsend/sendqueue/internal/apperrors"
	"github.com/sharpsend/sendqueue/internal/model"
)

// MemoryQueueRepository keeps entries in process memory. It exists so the
// processor and controllers can be exercised without a database, and doubles
// as a dev backend.
type MemoryQueueRepository struct {
	Grace time.Duration
	Clock clockwork.Clock

	mu      sync.Mutex
	entries map[string]*model.QueueEntry
	order   map[string]int
	nextSeq int
}

func NewMemoryQueueRepository(grace time.Duration, clock clockwork.Clock) *MemoryQueueRepository {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryQueueRepository{
		Grace:   grace,
		Clock:   clock,
		entries: make(map[string]*model.QueueEntry),
		order:   make(map[string]int),
	}
}

func (r *MemoryQueueRepository) Enqueue(ctx context.Context, in model.NewQueueEntry) (*model.QueueEntry, error) {
	now := r.Clock.Now().UTC()
	if err := validateNewEntry(&in, now, r.Grace); err != nil {
		return nil, err
	}

	entry := &model.QueueEntry{
		ID:             uuid.NewString(),
		PublisherID:    in.PublisherID,
		CampaignID:     in.CampaignID,
		RecipientEmail: in.RecipientEmail,
		RecipientName:  in.RecipientName,
		Subject:        in.Subject,
		Content:        in.Content,
		Status:         model.StatusPending,
		Priority:       in.Priority,
		ScheduledFor:   in.ScheduledFor.UTC(),
		Metadata:       in.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.ID] = entry
	r.order[entry.ID] = r.nextSeq
	r.nextSeq++
	return copyEntry(entry), nil
}

func (r *MemoryQueueRepository) GetByID(ctx context.Context, publisherID, id string) (*model.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := r.get(publisherID, id)
	if err != nil {
		return nil, err
	}
	return copyEntry(entry), nil
}

func (r *MemoryQueueRepository) List(ctx context.Context, publisherID string, status model.EntryStatus, limit int) ([]*model.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.QueueEntry
	for _, e := range r.entries {
		if e.PublisherID != publisherID {
			continue
		}
		if status != "" && e.Status != status {
			continue
		}
		out = append(out, copyEntry(e))
	}
	// Newest first, matching the SQL backends.
	sort.Slice(out, func(i, j int) bool {
		return r.order[out[i].ID] > r.order[out[j].ID]
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []*model.QueueEntry{}
	}
	return out, nil
}

func (r *MemoryQueueRepository) ListDue(ctx context.Context, publisherID string, now time.Time, limit int) ([]*model.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*model.QueueEntry
	for _, e := range r.entries {
		if e.PublisherID != publisherID || e.Status != model.StatusPending {
			continue
		}
		if e.ScheduledFor.After(now) {
			continue
		}
		due = append(due, copyEntry(e))
	}
	sort.Slice(due, func(i, j int) bool {
		a, b := due[i], due[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.ScheduledFor.Equal(b.ScheduledFor) {
			return a.ScheduledFor.Before(b.ScheduledFor)
		}
		return r.order[a.ID] < r.order[b.ID]
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	if due == nil {
		due = []*model.QueueEntry{}
	}
	return due, nil
}

func (r *MemoryQueueRepository) ListByCampaign(ctx context.Context, publisherID, campaignID string) ([]*model.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []*model.QueueEntry{}
	for _, e := range r.entries {
		if e.PublisherID == publisherID && e.CampaignID == campaignID {
			out = append(out, copyEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return r.order[out[i].ID] < r.order[out[j].ID]
	})
	return out, nil
}

func (r *MemoryQueueRepository) ClaimSending(ctx context.Context, publisherID, id string, now time.Time) error {
	return r.transition(publisherID, id, model.StatusPending, "claim", func(e *model.QueueEntry) {
		at := now.UTC()
		e.Status = model.StatusSending
		e.LastAttempt = &at
	})
}

func (r *MemoryQueueRepository) MarkSent(ctx context.Context, publisherID, id string, at time.Time) error {
	return r.transition(publisherID, id, model.StatusSending, "mark sent", func(e *model.QueueEntry) {
		t := at.UTC()
		e.Status = model.StatusSent
		e.SentAt = &t
		e.LastError = ""
	})
}

func (r *MemoryQueueRepository) MarkFailed(ctx context.Context, publisherID, id, lastError string) error {
	return r.transition(publisherID, id, model.StatusSending, "mark failed", func(e *model.QueueEntry) {
		e.Status = model.StatusFailed
		e.RetryCount++
		e.LastError = lastError
	})
}

func (r *MemoryQueueRepository) Requeue(ctx context.Context, publisherID, id, lastError string, nextAttempt time.Time) error {
	return r.transition(publisherID, id, model.StatusSending, "requeue", func(e *model.QueueEntry) {
		e.Status = model.StatusPending
		e.RetryCount++
		e.LastError = lastError
		e.ScheduledFor = nextAttempt.UTC()
	})
}

func (r *MemoryQueueRepository) Cancel(ctx context.Context, publisherID, id string) (*model.QueueEntry, error) {
	err := r.transition(publisherID, id, model.StatusPending, "cancel", func(e *model.QueueEntry) {
		e.Status = model.StatusCancelled
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, publisherID, id)
}

func (r *MemoryQueueRepository) CampaignStats(ctx context.Context, publisherID, campaignID string) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := map[string]int{
		"total": 0, "pending": 0, "sending": 0, "sent": 0, "failed": 0, "cancelled": 0,
	}
	for _, e := range r.entries {
		if e.PublisherID != publisherID || e.CampaignID != campaignID {
			continue
		}
		stats[string(e.Status)]++
		stats["total"]++
	}
	return stats, nil
}

func (r *MemoryQueueRepository) Publishers(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := map[string]bool{}
	var ids []string
	for _, e := range r.entries {
		if e.Status == model.StatusPending && !seen[e.PublisherID] {
			seen[e.PublisherID] = true
			ids = append(ids, e.PublisherID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *MemoryQueueRepository) get(publisherID, id string) (*model.QueueEntry, error) {
	entry, ok := r.entries[id]
	if !ok || entry.PublisherID != publisherID {
		return nil, apperrors.NewNotFound("queue entry", id)
	}
	return entry, nil
}

func (r *MemoryQueueRepository) transition(publisherID, id string, from model.EntryStatus, op string, apply func(*model.QueueEntry)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, err := r.get(publisherID, id)
	if err != nil {
		return err
	}
	if entry.Status != from {
		return apperrors.NewConflict(id, string(entry.Status), op+" not allowed")
	}
	apply(entry)
	entry.UpdatedAt = r.Clock.Now().UTC()
	return nil
}

func copyEntry(e *model.QueueEntry) *model.QueueEntry {
	c := *e
	if e.Metadata != nil {
		c.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	if e.LastAttempt != nil {
		t := *e.LastAttempt
		c.LastAttempt = &t
	}
	if e.SentAt != nil {
		t := *e.SentAt
		c.SentAt = &t
	}
	return &c
}

var _ QueueRepositoryInterface = (*MemoryQueueRepository)(nil)
