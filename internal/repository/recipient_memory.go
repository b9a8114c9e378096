package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/sharpsend/sendqueue/internal/model"
)

type MemoryRecipientRepository struct {
	mu         sync.Mutex
	recipients map[string]model.Recipient
}

func NewMemoryRecipientRepository() *MemoryRecipientRepository {
	return &MemoryRecipientRepository{recipients: make(map[string]model.Recipient)}
}

func (r *MemoryRecipientRepository) Create(ctx context.Context, rec *model.Recipient) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recipients[rec.ID] = *rec
	return nil
}

func (r *MemoryRecipientRepository) GetByIDs(ctx context.Context, publisherID string, ids []string) ([]model.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []model.Recipient{}
	for _, id := range ids {
		if rec, ok := r.recipients[id]; ok && rec.PublisherID == publisherID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *MemoryRecipientRepository) ListByPublisher(ctx context.Context, publisherID string) ([]model.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []model.Recipient{}
	for _, rec := range r.recipients {
		if rec.PublisherID == publisherID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

var _ RecipientRepositoryInterface = (*MemoryRecipientRepository)(nil)
