package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/sharpsend/sendqueue/internal/apperrors"
	"github.com/sharpsend/sendqueue/internal/model"
)

type MemoryCampaignRepository struct {
	Clock clockwork.Clock

	mu        sync.Mutex
	campaigns map[string]*model.Campaign
}

func NewMemoryCampaignRepository(clock clockwork.Clock) *MemoryCampaignRepository {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryCampaignRepository{Clock: clock, campaigns: make(map[string]*model.Campaign)}
}

func (r *MemoryCampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	if strings.TrimSpace(c.PublisherID) == "" {
		return apperrors.NewValidation("publisher_id", "must not be empty")
	}
	if strings.TrimSpace(c.Name) == "" {
		return apperrors.NewValidation("name", "must not be empty")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = "draft"
	}
	if c.Urgency == "" {
		c.Urgency = model.UrgencyNormal
	}
	c.CreatedAt = r.Clock.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *c
	r.campaigns[c.ID] = &stored
	return nil
}

func (r *MemoryCampaignRepository) GetByID(ctx context.Context, publisherID, id string) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.PublisherID != publisherID {
		return nil, apperrors.NewNotFound("campaign", id)
	}
	out := *c
	return &out, nil
}

func (r *MemoryCampaignRepository) List(ctx context.Context, publisherID string, offset, limit int, status string) ([]*model.Campaign, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []*model.Campaign
	for _, c := range r.campaigns {
		if c.PublisherID != publisherID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		out := *c
		all = append(all, &out)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return []*model.Campaign{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *MemoryCampaignRepository) UpdateStatus(ctx context.Context, publisherID, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.PublisherID != publisherID {
		return apperrors.NewNotFound("campaign", id)
	}
	now := r.Clock.Now().UTC()
	c.Status = status
	c.UpdatedAt = &now
	return nil
}

var _ CampaignRepositoryInterface = (*MemoryCampaignRepository)(nil)
