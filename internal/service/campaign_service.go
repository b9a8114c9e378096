package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sharpsend/sendqueue/internal/apperrors"
	"github.com/sharpsend/sendqueue/internal/generator"
	"github.com/sharpsend/sendqueue/internal/model"
	"github.com/sharpsend/sendqueue/internal/queue"
	"github.com/sharpsend/sendqueue/internal/repository"
)

// CampaignService glues campaigns, recipients and the orchestrator together
// behind the HTTP layer.
type CampaignService struct {
	Campaigns    repository.CampaignRepositoryInterface
	Recipients   repository.RecipientRepositoryInterface
	Queue        repository.QueueRepositoryInterface
	Orchestrator *Orchestrator
	Renderer     generator.Renderer
	Nudge        queue.Queue
	Logger       zerolog.Logger
}

// CampaignDetails is a campaign plus its per-status queue stats.
type CampaignDetails struct {
	*model.Campaign
	Stats map[string]int `json:"stats"`
}

type CreateCampaignInput struct {
	Name         string
	Subject      string
	BaseTemplate string
	Urgency      string
	ScheduledAt  *string
}

func (s *CampaignService) CreateCampaign(ctx context.Context, publisherID string, in CreateCampaignInput) (*model.Campaign, error) {
	c := &model.Campaign{
		PublisherID:  publisherID,
		Name:         in.Name,
		Subject:      in.Subject,
		BaseTemplate: in.BaseTemplate,
		Urgency:      in.Urgency,
		Status:       "draft",
	}

	if in.ScheduledAt != nil {
		t, err := time.Parse(time.RFC3339, *in.ScheduledAt)
		if err != nil {
			return nil, apperrors.NewValidation("scheduled_at", "must be RFC3339")
		}
		c.ScheduledAt = &t
	}

	if err := s.Campaigns.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCampaigns fetches campaigns with pagination.
func (s *CampaignService) ListCampaigns(ctx context.Context, publisherID string, page, pageSize int, status string) ([]*model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	campaigns, total, err := s.Campaigns.List(ctx, publisherID, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return campaigns, pagination, nil
}

func (s *CampaignService) GetCampaignDetails(ctx context.Context, publisherID, id string) (*CampaignDetails, error) {
	campaign, err := s.Campaigns.GetByID(ctx, publisherID, id)
	if err != nil {
		return nil, err
	}
	stats, err := s.Queue.CampaignStats(ctx, publisherID, id)
	if err != nil {
		return nil, err
	}
	return &CampaignDetails{Campaign: campaign, Stats: stats}, nil
}

// ExpandCampaign resolves the audience and turns the campaign into queue
// entries. An empty recipientIDs list expands to the publisher's whole
// audience.
func (s *CampaignService) ExpandCampaign(ctx context.Context, publisherID, campaignID string, recipientIDs []string) (*ExpansionResult, error) {
	campaign, err := s.Campaigns.GetByID(ctx, publisherID, campaignID)
	if err != nil {
		return nil, err
	}
	switch campaign.Status {
	case "draft", "scheduled", "sending":
	default:
		return nil, apperrors.NewConflict(campaignID, campaign.Status, "campaign cannot be expanded")
	}

	var recipients []model.Recipient
	if len(recipientIDs) > 0 {
		recipients, err = s.Recipients.GetByIDs(ctx, publisherID, recipientIDs)
	} else {
		recipients, err = s.Recipients.ListByPublisher(ctx, publisherID)
	}
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, apperrors.NewValidation("recipients", "no recipients to expand")
	}

	result, err := s.Orchestrator.ExpandCampaign(ctx, campaign, recipients)
	if err != nil {
		return nil, err
	}

	if campaign.Status != "sending" {
		if err := s.Campaigns.UpdateStatus(ctx, publisherID, campaignID, "sending"); err != nil {
			return result, err
		}
	}

	if result.QueuedCount > 0 && s.Nudge != nil {
		job := queue.Job{PublisherID: publisherID, CampaignID: campaignID}
		if err := s.Nudge.Publish(ctx, job); err != nil {
			// The worker's poll loop will still pick the entries up.
			s.Logger.Warn().Err(err).Str("campaign_id", campaignID).Msg("nudge publish failed")
		}
	}

	return result, nil
}

// Preview renders the campaign for a single recipient without enqueueing.
func (s *CampaignService) Preview(ctx context.Context, publisherID, campaignID, recipientID string, overrideTemplate *string) (generator.Rendered, error) {
	campaign, err := s.Campaigns.GetByID(ctx, publisherID, campaignID)
	if err != nil {
		return generator.Rendered{}, err
	}
	if overrideTemplate != nil && *overrideTemplate != "" {
		c := *campaign
		c.BaseTemplate = *overrideTemplate
		campaign = &c
	}

	recipients, err := s.Recipients.GetByIDs(ctx, publisherID, []string{recipientID})
	if err != nil {
		return generator.Rendered{}, err
	}
	if len(recipients) == 0 {
		return generator.Rendered{}, apperrors.NewNotFound("recipient", recipientID)
	}

	return s.Renderer.Render(ctx, campaign, recipients[0])
}
