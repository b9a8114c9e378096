package service

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/sharpsend/sendqueue/internal/apperrors"
	"github.com/sharpsend/sendqueue/internal/generator"
	"github.com/sharpsend/sendqueue/internal/metrics"
	"github.com/sharpsend/sendqueue/internal/model"
	"github.com/sharpsend/sendqueue/internal/repository"
)

type OrchestratorConfig struct {
	RenderTimeout time.Duration
}

// ExpansionResult reports what one campaign expansion produced. Render
// failures are recovered with the fallback template, so RenderFailures counts
// degraded entries rather than dropped recipients.
type ExpansionResult struct {
	QueuedCount     int                 `json:"queuedCount"`
	RenderFailures  int                 `json:"renderFailures"`
	EnqueueFailures int                 `json:"enqueueFailures"`
	Items           []*model.QueueEntry `json:"items"`
}

// Orchestrator expands a campaign into concrete queue entries, one per
// recipient. Each enqueue is independent; one bad recipient never aborts the
// batch.
type Orchestrator struct {
	queue    repository.QueueRepositoryInterface
	renderer generator.Renderer
	cfg      OrchestratorConfig
	clock    clockwork.Clock
	logger   zerolog.Logger
}

func NewOrchestrator(queue repository.QueueRepositoryInterface, renderer generator.Renderer, cfg OrchestratorConfig, clock clockwork.Clock, logger zerolog.Logger) *Orchestrator {
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 5 * time.Second
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Orchestrator{
		queue:    queue,
		renderer: renderer,
		cfg:      cfg,
		clock:    clock,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
	}
}

func (o *Orchestrator) ExpandCampaign(ctx context.Context, campaign *model.Campaign, recipients []model.Recipient) (*ExpansionResult, error) {
	result := &ExpansionResult{Items: []*model.QueueEntry{}}
	priority := model.PriorityForUrgency(campaign.Urgency)

	scheduledFor := o.clock.Now().UTC()
	if campaign.ScheduledAt != nil && campaign.ScheduledAt.After(scheduledFor) {
		scheduledFor = campaign.ScheduledAt.UTC()
	}

	for _, recipient := range recipients {
		rendered, degraded := o.render(ctx, campaign, recipient)
		if degraded {
			result.RenderFailures++
		}

		entry, err := o.queue.Enqueue(ctx, model.NewQueueEntry{
			PublisherID:    campaign.PublisherID,
			CampaignID:     campaign.ID,
			RecipientEmail: recipient.Email,
			RecipientName:  recipient.Name,
			Subject:        rendered.Subject,
			Content:        rendered.Content,
			Priority:       priority,
			ScheduledFor:   scheduledFor,
			Metadata:       expansionMetadata(recipient, degraded),
		})
		if err != nil {
			o.logger.Warn().
				Err(err).
				Str("campaign_id", campaign.ID).
				Str("recipient", recipient.Email).
				Msg("enqueue failed during expansion")
			result.EnqueueFailures++
			continue
		}

		metrics.IncEnqueued()
		result.Items = append(result.Items, entry)
		result.QueuedCount++
	}

	o.logger.Info().
		Str("campaign_id", campaign.ID).
		Int("queued", result.QueuedCount).
		Int("render_failures", result.RenderFailures).
		Int("enqueue_failures", result.EnqueueFailures).
		Msg("campaign expanded")

	return result, nil
}

// render invokes the configured renderer under a timeout and degrades to the
// plain fallback template on any failure. The second return reports whether
// the fallback was used.
func (o *Orchestrator) render(ctx context.Context, campaign *model.Campaign, recipient model.Recipient) (generator.Rendered, bool) {
	renderCtx, cancel := context.WithTimeout(ctx, o.cfg.RenderTimeout)
	defer cancel()

	rendered, err := o.renderer.Render(renderCtx, campaign, recipient)
	if err == nil {
		return rendered, false
	}

	genErr := apperrors.NewGenerator(recipient.ID, err)
	o.logger.Warn().
		Err(genErr).
		Str("campaign_id", campaign.ID).
		Str("recipient", recipient.Email).
		Msg("render failed, using fallback template")

	return generator.Fallback(campaign), true
}

func expansionMetadata(recipient model.Recipient, degraded bool) map[string]string {
	meta := map[string]string{"cohort": recipient.Segment}
	if degraded {
		meta["render"] = "fallback"
	}
	return meta
}
