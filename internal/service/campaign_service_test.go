package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharpsend/sendqueue/internal/apperrors"
	"github.com/sharpsend/sendqueue/internal/generator"
	"github.com/sharpsend/sendqueue/internal/model"
	"github.com/sharpsend/sendqueue/internal/queue"
	"github.com/sharpsend/sendqueue/internal/repository"
)

type captureQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
}

func (q *captureQueue) Publish(ctx context.Context, job queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func newCampaignService(t *testing.T) (*CampaignService, *captureQueue, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	queueRepo := repository.NewMemoryQueueRepository(time.Minute, clock)
	nudge := &captureQueue{}

	svc := &CampaignService{
		Campaigns:    repository.NewMemoryCampaignRepository(clock),
		Recipients:   repository.NewMemoryRecipientRepository(),
		Queue:        queueRepo,
		Orchestrator: NewOrchestrator(queueRepo, generator.NewTemplateRenderer(), OrchestratorConfig{}, clock, zerolog.Nop()),
		Renderer:     generator.NewTemplateRenderer(),
		Nudge:        nudge,
		Logger:       zerolog.Nop(),
	}
	return svc, nudge, clock
}

func TestCreateCampaignParsesSchedule(t *testing.T) {
	svc, _, _ := newCampaignService(t)
	ctx := context.Background()

	campaign, err := svc.CreateCampaign(ctx, "pub-1", CreateCampaignInput{
		Name:        "Launch",
		Subject:     "We launched",
		ScheduledAt: strPtr("2026-03-02T09:00:00Z"),
	})
	require.NoError(t, err)
	require.NotNil(t, campaign.ScheduledAt)
	assert.Equal(t, "draft", campaign.Status)

	_, err = svc.CreateCampaign(ctx, "pub-1", CreateCampaignInput{
		Name:        "Bad",
		ScheduledAt: strPtr("tomorrow-ish"),
	})
	var verr *apperrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "scheduled_at", verr.Field)
}

func TestExpandCampaignNudgesWorker(t *testing.T) {
	svc, nudge, _ := newCampaignService(t)
	ctx := context.Background()

	campaign, err := svc.CreateCampaign(ctx, "pub-1", CreateCampaignInput{Name: "Update", Subject: "Hi {name}"})
	require.NoError(t, err)

	r := &model.Recipient{PublisherID: "pub-1", Email: "a@example.com", Name: "Ann"}
	require.NoError(t, svc.Recipients.Create(ctx, r))

	result, err := svc.ExpandCampaign(ctx, "pub-1", campaign.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.QueuedCount)

	nudge.mu.Lock()
	defer nudge.mu.Unlock()
	require.Len(t, nudge.jobs, 1)
	assert.Equal(t, "pub-1", nudge.jobs[0].PublisherID)
	assert.Equal(t, campaign.ID, nudge.jobs[0].CampaignID)

	got, err := svc.Campaigns.GetByID(ctx, "pub-1", campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, "sending", got.Status)
}

func TestExpandCampaignNoRecipients(t *testing.T) {
	svc, nudge, _ := newCampaignService(t)
	ctx := context.Background()

	campaign, err := svc.CreateCampaign(ctx, "pub-1", CreateCampaignInput{Name: "Update"})
	require.NoError(t, err)

	_, err = svc.ExpandCampaign(ctx, "pub-1", campaign.ID, nil)
	var verr *apperrors.ValidationError
	require.ErrorAs(t, err, &verr)

	nudge.mu.Lock()
	defer nudge.mu.Unlock()
	assert.Empty(t, nudge.jobs, "nothing queued means nothing to nudge about")
}

func TestListCampaignsPagination(t *testing.T) {
	svc, _, clock := newCampaignService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.CreateCampaign(ctx, "pub-1", CreateCampaignInput{Name: "Campaign"})
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	campaigns, pagination, err := svc.ListCampaigns(ctx, "pub-1", 1, 2, "")
	require.NoError(t, err)
	assert.Len(t, campaigns, 2)
	assert.Equal(t, 5, pagination["total_count"])
	assert.Equal(t, 3, pagination["total_pages"])

	// Out-of-range pages come back empty, not as an error.
	campaigns, pagination, err = svc.ListCampaigns(ctx, "pub-1", 9, 2, "")
	require.NoError(t, err)
	assert.Empty(t, campaigns)
	assert.Equal(t, 5, pagination["total_count"])

	// Garbage paging inputs are clamped.
	_, pagination, err = svc.ListCampaigns(ctx, "pub-1", -1, 1000, "")
	require.NoError(t, err)
	assert.Equal(t, 1, pagination["page"])
	assert.Equal(t, 100, pagination["page_size"])
}

func TestPreviewUsesOverrideTemplate(t *testing.T) {
	svc, _, _ := newCampaignService(t)
	ctx := context.Background()

	campaign, err := svc.CreateCampaign(ctx, "pub-1", CreateCampaignInput{
		Name:         "Update",
		Subject:      "Hi {name}",
		BaseTemplate: "Original body for {name}",
	})
	require.NoError(t, err)

	r := &model.Recipient{PublisherID: "pub-1", Email: "a@example.com", Name: "Ann"}
	require.NoError(t, svc.Recipients.Create(ctx, r))

	rendered, err := svc.Preview(ctx, "pub-1", campaign.ID, r.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "Original body for Ann", rendered.Content)

	rendered, err = svc.Preview(ctx, "pub-1", campaign.ID, r.ID, strPtr("Override for {name}"))
	require.NoError(t, err)
	assert.Equal(t, "Override for Ann", rendered.Content)

	// The stored campaign is untouched by the override.
	got, err := svc.Campaigns.GetByID(ctx, "pub-1", campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, "Original body for {name}", got.BaseTemplate)
}

func strPtr(s string) *string { return &s }
