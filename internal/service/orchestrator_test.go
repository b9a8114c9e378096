package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharpsend/sendqueue/internal/generator"
	"github.com/sharpsend/sendqueue/internal/model"
	"github.com/sharpsend/sendqueue/internal/repository"
)

// flakyRenderer fails for the recipient IDs in failFor and delegates to the
// template renderer otherwise.
type flakyRenderer struct {
	inner   generator.Renderer
	failFor map[string]bool
}

func (r *flakyRenderer) Render(ctx context.Context, campaign *model.Campaign, recipient model.Recipient) (generator.Rendered, error) {
	if r.failFor[recipient.ID] {
		return generator.Rendered{}, errors.New("generation backend unavailable")
	}
	return r.inner.Render(ctx, campaign, recipient)
}

func testCampaign(urgency string) *model.Campaign {
	return &model.Campaign{
		ID:           "camp-1",
		PublisherID:  "pub-1",
		Name:         "Product Update",
		Subject:      "News for {name}",
		BaseTemplate: "Hi {name}, fresh updates for the {segment} crowd.",
		Urgency:      urgency,
		Status:       "draft",
	}
}

func testRecipients(n int) []model.Recipient {
	out := make([]model.Recipient, n)
	for i := range out {
		out[i] = model.Recipient{
			ID:          fmt.Sprintf("rcpt-%d", i),
			PublisherID: "pub-1",
			Email:       fmt.Sprintf("r%d@example.com", i),
			Name:        fmt.Sprintf("Reader %d", i),
			Segment:     "newsletter",
		}
	}
	return out
}

func TestExpandCampaignQueuesAllRecipients(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := repository.NewMemoryQueueRepository(time.Minute, clock)
	o := NewOrchestrator(repo, generator.NewTemplateRenderer(), OrchestratorConfig{}, clock, zerolog.Nop())

	result, err := o.ExpandCampaign(context.Background(), testCampaign(model.UrgencyHigh), testRecipients(4))
	require.NoError(t, err)
	assert.Equal(t, 4, result.QueuedCount)
	assert.Zero(t, result.RenderFailures)
	assert.Zero(t, result.EnqueueFailures)
	require.Len(t, result.Items, 4)

	first := result.Items[0]
	assert.Equal(t, "camp-1", first.CampaignID)
	assert.Equal(t, model.PriorityForUrgency(model.UrgencyHigh), first.Priority)
	assert.Equal(t, "News for Reader 0", first.Subject)
	assert.Contains(t, first.Content, "Hi Reader 0")
	assert.Equal(t, "newsletter", first.Metadata["cohort"])
	assert.True(t, first.ScheduledFor.Equal(clock.Now().UTC()))

	entries, err := repo.ListByCampaign(context.Background(), "pub-1", "camp-1")
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestExpandCampaignFallsBackOnRenderFailure(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := repository.NewMemoryQueueRepository(time.Minute, clock)
	renderer := &flakyRenderer{
		inner:   generator.NewTemplateRenderer(),
		failFor: map[string]bool{"rcpt-5": true},
	}
	o := NewOrchestrator(repo, renderer, OrchestratorConfig{}, clock, zerolog.Nop())

	result, err := o.ExpandCampaign(context.Background(), testCampaign(model.UrgencyNormal), testRecipients(10))
	require.NoError(t, err)

	// The failing recipient is degraded to the fallback, not dropped.
	assert.Equal(t, 10, result.QueuedCount)
	assert.Equal(t, 1, result.RenderFailures)
	assert.Zero(t, result.EnqueueFailures)

	var degraded *model.QueueEntry
	for _, item := range result.Items {
		if item.RecipientEmail == "r5@example.com" {
			degraded = item
		}
	}
	require.NotNil(t, degraded)
	assert.Equal(t, "fallback", degraded.Metadata["render"])
	assert.Equal(t, "News for", degraded.Subject, "placeholders stripped from the fallback")
	assert.NotContains(t, degraded.Content, "{name}")
}

func TestExpandCampaignSkipsBadRecipients(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := repository.NewMemoryQueueRepository(time.Minute, clock)
	o := NewOrchestrator(repo, generator.NewTemplateRenderer(), OrchestratorConfig{}, clock, zerolog.Nop())

	recipients := testRecipients(3)
	recipients[1].Email = "not-an-address"

	result, err := o.ExpandCampaign(context.Background(), testCampaign(model.UrgencyNormal), recipients)
	require.NoError(t, err)
	assert.Equal(t, 2, result.QueuedCount)
	assert.Equal(t, 1, result.EnqueueFailures)
}

func TestExpandCampaignHonorsSchedule(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := repository.NewMemoryQueueRepository(time.Minute, clock)
	o := NewOrchestrator(repo, generator.NewTemplateRenderer(), OrchestratorConfig{}, clock, zerolog.Nop())

	campaign := testCampaign(model.UrgencyUrgent)
	at := clock.Now().Add(2 * time.Hour)
	campaign.ScheduledAt = &at

	result, err := o.ExpandCampaign(context.Background(), campaign, testRecipients(1))
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.True(t, result.Items[0].ScheduledFor.Equal(at.UTC()))
	assert.Equal(t, 10, result.Items[0].Priority)

	// Entries scheduled in the future are not yet due.
	due, err := repo.ListDue(context.Background(), "pub-1", clock.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}
