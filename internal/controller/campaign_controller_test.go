package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharpsend/sendqueue/internal/model"
)

func (e *testEnv) seedCampaign(t *testing.T, publisherID string) *model.Campaign {
	t.Helper()
	c := &model.Campaign{
		PublisherID:  publisherID,
		Name:         "Product Update",
		Subject:      "News for {name}",
		BaseTemplate: "Hi {name}, fresh updates inside.",
		Urgency:      model.UrgencyNormal,
	}
	require.NoError(t, e.campaigns.Create(context.Background(), c))
	return c
}

func (e *testEnv) seedRecipients(t *testing.T, publisherID string, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		r := &model.Recipient{
			PublisherID: publisherID,
			Email:       fmt.Sprintf("r%d@example.com", i),
			Name:        fmt.Sprintf("Reader %d", i),
			Segment:     "newsletter",
		}
		require.NoError(t, e.recipients.Create(context.Background(), r))
		ids[i] = r.ID
	}
	return ids
}

func TestCreateCampaignEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/campaigns", "pub-1", map[string]interface{}{
		"name":          "Launch Announcement",
		"subject":       "We launched, {name}",
		"base_template": "Hi {name}, it is live.",
		"urgency":       "high",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var campaign model.Campaign
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &campaign))
	assert.NotEmpty(t, campaign.ID)
	assert.Equal(t, "draft", campaign.Status)
	assert.Equal(t, "high", campaign.Urgency)

	rec = env.do(t, http.MethodPost, "/campaigns", "pub-1", map[string]interface{}{
		"name":         "Bad Schedule",
		"scheduled_at": "next tuesday",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/campaigns", "pub-1", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "name is required")
}

func TestListCampaignsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.seedCampaign(t, "pub-1")
	env.seedCampaign(t, "pub-2")

	rec := env.do(t, http.MethodGet, "/campaigns?page=1&page_size=10", "pub-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data       []model.Campaign `json:"data"`
		Pagination map[string]int   `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, 1, body.Pagination["total_count"])
	assert.Equal(t, 1, body.Pagination["page"])
}

func TestGetCampaignEndpoint(t *testing.T) {
	env := newTestEnv(t)
	campaign := env.seedCampaign(t, "pub-1")
	env.seedRecipients(t, "pub-1", 2)

	rec := env.do(t, http.MethodPost, "/campaigns/"+campaign.ID+"/expand", "pub-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/campaigns/"+campaign.ID, "pub-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var details struct {
		model.Campaign
		Stats map[string]int `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &details))
	assert.Equal(t, campaign.ID, details.ID)
	assert.Equal(t, 2, details.Stats["total"])
	assert.Equal(t, 2, details.Stats["pending"])

	rec = env.do(t, http.MethodGet, "/campaigns/"+campaign.ID, "pub-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExpandCampaignEndpoint(t *testing.T) {
	env := newTestEnv(t)
	campaign := env.seedCampaign(t, "pub-1")
	ids := env.seedRecipients(t, "pub-1", 3)

	rec := env.do(t, http.MethodPost, "/campaigns/"+campaign.ID+"/expand", "pub-1", map[string]interface{}{
		"recipient_ids": ids[:2],
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		QueuedCount    int `json:"queuedCount"`
		RenderFailures int `json:"renderFailures"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.QueuedCount)
	assert.Zero(t, result.RenderFailures)

	// Expansion flips the campaign into sending.
	got, err := env.campaigns.GetByID(context.Background(), "pub-1", campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, "sending", got.Status)

	entries, err := env.queue.ListByCampaign(context.Background(), "pub-1", campaign.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestExpandCampaignFailures(t *testing.T) {
	env := newTestEnv(t)
	campaign := env.seedCampaign(t, "pub-1")

	// No recipients at all.
	rec := env.do(t, http.MethodPost, "/campaigns/"+campaign.ID+"/expand", "pub-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/campaigns/no-such-id/expand", "pub-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Completed campaigns cannot be expanded again.
	require.NoError(t, env.campaigns.UpdateStatus(context.Background(), "pub-1", campaign.ID, "completed"))
	env.seedRecipients(t, "pub-1", 1)
	rec = env.do(t, http.MethodPost, "/campaigns/"+campaign.ID+"/expand", "pub-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPreviewCampaignEndpoint(t *testing.T) {
	env := newTestEnv(t)
	campaign := env.seedCampaign(t, "pub-1")
	ids := env.seedRecipients(t, "pub-1", 1)

	rec := env.do(t, http.MethodPost, "/campaigns/"+campaign.ID+"/preview", "pub-1", map[string]interface{}{
		"recipient_id": ids[0],
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "News for Reader 0", body["rendered_subject"])
	assert.Contains(t, body["rendered_content"], "Hi Reader 0")

	// Nothing was enqueued by the preview.
	entries, err := env.queue.ListByCampaign(context.Background(), "pub-1", campaign.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	rec = env.do(t, http.MethodPost, "/campaigns/"+campaign.ID+"/preview", "pub-1", map[string]interface{}{
		"recipient_id": "no-such-recipient",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
