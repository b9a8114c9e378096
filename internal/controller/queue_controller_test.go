package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharpsend/sendqueue/internal/generator"
	"github.com/sharpsend/sendqueue/internal/model"
	"github.com/sharpsend/sendqueue/internal/queue"
	"github.com/sharpsend/sendqueue/internal/repository"
	"github.com/sharpsend/sendqueue/internal/service"
	"github.com/sharpsend/sendqueue/internal/transport"
)

type testEnv struct {
	router     chi.Router
	clock      *clockwork.FakeClock
	queue      *repository.MemoryQueueRepository
	campaigns  *repository.MemoryCampaignRepository
	recipients *repository.MemoryRecipientRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	queueRepo := repository.NewMemoryQueueRepository(time.Minute, clock)
	campaignRepo := repository.NewMemoryCampaignRepository(clock)
	recipientRepo := repository.NewMemoryRecipientRepository()

	processor := service.NewProcessor(queueRepo, transport.NewMockAdapter(0), service.DefaultProcessorConfig(), clock, zerolog.Nop())
	orchestrator := service.NewOrchestrator(queueRepo, generator.NewTemplateRenderer(), service.OrchestratorConfig{}, clock, zerolog.Nop())

	campaignService := &service.CampaignService{
		Campaigns:    campaignRepo,
		Recipients:   recipientRepo,
		Queue:        queueRepo,
		Orchestrator: orchestrator,
		Renderer:     generator.NewTemplateRenderer(),
		Nudge:        queue.NopQueue{},
		Logger:       zerolog.Nop(),
	}

	qc := &QueueController{Queue: queueRepo, Processor: processor}
	cc := &CampaignController{CampaignService: campaignService}

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(RequirePublisher)
		r.Get("/queue", qc.ListQueue)
		r.Post("/queue", qc.EnqueueEntry)
		r.Post("/queue/process", qc.ProcessQueue)
		r.Get("/queue/{id}", qc.GetEntry)
		r.Patch("/queue/{id}/cancel", qc.CancelEntry)

		r.Post("/campaigns", cc.CreateCampaign)
		r.Get("/campaigns", cc.ListCampaigns)
		r.Get("/campaigns/{id}", cc.GetCampaign)
		r.Post("/campaigns/{id}/expand", cc.ExpandCampaign)
		r.Post("/campaigns/{id}/preview", cc.PreviewCampaign)
	})

	return &testEnv{
		router:     r,
		clock:      clock,
		queue:      queueRepo,
		campaigns:  campaignRepo,
		recipients: recipientRepo,
	}
}

func (e *testEnv) do(t *testing.T, method, path, publisherID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if publisherID != "" {
		req.Header.Set("X-Publisher-ID", publisherID)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) enqueue(t *testing.T, publisherID string) *model.QueueEntry {
	t.Helper()
	entry, err := e.queue.Enqueue(context.Background(), model.NewQueueEntry{
		PublisherID:    publisherID,
		RecipientEmail: "dev@example.com",
		Subject:        "Hello",
		Content:        "Body",
	})
	require.NoError(t, err)
	return entry
}

func TestMissingPublisherHeader(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/queue", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "X-Publisher-ID")
}

func TestEnqueueEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/queue", "pub-1", map[string]interface{}{
		"recipient_email": "dev@example.com",
		"subject":         "Hello",
		"content":         "Body",
		"priority":        5,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var entry model.QueueEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "pub-1", entry.PublisherID)
	assert.Equal(t, model.StatusPending, entry.Status)
	assert.Equal(t, 5, entry.Priority)
}

func TestEnqueueValidationFailures(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/queue", "pub-1", map[string]interface{}{
		"recipient_email": "not-an-address",
		"subject":         "Hello",
		"content":         "Body",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "recipient_email")

	past := env.clock.Now().Add(-time.Hour).Format(time.RFC3339)
	rec = env.do(t, http.MethodPost, "/queue", "pub-1", map[string]interface{}{
		"recipient_email": "dev@example.com",
		"subject":         "Hello",
		"content":         "Body",
		"scheduled_for":   past,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListQueueEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.enqueue(t, "pub-1")
	env.enqueue(t, "pub-2")

	rec := env.do(t, http.MethodGet, "/queue", "pub-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []model.QueueEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1, "listing is tenant scoped")
	assert.Equal(t, "pub-1", entries[0].PublisherID)

	rec = env.do(t, http.MethodGet, "/queue?status=sent", "pub-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Empty(t, entries)

	rec = env.do(t, http.MethodGet, "/queue?status=bogus", "pub-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/queue?limit=zero", "pub-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetEntryEndpoint(t *testing.T) {
	env := newTestEnv(t)
	entry := env.enqueue(t, "pub-1")

	rec := env.do(t, http.MethodGet, "/queue/"+entry.ID, "pub-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/queue/"+entry.ID, "pub-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "foreign entries look like they do not exist")

	rec = env.do(t, http.MethodGet, "/queue/no-such-id", "pub-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProcessEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.enqueue(t, "pub-1")
	env.enqueue(t, "pub-1")

	rec := env.do(t, http.MethodPost, "/queue/process", "pub-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary service.CycleSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 2, summary.Sent)
}

func TestCancelEndpoint(t *testing.T) {
	env := newTestEnv(t)
	entry := env.enqueue(t, "pub-1")

	rec := env.do(t, http.MethodPatch, "/queue/"+entry.ID+"/cancel", "pub-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var cancelled model.QueueEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cancelled))
	assert.Equal(t, model.StatusCancelled, cancelled.Status)

	// Terminal entries conflict on a second cancel.
	rec = env.do(t, http.MethodPatch, "/queue/"+entry.ID+"/cancel", "pub-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPatch, "/queue/no-such-id/cancel", "pub-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
