package controller

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sharpsend/sendqueue/internal/metrics"
	"github.com/sharpsend/sendqueue/internal/model"
	"github.com/sharpsend/sendqueue/internal/repository"
	"github.com/sharpsend/sendqueue/internal/service"
)

type QueueController struct {
	Queue     repository.QueueRepositoryInterface
	Processor *service.Processor
}

// ListQueue handles GET /queue?status=&limit=&campaign_id=.
func (c *QueueController) ListQueue(w http.ResponseWriter, r *http.Request) {
	pub := publisherID(r)

	if campaignID := r.URL.Query().Get("campaign_id"); campaignID != "" {
		entries, err := c.Queue.ListByCampaign(r.Context(), pub, campaignID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
		return
	}

	status := model.EntryStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		http.Error(w, "invalid status filter", http.StatusBadRequest)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	if limit > 500 {
		limit = 500
	}

	entries, err := c.Queue.List(r.Context(), pub, status, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// EnqueueEntry handles POST /queue.
func (c *QueueController) EnqueueEntry(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CampaignID     string            `json:"campaign_id"`
		RecipientEmail string            `json:"recipient_email"`
		RecipientName  string            `json:"recipient_name"`
		Subject        string            `json:"subject"`
		Content        string            `json:"content"`
		Priority       int               `json:"priority"`
		ScheduledFor   *time.Time        `json:"scheduled_for"`
		Metadata       map[string]string `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}

	in := model.NewQueueEntry{
		PublisherID:    publisherID(r),
		CampaignID:     body.CampaignID,
		RecipientEmail: body.RecipientEmail,
		RecipientName:  body.RecipientName,
		Subject:        body.Subject,
		Content:        body.Content,
		Priority:       body.Priority,
		Metadata:       body.Metadata,
	}
	if body.ScheduledFor != nil {
		in.ScheduledFor = *body.ScheduledFor
	}

	entry, err := c.Queue.Enqueue(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.IncEnqueued()
	writeJSON(w, http.StatusCreated, entry)
}

// GetEntry handles GET /queue/{id}.
func (c *QueueController) GetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := c.Queue.GetByID(r.Context(), publisherID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// ProcessQueue handles POST /queue/process, running one processing cycle for
// the caller's tenant. Entry-level failures only show up in the summary.
func (c *QueueController) ProcessQueue(w http.ResponseWriter, r *http.Request) {
	summary, err := c.Processor.RunCycle(r.Context(), publisherID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// CancelEntry handles PATCH /queue/{id}/cancel. Only pending entries can be
// cancelled; anything else is a conflict.
func (c *QueueController) CancelEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := c.Queue.Cancel(r.Context(), publisherID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
