package controller

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sharpsend/sendqueue/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name         string  `json:"name"`
		Subject      string  `json:"subject"`
		BaseTemplate string  `json:"base_template"`
		Urgency      string  `json:"urgency"`
		ScheduledAt  *string `json:"scheduled_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(r.Context(), publisherID(r), service.CreateCampaignInput{
		Name:         body.Name,
		Subject:      body.Subject,
		BaseTemplate: body.BaseTemplate,
		Urgency:      body.Urgency,
		ScheduledAt:  body.ScheduledAt,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), publisherID(r), page, pageSize, status)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

// GetCampaign returns one campaign together with its queue stats.
func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	details, err := c.CampaignService.GetCampaignDetails(r.Context(), publisherID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// ExpandCampaign handles POST /campaigns/{id}/expand. A 502 means the
// generator failed and not even the fallback template produced a sendable
// entry.
func (c *CampaignController) ExpandCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RecipientIDs []string `json:"recipient_ids"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	result, err := c.CampaignService.ExpandCampaign(r.Context(), publisherID(r), chi.URLParam(r, "id"), body.RecipientIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	if result.QueuedCount == 0 && result.RenderFailures > 0 {
		writeJSON(w, http.StatusBadGateway, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// PreviewCampaign renders the campaign for one recipient without enqueueing.
func (c *CampaignController) PreviewCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RecipientID      string  `json:"recipient_id"`
		OverrideTemplate *string `json:"override_template"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}

	rendered, err := c.CampaignService.Preview(r.Context(), publisherID(r), chi.URLParam(r, "id"), body.RecipientID, body.OverrideTemplate)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rendered_subject": rendered.Subject,
		"rendered_content": rendered.Content,
		"recipient_id":     body.RecipientID,
	})
}
