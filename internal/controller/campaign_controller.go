// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the service error taxonomy onto HTTP statuses: validation
// is the caller's fault, not-found is a stale id, anything else is ours. The
// async dispatch path never reaches here.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case appErrors.IsValidation(err):
		status = http.StatusBadRequest
	case appErrors.IsNotFound(err):
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func campaignID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		Template    string `json:"template"`
		SegmentRule string `json:"segment_rule"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(body.Name, body.Template, body.SegmentRule)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"campaign_id":  campaign.ID,
		"name":         campaign.Name,
		"template":     campaign.Template,
		"segment_rule": campaign.SegmentRule,
		"status":       campaign.Status,
		"created_at":   campaign.CreatedAt,
	})
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.CampaignService.ListCampaigns(page, pageSize, status)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid campaign id"})
		return
	}

	campaign, err := c.CampaignService.GetCampaign(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) Preview(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid campaign id"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	result, err := c.CampaignService.Preview(id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (c *CampaignController) SendCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid campaign id"})
		return
	}

	result, err := c.CampaignService.Send(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (c *CampaignController) Stats(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid campaign id"})
		return
	}

	stats, err := c.CampaignService.ComputeStats(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (c *CampaignController) Messages(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid campaign id"})
		return
	}

	messages, err := c.CampaignService.Messages(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (c *CampaignController) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
