// internal/handler/campaign_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/crm-pipeline/internal/errors"
	"github.com/unclebandit/crm-pipeline/internal/model"
	"github.com/unclebandit/crm-pipeline/internal/service"
)

// CampaignHandler serves campaign history reads.
type CampaignHandler struct {
	Service *service.CampaignService
	Log     *zap.Logger
}

func NewCampaignHandler(svc *service.CampaignService, log *zap.Logger) *CampaignHandler {
	return &CampaignHandler{Service: svc, Log: log}
}

func pageParams(r *http.Request) (int, int) {
	page := 1
	pageSize := 20

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}
	if pageSizeStr := r.URL.Query().Get("page_size"); pageSizeStr != "" {
		if ps, err := strconv.Atoi(pageSizeStr); err == nil && ps > 0 {
			pageSize = ps
		}
	}
	return page, pageSize
}

// ListCampaignsHandler returns a paginated list of campaigns, newest first
func (h *CampaignHandler) ListCampaignsHandler(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)

	status := r.URL.Query().Get("status")
	switch model.CampaignStatus(status) {
	case "", model.CampaignPending, model.CampaignCompleted, model.CampaignFailed:
	default:
		http.Error(w, "invalid status filter", http.StatusBadRequest)
		return
	}

	campaigns, pagination, err := h.Service.ListCampaigns(r.Context(), page, pageSize, status)
	if err != nil {
		h.Log.Error("list campaigns", zap.Error(err))
		http.Error(w, "failed to fetch campaigns", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// GetCampaignHandlerWithStats returns one campaign with its log counts per status
func (h *CampaignHandler) GetCampaignHandlerWithStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	details, err := h.Service.GetCampaignDetailsWithStats(r.Context(), id)
	if err != nil {
		if appErrors.IsNotFound(err) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.Log.Error("get campaign", zap.String("campaign_id", id), zap.Error(err))
		http.Error(w, "failed to fetch campaign", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(details)
}

// ListCampaignLogsHandler returns one page of a campaign's communication logs
func (h *CampaignHandler) ListCampaignLogsHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	page, pageSize := pageParams(r)

	logs, pagination, err := h.Service.ListCampaignLogs(r.Context(), id, page, pageSize)
	if err != nil {
		if appErrors.IsNotFound(err) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.Log.Error("list campaign logs", zap.String("campaign_id", id), zap.Error(err))
		http.Error(w, "failed to fetch communication logs", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data":       logs,
		"pagination": pagination,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
