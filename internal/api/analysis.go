package api

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// MostProductiveSeller handles GET /api/v1/seller/most-productive.
func (h *Handler) MostProductiveSeller(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	seller, err := h.analyzer.MostProductiveSeller(r.Context(), q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, seller)
}

// SellersBelowThreshold handles GET /api/v1/seller/below-threshold.
func (h *Handler) SellersBelowThreshold(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	raw, err := requiredParam(r, "threshold")
	if err != nil {
		writeError(w, r, err)
		return
	}
	threshold, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		writeError(w, r, fmt.Errorf("%w: threshold must be a number", domain.ErrInvalidInput))
		return
	}
	page, err := pageRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	sellers, err := h.analyzer.SellersBelowThreshold(r.Context(), q.Get("startDate"), q.Get("endDate"), threshold, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sellers)
}

// BestPeriod handles GET /api/v1/seller/best-period.
func (h *Handler) BestPeriod(w http.ResponseWriter, r *http.Request) {
	if _, err := requiredParam(r, "durationInDays"); err != nil {
		writeError(w, r, err)
		return
	}
	days, err := int64Param(r, "durationInDays", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	period, err := h.analyzer.BestPeriodForSeller(r.Context(), days, r.URL.Query().Get("sellerId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, period)
}

// ============================================================================
// ASYNC JOBS
// ============================================================================

// AnalysisJobRequest is the request body for POST /api/v1/analysis.
type AnalysisJobRequest struct {
	Kind string `json:"kind" validate:"required,oneof=mostProductiveSeller sellersBelowThreshold bestPeriod"`

	StartDate string  `json:"startDate,omitempty"`
	EndDate   string  `json:"endDate,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Page      int64   `json:"page,omitempty"`
	Size      int64   `json:"size,omitempty"`

	SellerID       string `json:"sellerId,omitempty"`
	DurationInDays int64  `json:"durationInDays,omitempty"`
}

// SubmitAnalysis handles POST /api/v1/analysis. The job runs on whichever
// worker consumes analysis.requested; its outcome is read back through
// GetAnalysis.
func (h *Handler) SubmitAnalysis(w http.ResponseWriter, r *http.Request) {
	var req AnalysisJobRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	job := domain.AnalysisRequest{
		JobID:          uuid.New().String(),
		Kind:           req.Kind,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		Threshold:      req.Threshold,
		Page:           req.Page,
		Size:           req.Size,
		SellerID:       req.SellerID,
		DurationInDays: req.DurationInDays,
	}
	payload, err := json.Marshal(job)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Pending must land before the worker can store the final result.
	if err := h.jobs.MarkPending(r.Context(), job.JobID, job.Kind); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.bus.Publish(r.Context(), domain.TopicAnalysisRequested, payload); err != nil {
		writeError(w, r, domain.NewDependencyError("publishAnalysisRequest", err))
		return
	}

	w.Header().Set("Location", "/api/v1/analysis/"+job.JobID)
	writeJSON(w, http.StatusAccepted, domain.AnalysisResult{
		JobID:  job.JobID,
		Kind:   job.Kind,
		Status: domain.AnalysisPending,
	})
}

// GetAnalysis handles GET /api/v1/analysis/{jobId}.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	result, err := h.jobs.Get(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
