package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ledger"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// Analyzer is the synchronous analysis surface.
type Analyzer interface {
	MostProductiveSeller(ctx context.Context, startStr, endStr string) (*domain.Seller, error)
	SellersBelowThreshold(ctx context.Context, startStr, endStr string, threshold float64, page domain.PageRequest) (*domain.Page[domain.Seller], error)
	BestPeriodForSeller(ctx context.Context, durationDays int64, sellerID string) (*domain.Period, error)
}

// JobStore tracks async analysis jobs.
type JobStore interface {
	MarkPending(ctx context.Context, jobID, kind string) error
	Get(ctx context.Context, jobID string) (*domain.AnalysisResult, error)
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	ledger   *ledger.Service
	analyzer Analyzer
	jobs     JobStore
	policy   *rules.Policy
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies, version string) *Handler {
	return &Handler{
		repo:     deps.Repo,
		cache:    deps.Cache,
		bus:      deps.Bus,
		ledger:   deps.Ledger,
		analyzer: deps.Analyzer,
		jobs:     deps.Jobs,
		policy:   deps.Policy,
		version:  version,
	}
}

// ============================================================================
// HEALTH
// ============================================================================

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if len(h.checkDependencies(r.Context())) > 0 {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns 503 until the store, cache and bus all answer a ping.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	failed := h.checkDependencies(r.Context())
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ready":  false,
			"failed": failed,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ready": true,
	})
}

func (h *Handler) checkDependencies(ctx context.Context) map[string]string {
	failed := make(map[string]string)
	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			slog.Warn("dependency ping failed", "dependency", name, "error", err)
			failed[name] = err.Error()
		}
	}
	if h.repo != nil {
		check("repository", h.repo.Ping)
	}
	if h.cache != nil {
		check("cache", h.cache.Ping)
	}
	if h.bus != nil {
		check("eventBus", h.bus.Ping)
	}
	return failed
}

// ============================================================================
// POLICY
// ============================================================================

// PolicyRequest is the request body for PUT /api/v1/policy.
type PolicyRequest struct {
	Expression string `json:"expression" validate:"required,max=4096"`
}

// GetPolicy returns the active transaction admission expression.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"expression": h.policy.Expression(),
	})
}

// ReloadPolicy compiles and activates a new admission expression. The
// previous expression stays active when compilation fails.
func (h *Handler) ReloadPolicy(w http.ResponseWriter, r *http.Request) {
	var req PolicyRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.policy.Reload(req.Expression); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return
	}

	slog.Info("transaction policy reloaded", "expression", h.policy.Expression())
	writeJSON(w, http.StatusOK, map[string]string{
		"expression": h.policy.Expression(),
	})
}

// ============================================================================
// QUERY PARAMETERS
// ============================================================================

// pageRequest reads page, size and sort. Missing values use page 0 and
// domain.DefaultPageSize.
func pageRequest(r *http.Request) (domain.PageRequest, error) {
	q := r.URL.Query()
	page := domain.PageRequest{Size: domain.DefaultPageSize}

	var err error
	if page.Page, err = int64Param(r, "page", 0); err != nil {
		return page, err
	}
	if page.Size, err = int64Param(r, "size", domain.DefaultPageSize); err != nil {
		return page, err
	}
	if page.Sort, err = domain.ParseSort(q["sort"]); err != nil {
		return page, err
	}
	return page, nil
}

func int64Param(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidInput, name)
	}
	return v, nil
}

func requiredParam(r *http.Request, name string) (string, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", domain.ErrInvalidInput, name)
	}
	return v, nil
}
