package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/ledger"
)

// CreateSellerRequest is the request body for POST /api/v1/seller.
type CreateSellerRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=255"`
	ContactInfo string `json:"contactInfo" validate:"required,max=1000"`
}

// UpdateSellerRequest is the request body for PUT /api/v1/seller. Omitted
// fields keep their stored value.
type UpdateSellerRequest struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name,omitempty" validate:"omitempty,min=2,max=255"`
	ContactInfo string `json:"contactInfo,omitempty" validate:"omitempty,max=1000"`
}

// CreateSeller handles POST /api/v1/seller.
func (h *Handler) CreateSeller(w http.ResponseWriter, r *http.Request) {
	var req CreateSellerRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	seller, err := h.ledger.CreateSeller(r.Context(), ledger.CreateSellerInput{
		Name:        req.Name,
		ContactInfo: req.ContactInfo,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, seller)
}

// UpdateSeller handles PUT /api/v1/seller.
func (h *Handler) UpdateSeller(w http.ResponseWriter, r *http.Request) {
	var req UpdateSellerRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	seller, err := h.ledger.UpdateSeller(r.Context(), ledger.UpdateSellerInput{
		ID:          req.ID,
		Name:        req.Name,
		ContactInfo: req.ContactInfo,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, seller)
}

// GetSeller handles GET /api/v1/seller/{id}.
func (h *Handler) GetSeller(w http.ResponseWriter, r *http.Request) {
	seller, err := h.ledger.GetSeller(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, seller)
}

// ListSellers handles GET /api/v1/seller.
func (h *Handler) ListSellers(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	sellers, err := h.ledger.ListSellers(r.Context(), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sellers)
}

// DeleteSeller handles DELETE /api/v1/seller/{id}.
func (h *Handler) DeleteSeller(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.DeleteSeller(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
