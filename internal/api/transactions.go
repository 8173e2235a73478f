package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/ledger"
	"github.com/shopspring/decimal"
)

// TransactionRequest is the request body for POST /api/v1/transaction.
type TransactionRequest struct {
	SellerID    string           `json:"sellerId" validate:"required"`
	Amount      *decimal.Decimal `json:"amount" validate:"required"`
	PaymentType string           `json:"paymentType" validate:"required"`
}

// RecordTransaction handles POST /api/v1/transaction.
func (h *Handler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	tx, err := h.ledger.RecordTransaction(r.Context(), ledger.RecordTransactionInput{
		SellerID:    req.SellerID,
		Amount:      *req.Amount,
		PaymentType: req.PaymentType,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// GetTransaction handles GET /api/v1/transaction/{id}.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.ledger.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// ListTransactions handles GET /api/v1/transaction?sellerId=.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	sellerID, err := requiredParam(r, "sellerId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := pageRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	txs, err := h.ledger.ListTransactionsBySeller(r.Context(), sellerID, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}
