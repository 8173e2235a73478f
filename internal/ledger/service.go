// Package ledger implements seller and transaction bookkeeping on top of
// the repository, publishing a ledger event for every change.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
)

// Field limits for sellers.
const (
	MinNameLength        = 2
	MaxNameLength        = 255
	MinContactInfoLength = 1
	MaxContactInfoLength = 1000
)

// amountScale is the number of decimal places the store keeps.
const amountScale = 4

// CreateSellerInput is the payload of CreateSeller.
type CreateSellerInput struct {
	Name        string
	ContactInfo string
}

// UpdateSellerInput is the payload of UpdateSeller. Blank fields are left
// unchanged.
type UpdateSellerInput struct {
	ID          string
	Name        string
	ContactInfo string
}

// RecordTransactionInput is the payload of RecordTransaction.
type RecordTransactionInput struct {
	SellerID    string
	Amount      decimal.Decimal
	PaymentType string
}

// Service owns all writes to the ledger.
type Service struct {
	repo   domain.Repository
	bus    domain.EventBus
	policy *rules.Policy
	now    func() time.Time
}

// NewService creates a ledger service. bus may be nil, in which case no
// events are published. A nil policy admits every positive amount.
func NewService(repo domain.Repository, bus domain.EventBus, policy *rules.Policy) (*Service, error) {
	if policy == nil {
		var err error
		if policy, err = rules.NewPolicy(rules.DefaultExpression); err != nil {
			return nil, err
		}
	}
	return &Service{
		repo:   repo,
		bus:    bus,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// ============================================================================
// Sellers
// ============================================================================

// CreateSeller registers a new seller.
func (s *Service) CreateSeller(ctx context.Context, in CreateSellerInput) (*domain.Seller, error) {
	name := strings.TrimSpace(in.Name)
	contact := strings.TrimSpace(in.ContactInfo)
	if err := checkLength("name", name, MinNameLength, MaxNameLength); err != nil {
		return nil, err
	}
	if err := checkLength("contactInfo", contact, MinContactInfoLength, MaxContactInfoLength); err != nil {
		return nil, err
	}

	seller := &domain.Seller{
		ID:               uuid.New().String(),
		Name:             name,
		ContactInfo:      contact,
		RegistrationDate: s.now(),
	}
	if err := s.repo.CreateSeller(ctx, seller); err != nil {
		return nil, storeError("createSeller", err)
	}

	slog.Info("seller created",
		"seller_id", seller.ID,
		"trace_id", traceID(ctx),
	)
	s.publish(ctx, domain.TopicSellerCreated, domain.SellerEvent{
		SellerID: seller.ID,
		Name:     seller.Name,
		TraceID:  traceID(ctx),
	})
	return seller, nil
}

// UpdateSeller applies the non-blank fields of in to an existing seller.
func (s *Service) UpdateSeller(ctx context.Context, in UpdateSellerInput) (*domain.Seller, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", domain.ErrInvalidInput)
	}

	seller, err := s.GetSeller(ctx, id)
	if err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(in.Name); name != "" {
		if err := checkLength("name", name, MinNameLength, MaxNameLength); err != nil {
			return nil, err
		}
		seller.Name = name
	}
	if contact := strings.TrimSpace(in.ContactInfo); contact != "" {
		if err := checkLength("contactInfo", contact, MinContactInfoLength, MaxContactInfoLength); err != nil {
			return nil, err
		}
		seller.ContactInfo = contact
	}

	if err := s.repo.UpdateSeller(ctx, seller); err != nil {
		return nil, storeError("updateSeller", err)
	}

	s.publish(ctx, domain.TopicSellerUpdated, domain.SellerEvent{
		SellerID: seller.ID,
		Name:     seller.Name,
		TraceID:  traceID(ctx),
	})
	return seller, nil
}

// GetSeller returns one seller.
func (s *Service) GetSeller(ctx context.Context, id string) (*domain.Seller, error) {
	seller, err := s.repo.GetSeller(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: seller with id %s", domain.ErrNotFound, id)
		}
		return nil, domain.NewDependencyError("getSeller", err)
	}
	return seller, nil
}

// ListSellers pages through all sellers.
func (s *Service) ListSellers(ctx context.Context, page domain.PageRequest) (*domain.Page[domain.Seller], error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	if err := page.ValidateSort(domain.SellerSortFields...); err != nil {
		return nil, err
	}

	result, err := s.repo.ListSellers(ctx, page)
	if err != nil {
		return nil, domain.NewDependencyError("listSellers", err)
	}
	return result, nil
}

// DeleteSeller removes a seller that owns no transactions.
func (s *Service) DeleteSeller(ctx context.Context, id string) error {
	if err := s.repo.DeleteSeller(ctx, id); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return fmt.Errorf("%w: seller with id %s", domain.ErrNotFound, id)
		case errors.Is(err, domain.ErrConflict):
			return err
		default:
			return domain.NewDependencyError("deleteSeller", err)
		}
	}

	slog.Info("seller deleted",
		"seller_id", id,
		"trace_id", traceID(ctx),
	)
	s.publish(ctx, domain.TopicSellerDeleted, domain.SellerEvent{
		SellerID: id,
		TraceID:  traceID(ctx),
	})
	return nil
}

// ============================================================================
// Transactions
// ============================================================================

// RecordTransaction stores a sale for an existing seller once the
// admission policy accepts it.
func (s *Service) RecordTransaction(ctx context.Context, in RecordTransactionInput) (*domain.Transaction, error) {
	sellerID := strings.TrimSpace(in.SellerID)
	if sellerID == "" {
		return nil, fmt.Errorf("%w: sellerId is required", domain.ErrInvalidInput)
	}
	paymentType, err := domain.ParsePaymentType(in.PaymentType)
	if err != nil {
		return nil, err
	}
	if in.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must be >= 0", domain.ErrInvalidInput)
	}
	if !in.Amount.Equal(in.Amount.Round(amountScale)) {
		return nil, fmt.Errorf("%w: amount has more than %d decimal places", domain.ErrInvalidInput, amountScale)
	}

	if _, err := s.GetSeller(ctx, sellerID); err != nil {
		return nil, err
	}

	allowed, err := s.policy.Allow(rules.Input{
		SellerID:    sellerID,
		Amount:      in.Amount.InexactFloat64(),
		PaymentType: paymentType,
	})
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, fmt.Errorf("%w: transaction rejected by policy %q", domain.ErrInvalidInput, s.policy.Expression())
	}

	tx := &domain.Transaction{
		ID:              uuid.New().String(),
		SellerID:        sellerID,
		Amount:          in.Amount,
		PaymentType:     paymentType,
		TransactionDate: s.now(),
	}
	if err := s.repo.SaveTransaction(ctx, tx); err != nil {
		return nil, storeError("saveTransaction", err)
	}

	slog.Debug("transaction recorded",
		"tx_id", tx.ID,
		"seller_id", tx.SellerID,
		"amount", tx.Amount.String(),
		"payment_type", tx.PaymentType,
	)
	s.publish(ctx, domain.TopicTransactionRecorded, domain.TransactionEvent{
		TransactionID:   tx.ID,
		SellerID:        tx.SellerID,
		Amount:          tx.Amount,
		PaymentType:     tx.PaymentType,
		TransactionDate: tx.TransactionDate,
		TraceID:         traceID(ctx),
	})
	return tx, nil
}

// GetTransaction returns one transaction.
func (s *Service) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	tx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: transaction with id %s", domain.ErrNotFound, id)
		}
		return nil, domain.NewDependencyError("getTransaction", err)
	}
	return tx, nil
}

// ListTransactionsBySeller pages through the transactions of a seller.
func (s *Service) ListTransactionsBySeller(ctx context.Context, sellerID string, page domain.PageRequest) (*domain.Page[domain.Transaction], error) {
	sellerID = strings.TrimSpace(sellerID)
	if sellerID == "" {
		return nil, fmt.Errorf("%w: sellerId is required", domain.ErrInvalidInput)
	}
	if err := page.Validate(); err != nil {
		return nil, err
	}
	if err := page.ValidateSort(domain.TransactionSortFields...); err != nil {
		return nil, err
	}

	result, err := s.repo.ListTransactionsBySeller(ctx, sellerID, page)
	if err != nil {
		return nil, domain.NewDependencyError("listTransactionsBySeller", err)
	}
	return result, nil
}

// publish sends an event. Failures are logged; the ledger write has
// already succeeded.
func (s *Service) publish(ctx context.Context, topic string, event any) {
	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to encode event", "topic", topic, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, topic, payload); err != nil {
		slog.Error("failed to publish event",
			"topic", topic,
			"error", err,
		)
	}
}

func checkLength(field, value string, minLen, maxLen int) error {
	n := utf8.RuneCountInString(value)
	if n < minLen || n > maxLen {
		return fmt.Errorf("%w: %s must be between %d and %d characters", domain.ErrInvalidInput, field, minLen, maxLen)
	}
	return nil
}

// storeError keeps caller-facing kinds and reports everything else as a
// dependency failure.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInvalidInput):
		return err
	default:
		return domain.NewDependencyError(op, err)
	}
}

func traceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
