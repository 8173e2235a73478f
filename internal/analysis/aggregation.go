// Package analysis answers the seller analytics questions over a ledger store.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// AggregationEngine runs range aggregations against a ledger store.
// It holds no state of its own and is safe for concurrent use.
type AggregationEngine struct {
	store domain.LedgerStore
}

// NewAggregationEngine creates an engine over store.
func NewAggregationEngine(store domain.LedgerStore) *AggregationEngine {
	return &AggregationEngine{store: store}
}

// MostProductiveSeller returns the seller whose transactions in [start, end]
// sum to the largest amount. Which seller wins a tie is not part of the
// contract; the bundled stores pick the smallest id.
func (e *AggregationEngine) MostProductiveSeller(ctx context.Context, start, end time.Time) (*domain.Seller, error) {
	if start.After(end) {
		return nil, fmt.Errorf("%w: start is after end", domain.ErrInvalidInput)
	}

	seller, err := e.store.MostProductiveSeller(ctx, start, end)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: there are no sellers with transactions in this period", domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.NewDependencyError("mostProductiveSeller", err)
	}
	return seller, nil
}

// SellersBelowThreshold pages the sellers with at least one transaction in
// [start, end] whose total in that range is strictly less than threshold.
// No match yields an empty page.
func (e *AggregationEngine) SellersBelowThreshold(ctx context.Context, start, end time.Time, threshold decimal.Decimal, page domain.PageRequest) (*domain.Page[domain.Seller], error) {
	if start.After(end) {
		return nil, fmt.Errorf("%w: start is after end", domain.ErrInvalidInput)
	}
	if threshold.IsNegative() {
		return nil, fmt.Errorf("%w: threshold must be >= 0", domain.ErrInvalidInput)
	}
	if err := page.Validate(); err != nil {
		return nil, err
	}

	result, err := e.store.SellersBelowThreshold(ctx, start, end, threshold, page)
	if err != nil {
		return nil, domain.NewDependencyError("sellersBelowThreshold", err)
	}
	if result == nil {
		result = domain.NewPage[domain.Seller](nil, page, 0)
	}
	return result, nil
}
