package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/window"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Operation names used for spans, metrics and dependency errors.
const (
	OpMostProductiveSeller  = "mostProductiveSeller"
	OpSellersBelowThreshold = "sellersBelowThreshold"
	OpBestPeriodForSeller   = "bestPeriodForSeller"
)

var tracer = otel.Tracer("kestrel-analysis")

// Recorder observes completed analysis operations.
type Recorder interface {
	RecordAnalysis(ctx context.Context, op string, duration time.Duration, err error)
}

// Coordinator validates caller input and dispatches to the aggregation
// engine or the window analyzer. Every call is computed fresh.
type Coordinator struct {
	store    domain.LedgerStore
	engine   *AggregationEngine
	recorder Recorder
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRecorder reports every operation to r.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) {
		c.recorder = r
	}
}

// NewCoordinator creates a coordinator over store.
func NewCoordinator(store domain.LedgerStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  store,
		engine: NewAggregationEngine(store),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MostProductiveSeller parses the ISO-8601 bounds and returns the seller
// with the largest transaction total in the closed range.
func (c *Coordinator) MostProductiveSeller(ctx context.Context, startStr, endStr string) (_ *domain.Seller, err error) {
	ctx, finish := c.begin(ctx, OpMostProductiveSeller,
		attribute.String("range.start", startStr),
		attribute.String("range.end", endStr),
	)
	defer func() { finish(err) }()

	start, end, err := parseRange(startStr, endStr)
	if err != nil {
		return nil, err
	}
	return c.engine.MostProductiveSeller(ctx, start, end)
}

// SellersBelowThreshold parses the bounds, validates threshold and paging
// and returns the sellers whose total in range is below threshold.
func (c *Coordinator) SellersBelowThreshold(ctx context.Context, startStr, endStr string, threshold float64, page domain.PageRequest) (_ *domain.Page[domain.Seller], err error) {
	ctx, finish := c.begin(ctx, OpSellersBelowThreshold,
		attribute.String("range.start", startStr),
		attribute.String("range.end", endStr),
		attribute.Float64("threshold", threshold),
		attribute.Int64("page", page.Page),
		attribute.Int64("size", page.Size),
	)
	defer func() { finish(err) }()

	start, end, err := parseRange(startStr, endStr)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return nil, fmt.Errorf("%w: threshold must be a finite number", domain.ErrInvalidInput)
	}
	if threshold < 0 {
		return nil, fmt.Errorf("%w: threshold must be >= 0", domain.ErrInvalidInput)
	}
	if err := page.Validate(); err != nil {
		return nil, err
	}
	if err := page.ValidateSort(domain.SellerSortFields...); err != nil {
		return nil, err
	}

	return c.engine.SellersBelowThreshold(ctx, start, end, decimal.NewFromFloat(threshold), page)
}

// BestPeriodForSeller finds the earliest window of at most durationDays
// days holding the largest number of the seller's transactions.
func (c *Coordinator) BestPeriodForSeller(ctx context.Context, durationDays int64, sellerID string) (_ *domain.Period, err error) {
	ctx, finish := c.begin(ctx, OpBestPeriodForSeller,
		attribute.Int64("duration_days", durationDays),
		attribute.String("seller.id", sellerID),
	)
	defer func() { finish(err) }()

	if durationDays < 0 {
		return nil, fmt.Errorf("%w: durationInDays must be >= 0", domain.ErrInvalidInput)
	}
	sellerID = strings.TrimSpace(sellerID)
	if sellerID == "" {
		return nil, fmt.Errorf("%w: sellerId is required", domain.ErrInvalidInput)
	}

	if _, err := c.store.GetSeller(ctx, sellerID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: seller with id %s", domain.ErrNotFound, sellerID)
		}
		return nil, domain.NewDependencyError("getSeller", err)
	}

	txs, err := c.store.TransactionsForSeller(ctx, sellerID)
	if err != nil {
		return nil, domain.NewDependencyError("transactionsForSeller", err)
	}
	if len(txs) == 0 {
		return nil, fmt.Errorf("%w: no transactions found for seller with id %s", domain.ErrNotFound, sellerID)
	}

	best, err := window.Find(txs, window.Days(durationDays))
	if err != nil {
		return nil, err
	}

	slog.Debug("best period computed",
		"seller_id", sellerID,
		"duration_days", durationDays,
		"transaction_count", best.Count,
	)

	return best.Period(), nil
}

// begin starts a span for op and returns a func that ends it and reports
// the outcome to the recorder.
func (c *Coordinator) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "analysis."+op, trace.WithAttributes(attrs...))

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, domain.ErrorCode(err))
		}
		span.End()

		if c.recorder != nil {
			c.recorder.RecordAnalysis(ctx, op, time.Since(start), err)
		}
	}
}
