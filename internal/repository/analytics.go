package repository

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// TransactionsForSeller returns all transactions of a seller, oldest first.
func (r *SQLRepository) TransactionsForSeller(ctx context.Context, sellerID string) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions t
		WHERE t.seller_id = ?
		ORDER BY t.transaction_date ASC, t.id ASC`

	return r.queryTransactions(ctx, query, sellerID)
}

// Amounts are stored as NUMERIC(19, 4): amountUnits is one whole unit.
const (
	amountScale = 4
	amountUnits = 10000
)

// sumAmount is the per-seller total used for ranking and filtering.
// SQLite stores NUMERIC as REAL, so it sums whole 1/10000 units to stay
// exact; PostgreSQL sums NUMERIC natively.
func (r *SQLRepository) sumAmount() string {
	if r.driver == "postgres" {
		return "SUM(amount)"
	}
	return "SUM(CAST(ROUND(amount * " + strconv.Itoa(amountUnits) + ") AS INTEGER))"
}

// thresholdArg binds threshold on the same scale as sumAmount. The SQLite
// sum is a whole number of units, so total < threshold holds exactly when
// total < ceil(threshold in units).
func (r *SQLRepository) thresholdArg(threshold decimal.Decimal) any {
	if r.driver == "postgres" {
		return threshold.String()
	}
	units := threshold.Shift(amountScale).Ceil()
	if units.GreaterThan(maxUnits) {
		return int64(math.MaxInt64)
	}
	return units.IntPart()
}

var maxUnits = decimal.NewFromInt(math.MaxInt64)

// MostProductiveSeller returns the seller with the largest total amount in
// [start, end]. Ties go to the smallest seller id.
func (r *SQLRepository) MostProductiveSeller(ctx context.Context, start, end time.Time) (*domain.Seller, error) {
	query := `
		SELECT ` + sellerColumns + `
		FROM sellers s
		JOIN (
			SELECT seller_id, ` + r.sumAmount() + ` AS total
			FROM transactions
			WHERE transaction_date >= ? AND transaction_date <= ?
			GROUP BY seller_id
		) agg ON agg.seller_id = s.id
		ORDER BY agg.total DESC, s.id ASC
		LIMIT 1
	`

	seller, err := scanSeller(r.db.QueryRowContext(ctx, r.rebind(query), start.UTC(), end.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return seller, nil
}

// SellersBelowThreshold pages the sellers active in [start, end] whose
// total amount in that range is strictly below threshold.
func (r *SQLRepository) SellersBelowThreshold(ctx context.Context, start, end time.Time, threshold decimal.Decimal, page domain.PageRequest) (*domain.Page[domain.Seller], error) {
	below := `
		SELECT seller_id
		FROM transactions
		WHERE transaction_date >= ? AND transaction_date <= ?
		GROUP BY seller_id
		HAVING ` + r.sumAmount() + ` < ?
	`
	limit := r.thresholdArg(threshold)
	start, end = start.UTC(), end.UTC()

	var total int64
	countQuery := `SELECT COUNT(*) FROM (` + below + `) b`
	if err := r.db.QueryRowContext(ctx, r.rebind(countQuery), start, end, limit).Scan(&total); err != nil {
		return nil, err
	}
	if total == 0 {
		return domain.NewPage[domain.Seller](nil, page, 0), nil
	}

	query := `SELECT ` + sellerColumns + `
		FROM sellers s
		JOIN (` + below + `) b ON b.seller_id = s.id` +
		orderBy(page.Sort, sellerSortColumns, "s.id") +
		` LIMIT ? OFFSET ?`

	sellers, err := r.querySellers(ctx, query, start, end, limit, page.Size, page.Offset())
	if err != nil {
		return nil, err
	}
	return domain.NewPage(sellers, page, total), nil
}
