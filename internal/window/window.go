// Package window finds the densest run of transactions inside a time span.
package window

import (
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// MaxSpan is the largest representable span. Longer spans are clamped to it.
const MaxSpan = time.Duration(math.MaxInt64)

// Window is a contiguous run of transactions, bounded by the first and last
// transaction dates in the run.
type Window struct {
	Start time.Time
	End   time.Time
	Count int
}

// Period converts the window into the domain result type.
func (w Window) Period() *domain.Period {
	return &domain.Period{
		PeriodStart:      w.Start,
		PeriodEnd:        w.End,
		TransactionCount: w.Count,
	}
}

// Days converts a day count into a span, clamping instead of overflowing.
func Days(days int64) time.Duration {
	const day = 24 * time.Hour
	if days > int64(MaxSpan/day) {
		return MaxSpan
	}
	return time.Duration(days) * day
}

// Find returns the earliest window holding the largest number of
// transactions whose dates differ by at most maxSpan.
//
// txs must be ordered by ascending transaction date. The scan keeps a left
// edge that only moves forward, so it runs in linear time. A window replaces
// the current best only on a strictly larger count.
func Find(txs []*domain.Transaction, maxSpan time.Duration) (Window, error) {
	if len(txs) == 0 {
		return Window{}, fmt.Errorf("%w: no transactions to analyse", domain.ErrNotFound)
	}
	if maxSpan < 0 {
		return Window{}, fmt.Errorf("%w: span must be >= 0", domain.ErrInvalidInput)
	}
	for i := 1; i < len(txs); i++ {
		if txs[i].TransactionDate.Before(txs[i-1].TransactionDate) {
			return Window{}, fmt.Errorf("%w: transactions are not ordered by date", domain.ErrInvalidInput)
		}
	}

	best := Window{Start: txs[0].TransactionDate, End: txs[0].TransactionDate, Count: 1}

	left := 0
	for right := 1; right < len(txs); right++ {
		for txs[right].TransactionDate.Sub(txs[left].TransactionDate) > maxSpan {
			left++
		}
		if n := right - left + 1; n > best.Count {
			best = Window{
				Start: txs[left].TransactionDate,
				End:   txs[right].TransactionDate,
				Count: n,
			}
		}
	}

	return best, nil
}
