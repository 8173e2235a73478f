package analysis

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

const isoLayout = "2006-01-02T15:04:05"

func iso(t time.Time) string { return t.Format(isoLayout) }

// seedLedger creates seller A (100 at now-2d, 200 at now-2h) and
// seller B (150 at now-3d).
func seedLedger(t *testing.T) *repository.MemoryRepository {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewMemoryRepository()

	for _, s := range []domain.Seller{
		{ID: "A", Name: "Alpha", ContactInfo: "alpha@example.com", RegistrationDate: now.Add(-30 * 24 * time.Hour)},
		{ID: "B", Name: "Beta", ContactInfo: "beta@example.com", RegistrationDate: now.Add(-30 * 24 * time.Hour)},
	} {
		require.NoError(t, repo.CreateSeller(ctx, &s))
	}

	for _, tx := range []domain.Transaction{
		{ID: "a1", SellerID: "A", Amount: decimal.NewFromInt(100), PaymentType: domain.PaymentCard, TransactionDate: now.Add(-48 * time.Hour)},
		{ID: "a2", SellerID: "A", Amount: decimal.NewFromInt(200), PaymentType: domain.PaymentCash, TransactionDate: now.Add(-2 * time.Hour)},
		{ID: "b1", SellerID: "B", Amount: decimal.NewFromInt(150), PaymentType: domain.PaymentCard, TransactionDate: now.Add(-72 * time.Hour)},
	} {
		require.NoError(t, repo.SaveTransaction(ctx, &tx))
	}
	return repo
}

func sellerIDs(page *domain.Page[domain.Seller]) []string {
	ids := make([]string, 0, len(page.Content))
	for _, s := range page.Content {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestMostProductiveSeller(t *testing.T) {
	c := NewCoordinator(seedLedger(t))
	ctx := context.Background()
	start, end := iso(now.Add(-96*time.Hour)), iso(now)

	t.Run("largest sum wins", func(t *testing.T) {
		seller, err := c.MostProductiveSeller(ctx, start, end)
		require.NoError(t, err)
		assert.Equal(t, "A", seller.ID)
	})

	t.Run("range excluding A's large sale", func(t *testing.T) {
		seller, err := c.MostProductiveSeller(ctx, iso(now.Add(-96*time.Hour)), iso(now.Add(-24*time.Hour)))
		require.NoError(t, err)
		assert.Equal(t, "B", seller.ID)
	})

	t.Run("bounds are inclusive", func(t *testing.T) {
		at := iso(now.Add(-72 * time.Hour))
		seller, err := c.MostProductiveSeller(ctx, at, at)
		require.NoError(t, err)
		assert.Equal(t, "B", seller.ID)
	})

	t.Run("offset timestamps are accepted", func(t *testing.T) {
		seller, err := c.MostProductiveSeller(ctx, now.Add(-96*time.Hour).Format(time.RFC3339), now.In(time.FixedZone("X", 3*3600)).Format(time.RFC3339))
		require.NoError(t, err)
		assert.Equal(t, "A", seller.ID)
	})

	t.Run("empty range is not found", func(t *testing.T) {
		_, err := c.MostProductiveSeller(ctx, iso(now.Add(24*time.Hour)), iso(now.Add(48*time.Hour)))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("start after end", func(t *testing.T) {
		_, err := c.MostProductiveSeller(ctx, end, start)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("unparseable timestamp", func(t *testing.T) {
		_, err := c.MostProductiveSeller(ctx, "yesterday", end)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestSellersBelowThreshold(t *testing.T) {
	c := NewCoordinator(seedLedger(t))
	ctx := context.Background()
	start, end := iso(now.Add(-96*time.Hour)), iso(now)
	page := domain.PageRequest{Page: 0, Size: 10}

	tests := []struct {
		name      string
		threshold float64
		want      []string
	}{
		{name: "only B below 250", threshold: 250, want: []string{"B"}},
		{name: "nobody below 50", threshold: 50, want: []string{}},
		{name: "threshold is strict", threshold: 150, want: []string{}},
		{name: "both below 1000", threshold: 1000, want: []string{"A", "B"}},
		{name: "zero threshold", threshold: 0, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := c.SellersBelowThreshold(ctx, start, end, tt.threshold, page)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sellerIDs(result))
			assert.Equal(t, int64(len(tt.want)), result.TotalElements)
		})
	}

	t.Run("inactive sellers are not eligible", func(t *testing.T) {
		// B has nothing in the last two days, so only A is considered.
		result, err := c.SellersBelowThreshold(ctx, iso(now.Add(-50*time.Hour)), end, 1e9, page)
		require.NoError(t, err)
		assert.Equal(t, []string{"A"}, sellerIDs(result))
	})

	t.Run("pagination reports totals", func(t *testing.T) {
		result, err := c.SellersBelowThreshold(ctx, start, end, 1000, domain.PageRequest{Page: 1, Size: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"B"}, sellerIDs(result))
		assert.Equal(t, int64(2), result.TotalElements)
		assert.Equal(t, int64(2), result.TotalPages)
	})

	t.Run("sort by name descending", func(t *testing.T) {
		req := domain.PageRequest{Page: 0, Size: 10, Sort: []domain.SortOrder{{Field: "name", Descending: true}}}
		result, err := c.SellersBelowThreshold(ctx, start, end, 1000, req)
		require.NoError(t, err)
		assert.Equal(t, []string{"B", "A"}, sellerIDs(result))
	})

	invalid := []struct {
		name      string
		threshold float64
		page      domain.PageRequest
		start     string
	}{
		{name: "negative threshold", threshold: -1, page: page, start: start},
		{name: "NaN threshold", threshold: math.NaN(), page: page, start: start},
		{name: "infinite threshold", threshold: math.Inf(1), page: page, start: start},
		{name: "negative page", threshold: 10, page: domain.PageRequest{Page: -1, Size: 10}, start: start},
		{name: "zero size", threshold: 10, page: domain.PageRequest{Page: 0, Size: 0}, start: start},
		{name: "unknown sort field", threshold: 10, page: domain.PageRequest{Size: 10, Sort: []domain.SortOrder{{Field: "password"}}}, start: start},
		{name: "start after end", threshold: 10, page: page, start: iso(now.Add(time.Hour))},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.SellersBelowThreshold(ctx, tt.start, end, tt.threshold, tt.page)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestBestPeriodForSeller(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	day := 24 * time.Hour

	require.NoError(t, repo.CreateSeller(ctx, &domain.Seller{ID: "S", Name: "Seller", RegistrationDate: now}))
	require.NoError(t, repo.CreateSeller(ctx, &domain.Seller{ID: "idle", Name: "Idle", RegistrationDate: now}))
	for i, off := range []time.Duration{5 * day, 0, day} {
		require.NoError(t, repo.SaveTransaction(ctx, &domain.Transaction{
			ID:              string(rune('x' + i)),
			SellerID:        "S",
			Amount:          decimal.NewFromInt(10),
			PaymentType:     domain.PaymentCash,
			TransactionDate: now.Add(off),
		}))
	}

	c := NewCoordinator(repo)

	t.Run("dense pair wins", func(t *testing.T) {
		p, err := c.BestPeriodForSeller(ctx, 3, "S")
		require.NoError(t, err)
		assert.Equal(t, now, p.PeriodStart)
		assert.Equal(t, now.Add(day), p.PeriodEnd)
		assert.Equal(t, 2, p.TransactionCount)
	})

	t.Run("zero days keeps the first transaction", func(t *testing.T) {
		p, err := c.BestPeriodForSeller(ctx, 0, "S")
		require.NoError(t, err)
		assert.Equal(t, now, p.PeriodStart)
		assert.Equal(t, now, p.PeriodEnd)
		assert.Equal(t, 1, p.TransactionCount)
	})

	t.Run("huge duration spans everything", func(t *testing.T) {
		p, err := c.BestPeriodForSeller(ctx, math.MaxInt64, "S")
		require.NoError(t, err)
		assert.Equal(t, 3, p.TransactionCount)
		assert.Equal(t, now.Add(5*day), p.PeriodEnd)
	})

	t.Run("unknown seller", func(t *testing.T) {
		_, err := c.BestPeriodForSeller(ctx, 3, "ghost")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("seller without transactions", func(t *testing.T) {
		_, err := c.BestPeriodForSeller(ctx, 3, "idle")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Contains(t, err.Error(), "no transactions")
	})

	t.Run("negative duration", func(t *testing.T) {
		_, err := c.BestPeriodForSeller(ctx, -1, "S")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("blank seller id", func(t *testing.T) {
		_, err := c.BestPeriodForSeller(ctx, 1, "  ")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

// failingStore fails every call, optionally after resolving the seller.
type failingStore struct {
	err          error
	sellerExists bool
	txCalls      int
}

func (f *failingStore) GetSeller(ctx context.Context, id string) (*domain.Seller, error) {
	if f.sellerExists {
		return &domain.Seller{ID: id}, nil
	}
	return nil, f.err
}

func (f *failingStore) TransactionsForSeller(ctx context.Context, id string) ([]*domain.Transaction, error) {
	f.txCalls++
	return nil, f.err
}

func (f *failingStore) MostProductiveSeller(ctx context.Context, start, end time.Time) (*domain.Seller, error) {
	return nil, f.err
}

func (f *failingStore) SellersBelowThreshold(ctx context.Context, start, end time.Time, threshold decimal.Decimal, page domain.PageRequest) (*domain.Page[domain.Seller], error) {
	return nil, f.err
}

func TestDependencyFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")
	start, end := iso(now.Add(-time.Hour)), iso(now)

	t.Run("aggregations name the failed operation", func(t *testing.T) {
		c := NewCoordinator(&failingStore{err: boom})

		_, err := c.MostProductiveSeller(ctx, start, end)
		require.ErrorIs(t, err, domain.ErrDependencyFailure)
		assert.ErrorIs(t, err, boom)
		var depErr *domain.DependencyError
		require.ErrorAs(t, err, &depErr)
		assert.Equal(t, "mostProductiveSeller", depErr.Op)

		_, err = c.SellersBelowThreshold(ctx, start, end, 10, domain.PageRequest{Size: 5})
		require.ErrorAs(t, err, &depErr)
		assert.Equal(t, "sellersBelowThreshold", depErr.Op)
	})

	t.Run("seller lookup fails before transactions are fetched", func(t *testing.T) {
		store := &failingStore{err: boom}
		c := NewCoordinator(store)

		_, err := c.BestPeriodForSeller(ctx, 1, "S")
		var depErr *domain.DependencyError
		require.ErrorAs(t, err, &depErr)
		assert.Equal(t, "getSeller", depErr.Op)
		assert.Zero(t, store.txCalls)
	})

	t.Run("missing seller skips the transaction fetch", func(t *testing.T) {
		store := &failingStore{err: domain.ErrNotFound}
		c := NewCoordinator(store)

		_, err := c.BestPeriodForSeller(ctx, 1, "S")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Zero(t, store.txCalls)
	})

	t.Run("transaction fetch failure", func(t *testing.T) {
		c := NewCoordinator(&failingStore{err: boom, sellerExists: true})

		_, err := c.BestPeriodForSeller(ctx, 1, "S")
		var depErr *domain.DependencyError
		require.ErrorAs(t, err, &depErr)
		assert.Equal(t, "transactionsForSeller", depErr.Op)
	})
}

type recordedCall struct {
	op  string
	err error
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (r *fakeRecorder) RecordAnalysis(ctx context.Context, op string, d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{op: op, err: err})
}

func TestCoordinatorRecordsOperations(t *testing.T) {
	rec := &fakeRecorder{}
	c := NewCoordinator(seedLedger(t), WithRecorder(rec))
	ctx := context.Background()

	_, err := c.MostProductiveSeller(ctx, iso(now.Add(-96*time.Hour)), iso(now))
	require.NoError(t, err)
	_, err = c.BestPeriodForSeller(ctx, -5, "A")
	require.Error(t, err)

	require.Len(t, rec.calls, 2)
	assert.Equal(t, OpMostProductiveSeller, rec.calls[0].op)
	assert.NoError(t, rec.calls[0].err)
	assert.Equal(t, OpBestPeriodForSeller, rec.calls[1].op)
	assert.ErrorIs(t, rec.calls[1].err, domain.ErrInvalidInput)
}

func TestCoordinatorConcurrentUse(t *testing.T) {
	c := NewCoordinator(seedLedger(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seller, err := c.MostProductiveSeller(ctx, iso(now.Add(-96*time.Hour)), iso(now))
			if err != nil {
				errs <- err
				return
			}
			if seller.ID != "A" {
				errs <- errors.New("unexpected seller " + seller.ID)
			}
			if _, err := c.BestPeriodForSeller(ctx, 1, "A"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
