package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// MemoryRepository implements domain.Repository in process memory.
// Aggregations group in Go with the same semantics as the SQL queries.
type MemoryRepository struct {
	mu           sync.RWMutex
	sellers      map[string]domain.Seller
	transactions map[string]domain.Transaction
	bySeller     map[string][]string
	closed       bool
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sellers:      make(map[string]domain.Seller),
		transactions: make(map[string]domain.Transaction),
		bySeller:     make(map[string][]string),
	}
}

// CreateSeller stores a new seller.
func (m *MemoryRepository) CreateSeller(ctx context.Context, seller *domain.Seller) error {
	if seller == nil || seller.ID == "" {
		return fmt.Errorf("%w: seller id is required", ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sellers[seller.ID]; ok {
		return fmt.Errorf("%w: seller %s already exists", ErrConflict, seller.ID)
	}
	s := *seller
	s.RegistrationDate = s.RegistrationDate.UTC()
	m.sellers[s.ID] = s
	return nil
}

// GetSeller retrieves a seller by ID.
func (m *MemoryRepository) GetSeller(ctx context.Context, sellerID string) (*domain.Seller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sellers[sellerID]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

// UpdateSeller overwrites the mutable fields of an existing seller.
func (m *MemoryRepository) UpdateSeller(ctx context.Context, seller *domain.Seller) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sellers[seller.ID]
	if !ok {
		return ErrNotFound
	}
	s.Name = seller.Name
	s.ContactInfo = seller.ContactInfo
	m.sellers[s.ID] = s
	return nil
}

// ListSellers returns a page of all sellers.
func (m *MemoryRepository) ListSellers(ctx context.Context, page domain.PageRequest) (*domain.Page[domain.Seller], error) {
	m.mu.RLock()
	sellers := make([]domain.Seller, 0, len(m.sellers))
	for _, s := range m.sellers {
		sellers = append(sellers, s)
	}
	m.mu.RUnlock()

	sortSellers(sellers, page.Sort)
	return domain.NewPage(paginate(sellers, page), page, int64(len(sellers))), nil
}

// DeleteSeller removes a seller that has no transactions.
func (m *MemoryRepository) DeleteSeller(ctx context.Context, sellerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sellers[sellerID]; !ok {
		return ErrNotFound
	}
	if owned := len(m.bySeller[sellerID]); owned > 0 {
		return fmt.Errorf("%w: seller %s still has %d transactions", ErrConflict, sellerID, owned)
	}
	delete(m.sellers, sellerID)
	return nil
}

// SaveTransaction stores a transaction for an existing seller.
func (m *MemoryRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil || tx.ID == "" || tx.SellerID == "" {
		return fmt.Errorf("%w: transaction id and seller id are required", ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sellers[tx.SellerID]; !ok {
		return fmt.Errorf("%w: seller %s does not exist", ErrConflict, tx.SellerID)
	}
	if _, ok := m.transactions[tx.ID]; ok {
		return fmt.Errorf("%w: transaction %s already exists", ErrConflict, tx.ID)
	}
	t := *tx
	t.TransactionDate = t.TransactionDate.UTC()
	m.transactions[t.ID] = t
	m.bySeller[t.SellerID] = append(m.bySeller[t.SellerID], t.ID)
	return nil
}

// GetTransaction retrieves a transaction by ID.
func (m *MemoryRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.transactions[txID]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

// ListTransactionsBySeller returns a page of one seller's transactions.
func (m *MemoryRepository) ListTransactionsBySeller(ctx context.Context, sellerID string, page domain.PageRequest) (*domain.Page[domain.Transaction], error) {
	txs := m.sellerTransactions(sellerID)
	sortTransactions(txs, page.Sort)
	return domain.NewPage(paginate(txs, page), page, int64(len(txs))), nil
}

// TransactionsForSeller returns all transactions of a seller, oldest first.
func (m *MemoryRepository) TransactionsForSeller(ctx context.Context, sellerID string) ([]*domain.Transaction, error) {
	txs := m.sellerTransactions(sellerID)
	sortTransactions(txs, nil)

	out := make([]*domain.Transaction, len(txs))
	for i := range txs {
		out[i] = &txs[i]
	}
	return out, nil
}

// MostProductiveSeller returns the seller with the largest total amount in
// [start, end]. Ties go to the smallest seller id.
func (m *MemoryRepository) MostProductiveSeller(ctx context.Context, start, end time.Time) (*domain.Seller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totals := m.totalsInRange(start, end)

	var bestID string
	var best decimal.Decimal
	for id, total := range totals {
		if bestID == "" || total.GreaterThan(best) || (total.Equal(best) && id < bestID) {
			bestID, best = id, total
		}
	}
	if bestID == "" {
		return nil, ErrNotFound
	}

	s := m.sellers[bestID]
	return &s, nil
}

// SellersBelowThreshold pages the sellers active in [start, end] whose
// total amount in that range is strictly below threshold.
func (m *MemoryRepository) SellersBelowThreshold(ctx context.Context, start, end time.Time, threshold decimal.Decimal, page domain.PageRequest) (*domain.Page[domain.Seller], error) {
	m.mu.RLock()
	totals := m.totalsInRange(start, end)
	var sellers []domain.Seller
	for id, total := range totals {
		if total.LessThan(threshold) {
			sellers = append(sellers, m.sellers[id])
		}
	}
	m.mu.RUnlock()

	sortSellers(sellers, page.Sort)
	return domain.NewPage(paginate(sellers, page), page, int64(len(sellers))), nil
}

// Ping reports whether the repository is still open.
func (m *MemoryRepository) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("repository is closed")
	}
	return nil
}

// Close drops all data.
func (m *MemoryRepository) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.sellers = make(map[string]domain.Seller)
	m.transactions = make(map[string]domain.Transaction)
	m.bySeller = make(map[string][]string)
	return nil
}

// totalsInRange sums amounts per seller over [start, end]. Caller holds mu.
func (m *MemoryRepository) totalsInRange(start, end time.Time) map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal)
	for _, t := range m.transactions {
		if t.TransactionDate.Before(start) || t.TransactionDate.After(end) {
			continue
		}
		totals[t.SellerID] = totals[t.SellerID].Add(t.Amount)
	}
	return totals
}

func (m *MemoryRepository) sellerTransactions(sellerID string) []domain.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.bySeller[sellerID]
	txs := make([]domain.Transaction, 0, len(ids))
	for _, id := range ids {
		txs = append(txs, m.transactions[id])
	}
	return txs
}

func paginate[T any](items []T, page domain.PageRequest) []T {
	offset := page.Offset()
	if offset >= int64(len(items)) {
		return nil
	}
	end := offset + page.Size
	if end > int64(len(items)) || end < 0 {
		end = int64(len(items))
	}
	return items[offset:end]
}

func sortSellers(sellers []domain.Seller, orders []domain.SortOrder) {
	slices.SortStableFunc(sellers, func(a, b domain.Seller) int {
		for _, o := range orders {
			var c int
			switch o.Field {
			case "name":
				c = cmp.Compare(a.Name, b.Name)
			case "contactInfo":
				c = cmp.Compare(a.ContactInfo, b.ContactInfo)
			case "registrationDate":
				c = a.RegistrationDate.Compare(b.RegistrationDate)
			case "id":
				c = cmp.Compare(a.ID, b.ID)
			}
			if o.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func sortTransactions(txs []domain.Transaction, orders []domain.SortOrder) {
	slices.SortStableFunc(txs, func(a, b domain.Transaction) int {
		for _, o := range orders {
			var c int
			switch o.Field {
			case "amount":
				c = a.Amount.Cmp(b.Amount)
			case "paymentType":
				c = cmp.Compare(a.PaymentType, b.PaymentType)
			case "transactionDate":
				c = a.TransactionDate.Compare(b.TransactionDate)
			case "id":
				c = cmp.Compare(a.ID, b.ID)
			}
			if o.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		if c := a.TransactionDate.Compare(b.TransactionDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
