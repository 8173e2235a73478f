// Package repository provides ledger persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = domain.ErrNotFound
	ErrInvalidInput = domain.ErrInvalidInput
	ErrConflict     = domain.ErrConflict
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	if cfg.Driver == "memory" {
		return NewMemoryRepository(), nil
	}

	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Sellers
// =============================================================================

const sellerColumns = `s.id, s.name, s.contact_info, s.registration_date`

var sellerSortColumns = map[string]string{
	"id":               "s.id",
	"name":             "s.name",
	"contactInfo":      "s.contact_info",
	"registrationDate": "s.registration_date",
}

// CreateSeller stores a new seller.
func (r *SQLRepository) CreateSeller(ctx context.Context, seller *domain.Seller) error {
	if seller == nil || seller.ID == "" {
		return fmt.Errorf("%w: seller id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO sellers (id, name, contact_info, registration_date)
		VALUES (?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		seller.ID, seller.Name, seller.ContactInfo, seller.RegistrationDate.UTC(),
	)
	return err
}

// GetSeller retrieves a seller by ID.
func (r *SQLRepository) GetSeller(ctx context.Context, sellerID string) (*domain.Seller, error) {
	query := `SELECT ` + sellerColumns + ` FROM sellers s WHERE s.id = ?`

	seller, err := scanSeller(r.db.QueryRowContext(ctx, r.rebind(query), sellerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return seller, nil
}

// UpdateSeller overwrites the mutable fields of an existing seller.
func (r *SQLRepository) UpdateSeller(ctx context.Context, seller *domain.Seller) error {
	query := `UPDATE sellers SET name = ?, contact_info = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), seller.Name, seller.ContactInfo, seller.ID)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSellers returns a page of all sellers.
func (r *SQLRepository) ListSellers(ctx context.Context, page domain.PageRequest) (*domain.Page[domain.Seller], error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sellers`).Scan(&total); err != nil {
		return nil, err
	}

	query := `SELECT ` + sellerColumns + ` FROM sellers s` +
		orderBy(page.Sort, sellerSortColumns, "s.id") +
		` LIMIT ? OFFSET ?`

	sellers, err := r.querySellers(ctx, query, page.Size, page.Offset())
	if err != nil {
		return nil, err
	}
	return domain.NewPage(sellers, page, total), nil
}

// DeleteSeller removes a seller that has no transactions.
func (r *SQLRepository) DeleteSeller(ctx context.Context, sellerID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var owned int64
	if err := tx.QueryRowContext(ctx, r.rebind(`SELECT COUNT(*) FROM transactions WHERE seller_id = ?`), sellerID).Scan(&owned); err != nil {
		return err
	}
	if owned > 0 {
		return fmt.Errorf("%w: seller %s still has %d transactions", ErrConflict, sellerID, owned)
	}

	result, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM sellers WHERE id = ?`), sellerID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

func (r *SQLRepository) querySellers(ctx context.Context, query string, args ...any) ([]domain.Seller, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sellers []domain.Seller
	for rows.Next() {
		seller, err := scanSeller(rows)
		if err != nil {
			return nil, err
		}
		sellers = append(sellers, *seller)
	}
	return sellers, rows.Err()
}

// =============================================================================
// Transactions
// =============================================================================

const transactionColumns = `t.id, t.seller_id, t.amount, t.payment_type, t.transaction_date`

var transactionSortColumns = map[string]string{
	"id":              "t.id",
	"amount":          "t.amount",
	"paymentType":     "t.payment_type",
	"transactionDate": "t.transaction_date",
}

// SaveTransaction stores a transaction.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil || tx.ID == "" || tx.SellerID == "" {
		return fmt.Errorf("%w: transaction id and seller id are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (id, seller_id, amount, payment_type, transaction_date)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.SellerID, tx.Amount, string(tx.PaymentType), tx.TransactionDate.UTC(),
	)
	return err
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions t WHERE t.id = ?`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ListTransactionsBySeller returns a page of one seller's transactions.
func (r *SQLRepository) ListTransactionsBySeller(ctx context.Context, sellerID string, page domain.PageRequest) (*domain.Page[domain.Transaction], error) {
	var total int64
	countQuery := `SELECT COUNT(*) FROM transactions WHERE seller_id = ?`
	if err := r.db.QueryRowContext(ctx, r.rebind(countQuery), sellerID).Scan(&total); err != nil {
		return nil, err
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions t WHERE t.seller_id = ?` +
		orderBy(page.Sort, transactionSortColumns, "t.transaction_date") +
		` LIMIT ? OFFSET ?`

	txs, err := r.queryTransactions(ctx, query, sellerID, page.Size, page.Offset())
	if err != nil {
		return nil, err
	}

	content := make([]domain.Transaction, len(txs))
	for i, tx := range txs {
		content[i] = *tx
	}
	return domain.NewPage(content, page, total), nil
}

func (r *SQLRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// =============================================================================
// Helpers
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSeller(row rowScanner) (*domain.Seller, error) {
	var s domain.Seller
	if err := row.Scan(&s.ID, &s.Name, &s.ContactInfo, &s.RegistrationDate); err != nil {
		return nil, err
	}
	s.RegistrationDate = s.RegistrationDate.UTC()
	return &s, nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var paymentType string
	if err := row.Scan(&tx.ID, &tx.SellerID, &tx.Amount, &paymentType, &tx.TransactionDate); err != nil {
		return nil, err
	}
	tx.PaymentType = domain.PaymentType(paymentType)
	tx.TransactionDate = tx.TransactionDate.UTC()
	return &tx, nil
}

// orderBy renders an ORDER BY clause from whitelisted columns. The
// tiebreak column keeps page boundaries stable.
func orderBy(sort []domain.SortOrder, columns map[string]string, tiebreak string) string {
	parts := make([]string, 0, len(sort)+2)
	seen := make(map[string]bool)
	for _, o := range sort {
		col, ok := columns[o.Field]
		if !ok || seen[col] {
			continue
		}
		seen[col] = true
		dir := "ASC"
		if o.Descending {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir)
	}
	for _, col := range []string{tiebreak, columns["id"]} {
		if col != "" && !seen[col] {
			seen[col] = true
			parts = append(parts, col+" ASC")
		}
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
