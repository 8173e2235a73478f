package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Sortable fields per collection.
var (
	SellerSortFields      = []string{"id", "name", "contactInfo", "registrationDate"}
	TransactionSortFields = []string{"id", "amount", "paymentType", "transactionDate"}
)

// LedgerStore is the read contract the analysis layer depends on.
// Time ranges are closed intervals [start, end].
type LedgerStore interface {
	// GetSeller returns ErrNotFound when the seller does not exist.
	GetSeller(ctx context.Context, sellerID string) (*Seller, error)

	// TransactionsForSeller returns every transaction of the seller ordered
	// by ascending transaction date.
	TransactionsForSeller(ctx context.Context, sellerID string) ([]*Transaction, error)

	// MostProductiveSeller returns the seller with the greatest transaction
	// sum in range, or ErrNotFound when no transaction falls in range.
	MostProductiveSeller(ctx context.Context, start, end time.Time) (*Seller, error)

	// SellersBelowThreshold pages sellers having at least one transaction in
	// range whose sum in range is strictly less than threshold.
	SellersBelowThreshold(ctx context.Context, start, end time.Time, threshold decimal.Decimal, page PageRequest) (*Page[Seller], error)
}

// Repository is the full persistence contract of the ledger.
type Repository interface {
	LedgerStore

	// Sellers
	CreateSeller(ctx context.Context, seller *Seller) error
	UpdateSeller(ctx context.Context, seller *Seller) error
	ListSellers(ctx context.Context, page PageRequest) (*Page[Seller], error)
	// DeleteSeller returns ErrConflict while the seller still owns transactions.
	DeleteSeller(ctx context.Context, sellerID string) error

	// Transactions
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	ListTransactionsBySeller(ctx context.Context, sellerID string, page PageRequest) (*Page[Transaction], error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the storage driver: "sqlite", "postgres" or "memory"
	Driver string `envconfig:"driver"`

	// SQLite specific
	SQLitePath string `envconfig:"sqlite_path"`

	// PostgreSQL specific. PostgresURL takes precedence over the fields.
	PostgresURL      string `envconfig:"postgres_url"`
	PostgresHost     string `envconfig:"postgres_host"`
	PostgresPort     int    `envconfig:"postgres_port"`
	PostgresUser     string `envconfig:"postgres_user"`
	PostgresPassword string `envconfig:"postgres_password"`
	PostgresDB       string `envconfig:"postgres_db"`
	PostgresSSLMode  string `envconfig:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `envconfig:"max_open_conns"`
	MaxIdleConns    int           `envconfig:"max_idle_conns"`
	ConnMaxLifetime time.Duration `envconfig:"conn_max_lifetime"`
}
