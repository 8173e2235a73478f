package repository

// Schema definitions for the Kestrel ledger.
// Compatible with both SQLite and PostgreSQL.

const schemaSellers = `
CREATE TABLE IF NOT EXISTS sellers (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    contact_info TEXT NOT NULL DEFAULT '',
    registration_date TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sellers_name ON sellers(name);
`

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    seller_id TEXT NOT NULL REFERENCES sellers(id),
    amount NUMERIC(19, 4) NOT NULL,
    payment_type TEXT NOT NULL,
    transaction_date TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_seller_date ON transactions(seller_id, transaction_date);
CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(transaction_date);
`

// AllSchemas returns all schema definitions in dependency order.
func AllSchemas() []string {
	return []string{
		schemaSellers,
		schemaTransactions,
	}
}
