package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// NewDB creates a new database connection
// connectionString should be in the format: "host=localhost port=5432 user=postgres password=postgres dbname=btcwallet sslmode=disable"
func NewDB(ctx context.Context, connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// schema is applied on every start; every statement is idempotent
var schema = []string{
	`CREATE TABLE IF NOT EXISTS ledger_transactions (
		seq       BIGSERIAL PRIMARY KEY,
		id        UUID NOT NULL UNIQUE,
		amount    NUMERIC NOT NULL,
		category  TEXT,
		timestamp TIMESTAMPTZ NOT NULL,
		CONSTRAINT ledger_transactions_category_check CHECK (
			(amount < 0 AND category IS NOT NULL) OR (amount >= 0 AND category IS NULL)
		)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_transactions_order ON ledger_transactions (timestamp DESC, seq DESC)`,
	`CREATE TABLE IF NOT EXISTS rate_cache (
		slot        SMALLINT PRIMARY KEY CHECK (slot = 1),
		rate_usd    NUMERIC NOT NULL,
		observed_at TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates the ledger and rate cache tables if they do not exist
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
