package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/matviysuk/btcwallet-backend/internal/domain"
	"github.com/shopspring/decimal"
)

// transactionRepository implements domain.TransactionRepository
type transactionRepository struct {
	db *DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *DB) domain.TransactionRepository {
	return &transactionRepository{db: db}
}

// Create inserts a single ledger record
func (r *transactionRepository) Create(ctx context.Context, record *domain.TransactionRecord) error {
	query := `
		INSERT INTO ledger_transactions (id, amount, category, timestamp)
		VALUES ($1, $2, $3, $4)
	`

	var category interface{}
	if record.Category != nil {
		category = string(*record.Category)
	}

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.Amount.String(),
		category,
		record.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	return nil
}

// List retrieves a window of records, newest first.
// seq breaks ties between records that share a timestamp.
func (r *transactionRepository) List(ctx context.Context, limit, offset int) ([]*domain.TransactionRecord, error) {
	query := `
		SELECT id, amount::text, category, timestamp
		FROM ledger_transactions
		ORDER BY timestamp DESC, seq DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	records := make([]*domain.TransactionRecord, 0, limit)
	for rows.Next() {
		var record domain.TransactionRecord
		var amountStr string
		var category sql.NullString

		if err := rows.Scan(&record.ID, &amountStr, &category, &record.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		// Parse amount (NUMERIC)
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount: %w", err)
		}
		record.Amount = amount
		record.Timestamp = record.Timestamp.UTC()

		if category.Valid {
			c := domain.Category(category.String)
			record.Category = &c
		}

		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return records, nil
}

// Sum returns the exact total of all stored amounts
func (r *transactionRepository) Sum(ctx context.Context) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0)::text FROM ledger_transactions`

	var sumStr string
	if err := r.db.QueryRowContext(ctx, query).Scan(&sumStr); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum transactions: %w", err)
	}

	sum, err := decimal.NewFromString(sumStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse sum: %w", err)
	}

	return sum, nil
}

// Count returns the number of stored records
func (r *transactionRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_transactions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}
