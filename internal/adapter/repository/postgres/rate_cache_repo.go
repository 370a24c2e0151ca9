package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/matviysuk/btcwallet-backend/internal/domain"
	"github.com/shopspring/decimal"
)

// rateCache implements domain.RateCache on a single-row table
type rateCache struct {
	db *DB
}

// NewRateCache creates a Postgres backed rate cache
func NewRateCache(db *DB) domain.RateCache {
	return &rateCache{db: db}
}

// Load retrieves the last stored sample, nil when the slot is empty
func (c *rateCache) Load(ctx context.Context) (*domain.PriceSample, error) {
	query := `SELECT rate_usd::text, observed_at FROM rate_cache WHERE slot = 1`

	var sample domain.PriceSample
	var rateStr string

	err := c.db.QueryRowContext(ctx, query).Scan(&rateStr, &sample.ObservedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, &domain.CacheError{Op: domain.CacheRead, Err: fmt.Errorf("failed to load rate: %w", err)}
	}

	rate, err := decimal.NewFromString(rateStr)
	if err != nil {
		return nil, &domain.CacheError{Op: domain.CacheRead, Err: fmt.Errorf("failed to parse rate_usd: %w", err)}
	}
	sample.RateUSD = rate
	sample.ObservedAt = sample.ObservedAt.UTC()

	return &sample, nil
}

// Store overwrites the slot in a single statement
func (c *rateCache) Store(ctx context.Context, sample domain.PriceSample) error {
	query := `
		INSERT INTO rate_cache (slot, rate_usd, observed_at)
		VALUES (1, $1, $2)
		ON CONFLICT (slot) DO UPDATE
		SET rate_usd = EXCLUDED.rate_usd, observed_at = EXCLUDED.observed_at
	`

	if _, err := c.db.ExecContext(ctx, query, sample.RateUSD.String(), sample.ObservedAt.UTC()); err != nil {
		return &domain.CacheError{Op: domain.CacheWrite, Err: fmt.Errorf("failed to store rate: %w", err)}
	}
	return nil
}
