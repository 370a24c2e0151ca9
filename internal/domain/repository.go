package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// TransactionRepository defines the interface for ledger persistence operations
type TransactionRepository interface {
	// Create persists a new, already validated record
	Create(ctx context.Context, record *TransactionRecord) error

	// List retrieves records ordered by timestamp descending.
	// Records sharing a timestamp are ordered newest insertion first.
	// limit and offset are used for pagination
	List(ctx context.Context, limit, offset int) ([]*TransactionRecord, error)

	// Sum returns the exact sum of all amounts, zero when empty
	Sum(ctx context.Context) (decimal.Decimal, error)

	// Count returns the total number of records
	Count(ctx context.Context) (int, error)
}

// RateFetcher performs a single round-trip to an external price source
type RateFetcher interface {
	// Fetch returns a positive BTC/USD rate or a *FetchError
	Fetch(ctx context.Context) (decimal.Decimal, error)
}

// RateCache is a durable single-slot store for the last known price
type RateCache interface {
	// Load returns nil without error when nothing was ever stored
	Load(ctx context.Context) (*PriceSample, error)

	// Store replaces the slot atomically
	Store(ctx context.Context, sample PriceSample) error
}

// Event names reported through an Observer
const (
	EventRateUpdate           = "rate_update"
	EventRateFetchFailed      = "rate_fetch_failed"
	EventRateCacheWriteFailed = "rate_cache_write_failed"
	EventTransactionAdded     = "transaction_added"
)

// Observer receives named events with string parameters.
// Implementations must return promptly.
type Observer interface {
	Notify(name string, params map[string]string)
}

// ObserverFunc adapts a plain function to an Observer
type ObserverFunc func(name string, params map[string]string)

// Notify implements Observer
func (f ObserverFunc) Notify(name string, params map[string]string) {
	f(name, params)
}

// NopObserver discards every event
var NopObserver Observer = ObserverFunc(func(string, map[string]string) {})
