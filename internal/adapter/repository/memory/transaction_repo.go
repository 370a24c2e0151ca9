package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/matviysuk/btcwallet-backend/internal/domain"
	"github.com/shopspring/decimal"
)

// ErrDuplicateID is returned when a record with the same ID already exists
var ErrDuplicateID = errors.New("transaction already exists")

// TransactionRepository keeps ledger records in process memory.
// records is kept sorted newest first so List is a plain slice window.
type TransactionRepository struct {
	mu      sync.RWMutex
	records []*domain.TransactionRecord
	ids     map[string]struct{}
	sum     decimal.Decimal
}

var _ domain.TransactionRepository = (*TransactionRepository)(nil)

// NewTransactionRepository creates an empty in-memory repository
func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{
		records: make([]*domain.TransactionRecord, 0),
		ids:     make(map[string]struct{}),
		sum:     decimal.Zero,
	}
}

// Create inserts the record ahead of every record with an equal or older timestamp
func (r *TransactionRepository) Create(_ context.Context, record *domain.TransactionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := record.ID.String()
	if _, exists := r.ids[key]; exists {
		return ErrDuplicateID
	}

	ts := record.Timestamp
	i := sort.Search(len(r.records), func(i int) bool {
		return !r.records[i].Timestamp.After(ts)
	})

	r.records = append(r.records, nil)
	copy(r.records[i+1:], r.records[i:])
	r.records[i] = record.Clone()

	r.ids[key] = struct{}{}
	r.sum = r.sum.Add(record.Amount)
	return nil
}

// List returns copies of the records in [offset, offset+limit)
func (r *TransactionRepository) List(_ context.Context, limit, offset int) ([]*domain.TransactionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if offset >= len(r.records) || limit <= 0 {
		return []*domain.TransactionRecord{}, nil
	}

	end := offset + limit
	if end > len(r.records) || end < offset {
		end = len(r.records)
	}

	out := make([]*domain.TransactionRecord, 0, end-offset)
	for _, rec := range r.records[offset:end] {
		out = append(out, rec.Clone())
	}
	return out, nil
}

// Sum returns the running total of all amounts
func (r *TransactionRepository) Sum(_ context.Context) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sum, nil
}

// Count returns the number of stored records
func (r *TransactionRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records), nil
}
