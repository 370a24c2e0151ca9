package ledger

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matviysuk/btcwallet-backend/internal/domain"
)

// DefaultPageSize is the window size used by FetchPage
const DefaultPageSize = 20

// Option configures a LedgerService
type Option func(*LedgerService)

// WithObserver reports transaction_added events to o
func WithObserver(o domain.Observer) Option {
	return func(s *LedgerService) { s.observer = o }
}

// WithClock overrides the time source used by SaveNow
func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

// WithIDGenerator overrides how record ids are generated
func WithIDGenerator(gen func() uuid.UUID) Option {
	return func(s *LedgerService) { s.newID = gen }
}

// LedgerService owns the validated write path and paginated reads of the ledger
type LedgerService struct {
	TransactionRepo domain.TransactionRepository

	pageSize int
	observer domain.Observer
	now      func() time.Time
	newID    func() uuid.UUID

	// writeMu serializes writes so every save lands as a whole
	writeMu sync.Mutex
}

// NewLedgerService creates a new LedgerService instance.
// pageSize must be strictly positive.
func NewLedgerService(transactionRepo domain.TransactionRepository, pageSize int, opts ...Option) (*LedgerService, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("%w: page size must be positive, got %d", domain.ErrInvalidConfig, pageSize)
	}

	s := &LedgerService{
		TransactionRepo: transactionRepo,
		pageSize:        pageSize,
		observer:        domain.NopObserver,
		now:             time.Now,
		newID:           uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// PageSize returns the configured window size
func (s *LedgerService) PageSize() int {
	return s.pageSize
}

// Save validates input and persists it as a new record stamped with timestamp
// Logic:
//  1. Validate the amount/category pair before touching storage
//  2. Build the record with a fresh id and a millisecond precision UTC timestamp
//  3. Persist under the write lock
//  4. Report transaction_added
func (s *LedgerService) Save(ctx context.Context, input domain.InputTransaction, timestamp time.Time) (*domain.TransactionRecord, error) {
	// 1. Validate
	if err := domain.ValidateTransaction(input.Amount, input.Category); err != nil {
		return nil, err
	}

	// 2. Build record
	record := &domain.TransactionRecord{
		ID:        s.newID(),
		Amount:    input.Amount,
		Timestamp: timestamp.UTC().Truncate(time.Millisecond),
	}
	if input.Category != nil {
		c := *input.Category
		record.Category = &c
	}

	// 3. Persist
	s.writeMu.Lock()
	err := s.TransactionRepo.Create(ctx, record)
	s.writeMu.Unlock()
	if err != nil {
		return nil, &domain.PersistenceError{Op: domain.PersistenceWrite, Err: err}
	}

	// 4. Notify
	params := map[string]string{
		"id":     record.ID.String(),
		"amount": record.Amount.String(),
		"type":   string(record.Type()),
	}
	if record.Category != nil {
		params["category"] = string(*record.Category)
	}
	s.observer.Notify(domain.EventTransactionAdded, params)

	return record, nil
}

// SaveNow saves input stamped with the current time
func (s *LedgerService) SaveNow(ctx context.Context, input domain.InputTransaction) (*domain.TransactionRecord, error) {
	return s.Save(ctx, input, s.now())
}

// FetchPage returns the records of window pageIndex, newest first.
// A page past the end of the ledger is empty, not an error.
func (s *LedgerService) FetchPage(ctx context.Context, pageIndex int) ([]*domain.TransactionRecord, error) {
	if pageIndex < 0 {
		return nil, domain.ErrInvalidPageIndex
	}
	if pageIndex > math.MaxInt/s.pageSize {
		return []*domain.TransactionRecord{}, nil
	}

	records, err := s.TransactionRepo.List(ctx, s.pageSize, pageIndex*s.pageSize)
	if err != nil {
		return nil, &domain.PersistenceError{Op: domain.PersistenceRead, Err: err}
	}
	if records == nil {
		records = []*domain.TransactionRecord{}
	}
	return records, nil
}

// FetchBalance returns the exact sum of every amount in the ledger
func (s *LedgerService) FetchBalance(ctx context.Context) (decimal.Decimal, error) {
	sum, err := s.TransactionRepo.Sum(ctx)
	if err != nil {
		return decimal.Zero, &domain.PersistenceError{Op: domain.PersistenceRead, Err: err}
	}
	return sum, nil
}

// Count returns the number of records in the ledger
func (s *LedgerService) Count(ctx context.Context) (int, error) {
	n, err := s.TransactionRepo.Count(ctx)
	if err != nil {
		return 0, &domain.PersistenceError{Op: domain.PersistenceRead, Err: err}
	}
	return n, nil
}
