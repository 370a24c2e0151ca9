package seeder

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/matviysuk/btcwallet-backend/internal/domain"
)

const (
	// DefaultCount is how many transactions a mock run inserts
	DefaultCount = 100

	satoshisPerBTC = 100_000_000
	seedWindow     = 7 * 24 * time.Hour
)

// TransactionSaver is the validated ledger write path
type TransactionSaver interface {
	Save(ctx context.Context, input domain.InputTransaction, timestamp time.Time) (*domain.TransactionRecord, error)
	Count(ctx context.Context) (int, error)
}

// SeedState records whether mock data was generated in this process.
// The zero value is ready to use; Reset returns it to the initial state.
type SeedState struct {
	mu   sync.Mutex
	done bool
}

// Done reports whether a seed run completed
func (s *SeedState) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Reset clears the completed flag
func (s *SeedState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = false
}

// Option configures a MockSeeder
type Option func(*MockSeeder)

// WithRand sets the random source
func WithRand(r *rand.Rand) Option {
	return func(s *MockSeeder) { s.rand = r }
}

// WithClock overrides the reference time of the seed window
func WithClock(now func() time.Time) Option {
	return func(s *MockSeeder) { s.now = now }
}

// WithCount sets how many transactions are generated
func WithCount(n int) Option {
	return func(s *MockSeeder) { s.count = n }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *MockSeeder) { s.logger = l }
}

// MockSeeder fills an empty ledger with random demo transactions
type MockSeeder struct {
	saver  TransactionSaver
	state  *SeedState
	rand   *rand.Rand
	now    func() time.Time
	count  int
	logger zerolog.Logger
}

// NewMockSeeder creates a new MockSeeder instance bound to state
func NewMockSeeder(saver TransactionSaver, state *SeedState, opts ...Option) *MockSeeder {
	s := &MockSeeder{
		saver:  saver,
		state:  state,
		rand:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:    time.Now,
		count:  DefaultCount,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed inserts the random transactions once per SeedState, and only into an
// empty ledger. A ledger that already holds records marks the state done.
// It returns how many records were written; a repeated call writes none.
// A failed run leaves the state unset so it can be retried.
func (s *MockSeeder) Seed(ctx context.Context) (int, error) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	if s.state.done {
		s.logger.Info().Msg("mock data already generated, skipping")
		return 0, nil
	}

	existing, err := s.saver.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count existing transactions: %w", err)
	}
	if existing > 0 {
		s.state.done = true
		s.logger.Info().Int("existing", existing).Msg("ledger not empty, skipping mock data")
		return 0, nil
	}

	s.logger.Info().Int("count", s.count).Msg("generating mock transactions")

	now := s.now()
	for i := 0; i < s.count; i++ {
		input := s.randomInput()
		ts := now.Add(-time.Duration(s.rand.Int64N(int64(seedWindow) + 1)))

		if _, err := s.saver.Save(ctx, input, ts); err != nil {
			return i, fmt.Errorf("failed to save mock transaction %d: %w", i, err)
		}
	}

	s.state.done = true
	s.logger.Info().Int("count", s.count).Msg("mock transactions generated")
	return s.count, nil
}

// randomInput returns income in [1, 1000] BTC or an expense in [1, 200] BTC
// with a random category, at satoshi precision
func (s *MockSeeder) randomInput() domain.InputTransaction {
	if s.rand.IntN(2) == 0 {
		return domain.NewIncome(s.randomAmount(1, 1000))
	}
	category := domain.Categories[s.rand.IntN(len(domain.Categories))]
	return domain.NewExpense(s.randomAmount(1, 200), category)
}

func (s *MockSeeder) randomAmount(minBTC, maxBTC int64) decimal.Decimal {
	lo := minBTC * satoshisPerBTC
	hi := maxBTC * satoshisPerBTC
	return decimal.New(lo+s.rand.Int64N(hi-lo+1), -8)
}
