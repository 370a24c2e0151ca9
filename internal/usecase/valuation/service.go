package valuation

import (
	"context"
	"fmt"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/matviysuk/btcwallet-backend/internal/domain"
)

// StaleAfterIntervals is how many missed polls make a rate stale
const StaleAfterIntervals = 3

// BalanceSource provides the ledger balance in BTC
type BalanceSource interface {
	FetchBalance(ctx context.Context) (decimal.Decimal, error)
}

// RateSource provides the last published BTC/USD sample
type RateSource interface {
	Current() *domain.PriceSample
}

// Valuation represents the ledger balance converted to USD
type Valuation struct {
	BalanceBTC decimal.Decimal
	HasRate    bool
	RateUSD    decimal.Decimal
	ValueUSD   decimal.Decimal
	ObservedAt time.Time
	Stale      bool
}

// DisplayUSD formats ValueUSD as a USD amount, empty without a rate
func (v *Valuation) DisplayUSD() string {
	if !v.HasRate {
		return ""
	}
	return FormatUSD(v.ValueUSD)
}

// FormatUSD renders an amount in dollars, rounded to cents
func FormatUSD(amount decimal.Decimal) string {
	cents := amount.Shift(2).Round(0).IntPart()
	return money.New(cents, money.USD).Display()
}

// ValuationService combines the ledger balance with the latest rate
type ValuationService struct {
	Ledger BalanceSource
	Rates  RateSource
	MaxAge time.Duration

	now func() time.Time
}

// NewValuationService creates a new ValuationService instance.
// Samples older than maxAge are reported as stale.
func NewValuationService(ledger BalanceSource, rates RateSource, maxAge time.Duration) *ValuationService {
	return &ValuationService{
		Ledger: ledger,
		Rates:  rates,
		MaxAge: maxAge,
		now:    time.Now,
	}
}

// GetValuation calculates the USD value of the ledger
// Logic:
//   - Balance: exact sum of the ledger in BTC
//   - Rate: last published sample, if any
//   - Value: Balance * Rate; Stale when the sample is older than MaxAge
func (s *ValuationService) GetValuation(ctx context.Context) (*Valuation, error) {
	// 1. Balance
	balance, err := s.Ledger.FetchBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balance: %w", err)
	}

	result := &Valuation{BalanceBTC: balance}

	// 2. Rate
	sample := s.Rates.Current()
	if sample == nil {
		return result, nil
	}

	// 3. Value
	result.HasRate = true
	result.RateUSD = sample.RateUSD
	result.ObservedAt = sample.ObservedAt
	result.ValueUSD = balance.Mul(sample.RateUSD)
	result.Stale = s.MaxAge > 0 && sample.IsStale(s.now(), s.MaxAge)

	return result, nil
}
