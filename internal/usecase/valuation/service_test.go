package valuation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/matviysuk/btcwallet-backend/internal/domain"
)

// MockBalanceSource is a mock implementation of BalanceSource for testing
type MockBalanceSource struct {
	mock.Mock
}

func (m *MockBalanceSource) FetchBalance(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type fixedRate struct {
	sample *domain.PriceSample
}

func (f fixedRate) Current() *domain.PriceSample { return f.sample }

func TestGetValuation(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		balance    string
		sample     *domain.PriceSample
		wantRate   bool
		wantValue  string
		wantStale  bool
		wantString string
	}{
		{
			name:    "No rate yet",
			balance: "1.5",
		},
		{
			name:       "Fresh rate",
			balance:    "0.5",
			sample:     &domain.PriceSample{RateUSD: decimal.RequireFromString("60000.10"), ObservedAt: now.Add(-time.Second)},
			wantRate:   true,
			wantValue:  "30000.05",
			wantString: "$30,000.05",
		},
		{
			name:       "Stale rate keeps its value",
			balance:    "2",
			sample:     &domain.PriceSample{RateUSD: decimal.NewFromInt(50000), ObservedAt: now.Add(-time.Hour)},
			wantRate:   true,
			wantValue:  "100000",
			wantStale:  true,
			wantString: "$100,000.00",
		},
		{
			name:       "Negative balance",
			balance:    "-0.001",
			sample:     &domain.PriceSample{RateUSD: decimal.NewFromInt(65000), ObservedAt: now},
			wantRate:   true,
			wantValue:  "-65",
			wantString: "-$65.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			balances := new(MockBalanceSource)
			balances.On("FetchBalance", ctx).Return(decimal.RequireFromString(tt.balance), nil)

			svc := NewValuationService(balances, fixedRate{sample: tt.sample}, 15*time.Second)
			svc.now = func() time.Time { return now }

			got, err := svc.GetValuation(ctx)
			require.NoError(t, err)

			assert.True(t, decimal.RequireFromString(tt.balance).Equal(got.BalanceBTC))
			assert.Equal(t, tt.wantRate, got.HasRate)
			assert.Equal(t, tt.wantStale, got.Stale)
			if tt.wantRate {
				assert.True(t, decimal.RequireFromString(tt.wantValue).Equal(got.ValueUSD), "got %s", got.ValueUSD)
			}
			assert.Equal(t, tt.wantString, got.DisplayUSD())
		})
	}
}

func TestGetValuation_BalanceError(t *testing.T) {
	ctx := context.Background()
	balances := new(MockBalanceSource)
	balances.On("FetchBalance", ctx).Return(decimal.Zero, errors.New("db down"))

	_, err := NewValuationService(balances, fixedRate{}, time.Minute).GetValuation(ctx)
	assert.ErrorContains(t, err, "db down")
}
