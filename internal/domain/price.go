package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// PriceSample is one observed BTC/USD spot price
type PriceSample struct {
	RateUSD    decimal.Decimal
	ObservedAt time.Time
}

// NewPriceSample validates the rate and builds an immutable sample
func NewPriceSample(rate decimal.Decimal, observedAt time.Time) (PriceSample, error) {
	if !rate.IsPositive() {
		return PriceSample{}, errors.New("rate must be positive")
	}
	return PriceSample{RateUSD: rate, ObservedAt: observedAt.UTC()}, nil
}

// Age returns how old the sample is relative to now
func (p PriceSample) Age(now time.Time) time.Duration {
	return now.Sub(p.ObservedAt)
}

// IsStale reports whether the sample is older than maxAge
func (p PriceSample) IsStale(now time.Time, maxAge time.Duration) bool {
	return p.Age(now) > maxAge
}

// Equal compares two samples by value
func (p PriceSample) Equal(other PriceSample) bool {
	return p.RateUSD.Equal(other.RateUSD) && p.ObservedAt.Equal(other.ObservedAt)
}
