package memory

import (
	"context"
	"sync"

	"github.com/matviysuk/btcwallet-backend/internal/domain"
)

// RateCache is a process-local domain.RateCache
type RateCache struct {
	mu     sync.RWMutex
	sample *domain.PriceSample
}

var _ domain.RateCache = (*RateCache)(nil)

// NewRateCache creates an empty cache
func NewRateCache() *RateCache {
	return &RateCache{}
}

// Load returns the stored sample, nil when empty
func (c *RateCache) Load(_ context.Context) (*domain.PriceSample, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.sample == nil {
		return nil, nil
	}
	s := *c.sample
	return &s, nil
}

// Store replaces the stored sample
func (c *RateCache) Store(_ context.Context, sample domain.PriceSample) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sample = &sample
	return nil
}
