package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/matviysuk/btcwallet-backend/internal/domain"
)

const rateSlotID = "btc_usd"

type rateModel struct {
	ID         string          `bson:"_id"`
	RateUSD    bson.Decimal128 `bson:"rate_usd"`
	ObservedAt time.Time       `bson:"observed_at"`
}

// rateCache implements domain.RateCache as a single document
type rateCache struct {
	db *DB
}

// NewRateCache creates a Mongo backed rate cache
func NewRateCache(db *DB) domain.RateCache {
	return &rateCache{db: db}
}

// Load returns the cached sample, nil when none was stored
func (c *rateCache) Load(ctx context.Context) (*domain.PriceSample, error) {
	var m rateModel
	err := c.db.collection(colRateCache).FindOne(ctx, bson.M{"_id": rateSlotID}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, &domain.CacheError{Op: domain.CacheRead, Err: err}
	}

	rate, err := decimal.NewFromString(m.RateUSD.String())
	if err != nil {
		return nil, &domain.CacheError{Op: domain.CacheRead, Err: fmt.Errorf("failed to parse rate_usd: %w", err)}
	}

	return &domain.PriceSample{RateUSD: rate, ObservedAt: m.ObservedAt.UTC()}, nil
}

// Store replaces the cached document
func (c *rateCache) Store(ctx context.Context, sample domain.PriceSample) error {
	rate, err := bson.ParseDecimal128(sample.RateUSD.String())
	if err != nil {
		return &domain.CacheError{Op: domain.CacheWrite, Err: err}
	}

	m := rateModel{ID: rateSlotID, RateUSD: rate, ObservedAt: sample.ObservedAt.UTC()}
	_, err = c.db.collection(colRateCache).ReplaceOne(ctx, bson.M{"_id": rateSlotID}, m, options.Replace().SetUpsert(true))
	if err != nil {
		return &domain.CacheError{Op: domain.CacheWrite, Err: err}
	}
	return nil
}
