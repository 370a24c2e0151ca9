//go:build integration

package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matviysuk/btcwallet-backend/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	ctx := context.Background()
	db, err := Connect(ctx, uri, fmt.Sprintf("btcwallet_test_%d", time.Now().UnixNano()))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))

	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = db.Close(context.Background())
	})
	return db
}

func TestTransactionRepository_OrderingSumCount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewTransactionRepository(db)

	sum, err := repo.Sum(ctx)
	require.NoError(t, err)
	assert.True(t, sum.IsZero())

	groceries := domain.CategoryGroceries
	ts := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	a := &domain.TransactionRecord{ID: uuid.New(), Amount: decimal.RequireFromString("0.3"), Timestamp: ts}
	b := &domain.TransactionRecord{ID: uuid.New(), Amount: decimal.RequireFromString("-0.1"), Category: &groceries, Timestamp: ts}
	c := &domain.TransactionRecord{ID: uuid.New(), Amount: decimal.RequireFromString("2"), Timestamp: ts.Add(-time.Minute)}

	for _, r := range []*domain.TransactionRecord{a, b, c} {
		require.NoError(t, repo.Create(ctx, r))
	}

	page, err := repo.List(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, b.ID, page[0].ID)
	assert.Equal(t, a.ID, page[1].ID)
	require.NotNil(t, page[0].Category)
	assert.Equal(t, domain.CategoryGroceries, *page[0].Category)

	rest, err := repo.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, c.ID, rest[0].ID)

	sum, err = repo.Sum(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2.2").Equal(sum), "got %s", sum)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRateCache_LoadStore(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	cache := NewRateCache(db)

	got, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	observed := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, cache.Store(ctx, domain.PriceSample{RateUSD: decimal.RequireFromString("70123.45"), ObservedAt: observed}))

	got, err = cache.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, decimal.RequireFromString("70123.45").Equal(got.RateUSD))
	assert.True(t, observed.Equal(got.ObservedAt))
}
