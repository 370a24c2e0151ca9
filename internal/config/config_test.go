package config

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matviysuk/btcwallet-backend/internal/domain"
)

func lookupFrom(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.GRPCAddr)
	assert.Equal(t, "dev-token", cfg.APIToken)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, RateCacheFile, cfg.RateCacheDriver)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 20, cfg.PageSize)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
	assert.False(t, cfg.SeedMockData)
	assert.Equal(t, "host=localhost port=5432 user=postgres password=postgres dbname=btcwallet sslmode=disable", cfg.DBConnStr)
}

func TestFromLookup_Overrides(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"GRPC_ADDR":         "127.0.0.1:9000",
		"STORE_DRIVER":      "Postgres",
		"DB_CONN_STR":       "postgres://x",
		"POLL_INTERVAL":     "250ms",
		"HTTP_TIMEOUT":      "3",
		"PAGE_SIZE":         "50",
		"SEED_MOCK_DATA":    "true",
		"RATE_CACHE_DRIVER": "store",
		"LOG_LEVEL":         "debug",
	}))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.GRPCAddr)
	assert.Equal(t, StorePostgres, cfg.StoreDriver)
	assert.Equal(t, "postgres://x", cfg.DBConnStr)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 3*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 50, cfg.PageSize)
	assert.True(t, cfg.SeedMockData)
	assert.Equal(t, RateCacheStore, cfg.RateCacheDriver)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
}

func TestFromLookup_Invalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{name: "zero poll interval", vars: map[string]string{"POLL_INTERVAL": "0s"}},
		{name: "negative poll interval", vars: map[string]string{"POLL_INTERVAL": "-1s"}},
		{name: "malformed poll interval", vars: map[string]string{"POLL_INTERVAL": "soon"}},
		{name: "zero page size", vars: map[string]string{"PAGE_SIZE": "0"}},
		{name: "malformed page size", vars: map[string]string{"PAGE_SIZE": "twenty"}},
		{name: "unknown store", vars: map[string]string{"STORE_DRIVER": "sqlite"}},
		{name: "unknown rate cache", vars: map[string]string{"RATE_CACHE_DRIVER": "redis"}},
		{name: "bad seed flag", vars: map[string]string{"SEED_MOCK_DATA": "maybe"}},
		{name: "bad log level", vars: map[string]string{"LOG_LEVEL": "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromLookup(lookupFrom(tt.vars))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidConfig)
		})
	}
}
