package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/matviysuk/btcwallet-backend/internal/domain"
	"github.com/matviysuk/btcwallet-backend/internal/usecase/ledger"
	"github.com/matviysuk/btcwallet-backend/internal/usecase/ratemonitor"
)

// Ledger storage backends
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Rate cache backends: a local JSON file or the ledger's own store
const (
	RateCacheFile  = "file"
	RateCacheStore = "store"
)

const (
	defaultGRPCAddr      = ":8080"
	defaultAPIToken      = "dev-token"
	defaultRateCachePath = "data/rate_cache.json"
	defaultMongoDB       = "btcwallet"
	defaultHTTPTimeout   = 10 * time.Second
)

// Config holds every setting of the wallet daemon
type Config struct {
	GRPCAddr string
	APIToken string
	LogLevel zerolog.Level

	StoreDriver string
	DBConnStr   string
	MongoURI    string
	MongoDB     string

	PriceURL        string
	RatePath        string
	HTTPTimeout     time.Duration
	PollInterval    time.Duration
	RateCacheDriver string
	RateCachePath   string

	PageSize     int
	SeedMockData bool
}

// Load reads an optional .env file and then the process environment
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds and validates a Config from a variable lookup function
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	env := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := Config{
		GRPCAddr:        env("GRPC_ADDR", defaultGRPCAddr),
		APIToken:        env("API_TOKEN", defaultAPIToken),
		StoreDriver:     strings.ToLower(env("STORE_DRIVER", StoreMemory)),
		DBConnStr:       env("DB_CONN_STR", ""),
		MongoURI:        env("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:         env("MONGO_DB", defaultMongoDB),
		PriceURL:        env("PRICE_URL", ""),
		RatePath:        env("PRICE_RATE_PATH", ""),
		RateCacheDriver: strings.ToLower(env("RATE_CACHE_DRIVER", RateCacheFile)),
		RateCachePath:   env("RATE_CACHE_PATH", defaultRateCachePath),
	}

	if cfg.DBConnStr == "" {
		// If explicit string is missing, build it from individual vars (Docker friendly)
		cfg.DBConnStr = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			env("DB_HOST", "localhost"),
			env("DB_PORT", "5432"),
			env("DB_USER", "postgres"),
			env("DB_PASSWORD", "postgres"),
			env("DB_NAME", "btcwallet"),
		)
	}

	var err error
	if cfg.LogLevel, err = zerolog.ParseLevel(env("LOG_LEVEL", "info")); err != nil {
		return Config{}, fmt.Errorf("%w: LOG_LEVEL: %v", domain.ErrInvalidConfig, err)
	}
	if cfg.PollInterval, err = parseDuration(env("POLL_INTERVAL", ratemonitor.DefaultInterval.String())); err != nil {
		return Config{}, fmt.Errorf("%w: POLL_INTERVAL: %v", domain.ErrInvalidConfig, err)
	}
	if cfg.HTTPTimeout, err = parseDuration(env("HTTP_TIMEOUT", defaultHTTPTimeout.String())); err != nil {
		return Config{}, fmt.Errorf("%w: HTTP_TIMEOUT: %v", domain.ErrInvalidConfig, err)
	}
	if cfg.PageSize, err = strconv.Atoi(env("PAGE_SIZE", strconv.Itoa(ledger.DefaultPageSize))); err != nil {
		return Config{}, fmt.Errorf("%w: PAGE_SIZE: %v", domain.ErrInvalidConfig, err)
	}
	if cfg.SeedMockData, err = strconv.ParseBool(env("SEED_MOCK_DATA", "false")); err != nil {
		return Config{}, fmt.Errorf("%w: SEED_MOCK_DATA: %v", domain.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive, got %s", domain.ErrInvalidConfig, c.PollInterval)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("%w: http timeout must be positive, got %s", domain.ErrInvalidConfig, c.HTTPTimeout)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("%w: page size must be positive, got %d", domain.ErrInvalidConfig, c.PageSize)
	}

	switch c.StoreDriver {
	case StoreMemory, StorePostgres, StoreMongo:
	default:
		return fmt.Errorf("%w: unknown STORE_DRIVER %q", domain.ErrInvalidConfig, c.StoreDriver)
	}

	switch c.RateCacheDriver {
	case RateCacheFile:
		if c.RateCachePath == "" {
			return fmt.Errorf("%w: RATE_CACHE_PATH is required for the file cache", domain.ErrInvalidConfig)
		}
	case RateCacheStore:
	default:
		return fmt.Errorf("%w: unknown RATE_CACHE_DRIVER %q", domain.ErrInvalidConfig, c.RateCacheDriver)
	}

	if c.APIToken == "" {
		return fmt.Errorf("%w: API_TOKEN must not be empty", domain.ErrInvalidConfig)
	}
	return nil
}

// parseDuration accepts Go durations ("5s") or plain seconds ("5")
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}
