package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	grpclib "google.golang.org/grpc"

	grpcadapter "github.com/matviysuk/btcwallet-backend/internal/adapter/grpc"
	walletv1 "github.com/matviysuk/btcwallet-backend/internal/adapter/grpc/wallet/v1"
	"github.com/matviysuk/btcwallet-backend/internal/adapter/pricesource"
	"github.com/matviysuk/btcwallet-backend/internal/adapter/ratecache"
	"github.com/matviysuk/btcwallet-backend/internal/adapter/repository/memory"
	"github.com/matviysuk/btcwallet-backend/internal/adapter/repository/mongo"
	"github.com/matviysuk/btcwallet-backend/internal/adapter/repository/postgres"
	"github.com/matviysuk/btcwallet-backend/internal/config"
	"github.com/matviysuk/btcwallet-backend/internal/domain"
	"github.com/matviysuk/btcwallet-backend/internal/pkg/grpcserver"
	"github.com/matviysuk/btcwallet-backend/internal/usecase/analytics"
	"github.com/matviysuk/btcwallet-backend/internal/usecase/ledger"
	"github.com/matviysuk/btcwallet-backend/internal/usecase/ratemonitor"
	"github.com/matviysuk/btcwallet-backend/internal/usecase/seeder"
	"github.com/matviysuk/btcwallet-backend/internal/usecase/valuation"
)

const (
	observerBuffer  = 256
	startupTimeout  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// storage is the ledger repository plus the store-backed rate cache
type storage struct {
	transactions domain.TransactionRepository
	rateCache    domain.RateCache
	close        func(ctx context.Context) error
}

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "btcwallet").Logger()

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger = logger.Level(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg, logger, nil); err != nil {
		logger.Fatal().Err(err).Msg("wallet daemon failed")
	}
}

// run wires every component, serves until ctx is done and then shuts down
// in reverse order. ready, when set, receives the bound gRPC address.
func run(ctx context.Context, cfg config.Config, logger zerolog.Logger, ready func(addr string)) error {
	startupCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	// 2. Setup storage
	store, err := openStorage(startupCtx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s storage: %w", cfg.StoreDriver, err)
	}
	defer func() {
		closeCtx, cancelClose := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelClose()
		if err := store.close(closeCtx); err != nil {
			logger.Error().Err(err).Msg("failed to close storage")
		}
	}()
	logger.Info().Str("driver", cfg.StoreDriver).Msg("storage ready")

	// 3. Analytics: every event is recorded off the caller's goroutine
	recorder := analytics.NewRecorder()
	observer := analytics.NewAsyncObserver(recorder, observerBuffer, logger.With().Str("component", "analytics").Logger())
	defer func() {
		observer.Close()
		logger.Info().
			Int("events_recorded", recorder.Len()).
			Int64("events_dropped", observer.Dropped()).
			Msg("analytics flushed")
	}()

	// 4. Initialize services (use cases)
	ledgerService, err := ledger.NewLedgerService(store.transactions, cfg.PageSize, ledger.WithObserver(observer))
	if err != nil {
		return err
	}

	fetcherOpts := []pricesource.Option{
		pricesource.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
	}
	if cfg.PriceURL != "" {
		fetcherOpts = append(fetcherOpts, pricesource.WithURL(cfg.PriceURL))
	}
	if cfg.RatePath != "" {
		fetcherOpts = append(fetcherOpts, pricesource.WithRatePath(cfg.RatePath))
	}
	fetcher := pricesource.NewCoinGeckoFetcher(fetcherOpts...)

	var cache domain.RateCache = store.rateCache
	if cfg.RateCacheDriver == config.RateCacheFile {
		cache = ratecache.NewFileCache(cfg.RateCachePath)
	}

	monitor, err := ratemonitor.New(fetcher, cache, cfg.PollInterval,
		ratemonitor.WithObserver(observer),
		ratemonitor.WithLogger(logger.With().Str("component", "ratemonitor").Logger()),
	)
	if err != nil {
		return err
	}

	valuationService := valuation.NewValuationService(ledgerService, monitor,
		time.Duration(valuation.StaleAfterIntervals)*cfg.PollInterval)

	// 5. Optional mock data
	if cfg.SeedMockData {
		mockSeeder := seeder.NewMockSeeder(ledgerService, &seeder.SeedState{},
			seeder.WithLogger(logger.With().Str("component", "seeder").Logger()))
		if _, err := mockSeeder.Seed(startupCtx); err != nil {
			return fmt.Errorf("failed to seed mock data: %w", err)
		}
	}

	// 6. Start rate monitor
	monitor.Start(startupCtx)
	defer monitor.Stop()

	// 7. Start gRPC server
	grpcServer := grpcserver.New(
		grpclib.ChainUnaryInterceptor(grpcadapter.AuthInterceptor(cfg.APIToken)),
		grpclib.ChainStreamInterceptor(grpcadapter.StreamAuthInterceptor(cfg.APIToken)),
	)
	grpcAdapter := grpcadapter.NewServer(ledgerService, monitor, valuationService, recorder)
	walletv1.RegisterWalletServiceServer(grpcServer.Server, grpcAdapter)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC server listening")
		serveErr <- grpcServer.Serve(lis)
	}()
	if ready != nil {
		ready(lis.Addr().String())
	}

	// Graceful shutdown
	var result error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down gracefully")
	case err := <-serveErr:
		result = fmt.Errorf("gRPC server failed: %w", err)
	}

	grpcAdapter.Close()
	grpcServer.Stop()
	logger.Info().Msg("gRPC server stopped")

	return result
}

// openStorage connects to the configured backend and applies its schema
func openStorage(ctx context.Context, cfg config.Config) (*storage, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		db, err := postgres.NewDB(ctx, cfg.DBConnStr)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return &storage{
			transactions: postgres.NewTransactionRepository(db),
			rateCache:    postgres.NewRateCache(db),
			close:        func(context.Context) error { return db.Close() },
		}, nil

	case config.StoreMongo:
		db, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close(ctx)
			return nil, err
		}
		return &storage{
			transactions: mongo.NewTransactionRepository(db),
			rateCache:    mongo.NewRateCache(db),
			close:        db.Close,
		}, nil

	case config.StoreMemory:
		return &storage{
			transactions: memory.NewTransactionRepository(),
			rateCache:    memory.NewRateCache(),
			close:        func(context.Context) error { return nil },
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", domain.ErrInvalidConfig, cfg.StoreDriver)
	}
}
