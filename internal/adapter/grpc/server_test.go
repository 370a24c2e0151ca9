package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	walletv1 "github.com/matviysuk/btcwallet-backend/internal/adapter/grpc/wallet/v1"
	"github.com/matviysuk/btcwallet-backend/internal/adapter/repository/memory"
	"github.com/matviysuk/btcwallet-backend/internal/domain"
	"github.com/matviysuk/btcwallet-backend/internal/pkg/grpcserver"
	"github.com/matviysuk/btcwallet-backend/internal/usecase/analytics"
	"github.com/matviysuk/btcwallet-backend/internal/usecase/ledger"
	"github.com/matviysuk/btcwallet-backend/internal/usecase/ratemonitor"
	"github.com/matviysuk/btcwallet-backend/internal/usecase/valuation"
)

const (
	bufSize   = 1024 * 1024
	testToken = "test-token"
)

// chanFetcher returns whatever rate the test pushes, blocking until then
type chanFetcher struct {
	rates chan decimal.Decimal
}

func (f *chanFetcher) Fetch(ctx context.Context) (decimal.Decimal, error) {
	select {
	case r := <-f.rates:
		return r, nil
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	}
}

// recordingStream captures messages sent on a server stream
type recordingStream struct {
	grpclib.ServerStream
	ctx context.Context

	mu   sync.Mutex
	sent []*structpb.Struct
}

func (r *recordingStream) Context() context.Context { return r.ctx }

func (r *recordingStream) Send(m *structpb.Struct) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, m)
	return nil
}

type testEnv struct {
	client   *Client
	conn     *grpclib.ClientConn
	fetcher  *chanFetcher
	monitor  *ratemonitor.Monitor
	recorder *analytics.Recorder
}

func newTestEnv(t *testing.T, cached *domain.PriceSample) *testEnv {
	t.Helper()
	ctx := context.Background()

	recorder := analytics.NewRecorder()
	ledgerService, err := ledger.NewLedgerService(memory.NewTransactionRepository(), 2, ledger.WithObserver(recorder))
	require.NoError(t, err)

	cache := memory.NewRateCache()
	if cached != nil {
		require.NoError(t, cache.Store(ctx, *cached))
	}
	fetcher := &chanFetcher{rates: make(chan decimal.Decimal)}
	monitor, err := ratemonitor.New(fetcher, cache, time.Millisecond, ratemonitor.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	monitor.Start(ctx)
	t.Cleanup(monitor.Stop)

	adapter := NewServer(ledgerService, monitor, valuation.NewValuationService(ledgerService, monitor, time.Hour), recorder)

	srv := grpcserver.New(
		grpclib.ChainUnaryInterceptor(AuthInterceptor(testToken)),
		grpclib.ChainStreamInterceptor(StreamAuthInterceptor(testToken)),
	)
	walletv1.RegisterWalletServiceServer(srv.Server, adapter)

	lis := bufconn.Listen(bufSize)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		adapter.Close()
		srv.Stop()
	})

	conn, err := grpclib.NewClient("passthrough:///bufnet",
		grpclib.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpclib.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &testEnv{
		client:  NewClient(conn, testToken),
		conn:    conn,
		fetcher:  fetcher,
		monitor:  monitor,
		recorder: recorder,
	}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestServer_RequiresToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := testContext(t)

	_, err := NewClient(env.conn, "").FetchBalance(ctx)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = NewClient(env.conn, "wrong").FetchBalance(ctx)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestServer_HealthIsOpen(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := healthpb.NewHealthClient(env.conn).Check(testContext(t), &healthpb.HealthCheckRequest{
		Service: walletv1.WalletService_ServiceDesc.ServiceName,
	})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestServer_SaveFetchAndBalance(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := testContext(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	income, err := env.client.SaveTransaction(ctx, domain.NewIncome(decimal.RequireFromString("1.5")), &base)
	require.NoError(t, err)
	assert.Nil(t, income.Category)
	assert.True(t, decimal.RequireFromString("1.5").Equal(income.Amount))

	later := base.Add(time.Hour)
	expense, err := env.client.SaveTransaction(ctx, domain.NewExpense(decimal.RequireFromString("0.25"), domain.CategoryTaxi), &later)
	require.NoError(t, err)
	require.NotNil(t, expense.Category)
	assert.Equal(t, domain.CategoryTaxi, *expense.Category)
	assert.True(t, decimal.RequireFromString("-0.25").Equal(expense.Amount))

	latestAt := base.Add(2 * time.Hour)
	latest, err := env.client.SaveTransaction(ctx, domain.NewIncome(decimal.RequireFromString("0.1")), &latestAt)
	require.NoError(t, err)

	// Page size is 2: newest first
	first, err := env.client.FetchPage(ctx, 0)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, latest.ID, first[0].ID)
	assert.Equal(t, expense.ID, first[1].ID)

	second, err := env.client.FetchPage(ctx, 1)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, income.ID, second[0].ID)
	assert.True(t, base.Equal(second[0].Timestamp))

	beyond, err := env.client.FetchPage(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, beyond)

	balance, err := env.client.FetchBalance(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1.35").Equal(balance), "got %s", balance)
}

func TestServer_InvalidArguments(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := testContext(t)
	rent := domain.Category("rent")
	groceries := domain.CategoryGroceries

	tests := []struct {
		name    string
		input   domain.InputTransaction
		wantMsg string
	}{
		{
			name:    "expense without category",
			input:   domain.InputTransaction{Amount: decimal.NewFromInt(-1)},
			wantMsg: string(domain.ReasonMissingCategoryForExpense),
		},
		{
			name:    "income with category",
			input:   domain.InputTransaction{Amount: decimal.NewFromInt(1), Category: &groceries},
			wantMsg: string(domain.ReasonCategoryOnIncome),
		},
		{
			name:    "unknown category",
			input:   domain.InputTransaction{Amount: decimal.NewFromInt(-1), Category: &rent},
			wantMsg: string(domain.ReasonUnknownCategory),
		},
		{
			name:    "amount beyond decimal128 precision",
			input:   domain.NewIncome(decimal.RequireFromString("1.2345678901234567890123456789012345")),
			wantMsg: string(domain.ReasonAmountTooPrecise),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.client.SaveTransaction(ctx, tt.input, nil)
			st, ok := status.FromError(err)
			require.True(t, ok)
			assert.Equal(t, codes.InvalidArgument, st.Code())
			assert.Contains(t, st.Message(), tt.wantMsg)
		})
	}

	_, err := env.client.FetchPage(ctx, -1)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	balance, err := env.client.FetchBalance(ctx)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestServer_CurrentRate(t *testing.T) {
	t.Run("absent", func(t *testing.T) {
		env := newTestEnv(t, nil)
		sample, err := env.client.CurrentRate(testContext(t))
		require.NoError(t, err)
		assert.Nil(t, sample)
	})

	t.Run("replayed from cache", func(t *testing.T) {
		observed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		env := newTestEnv(t, &domain.PriceSample{RateUSD: decimal.NewFromInt(50000), ObservedAt: observed})

		sample, err := env.client.CurrentRate(testContext(t))
		require.NoError(t, err)
		require.NotNil(t, sample)
		assert.True(t, decimal.NewFromInt(50000).Equal(sample.RateUSD))
		assert.True(t, observed.Equal(sample.ObservedAt))
	})
}

func TestServer_WatchRate(t *testing.T) {
	observed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(t, &domain.PriceSample{RateUSD: decimal.NewFromInt(50000), ObservedAt: observed})
	ctx := testContext(t)

	var got []string
	errDone := errors.New("done")

	received := make(chan struct{}, 1)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- env.client.WatchRate(ctx, func(sample *domain.PriceSample) error {
			if sample == nil {
				return errors.New("unexpected empty sample")
			}
			got = append(got, sample.RateUSD.String())
			if len(got) == 1 {
				received <- struct{}{}
			}
			if len(got) == 3 {
				return errDone
			}
			return nil
		})
	}()

	// Wait for the replayed value so the updates below cannot race the subscribe
	select {
	case <-received:
	case <-ctx.Done():
		t.Fatal("no replayed value")
	}

	env.fetcher.rates <- decimal.NewFromInt(60000)
	env.fetcher.rates <- decimal.NewFromInt(61000)

	select {
	case err := <-watchErr:
		assert.ErrorIs(t, err, errDone)
	case <-ctx.Done():
		t.Fatal("watch did not finish")
	}
	assert.Equal(t, []string{"50000", "60000", "61000"}, got)
}

func TestServer_WatchRateSendsAbsence(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := testContext(t)

	errDone := errors.New("done")
	var first *domain.PriceSample
	calls := 0
	err := env.client.WatchRate(ctx, func(sample *domain.PriceSample) error {
		calls++
		first = sample
		return errDone
	})
	assert.ErrorIs(t, err, errDone)
	assert.Equal(t, 1, calls)
	assert.Nil(t, first)
}

func TestServer_GetValuation(t *testing.T) {
	observed := time.Now().UTC().Truncate(time.Second)
	env := newTestEnv(t, &domain.PriceSample{RateUSD: decimal.NewFromInt(50000), ObservedAt: observed})
	ctx := testContext(t)

	_, err := env.client.SaveTransaction(ctx, domain.NewIncome(decimal.RequireFromString("2")), nil)
	require.NoError(t, err)
	_, err = env.client.SaveTransaction(ctx, domain.NewExpense(decimal.RequireFromString("0.5"), domain.CategoryRestaurant), nil)
	require.NoError(t, err)

	result, err := env.client.GetValuation(ctx)
	require.NoError(t, err)
	assert.True(t, result.HasRate)
	assert.False(t, result.Stale)
	assert.True(t, decimal.RequireFromString("1.5").Equal(result.BalanceBTC))
	assert.True(t, decimal.NewFromInt(75000).Equal(result.ValueUSD))
	assert.Equal(t, "$75,000.00", result.DisplayUSD())
}

func TestServer_QueryEvents(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := testContext(t)

	_, err := env.client.SaveTransaction(ctx, domain.NewIncome(decimal.RequireFromString("2")), nil)
	require.NoError(t, err)
	_, err = env.client.SaveTransaction(ctx, domain.NewExpense(decimal.RequireFromString("0.5"), domain.CategoryTaxi), nil)
	require.NoError(t, err)
	env.recorder.Notify(domain.EventRateFetchFailed, map[string]string{"kind": "network"})

	all, err := env.client.QueryEvents(ctx, nil, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, domain.EventTransactionAdded, all[0].Name)
	assert.Equal(t, domain.EventRateFetchFailed, all[2].Name)
	assert.Equal(t, "network", all[2].Parameters["kind"])
	assert.Equal(t, analytics.EventPrefix, all[2].ID.Prefix())

	recorded := env.recorder.Events(nil, time.Time{}, time.Time{})
	for i := range recorded {
		assert.Equal(t, recorded[i].ID.String(), all[i].ID.String())
		assert.True(t, recorded[i].Date.Equal(all[i].Date))
	}

	added, err := env.client.QueryEvents(ctx, []string{domain.EventTransactionAdded}, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, added, 2)

	future, err := env.client.QueryEvents(ctx, nil, time.Now().Add(time.Hour), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, future)
}

func TestServer_QueryEventsInvalidBound(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.client.rpc.QueryEvents(env.client.outgoing(testContext(t)), &structpb.Struct{Fields: map[string]*structpb.Value{
		"from": structpb.NewStringValue("yesterday"),
	}})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_QueryEventsWithoutRecorder(t *testing.T) {
	adapter := NewServer(nil, nil, nil, nil)

	_, err := adapter.QueryEvents(context.Background(), &structpb.Struct{})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestServer_CloseEndsStreams(t *testing.T) {
	ledgerService, err := ledger.NewLedgerService(memory.NewTransactionRepository(), ledger.DefaultPageSize)
	require.NoError(t, err)
	monitor, err := ratemonitor.New(&chanFetcher{rates: make(chan decimal.Decimal)}, memory.NewRateCache(), time.Second)
	require.NoError(t, err)

	adapter := NewServer(ledgerService, monitor, nil, nil)
	stream := &recordingStream{ctx: context.Background()}

	done := make(chan error, 1)
	go func() { done <- adapter.WatchRate(&emptypb.Empty{}, stream) }()

	adapter.Close()
	adapter.Close()

	select {
	case err := <-done:
		assert.Equal(t, codes.Unavailable, status.Code(err))
	case <-time.After(5 * time.Second):
		t.Fatal("stream still open after Close")
	}
	assert.Eventually(t, func() bool { return monitor.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{name: "nil", err: nil, want: codes.OK},
		{name: "validation", err: domain.ErrMissingCategoryForExpense, want: codes.InvalidArgument},
		{name: "wrapped validation", err: fmt.Errorf("save: %w", domain.ErrCategoryOnIncome), want: codes.InvalidArgument},
		{name: "page index", err: domain.ErrInvalidPageIndex, want: codes.InvalidArgument},
		{name: "persistence", err: &domain.PersistenceError{Op: domain.PersistenceRead, Err: errors.New("db down")}, want: codes.Unavailable},
		{name: "persistence deadline", err: &domain.PersistenceError{Op: domain.PersistenceWrite, Err: context.DeadlineExceeded}, want: codes.DeadlineExceeded},
		{name: "canceled", err: context.Canceled, want: codes.Canceled},
		{name: "status passthrough", err: status.Error(codes.NotFound, "x"), want: codes.NotFound},
		{name: "unknown", err: errors.New("boom"), want: codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, status.Code(mapError(tt.err)))
		})
	}
}
