package grpc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	walletv1 "github.com/matviysuk/btcwallet-backend/internal/adapter/grpc/wallet/v1"
	"github.com/matviysuk/btcwallet-backend/internal/domain"
	"github.com/matviysuk/btcwallet-backend/internal/usecase/analytics"
	"github.com/matviysuk/btcwallet-backend/internal/usecase/ledger"
	"github.com/matviysuk/btcwallet-backend/internal/usecase/ratemonitor"
	"github.com/matviysuk/btcwallet-backend/internal/usecase/valuation"
)

// Server implements the WalletService gRPC server
type Server struct {
	walletv1.UnimplementedWalletServiceServer

	LedgerService    *ledger.LedgerService
	RateMonitor      *ratemonitor.Monitor
	ValuationService *valuation.ValuationService
	EventRecorder    *analytics.Recorder

	closing   chan struct{}
	closeOnce sync.Once
}

// NewServer creates a new gRPC server instance
func NewServer(
	ledgerService *ledger.LedgerService,
	rateMonitor *ratemonitor.Monitor,
	valuationService *valuation.ValuationService,
	eventRecorder *analytics.Recorder,
) *Server {
	return &Server{
		LedgerService:    ledgerService,
		RateMonitor:      rateMonitor,
		ValuationService: valuationService,
		EventRecorder:    eventRecorder,
		closing:          make(chan struct{}),
	}
}

// Close ends every open WatchRate stream so a graceful stop can drain
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// SaveTransaction handles the SaveTransaction RPC
func (s *Server) SaveTransaction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	// Parse request fields
	input, timestamp, err := transactionInputFromStruct(req)
	if err != nil {
		return nil, err
	}

	// Call usecase service; a missing timestamp means now
	var record *domain.TransactionRecord
	if timestamp == nil {
		record, err = s.LedgerService.SaveNow(ctx, input)
	} else {
		record, err = s.LedgerService.Save(ctx, input, *timestamp)
	}
	if err != nil {
		return nil, mapError(err)
	}

	return transactionToStruct(record), nil
}

// FetchPage handles the FetchPage RPC
func (s *Server) FetchPage(ctx context.Context, req *wrapperspb.Int32Value) (*structpb.Struct, error) {
	pageIndex := int(req.GetValue())

	records, err := s.LedgerService.FetchPage(ctx, pageIndex)
	if err != nil {
		return nil, mapError(err)
	}

	transactions := make([]*structpb.Value, 0, len(records))
	for _, record := range records {
		transactions = append(transactions, structpb.NewStructValue(transactionToStruct(record)))
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"page":         structpb.NewNumberValue(float64(pageIndex)),
		"page_size":    structpb.NewNumberValue(float64(s.LedgerService.PageSize())),
		"transactions": structpb.NewListValue(&structpb.ListValue{Values: transactions}),
	}}, nil
}

// FetchBalance handles the FetchBalance RPC
func (s *Server) FetchBalance(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	balance, err := s.LedgerService.FetchBalance(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return wrapperspb.String(balance.String()), nil
}

// CurrentRate handles the CurrentRate RPC
func (s *Server) CurrentRate(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	sample := s.RateMonitor.Current()
	if sample == nil {
		return nil, status.Error(codes.NotFound, "no rate available yet")
	}
	return rateToStruct(sample), nil
}

// WatchRate streams the current rate followed by every published update
// until the client goes away
func (s *Server) WatchRate(_ *emptypb.Empty, stream grpclib.ServerStreamingServer[structpb.Struct]) error {
	sub := s.RateMonitor.Subscribe()
	defer sub.Close()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return status.FromContextError(ctx.Err()).Err()
		case <-s.closing:
			return status.Error(codes.Unavailable, "server is shutting down")
		case sample, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := stream.Send(rateToStruct(sample)); err != nil {
				return err
			}
		}
	}
}

// GetValuation handles the GetValuation RPC
func (s *Server) GetValuation(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	result, err := s.ValuationService.GetValuation(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return valuationToStruct(result), nil
}

// QueryEvents handles the QueryEvents RPC
func (s *Server) QueryEvents(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.EventRecorder == nil {
		return nil, status.Error(codes.FailedPrecondition, "event recording is disabled")
	}

	names, from, to, err := eventQueryFromStruct(req)
	if err != nil {
		return nil, err
	}

	events := s.EventRecorder.Events(names, from, to)
	values := make([]*structpb.Value, 0, len(events))
	for _, e := range events {
		values = append(values, structpb.NewStructValue(eventToStruct(e)))
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"events": structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}, nil
}

// mapError converts domain errors to gRPC status errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := status.FromError(err); ok {
		return err
	}

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return status.Errorf(codes.InvalidArgument, "%s: %s", validationErr.Reason, validationErr.Message)
	}

	if errors.Is(err, domain.ErrInvalidPageIndex) {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	var persistenceErr *domain.PersistenceError
	if errors.As(err, &persistenceErr) {
		return status.Error(codes.Unavailable, err.Error())
	}

	// Default to Internal error for unknown errors
	return status.Error(codes.Internal, err.Error())
}

// transactionInputFromStruct parses {amount, category?, timestamp?}
func transactionInputFromStruct(req *structpb.Struct) (domain.InputTransaction, *time.Time, error) {
	fields := req.GetFields()

	amountValue, ok := fields["amount"]
	if !ok {
		return domain.InputTransaction{}, nil, status.Error(codes.InvalidArgument, "amount is required")
	}
	amount, err := decimal.NewFromString(amountValue.GetStringValue())
	if err != nil {
		return domain.InputTransaction{}, nil, status.Errorf(codes.InvalidArgument, "invalid amount format: %v", err)
	}

	input := domain.InputTransaction{Amount: amount}

	// Unknown names are passed through so validation reports them
	if v, ok := fields["category"]; ok && v.GetStringValue() != "" {
		category, err := domain.ParseCategory(v.GetStringValue())
		if err != nil {
			category = domain.Category(v.GetStringValue())
		}
		input.Category = &category
	}

	var timestamp *time.Time
	if v, ok := fields["timestamp"]; ok && v.GetStringValue() != "" {
		ts, err := time.Parse(time.RFC3339Nano, v.GetStringValue())
		if err != nil {
			return domain.InputTransaction{}, nil, status.Errorf(codes.InvalidArgument, "invalid timestamp format: %v", err)
		}
		timestamp = &ts
	}

	return input, timestamp, nil
}

func transactionToStruct(record *domain.TransactionRecord) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"id":        structpb.NewStringValue(record.ID.String()),
		"amount":    structpb.NewStringValue(record.Amount.String()),
		"type":      structpb.NewStringValue(string(record.Type())),
		"timestamp": structpb.NewStringValue(record.Timestamp.UTC().Format(time.RFC3339Nano)),
	}
	if record.Category != nil {
		fields["category"] = structpb.NewStringValue(string(*record.Category))
	}
	return &structpb.Struct{Fields: fields}
}

// rateToStruct encodes a sample; nil is sent as {available: false}
func rateToStruct(sample *domain.PriceSample) *structpb.Struct {
	if sample == nil {
		return &structpb.Struct{Fields: map[string]*structpb.Value{
			"available": structpb.NewBoolValue(false),
		}}
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"available":   structpb.NewBoolValue(true),
		"rate":        structpb.NewStringValue(sample.RateUSD.String()),
		"observed_at": structpb.NewStringValue(sample.ObservedAt.UTC().Format(time.RFC3339Nano)),
	}}
}

// eventQueryFromStruct parses {names?, from?, to?}; absent bounds stay zero
func eventQueryFromStruct(req *structpb.Struct) ([]string, time.Time, time.Time, error) {
	fields := req.GetFields()

	var names []string
	for _, v := range fields["names"].GetListValue().GetValues() {
		names = append(names, v.GetStringValue())
	}

	var bounds [2]time.Time
	for i, key := range []string{"from", "to"} {
		raw := fields[key].GetStringValue()
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, time.Time{}, time.Time{}, status.Errorf(codes.InvalidArgument, "invalid %s format: %v", key, err)
		}
		bounds[i] = ts
	}

	return names, bounds[0], bounds[1], nil
}

func eventToStruct(e analytics.Event) *structpb.Struct {
	params := make(map[string]*structpb.Value, len(e.Parameters))
	for k, v := range e.Parameters {
		params[k] = structpb.NewStringValue(v)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":         structpb.NewStringValue(e.ID.String()),
		"name":       structpb.NewStringValue(e.Name),
		"parameters": structpb.NewStructValue(&structpb.Struct{Fields: params}),
		"date":       structpb.NewStringValue(e.Date.UTC().Format(time.RFC3339Nano)),
	}}
}

func valuationToStruct(v *valuation.Valuation) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"balance_btc": structpb.NewStringValue(v.BalanceBTC.String()),
		"has_rate":    structpb.NewBoolValue(v.HasRate),
		"stale":       structpb.NewBoolValue(v.Stale),
	}
	if v.HasRate {
		fields["rate_usd"] = structpb.NewStringValue(v.RateUSD.String())
		fields["value_usd"] = structpb.NewStringValue(v.ValueUSD.String())
		fields["value_usd_display"] = structpb.NewStringValue(v.DisplayUSD())
		fields["observed_at"] = structpb.NewStringValue(v.ObservedAt.UTC().Format(time.RFC3339Nano))
	}
	return &structpb.Struct{Fields: fields}
}
