package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.jetify.com/typeid/v2"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	walletv1 "github.com/matviysuk/btcwallet-backend/internal/adapter/grpc/wallet/v1"
	"github.com/matviysuk/btcwallet-backend/internal/domain"
	"github.com/matviysuk/btcwallet-backend/internal/usecase/analytics"
	"github.com/matviysuk/btcwallet-backend/internal/usecase/valuation"
)

// Client is a typed wrapper over the WalletService stub that attaches the
// API token to every call
type Client struct {
	rpc   walletv1.WalletServiceClient
	token string
	conn  *grpclib.ClientConn
}

// Dial opens a plaintext connection to addr
func Dial(addr, token string) (*Client, error) {
	conn, err := grpclib.NewClient(addr, grpclib.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	c := NewClient(conn, token)
	c.conn = conn
	return c, nil
}

// NewClient wraps an existing connection
func NewClient(cc grpclib.ClientConnInterface, token string) *Client {
	return &Client{rpc: walletv1.NewWalletServiceClient(cc), token: token}
}

// Close releases the connection opened by Dial
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", c.token)
}

// SaveTransaction records input; a nil timestamp lets the server use its clock
func (c *Client) SaveTransaction(ctx context.Context, input domain.InputTransaction, timestamp *time.Time) (*domain.TransactionRecord, error) {
	fields := map[string]*structpb.Value{
		"amount": structpb.NewStringValue(input.Amount.String()),
	}
	if input.Category != nil {
		fields["category"] = structpb.NewStringValue(string(*input.Category))
	}
	if timestamp != nil {
		fields["timestamp"] = structpb.NewStringValue(timestamp.UTC().Format(time.RFC3339Nano))
	}

	resp, err := c.rpc.SaveTransaction(c.outgoing(ctx), &structpb.Struct{Fields: fields})
	if err != nil {
		return nil, err
	}
	return transactionFromStruct(resp)
}

// FetchPage returns one page of records, newest first
func (c *Client) FetchPage(ctx context.Context, pageIndex int) ([]*domain.TransactionRecord, error) {
	resp, err := c.rpc.FetchPage(c.outgoing(ctx), wrapperspb.Int32(int32(pageIndex)))
	if err != nil {
		return nil, err
	}

	values := resp.GetFields()["transactions"].GetListValue().GetValues()
	records := make([]*domain.TransactionRecord, 0, len(values))
	for _, v := range values {
		record, err := transactionFromStruct(v.GetStructValue())
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// FetchBalance returns the ledger balance in BTC
func (c *Client) FetchBalance(ctx context.Context) (decimal.Decimal, error) {
	resp, err := c.rpc.FetchBalance(c.outgoing(ctx), &emptypb.Empty{})
	if err != nil {
		return decimal.Zero, err
	}
	balance, err := decimal.NewFromString(resp.GetValue())
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse balance: %w", err)
	}
	return balance, nil
}

// CurrentRate returns nil without error when the server has no rate yet
func (c *Client) CurrentRate(ctx context.Context) (*domain.PriceSample, error) {
	resp, err := c.rpc.CurrentRate(c.outgoing(ctx), &emptypb.Empty{})
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rateFromStruct(resp)
}

// WatchRate calls fn for the current rate and every update until ctx ends,
// the server closes the stream or fn returns an error
func (c *Client) WatchRate(ctx context.Context, fn func(*domain.PriceSample) error) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.rpc.WatchRate(c.outgoing(streamCtx), &emptypb.Empty{})
	if err != nil {
		return err
	}

	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		sample, err := rateFromStruct(msg)
		if err != nil {
			return err
		}
		if err := fn(sample); err != nil {
			return err
		}
	}
}

// GetValuation returns the balance converted to USD
func (c *Client) GetValuation(ctx context.Context) (*valuation.Valuation, error) {
	resp, err := c.rpc.GetValuation(c.outgoing(ctx), &emptypb.Empty{})
	if err != nil {
		return nil, err
	}

	fields := resp.GetFields()
	result := &valuation.Valuation{
		HasRate: fields["has_rate"].GetBoolValue(),
		Stale:   fields["stale"].GetBoolValue(),
	}
	if result.BalanceBTC, err = decimal.NewFromString(fields["balance_btc"].GetStringValue()); err != nil {
		return nil, fmt.Errorf("failed to parse balance: %w", err)
	}
	if !result.HasRate {
		return result, nil
	}
	if result.RateUSD, err = decimal.NewFromString(fields["rate_usd"].GetStringValue()); err != nil {
		return nil, fmt.Errorf("failed to parse rate: %w", err)
	}
	if result.ValueUSD, err = decimal.NewFromString(fields["value_usd"].GetStringValue()); err != nil {
		return nil, fmt.Errorf("failed to parse value: %w", err)
	}
	if result.ObservedAt, err = time.Parse(time.RFC3339Nano, fields["observed_at"].GetStringValue()); err != nil {
		return nil, fmt.Errorf("failed to parse observed_at: %w", err)
	}
	return result, nil
}

// QueryEvents returns recorded events matching names within [from, to].
// Empty names match every event and zero bounds are open.
func (c *Client) QueryEvents(ctx context.Context, names []string, from, to time.Time) ([]analytics.Event, error) {
	fields := map[string]*structpb.Value{}
	if len(names) > 0 {
		values := make([]*structpb.Value, 0, len(names))
		for _, n := range names {
			values = append(values, structpb.NewStringValue(n))
		}
		fields["names"] = structpb.NewListValue(&structpb.ListValue{Values: values})
	}
	if !from.IsZero() {
		fields["from"] = structpb.NewStringValue(from.UTC().Format(time.RFC3339Nano))
	}
	if !to.IsZero() {
		fields["to"] = structpb.NewStringValue(to.UTC().Format(time.RFC3339Nano))
	}

	resp, err := c.rpc.QueryEvents(c.outgoing(ctx), &structpb.Struct{Fields: fields})
	if err != nil {
		return nil, err
	}

	values := resp.GetFields()["events"].GetListValue().GetValues()
	events := make([]analytics.Event, 0, len(values))
	for _, v := range values {
		e, err := eventFromStruct(v.GetStructValue())
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func eventFromStruct(s *structpb.Struct) (analytics.Event, error) {
	fields := s.GetFields()

	tid, err := typeid.Parse(fields["id"].GetStringValue())
	if err != nil {
		return analytics.Event{}, fmt.Errorf("failed to parse event id: %w", err)
	}
	date, err := time.Parse(time.RFC3339Nano, fields["date"].GetStringValue())
	if err != nil {
		return analytics.Event{}, fmt.Errorf("failed to parse event date: %w", err)
	}

	params := map[string]string{}
	for k, v := range fields["parameters"].GetStructValue().GetFields() {
		params[k] = v.GetStringValue()
	}
	return analytics.Event{ID: tid, Name: fields["name"].GetStringValue(), Parameters: params, Date: date}, nil
}

func transactionFromStruct(s *structpb.Struct) (*domain.TransactionRecord, error) {
	fields := s.GetFields()

	id, err := uuid.Parse(fields["id"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("failed to parse id: %w", err)
	}
	amount, err := decimal.NewFromString(fields["amount"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}
	timestamp, err := time.Parse(time.RFC3339Nano, fields["timestamp"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp: %w", err)
	}

	record := &domain.TransactionRecord{ID: id, Amount: amount, Timestamp: timestamp}
	if v, ok := fields["category"]; ok {
		category := domain.Category(v.GetStringValue())
		record.Category = &category
	}
	return record, nil
}

// rateFromStruct returns nil for {available: false}
func rateFromStruct(s *structpb.Struct) (*domain.PriceSample, error) {
	fields := s.GetFields()
	if !fields["available"].GetBoolValue() {
		return nil, nil
	}

	rate, err := decimal.NewFromString(fields["rate"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("failed to parse rate: %w", err)
	}
	observedAt, err := time.Parse(time.RFC3339Nano, fields["observed_at"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("failed to parse observed_at: %w", err)
	}
	return &domain.PriceSample{RateUSD: rate, ObservedAt: observedAt}, nil
}
