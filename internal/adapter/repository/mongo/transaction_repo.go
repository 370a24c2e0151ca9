package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/matviysuk/btcwallet-backend/internal/domain"
)

type transactionModel struct {
	ID        string          `bson:"_id"`
	Seq       int64           `bson:"seq"`
	Amount    bson.Decimal128 `bson:"amount"`
	Category  *string         `bson:"category,omitempty"`
	Timestamp time.Time       `bson:"timestamp"`
}

type counterModel struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}

// transactionRepository implements domain.TransactionRepository
type transactionRepository struct {
	db *DB
}

// NewTransactionRepository creates a Mongo backed transaction repository
func NewTransactionRepository(db *DB) domain.TransactionRepository {
	return &transactionRepository{db: db}
}

// nextSeq allocates a monotonically increasing insertion number
func (r *transactionRepository) nextSeq(ctx context.Context) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter counterModel
	err := r.db.collection(colCounters).
		FindOneAndUpdate(ctx, bson.M{"_id": colTransactions}, bson.M{"$inc": bson.M{"seq": int64(1)}}, opts).
		Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate sequence: %w", err)
	}
	return counter.Seq, nil
}

// Create inserts a single ledger record
func (r *transactionRepository) Create(ctx context.Context, record *domain.TransactionRecord) error {
	amount, err := bson.ParseDecimal128(record.Amount.String())
	if err != nil {
		return fmt.Errorf("failed to encode amount: %w", err)
	}

	seq, err := r.nextSeq(ctx)
	if err != nil {
		return err
	}

	m := transactionModel{
		ID:        record.ID.String(),
		Seq:       seq,
		Amount:    amount,
		Timestamp: record.Timestamp.UTC(),
	}
	if record.Category != nil {
		c := string(*record.Category)
		m.Category = &c
	}

	if _, err := r.db.collection(colTransactions).InsertOne(ctx, m); err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// List retrieves a window of records, newest first
func (r *transactionRepository) List(ctx context.Context, limit, offset int) ([]*domain.TransactionRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "seq", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.db.collection(colTransactions).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var models []transactionModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("failed to decode transactions: %w", err)
	}

	records := make([]*domain.TransactionRecord, 0, len(models))
	for i := range models {
		rec, err := fromTransactionModel(&models[i])
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Sum aggregates all amounts server side
func (r *transactionRepository) Sum(ctx context.Context) (decimal.Decimal, error) {
	pipeline := bson.A{
		bson.M{
			"$group": bson.M{
				"_id":   nil,
				"total": bson.M{"$sum": "$amount"},
			},
		},
	}

	cursor, err := r.db.collection(colTransactions).Aggregate(ctx, pipeline)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Total bson.Decimal128 `bson:"total"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode sum: %w", err)
	}

	if len(results) == 0 {
		return decimal.Zero, nil
	}

	sum, err := decimal.NewFromString(results[0].Total.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse sum: %w", err)
	}
	return sum, nil
}

// Count returns the number of stored records
func (r *transactionRepository) Count(ctx context.Context) (int, error) {
	n, err := r.db.collection(colTransactions).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return int(n), nil
}

func fromTransactionModel(m *transactionModel) (*domain.TransactionRecord, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transaction id: %w", err)
	}

	amount, err := decimal.NewFromString(m.Amount.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}

	rec := &domain.TransactionRecord{
		ID:        id,
		Amount:    amount,
		Timestamp: m.Timestamp.UTC(),
	}
	if m.Category != nil {
		c := domain.Category(*m.Category)
		rec.Category = &c
	}
	return rec, nil
}
