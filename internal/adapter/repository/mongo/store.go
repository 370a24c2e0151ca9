package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection name constants.
const (
	colTransactions = "ledger_transactions"
	colCounters     = "ledger_counters"
	colRateCache    = "rate_cache"
)

// DB wraps a connected client and the selected database
type DB struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect opens a client for uri and verifies it with a ping
func Connect(ctx context.Context, uri, database string) (*DB, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return &DB{client: client, db: client.Database(database)}, nil
}

// Migrate creates the indexes backing the ledger ordering
func (d *DB) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := d.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", col, err)
		}
	}
	return nil
}

// Close disconnects the client
func (d *DB) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}

// Drop removes the whole database; used by tests
func (d *DB) Drop(ctx context.Context) error {
	return d.db.Drop(ctx)
}

func (d *DB) collection(name string) *mongo.Collection {
	return d.db.Collection(name)
}

func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colTransactions: {
			{Keys: bson.D{{Key: "timestamp", Value: -1}, {Key: "seq", Value: -1}}},
			{
				Keys:    bson.D{{Key: "seq", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
