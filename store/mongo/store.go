// Package mongo provides a Store on MongoDB via the grove mongodriver.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	relay "github.com/xraph/nostr-relay"
	relaystore "github.com/xraph/nostr-relay/store"
)

// Collection name constants.
const colEvents = "relay_events"

// Compile-time interface check.
var _ relaystore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db     *grove.DB
	mdb    *mongodriver.MongoDB
	closed atomic.Bool
}

// Open connects to uri and uses database dbName. An empty dbName takes
// the database from the URI path.
func Open(ctx context.Context, uri, dbName string) (*Store, error) {
	mdb := mongodriver.New()
	var opts []mongodriver.MongoOption
	if dbName != "" {
		opts = append(opts, mongodriver.WithDatabase(dbName))
	}
	if err := mdb.Open(ctx, uri, opts...); err != nil {
		return nil, fmt.Errorf("relay/mongo: connect: %w", err)
	}
	db, err := grove.Open(mdb)
	if err != nil {
		_ = mdb.Close()
		return nil, fmt.Errorf("relay/mongo: open: %w", err)
	}
	return New(db), nil
}

// New creates a new MongoDB store backed by Grove ORM. Close disconnects it.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the collection indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if s.closed.Load() {
		return relay.ErrStoreClosed
	}
	if _, err := s.mdb.Collection(colEvents).Indexes().CreateMany(ctx, migrationIndexes()); err != nil {
		return fmt.Errorf("%w: mongo: create indexes: %w", relay.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return relay.ErrStoreClosed
	}
	return mapErr(s.db.Ping(ctx))
}

// Close disconnects the client.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func mapErr(err error) error {
	if errors.Is(err, mongo.ErrClientDisconnected) || errors.Is(err, grove.ErrDriverClosed) {
		return relay.ErrStoreClosed
	}
	return err
}

// migrationIndexes returns the index definitions for relay_events.
func migrationIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "pubkey", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "tag_index", Value: 1}, {Key: "created_at", Value: -1}}},
	}
}
