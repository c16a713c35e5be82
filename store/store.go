// Package store defines the event persistence contract used by the relay
// and helpers shared by its backends.
//
// Backends live in subpackages: memory, leveldb, sqlite, postgres, redis
// and mongo. Each dedups by event id and answers queries newest first.
package store

import (
	"context"
	"iter"

	"github.com/xraph/nostr-relay/event"
	"github.com/xraph/nostr-relay/filter"
)

// InsertResult reports whether InsertIfAbsent stored a new event.
type InsertResult int

const (
	// Inserted means the event was new and is now durable.
	Inserted InsertResult = iota
	// Duplicate means an event with the same id was already stored.
	Duplicate
)

func (r InsertResult) String() string {
	if r == Duplicate {
		return "duplicate"
	}
	return "inserted"
}

// Store is the persistence interface for nostr events.
type Store interface {
	// InsertIfAbsent stores evt unless an event with the same id exists.
	// It must be durable before returning Inserted.
	InsertIfAbsent(ctx context.Context, evt *event.Event) (InsertResult, error)

	// Query yields events matching any of filters, newest first
	// (created_at descending, id ascending on ties), each event at most
	// once. A filter's own limit caps its contribution; a positive limit
	// caps the total. The sequence stops early when the consumer stops or ctx ends.
	Query(ctx context.Context, filters []filter.Filter, limit int) iter.Seq2[*event.Event, error]

	// Count returns how many stored events match any of filters.
	Count(ctx context.Context, filters []filter.Filter) (int64, error)

	// Migrate creates or upgrades the backing schema.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
