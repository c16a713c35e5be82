// Package memory provides an in-memory Store implementation for tests and
// single-process relays that do not need durability.
package memory

import (
	"context"
	"iter"
	"slices"
	"sync"

	relay "github.com/xraph/nostr-relay"
	"github.com/xraph/nostr-relay/event"
	"github.com/xraph/nostr-relay/filter"
	relaystore "github.com/xraph/nostr-relay/store"
)

// compile-time interface check.
var _ relaystore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	byID   map[string]*event.Event // keyed by event id
	sorted []*event.Event          // newest first

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		byID: make(map[string]*event.Event),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is still open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return relay.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Events
// ──────────────────────────────────────────────────

// InsertIfAbsent stores a copy of evt keyed by its id.
func (s *Store) InsertIfAbsent(_ context.Context, evt *event.Event) (relaystore.InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, relay.ErrStoreClosed
	}
	if _, ok := s.byID[evt.ID]; ok {
		return relaystore.Duplicate, nil
	}

	cp := copyEvent(evt)
	s.byID[cp.ID] = cp
	i, _ := slices.BinarySearchFunc(s.sorted, cp, relaystore.Newer)
	s.sorted = slices.Insert(s.sorted, i, cp)
	return relaystore.Inserted, nil
}

// Query scans events newest first for each filter.
func (s *Store) Query(ctx context.Context, filters []filter.Filter, limit int) iter.Seq2[*event.Event, error] {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return relaystore.Fail(relay.ErrStoreClosed)
	}
	results := make([][]*event.Event, len(filters))
	for i := range filters {
		f := &filters[i]
		n := relaystore.FilterLimit(f, limit)
		for _, e := range s.sorted {
			if n >= 0 && len(results[i]) >= n {
				break
			}
			if filter.Matches(e, f) {
				results[i] = append(results[i], e)
			}
		}
	}
	s.mu.RUnlock()

	return relaystore.Seq(ctx, relaystore.Merge(results, limit))
}

// Count returns the number of stored events matching any filter.
func (s *Store) Count(_ context.Context, filters []filter.Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, relay.ErrStoreClosed
	}
	var n int64
	for _, e := range s.sorted {
		if filter.MatchesAny(e, filters) {
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sorted)
}

func copyEvent(e *event.Event) *event.Event {
	cp := *e
	cp.Tags = make(event.Tags, len(e.Tags))
	for i, t := range e.Tags {
		cp.Tags[i] = slices.Clone(t)
	}
	return &cp
}
