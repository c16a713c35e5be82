package memory

import (
	"context"
	"errors"
	"testing"

	relay "github.com/xraph/nostr-relay"
	"github.com/xraph/nostr-relay/event"
	"github.com/xraph/nostr-relay/filter"
	"github.com/xraph/nostr-relay/store"
	"github.com/xraph/nostr-relay/store/storetest"
)

func ctx() context.Context { return context.Background() }

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return New() })
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	s := New()

	if err := s.Migrate(ctx()); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); !errors.Is(err, relay.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
	if _, err := s.InsertIfAbsent(ctx(), &event.Event{ID: "x"}); !errors.Is(err, relay.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
	if _, err := store.Collect(s.Query(ctx(), []filter.Filter{{}}, 10)); !errors.Is(err, relay.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
}

func TestStoredCopyIsIsolated(t *testing.T) {
	s := New()
	evt := &event.Event{ID: "aa", Tags: event.Tags{{"t", "x"}}}
	if _, err := s.InsertIfAbsent(ctx(), evt); err != nil {
		t.Fatal(err)
	}
	evt.Tags[0][1] = "mutated"

	got, err := store.Collect(s.Query(ctx(), []filter.Filter{{}}, 1))
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Tags[0][1] != "x" {
		t.Fatal("store shares tag slices with caller")
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
}
