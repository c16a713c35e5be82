package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"

	relay "github.com/xraph/nostr-relay"
	"github.com/xraph/nostr-relay/event"
	"github.com/xraph/nostr-relay/filter"
	"github.com/xraph/nostr-relay/internal/nostrtest"
	"github.com/xraph/nostr-relay/store"
	"github.com/xraph/nostr-relay/store/storetest"
)

func ctx() context.Context { return context.Background() }

func open(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := Open(ctx(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatal(err)
	}
	return s, mr
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _ := open(t)
		return s
	})
}

func TestInsertWritesIndexes(t *testing.T) {
	s, mr := open(t)
	defer s.Close()

	evt := nostrtest.Signed(t, nostrtest.Signer(t), 7, 100, "x",
		event.Tag{"e", "abc"}, event.Tag{"alt", "skip"})
	if _, err := s.InsertIfAbsent(ctx(), evt); err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{zAll, authorKey(evt.PubKey), kindKey(7), tagKey("e", "abc")} {
		members, err := mr.ZMembers(key)
		if err != nil {
			t.Fatalf("%s: %v", key, err)
		}
		if len(members) != 1 || members[0] != evt.ID {
			t.Fatalf("%s members = %v", key, members)
		}
	}
	if mr.Exists(tagKey("alt", "skip")) {
		t.Fatal("multi-letter tag should not be indexed")
	}
	if !mr.Exists(eventKey(evt.ID)) {
		t.Fatal("event value not written through the kv store")
	}
}

func TestDuplicateKeepsFirstValue(t *testing.T) {
	s, mr := open(t)
	defer s.Close()

	evt := nostrtest.Signed(t, nostrtest.Signer(t), 1, 100, "first")
	if res, err := s.InsertIfAbsent(ctx(), evt); err != nil || res != store.Inserted {
		t.Fatalf("first insert = %v, %v", res, err)
	}
	before, _ := mr.Get(eventKey(evt.ID))

	if res, err := s.InsertIfAbsent(ctx(), evt); err != nil || res != store.Duplicate {
		t.Fatalf("second insert = %v, %v", res, err)
	}
	after, _ := mr.Get(eventKey(evt.ID))
	if before != after {
		t.Fatal("duplicate overwrote the stored event")
	}
}

func TestScanPagesPastPageSize(t *testing.T) {
	s, _ := open(t)
	defer s.Close()

	signer := nostrtest.Signer(t)
	for i := range pageSize + 10 {
		evt := nostrtest.Signed(t, signer, 1, int64(1000+i), "x")
		if _, err := s.InsertIfAbsent(ctx(), evt); err != nil {
			t.Fatal(err)
		}
	}
	// Kind 2 is absent so every candidate in the pages must be skipped.
	got, err := store.Collect(s.Query(ctx(), []filter.Filter{{Authors: []string{signer.PublicKey()}, Kinds: []int{2}}}, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d events, want 0", len(got))
	}

	n, err := s.Count(ctx(), []filter.Filter{{Kinds: []int{1}}})
	if err != nil {
		t.Fatal(err)
	}
	if n != pageSize+10 {
		t.Fatalf("count = %d, want %d", n, pageSize+10)
	}
}

func TestClosedStore(t *testing.T) {
	s, _ := open(t)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); !errors.Is(err, relay.ErrStoreClosed) {
		t.Fatalf("Ping() = %v, want ErrStoreClosed", err)
	}
	if _, err := s.InsertIfAbsent(ctx(), &event.Event{}); !errors.Is(err, relay.ErrStoreClosed) {
		t.Fatalf("InsertIfAbsent() = %v, want ErrStoreClosed", err)
	}
}
