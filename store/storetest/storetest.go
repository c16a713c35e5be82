// Package storetest is a conformance suite run against every store
// backend.
package storetest

import (
	"context"
	"slices"
	"testing"

	"github.com/xraph/nostr-relay/event"
	"github.com/xraph/nostr-relay/filter"
	"github.com/xraph/nostr-relay/internal/nostrtest"
	"github.com/xraph/nostr-relay/store"
)

// Opener returns a fresh, migrated, empty store. The suite closes it.
type Opener func(t *testing.T) store.Store

func ctx() context.Context { return context.Background() }

// Run runs every conformance test against stores produced by open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(*testing.T, store.Store)
	}{
		{"InsertIfAbsentDedups", testInsertDedup},
		{"RoundTripsFields", testRoundTrip},
		{"QueryNewestFirst", testNewestFirst},
		{"QueryFilters", testQueryFilters},
		{"QueryLimits", testQueryLimits},
		{"QueryUnionDedups", testUnion},
		{"QueryStopsEarly", testStopEarly},
		{"Count", testCount},
		{"Ping", testPing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func insert(t *testing.T, s store.Store, evts ...*event.Event) {
	t.Helper()
	for _, e := range evts {
		res, err := s.InsertIfAbsent(ctx(), e)
		if err != nil {
			t.Fatalf("InsertIfAbsent: %v", err)
		}
		if res != store.Inserted {
			t.Fatalf("InsertIfAbsent(%s) = %v, want inserted", e.ID, res)
		}
	}
}

func query(t *testing.T, s store.Store, limit int, filters ...filter.Filter) []*event.Event {
	t.Helper()
	out, err := store.Collect(s.Query(ctx(), filters, limit))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	return out
}

func ids(evts []*event.Event) []string {
	out := make([]string, len(evts))
	for i, e := range evts {
		out[i] = e.ID
	}
	return out
}

func ptr[T any](v T) *T { return &v }

func testInsertDedup(t *testing.T, s store.Store) {
	e := nostrtest.Signed(t, nostrtest.Signer(t), 1, 100, "once")
	insert(t, s, e)

	res, err := s.InsertIfAbsent(ctx(), e)
	if err != nil {
		t.Fatal(err)
	}
	if res != store.Duplicate {
		t.Fatalf("second insert = %v, want duplicate", res)
	}

	if got := query(t, s, 10, filter.Filter{}); len(got) != 1 {
		t.Fatalf("stored %d events, want 1", len(got))
	}
}

func testRoundTrip(t *testing.T, s store.Store) {
	e := nostrtest.Signed(t, nostrtest.Signer(t), 30023, 12345, "héllo \"world\"\n",
		event.Tag{"d", "slug"}, event.Tag{"p", "ab", "wss://x"}, event.Tag{"t"})
	insert(t, s, e)

	got := query(t, s, 10, filter.Filter{IDs: []string{e.ID}})
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	g := got[0]
	if g.ID != e.ID || g.PubKey != e.PubKey || g.Sig != e.Sig || g.CreatedAt != e.CreatedAt ||
		g.Kind != e.Kind || g.Content != e.Content {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", g, e)
	}
	if len(g.Tags) != 3 || !slices.Equal(g.Tags[1], e.Tags[1]) || len(g.Tags[2]) != 1 {
		t.Fatalf("tags = %v, want %v", g.Tags, e.Tags)
	}
	if event.ComputeID(g) != e.ID {
		t.Fatal("stored event no longer hashes to its id")
	}
}

func testNewestFirst(t *testing.T, s store.Store) {
	sk := nostrtest.Signer(t)
	a := nostrtest.Signed(t, sk, 1, 100, "a")
	b := nostrtest.Signed(t, sk, 1, 300, "b")
	c := nostrtest.Signed(t, sk, 1, 200, "c")
	d := nostrtest.Signed(t, sk, 1, 200, "d")
	insert(t, s, a, b, c, d)

	got := ids(query(t, s, 10, filter.Filter{}))
	mid := []string{c.ID, d.ID}
	slices.Sort(mid)
	want := []string{b.ID, mid[0], mid[1], a.ID}
	if !slices.Equal(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func testQueryFilters(t *testing.T, s store.Store) {
	alice := nostrtest.Signer(t)
	bob := nostrtest.Signer(t)

	note := nostrtest.Signed(t, alice, 1, 100, "note", event.Tag{"t", "go"})
	reaction := nostrtest.Signed(t, alice, 7, 200, "+", event.Tag{"e", "ff"})
	other := nostrtest.Signed(t, bob, 1, 300, "bob", event.Tag{"t", "rust"})
	insert(t, s, note, reaction, other)

	tests := []struct {
		name string
		f    filter.Filter
		want []string
	}{
		{"all", filter.Filter{}, []string{other.ID, reaction.ID, note.ID}},
		{"kind", filter.Filter{Kinds: []int{1}}, []string{other.ID, note.ID}},
		{"author", filter.Filter{Authors: []string{alice.PublicKey()}}, []string{reaction.ID, note.ID}},
		{"author prefix", filter.Filter{Authors: []string{bob.PublicKey()[:8]}}, []string{other.ID}},
		{"id", filter.Filter{IDs: []string{reaction.ID}}, []string{reaction.ID}},
		{"tag", filter.Filter{Tags: map[string][]string{"t": {"go", "zig"}}}, []string{note.ID}},
		{"since", filter.Filter{Since: ptr[int64](200)}, []string{other.ID, reaction.ID}},
		{"until", filter.Filter{Until: ptr[int64](200)}, []string{reaction.ID, note.ID}},
		{"window", filter.Filter{Since: ptr[int64](150), Until: ptr[int64](250)}, []string{reaction.ID}},
		{"and", filter.Filter{Kinds: []int{1}, Authors: []string{alice.PublicKey()}}, []string{note.ID}},
		{"empty set", filter.Filter{Kinds: []int{}}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(query(t, s, 10, tt.f))
			if !slices.Equal(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func testQueryLimits(t *testing.T, s store.Store) {
	sk := nostrtest.Signer(t)
	var all []*event.Event
	for i := range 5 {
		e := nostrtest.Signed(t, sk, 1, int64(100+i), "n")
		all = append(all, e)
	}
	insert(t, s, all...)

	if got := query(t, s, 3, filter.Filter{}); len(got) != 3 || got[0].ID != all[4].ID {
		t.Fatalf("overall limit: got %v", ids(got))
	}
	if got := query(t, s, 10, filter.Filter{Limit: ptr(2)}); len(got) != 2 || got[1].ID != all[3].ID {
		t.Fatalf("filter limit: got %v", ids(got))
	}
	if got := query(t, s, 2, filter.Filter{Limit: ptr(4)}); len(got) != 2 {
		t.Fatalf("filter limit capped by overall: got %d", len(got))
	}
	if got := query(t, s, 10, filter.Filter{Limit: ptr(0)}); len(got) != 0 {
		t.Fatalf("zero limit: got %d", len(got))
	}
}

func testUnion(t *testing.T, s store.Store) {
	sk := nostrtest.Signer(t)
	a := nostrtest.Signed(t, sk, 1, 100, "a")
	b := nostrtest.Signed(t, sk, 7, 200, "b")
	insert(t, s, a, b)

	got := ids(query(t, s, 10,
		filter.Filter{Kinds: []int{1}},
		filter.Filter{Authors: []string{sk.PublicKey()}},
	))
	if !slices.Equal(got, []string{b.ID, a.ID}) {
		t.Fatalf("union = %v", got)
	}
}

func testStopEarly(t *testing.T, s store.Store) {
	sk := nostrtest.Signer(t)
	for i := range 3 {
		insert(t, s, nostrtest.Signed(t, sk, 1, int64(100+i), "x"))
	}

	n := 0
	for _, err := range s.Query(ctx(), []filter.Filter{{}}, 10) {
		if err != nil {
			t.Fatal(err)
		}
		n++
		break
	}
	if n != 1 {
		t.Fatalf("consumed %d, want 1", n)
	}
}

func testCount(t *testing.T, s store.Store) {
	alice := nostrtest.Signer(t)
	bob := nostrtest.Signer(t)
	insert(t, s,
		nostrtest.Signed(t, alice, 1, 100, "a"),
		nostrtest.Signed(t, alice, 7, 200, "b"),
		nostrtest.Signed(t, bob, 1, 300, "c"),
	)

	tests := []struct {
		name    string
		filters []filter.Filter
		want    int64
	}{
		{"all", []filter.Filter{{}}, 3},
		{"kind", []filter.Filter{{Kinds: []int{1}}}, 2},
		{"union", []filter.Filter{{Kinds: []int{7}}, {Authors: []string{bob.PublicKey()}}}, 2},
		{"overlap counted once", []filter.Filter{{Kinds: []int{1}}, {Authors: []string{alice.PublicKey()}}}, 3},
		{"none", []filter.Filter{{Kinds: []int{9}}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Count(ctx(), tt.filters)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("Count() = %d, want %d", got, tt.want)
			}
		})
	}
}

func testPing(t *testing.T, s store.Store) {
	if err := s.Ping(ctx()); err != nil {
		t.Fatalf("Ping() = %v", err)
	}
}
