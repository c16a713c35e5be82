package sqlq

import (
	"testing"

	"github.com/xraph/nostr-relay/event"
	"github.com/xraph/nostr-relay/filter"
)

func TestClause(t *testing.T) {
	since := int64(10)
	full := "ab00000000000000000000000000000000000000000000000000000000000000"
	f := filter.Filter{
		IDs:   []string{full, "cd"},
		Kinds: []int{1, 7},
		Tags:  map[string][]string{"p": {"x"}, "e": {"y", "z"}},
		Since: &since,
	}

	got, args, ok := Clause(&f)
	if !ok {
		t.Fatal("Clause() = false")
	}
	want := `(1=1 AND (e.id = ? OR e.id LIKE ?) AND e.kind IN (?,?)` +
		` AND EXISTS (SELECT 1 FROM relay_event_tags t WHERE t.event_id = e.id AND t.name = ? AND t.value IN (?,?))` +
		` AND EXISTS (SELECT 1 FROM relay_event_tags t WHERE t.event_id = e.id AND t.name = ? AND t.value IN (?))` +
		` AND e.created_at >= ?)`
	if got != want {
		t.Fatalf("Clause() =\n%s\nwant\n%s", got, want)
	}
	if len(args) != 10 || args[1] != "cd%" || args[2] != 1 || args[4] != "e" || args[9] != int64(10) {
		t.Fatalf("args = %v", args)
	}
}

func TestClauseEmptySet(t *testing.T) {
	for _, f := range []filter.Filter{
		{IDs: []string{}},
		{Authors: []string{}},
		{Kinds: []int{}},
		{Tags: map[string][]string{"e": {}}},
	} {
		if s, args, ok := Clause(&f); ok || s != "" || args != nil {
			t.Fatalf("Clause(%+v) = %q, %v, %v", f, s, args, ok)
		}
	}
}

func TestClauseEmptyFilter(t *testing.T) {
	if s, args, ok := Clause(&filter.Filter{}); !ok || s != "(1=1)" || len(args) != 0 {
		t.Fatalf("Clause() = %q, %v", s, args)
	}
}

func TestClauseLikeEscapes(t *testing.T) {
	_, args, _ := Clause(&filter.Filter{Authors: []string{"a_%b"}})
	if args[0] != "ab%" {
		t.Fatalf("pattern = %v", args[0])
	}
}

func TestIndexedTags(t *testing.T) {
	evt := &event.Event{Tags: event.Tags{{"e", "1"}, {"t"}, {"long", "x"}, {"p", "2", "hint"}}}
	got := IndexedTags(evt)
	if len(got) != 2 || got[0] != [2]string{"e", "1"} || got[1] != [2]string{"p", "2"} {
		t.Fatalf("IndexedTags() = %v", got)
	}
}
