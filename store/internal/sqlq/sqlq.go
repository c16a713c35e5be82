// Package sqlq renders nostr filters as WHERE conditions for the grove
// query builders used by the SQL event stores.
package sqlq

import (
	"maps"
	"slices"
	"strings"

	"github.com/xraph/nostr-relay/event"
	"github.com/xraph/nostr-relay/filter"
)

const fullHexLen = 64

type builder struct {
	sb   strings.Builder
	args []any
}

func (b *builder) str(s string) { b.sb.WriteString(s) }

func (b *builder) arg(v any) {
	b.args = append(b.args, v)
	b.sb.WriteString("?")
}

func (b *builder) list(vals []any) {
	b.str("(")
	for i, v := range vals {
		if i > 0 {
			b.str(",")
		}
		b.arg(v)
	}
	b.str(")")
}

// Matchable reports whether f can match anything. A present empty set
// matches nothing.
func Matchable(f *filter.Filter) bool {
	if (f.IDs != nil && len(f.IDs) == 0) ||
		(f.Authors != nil && len(f.Authors) == 0) ||
		(f.Kinds != nil && len(f.Kinds) == 0) {
		return false
	}
	for _, vals := range f.Tags {
		if len(vals) == 0 {
			return false
		}
	}
	return true
}

// Clause renders f as one parenthesized condition over relay_events
// aliased e and relay_event_tags, with "?" parameters. Both the sqlite and
// pg builders accept "?" in Where. It reports false when f is not
// Matchable.
func Clause(f *filter.Filter) (string, []any, bool) {
	if !Matchable(f) {
		return "", nil, false
	}

	var b builder
	b.str("(1=1")
	if f.IDs != nil {
		b.str(" AND ")
		b.hexSet("e.id", f.IDs)
	}
	if f.Authors != nil {
		b.str(" AND ")
		b.hexSet("e.pubkey", f.Authors)
	}
	if f.Kinds != nil {
		b.str(" AND e.kind IN ")
		b.list(anys(f.Kinds))
	}
	for _, name := range slices.Sorted(maps.Keys(f.Tags)) {
		b.str(" AND EXISTS (SELECT 1 FROM relay_event_tags t WHERE t.event_id = e.id AND t.name = ")
		b.arg(name)
		b.str(" AND t.value IN ")
		b.list(anys(f.Tags[name]))
		b.str(")")
	}
	if f.Since != nil {
		b.str(" AND e.created_at >= ")
		b.arg(*f.Since)
	}
	if f.Until != nil {
		b.str(" AND e.created_at <= ")
		b.arg(*f.Until)
	}
	b.str(")")
	return b.sb.String(), b.args, true
}

// hexSet matches full values by equality and shorter ones as prefixes.
func (b *builder) hexSet(col string, vals []string) {
	b.str("(")
	for i, v := range vals {
		if i > 0 {
			b.str(" OR ")
		}
		if len(v) == fullHexLen {
			b.str(col + " = ")
			b.arg(v)
		} else {
			b.str(col + " LIKE ")
			b.arg(escapeLike(v) + "%")
		}
	}
	b.str(")")
}

// IndexedTags returns the (name, value) pairs stored in relay_event_tags:
// single-letter tags with at least one value.
func IndexedTags(evt *event.Event) [][2]string {
	var out [][2]string
	for _, t := range evt.Tags {
		if len(t) >= 2 && len(t[0]) == 1 {
			out = append(out, [2]string{t[0], t[1]})
		}
	}
	return out
}

func anys[T any](vals []T) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`%`, ``, `_`, ``)
	return r.Replace(s)
}
