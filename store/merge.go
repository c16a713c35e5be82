package store

import (
	"context"
	"iter"
	"slices"

	"github.com/xraph/nostr-relay/event"
	"github.com/xraph/nostr-relay/filter"
)

// Newer orders events newest first with id ascending on equal timestamps.
// It is a comparison function for slices.SortFunc.
func Newer(a, b *event.Event) int {
	switch {
	case a.CreatedAt > b.CreatedAt:
		return -1
	case a.CreatedAt < b.CreatedAt:
		return 1
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	default:
		return 0
	}
}

// FilterLimit is the number of events a backend should fetch for f when
// the overall query limit is limit. A negative result means unbounded.
func FilterLimit(f *filter.Filter, limit int) int {
	switch {
	case f.Limit != nil && limit > 0 && *f.Limit > limit:
		return limit
	case f.Limit != nil:
		return max(*f.Limit, 0)
	case limit > 0:
		return limit
	default:
		return -1
	}
}

// Merge combines per-filter results into one newest-first list without
// duplicates, truncated to limit when limit is positive.
func Merge(results [][]*event.Event, limit int) []*event.Event {
	seen := make(map[string]struct{})
	var out []*event.Event
	for _, rs := range results {
		for _, e := range rs {
			if _, ok := seen[e.ID]; ok {
				continue
			}
			seen[e.ID] = struct{}{}
			out = append(out, e)
		}
	}
	slices.SortFunc(out, Newer)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Seq adapts a slice to the Query result type, checking ctx between
// events.
func Seq(ctx context.Context, events []*event.Event) iter.Seq2[*event.Event, error] {
	return func(yield func(*event.Event, error) bool) {
		for _, e := range events {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// Fail returns a sequence that yields err once.
func Fail(err error) iter.Seq2[*event.Event, error] {
	return func(yield func(*event.Event, error) bool) {
		yield(nil, err)
	}
}

// Collect drains a Query result into a slice.
func Collect(seq iter.Seq2[*event.Event, error]) ([]*event.Event, error) {
	var out []*event.Event
	for e, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, nil
}
