package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/grove/kv"

	relay "github.com/xraph/nostr-relay"
	"github.com/xraph/nostr-relay/event"
	"github.com/xraph/nostr-relay/filter"
	relaystore "github.com/xraph/nostr-relay/store"
)

const (
	hexIDLen = 64
	pageSize = 256
)

// InsertIfAbsent claims the event key with a KV SET NX, then adds the index
// entries in one MULTI/EXEC.
func (s *Store) InsertIfAbsent(ctx context.Context, evt *event.Event) (relaystore.InsertResult, error) {
	if s.closed.Load() {
		return 0, relay.ErrStoreClosed
	}

	err := s.kv.SetRaw(ctx, eventKey(evt.ID), event.Encode(evt), kv.WithNX())
	if errors.Is(err, kv.ErrConflict) {
		return relaystore.Duplicate, nil
	}
	if err != nil {
		return 0, fmt.Errorf("relay/redis: insert event: %w", mapErr(err))
	}

	z := goredis.Z{Score: float64(evt.CreatedAt), Member: evt.ID}
	pipe := s.rdb.TxPipeline()
	pipe.ZAdd(ctx, zAll, z)
	pipe.ZAdd(ctx, authorKey(evt.PubKey), z)
	pipe.ZAdd(ctx, kindKey(evt.Kind), z)
	for _, t := range evt.Tags {
		if len(t) >= 2 && len(t[0]) == 1 {
			pipe.ZAdd(ctx, tagKey(t[0], t[1]), z)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		// Leave no unindexed event behind so a retry can insert again.
		_ = s.kv.Delete(context.WithoutCancel(ctx), eventKey(evt.ID))
		return 0, fmt.Errorf("relay/redis: index event: %w", mapErr(err))
	}
	return relaystore.Inserted, nil
}

// Query scans the narrowest index of each filter.
func (s *Store) Query(ctx context.Context, filters []filter.Filter, limit int) iter.Seq2[*event.Event, error] {
	if s.closed.Load() {
		return relaystore.Fail(relay.ErrStoreClosed)
	}

	results := make([][]*event.Event, 0, len(filters))
	for i := range filters {
		f := &filters[i]
		n := relaystore.FilterLimit(f, limit)
		if n == 0 {
			continue
		}
		evts, err := s.queryFilter(ctx, f, n)
		if err != nil {
			return relaystore.Fail(err)
		}
		results = append(results, evts)
	}
	return relaystore.Seq(ctx, relaystore.Merge(results, limit))
}

// Count counts the distinct events matching any filter.
func (s *Store) Count(ctx context.Context, filters []filter.Filter) (int64, error) {
	if s.closed.Load() {
		return 0, relay.ErrStoreClosed
	}

	seen := make(map[string]struct{})
	for i := range filters {
		evts, err := s.queryFilter(ctx, &filters[i], -1)
		if err != nil {
			return 0, err
		}
		for _, e := range evts {
			seen[e.ID] = struct{}{}
		}
	}
	return int64(len(seen)), nil
}

// queryFilter returns up to n events matching f, newest first. A negative
// n means unbounded.
func (s *Store) queryFilter(ctx context.Context, f *filter.Filter, n int) ([]*event.Event, error) {
	if ids, ok := exactIDs(f); ok {
		evts, err := s.load(ctx, ids)
		if err != nil {
			return nil, err
		}
		return keep(evts, f, n), nil
	}

	var out []*event.Event
	seen := make(map[string]struct{})
	for _, key := range indexKeys(f) {
		evts, err := s.scan(ctx, key, f, n)
		if err != nil {
			return nil, err
		}
		for _, e := range evts {
			if _, ok := seen[e.ID]; !ok {
				seen[e.ID] = struct{}{}
				out = append(out, e)
			}
		}
	}
	slices.SortFunc(out, relaystore.Newer)
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// scan pages through one sorted set newest first, keeping matches until
// n are found and the timestamp moves past the n-th match.
func (s *Store) scan(ctx context.Context, key string, f *filter.Filter, n int) ([]*event.Event, error) {
	rng := &goredis.ZRangeBy{Min: "-inf", Max: "+inf", Count: pageSize}
	if f.Since != nil {
		rng.Min = strconv.FormatInt(*f.Since, 10)
	}
	if f.Until != nil {
		rng.Max = strconv.FormatInt(*f.Until, 10)
	}

	var out []*event.Event
	for {
		ids, err := s.rdb.ZRevRangeByScore(ctx, key, rng).Result()
		if err != nil {
			return nil, fmt.Errorf("relay/redis: scan %s: %w", key, mapErr(err))
		}
		evts, err := s.load(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, e := range evts {
			if n >= 0 && len(out) >= n && e.CreatedAt < out[n-1].CreatedAt {
				return out, nil
			}
			if filter.Matches(e, f) {
				out = append(out, e)
			}
		}
		if len(ids) < pageSize {
			return out, nil
		}
		rng.Offset += pageSize
	}
}

// load fetches events by id with MGET, skipping missing keys.
func (s *Store) load(ctx context.Context, ids []string) ([]*event.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = eventKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil && !isRedisNil(err) {
		return nil, fmt.Errorf("relay/redis: load events: %w", mapErr(err))
	}

	out := make([]*event.Event, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var evt event.Event
		if err := json.Unmarshal([]byte(raw), &evt); err != nil {
			return nil, fmt.Errorf("relay/redis: decode event: %w", err)
		}
		out = append(out, &evt)
	}
	return out, nil
}

// exactIDs reports the ids of f when every one is a full id.
func exactIDs(f *filter.Filter) ([]string, bool) {
	if f.IDs == nil {
		return nil, false
	}
	for _, id := range f.IDs {
		if len(id) != hexIDLen {
			return nil, false
		}
	}
	return f.IDs, true
}

// indexKeys picks the sorted sets to scan for f. Their union covers
// every event f can match.
func indexKeys(f *filter.Filter) []string {
	if f.Authors != nil && allFull(f.Authors) {
		keys := make([]string, len(f.Authors))
		for i, a := range f.Authors {
			keys[i] = authorKey(a)
		}
		return keys
	}
	for _, name := range sortedTagNames(f.Tags) {
		vals := f.Tags[name]
		keys := make([]string, len(vals))
		for i, v := range vals {
			keys[i] = tagKey(name, v)
		}
		return keys
	}
	if f.Kinds != nil {
		keys := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			keys[i] = kindKey(k)
		}
		return keys
	}
	return []string{zAll}
}

func allFull(vals []string) bool {
	for _, v := range vals {
		if len(v) != hexIDLen {
			return false
		}
	}
	return true
}

func sortedTagNames(tags map[string][]string) []string {
	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func keep(evts []*event.Event, f *filter.Filter, n int) []*event.Event {
	out := evts[:0]
	for _, e := range evts {
		if filter.Matches(e, f) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, relaystore.Newer)
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
