package mongo

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"regexp"
	"slices"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	relay "github.com/xraph/nostr-relay"
	"github.com/xraph/nostr-relay/event"
	"github.com/xraph/nostr-relay/filter"
	relaystore "github.com/xraph/nostr-relay/store"
)

const hexIDLen = 64

var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}

// InsertIfAbsent inserts the document; the _id unique index dedups.
func (s *Store) InsertIfAbsent(ctx context.Context, evt *event.Event) (relaystore.InsertResult, error) {
	if s.closed.Load() {
		return 0, relay.ErrStoreClosed
	}
	if _, err := s.mdb.NewInsert(toEventModel(evt)).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return relaystore.Duplicate, nil
		}
		return 0, fmt.Errorf("relay/mongo: insert event: %w", mapErr(err))
	}
	return relaystore.Inserted, nil
}

// Query runs one sorted, limited find per filter.
func (s *Store) Query(ctx context.Context, filters []filter.Filter, limit int) iter.Seq2[*event.Event, error] {
	if s.closed.Load() {
		return relaystore.Fail(relay.ErrStoreClosed)
	}

	results := make([][]*event.Event, 0, len(filters))
	for i := range filters {
		f := &filters[i]
		n := relaystore.FilterLimit(f, limit)
		doc, ok := buildFilter(f)
		if n == 0 || !ok {
			continue
		}
		var models []eventModel
		q := s.mdb.NewFind(&models).Filter(doc).Sort(newestFirst)
		if n > 0 {
			q = q.Limit(int64(n))
		}
		if err := q.Scan(ctx); err != nil {
			return relaystore.Fail(fmt.Errorf("relay/mongo: find: %w", mapErr(err)))
		}
		evts := make([]*event.Event, len(models))
		for j := range models {
			evts[j] = fromEventModel(&models[j])
		}
		results = append(results, evts)
	}
	return relaystore.Seq(ctx, relaystore.Merge(results, limit))
}

// Count counts documents matching any filter.
func (s *Store) Count(ctx context.Context, filters []filter.Filter) (int64, error) {
	if s.closed.Load() {
		return 0, relay.ErrStoreClosed
	}
	var or bson.A
	for i := range filters {
		if doc, ok := buildFilter(&filters[i]); ok {
			or = append(or, doc)
		}
	}
	if len(or) == 0 {
		return 0, nil
	}
	n, err := s.mdb.NewFind((*eventModel)(nil)).Filter(bson.M{"$or": or}).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("relay/mongo: count: %w", mapErr(err))
	}
	return n, nil
}

// buildFilter translates f into a query document. It reports false when
// f has a present empty set and so matches nothing.
func buildFilter(f *filter.Filter) (bson.M, bool) {
	var and bson.A
	if f.IDs != nil {
		if len(f.IDs) == 0 {
			return nil, false
		}
		and = append(and, hexSet("_id", f.IDs))
	}
	if f.Authors != nil {
		if len(f.Authors) == 0 {
			return nil, false
		}
		and = append(and, hexSet("pubkey", f.Authors))
	}
	if f.Kinds != nil {
		if len(f.Kinds) == 0 {
			return nil, false
		}
		and = append(and, bson.M{"kind": bson.M{"$in": f.Kinds}})
	}
	for _, name := range slices.Sorted(maps.Keys(f.Tags)) {
		vals := f.Tags[name]
		if len(vals) == 0 {
			return nil, false
		}
		idx := make([]string, len(vals))
		for i, v := range vals {
			idx[i] = tagIndexValue(name, v)
		}
		and = append(and, bson.M{"tag_index": bson.M{"$in": idx}})
	}
	if f.Since != nil || f.Until != nil {
		rng := bson.M{}
		if f.Since != nil {
			rng["$gte"] = *f.Since
		}
		if f.Until != nil {
			rng["$lte"] = *f.Until
		}
		and = append(and, bson.M{"created_at": rng})
	}

	if len(and) == 0 {
		return bson.M{}, true
	}
	return bson.M{"$and": and}, true
}

// hexSet matches full values exactly and shorter ones as anchored prefixes.
func hexSet(field string, vals []string) bson.M {
	var exact []string
	var or bson.A
	for _, v := range vals {
		if len(v) == hexIDLen {
			exact = append(exact, v)
			continue
		}
		or = append(or, bson.M{field: bson.Regex{Pattern: "^" + regexp.QuoteMeta(v)}})
	}
	if len(exact) > 0 {
		or = append(or, bson.M{field: bson.M{"$in": exact}})
	}
	if len(or) == 1 {
		return or[0].(bson.M)
	}
	return bson.M{"$or": or}
}
