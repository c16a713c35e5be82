// Package leveldb provides an embedded, durable Store backed by goleveldb.
//
// Key layout:
//
//	ev:<id>                        event JSON
//	ct:<inv ts><id>                all events, newest first
//	ak:<pubkey><inv ts><id>        by author
//	kd:<kind u32><inv ts><id>      by kind
//
// <inv ts> is ^created_at as 8 big-endian bytes so that a forward scan
// yields newest first; ids and pubkeys are lowercase hex, so equal
// timestamps order by id ascending.
package leveldb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	relay "github.com/xraph/nostr-relay"
	"github.com/xraph/nostr-relay/event"
	"github.com/xraph/nostr-relay/filter"
	relaystore "github.com/xraph/nostr-relay/store"
)

// compile-time interface check.
var _ relaystore.Store = (*Store)(nil)

const (
	prefixEvent  = "ev:"
	prefixTime   = "ct:"
	prefixAuthor = "ak:"
	prefixKind   = "kd:"

	hexIDLen = 64
)

// Store is a goleveldb-backed event store.
type Store struct {
	path string
	db   *leveldb.DB

	// serializes the has-then-write in InsertIfAbsent
	mx sync.Mutex
}

// Open opens or creates a database at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("leveldb: open %s: %w", path, err)
	}
	return &Store{path: path, db: db}, nil
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op: the key layout needs no schema.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping checks that the database is open.
func (s *Store) Ping(_ context.Context) error {
	if _, err := s.db.GetProperty("leveldb.stats"); err != nil {
		return mapErr(err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ──────────────────────────────────────────────────
// Events
// ──────────────────────────────────────────────────

// InsertIfAbsent writes the event and its index entries in one synced
// batch.
func (s *Store) InsertIfAbsent(_ context.Context, evt *event.Event) (relaystore.InsertResult, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	dataKey := []byte(prefixEvent + evt.ID)
	has, err := s.db.Has(dataKey, nil)
	if err != nil {
		return 0, mapErr(err)
	}
	if has {
		return relaystore.Duplicate, nil
	}

	b := new(leveldb.Batch)
	b.Put(dataKey, event.Encode(evt))
	inv := invTime(evt.CreatedAt)
	b.Put(indexKey(prefixTime, nil, inv, evt.ID), nil)
	b.Put(indexKey(prefixAuthor, []byte(evt.PubKey), inv, evt.ID), nil)
	b.Put(indexKey(prefixKind, kindBytes(evt.Kind), inv, evt.ID), nil)

	// batches are atomic, and durable when sync = true
	if err := s.db.Write(b, &opt.WriteOptions{Sync: true}); err != nil {
		return 0, mapErr(err)
	}
	return relaystore.Inserted, nil
}

// Query picks the narrowest index for each filter, scans it newest first,
// and re-checks every candidate with filter.Matches.
func (s *Store) Query(ctx context.Context, filters []filter.Filter, limit int) iter.Seq2[*event.Event, error] {
	results := make([][]*event.Event, len(filters))
	for i := range filters {
		evts, err := s.scanFilter(ctx, &filters[i], relaystore.FilterLimit(&filters[i], limit))
		if err != nil {
			return relaystore.Fail(err)
		}
		results[i] = evts
	}
	return relaystore.Seq(ctx, relaystore.Merge(results, limit))
}

// Count scans every filter without a limit and counts distinct ids.
func (s *Store) Count(ctx context.Context, filters []filter.Filter) (int64, error) {
	seen := make(map[string]struct{})
	for i := range filters {
		evts, err := s.scanFilter(ctx, &filters[i], -1)
		if err != nil {
			return 0, err
		}
		for _, e := range evts {
			seen[e.ID] = struct{}{}
		}
	}
	return int64(len(seen)), nil
}

func (s *Store) scanFilter(ctx context.Context, f *filter.Filter, n int) ([]*event.Event, error) {
	if n == 0 {
		return nil, nil
	}

	switch {
	case f.IDs != nil:
		return s.scanIDs(ctx, f, n)
	case f.Authors != nil && allFull(f.Authors):
		var groups [][]*event.Event
		for _, a := range f.Authors {
			evts, err := s.scanIndex(ctx, prefixAuthor, []byte(a), f, n)
			if err != nil {
				return nil, err
			}
			groups = append(groups, evts)
		}
		return relaystore.Merge(groups, n), nil
	case f.Kinds != nil:
		var groups [][]*event.Event
		for _, k := range f.Kinds {
			evts, err := s.scanIndex(ctx, prefixKind, kindBytes(k), f, n)
			if err != nil {
				return nil, err
			}
			groups = append(groups, evts)
		}
		return relaystore.Merge(groups, n), nil
	default:
		return s.scanIndex(ctx, prefixTime, nil, f, n)
	}
}

// scanIDs looks events up by id or id prefix.
func (s *Store) scanIDs(ctx context.Context, f *filter.Filter, n int) ([]*event.Event, error) {
	var out []*event.Event
	for _, p := range f.IDs {
		it := s.db.NewIterator(util.BytesPrefix([]byte(prefixEvent+p)), nil)
		for it.Next() {
			if err := ctx.Err(); err != nil {
				it.Release()
				return nil, err
			}
			evt, err := decode(it.Value())
			if err != nil {
				it.Release()
				return nil, err
			}
			if filter.Matches(evt, f) {
				out = append(out, evt)
			}
		}
		err := it.Error()
		it.Release()
		if err != nil {
			return nil, mapErr(err)
		}
	}
	return relaystore.Merge([][]*event.Event{out}, n), nil
}

// scanIndex walks one index range bounded by the filter's time window.
func (s *Store) scanIndex(ctx context.Context, prefix string, sub []byte, f *filter.Filter, n int) ([]*event.Event, error) {
	base := append([]byte(prefix), sub...)
	rng := util.BytesPrefix(base)
	if f.Until != nil {
		rng.Start = append(append([]byte{}, base...), invTime(*f.Until)...)
	}
	if f.Since != nil && *f.Since > 0 {
		// Past the last key carrying the since timestamp.
		rng.Limit = append(append([]byte{}, base...), invTime(*f.Since-1)...)
	}

	it := s.db.NewIterator(rng, nil)
	defer it.Release()

	var out []*event.Event
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := it.Key()
		if len(key) < hexIDLen {
			continue
		}
		id := key[len(key)-hexIDLen:]
		raw, err := s.db.Get(append([]byte(prefixEvent), id...), nil)
		if errors.Is(err, leveldb.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, mapErr(err)
		}
		evt, err := decode(raw)
		if err != nil {
			return nil, err
		}
		if !filter.Matches(evt, f) {
			continue
		}
		out = append(out, evt)
		if n >= 0 && len(out) >= n {
			break
		}
	}
	if err := it.Error(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func indexKey(prefix string, sub, inv []byte, id string) []byte {
	k := make([]byte, 0, len(prefix)+len(sub)+len(inv)+len(id))
	k = append(k, prefix...)
	k = append(k, sub...)
	k = append(k, inv...)
	return append(k, id...)
}

func invTime(ts int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], ^uint64(ts))
	return b[:]
}

func kindBytes(k int) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(k))
	return b[:]
}

func allFull(vals []string) bool {
	for _, v := range vals {
		if len(v) != hexIDLen {
			return false
		}
	}
	return true
}

func decode(raw []byte) (*event.Event, error) {
	var evt event.Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, fmt.Errorf("leveldb: failed to decode json data: %w", err)
	}
	return &evt, nil
}

func mapErr(err error) error {
	if errors.Is(err, leveldb.ErrClosed) {
		return relay.ErrStoreClosed
	}
	return fmt.Errorf("leveldb: %w", err)
}
