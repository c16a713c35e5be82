// Package sqlite provides a Store backed by an SQLite file through the
// grove ORM and its pure-Go sqlitedriver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	relay "github.com/xraph/nostr-relay"
	"github.com/xraph/nostr-relay/event"
	"github.com/xraph/nostr-relay/filter"
	relaystore "github.com/xraph/nostr-relay/store"
	"github.com/xraph/nostr-relay/store/internal/sqlq"
)

// compile-time interface check
var _ relaystore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db     *grove.DB
	sdb    *sqlitedriver.SqliteDB
	closed atomic.Bool
}

// Open opens (creating if needed) the database file at path.
func Open(ctx context.Context, path string) (*Store, error) {
	sdb := sqlitedriver.New()
	if err := sdb.Open(ctx, "file:"+path+"?_pragma=busy_timeout(5000)"); err != nil {
		return nil, fmt.Errorf("relay/sqlite: open: %w", err)
	}
	db, err := grove.Open(sdb)
	if err != nil {
		_ = sdb.Close()
		return nil, fmt.Errorf("relay/sqlite: open: %w", err)
	}
	return New(db), nil
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("relay/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: sqlite: %w", relay.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return relay.ErrStoreClosed
	}
	return mapErr(s.db.Ping(ctx))
}

// Close closes the database.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// ==================== Events ====================

// InsertIfAbsent inserts the event row and its tag rows in one transaction.
func (s *Store) InsertIfAbsent(ctx context.Context, evt *event.Event) (res relaystore.InsertResult, err error) {
	if s.closed.Load() {
		return 0, relay.ErrStoreClosed
	}
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return 0, mapErr(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if e := tx.Commit(); e != nil {
			err = mapErr(e)
		}
	}()

	result, err := tx.NewInsert(toEventModel(evt)).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return 0, mapErr(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, mapErr(err)
	}
	if n == 0 {
		return relaystore.Duplicate, nil
	}

	if tags := toTagModels(evt); len(tags) > 0 {
		if _, err = tx.NewInsert(&tags).MultiRow().Exec(ctx); err != nil {
			return 0, mapErr(err)
		}
	}
	return relaystore.Inserted, nil
}

// Query runs one ordered, limited SELECT per filter and merges the results.
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
		clause, args, ok := sqlq.Clause(f)
		if !ok {
			continue
		}

		var models []eventModel
		q := s.sdb.NewSelect(&models).
			Where(clause, args...).
			OrderExpr("e.created_at DESC, e.id ASC")
		if n > 0 {
			q = q.Limit(n)
		}
		if err := q.Scan(ctx); err != nil {
			return relaystore.Fail(mapErr(err))
		}

		evts := make([]*event.Event, 0, len(models))
		for j := range models {
			evt, err := fromEventModel(&models[j])
			if err != nil {
				return relaystore.Fail(err)
			}
			// LIKE prefixes are approximate; the matcher is authoritative.
			if filter.Matches(evt, f) {
				evts = append(evts, evt)
			}
		}
		results = append(results, evts)
	}
	return relaystore.Seq(ctx, relaystore.Merge(results, limit))
}

// Count counts distinct events matching any filter in one statement.
func (s *Store) Count(ctx context.Context, filters []filter.Filter) (int64, error) {
	if s.closed.Load() {
		return 0, relay.ErrStoreClosed
	}
	q := s.sdb.NewSelect((*eventModel)(nil))
	matched := false
	for i := range filters {
		clause, args, ok := sqlq.Clause(&filters[i])
		if !ok {
			continue
		}
		if matched {
			q = q.WhereOr(clause, args...)
		} else {
			q = q.Where(clause, args...)
		}
		matched = true
	}
	if !matched {
		return 0, nil
	}

	n, err := q.Count(ctx)
	if err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, grove.ErrDriverClosed) {
		return relay.ErrStoreClosed
	}
	return fmt.Errorf("relay/sqlite: %w", err)
}
