// Package postgres provides a PostgreSQL Store built on the grove ORM and
// its pgx-backed pgdriver, with grove-managed schema migrations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	relay "github.com/xraph/nostr-relay"
	"github.com/xraph/nostr-relay/event"
	"github.com/xraph/nostr-relay/filter"
	relaystore "github.com/xraph/nostr-relay/store"
	"github.com/xraph/nostr-relay/store/internal/sqlq"
)

// compile-time interface check
var _ relaystore.Store = (*Store)(nil)

const (
	onConflictID = "(id) DO NOTHING"
	newestFirst  = "e.created_at DESC, e.id ASC"
)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db     *grove.DB
	pg     *pgdriver.PgDB
	closed atomic.Bool
}

// Open connects a pool for dsn.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pg := pgdriver.New()
	if err := pg.Open(ctx, dsn); err != nil {
		return nil, fmt.Errorf("relay/postgres: connect: %w", err)
	}
	db, err := grove.Open(pg)
	if err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("relay/postgres: open: %w", err)
	}
	return New(db), nil
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("relay/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: postgres: %w", relay.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return relay.ErrStoreClosed
	}
	return s.db.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// ==================== Events ====================

// InsertIfAbsent inserts the event and its indexed tags in one transaction.
func (s *Store) InsertIfAbsent(ctx context.Context, evt *event.Event) (res relaystore.InsertResult, err error) {
	if s.closed.Load() {
		return 0, relay.ErrStoreClosed
	}
	m, err := toEventModel(evt)
	if err != nil {
		return 0, err
	}

	tx, err := s.pg.BeginTxQuery(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("relay/postgres: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if e := tx.Commit(); e != nil {
			err = fmt.Errorf("relay/postgres: commit: %w", e)
		}
	}()

	result, err := tx.NewInsert(m).OnConflict(onConflictID).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return relaystore.Duplicate, nil
		}
		return 0, fmt.Errorf("relay/postgres: insert event: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("relay/postgres: insert event: %w", err)
	}
	if n == 0 {
		return relaystore.Duplicate, nil
	}

	if tags := toTagModels(evt); len(tags) > 0 {
		if _, err = tx.NewInsert(&tags).MultiRow().Exec(ctx); err != nil {
			return 0, fmt.Errorf("relay/postgres: insert tags: %w", err)
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
		var models []eventModel
		q, ok := s.selectQuery(&models, f, n)
		if !ok {
			continue
		}
		if err := q.Scan(ctx); err != nil {
			return relaystore.Fail(fmt.Errorf("relay/postgres: query: %w", err))
		}

		evts := make([]*event.Event, 0, len(models))
		for j := range models {
			evt, err := fromEventModel(&models[j])
			if err != nil {
				return relaystore.Fail(err)
			}
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
	q, ok := s.countQuery(filters)
	if !ok {
		return 0, nil
	}
	n, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("relay/postgres: count: %w", err)
	}
	return n, nil
}

// selectQuery builds the SELECT for one filter. A negative n leaves it
// unlimited.
func (s *Store) selectQuery(models *[]eventModel, f *filter.Filter, n int) (*pgdriver.SelectQuery, bool) {
	clause, args, ok := sqlq.Clause(f)
	if !ok {
		return nil, false
	}
	q := s.pg.NewSelect(models).Where(clause, args...).OrderExpr(newestFirst)
	if n > 0 {
		q = q.Limit(n)
	}
	return q, true
}

// countQuery ORs the matchable filters into one COUNT.
func (s *Store) countQuery(filters []filter.Filter) (*pgdriver.SelectQuery, bool) {
	q := s.pg.NewSelect((*eventModel)(nil))
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
	return q, matched
}

// isUniqueViolation reports whether the error is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pg *pgconn.PgError
	return errors.As(err, &pg) && pg.Code == "23505"
}
