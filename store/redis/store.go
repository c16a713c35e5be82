// Package redis provides a Store on Redis via Grove KV: events are JSON
// values claimed with SET NX and indexed by sorted sets scored by
// created_at.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/grove/kv"
	"github.com/xraph/grove/kv/drivers/redisdriver"

	relay "github.com/xraph/nostr-relay"
	relaystore "github.com/xraph/nostr-relay/store"
)

// compile-time interface check
var _ relaystore.Store = (*Store)(nil)

// Store implements store.Store using Redis via Grove KV.
type Store struct {
	kv     *kv.Store
	rdb    goredis.UniversalClient
	closed atomic.Bool
}

// New creates a new Redis store backed by Grove KV. Close closes it.
func New(store *kv.Store) *Store {
	return &Store{
		kv:  store,
		rdb: redisdriver.UnwrapClient(store),
	}
}

// Open connects to a redis:// URL.
func Open(ctx context.Context, url string) (*Store, error) {
	drv := redisdriver.New()
	if err := drv.Open(ctx, url); err != nil {
		return nil, fmt.Errorf("relay/redis: connect: %w", err)
	}
	store, err := kv.Open(drv)
	if err != nil {
		_ = drv.Close()
		return nil, fmt.Errorf("relay/redis: open kv: %w", err)
	}
	return New(store), nil
}

// Migrate is a no-op for Redis (no schema migrations needed).
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return relay.ErrStoreClosed
	}
	return mapErr(s.kv.Ping(ctx))
}

// Close closes the KV store.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.kv.Close()
}

func mapErr(err error) error {
	if errors.Is(err, goredis.ErrClosed) || errors.Is(err, kv.ErrStoreClosed) {
		return relay.ErrStoreClosed
	}
	return err
}

// isRedisNil checks if an error is a Redis nil (key not found).
func isRedisNil(err error) bool {
	return errors.Is(err, goredis.Nil)
}
