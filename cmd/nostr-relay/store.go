package main

import (
	"context"
	"fmt"

	"github.com/xraph/nostr-relay/config"
	"github.com/xraph/nostr-relay/store"
	"github.com/xraph/nostr-relay/store/leveldb"
	"github.com/xraph/nostr-relay/store/memory"
	"github.com/xraph/nostr-relay/store/mongo"
	"github.com/xraph/nostr-relay/store/postgres"
	"github.com/xraph/nostr-relay/store/redis"
	"github.com/xraph/nostr-relay/store/sqlite"
)

// openStore connects the configured backend and checks it is reachable.
func openStore(ctx context.Context, cfg config.Store) (store.Store, error) {
	var (
		s   store.Store
		err error
	)
	switch cfg.Driver {
	case "memory":
		s = memory.New()
	case "leveldb":
		s, err = leveldb.Open(cfg.DSN)
	case "sqlite":
		s, err = sqlite.Open(ctx, cfg.DSN)
	case "postgres":
		s, err = postgres.Open(ctx, cfg.DSN)
	case "redis":
		s, err = redis.Open(ctx, cfg.DSN)
	case "mongo":
		db := cfg.Database
		if db == "" {
			db = "nostr"
		}
		s, err = mongo.Open(ctx, cfg.DSN, db)
	default:
		return nil, fmt.Errorf("%w %q", config.ErrUnknownDriver, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%s store: %w", cfg.Driver, err)
	}
	return s, nil
}
