package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"

	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate" // registers the pg migration executor
)

// Migrations is the grove migration group for the event store (PostgreSQL).
var Migrations = migrate.NewGroup("relay")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_relay_events",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS relay_events (
    id         TEXT PRIMARY KEY,
    pubkey     TEXT NOT NULL,
    created_at BIGINT NOT NULL,
    kind       INTEGER NOT NULL,
    tags       JSONB NOT NULL DEFAULT '[]',
    content    TEXT NOT NULL DEFAULT '',
    sig        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_relay_events_created ON relay_events (created_at DESC, id);
CREATE INDEX IF NOT EXISTS idx_relay_events_pubkey ON relay_events (pubkey, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_relay_events_kind ON relay_events (kind, created_at DESC);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS relay_events`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_relay_event_tags",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS relay_event_tags (
    event_id TEXT NOT NULL REFERENCES relay_events (id) ON DELETE CASCADE,
    name     TEXT NOT NULL,
    value    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_relay_event_tags_lookup ON relay_event_tags (name, value);
CREATE INDEX IF NOT EXISTS idx_relay_event_tags_event ON relay_event_tags (event_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS relay_event_tags`)
				return err
			},
		},
	)
}
