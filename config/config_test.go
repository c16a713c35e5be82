package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	relay "github.com/xraph/nostr-relay"
	"github.com/xraph/nostr-relay/config"
	"github.com/xraph/nostr-relay/delivery"
)

const sample = `
listen: ":9000"
backpressure: disconnect
outbox_size: 32
idle_timeout: 90s
backfill_wait: 3s
info:
  name: test relay
limits:
  max_subscriptions: 5
  publish_rate:
    per_second: 2
    burst: 4
auth:
  enabled: true
  write:
    pubkey_whitelist: ["abcd"]
store:
  driver: sqlite
  dsn: /tmp/events.db
log:
  format: text
`

func TestParse(t *testing.T) {
	f, err := config.Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if f.Listen != ":9000" || f.Store.Driver != "sqlite" || f.Log.Format != "text" {
		t.Fatalf("process settings = %+v", f)
	}
	if f.Backpressure != delivery.PolicyDisconnect || f.OutboxSize != 32 || f.IdleTimeout != 90*time.Second || f.BackfillWait != 3*time.Second {
		t.Fatalf("relay settings = %+v", f.Config)
	}
	if f.Info.Name != "test relay" || f.Limits.MaxSubscriptions != 5 || f.Limits.PublishRate.Burst != 4 {
		t.Fatalf("nested settings = %+v", f.Config)
	}
	if f.Auth.Write == nil || len(f.Auth.Write.PubkeyWhitelist) != 1 || f.Auth.Read != nil {
		t.Fatalf("auth = %+v", f.Auth)
	}
	// Untouched keys keep their defaults.
	if f.Limits.MaxFilters != relay.DefaultConfig().Limits.MaxFilters {
		t.Fatal("default lost")
	}
}

func TestParseEmptyIsDefault(t *testing.T) {
	f, err := config.Parse(nil)
	if err != nil {
		t.Fatal(err)
	}
	if f.Listen != config.Default().Listen || f.OutboxSize != relay.DefaultConfig().OutboxSize {
		t.Fatalf("got %+v", f)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"unknown key", "bogus: 1\n", relay.ErrInvalidConfig},
		{"bad driver", "store:\n  driver: cassandra\n", config.ErrUnknownDriver},
		{"bad policy", "backpressure: block\n", relay.ErrInvalidConfig},
		{"pubkey list without auth", "auth:\n  read:\n    pubkey_blacklist: [aa]\n", relay.ErrInvalidConfig},
		{"bad log format", "log:\n  format: xml\n", relay.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := config.Parse([]byte(tt.yaml)); !errors.Is(err, tt.want) {
				t.Fatalf("Parse() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Load() = %v", err)
	}
}

func write(t *testing.T, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestManagerReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	write(t, path, "outbox_size: 10\n")

	var applied []relay.Config
	m, err := config.NewManager(path, config.WithApply(func(c relay.Config) error {
		applied = append(applied, c)
		return nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	if s := m.Current(); s.Version != 1 || s.File.OutboxSize != 10 {
		t.Fatalf("snapshot = %+v", s)
	}

	write(t, path, "outbox_size: 20\n")
	if err := m.Reload(); err != nil {
		t.Fatal(err)
	}
	if s := m.Current(); s.Version != 2 || s.File.OutboxSize != 20 {
		t.Fatalf("snapshot = %+v", s)
	}
	if len(applied) != 1 || applied[0].OutboxSize != 20 {
		t.Fatalf("applied = %v", applied)
	}

	write(t, path, "outbox_size: -1\n")
	if err := m.Reload(); !errors.Is(err, relay.ErrInvalidConfig) {
		t.Fatalf("Reload() = %v", err)
	}
	if s := m.Current(); s.Version != 2 || s.File.OutboxSize != 20 {
		t.Fatal("invalid file replaced the snapshot")
	}
}

func TestManagerReloadRefusedByRelay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	write(t, path, "")
	refuse := errors.New("refused")
	m, err := config.NewManager(path, config.WithApply(func(relay.Config) error { return refuse }))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Reload(); !errors.Is(err, refuse) {
		t.Fatalf("Reload() = %v", err)
	}
	if m.Current().Version != 1 {
		t.Fatal("refused config was published")
	}
}

func TestManagerDrivesRelay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	write(t, path, "store:\n  driver: memory\n")
	m, err := config.NewManager(path)
	if err != nil {
		t.Fatal(err)
	}
	r := newRelay(t, m.Current().File.Config)
	m.SetApply(r.UpdateConfig)

	write(t, path, "store:\n  driver: memory\nlimits:\n  max_filters: 1\n")
	if err := m.Reload(); err != nil {
		t.Fatal(err)
	}
	if r.Config().Limits.MaxFilters != 1 || r.ConfigVersion() != 2 {
		t.Fatalf("relay config = %+v (version %d)", r.Config().Limits, r.ConfigVersion())
	}
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	write(t, path, "outbox_size: 10\n")
	m, err := config.NewManager(path, config.WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for m.Current().File.OutboxSize != 99 {
		if time.Now().After(deadline) {
			t.Fatal("change not picked up")
		}
		// Rewrite until the watcher is registered and sees it.
		write(t, path, "outbox_size: 99\n")
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}
