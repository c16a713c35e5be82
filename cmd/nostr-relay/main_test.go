package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	relay "github.com/xraph/nostr-relay"
	"github.com/xraph/nostr-relay/config"
	"github.com/xraph/nostr-relay/internal/nostrtest"
	"github.com/xraph/nostr-relay/store/memory"
)

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"--version"}, &out, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "nostr-relay ") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestHelp(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"--help"}, &out, &out); !errors.Is(err, pflag.ErrHelp) {
		t.Fatalf("run(--help) = %v", err)
	}
	if !strings.Contains(out.String(), "--config") {
		t.Fatal("usage does not list flags")
	}
}

func TestRunRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"--nope"}},
		{"watch without config", []string{"--watch"}},
		{"unknown store", []string{"--store", "cassandra"}},
		{"missing config", []string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}},
		{"bad log level", []string{"--store", "memory", "--log-level", "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := run(context.Background(), tt.args, &out, &out); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	err := run(ctx, []string{"--store", "memory", "--addr", "127.0.0.1:0", "--log-level", "error"}, &out, &out)
	if err != nil {
		t.Fatalf("run() = %v", err)
	}
}

func TestOverlayOnlyChangedFlags(t *testing.T) {
	fs, f, err := parseFlags([]string{"--addr", ":9999"}, &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	file := config.Default()
	file.Store.Driver = "sqlite"
	overlay(fs, f, &file)
	if file.Listen != ":9999" {
		t.Fatalf("listen = %q", file.Listen)
	}
	if file.Store.Driver != "sqlite" {
		t.Fatal("unset flag overrode the file")
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	for _, driver := range []string{"memory", "leveldb", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			s, err := openStore(ctx, config.Store{Driver: driver, DSN: filepath.Join(t.TempDir(), "events")})
			if err != nil {
				t.Fatal(err)
			}
			defer s.Close()
			if err := s.Migrate(ctx); err != nil {
				t.Fatal(err)
			}
			evt := nostrtest.Signed(t, nostrtest.Signer(t), 1, 0, "x")
			if _, err := s.InsertIfAbsent(ctx, evt); err != nil {
				t.Fatal(err)
			}
		})
	}

	if _, err := openStore(ctx, config.Store{Driver: "cassandra"}); !errors.Is(err, config.ErrUnknownDriver) {
		t.Fatalf("openStore() = %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := newLogger(config.Log{Level: "warn", Format: "text"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "k=v") {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestNewLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")
	logger, closeFn, err := newLogger(config.Log{Level: "info", Format: "json", File: path, MaxSizeMB: 1}, os.Stderr)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("to file")
	closeFn()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"to file"`) {
		t.Fatalf("file = %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{"": slog.LevelInfo, "DEBUG": slog.LevelDebug, "warning": slog.LevelWarn, "error": slog.LevelError} {
		got, err := parseLevel(in)
		if err != nil || got != want {
			t.Errorf("parseLevel(%q) = %v, %v", in, got, err)
		}
	}
}

func TestWithInfoDefaults(t *testing.T) {
	cfg := withInfoDefaults(relay.Config{})
	if cfg.Info.Software == "" || cfg.Info.Version != version {
		t.Fatalf("info = %+v", cfg.Info)
	}

	var set relay.Config
	set.Info.Software, set.Info.Version = "custom", "9"
	if got := withInfoDefaults(set).Info; got.Software != "custom" || got.Version != "9" {
		t.Fatalf("explicit info overwritten: %+v", got)
	}
}

func TestReloadKeepsInfoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte("info:\n  name: first\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	mgr, err := config.NewManager(path)
	if err != nil {
		t.Fatal(err)
	}

	r, err := relay.New(relay.WithStore(memory.New()), relay.WithConfig(withInfoDefaults(mgr.Current().File.Config)))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Shutdown()

	var logs bytes.Buffer
	mgr.SetApply(applyReload(r, slog.New(slog.NewTextHandler(&logs, nil))))

	if err := os.WriteFile(path, []byte("info:\n  name: second\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := mgr.Reload(); err != nil {
		t.Fatal(err)
	}

	info := r.Config().Info
	if info.Name != "second" {
		t.Fatalf("name = %q, want second", info.Name)
	}
	if info.Software != "https://github.com/xraph/nostr-relay" || info.Version != version {
		t.Fatalf("reload dropped info defaults: %+v", info)
	}
	if !strings.Contains(logs.String(), "config_version=") {
		t.Fatalf("apply log = %q", logs.String())
	}
}
