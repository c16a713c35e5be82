package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	relay "github.com/xraph/nostr-relay"
)

// Snapshot is one successfully loaded configuration.
type Snapshot struct {
	File     File
	Version  uint64
	LoadedAt time.Time
}

// ApplyFunc pushes new relay settings into a running relay.
type ApplyFunc func(relay.Config) error

// Manager owns the active configuration snapshot.
type Manager struct {
	path     string
	apply    ApplyFunc
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex // serializes reloads
	current atomic.Pointer[Snapshot]
	version atomic.Uint64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithDebounce sets how long Watch waits for writes to settle.
func WithDebounce(d time.Duration) ManagerOption {
	return func(m *Manager) { m.debounce = d }
}

// WithApply sets the callback run after every successful reload.
func WithApply(fn ApplyFunc) ManagerOption {
	return func(m *Manager) { m.apply = fn }
}

// NewManager loads path and makes it snapshot version 1.
func NewManager(path string, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		path:     path,
		logger:   slog.Default(),
		debounce: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(m)
	}
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	m.publish(f)
	return m, nil
}

// Current returns the active snapshot.
func (m *Manager) Current() *Snapshot { return m.current.Load() }

// SetApply replaces the reload callback. It lets the relay be built from
// the first snapshot and then receive later ones.
func (m *Manager) SetApply(fn ApplyFunc) {
	m.mu.Lock()
	m.apply = fn
	m.mu.Unlock()
}

// SetLogger replaces the manager logger.
func (m *Manager) SetLogger(l *slog.Logger) {
	m.mu.Lock()
	m.logger = l
	m.mu.Unlock()
}

func (m *Manager) publish(f File) *Snapshot {
	s := &Snapshot{File: f, Version: m.version.Add(1), LoadedAt: time.Now()}
	m.current.Store(s)
	return s
}

// Reload re-reads the file. An invalid file, or one the relay refuses,
// leaves the current snapshot in place.
func (m *Manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := Load(m.path)
	if err != nil {
		return err
	}
	if m.apply != nil {
		if err := m.apply(f.Config); err != nil {
			return fmt.Errorf("config: apply: %w", err)
		}
	}
	prev := m.current.Load()
	s := m.publish(f)
	if prev != nil && (prev.File.Listen != f.Listen || prev.File.Store != f.Store || prev.File.Log != f.Log) {
		m.logger.Warn("config reloaded; listen, store and log settings need a restart", "version", s.Version)
	} else {
		m.logger.Info("config reloaded", "version", s.Version)
	}
	return nil
}

// Watch reloads the file whenever it changes until ctx is done. The
// parent directory is watched so editors that replace the file by rename
// are picked up.
func (m *Manager) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(m.path)
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(abs), err)
	}

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(m.debounce)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("config watcher error", "error", err)

		case <-timer.C:
			if err := m.Reload(); err != nil {
				m.logger.Error("config reload failed", "path", m.path, "error", err)
			}
		}
	}
}
