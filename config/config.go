// Package config loads the relay's YAML configuration file and keeps it
// current: a Manager holds the active versioned snapshot and, when
// watching, re-reads the file on change and pushes the new relay settings
// into the running Relay.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	relay "github.com/xraph/nostr-relay"
)

// File is the on-disk configuration. The relay settings sit at the top
// level next to the process settings.
type File struct {
	// Config embeds the core relay configuration.
	relay.Config `json:",inline" yaml:",inline" mapstructure:",squash"`

	// Listen is the HTTP listen address (default ":8080").
	Listen string `json:"listen" yaml:"listen" mapstructure:"listen"`

	Store Store `json:"store" yaml:"store" mapstructure:"store"`
	Log   Log   `json:"log" yaml:"log" mapstructure:"log"`
}

// Store selects the event store backend.
type Store struct {
	// Driver is one of memory, leveldb, sqlite, postgres, redis, mongo.
	Driver string `json:"driver" yaml:"driver" mapstructure:"driver"`

	// DSN is the path, URL or connection string for the driver.
	DSN string `json:"dsn" yaml:"dsn" mapstructure:"dsn"`

	// Database names the mongo database.
	Database string `json:"database" yaml:"database" mapstructure:"database"`

	// DisableMigrate skips schema migration at startup.
	DisableMigrate bool `json:"disable_migrate" yaml:"disable_migrate" mapstructure:"disable_migrate"`
}

// Log configures process logging.
type Log struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`

	// File enables rotation into the named file instead of stderr.
	File       string `json:"file" yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days" mapstructure:"max_age_days"`
}

// Drivers lists the accepted store drivers.
var Drivers = []string{"memory", "leveldb", "sqlite", "postgres", "redis", "mongo"}

// ErrUnknownDriver is returned for a store driver not in Drivers.
var ErrUnknownDriver = errors.New("config: unknown store driver")

// Default returns a File with sensible defaults.
func Default() File {
	return File{
		Config: relay.DefaultConfig(),
		Listen: ":8080",
		Store: Store{
			Driver: "leveldb",
			DSN:    "data/events",
		},
		Log: Log{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// Validate checks the process settings and the embedded relay settings.
func (f *File) Validate() error {
	if f.Listen == "" {
		return fmt.Errorf("%w: listen address is empty", relay.ErrInvalidConfig)
	}
	if !knownDriver(f.Store.Driver) {
		return fmt.Errorf("%w %q", ErrUnknownDriver, f.Store.Driver)
	}
	switch f.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("%w: log format %q", relay.ErrInvalidConfig, f.Log.Format)
	}
	return f.Config.Validate()
}

func knownDriver(d string) bool {
	for _, k := range Drivers {
		if k == d {
			return true
		}
	}
	return false
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (File, error) {
	f := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("%w: %w", relay.ErrInvalidConfig, err)
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Load reads and parses the file at path.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return File{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return f, nil
}
