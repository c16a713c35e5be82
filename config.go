package relay

import (
	"fmt"
	"time"

	"github.com/xraph/nostr-relay/auth"
	"github.com/xraph/nostr-relay/delivery"
	"github.com/xraph/nostr-relay/filter"
	"github.com/xraph/nostr-relay/ratelimit"
)

// Config holds the configuration for a Relay instance. A running relay
// swaps it atomically via UpdateConfig; new connections and new
// subscriptions use the latest snapshot.
type Config struct {
	// Info is published as the NIP-11 relay information document.
	Info Info `json:"info" yaml:"info" mapstructure:"info"`

	// Limits bound what a single client may ask for.
	Limits Limits `json:"limits" yaml:"limits" mapstructure:"limits"`

	// Backpressure is applied when a connection's outbox is full.
	Backpressure delivery.Policy `json:"backpressure" yaml:"backpressure" mapstructure:"backpressure"`

	// OutboxSize is the number of frames queued per connection.
	OutboxSize int `json:"outbox_size" yaml:"outbox_size" mapstructure:"outbox_size"`

	// IdleTimeout closes connections that send nothing, not even a pong.
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout" mapstructure:"idle_timeout"`

	// PingInterval is how often the writer pings an idle client.
	PingInterval time.Duration `json:"ping_interval" yaml:"ping_interval" mapstructure:"ping_interval"`

	// BackfillWait bounds how long a REQ waits for outbox room while
	// queueing stored events and EOSE. After it the backpressure policy
	// applies. Zero never waits.
	BackfillWait time.Duration `json:"backfill_wait" yaml:"backfill_wait" mapstructure:"backfill_wait"`

	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`

	// CloseGrace is how long a closing connection may spend draining its outbox.
	CloseGrace time.Duration `json:"close_grace" yaml:"close_grace" mapstructure:"close_grace"`

	// MaxProtocolErrors closes a connection after this many consecutive
	// malformed frames. Zero never closes.
	MaxProtocolErrors int `json:"max_protocol_errors" yaml:"max_protocol_errors" mapstructure:"max_protocol_errors"`

	// FutureSkew rejects events created further in the future. Zero disables.
	FutureSkew time.Duration `json:"future_skew" yaml:"future_skew" mapstructure:"future_skew"`

	// PastSkew rejects events created further in the past. Zero disables.
	PastSkew time.Duration `json:"past_skew" yaml:"past_skew" mapstructure:"past_skew"`

	// Auth configures NIP-42 and the read/write permission lists.
	Auth auth.Config `json:"auth" yaml:"auth" mapstructure:"auth"`
}

// Info describes the relay to clients.
type Info struct {
	Name        string `json:"name,omitempty"        yaml:"name"        mapstructure:"name"`
	Description string `json:"description,omitempty" yaml:"description" mapstructure:"description"`
	PubKey      string `json:"pubkey,omitempty"      yaml:"pubkey"      mapstructure:"pubkey"`
	Contact     string `json:"contact,omitempty"     yaml:"contact"     mapstructure:"contact"`
	Software    string `json:"software,omitempty"    yaml:"software"    mapstructure:"software"`
	Version     string `json:"version,omitempty"     yaml:"version"     mapstructure:"version"`
}

// Limits bound client requests. Zero values are unlimited unless noted.
type Limits struct {
	MaxSubscriptions int `json:"max_subscriptions" yaml:"max_subscriptions" mapstructure:"max_subscriptions"`
	MaxFilters       int `json:"max_filters"       yaml:"max_filters"       mapstructure:"max_filters"`
	MaxSubIDLength   int `json:"max_subid_length"  yaml:"max_subid_length"  mapstructure:"max_subid_length"`
	MaxEventSize     int `json:"max_event_size"    yaml:"max_event_size"    mapstructure:"max_event_size"`

	// MaxLimit caps the stored events returned per REQ.
	MaxLimit int `json:"max_limit" yaml:"max_limit" mapstructure:"max_limit"`

	// DefaultLimit applies to filters without a limit.
	DefaultLimit int `json:"default_limit" yaml:"default_limit" mapstructure:"default_limit"`

	Filter filter.Limits `json:"filter" yaml:"filter" mapstructure:"filter"`

	// PublishRate throttles EVENT per connection.
	PublishRate ratelimit.Rate `json:"publish_rate" yaml:"publish_rate" mapstructure:"publish_rate"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Info: Info{
			Name:     "nostr-relay",
			Software: "https://github.com/xraph/nostr-relay",
			Version:  "0.1.0",
		},
		Limits: Limits{
			MaxSubscriptions: 20,
			MaxFilters:       10,
			MaxSubIDLength:   64,
			MaxEventSize:     64 * 1024,
			MaxLimit:         500,
			DefaultLimit:     100,
			Filter: filter.Limits{
				MaxIDs:       500,
				MaxAuthors:   500,
				MaxKinds:     100,
				MaxTagValues: 100,
			},
			PublishRate: ratelimit.Rate{PerSecond: 10, Burst: 20},
		},
		Backpressure:      delivery.PolicyDropOldest,
		OutboxSize:        256,
		IdleTimeout:       2 * time.Minute,
		PingInterval:      30 * time.Second,
		WriteTimeout:      10 * time.Second,
		BackfillWait:      10 * time.Second,
		CloseGrace:        5 * time.Second,
		MaxProtocolErrors: 5,
		FutureSkew:        15 * time.Minute,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := delivery.ParsePolicy(string(c.Backpressure)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.OutboxSize < 1 {
		return fmt.Errorf("%w: outbox_size must be positive", ErrInvalidConfig)
	}
	if c.Limits.DefaultLimit < 0 || c.Limits.MaxLimit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidConfig)
	}
	if c.IdleTimeout < 0 || c.PingInterval < 0 || c.CloseGrace < 0 || c.WriteTimeout < 0 || c.BackfillWait < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidConfig)
	}
	if c.IdleTimeout > 0 && c.PingInterval >= c.IdleTimeout {
		return fmt.Errorf("%w: ping_interval must be shorter than idle_timeout", ErrInvalidConfig)
	}
	if !c.Auth.Enabled && (c.Auth.Read.RequiresAuth() || c.Auth.Write.RequiresAuth()) {
		return fmt.Errorf("%w: pubkey lists need auth.enabled", ErrInvalidConfig)
	}
	return nil
}

// SupportedNIPs lists the NIPs this configuration serves.
func (c *Config) SupportedNIPs() []int {
	nips := []int{1, 11, 40}
	if c.Auth.Enabled {
		nips = append(nips, 42)
	}
	return append(nips, 45)
}
