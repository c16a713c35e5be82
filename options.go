package relay

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/xraph/nostr-relay/delivery"
	"github.com/xraph/nostr-relay/event"
	"github.com/xraph/nostr-relay/observability"
	"github.com/xraph/nostr-relay/ratelimit"
	"github.com/xraph/nostr-relay/store"
	"github.com/xraph/nostr-relay/subscription"
)

// Relay is the nostr relay engine: it validates, stores and fans out
// published events and serves subscriptions.
type Relay struct {
	config    atomic.Pointer[Config]
	version   atomic.Uint64
	validator atomic.Pointer[event.Validator]

	initial  Config
	store    store.Store
	registry *subscription.Registry
	engine   *delivery.Engine
	limiter  *ratelimit.Limiter
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	clock    func() time.Time
	logger   *slog.Logger

	closing atomic.Bool
}

// Option configures a Relay instance.
type Option func(*Relay) error

// New creates a new Relay with the given options.
func New(opts ...Option) (*Relay, error) {
	r := &Relay{
		initial: DefaultConfig(),
		clock:   time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.store == nil {
		return nil, ErrNoStore
	}
	if err := r.UpdateConfig(r.initial); err != nil {
		return nil, err
	}
	r.wireServices()
	return r, nil
}

// WithStore sets the persistence backend for the Relay instance.
func WithStore(s store.Store) Option {
	return func(r *Relay) error {
		r.store = s
		return nil
	}
}

// WithLogger sets the structured logger for the Relay instance.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) error {
		r.logger = logger
		return nil
	}
}

// WithConfig replaces the whole starting configuration.
func WithConfig(cfg Config) Option {
	return func(r *Relay) error {
		r.initial = cfg
		return nil
	}
}

// WithBackpressure sets the policy for full outboxes.
func WithBackpressure(p delivery.Policy) Option {
	return func(r *Relay) error {
		r.initial.Backpressure = p
		return nil
	}
}

// WithOutboxSize sets the number of frames queued per connection.
func WithOutboxSize(n int) Option {
	return func(r *Relay) error {
		r.initial.OutboxSize = n
		return nil
	}
}

// WithLimits sets the client request limits.
func WithLimits(l Limits) Option {
	return func(r *Relay) error {
		r.initial.Limits = l
		return nil
	}
}

// WithMetrics records prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Relay) error {
		r.metrics = m
		return nil
	}
}

// WithTracer records OpenTelemetry spans.
func WithTracer(t *observability.Tracer) Option {
	return func(r *Relay) error {
		r.tracer = t
		return nil
	}
}

// WithClock sets the time source for event timestamp checks.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) error {
		r.clock = now
		return nil
	}
}
