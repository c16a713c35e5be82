package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/nostr-relay/event"
	"github.com/xraph/nostr-relay/filter"
	"github.com/xraph/nostr-relay/message"
	"github.com/xraph/nostr-relay/observability"
	"github.com/xraph/nostr-relay/subscription"
)

// EngineConfig holds engine dependencies.
type EngineConfig struct {
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Stats summarizes one fan-out pass.
type Stats struct {
	// Matched is the number of subscriptions whose filters matched.
	Matched int
	// Delivered frames were queued, possibly evicting an older frame.
	Delivered int
	// Dropped frames were lost to backpressure (any policy).
	Dropped int
	// Discarded frames targeted an already closed outbox.
	Discarded int
}

// Engine offers stored events to live subscriptions.
type Engine struct {
	registry *subscription.Registry
	config   EngineConfig
	logger   *slog.Logger
}

// NewEngine creates a fan-out engine over registry.
func NewEngine(registry *subscription.Registry, cfg EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{registry: registry, config: cfg, logger: logger}
}

// Fanout enqueues evt once on every subscription with a matching filter.
// It runs on the caller's goroutine and never blocks on a slow
// connection: a full outbox is handled by that outbox's policy.
func (e *Engine) Fanout(ctx context.Context, evt *event.Event) Stats {
	start := time.Now()

	var span trace.Span
	if e.config.Tracer != nil {
		ctx, span = e.config.Tracer.StartFanoutSpan(ctx, evt.ID)
	}

	encoded := event.Encode(evt)

	var st Stats
	e.registry.ForEach(func(entry subscription.Entry) bool {
		if !filter.MatchesAny(evt, entry.Sub.Filters) {
			return true
		}
		st.Matched++

		err := entry.Sink.Enqueue(message.EventFrame(entry.Sub.ID, encoded))
		switch {
		case err == nil:
			st.Delivered++
		case errors.Is(err, ErrEvicted):
			st.Delivered++
			st.Dropped++
		case errors.Is(err, ErrDropped), errors.Is(err, ErrOverflow):
			st.Dropped++
			e.logger.DebugContext(ctx, "fanout dropped frame",
				"sub_id", entry.Sub.ID, "conn_id", entry.Sub.ConnID, "error", err)
		default:
			st.Discarded++
		}
		return true
	})

	if span != nil {
		e.config.Tracer.EndFanoutSpan(span, st.Matched, st.Delivered, st.Dropped)
	}
	e.config.Metrics.RecordFanout(st.Delivered, time.Since(start).Seconds())
	if st.Dropped > 0 {
		e.logger.WarnContext(ctx, "fanout backpressure",
			"event_id", evt.ID, "matched", st.Matched, "dropped", st.Dropped)
	}
	return st
}
