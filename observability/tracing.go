package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xraph/nostr-relay"

// Tracer provides OpenTelemetry tracing for the relay.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global otel provider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartPublishSpan starts a span covering validation, storage and fan-out
// of one event.
func (t *Tracer) StartPublishSpan(ctx context.Context, eventID string, kind int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "relay.publish",
		trace.WithAttributes(
			attribute.String("nostr.event_id", eventID),
			attribute.Int("nostr.kind", kind),
		),
	)
}

// EndPublishSpan ends a publish span with its outcome.
func (t *Tracer) EndPublishSpan(span trace.Span, result string, err error) {
	span.SetAttributes(attribute.String("relay.result", result))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// StartFanoutSpan starts a span for one fan-out pass.
func (t *Tracer) StartFanoutSpan(ctx context.Context, eventID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "relay.fanout",
		trace.WithAttributes(attribute.String("nostr.event_id", eventID)),
	)
}

// EndFanoutSpan ends a fan-out span with delivery counts.
func (t *Tracer) EndFanoutSpan(span trace.Span, matched, delivered, dropped int) {
	span.SetAttributes(
		attribute.Int("relay.matched", matched),
		attribute.Int("relay.delivered", delivered),
		attribute.Int("relay.dropped", dropped),
	)
	span.End()
}

// StartQuerySpan starts a span for a subscription backfill query.
func (t *Tracer) StartQuerySpan(ctx context.Context, subID string, filters int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "relay.query",
		trace.WithAttributes(
			attribute.String("nostr.sub_id", subID),
			attribute.Int("nostr.filters", filters),
		),
	)
}

// EndQuerySpan ends a query span.
func (t *Tracer) EndQuerySpan(span trace.Span, returned int, err error) {
	span.SetAttributes(attribute.Int("relay.returned", returned))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
