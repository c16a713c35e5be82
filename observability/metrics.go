// Package observability provides prometheus metrics and OpenTelemetry
// tracing for the relay.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds metric instruments for the relay. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	EventsReceivedTotal *prometheus.CounterVec
	EventsDelivered     prometheus.Counter
	DroppedMessages     *prometheus.CounterVec
	FanoutLatency       prometheus.Histogram
	ProtocolErrorsTotal prometheus.Counter
	BackfillEventsTotal prometheus.Counter
	Connections         prometheus.Gauge
	Subscriptions       prometheus.Gauge
}

// NewMetrics creates relay metric instruments and registers them with reg.
// Pass prometheus.DefaultRegisterer for a process-wide registry or a fresh
// prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsReceivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_events_received_total",
			Help: "Published events by outcome.",
		}, []string{"result"}),
		EventsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_events_delivered_total",
			Help: "Event frames enqueued to subscriber outboxes.",
		}),
		DroppedMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_dropped_messages_total",
			Help: "Outbound frames dropped by backpressure, by policy.",
		}, []string{"policy"}),
		FanoutLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_fanout_latency_seconds",
			Help:    "Time to offer one event to every matching subscription.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 10),
		}),
		ProtocolErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_protocol_errors_total",
			Help: "Malformed inbound frames.",
		}),
		BackfillEventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_backfill_events_total",
			Help: "Stored events sent in response to REQ.",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections",
			Help: "Open client connections.",
		}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_subscriptions",
			Help: "Live subscriptions across all connections.",
		}),
	}
	reg.MustRegister(
		m.EventsReceivedTotal,
		m.EventsDelivered,
		m.DroppedMessages,
		m.FanoutLatency,
		m.ProtocolErrorsTotal,
		m.BackfillEventsTotal,
		m.Connections,
		m.Subscriptions,
	)
	return m
}

// RecordEvent counts a publish with the given outcome
// (accepted, duplicate, rejected, blocked, error).
func (m *Metrics) RecordEvent(result string) {
	if m == nil {
		return
	}
	m.EventsReceivedTotal.WithLabelValues(result).Inc()
}

// RecordFanout records one fan-out pass.
func (m *Metrics) RecordFanout(delivered int, latencySeconds float64) {
	if m == nil {
		return
	}
	m.EventsDelivered.Add(float64(delivered))
	m.FanoutLatency.Observe(latencySeconds)
}

// RecordDrop counts a frame dropped under policy.
func (m *Metrics) RecordDrop(policy string) {
	if m == nil {
		return
	}
	m.DroppedMessages.WithLabelValues(policy).Inc()
}

// RecordProtocolError counts a malformed frame.
func (m *Metrics) RecordProtocolError() {
	if m == nil {
		return
	}
	m.ProtocolErrorsTotal.Inc()
}

// RecordBackfill counts stored events sent for a REQ.
func (m *Metrics) RecordBackfill(n int) {
	if m == nil {
		return
	}
	m.BackfillEventsTotal.Add(float64(n))
}

// SetConnections sets the open connection gauge.
func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.Connections.Set(float64(n))
}

// SetSubscriptions sets the live subscription gauge.
func (m *Metrics) SetSubscriptions(n int) {
	if m == nil {
		return
	}
	m.Subscriptions.Set(float64(n))
}
