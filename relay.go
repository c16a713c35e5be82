package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/nostr-relay/auth"
	"github.com/xraph/nostr-relay/delivery"
	"github.com/xraph/nostr-relay/event"
	"github.com/xraph/nostr-relay/filter"
	"github.com/xraph/nostr-relay/id"
	"github.com/xraph/nostr-relay/message"
	"github.com/xraph/nostr-relay/ratelimit"
	"github.com/xraph/nostr-relay/store"
	"github.com/xraph/nostr-relay/subscription"
)

// Ack is the outcome of a publish or AUTH attempt, sent to the client as
// ["OK", EventID, Accepted, Reason].
type Ack struct {
	EventID  string
	Accepted bool
	Reason   string
}

// Frame encodes the OK message.
func (a Ack) Frame() []byte {
	return message.OK(a.EventID, a.Accepted, a.Reason)
}

// wireServices initializes the internal services after options have been applied.
func (r *Relay) wireServices() {
	r.registry = subscription.NewRegistry()
	r.limiter = ratelimit.New()
	r.engine = delivery.NewEngine(r.registry, delivery.EngineConfig{
		Metrics: r.metrics,
		Tracer:  r.tracer,
	}, r.logger)
}

// ──────────────────────────────────────────────────
// Configuration
// ──────────────────────────────────────────────────

// UpdateConfig validates cfg and makes it the current snapshot. Open
// connections keep their outbox settings; limits apply to the next
// request.
func (r *Relay) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	v, err := event.NewValidator(
		event.WithClock(r.clock),
		event.WithFutureSkew(cfg.FutureSkew),
		event.WithPastSkew(cfg.PastSkew),
		event.WithMaxSize(cfg.Limits.MaxEventSize),
	)
	if err != nil {
		return fmt.Errorf("relay: build validator: %w", err)
	}

	r.validator.Store(v)
	r.config.Store(&cfg)
	ver := r.version.Add(1)
	if ver > 1 {
		r.logger.Info("relay config updated", "version", ver)
	}
	return nil
}

// Config returns a copy of the current configuration.
func (r *Relay) Config() Config { return *r.config.Load() }

// ConfigVersion increments on every successful UpdateConfig.
func (r *Relay) ConfigVersion() uint64 { return r.version.Load() }

// Store returns the underlying store.
func (r *Relay) Store() store.Store { return r.store }

// Registry returns the live subscription registry.
func (r *Relay) Registry() *subscription.Registry { return r.registry }

// ──────────────────────────────────────────────────
// Connections
// ──────────────────────────────────────────────────

// OpenConnection registers a new client. When auth is enabled the NIP-42
// challenge is the first frame queued.
func (r *Relay) OpenConnection(remoteIP string) (*Conn, error) {
	if r.closing.Load() {
		return nil, ErrShuttingDown
	}
	cfg := r.config.Load()

	c := &Conn{
		id:       id.NewConnID(),
		remoteIP: remoteIP,
		config:   cfg,
	}
	c.outbox = delivery.NewOutbox(cfg.OutboxSize, cfg.Backpressure, func(p delivery.Policy) {
		r.metrics.RecordDrop(p.String())
	})
	if err := r.registry.Open(c.id, c.outbox); err != nil {
		if errors.Is(err, subscription.ErrClosed) {
			return nil, ErrShuttingDown
		}
		return nil, fmt.Errorf("relay: open connection: %w", err)
	}

	if cfg.Auth.Enabled {
		c.auth = auth.NewState()
		_ = c.send(message.AuthChallenge(c.auth.Challenge()))
	}

	r.metrics.SetConnections(r.registry.Connections())
	r.logger.Debug("connection opened", "conn_id", c.id, "remote_ip", remoteIP)
	return c, nil
}

// DropConnection removes every subscription of c. Only the first call has
// an effect; it returns the number of subscriptions removed.
func (r *Relay) DropConnection(c *Conn) int {
	c.dropOnce.Do(func() {
		c.dropped = r.registry.DropConnection(c.id)
		r.limiter.Reset(c.id.String())
		r.metrics.SetConnections(r.registry.Connections())
		r.metrics.SetSubscriptions(r.registry.Len())
		r.logger.Debug("connection dropped", "conn_id", c.id, "subscriptions", c.dropped)
	})
	return c.dropped
}

// Shutdown stops accepting connections and closes every outbox, which
// lets each session drain and disconnect.
func (r *Relay) Shutdown() {
	if r.closing.Swap(true) {
		return
	}
	sinks := r.registry.Drain()
	for _, s := range sinks {
		if o, ok := s.(*delivery.Outbox); ok {
			o.Close()
		}
	}
	r.metrics.SetConnections(0)
	r.metrics.SetSubscriptions(0)
	r.logger.Info("relay shutting down", "connections", len(sinks))
}

// ──────────────────────────────────────────────────
// Dispatch
// ──────────────────────────────────────────────────

// Handle decodes one client frame and serves it. Replies are queued on
// c's outbox. A malformed frame is answered with NOTICE (or CLOSED when
// its subscription id was readable) and returned as a *message.Error.
func (r *Relay) Handle(ctx context.Context, c *Conn, frame []byte) error {
	env, err := message.Decode(frame)
	if err != nil {
		r.metrics.RecordProtocolError()
		var merr *message.Error
		if errors.As(err, &merr) && merr.SubID != "" {
			_ = c.send(message.Closed(merr.SubID, PrefixInvalid+merr.Reason))
		} else if merr != nil {
			_ = c.send(message.Notice(PrefixInvalid + merr.Reason))
		}
		return err
	}

	switch m := env.(type) {
	case *message.Event:
		_ = c.send(r.Publish(ctx, c, m.Raw).Frame())
	case *message.Req:
		r.Subscribe(ctx, c, m.SubID, m.Filters)
	case *message.Close:
		r.Unsubscribe(c, m.SubID)
	case *message.Count:
		r.Count(ctx, c, m.SubID, m.Filters)
	case *message.Auth:
		_ = c.send(r.Authenticate(c, m.Raw).Frame())
	}
	return nil
}

// ──────────────────────────────────────────────────
// Publish
// ──────────────────────────────────────────────────

// Publish validates raw, stores it unless ephemeral, and offers it to
// live subscriptions. A nil c publishes on behalf of the relay itself and
// skips permission and rate checks. Duplicates are acknowledged but not
// fanned out again.
func (r *Relay) Publish(ctx context.Context, c *Conn, raw []byte) Ack {
	cfg := r.config.Load()

	evt, err := r.validator.Load().Validate(raw)
	var evtID string
	if evt != nil {
		evtID = evt.ID
	}
	if err != nil {
		r.metrics.RecordEvent("rejected")
		return Ack{EventID: evtID, Reason: PrefixInvalid + validationReason(err)}
	}
	if evt.Kind == event.KindAuth {
		r.metrics.RecordEvent("rejected")
		return Ack{EventID: evtID, Reason: PrefixInvalid + "auth events must be sent with AUTH"}
	}

	if c != nil {
		if err := cfg.Auth.Write.Check(c.remoteIP, c.PubKey()); err != nil {
			r.metrics.RecordEvent("blocked")
			return Ack{EventID: evtID, Reason: err.Error()}
		}
		if !r.limiter.Allow(c.id.String(), cfg.Limits.PublishRate) {
			r.metrics.RecordEvent("blocked")
			return Ack{EventID: evtID, Reason: PrefixRateLimited + "slow down"}
		}
	}

	return r.accept(ctx, evt)
}

func (r *Relay) accept(ctx context.Context, evt *event.Event) (ack Ack) {
	ack.EventID = evt.ID
	result := "accepted"
	var storeErr error

	var span trace.Span
	if r.tracer != nil {
		ctx, span = r.tracer.StartPublishSpan(ctx, evt.ID, evt.Kind)
		defer func() { r.tracer.EndPublishSpan(span, result, storeErr) }()
	}

	if !evt.IsEphemeral() {
		res, err := r.store.InsertIfAbsent(ctx, evt)
		if err != nil {
			storeErr = err
			result = "error"
			r.metrics.RecordEvent(result)
			r.logger.ErrorContext(ctx, "store event failed", "event_id", evt.ID, "error", err)
			ack.Reason = PrefixError + "could not store event"
			return ack
		}
		if res == store.Duplicate {
			result = "duplicate"
			r.metrics.RecordEvent(result)
			ack.Accepted = true
			ack.Reason = PrefixDuplicate + "already have this event"
			return ack
		}
	}

	st := r.engine.Fanout(ctx, evt)
	r.metrics.RecordEvent(result)
	r.logger.DebugContext(ctx, "event accepted",
		"event_id", evt.ID,
		"kind", evt.Kind,
		"matched", st.Matched,
	)
	ack.Accepted = true
	return ack
}

func validationReason(err error) string {
	var verr *event.ValidationError
	if errors.As(err, &verr) {
		return verr.Reason
	}
	return err.Error()
}

// ──────────────────────────────────────────────────
// Subscriptions
// ──────────────────────────────────────────────────

// Subscribe registers (or replaces) subID on c, queues the stored matches
// newest first, then EOSE. A refused subscription is answered with CLOSED.
// A backfill failure is reported with NOTICE and still ends with EOSE so
// the subscription stays live.
func (r *Relay) Subscribe(ctx context.Context, c *Conn, subID string, filters []filter.Filter) {
	cfg := r.config.Load()
	if reason := r.checkRequest(cfg, c, subID, filters); reason != "" {
		_ = c.send(message.Closed(subID, reason))
		return
	}

	sub := &subscription.Subscription{ID: subID, ConnID: c.id, Filters: filters}
	if _, err := r.registry.Subscribe(sub, cfg.Limits.MaxSubscriptions); err != nil {
		if errors.Is(err, subscription.ErrTooMany) {
			_ = c.send(message.Closed(subID, PrefixBlocked+"too many subscriptions"))
		}
		return
	}
	r.metrics.SetSubscriptions(r.registry.Len())

	// The reply waits for the writer to make room; once BackfillWait is
	// spent the backpressure policy applies.
	wctx, cancel := context.WithTimeout(ctx, cfg.BackfillWait)
	defer cancel()

	n, err := r.backfill(ctx, wctx, c, subID, filters, &cfg.Limits)
	r.metrics.RecordBackfill(n)
	if err != nil {
		r.logger.WarnContext(ctx, "backfill failed", "conn_id", c.id, "sub_id", subID, "error", err)
		_ = c.sendWait(wctx, message.Notice(PrefixError+"could not load stored events for "+subID))
	}
	_ = c.sendWait(wctx, message.EOSE(subID))
}

func (r *Relay) backfill(ctx, wctx context.Context, c *Conn, subID string, filters []filter.Filter, lim *Limits) (n int, err error) {
	var span trace.Span
	if r.tracer != nil {
		ctx, span = r.tracer.StartQuerySpan(ctx, subID, len(filters))
		defer func() { r.tracer.EndQuerySpan(span, n, err) }()
	}

	query := make([]filter.Filter, len(filters))
	for i, f := range filters {
		limit := f.EffectiveLimit(lim.DefaultLimit, lim.MaxLimit)
		f.Limit = &limit
		query[i] = f
	}

	now := r.clock().Unix()
	encoded := make([]byte, 0, 1024)
	for evt, qerr := range r.store.Query(ctx, query, lim.MaxLimit) {
		if qerr != nil {
			return n, qerr
		}
		if exp, ok := evt.Expiration(); ok && exp <= now {
			continue
		}
		encoded = event.AppendEncoded(encoded[:0], evt)
		if serr := c.sendWait(wctx, message.EventFrame(subID, encoded)); errors.Is(serr, delivery.ErrClosed) || errors.Is(serr, delivery.ErrOverflow) {
			return n, nil
		}
		n++
	}
	return n, nil
}

// Unsubscribe removes subID from c. It reports whether it existed.
func (r *Relay) Unsubscribe(c *Conn, subID string) bool {
	ok := r.registry.Unsubscribe(c.id, subID)
	if ok {
		r.metrics.SetSubscriptions(r.registry.Len())
	}
	return ok
}

// Count answers a NIP-45 COUNT with the number of stored matches.
func (r *Relay) Count(ctx context.Context, c *Conn, subID string, filters []filter.Filter) {
	cfg := r.config.Load()
	if reason := r.checkRequest(cfg, c, subID, filters); reason != "" {
		_ = c.send(message.Closed(subID, reason))
		return
	}
	n, err := r.store.Count(ctx, filters)
	if err != nil {
		r.logger.WarnContext(ctx, "count failed", "conn_id", c.id, "sub_id", subID, "error", err)
		_ = c.send(message.Closed(subID, PrefixError+"count failed"))
		return
	}
	_ = c.send(message.CountResult(subID, n))
}

// checkRequest applies the request limits and read permissions shared by
// REQ and COUNT. It returns the CLOSED reason, or "".
func (r *Relay) checkRequest(cfg *Config, c *Conn, subID string, filters []filter.Filter) string {
	lim := &cfg.Limits
	switch {
	case lim.MaxSubIDLength > 0 && len(subID) > lim.MaxSubIDLength:
		return PrefixInvalid + "subscription id too long"
	case len(filters) == 0:
		return PrefixInvalid + "at least one filter is required"
	case lim.MaxFilters > 0 && len(filters) > lim.MaxFilters:
		return PrefixInvalid + fmt.Sprintf("too many filters (max %d)", lim.MaxFilters)
	}
	for i := range filters {
		if err := filters[i].Validate(lim.Filter); err != nil {
			return PrefixInvalid + strings.TrimPrefix(err.Error(), filter.ErrInvalid.Error()+": ")
		}
	}
	if err := cfg.Auth.Read.Check(c.remoteIP, c.PubKey()); err != nil {
		return err.Error()
	}
	return ""
}

// ──────────────────────────────────────────────────
// NIP-42
// ──────────────────────────────────────────────────

// Authenticate checks a signed AUTH event against c's challenge.
func (r *Relay) Authenticate(c *Conn, raw []byte) Ack {
	cfg := r.config.Load()

	evt, err := r.validator.Load().Validate(raw)
	var evtID string
	if evt != nil {
		evtID = evt.ID
	}
	if err != nil {
		return Ack{EventID: evtID, Reason: PrefixInvalid + validationReason(err)}
	}
	if c.auth == nil {
		return Ack{EventID: evtID, Reason: PrefixBlocked + "authentication is not enabled"}
	}
	if err := c.auth.Authenticate(evt, cfg.Auth, r.clock()); err != nil {
		return Ack{EventID: evtID, Reason: PrefixInvalid + strings.TrimPrefix(err.Error(), "auth: ")}
	}
	r.logger.Debug("connection authenticated", "conn_id", c.id, "pubkey", evt.PubKey)
	return Ack{EventID: evtID, Accepted: true}
}
