// Package session runs one client connection: a reader loop that feeds
// frames to the relay and a writer loop that drains the connection's
// outbox, sends keepalive pings and enforces the idle timeout.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	relay "github.com/xraph/nostr-relay"
	"github.com/xraph/nostr-relay/id"
	"github.com/xraph/nostr-relay/message"
)

// State is a session's lifecycle stage.
type State int32

const (
	Handshaking State = iota
	Open
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Handshaking:
		return "handshaking"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Close reasons.
const (
	ReasonClientClosed   = "client closed"
	ReasonProtocolErrors = "too many malformed messages"
	ReasonIdle           = "idle timeout"
	ReasonSlowConsumer   = "slow consumer"
	ReasonShutdown       = "relay shutting down"
	ReasonWriteFailed    = "write failed"
)

// Session is one client connection.
type Session struct {
	relay  *relay.Relay
	conn   *relay.Conn
	tr     Transport
	logger *slog.Logger
	now    func() time.Time

	state        atomic.Int32
	lastActivity atomic.Int64

	closeOnce sync.Once
	closing   chan struct{}
	code      int
	reason    string
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithClock sets the time source for idle tracking and deadlines.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New registers a connection for remoteIP with r. The session starts in
// Handshaking; Run moves it to Open.
func New(r *relay.Relay, tr Transport, remoteIP string, opts ...Option) (*Session, error) {
	conn, err := r.OpenConnection(remoteIP)
	if err != nil {
		return nil, err
	}
	s := &Session{
		relay:   r,
		conn:    conn,
		tr:      tr,
		logger:  slog.Default(),
		now:     time.Now,
		closing: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("conn_id", conn.ID())
	return s, nil
}

// ID returns the connection handle.
func (s *Session) ID() id.ID { return s.conn.ID() }

// Conn returns the relay-side connection.
func (s *Session) Conn() *relay.Conn { return s.conn }

// State returns the current lifecycle stage.
func (s *Session) State() State { return State(s.state.Load()) }

// CloseReason returns why the session is closing, or "" while open.
func (s *Session) CloseReason() string {
	select {
	case <-s.closing:
		return s.reason
	default:
		return ""
	}
}

// Run serves the connection until it closes. It returns nil for ordinary
// closes and the transport error when a write fails.
func (s *Session) Run(ctx context.Context) error {
	s.state.Store(int32(Open))
	s.touch()
	s.tr.OnPong(s.touch)
	s.logger.Debug("session open", "remote_ip", s.conn.RemoteIP())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(gctx) })
	g.Go(func() error { return s.writeLoop(gctx) })
	err := g.Wait()

	s.state.Store(int32(Closed))
	s.logger.Debug("session closed", "reason", s.reason)
	return err
}

func (s *Session) touch() { s.lastActivity.Store(s.now().UnixNano()) }

// beginClose moves the session to Closing. Only the first call counts; it
// drops the connection's subscriptions and wakes the writer.
func (s *Session) beginClose(code int, reason string) {
	s.closeOnce.Do(func() {
		s.code = code
		s.reason = reason
		s.state.Store(int32(Closing))
		s.relay.DropConnection(s.conn)
		s.conn.Outbox().Close()
		close(s.closing)
		s.logger.Debug("session closing", "reason", reason)
	})
}

func (s *Session) readLoop(ctx context.Context) error {
	maxErrors := s.conn.Config().MaxProtocolErrors
	consecutive := 0
	for {
		frame, err := s.tr.ReadMessage()
		if err != nil {
			s.beginClose(CloseNormal, ReasonClientClosed)
			return nil
		}
		select {
		case <-s.closing:
			return nil
		default:
		}
		s.touch()

		err = s.relay.Handle(ctx, s.conn, frame)
		var merr *message.Error
		if !errors.As(err, &merr) {
			consecutive = 0
			continue
		}
		consecutive++
		s.logger.Debug("malformed message", "error", err, "consecutive", consecutive)
		if maxErrors > 0 && consecutive >= maxErrors {
			s.beginClose(ClosePolicyViolation, ReasonProtocolErrors)
			return nil
		}
	}
}

func (s *Session) writeLoop(ctx context.Context) error {
	cfg := s.conn.Config()
	outbox := s.conn.Outbox()

	var tick <-chan time.Time
	if iv := tickInterval(cfg); iv > 0 {
		t := time.NewTicker(iv)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			s.beginClose(CloseGoingAway, ReasonShutdown)
			return s.finish()

		case <-s.closing:
			return s.finish()

		case <-outbox.Done():
			if outbox.Overflowed() {
				s.beginClose(CloseTryAgainLater, ReasonSlowConsumer)
			} else {
				s.beginClose(CloseGoingAway, ReasonShutdown)
			}
			return s.finish()

		case <-outbox.Notify():
			if err := s.flush(time.Time{}); err != nil {
				s.beginClose(CloseNormal, ReasonWriteFailed)
				_ = s.tr.Close(CloseNormal, ReasonWriteFailed)
				return fmt.Errorf("session: write: %w", err)
			}

		case <-tick:
			now := s.now()
			if cfg.IdleTimeout > 0 && now.Sub(time.Unix(0, s.lastActivity.Load())) >= cfg.IdleTimeout {
				s.beginClose(CloseNormal, ReasonIdle)
				return s.finish()
			}
			if cfg.PingInterval > 0 {
				if err := s.tr.Ping(now.Add(cfg.WriteTimeout)); err != nil {
					s.beginClose(CloseNormal, ReasonWriteFailed)
					_ = s.tr.Close(CloseNormal, ReasonWriteFailed)
					return nil
				}
			}
		}
	}
}

// flush writes every queued frame. A non-zero until stops it early.
func (s *Session) flush(until time.Time) error {
	timeout := s.conn.Config().WriteTimeout
	for {
		now := s.now()
		if !until.IsZero() && !now.Before(until) {
			return nil
		}
		frame, ok := s.conn.Outbox().Pop()
		if !ok {
			return nil
		}
		deadline := time.Time{}
		if timeout > 0 {
			deadline = now.Add(timeout)
		}
		if !until.IsZero() && (deadline.IsZero() || until.Before(deadline)) {
			deadline = until
		}
		if err := s.tr.WriteMessage(frame, deadline); err != nil {
			return err
		}
	}
}

// finish drains what is left within the close grace period, except for
// slow consumers and departed clients, then closes the transport.
func (s *Session) finish() error {
	switch s.reason {
	case ReasonSlowConsumer, ReasonClientClosed:
	default:
		grace := s.conn.Config().CloseGrace
		if grace > 0 {
			if err := s.flush(s.now().Add(grace)); err != nil {
				s.logger.Debug("drain on close failed", "error", err)
			}
		}
	}
	if err := s.tr.Close(s.code, s.reason); err != nil {
		s.logger.Debug("transport close failed", "error", err)
	}
	return nil
}

// tickInterval picks how often the writer wakes to ping and check idleness.
func tickInterval(cfg *relay.Config) time.Duration {
	switch {
	case cfg.PingInterval > 0:
		return cfg.PingInterval
	case cfg.IdleTimeout > 0:
		return cfg.IdleTimeout / 4
	default:
		return 0
	}
}
