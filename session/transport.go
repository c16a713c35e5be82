package session

import "time"

// Close codes from RFC 6455 used when ending a session.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	ClosePolicyViolation = 1008
	CloseTryAgainLater   = 1013
)

// Transport is one client's framed, bidirectional message stream. The
// session reads from a single goroutine and writes from another; Close may
// be called from the writer while the reader is blocked in ReadMessage and
// must unblock it.
type Transport interface {
	// ReadMessage blocks until the next text frame arrives.
	ReadMessage() ([]byte, error)

	// WriteMessage sends one text frame, giving up at deadline.
	WriteMessage(frame []byte, deadline time.Time) error

	// Ping sends a keepalive ping.
	Ping(deadline time.Time) error

	// OnPong registers fn to run whenever the peer answers a ping or sends
	// one of its own.
	OnPong(fn func())

	// Close sends a close frame with code and reason, then releases the
	// connection.
	Close(code int, reason string) error
}
