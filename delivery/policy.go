// Package delivery moves encoded frames from publishers to connections:
// a bounded per-connection Outbox with a configurable backpressure Policy,
// and the fan-out Engine that offers each new event to every matching
// subscription.
package delivery

import (
	"errors"
	"fmt"
)

// Policy decides what happens when an outbox is full.
type Policy string

const (
	// PolicyDropOldest evicts the oldest queued frame to make room.
	PolicyDropOldest Policy = "drop-oldest"

	// PolicyDropNew discards the frame being enqueued.
	PolicyDropNew Policy = "drop-new"

	// PolicyDisconnect closes the outbox; the session then disconnects the
	// slow client.
	PolicyDisconnect Policy = "disconnect"
)

// Enqueue outcomes other than plain success.
var (
	// ErrEvicted means the frame was queued but an older one was dropped.
	ErrEvicted = errors.New("delivery: oldest frame evicted")

	// ErrDropped means the frame was discarded because the outbox is full.
	ErrDropped = errors.New("delivery: frame dropped")

	// ErrOverflow means the outbox was full and has been closed.
	ErrOverflow = errors.New("delivery: outbox overflow")

	// ErrClosed means the outbox no longer accepts frames.
	ErrClosed = errors.New("delivery: outbox closed")
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyDropOldest, PolicyDropNew, PolicyDisconnect:
		return p, nil
	default:
		return "", fmt.Errorf("delivery: unknown backpressure policy %q", s)
	}
}

// String returns the policy name.
func (p Policy) String() string { return string(p) }
