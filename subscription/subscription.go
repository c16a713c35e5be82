// Package subscription holds the process-wide registry of live
// subscriptions, keyed by connection and client-chosen subscription id.
package subscription

import (
	"errors"

	"github.com/xraph/nostr-relay/filter"
	"github.com/xraph/nostr-relay/id"
)

var (
	// ErrTooMany is returned when a connection is at its subscription limit.
	ErrTooMany = errors.New("subscription: too many subscriptions")

	// ErrUnknownConnection is returned when a subscription is added for a
	// connection that was already dropped.
	ErrUnknownConnection = errors.New("subscription: connection dropped")

	// ErrClosed is returned by Open after the registry has been drained.
	ErrClosed = errors.New("subscription: registry closed")
)

// Subscription is a client subscription. It is not modified after it is
// registered; a REQ reusing the id registers a new value.
type Subscription struct {
	ID      string
	ConnID  id.ID
	Filters []filter.Filter
}

// Sink receives encoded frames for a connection. Enqueue must not block.
type Sink interface {
	Enqueue(frame []byte) error
}

// Entry is one registered subscription as seen by ForEach.
type Entry struct {
	Sub  *Subscription
	Sink Sink
}
