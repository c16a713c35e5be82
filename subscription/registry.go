package subscription

import (
	"sync"

	"github.com/xraph/nostr-relay/id"
)

type connection struct {
	sink Sink
	subs map[string]*Subscription
}

// Registry maps (connection, subscription id) to subscriptions. All
// methods are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*connection
	total  int
	closed bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*connection)}
}

// Open registers a connection and its sink. It must be called before
// Subscribe for that connection. Opening a known connection is a no-op.
func (r *Registry) Open(connID id.ID, sink Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if _, ok := r.conns[connID.String()]; !ok {
		r.conns[connID.String()] = &connection{sink: sink, subs: make(map[string]*Subscription)}
	}
	return nil
}

// Subscribe adds sub, replacing any subscription with the same id on the
// same connection. maxSubs bounds distinct subscriptions per connection;
// zero means unlimited. Replacement does not count against the limit.
func (r *Registry) Subscribe(sub *Subscription, maxSubs int) (replaced bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[sub.ConnID.String()]
	if !ok {
		return false, ErrUnknownConnection
	}
	_, replaced = c.subs[sub.ID]
	if !replaced && maxSubs > 0 && len(c.subs) >= maxSubs {
		return false, ErrTooMany
	}
	c.subs[sub.ID] = sub
	if !replaced {
		r.total++
	}
	return replaced, nil
}

// Unsubscribe removes one subscription. It reports whether it existed.
func (r *Registry) Unsubscribe(connID id.ID, subID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID.String()]
	if !ok {
		return false
	}
	if _, ok := c.subs[subID]; !ok {
		return false
	}
	delete(c.subs, subID)
	r.total--
	return true
}

// DropConnection removes a connection and all its subscriptions, returning
// how many subscriptions were removed. Dropping an unknown or already
// dropped connection is a no-op.
func (r *Registry) DropConnection(connID id.ID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID.String()]
	if !ok {
		return 0
	}
	n := len(c.subs)
	delete(r.conns, connID.String())
	r.total -= n
	return n
}

// Count returns the number of subscriptions held by a connection.
func (r *Registry) Count(connID id.ID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.conns[connID.String()]; ok {
		return len(c.subs)
	}
	return 0
}

// Len returns the total number of subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

// Connections returns the number of open connections.
func (r *Registry) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// ForEach calls fn for every subscription until fn returns false. The read
// lock is held for the whole pass, so fn sees one consistent snapshot: a
// concurrent Subscribe or Unsubscribe lands entirely before or after it.
// fn must not call back into the registry's mutating methods.
func (r *Registry) ForEach(fn func(Entry) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.conns {
		for _, sub := range c.subs {
			if !fn(Entry{Sub: sub, Sink: c.sink}) {
				return
			}
		}
	}
}

// Drain removes every connection and refuses new ones. It returns the
// sinks that were registered so the caller can close them.
func (r *Registry) Drain() []Sink {
	r.mu.Lock()
	defer r.mu.Unlock()

	sinks := make([]Sink, 0, len(r.conns))
	for _, c := range r.conns {
		sinks = append(sinks, c.sink)
	}
	r.conns = make(map[string]*connection)
	r.total = 0
	r.closed = true
	return sinks
}
