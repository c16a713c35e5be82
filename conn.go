package relay

import (
	"context"
	"sync"

	"github.com/xraph/nostr-relay/auth"
	"github.com/xraph/nostr-relay/delivery"
	"github.com/xraph/nostr-relay/id"
)

// Conn is the relay's view of one client connection. Frames for the
// client are queued on its Outbox; Handle calls for one Conn must not run
// concurrently.
type Conn struct {
	id       id.ID
	remoteIP string
	config   *Config
	outbox   *delivery.Outbox
	auth     *auth.State

	dropOnce sync.Once
	dropped  int
}

// ID returns the connection handle.
func (c *Conn) ID() id.ID { return c.id }

// RemoteIP returns the client address used for permission checks.
func (c *Conn) RemoteIP() string { return c.remoteIP }

// Outbox returns the queue the connection's writer drains.
func (c *Conn) Outbox() *delivery.Outbox { return c.outbox }

// Config returns the configuration snapshot taken when the connection opened.
func (c *Conn) Config() *Config { return c.config }

// PubKey returns the NIP-42 authenticated pubkey, or "".
func (c *Conn) PubKey() string {
	if c.auth == nil {
		return ""
	}
	return c.auth.PubKey()
}

// send queues frame. Backpressure outcomes are accounted by the outbox.
func (c *Conn) send(frame []byte) error {
	return c.outbox.Enqueue(frame)
}

// sendWait queues frame, waiting for room until ctx ends.
func (c *Conn) sendWait(ctx context.Context, frame []byte) error {
	return c.outbox.EnqueueWait(ctx, frame)
}
