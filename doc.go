// Package relay is a nostr relay engine.
//
// A Relay validates signed events, stores them through a pluggable
// store.Store, and fans each new event out to every live subscription
// whose filters match. Clients talk to it through the session package,
// which owns one connection's reader and writer loops; the api package
// serves the websocket endpoint and the NIP-11 information document.
//
// Supported NIPs: 1 (basic protocol), 11 (relay information), 40
// (expiration), 42 (authentication, when enabled) and 45 (COUNT).
//
// Quick start:
//
//	r, err := relay.New(
//	    relay.WithStore(memory.New()),
//	    relay.WithLogger(logger),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	c, _ := r.OpenConnection(remoteIP)
//	defer r.DropConnection(c)
//
//	_ = r.Handle(ctx, c, []byte(`["REQ","feed",{"kinds":[1]}]`))
//	frame, _ := c.Outbox().Next(ctx)
//
// Backends live under store/: memory, leveldb, sqlite, postgres, redis
// and mongo.
package relay
