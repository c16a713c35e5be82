package config_test

import (
	"testing"

	relay "github.com/xraph/nostr-relay"
	"github.com/xraph/nostr-relay/store/memory"
)

func newRelay(t *testing.T, cfg relay.Config) *relay.Relay {
	t.Helper()
	r, err := relay.New(relay.WithStore(memory.New()), relay.WithConfig(cfg))
	if err != nil {
		t.Fatal(err)
	}
	return r
}
