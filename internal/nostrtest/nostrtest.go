// Package nostrtest builds signed events for tests.
package nostrtest

import (
	"testing"
	"time"

	"github.com/xraph/nostr-relay/event"
	"github.com/xraph/nostr-relay/signature"
)

// Signer returns a signer over a freshly generated key.
func Signer(tb testing.TB) *signature.Signer {
	tb.Helper()
	sk, err := signature.GenerateSecretKey()
	if err != nil {
		tb.Fatal(err)
	}
	s, err := signature.NewSigner(sk)
	if err != nil {
		tb.Fatal(err)
	}
	return s
}

// Signed builds and signs an event. A zero createdAt means now.
func Signed(tb testing.TB, s *signature.Signer, kind int, createdAt int64, content string, tags ...event.Tag) *event.Event {
	tb.Helper()
	if createdAt == 0 {
		createdAt = time.Now().Unix()
	}
	evt := &event.Event{
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      event.Tags(tags),
		Content:   content,
	}
	if err := event.Sign(s, evt); err != nil {
		tb.Fatal(err)
	}
	return evt
}
