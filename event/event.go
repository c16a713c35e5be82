// Package event defines the nostr event model, its canonical serialization
// and id derivation, and the validator that every inbound event passes
// before it is stored or forwarded.
package event

import (
	"strconv"
)

// Kind ranges with protocol-defined storage semantics.
const (
	KindAuth = 22242

	ephemeralMin = 20000
	ephemeralMax = 29999
)

// Tag is one tag entry. The first element is the tag name, the rest are
// values.
type Tag []string

// Name returns the tag name or "" for an empty tag.
func (t Tag) Name() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// Value returns the first value of the tag or "" when it has none.
func (t Tag) Value() string {
	if len(t) < 2 {
		return ""
	}
	return t[1]
}

// Tags is the ordered tag list of an event.
type Tags []Tag

// Find returns the first tag with the given name.
func (ts Tags) Find(name string) (Tag, bool) {
	for _, t := range ts {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// Event is a signed nostr event. ID, PubKey and Sig are lowercase hex.
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// IsEphemeral reports whether the event kind is forwarded but never stored.
func (e *Event) IsEphemeral() bool {
	return e.Kind >= ephemeralMin && e.Kind <= ephemeralMax
}

// Expiration returns the NIP-40 expiration timestamp, if the event has a
// well-formed expiration tag.
func (e *Event) Expiration() (int64, bool) {
	t, ok := e.Tags.Find("expiration")
	if !ok {
		return 0, false
	}
	ts, err := strconv.ParseInt(t.Value(), 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

// MarshalJSON encodes the event with nostr escaping rules so that the
// bytes sent to clients match what was signed.
func (e *Event) MarshalJSON() ([]byte, error) {
	return Encode(e), nil
}
