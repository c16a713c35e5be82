// Package message decodes inbound client frames into typed envelopes and
// encodes outbound relay frames.
package message

import (
	"encoding/json"

	"github.com/xraph/nostr-relay/filter"
)

// Frame labels.
const (
	LabelEvent  = "EVENT"
	LabelReq    = "REQ"
	LabelClose  = "CLOSE"
	LabelCount  = "COUNT"
	LabelAuth   = "AUTH"
	LabelEOSE   = "EOSE"
	LabelOK     = "OK"
	LabelNotice = "NOTICE"
	LabelClosed = "CLOSED"
)

// Envelope is one decoded client frame: *Event, *Req, *Close, *Count or
// *Auth.
type Envelope interface {
	Label() string
}

// Event carries a published event. The event itself is left raw for the
// validator.
type Event struct {
	Raw json.RawMessage
}

// Req opens or replaces a subscription.
type Req struct {
	SubID   string
	Filters []filter.Filter
}

// Close ends a subscription.
type Close struct {
	SubID string
}

// Count asks for the number of stored events matching the filters.
type Count struct {
	SubID   string
	Filters []filter.Filter
}

// Auth carries a signed authentication event.
type Auth struct {
	Raw json.RawMessage
}

func (*Event) Label() string { return LabelEvent }
func (*Req) Label() string   { return LabelReq }
func (*Close) Label() string { return LabelClose }
func (*Count) Label() string { return LabelCount }
func (*Auth) Label() string  { return LabelAuth }
