package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/xraph/nostr-relay/signature"
)

// Validator checks inbound events structurally and cryptographically.
// It is safe for concurrent use and has no side effects.
type Validator struct {
	schema     *jsonschema.Schema
	now        func() time.Time
	futureSkew time.Duration
	pastSkew   time.Duration
	maxSize    int
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithClock sets the time source used for timestamp checks.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) { v.now = now }
}

// WithFutureSkew rejects events created further than d in the future.
// Zero disables the check.
func WithFutureSkew(d time.Duration) ValidatorOption {
	return func(v *Validator) { v.futureSkew = d }
}

// WithPastSkew rejects events created further than d in the past.
// Zero disables the check.
func WithPastSkew(d time.Duration) ValidatorOption {
	return func(v *Validator) { v.pastSkew = d }
}

// WithMaxSize rejects raw events larger than n bytes. Zero disables the check.
func WithMaxSize(n int) ValidatorOption {
	return func(v *Validator) { v.maxSize = n }
}

// NewValidator compiles the event schema and applies opts.
func NewValidator(opts ...ValidatorOption) (*Validator, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, fmt.Errorf("event: %w", err)
	}
	v := &Validator{
		schema:     schema,
		now:        time.Now,
		futureSkew: 15 * time.Minute,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate decodes raw and runs every check. On failure the returned error
// is a *ValidationError; the decoded event is still returned when decoding
// succeeded so callers can echo its id.
func (v *Validator) Validate(raw []byte) (*Event, error) {
	if v.maxSize > 0 && len(raw) > v.maxSize {
		return nil, invalid(ErrTooLarge, fmt.Sprintf("event exceeds %d bytes", v.maxSize))
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, invalid(ErrMalformed, "malformed event json")
	}

	var evt Event
	if err := v.schema.Validate(doc); err != nil {
		// Best effort so the caller can still echo the id.
		_ = json.Unmarshal(raw, &evt)
		return &evt, invalid(ErrMalformed, schemaReason(err))
	}
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, invalid(ErrMalformed, "malformed event json")
	}

	if err := v.Check(&evt); err != nil {
		return &evt, err
	}
	return &evt, nil
}

// Check verifies an already decoded event: id, signature, timestamp and
// expiration, in that order.
func (v *Validator) Check(evt *Event) error {
	hash := Hash(evt)
	if !equalHex(evt.ID, hash[:]) {
		return invalid(ErrBadID, "bad id")
	}
	if err := signature.Verify(evt.PubKey, hash[:], evt.Sig); err != nil {
		return invalid(ErrBadSignature, "bad signature")
	}

	now := v.now().Unix()
	if v.futureSkew > 0 && evt.CreatedAt > now+int64(v.futureSkew/time.Second) {
		return invalid(ErrTimestampOutOfRange, "created_at too far in the future")
	}
	if v.pastSkew > 0 && evt.CreatedAt < now-int64(v.pastSkew/time.Second) {
		return invalid(ErrTimestampOutOfRange, "created_at too far in the past")
	}
	if exp, ok := evt.Expiration(); ok && exp <= now {
		return invalid(ErrExpired, "event has expired")
	}
	return nil
}

// equalHex compares a lowercase hex string against raw bytes without
// allocating.
func equalHex(h string, b []byte) bool {
	if len(h) != len(b)*2 {
		return false
	}
	for i, c := range b {
		if h[2*i] != hexDigits[c>>4] || h[2*i+1] != hexDigits[c&0xf] {
			return false
		}
	}
	return true
}
