// Package auth implements NIP-42 client authentication and the read and
// write permission lists checked before REQ, COUNT and EVENT.
package auth

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/nostr-relay/event"
)

// Permission denials. Their messages are the client-facing reasons.
var (
	ErrIPNotWhitelisted     = errors.New("restricted: ip not in whitelist")
	ErrIPBlacklisted        = errors.New("restricted: ip in blacklist")
	ErrPubkeyNotWhitelisted = errors.New("restricted: pubkey not in whitelist")
	ErrPubkeyBlacklisted    = errors.New("restricted: pubkey in blacklist")
	ErrAuthRequired         = errors.New("auth-required: NIP-42 auth required")
)

// AUTH event rejections.
var (
	ErrNotAuthKind        = errors.New("auth: event kind is not 22242")
	ErrChallengeMismatch  = errors.New("auth: challenge mismatch")
	ErrRelayMismatch      = errors.New("auth: relay tag mismatch")
	ErrStaleAuthEvent     = errors.New("auth: created_at too far from now")
	ErrNoChallengePending = errors.New("auth: no challenge issued")
)

// MaxClockSkew bounds how far an AUTH event's created_at may be from now.
const MaxClockSkew = 10 * time.Minute

// Permission lists. A nil list is not checked; an empty whitelist admits
// nobody.
type Permission struct {
	IPWhitelist     []string `json:"ip_whitelist,omitempty"     yaml:"ip_whitelist"     mapstructure:"ip_whitelist"`
	IPBlacklist     []string `json:"ip_blacklist,omitempty"     yaml:"ip_blacklist"     mapstructure:"ip_blacklist"`
	PubkeyWhitelist []string `json:"pubkey_whitelist,omitempty" yaml:"pubkey_whitelist" mapstructure:"pubkey_whitelist"`
	PubkeyBlacklist []string `json:"pubkey_blacklist,omitempty" yaml:"pubkey_blacklist" mapstructure:"pubkey_blacklist"`
}

// Config enables authentication and sets the permissions for reading
// (REQ, COUNT) and writing (EVENT).
type Config struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// RelayURL, when set, must match the AUTH event's relay tag.
	RelayURL string `json:"relay_url,omitempty" yaml:"relay_url" mapstructure:"relay_url"`

	Read  *Permission `json:"read,omitempty"  yaml:"read"  mapstructure:"read"`
	Write *Permission `json:"write,omitempty" yaml:"write" mapstructure:"write"`
}

// Check returns the first denial for a client at ip, authenticated as
// pubkey (empty when not authenticated). A nil p allows everything.
func (p *Permission) Check(ip, pubkey string) error {
	if p == nil {
		return nil
	}
	if p.IPWhitelist != nil && !slices.Contains(p.IPWhitelist, ip) {
		return ErrIPNotWhitelisted
	}
	if slices.Contains(p.IPBlacklist, ip) {
		return ErrIPBlacklisted
	}
	if p.PubkeyWhitelist != nil {
		if pubkey == "" {
			return ErrAuthRequired
		}
		if !slices.Contains(p.PubkeyWhitelist, pubkey) {
			return ErrPubkeyNotWhitelisted
		}
	}
	if p.PubkeyBlacklist != nil {
		if pubkey == "" {
			return ErrAuthRequired
		}
		if slices.Contains(p.PubkeyBlacklist, pubkey) {
			return ErrPubkeyBlacklisted
		}
	}
	return nil
}

// RequiresAuth reports whether p checks pubkeys, which only an
// authenticated connection can pass.
func (p *Permission) RequiresAuth() bool {
	return p != nil && (p.PubkeyWhitelist != nil || p.PubkeyBlacklist != nil)
}

// State is one connection's authentication progress. It is owned by the
// connection's reader and is not safe for concurrent use.
type State struct {
	challenge string
	pubkey    string
}

// NewState issues a fresh challenge.
func NewState() *State {
	return &State{challenge: uuid.NewString()}
}

// Challenge returns the challenge sent to the client.
func (s *State) Challenge() string { return s.challenge }

// PubKey returns the authenticated pubkey, or "" before authentication.
func (s *State) PubKey() string { return s.pubkey }

// Authenticate accepts evt as the response to the pending challenge. The
// caller must already have checked evt's id and signature.
func (s *State) Authenticate(evt *event.Event, cfg Config, now time.Time) error {
	if s.challenge == "" {
		return ErrNoChallengePending
	}
	if evt.Kind != event.KindAuth {
		return ErrNotAuthKind
	}
	if d := now.Sub(time.Unix(evt.CreatedAt, 0)); d > MaxClockSkew || d < -MaxClockSkew {
		return ErrStaleAuthEvent
	}

	var challenged bool
	relayURL := ""
	for _, t := range evt.Tags {
		switch t.Name() {
		case "challenge":
			challenged = challenged || t.Value() == s.challenge
		case "relay":
			relayURL = t.Value()
		}
	}
	if !challenged {
		return ErrChallengeMismatch
	}
	if cfg.RelayURL != "" && !sameRelay(cfg.RelayURL, relayURL) {
		return ErrRelayMismatch
	}

	s.pubkey = evt.PubKey
	return nil
}

func sameRelay(a, b string) bool {
	return strings.EqualFold(strings.TrimRight(a, "/"), strings.TrimRight(b, "/"))
}
