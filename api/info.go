package api

import (
	"encoding/json"
	"net/http"
	"strings"

	relay "github.com/xraph/nostr-relay"
)

const nostrJSON = "application/nostr+json"

// Info is the NIP-11 relay information document.
type Info struct {
	Name          string     `json:"name,omitempty"`
	Description   string     `json:"description,omitempty"`
	PubKey        string     `json:"pubkey,omitempty"`
	Contact       string     `json:"contact,omitempty"`
	SupportedNIPs []int      `json:"supported_nips"`
	Software      string     `json:"software,omitempty"`
	Version       string     `json:"version,omitempty"`
	Limitation    Limitation `json:"limitation"`
}

// Limitation advertises the limits clients should respect.
type Limitation struct {
	MaxMessageLength int  `json:"max_message_length,omitempty"`
	MaxSubscriptions int  `json:"max_subscriptions,omitempty"`
	MaxFilters       int  `json:"max_filters,omitempty"`
	MaxLimit         int  `json:"max_limit,omitempty"`
	MaxSubIDLength   int  `json:"max_subid_length,omitempty"`
	MaxContentLength int  `json:"max_content_length,omitempty"`
	DefaultLimit     int  `json:"default_limit,omitempty"`
	AuthRequired     bool `json:"auth_required"`
	PaymentRequired  bool `json:"payment_required"`
	RestrictedWrites bool `json:"restricted_writes"`
}

// BuildInfo renders the information document for cfg.
func BuildInfo(cfg *relay.Config) Info {
	lim := cfg.Limits
	return Info{
		Name:          cfg.Info.Name,
		Description:   cfg.Info.Description,
		PubKey:        cfg.Info.PubKey,
		Contact:       cfg.Info.Contact,
		SupportedNIPs: cfg.SupportedNIPs(),
		Software:      cfg.Info.Software,
		Version:       cfg.Info.Version,
		Limitation: Limitation{
			MaxMessageLength: int(readLimit(lim.MaxEventSize)),
			MaxSubscriptions: lim.MaxSubscriptions,
			MaxFilters:       lim.MaxFilters,
			MaxLimit:         lim.MaxLimit,
			MaxSubIDLength:   lim.MaxSubIDLength,
			MaxContentLength: lim.MaxEventSize,
			DefaultLimit:     lim.DefaultLimit,
			AuthRequired:     cfg.Auth.Enabled && (cfg.Auth.Read.RequiresAuth() || cfg.Auth.Write.RequiresAuth()),
			RestrictedWrites: cfg.Auth.Write != nil,
		},
	}
}

func (h *Handler) info(w http.ResponseWriter, _ *http.Request) {
	cfg := h.relay.Config()
	setCORS(w)
	w.Header().Set("Content-Type", nostrJSON)
	writeJSONBody(w, BuildInfo(&cfg))
}

func (h *Handler) preflight(w http.ResponseWriter, _ *http.Request) {
	setCORS(w)
	w.WriteHeader(http.StatusNoContent)
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
}

func acceptsNostrJSON(r *http.Request) bool {
	for _, v := range r.Header.Values("Accept") {
		if strings.Contains(v, nostrJSON) {
			return true
		}
	}
	return false
}

func writeJSONBody(w http.ResponseWriter, v any) {
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}
