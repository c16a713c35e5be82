package sqlite

import (
	"encoding/json"
	"fmt"

	"github.com/xraph/grove"

	"github.com/xraph/nostr-relay/event"
	"github.com/xraph/nostr-relay/store/internal/sqlq"
)

// --- Event models ---

type eventModel struct {
	grove.BaseModel `grove:"table:relay_events,alias:e"`

	ID        string `grove:"id,pk"`
	PubKey    string `grove:"pubkey,notnull"`
	CreatedAt int64  `grove:"created_at,notnull"`
	Kind      int    `grove:"kind,notnull"`
	Raw       string `grove:"raw,notnull"`
}

type tagModel struct {
	grove.BaseModel `grove:"table:relay_event_tags"`

	EventID string `grove:"event_id,notnull"`
	Name    string `grove:"name,notnull"`
	Value   string `grove:"value,notnull"`
}

func toEventModel(evt *event.Event) *eventModel {
	return &eventModel{
		ID:        evt.ID,
		PubKey:    evt.PubKey,
		CreatedAt: evt.CreatedAt,
		Kind:      evt.Kind,
		Raw:       string(event.Encode(evt)),
	}
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	var evt event.Event
	if err := json.Unmarshal([]byte(m.Raw), &evt); err != nil {
		return nil, fmt.Errorf("relay/sqlite: decode event %s: %w", m.ID, err)
	}
	return &evt, nil
}

func toTagModels(evt *event.Event) []tagModel {
	indexed := sqlq.IndexedTags(evt)
	out := make([]tagModel, len(indexed))
	for i, t := range indexed {
		out[i] = tagModel{EventID: evt.ID, Name: t[0], Value: t[1]}
	}
	return out
}
