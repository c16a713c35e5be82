package postgres

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
	Kind      int32  `grove:"kind,notnull"`
	Tags      string `grove:"tags,type:jsonb"`
	Content   string `grove:"content"`
	Sig       string `grove:"sig,notnull"`
}

type tagModel struct {
	grove.BaseModel `grove:"table:relay_event_tags"`

	EventID string `grove:"event_id,notnull"`
	Name    string `grove:"name,notnull"`
	Value   string `grove:"value,notnull"`
}

func toEventModel(evt *event.Event) (*eventModel, error) {
	tags := evt.Tags
	if tags == nil {
		tags = event.Tags{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("relay/postgres: encode tags: %w", err)
	}
	return &eventModel{
		ID:        evt.ID,
		PubKey:    evt.PubKey,
		CreatedAt: evt.CreatedAt,
		Kind:      int32(evt.Kind),
		Tags:      string(raw),
		Content:   evt.Content,
		Sig:       evt.Sig,
	}, nil
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	evt := &event.Event{
		ID:        m.ID,
		PubKey:    m.PubKey,
		CreatedAt: m.CreatedAt,
		Kind:      int(m.Kind),
		Content:   m.Content,
		Sig:       m.Sig,
	}
	if err := json.Unmarshal([]byte(m.Tags), &evt.Tags); err != nil {
		return nil, fmt.Errorf("relay/postgres: decode tags of %s: %w", m.ID, err)
	}
	return evt, nil
}

func toTagModels(evt *event.Event) []tagModel {
	indexed := sqlq.IndexedTags(evt)
	out := make([]tagModel, len(indexed))
	for i, t := range indexed {
		out[i] = tagModel{EventID: evt.ID, Name: t[0], Value: t[1]}
	}
	return out
}
