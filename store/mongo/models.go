package mongo

import (
	"github.com/xraph/grove"

	"github.com/xraph/nostr-relay/event"
)

// eventModel is the document stored in relay_events. TagIndex holds
// "name:value" for every single-letter tag and backs a multikey index.
type eventModel struct {
	grove.BaseModel `grove:"table:relay_events"`

	ID        string     `grove:"id,pk"      bson:"_id"`
	PubKey    string     `grove:"pubkey"     bson:"pubkey"`
	CreatedAt int64      `grove:"created_at" bson:"created_at"`
	Kind      int        `grove:"kind"       bson:"kind"`
	Tags      [][]string `grove:"tags"       bson:"tags"`
	Content   string     `grove:"content"    bson:"content"`
	Sig       string     `grove:"sig"        bson:"sig"`
	TagIndex  []string   `grove:"tag_index"  bson:"tag_index,omitempty"`
}

func toEventModel(evt *event.Event) *eventModel {
	m := &eventModel{
		ID:        evt.ID,
		PubKey:    evt.PubKey,
		CreatedAt: evt.CreatedAt,
		Kind:      evt.Kind,
		Tags:      make([][]string, len(evt.Tags)),
		Content:   evt.Content,
		Sig:       evt.Sig,
	}
	for i, t := range evt.Tags {
		m.Tags[i] = []string(t)
		if len(t) >= 2 && len(t[0]) == 1 {
			m.TagIndex = append(m.TagIndex, tagIndexValue(t[0], t[1]))
		}
	}
	return m
}

func fromEventModel(m *eventModel) *event.Event {
	evt := &event.Event{
		ID:        m.ID,
		PubKey:    m.PubKey,
		CreatedAt: m.CreatedAt,
		Kind:      m.Kind,
		Content:   m.Content,
		Sig:       m.Sig,
	}
	if len(m.Tags) > 0 {
		evt.Tags = make(event.Tags, len(m.Tags))
		for i, t := range m.Tags {
			evt.Tags[i] = event.Tag(t)
		}
	}
	return evt
}

func tagIndexValue(name, value string) string {
	return name + ":" + value
}
