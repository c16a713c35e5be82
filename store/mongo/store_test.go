package mongo

import (
	"reflect"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/nostr-relay/event"
	"github.com/xraph/nostr-relay/filter"
)

func ptr[T any](v T) *T { return &v }

func TestModelRoundTrip(t *testing.T) {
	evt := &event.Event{
		ID:        strings.Repeat("a", 64),
		PubKey:    strings.Repeat("b", 64),
		CreatedAt: 100,
		Kind:      1,
		Tags:      event.Tags{{"e", "x"}, {"alt", "y"}, {"p"}},
		Content:   "hi",
		Sig:       strings.Repeat("c", 128),
	}
	m := toEventModel(evt)
	if !reflect.DeepEqual(m.TagIndex, []string{"e:x"}) {
		t.Fatalf("tag index = %v", m.TagIndex)
	}

	raw, err := bson.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	var back eventModel
	if err := bson.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	if got := fromEventModel(&back); !reflect.DeepEqual(got, evt) {
		t.Fatalf("round trip:\n got %+v\nwant %+v", got, evt)
	}
}

func TestBuildFilter(t *testing.T) {
	full := strings.Repeat("a", 64)

	tests := []struct {
		name   string
		filter filter.Filter
		want   bson.M
		ok     bool
	}{
		{"empty matches all", filter.Filter{}, bson.M{}, true},
		{"empty kinds matches none", filter.Filter{Kinds: []int{}}, nil, false},
		{"empty tag values matches none", filter.Filter{Tags: map[string][]string{"e": {}}}, nil, false},
		{
			"kinds and range",
			filter.Filter{Kinds: []int{1, 7}, Since: ptr(int64(10)), Until: ptr(int64(20))},
			bson.M{"$and": bson.A{
				bson.M{"kind": bson.M{"$in": []int{1, 7}}},
				bson.M{"created_at": bson.M{"$gte": int64(10), "$lte": int64(20)}},
			}},
			true,
		},
		{
			"full id",
			filter.Filter{IDs: []string{full}},
			bson.M{"$and": bson.A{bson.M{"_id": bson.M{"$in": []string{full}}}}},
			true,
		},
		{
			"prefix and full author",
			filter.Filter{Authors: []string{"ab", full}},
			bson.M{"$and": bson.A{bson.M{"$or": bson.A{
				bson.M{"pubkey": bson.Regex{Pattern: "^ab"}},
				bson.M{"pubkey": bson.M{"$in": []string{full}}},
			}}}},
			true,
		},
		{
			"tags",
			filter.Filter{Tags: map[string][]string{"p": {"x"}, "e": {"y", "z"}}},
			bson.M{"$and": bson.A{
				bson.M{"tag_index": bson.M{"$in": []string{"e:y", "e:z"}}},
				bson.M{"tag_index": bson.M{"$in": []string{"p:x"}}},
			}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := buildFilter(&tt.filter)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %#v\nwant %#v", got, tt.want)
			}
		})
	}
}

func TestInsertDocument(t *testing.T) {
	evt := &event.Event{
		ID:        strings.Repeat("a", 64),
		PubKey:    strings.Repeat("b", 64),
		CreatedAt: 100,
		Kind:      1,
		Tags:      event.Tags{{"e", "x"}},
		Sig:       strings.Repeat("c", 128),
	}
	q := mongodriver.New().NewInsert(toEventModel(evt))
	if q.GetCollection() != colEvents {
		t.Fatalf("collection = %q", q.GetCollection())
	}
	doc, err := q.BuildDoc()
	if err != nil {
		t.Fatal(err)
	}
	if doc["_id"] != evt.ID || doc["pubkey"] != evt.PubKey || doc["created_at"] != int64(100) {
		t.Fatalf("doc = %v", doc)
	}
	if !reflect.DeepEqual(doc["tag_index"], []string{"e:x"}) {
		t.Fatalf("tag_index = %v", doc["tag_index"])
	}
}

func TestFindQueryNewestFirst(t *testing.T) {
	doc, _ := buildFilter(&filter.Filter{Kinds: []int{1}})
	var models []eventModel
	q := mongodriver.New().NewFind(&models).Filter(doc).Sort(newestFirst).Limit(5)

	if q.GetCollection() != colEvents || q.GetLimit() != 5 {
		t.Fatalf("collection=%q limit=%d", q.GetCollection(), q.GetLimit())
	}
	if !reflect.DeepEqual(q.GetSort(), newestFirst) {
		t.Fatalf("sort = %v", q.GetSort())
	}
	if !reflect.DeepEqual(q.GetFilter(), doc) {
		t.Fatalf("filter = %v", q.GetFilter())
	}
}
