package message_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/xraph/nostr-relay/message"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		label string
	}{
		{"event", `["EVENT",{"id":"x"}]`, message.LabelEvent},
		{"req", `["REQ","sub",{"kinds":[1]},{"authors":["ab"]}]`, message.LabelReq},
		{"req no filters", `["REQ","sub"]`, message.LabelReq},
		{"close", `["CLOSE","sub"]`, message.LabelClose},
		{"count", `["COUNT","c",{}]`, message.LabelCount},
		{"auth", `["AUTH",{"kind":22242}]`, message.LabelAuth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := message.Decode([]byte(tt.frame))
			if err != nil {
				t.Fatalf("Decode() = %v", err)
			}
			if env.Label() != tt.label {
				t.Fatalf("Label() = %q, want %q", env.Label(), tt.label)
			}
		})
	}
}

func TestDecodeReqFilters(t *testing.T) {
	env, err := message.Decode([]byte(`["REQ","sub",{"kinds":[1]},{"#e":["a"]}]`))
	if err != nil {
		t.Fatal(err)
	}
	req := env.(*message.Req)
	if req.SubID != "sub" || len(req.Filters) != 2 {
		t.Fatalf("req = %+v", req)
	}
	if req.Filters[1].Tags["e"][0] != "a" {
		t.Fatalf("filter tags = %v", req.Filters[1].Tags)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		subID string
	}{
		{"not json", `nope`, ""},
		{"object", `{"a":1}`, ""},
		{"empty array", `[]`, ""},
		{"numeric label", `[1,2]`, ""},
		{"unknown label", `["HELLO"]`, ""},
		{"event not object", `["EVENT","x"]`, ""},
		{"event extra", `["EVENT",{},{}]`, ""},
		{"req no id", `["REQ"]`, ""},
		{"req numeric id", `["REQ",5,{}]`, ""},
		{"req empty id", `["REQ","",{}]`, ""},
		{"req bad filter", `["REQ","s",{"kinds":"x"}]`, "s"},
		{"close no id", `["CLOSE"]`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := message.Decode([]byte(tt.frame))
			var me *message.Error
			if !errors.As(err, &me) {
				t.Fatalf("Decode() = %v, want *message.Error", err)
			}
			if me.SubID != tt.subID {
				t.Fatalf("SubID = %q, want %q", me.SubID, tt.subID)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want string
	}{
		{"event", message.EventFrame("s", []byte(`{"id":"x"}`)), `["EVENT","s",{"id":"x"}]`},
		{"ok true", message.OK("abc", true, ""), `["OK","abc",true,""]`},
		{"ok false", message.OK("abc", false, "invalid: bad id"), `["OK","abc",false,"invalid: bad id"]`},
		{"eose", message.EOSE("s"), `["EOSE","s"]`},
		{"notice", message.Notice("say \"hi\""), `["NOTICE","say \"hi\""]`},
		{"closed", message.Closed("s", "error: x"), `["CLOSED","s","error: x"]`},
		{"auth", message.AuthChallenge("c"), `["AUTH","c"]`},
		{"count", message.CountResult("s", 12), `["COUNT","s",{"count":12}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.got) != tt.want {
				t.Fatalf("got %s, want %s", tt.got, tt.want)
			}
			if !json.Valid(tt.got) {
				t.Fatalf("invalid json: %s", tt.got)
			}
		})
	}
}
