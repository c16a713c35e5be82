package filter_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/xraph/nostr-relay/filter"
)

func TestUnmarshalAbsentVersusEmpty(t *testing.T) {
	var absent, empty filter.Filter
	if err := json.Unmarshal([]byte(`{}`), &absent); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(`{"ids":[],"kinds":[],"#e":[]}`), &empty); err != nil {
		t.Fatal(err)
	}

	if absent.IDs != nil || absent.Kinds != nil || absent.Tags != nil {
		t.Fatalf("absent fields decoded as present: %+v", absent)
	}
	if empty.IDs == nil || empty.Kinds == nil {
		t.Fatalf("empty sets decoded as absent: %+v", empty)
	}
	if vals, ok := empty.Tags["e"]; !ok || vals == nil {
		t.Fatalf("empty #e decoded as absent: %+v", empty.Tags)
	}
}

func TestUnmarshalFields(t *testing.T) {
	var f filter.Filter
	raw := `{"ids":["ab"],"authors":["cd"],"kinds":[1,7],"#e":["x"],"#P":["y"],"#long":["z"],"since":10,"until":20,"limit":5,"search":"q"}`
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		t.Fatal(err)
	}

	if len(f.IDs) != 1 || f.IDs[0] != "ab" {
		t.Errorf("IDs = %v", f.IDs)
	}
	if len(f.Kinds) != 2 {
		t.Errorf("Kinds = %v", f.Kinds)
	}
	if f.Tags["e"][0] != "x" || f.Tags["P"][0] != "y" {
		t.Errorf("Tags = %v", f.Tags)
	}
	if _, ok := f.Tags["long"]; ok {
		t.Error("multi-letter tag key should be ignored")
	}
	if *f.Since != 10 || *f.Until != 20 || *f.Limit != 5 {
		t.Errorf("since/until/limit = %d/%d/%d", *f.Since, *f.Until, *f.Limit)
	}
}

func TestUnmarshalRejectsBadTypes(t *testing.T) {
	bad := []string{
		`[]`,
		`{"ids":"ab"}`,
		`{"kinds":["1"]}`,
		`{"since":"yesterday"}`,
		`{"#e":[1]}`,
	}
	for _, raw := range bad {
		var f filter.Filter
		if err := json.Unmarshal([]byte(raw), &f); err == nil {
			t.Errorf("Unmarshal(%s) succeeded, want error", raw)
		}
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	raw := `{"ids":[],"kinds":[1],"#e":["x"],"#p":["y"],"since":3,"limit":2}`
	var f filter.Filter
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		t.Fatal(err)
	}
	out, err := json.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"ids":[],"kinds":[1],"#e":["x"],"#p":["y"],"since":3,"limit":2}`
	if string(out) != want {
		t.Fatalf("Marshal() = %s, want %s", out, want)
	}
}

func TestValidate(t *testing.T) {
	lim := filter.Limits{MaxIDs: 2, MaxAuthors: 2, MaxKinds: 2, MaxTagValues: 2}

	tests := []struct {
		name string
		f    filter.Filter
		ok   bool
	}{
		{"empty", filter.Filter{}, true},
		{"within limits", filter.Filter{IDs: []string{"ab", "cd"}, Kinds: []int{1}}, true},
		{"too many ids", filter.Filter{IDs: []string{"a", "b", "c"}}, false},
		{"too many authors", filter.Filter{Authors: []string{"a", "b", "c"}}, false},
		{"too many kinds", filter.Filter{Kinds: []int{1, 2, 3}}, false},
		{"too many tag values", filter.Filter{Tags: map[string][]string{"e": {"1", "2", "3"}}}, false},
		{"non-hex id", filter.Filter{IDs: []string{"xyz"}}, false},
		{"uppercase author", filter.Filter{Authors: []string{"AB"}}, false},
		{"overlong id", filter.Filter{IDs: []string{strings.Repeat("a", 65)}}, false},
		{"kind out of range", filter.Filter{Kinds: []int{70000}}, false},
		{"negative limit", filter.Filter{Limit: ptr(-1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.f.Validate(lim)
			if tt.ok && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
			if !tt.ok && !errors.Is(err, filter.ErrInvalid) {
				t.Fatalf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestEffectiveLimit(t *testing.T) {
	f := filter.Filter{}
	if got := f.EffectiveLimit(100, 500); got != 100 {
		t.Errorf("absent limit = %d, want default 100", got)
	}
	f.Limit = ptr(10)
	if got := f.EffectiveLimit(100, 500); got != 10 {
		t.Errorf("explicit limit = %d, want 10", got)
	}
	f.Limit = ptr(10000)
	if got := f.EffectiveLimit(100, 500); got != 500 {
		t.Errorf("capped limit = %d, want 500", got)
	}
}
