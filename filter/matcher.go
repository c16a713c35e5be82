package filter

import (
	"strings"

	"github.com/xraph/nostr-relay/event"
)

// Matches reports whether evt satisfies every present field of f.
// Fields are checked cheapest-rejecting first: ids, authors, kinds, tags,
// then the time window. It does not allocate.
func Matches(evt *event.Event, f *Filter) bool {
	if f.IDs != nil && !matchPrefix(f.IDs, evt.ID) {
		return false
	}
	if f.Authors != nil && !matchPrefix(f.Authors, evt.PubKey) {
		return false
	}
	if f.Kinds != nil && !containsKind(f.Kinds, evt.Kind) {
		return false
	}
	for name, values := range f.Tags {
		if !matchTag(evt.Tags, name, values) {
			return false
		}
	}
	if f.Since != nil && evt.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && evt.CreatedAt > *f.Until {
		return false
	}
	return true
}

// MatchesAny reports whether evt matches at least one filter.
func MatchesAny(evt *event.Event, filters []Filter) bool {
	for i := range filters {
		if Matches(evt, &filters[i]) {
			return true
		}
	}
	return false
}

// matchPrefix accepts full hex values and hex prefixes.
func matchPrefix(set []string, v string) bool {
	for _, p := range set {
		if strings.HasPrefix(v, p) {
			return true
		}
	}
	return false
}

func containsKind(kinds []int, k int) bool {
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}

func matchTag(tags event.Tags, name string, values []string) bool {
	for _, t := range tags {
		if len(t) < 2 || t[0] != name {
			continue
		}
		for _, v := range values {
			if t[1] == v {
				return true
			}
		}
	}
	return false
}
