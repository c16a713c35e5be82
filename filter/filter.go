// Package filter implements NIP-01 subscription filters and the matcher
// used both for live fan-out and for store backfill.
//
// A nil slice (or nil map entry) means the field is absent and does not
// constrain. A present but empty set constrains to nothing, so a filter
// with "ids": [] matches no event.
package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Filter is one NIP-01 filter.
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	// Tags maps a single-letter tag name to accepted first values.
	Tags  map[string][]string
	Since *int64
	Until *int64
	Limit *int
}

// UnmarshalJSON decodes a filter object, collecting "#<letter>" keys into
// Tags. Unknown keys are ignored.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("filter: expected object")
	}

	*f = Filter{}
	for key, val := range raw {
		var err error
		switch {
		case key == "ids":
			err = decodeSet(val, &f.IDs)
		case key == "authors":
			err = decodeSet(val, &f.Authors)
		case key == "kinds":
			err = decodeSet(val, &f.Kinds)
		case key == "since":
			f.Since, err = decodeInt64(val)
		case key == "until":
			f.Until, err = decodeInt64(val)
		case key == "limit":
			var n *int64
			n, err = decodeInt64(val)
			if n != nil {
				l := int(*n)
				f.Limit = &l
			}
		case isTagKey(key):
			var vals []string
			if err = decodeSet(val, &vals); err == nil && vals != nil {
				if f.Tags == nil {
					f.Tags = make(map[string][]string)
				}
				f.Tags[key[1:]] = vals
			}
		}
		if err != nil {
			return fmt.Errorf("filter: field %q: %w", key, err)
		}
	}
	return nil
}

// MarshalJSON encodes the filter with tag keys in sorted order.
func (f Filter) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	field := func(name string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.WriteString(strconv.Quote(name))
		buf.WriteByte(':')
		buf.Write(b)
		return nil
	}

	if f.IDs != nil {
		if err := field("ids", f.IDs); err != nil {
			return nil, err
		}
	}
	if f.Authors != nil {
		if err := field("authors", f.Authors); err != nil {
			return nil, err
		}
	}
	if f.Kinds != nil {
		if err := field("kinds", f.Kinds); err != nil {
			return nil, err
		}
	}
	keys := make([]string, 0, len(f.Tags))
	for k := range f.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := field("#"+k, f.Tags[k]); err != nil {
			return nil, err
		}
	}
	if f.Since != nil {
		if err := field("since", *f.Since); err != nil {
			return nil, err
		}
	}
	if f.Until != nil {
		if err := field("until", *f.Until); err != nil {
			return nil, err
		}
	}
	if f.Limit != nil {
		if err := field("limit", *f.Limit); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// decodeSet decodes a JSON array into dst. null leaves dst absent; [] gives
// a present empty set.
func decodeSet[T any](val json.RawMessage, dst *[]T) error {
	if bytes.Equal(bytes.TrimSpace(val), []byte("null")) {
		return nil
	}
	var out []T
	if err := json.Unmarshal(val, &out); err != nil {
		return err
	}
	if out == nil {
		out = []T{}
	}
	*dst = out
	return nil
}

func decodeInt64(val json.RawMessage) (*int64, error) {
	if bytes.Equal(bytes.TrimSpace(val), []byte("null")) {
		return nil, nil
	}
	var n int64
	if err := json.Unmarshal(val, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func isTagKey(key string) bool {
	if len(key) != 2 || key[0] != '#' {
		return false
	}
	c := key[1]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
