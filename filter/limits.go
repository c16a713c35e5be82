package filter

import (
	"errors"
	"fmt"
)

// ErrInvalid is returned by Validate for filters the relay will not serve.
var ErrInvalid = errors.New("filter: invalid")

// Limits bounds the size of a single filter. Zero fields are unlimited.
type Limits struct {
	MaxIDs       int `json:"max_ids" yaml:"max_ids" mapstructure:"max_ids"`
	MaxAuthors   int `json:"max_authors" yaml:"max_authors" mapstructure:"max_authors"`
	MaxKinds     int `json:"max_kinds" yaml:"max_kinds" mapstructure:"max_kinds"`
	MaxTagValues int `json:"max_tag_values" yaml:"max_tag_values" mapstructure:"max_tag_values"`
}

// Validate checks f against lim and rejects values that can never match,
// such as non-hex id prefixes.
func (f *Filter) Validate(lim Limits) error {
	if err := checkHexSet("ids", f.IDs, lim.MaxIDs); err != nil {
		return err
	}
	if err := checkHexSet("authors", f.Authors, lim.MaxAuthors); err != nil {
		return err
	}
	if lim.MaxKinds > 0 && len(f.Kinds) > lim.MaxKinds {
		return fmt.Errorf("%w: too many kinds (max %d)", ErrInvalid, lim.MaxKinds)
	}
	for _, k := range f.Kinds {
		if k < 0 || k > 65535 {
			return fmt.Errorf("%w: kind %d out of range", ErrInvalid, k)
		}
	}
	for name, vals := range f.Tags {
		if lim.MaxTagValues > 0 && len(vals) > lim.MaxTagValues {
			return fmt.Errorf("%w: too many #%s values (max %d)", ErrInvalid, name, lim.MaxTagValues)
		}
	}
	if f.Limit != nil && *f.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalid)
	}
	return nil
}

// EffectiveLimit returns how many stored events to backfill for f: its own
// limit capped at max, or def when absent.
func (f *Filter) EffectiveLimit(def, maxLimit int) int {
	n := def
	if f.Limit != nil {
		n = *f.Limit
	}
	if maxLimit > 0 && n > maxLimit {
		n = maxLimit
	}
	return n
}

func checkHexSet(field string, vals []string, maxVals int) error {
	if maxVals > 0 && len(vals) > maxVals {
		return fmt.Errorf("%w: too many %s (max %d)", ErrInvalid, field, maxVals)
	}
	for _, v := range vals {
		if len(v) == 0 || len(v) > 64 || !isLowerHex(v) {
			return fmt.Errorf("%w: %s entry %q is not a hex prefix", ErrInvalid, field, v)
		}
	}
	return nil
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
