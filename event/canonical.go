package event

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"unicode/utf8"
)

const hexDigits = "0123456789abcdef"

// Serialize returns the canonical form hashed to produce the event id:
// [0,<pubkey>,<created_at>,<kind>,<tags>,<content>].
func Serialize(e *Event) []byte {
	buf := make([]byte, 0, 100+len(e.Content)+64*len(e.Tags))
	buf = append(buf, "[0,"...)
	buf = AppendQuoted(buf, e.PubKey)
	buf = append(buf, ',')
	buf = strconv.AppendInt(buf, e.CreatedAt, 10)
	buf = append(buf, ',')
	buf = strconv.AppendInt(buf, int64(e.Kind), 10)
	buf = append(buf, ',')
	buf = appendTags(buf, e.Tags)
	buf = append(buf, ',')
	buf = AppendQuoted(buf, e.Content)
	buf = append(buf, ']')
	return buf
}

// Hash returns sha256 of the canonical serialization.
func Hash(e *Event) [32]byte {
	return sha256.Sum256(Serialize(e))
}

// ComputeID returns the hex id the event should carry.
func ComputeID(e *Event) string {
	h := Hash(e)
	return hex.EncodeToString(h[:])
}

// Encode renders the event as a JSON object using the same string escaping
// as the canonical form. Field order is fixed.
func Encode(e *Event) []byte {
	buf := make([]byte, 0, 300+len(e.Content)+64*len(e.Tags))
	return AppendEncoded(buf, e)
}

// AppendEncoded appends the JSON encoding of e to buf.
func AppendEncoded(buf []byte, e *Event) []byte {
	buf = append(buf, `{"id":`...)
	buf = AppendQuoted(buf, e.ID)
	buf = append(buf, `,"pubkey":`...)
	buf = AppendQuoted(buf, e.PubKey)
	buf = append(buf, `,"created_at":`...)
	buf = strconv.AppendInt(buf, e.CreatedAt, 10)
	buf = append(buf, `,"kind":`...)
	buf = strconv.AppendInt(buf, int64(e.Kind), 10)
	buf = append(buf, `,"tags":`...)
	buf = appendTags(buf, e.Tags)
	buf = append(buf, `,"content":`...)
	buf = AppendQuoted(buf, e.Content)
	buf = append(buf, `,"sig":`...)
	buf = AppendQuoted(buf, e.Sig)
	buf = append(buf, '}')
	return buf
}

func appendTags(buf []byte, tags Tags) []byte {
	buf = append(buf, '[')
	for i, t := range tags {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '[')
		for j, s := range t {
			if j > 0 {
				buf = append(buf, ',')
			}
			buf = AppendQuoted(buf, s)
		}
		buf = append(buf, ']')
	}
	return append(buf, ']')
}

// AppendQuoted appends s as a JSON string. Only the characters NIP-01
// requires are escaped; everything else is copied as UTF-8.
func AppendQuoted(buf []byte, s string) []byte {
	buf = append(buf, '"')
	start := 0
	for i := 0; i < len(s); {
		c := s[i]
		if c >= utf8.RuneSelf {
			i++
			continue
		}
		var esc string
		switch c {
		case '"':
			esc = `\"`
		case '\\':
			esc = `\\`
		case '\n':
			esc = `\n`
		case '\r':
			esc = `\r`
		case '\t':
			esc = `\t`
		case '\b':
			esc = `\b`
		case '\f':
			esc = `\f`
		default:
			if c >= 0x20 {
				i++
				continue
			}
		}
		buf = append(buf, s[start:i]...)
		if esc != "" {
			buf = append(buf, esc...)
		} else {
			buf = append(buf, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
		}
		i++
		start = i
	}
	buf = append(buf, s[start:]...)
	return append(buf, '"')
}
