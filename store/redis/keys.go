package redis

import "strconv"

// Primary event storage: relay:ev:<id> holds the event JSON.
const prefixEvent = "relay:ev:"

// Sorted set indexes, scored by created_at, members are event ids.
const (
	zAll    = "relay:z:all"
	zAuthor = "relay:z:author:" // + pubkey
	zKind   = "relay:z:kind:"   // + kind
	zTag    = "relay:z:tag:"    // + name + ":" + value
)

func eventKey(id string) string { return prefixEvent + id }

func authorKey(pubkey string) string { return zAuthor + pubkey }

func kindKey(kind int) string { return zKind + strconv.Itoa(kind) }

func tagKey(name, value string) string { return zTag + name + ":" + value }
