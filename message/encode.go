package message

import (
	"strconv"

	"github.com/xraph/nostr-relay/event"
)

// AppendEvent appends ["EVENT",<subID>,<evtJSON>] to buf. evtJSON must be
// an already encoded event.
func AppendEvent(buf []byte, subID string, evtJSON []byte) []byte {
	buf = append(buf, `["EVENT",`...)
	buf = event.AppendQuoted(buf, subID)
	buf = append(buf, ',')
	buf = append(buf, evtJSON...)
	return append(buf, ']')
}

// EventFrame returns ["EVENT",<subID>,<evtJSON>].
func EventFrame(subID string, evtJSON []byte) []byte {
	return AppendEvent(make([]byte, 0, len(evtJSON)+len(subID)+16), subID, evtJSON)
}

// OK returns ["OK",<eventID>,<accepted>,<reason>].
func OK(eventID string, accepted bool, reason string) []byte {
	buf := make([]byte, 0, 96+len(reason))
	buf = append(buf, `["OK",`...)
	buf = event.AppendQuoted(buf, eventID)
	buf = append(buf, ',')
	buf = strconv.AppendBool(buf, accepted)
	buf = append(buf, ',')
	buf = event.AppendQuoted(buf, reason)
	return append(buf, ']')
}

// EOSE returns ["EOSE",<subID>].
func EOSE(subID string) []byte {
	return labelled(LabelEOSE, subID)
}

// Notice returns ["NOTICE",<msg>].
func Notice(msg string) []byte {
	return labelled(LabelNotice, msg)
}

// Closed returns ["CLOSED",<subID>,<reason>].
func Closed(subID, reason string) []byte {
	buf := make([]byte, 0, 16+len(subID)+len(reason))
	buf = append(buf, `["CLOSED",`...)
	buf = event.AppendQuoted(buf, subID)
	buf = append(buf, ',')
	buf = event.AppendQuoted(buf, reason)
	return append(buf, ']')
}

// AuthChallenge returns ["AUTH",<challenge>].
func AuthChallenge(challenge string) []byte {
	return labelled(LabelAuth, challenge)
}

// CountResult returns ["COUNT",<subID>,{"count":<n>}].
func CountResult(subID string, n int64) []byte {
	buf := make([]byte, 0, 32+len(subID))
	buf = append(buf, `["COUNT",`...)
	buf = event.AppendQuoted(buf, subID)
	buf = append(buf, `,{"count":`...)
	buf = strconv.AppendInt(buf, n, 10)
	return append(buf, "}]"...)
}

func labelled(label, s string) []byte {
	buf := make([]byte, 0, len(label)+len(s)+8)
	buf = append(buf, '[')
	buf = event.AppendQuoted(buf, label)
	buf = append(buf, ',')
	buf = event.AppendQuoted(buf, s)
	return append(buf, ']')
}
