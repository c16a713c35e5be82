package message

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/xraph/nostr-relay/filter"
)

// Error is a malformed frame. SubID is set when the frame was a REQ or
// COUNT whose id could be read, so the caller can answer with CLOSED.
type Error struct {
	Label  string
	SubID  string
	Reason string
}

func (e *Error) Error() string {
	if e.Label == "" {
		return "message: " + e.Reason
	}
	return "message: " + e.Label + ": " + e.Reason
}

// Decode parses one client frame.
func Decode(frame []byte) (Envelope, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(frame, &parts); err != nil {
		return nil, &Error{Reason: "frame is not a JSON array"}
	}
	if len(parts) == 0 {
		return nil, &Error{Reason: "empty frame"}
	}

	var label string
	if err := json.Unmarshal(parts[0], &label); err != nil {
		return nil, &Error{Reason: "frame label is not a string"}
	}

	switch label {
	case LabelEvent:
		if len(parts) != 2 || !isObject(parts[1]) {
			return nil, &Error{Label: label, Reason: "expected [\"EVENT\", <event>]"}
		}
		return &Event{Raw: parts[1]}, nil

	case LabelReq, LabelCount:
		subID, filters, err := decodeSubscription(label, parts)
		if err != nil {
			return nil, err
		}
		if label == LabelReq {
			return &Req{SubID: subID, Filters: filters}, nil
		}
		return &Count{SubID: subID, Filters: filters}, nil

	case LabelClose:
		if len(parts) != 2 {
			return nil, &Error{Label: label, Reason: "expected [\"CLOSE\", <subscription_id>]"}
		}
		var subID string
		if err := json.Unmarshal(parts[1], &subID); err != nil {
			return nil, &Error{Label: label, Reason: "subscription id is not a string"}
		}
		return &Close{SubID: subID}, nil

	case LabelAuth:
		if len(parts) != 2 || !isObject(parts[1]) {
			return nil, &Error{Label: label, Reason: "expected [\"AUTH\", <event>]"}
		}
		return &Auth{Raw: parts[1]}, nil

	default:
		return nil, &Error{Label: label, Reason: fmt.Sprintf("unknown message type %q", label)}
	}
}

func decodeSubscription(label string, parts []json.RawMessage) (string, []filter.Filter, error) {
	if len(parts) < 2 {
		return "", nil, &Error{Label: label, Reason: "missing subscription id"}
	}
	var subID string
	if err := json.Unmarshal(parts[1], &subID); err != nil {
		return "", nil, &Error{Label: label, Reason: "subscription id is not a string"}
	}
	if subID == "" {
		return "", nil, &Error{Label: label, Reason: "empty subscription id"}
	}

	filters := make([]filter.Filter, len(parts)-2)
	for i, raw := range parts[2:] {
		if err := json.Unmarshal(raw, &filters[i]); err != nil {
			return "", nil, &Error{Label: label, SubID: subID, Reason: fmt.Sprintf("bad filter %d: %v", i, err)}
		}
	}
	return subID, filters, nil
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
