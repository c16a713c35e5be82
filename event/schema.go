package event

import (
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaURL = "relay://schema/nostr-event"

// eventSchema is the structural contract of a NIP-01 event.
const eventSchema = `{
  "type": "object",
  "required": ["id", "pubkey", "created_at", "kind", "tags", "content", "sig"],
  "properties": {
    "id":         {"type": "string", "pattern": "^[0-9a-f]{64}$"},
    "pubkey":     {"type": "string", "pattern": "^[0-9a-f]{64}$"},
    "created_at": {"type": "integer", "minimum": 0},
    "kind":       {"type": "integer", "minimum": 0, "maximum": 65535},
    "tags": {
      "type": "array",
      "items": {"type": "array", "items": {"type": "string"}}
    },
    "content":    {"type": "string"},
    "sig":        {"type": "string", "pattern": "^[0-9a-f]{128}$"}
  }
}`

func compileSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(eventSchema))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}

// schemaReason turns a schema failure into a short client-facing reason.
func schemaReason(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return "malformed event"
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	if len(ve.InstanceLocation) == 0 {
		return "malformed event"
	}
	return "malformed event field " + strings.Join(ve.InstanceLocation, "/")
}
