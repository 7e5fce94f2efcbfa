package event

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// rawEventSchema is the structural contract for inbound webhook documents.
// Field-level parsing (prices, timestamps) is stricter than this and
// happens in Normalize; the schema rejects the shapes that would otherwise
// decode into garbage.
const rawEventSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["trade_id", "event_type", "timestamp"],
  "properties": {
    "trade_id": {"type": ["string", "number"], "minLength": 1},
    "event_type": {
      "type": "string",
      "enum": [
        "SIGNAL_CREATED", "ENTRY", "MFE_UPDATE", "BE_TRIGGERED",
        "EXIT_STOP_LOSS", "EXIT_BREAK_EVEN", "CANCELLED"
      ]
    },
    "timestamp": {"type": ["string", "number"]},
    "direction": {"type": ["string", "null"]},
    "session": {"type": ["string", "null"]},
    "signal_date": {"type": ["string", "null"]},
    "entry_price": {"type": ["number", "string", "null"]},
    "stop_loss": {"type": ["number", "string", "null"]},
    "be_mfe": {"type": ["number", "string", "null"]},
    "no_be_mfe": {"type": ["number", "string", "null"]},
    "mae": {"type": ["number", "string", "null"]},
    "exit_price": {"type": ["number", "string", "null"]},
    "exit_reason": {"type": ["string", "null"]},
    "confidence_score": {"type": ["number", "string", "null"]},
    "data_source": {"type": ["string", "null"]},
    "telemetry": {"type": ["object", "null"]}
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("event.schema.json", strings.NewReader(rawEventSchema)); err != nil {
		panic(fmt.Sprintf("event schema resource: %v", err))
	}
	schema, err := compiler.Compile("event.schema.json")
	if err != nil {
		panic(fmt.Sprintf("event schema compile: %v", err))
	}
	return schema
}

// ValidateJSON checks an inbound webhook document against the event schema.
// Failures are ErrInvalid: the event is dropped, not retried.
func ValidateJSON(body []byte) error {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("%w: malformed JSON: %v", ErrInvalid, err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
