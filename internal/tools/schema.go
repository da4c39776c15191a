package tools

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// SchemaFor reflects a parameter struct into an inline JSON Schema suitable
// for function calling. Panics on marshal failure, which only happens for
// malformed parameter structs caught at init.
func SchemaFor(v any) json.RawMessage {
	r := &jsonschema.Reflector{
		Anonymous:                 true,
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	schema := r.Reflect(v)
	schema.Version = ""
	data, err := json.Marshal(schema)
	if err != nil {
		panic("tools: failed to marshal parameter schema: " + err.Error())
	}
	return data
}
