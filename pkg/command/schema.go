package command

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// BodySchema returns the JSON Schema of the document body section.
func BodySchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		FieldNameTag:               "yaml",
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	s := r.Reflect(&Definition{})
	s.Title = "Command document body"
	return s
}

// BodySchemaJSON returns BodySchema as indented JSON.
func BodySchemaJSON() ([]byte, error) {
	return json.MarshalIndent(BodySchema(), "", "  ")
}
