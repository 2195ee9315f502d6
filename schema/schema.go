// Package schema generates JSON Schema tool parameters from Go types.
package schema

import (
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/openplugin/openplugin-go/provider"
)

// reflector is configured for tool parameter schemas.
// DoNotReference inlines all definitions to avoid $ref.
var reflector = &jsonschema.Reflector{
	DoNotReference: true,
}

// Generate creates a JSON Schema from a Go type.
// The type should be a struct with json and jsonschema tags.
//
// Example:
//
//	type searchArgs struct {
//	    Query string `json:"query" jsonschema:"required,description=Search query"`
//	    Limit int    `json:"limit,omitempty"`
//	}
//
//	params, err := schema.Generate[searchArgs]()
func Generate[T any]() (json.RawMessage, error) {
	var zero T
	s := reflector.Reflect(&zero)
	return json.Marshal(s)
}

// Def builds a tool descriptor whose parameters are derived from the
// argument type.
func Def[T any](name, description string) (provider.ToolDef, error) {
	params, err := Generate[T]()
	if err != nil {
		return provider.ToolDef{}, err
	}
	return provider.ToolDef{
		Name:        name,
		Description: description,
		Parameters:  params,
	}, nil
}
