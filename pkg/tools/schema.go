package tools

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
)

// InputSchema renders the declared parameters as the JSON Schema the
// tool registers with the MCP host. Schema types are deliberately wider
// than the declared types wherever coercion accepts more, so a host
// that sends "42" for an int parameter reaches the coercion layer and
// gets a typed argument error instead of an opaque protocol rejection.
func (s Spec) InputSchema() *jsonschema.Schema {
	props := make(map[string]*jsonschema.Schema, len(s.Params))
	var required []string
	for _, p := range s.Params {
		props[p.Name] = paramSchema(p)
		if p.Required && p.Default == nil {
			required = append(required, p.Name)
		}
	}
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

func paramSchema(p ParamSpec) *jsonschema.Schema {
	sch := &jsonschema.Schema{Description: p.Description}

	types := schemaTypes(p)
	// An unconstrained parameter already admits null.
	if p.Nullable && len(types) > 0 {
		types = append(types, "null")
	}
	switch len(types) {
	case 0:
	case 1:
		sch.Type = types[0]
	default:
		sch.Types = types
	}

	if p.Type == TypeList && len(p.Variants) == 0 {
		if elem := baseTypes(p.Elem); len(elem) > 0 {
			items := &jsonschema.Schema{}
			if len(elem) == 1 {
				items.Type = elem[0]
			} else {
				items.Types = elem
			}
			sch.Items = items
		}
	}

	if len(p.Enum) > 0 {
		sch.Enum = make([]any, len(p.Enum))
		for i, v := range p.Enum {
			sch.Enum[i] = v
		}
	}
	if p.Default != nil {
		if raw, err := json.Marshal(p.Default); err == nil {
			sch.Default = json.RawMessage(raw)
		}
	}
	return sch
}

func schemaTypes(p ParamSpec) []string {
	if len(p.Variants) == 0 {
		return baseTypes(p.Type)
	}
	var out []string
	seen := make(map[string]bool)
	for _, t := range p.Variants {
		for _, bt := range baseTypes(t) {
			if !seen[bt] {
				seen[bt] = true
				out = append(out, bt)
			}
		}
	}
	return out
}

// baseTypes maps a declared type to every JSON Schema type the coercion
// layer accepts for it. An empty slice means unconstrained.
func baseTypes(t Type) []string {
	switch t {
	case TypeString:
		return []string{"string", "number", "integer", "boolean"}
	case TypeInt:
		return []string{"integer", "string"}
	case TypeFloat:
		return []string{"number", "string"}
	case TypeBool:
		return []string{"boolean", "string", "integer", "number"}
	case TypeList:
		return []string{"array", "string"}
	case TypeMap:
		return []string{"object", "string"}
	}
	return nil
}
