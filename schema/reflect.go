package schema

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/goliatone/go-prefs"
	"github.com/invopop/jsonschema"
)

// FromStruct derives a schema from the exported fields of v. Property
// names follow the json tags, nested structs are flattened into dotted
// names under prefix, and field constraints come from jsonschema tags:
//
//	type Editor struct {
//		TabSize int    `json:"tabSize" jsonschema:"default=4,minimum=1" jsonschema_extras:"overridable=true"`
//		Wrap    string `json:"wordWrap" jsonschema:"enum=off,enum=on" jsonschema_extras:"scope=folder"`
//	}
//
// The scope extra accepts any value ParseScope does.
func FromStruct(prefix string, v any) (*prefs.PreferenceSchema, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference:             true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  true,
		RequiredFromJSONSchemaTags: true,
	}
	root := reflector.Reflect(v)

	out := &prefs.PreferenceSchema{Title: root.Title, Properties: map[string]*prefs.PreferenceProperty{}}
	if err := flatten(prefix, root, out.Properties); err != nil {
		return nil, err
	}
	return out, nil
}

func flatten(prefix string, node *jsonschema.Schema, into map[string]*prefs.PreferenceProperty) error {
	if node.Properties == nil {
		return nil
	}
	for pair := node.Properties.Oldest(); pair != nil; pair = pair.Next() {
		name := pair.Key
		if prefix != "" {
			name = prefix + "." + pair.Key
		}
		child := pair.Value
		if child.Type == "object" && child.Properties != nil && child.Properties.Len() > 0 {
			if err := flatten(name, child, into); err != nil {
				return err
			}
			continue
		}
		property, err := convert(child)
		if err != nil {
			return fmt.Errorf("schema: property %s: %w", name, err)
		}
		into[name] = property
	}
	return nil
}

func convert(node *jsonschema.Schema) (*prefs.PreferenceProperty, error) {
	encoded, err := json.Marshal(node)
	if err != nil {
		return nil, err
	}
	property := &prefs.PreferenceProperty{}
	if err := json.Unmarshal(encoded, &property.JSONSchema); err != nil {
		return nil, err
	}

	if raw, ok := node.Extras["scope"]; ok {
		scope, err := prefs.ParseScope(fmt.Sprint(raw))
		if err != nil {
			return nil, err
		}
		property.Scope = prefs.ScopeRef(scope)
	}
	if raw, ok := node.Extras["overridable"]; ok {
		overridable, err := strconv.ParseBool(fmt.Sprint(raw))
		if err != nil {
			return nil, fmt.Errorf("overridable: %w", err)
		}
		property.Overridable = prefs.Bool(overridable)
	}
	if raw, ok := node.Extras["hidden"]; ok {
		property.Hidden = fmt.Sprint(raw) == "true"
	}
	return property, nil
}
