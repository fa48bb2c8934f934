package prefs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/goliatone/go-prefs/layering"
)

// JSON schema type names.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
	TypeNull    = "null"
)

// TypeList holds one or more JSON schema types. It decodes from either a
// single string or an array of strings.
type TypeList []string

// Has reports whether t includes name.
func (t TypeList) Has(name string) bool {
	return slices.Contains(t, name)
}

func (t TypeList) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	return json.Marshal([]string(t))
}

func (t *TypeList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = TypeList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("prefs: decode schema type: %w", err)
	}
	*t = TypeList(many)
	return nil
}

// SchemaItems describes array items: either one schema for every element or
// a tuple with one schema per position.
type SchemaItems struct {
	Schema *JSONSchema
	Tuple  []*JSONSchema
}

func (i SchemaItems) MarshalJSON() ([]byte, error) {
	if i.Tuple != nil {
		return json.Marshal(i.Tuple)
	}
	return json.Marshal(i.Schema)
}

func (i *SchemaItems) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &i.Tuple)
	}
	i.Schema = &JSONSchema{}
	return json.Unmarshal(data, i.Schema)
}

// SchemaOrBool models additionalProperties: a boolean switch or a schema
// every additional property must satisfy.
type SchemaOrBool struct {
	Allowed bool
	Schema  *JSONSchema
}

func (s SchemaOrBool) MarshalJSON() ([]byte, error) {
	if s.Schema != nil {
		return json.Marshal(s.Schema)
	}
	return json.Marshal(s.Allowed)
}

func (s *SchemaOrBool) UnmarshalJSON(data []byte) error {
	var allowed bool
	if err := json.Unmarshal(data, &allowed); err == nil {
		s.Allowed = allowed
		s.Schema = nil
		return nil
	}
	s.Allowed = true
	s.Schema = &JSONSchema{}
	return json.Unmarshal(data, s.Schema)
}

// JSONSchema is the subset of JSON schema used to describe preference values.
type JSONSchema struct {
	Type                 TypeList               `json:"type,omitempty"`
	Description          string                 `json:"description,omitempty"`
	MarkdownDescription  string                 `json:"markdownDescription,omitempty"`
	Default              any                    `json:"default,omitempty"`
	Enum                 []any                  `json:"enum,omitempty"`
	EnumDescriptions     []string               `json:"enumDescriptions,omitempty"`
	Const                any                    `json:"const,omitempty"`
	Items                *SchemaItems           `json:"items,omitempty"`
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	PatternProperties    map[string]*JSONSchema `json:"patternProperties,omitempty"`
	AdditionalProperties *SchemaOrBool          `json:"additionalProperties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	OneOf                []*JSONSchema          `json:"oneOf,omitempty"`
	AnyOf                []*JSONSchema          `json:"anyOf,omitempty"`
	Minimum              *float64               `json:"minimum,omitempty"`
	Maximum              *float64               `json:"maximum,omitempty"`
	MinLength            *int                   `json:"minLength,omitempty"`
	MaxLength            *int                   `json:"maxLength,omitempty"`
	Pattern              string                 `json:"pattern,omitempty"`
	MinItems             *int                   `json:"minItems,omitempty"`
	MaxItems             *int                   `json:"maxItems,omitempty"`
	Deprecated           bool                   `json:"deprecated,omitempty"`
	DeprecationMessage   string                 `json:"deprecationMessage,omitempty"`
	Tags                 []string               `json:"tags,omitempty"`
}

// Clone returns a deep copy of s.
func (s *JSONSchema) Clone() *JSONSchema {
	if s == nil {
		return nil
	}
	clone := layering.Clone(s).(*JSONSchema)
	return clone
}

// PreferenceProperty is a schema entry for one preference name.
type PreferenceProperty struct {
	JSONSchema

	// Scope is the minimum scope the preference may be set at. Nil means it
	// is valid in every scope.
	Scope *Scope `json:"scope,omitempty"`
	// Overridable allows "[id].name" values for the preference.
	Overridable *bool `json:"overridable,omitempty"`
	// Included set to false hides the preference from every scope.
	Included *bool `json:"included,omitempty"`
	Hidden   bool  `json:"hidden,omitempty"`
}

// IsOverridable reports whether override identifiers may scope this property.
func (p *PreferenceProperty) IsOverridable() bool {
	return p != nil && p.Overridable != nil && *p.Overridable
}

// IsIncluded reports whether the property has not been explicitly excluded.
func (p *PreferenceProperty) IsIncluded() bool {
	return p == nil || p.Included == nil || *p.Included
}

// Clone returns a deep copy of p.
func (p *PreferenceProperty) Clone() *PreferenceProperty {
	if p == nil {
		return nil
	}
	return layering.Clone(p).(*PreferenceProperty)
}

// PreferenceSchema groups properties contributed together. Scope and
// Overridable apply to every property that leaves them unset.
type PreferenceSchema struct {
	Title       string                         `json:"title,omitempty"`
	Scope       *Scope                         `json:"scope,omitempty"`
	Overridable *bool                          `json:"overridable,omitempty"`
	Properties  map[string]*PreferenceProperty `json:"properties"`
}

// PropertyNames returns the property names in lexical order.
func (s *PreferenceSchema) PropertyNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Bool returns a pointer to v for optional schema flags.
func Bool(v bool) *bool {
	return &v
}

// schemaDocument converts s into the generic JSON object form used by the
// per-scope documents.
func schemaDocument(s any) map[string]any {
	buffer, err := json.Marshal(s)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(buffer, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}
