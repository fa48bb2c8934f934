package openapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/goliatone/go-prefs"
)

// Source is the registry view the document is built from.
// *prefs.SchemaRegistry satisfies it.
type Source interface {
	PreferenceNames() []string
	Property(name string) (*prefs.PreferenceProperty, bool)
	IsValidInScope(name string, scope prefs.Scope) bool
	DefaultValue(key, overrideIdentifier string) any
	Overrides() *prefs.OverrideService
}

type schemaNode struct {
	Type        string
	Types       []string
	Description string
	Properties  map[string]*schemaNode
	Required    []string
	Items       *schemaNode
	Enum        []any
	Default     any
	Minimum     *float64
	Maximum     *float64
	MinLength   *int
	MaxLength   *int
	MinItems    *int
	MaxItems    *int
	Pattern     string
	Deprecated  bool
	OneOf       []*schemaNode
	AnyOf       []*schemaNode
	Additional  *schemaNode
	// extensions are emitted verbatim as x-* keys.
	extensions map[string]any
}

func newObjectNode() *schemaNode {
	return &schemaNode{
		Type:       "object",
		Properties: map[string]*schemaNode{},
	}
}

func (n *schemaNode) baseMap() map[string]any {
	result := map[string]any{}
	switch {
	case n.Type != "":
		result["type"] = n.Type
		if containsNull(n.Types) {
			result["nullable"] = true
		}
	case len(n.Types) > 1 && n.AnyOf == nil:
		// OpenAPI 3.0 has no type unions.
		alternatives := make([]any, 0, len(n.Types))
		for _, typ := range n.Types {
			if typ != prefs.TypeNull {
				alternatives = append(alternatives, map[string]any{"type": typ})
			}
		}
		result["anyOf"] = alternatives
		if containsNull(n.Types) {
			result["nullable"] = true
		}
	}
	if n.Description != "" {
		result["description"] = n.Description
	}
	if n.Default != nil {
		result["default"] = n.Default
	}
	if len(n.Enum) > 0 {
		result["enum"] = n.Enum
	}
	if n.Minimum != nil {
		result["minimum"] = *n.Minimum
	}
	if n.Maximum != nil {
		result["maximum"] = *n.Maximum
	}
	if n.MinLength != nil {
		result["minLength"] = *n.MinLength
	}
	if n.MaxLength != nil {
		result["maxLength"] = *n.MaxLength
	}
	if n.MinItems != nil {
		result["minItems"] = *n.MinItems
	}
	if n.MaxItems != nil {
		result["maxItems"] = *n.MaxItems
	}
	if n.Pattern != "" {
		result["pattern"] = n.Pattern
	}
	if n.Deprecated {
		result["deprecated"] = true
	}
	keys := make([]string, 0, len(n.extensions))
	for key := range n.extensions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		result[key] = n.extensions[key]
	}
	return result
}

func (n *schemaNode) inlineOpenAPI() map[string]any {
	result := n.baseMap()

	if len(n.Properties) > 0 || n.Type == "object" {
		props := make(map[string]any, len(n.Properties))
		for _, name := range sortedKeys(n.Properties) {
			props[name] = n.Properties[name].inlineOpenAPI()
		}
		result["properties"] = props
	}
	if len(n.Required) > 0 {
		names := append([]string{}, n.Required...)
		sort.Strings(names)
		result["required"] = names
	}
	if n.Items != nil {
		result["items"] = n.Items.inlineOpenAPI()
	}
	if n.Additional != nil {
		result["additionalProperties"] = n.Additional.inlineOpenAPI()
	}
	if len(n.OneOf) > 0 {
		result["oneOf"] = inlineAll(n.OneOf)
	}
	if len(n.AnyOf) > 0 {
		result["anyOf"] = inlineAll(n.AnyOf)
	}
	return result
}

func inlineAll(nodes []*schemaNode) []any {
	out := make([]any, len(nodes))
	for i, node := range nodes {
		out[i] = node.inlineOpenAPI()
	}
	return out
}

func (n *schemaNode) setExtension(key string, value any) {
	if n.extensions == nil {
		n.extensions = map[string]any{}
	}
	n.extensions[key] = value
}

// Digest identifies structurally identical nodes so they can share a
// component.
func (n *schemaNode) Digest() string {
	data, err := json.Marshal(n.inlineOpenAPI())
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// nodeFromSchema converts a preference JSON schema into a node.
func nodeFromSchema(schema *prefs.JSONSchema) *schemaNode {
	if schema == nil {
		return &schemaNode{}
	}
	node := &schemaNode{
		Description: schema.Description,
		Default:     schema.Default,
		Enum:        schema.Enum,
		Minimum:     schema.Minimum,
		Maximum:     schema.Maximum,
		MinLength:   schema.MinLength,
		MaxLength:   schema.MaxLength,
		MinItems:    schema.MinItems,
		MaxItems:    schema.MaxItems,
		Pattern:     schema.Pattern,
		Deprecated:  schema.Deprecated || schema.DeprecationMessage != "",
		Required:    schema.Required,
	}
	if node.Description == "" {
		node.Description = schema.MarkdownDescription
	}
	if schema.Const != nil {
		node.Enum = []any{schema.Const}
	}

	nonNull := make([]string, 0, len(schema.Type))
	for _, typ := range schema.Type {
		if typ != prefs.TypeNull {
			nonNull = append(nonNull, typ)
		}
	}
	node.Types = schema.Type
	if len(nonNull) == 1 {
		node.Type = nonNull[0]
	}

	if len(schema.Properties) > 0 {
		node.Properties = make(map[string]*schemaNode, len(schema.Properties))
		for name, child := range schema.Properties {
			node.Properties[name] = nodeFromSchema(child)
		}
	}
	if schema.Items != nil {
		switch {
		case schema.Items.Schema != nil:
			node.Items = nodeFromSchema(schema.Items.Schema)
		case len(schema.Items.Tuple) > 0:
			// Tuples become arrays of the union of their positions.
			items := &schemaNode{}
			for _, position := range schema.Items.Tuple {
				items.AnyOf = append(items.AnyOf, nodeFromSchema(position))
			}
			node.Items = items
			size := len(schema.Items.Tuple)
			node.MinItems, node.MaxItems = &size, &size
		}
	}
	if additional := schema.AdditionalProperties; additional != nil && additional.Schema != nil {
		node.Additional = nodeFromSchema(additional.Schema)
	}
	for _, alternative := range schema.OneOf {
		node.OneOf = append(node.OneOf, nodeFromSchema(alternative))
	}
	for _, alternative := range schema.AnyOf {
		node.AnyOf = append(node.AnyOf, nodeFromSchema(alternative))
	}
	if len(schema.Tags) > 0 {
		node.setExtension("x-tags", schema.Tags)
	}
	return node
}

// buildPreferenceGraph returns the object node of every preference valid
// in scope. Override identifiers get a "[id]" section holding their
// overridable preferences.
func buildPreferenceGraph(source Source, scope prefs.Scope) *schemaNode {
	root := newObjectNode()
	overridable := newObjectNode()

	for _, name := range source.PreferenceNames() {
		if !source.IsValidInScope(name, scope) {
			continue
		}
		property, ok := source.Property(name)
		if !ok {
			continue
		}
		node := nodeFromSchema(&property.JSONSchema)
		node.Default = source.DefaultValue(name, "")
		if property.Scope != nil {
			node.setExtension("x-scope", strings.ToLower(property.Scope.String()))
		}
		if property.IsOverridable() {
			node.setExtension("x-overridable", true)
			overridable.Properties[name] = node
		}
		root.Properties[name] = node
	}

	if len(overridable.Properties) == 0 {
		return root
	}
	for _, id := range source.Overrides().Identifiers() {
		section := newObjectNode()
		for name, base := range overridable.Properties {
			node := *base
			node.Default = source.DefaultValue(name, id)
			section.Properties[name] = &node
		}
		root.Properties["["+id+"]"] = section
	}
	return root
}

func sortedKeys(nodes map[string]*schemaNode) []string {
	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func containsNull(types []string) bool {
	for _, typ := range types {
		if typ == prefs.TypeNull {
			return true
		}
	}
	return false
}
