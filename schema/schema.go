// Package schema builds preference schemas from JSONC and YAML documents
// and from Go settings structs.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goliatone/go-prefs"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// FromJSONC parses a preference schema document. Comments and trailing
// commas are allowed.
func FromJSONC(data []byte) (*prefs.PreferenceSchema, error) {
	var schema prefs.PreferenceSchema
	if err := json.Unmarshal(jsonc.ToJSON(data), &schema); err != nil {
		return nil, fmt.Errorf("schema: decode jsonc: %w", err)
	}
	return normalize(&schema), nil
}

// FromYAML parses a preference schema written in YAML. The document has the
// same shape as the JSON form.
func FromYAML(data []byte) (*prefs.PreferenceSchema, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("schema: decode yaml: %w", err)
	}
	// Round trip through JSON so the custom unmarshalers of the schema
	// types apply to YAML input too.
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("schema: decode yaml: %w", err)
	}
	var schema prefs.PreferenceSchema
	if err := json.Unmarshal(encoded, &schema); err != nil {
		return nil, fmt.Errorf("schema: decode yaml: %w", err)
	}
	return normalize(&schema), nil
}

// FromFile reads a schema document, picking the format from the file
// extension.
func FromFile(path string) (*prefs.PreferenceSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json", ".jsonc":
		return FromJSONC(data)
	}
	return nil, fmt.Errorf("schema: unsupported document %s", path)
}

// Contribution wraps schema for prefs.WithContributions.
func Contribution(name string, schema *prefs.PreferenceSchema) prefs.SchemaContribution {
	return prefs.SchemaContribution{Name: name, Schema: schema}
}

func normalize(schema *prefs.PreferenceSchema) *prefs.PreferenceSchema {
	if schema.Properties == nil {
		schema.Properties = map[string]*prefs.PreferenceProperty{}
	}
	for name, property := range schema.Properties {
		if property == nil {
			delete(schema.Properties, name)
		}
	}
	return schema
}
