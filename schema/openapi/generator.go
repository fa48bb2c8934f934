// Package openapi renders the preferences registered for a scope as an
// OpenAPI 3 document describing a write of that scope.
package openapi

import (
	"encoding/json"
	"fmt"

	"github.com/goliatone/go-prefs"
)

// Document builds the OpenAPI document for the preferences valid in scope.
// Each preference becomes a property of the request body keyed by its full
// dotted name; overridable preferences are repeated under one "[id]"
// section per registered override identifier.
func Document(source Source, scope prefs.Scope, opts ...GeneratorOption) (map[string]any, error) {
	if source == nil {
		return nil, fmt.Errorf("openapi: schema source cannot be nil")
	}
	if !scope.Valid() {
		return nil, fmt.Errorf("openapi: %w: %s", prefs.ErrInvalidScope, scope)
	}
	cfg := defaultGeneratorConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.info.Description == "" {
		cfg.info.Description = fmt.Sprintf("Preferences writable in the %s scope.", scope)
	}

	root := buildPreferenceGraph(source, scope)
	return newOpenAPIDocumentBuilder(cfg, newComponentRegistry(), root).build()
}

// JSON is Document encoded as indented JSON.
func JSON(source Source, scope prefs.Scope, opts ...GeneratorOption) ([]byte, error) {
	document, err := Document(source, scope, opts...)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(document, "", "  ")
}
