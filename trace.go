package prefs

import (
	"encoding/json"

	"github.com/goliatone/go-prefs/layering"
)

// Trace captures how each scope contributed to the value of a preference.
type Trace struct {
	Path   string       `json:"path"`
	Value  any          `json:"value,omitempty"`
	Layers []Provenance `json:"layers"`
}

// Provenance details how a single scope contributed to a traced preference.
type Provenance struct {
	Scope     Scope  `json:"scope"`
	Path      string `json:"path"`
	ConfigURI string `json:"config_uri,omitempty"`
	Value     any    `json:"value,omitempty"`
	Found     bool   `json:"found"`
	// Inherited marks a value read from the base preference of an
	// unset "[id].name".
	Inherited bool `json:"inherited,omitempty"`
}

// Trace reports the value of name in every valid scope, narrowest first,
// together with the merged result.
func (s *Service) Trace(name string, opts ...CallOption) Trace {
	call := applyCallOptions(opts)
	name = s.preferenceName(name, call)
	parsed, isOverride := s.overrides.OverriddenPreferenceName(name)

	trace := Trace{Path: name}
	for i := len(s.scopes) - 1; i >= 0; i-- {
		scope := s.scopes[i]
		layer := Provenance{Scope: scope, Path: name}
		if provider := s.provider(scope); provider != nil {
			result := provider.Resolve(name, call.resourceURI)
			if result.Value == nil && isOverride {
				result = provider.Resolve(parsed.PreferenceName, call.resourceURI)
				layer.Inherited = result.Value != nil
			}
			layer.Value = layering.Clone(result.Value)
			layer.ConfigURI = result.ConfigURI
			layer.Found = result.Value != nil
		}
		trace.Layers = append(trace.Layers, layer)
	}
	trace.Value = s.resolve(name, callOptions{resourceURI: call.resourceURI}).Value
	return trace
}

// Winner returns the narrowest layer that holds a value.
func (t Trace) Winner() (Provenance, bool) {
	for _, layer := range t.Layers {
		if layer.Found {
			return layer, true
		}
	}
	return Provenance{}, false
}

// ToJSON serialises the trace into JSON for logging or transport helpers.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

// TraceFromJSON deserialises a JSON payload that was previously generated via
// ToJSON.
func TraceFromJSON(payload []byte) (Trace, error) {
	type alias Trace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, err
	}
	return Trace(trace), nil
}
