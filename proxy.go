package prefs

import (
	"context"
	"slices"
)

// Proxy is a view of the service restricted to a set of preference names,
// optionally bound to an override identifier and a resource.
type Proxy struct {
	svc                *Service
	names              map[string]struct{}
	overrideIdentifier string
	resourceURI        string
}

// ProxyOption configures a Proxy.
type ProxyOption func(*Proxy)

// ProxySchema limits the view to the properties of schema.
func ProxySchema(schema *PreferenceSchema) ProxyOption {
	return func(p *Proxy) {
		if schema == nil {
			return
		}
		ProxyNames(schema.PropertyNames()...)(p)
	}
}

// ProxyJSONSchema limits the view to the properties of a scope document as
// returned by SchemaRegistry.JSONSchemaCopy.
func ProxyJSONSchema(doc map[string]any) ProxyOption {
	return func(p *Proxy) {
		properties, _ := doc["properties"].(map[string]any)
		names := make([]string, 0, len(properties))
		for name := range properties {
			if !IsOverrideKey(name) {
				names = append(names, name)
			}
		}
		ProxyNames(names...)(p)
	}
}

// ProxyNames limits the view to names.
func ProxyNames(names ...string) ProxyOption {
	return func(p *Proxy) {
		if p.names == nil {
			p.names = map[string]struct{}{}
		}
		for _, name := range names {
			p.names[name] = struct{}{}
		}
	}
}

// ProxyOverride reads and writes through the "[id]" override of id.
func ProxyOverride(id string) ProxyOption {
	return func(p *Proxy) {
		p.overrideIdentifier = id
	}
}

// ProxyResource binds the view to resourceURI.
func ProxyResource(resourceURI string) ProxyOption {
	return func(p *Proxy) {
		p.resourceURI = resourceURI
	}
}

// NewProxy builds a view over svc. Without ProxyNames or ProxySchema every
// preference is visible.
func NewProxy(svc *Service, opts ...ProxyOption) *Proxy {
	p := &Proxy{svc: svc}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Contains reports whether name is part of the view.
func (p *Proxy) Contains(name string) bool {
	if p.names == nil {
		return true
	}
	_, ok := p.names[name]
	return ok
}

// Names lists the names in the view, sorted. It returns the registered
// preference names for an unrestricted view.
func (p *Proxy) Names() []string {
	if p.names == nil {
		return p.svc.registry.PreferenceNames()
	}
	names := make([]string, 0, len(p.names))
	for name := range p.names {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (p *Proxy) callOptions(extra ...CallOption) []CallOption {
	opts := []CallOption{ForResource(p.resourceURI), ForOverride(p.overrideIdentifier)}
	return append(opts, extra...)
}

// Get returns the resolved value of name, or defaultValue when the name is
// outside the view or unset.
func (p *Proxy) Get(name string, defaultValue any) any {
	if !p.Contains(name) {
		return defaultValue
	}
	return p.svc.Get(name, p.callOptions(OrDefault(defaultValue))...)
}

// Has reports whether name is in the view and resolves to a value.
func (p *Proxy) Has(name string) bool {
	return p.Contains(name) && p.svc.Has(name, p.callOptions()...)
}

// Inspect reports the per-scope values of name.
func (p *Proxy) Inspect(name string) (Inspection, bool) {
	if !p.Contains(name) {
		return Inspection{}, false
	}
	return p.svc.Inspect(name, p.callOptions()...), true
}

// Set writes name in scope through the bound override and resource.
func (p *Proxy) Set(ctx context.Context, name string, value any, scope Scope) error {
	target := p.svc.preferenceName(name, callOptions{overrideIdentifier: p.overrideIdentifier})
	return p.svc.Set(ctx, target, value, ForResource(p.resourceURI), InScope(scope))
}

// UpdateValue applies Service.UpdateValue through the bound override and
// resource.
func (p *Proxy) UpdateValue(ctx context.Context, name string, value any) error {
	target := p.svc.preferenceName(name, callOptions{overrideIdentifier: p.overrideIdentifier})
	return p.svc.UpdateValue(ctx, target, value, ForResource(p.resourceURI))
}

// Values returns the resolved value of every name in the view.
func (p *Proxy) Values() map[string]any {
	out := map[string]any{}
	for _, name := range p.Names() {
		if value := p.svc.Get(name, p.callOptions()...); value != nil {
			out[name] = value
		}
	}
	return out
}

// OnPreferenceChanged delivers changes to names in the view that affect
// the bound resource. For override views only "[id].name" changes are
// delivered, renamed to the base name.
func (p *Proxy) OnPreferenceChanged(fn func(PreferenceChange)) Disposable {
	return p.svc.OnPreferenceChanged(func(change PreferenceChange) {
		name := change.PreferenceName
		parsed, isOverride := p.svc.overrides.OverriddenPreferenceName(name)
		if p.overrideIdentifier != "" {
			if !isOverride || parsed.OverrideIdentifier != p.overrideIdentifier {
				return
			}
			name = parsed.PreferenceName
		} else if isOverride {
			return
		}
		if !p.Contains(name) || !change.Affects(p.resourceURI) {
			return
		}
		change.PreferenceName = name
		fn(change)
	})
}
