package prefs

import "context"

// DefaultProvider serves the Default scope from the schema registry. It is
// read only.
type DefaultProvider struct {
	*ProviderBase
	registry *SchemaRegistry
	sub      Disposable
}

// NewDefaultProvider binds a provider to registry. It becomes ready when the
// registry does.
func NewDefaultProvider(registry *SchemaRegistry, opts ...Option) *DefaultProvider {
	p := &DefaultProvider{
		ProviderBase: NewProviderBase(opts...),
		registry:     registry,
	}
	p.sub = registry.OnDidChangeDefaultValue(p.handleDefaultValueChange)
	registry.Ready().OnSettled(func(err error) {
		if err != nil {
			p.ready.Reject(err)
			return
		}
		p.ready.Resolve()
	})
	return p
}

func (p *DefaultProvider) handleDefaultValueChange(change DefaultValueChange) {
	name := change.PreferenceName
	if change.OverrideIdentifier != "" {
		name = OverridePreferenceName(OverridePreference{
			PreferenceName:     change.PreferenceName,
			OverrideIdentifier: change.OverrideIdentifier,
		})
	}
	changes := []ProviderChange{{
		PreferenceName: name,
		Scope:          Default,
		OldValue:       change.OldValue,
		NewValue:       change.NewValue,
	}}
	for _, id := range change.OtherAffectedOverrides {
		changes = append(changes, ProviderChange{
			PreferenceName: OverridePreferenceName(OverridePreference{
				PreferenceName:     change.PreferenceName,
				OverrideIdentifier: id,
			}),
			Scope:    Default,
			OldValue: change.OldValue,
			NewValue: change.NewValue,
		})
	}
	p.EmitPreferencesChanged(changes...)
}

// CanHandleScope reports true for Default only.
func (p *DefaultProvider) CanHandleScope(scope Scope) bool {
	return scope == Default
}

// Get returns the default for name. For "[id].name" forms it returns the
// registered override default only, never the base default.
func (p *DefaultProvider) Get(name, _ string) any {
	if parsed, ok := p.registry.Overrides().OverriddenPreferenceName(name); ok {
		return p.registry.InspectDefaultValue(parsed.PreferenceName, parsed.OverrideIdentifier)
	}
	return p.registry.InspectDefaultValue(name, "")
}

// Resolve wraps Get.
func (p *DefaultProvider) Resolve(name, resourceURI string) ResolveResult {
	return ResolveResult{Value: p.Get(name, resourceURI)}
}

// SetPreference always returns false.
func (p *DefaultProvider) SetPreference(context.Context, string, any, string) bool {
	return false
}

// Preferences returns every default value.
func (p *DefaultProvider) Preferences(string) map[string]any {
	return p.registry.DefaultValues()
}

// Dispose detaches the provider from the registry.
func (p *DefaultProvider) Dispose() {
	if p.sub != nil {
		p.sub.Dispose()
	}
	p.ProviderBase.Dispose()
}
