package prefs

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/goliatone/go-prefs/layering"
	"github.com/goliatone/go-prefs/pkg/activity"
)

// PreferenceChange is a reconciled change of an effective value.
type PreferenceChange struct {
	PreferenceName string
	Scope          Scope
	OldValue       any
	NewValue       any
	Domain         []string
}

// Affects reports whether the change applies to resourceURI. Changes
// without a domain, and calls without a resource, always match.
func (c PreferenceChange) Affects(resourceURI string) bool {
	if resourceURI == "" || len(c.Domain) == 0 {
		return true
	}
	target := uriPath(resourceURI)
	for _, root := range c.Domain {
		rootPath := uriPath(root)
		if target == rootPath || strings.HasPrefix(target, strings.TrimSuffix(rootPath, "/")+"/") {
			return true
		}
	}
	return false
}

func uriPath(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" {
		if u.Path == "" {
			return "/"
		}
		return path.Clean(u.Path)
	}
	return path.Clean(raw)
}

// PreferenceChanges is a reconciled batch keyed by preference name.
type PreferenceChanges []PreferenceChange

// Get returns the change for name.
func (c PreferenceChanges) Get(name string) (PreferenceChange, bool) {
	for _, change := range c {
		if change.PreferenceName == name {
			return change, true
		}
	}
	return PreferenceChange{}, false
}

// Names lists the changed preference names in delivery order.
func (c PreferenceChanges) Names() []string {
	names := make([]string, len(c))
	for i, change := range c {
		names[i] = change.PreferenceName
	}
	return names
}

// changeSet keeps the last change per name at the position of the first.
type changeSet struct {
	index   map[string]int
	changes PreferenceChanges
}

func (set *changeSet) put(change PreferenceChange) {
	if set.index == nil {
		set.index = map[string]int{}
	}
	if i, ok := set.index[change.PreferenceName]; ok {
		set.changes[i] = change
		return
	}
	set.index[change.PreferenceName] = len(set.changes)
	set.changes = append(set.changes, change)
}

func (s *Service) reconcile(changes ProviderChanges) {
	if s.isDisposed() {
		return
	}
	var set changeSet
	for _, change := range changes {
		s.reconcileChange(change, &set)
	}
	if len(set.changes) == 0 {
		return
	}

	s.cfg.logger.Debug().Strs("preferences", set.changes.Names()).Msg("preferences changed")
	s.batched.Fire(set.changes)
	for _, change := range set.changes {
		s.changed.Fire(change)
		s.cfg.metrics.recordChange(change.Scope)
		s.emitActivity(change)
	}
}

func (s *Service) reconcileChange(raw ProviderChange, set *changeSet) {
	change := PreferenceChange{
		PreferenceName: raw.PreferenceName,
		Scope:          raw.Scope,
		OldValue:       raw.OldValue,
		NewValue:       raw.NewValue,
		Domain:         raw.Domain,
	}
	resourceURI := ""
	if len(raw.Domain) > 0 {
		resourceURI = raw.Domain[0]
	}

	parsed, isOverride := s.overrides.OverriddenPreferenceName(change.PreferenceName)
	base := change.PreferenceName
	if isOverride {
		base = parsed.PreferenceName
	}

	winner, value, found := s.winningScope(change.PreferenceName, resourceURI)
	if !found && isOverride {
		winner, value, found = s.winningScope(base, resourceURI)
	}

	// A removed schema leaves no default to fall back to, but a narrower
	// scope still shadows it.
	if change.Scope == Default && change.NewValue == nil && !s.registry.HasProperty(base) {
		if found && winner > Default {
			return
		}
		set.put(change)
		return
	}

	if found {
		if winner > change.Scope {
			return
		}
		if change.NewValue == nil {
			change.NewValue = value
			change.Scope = winner
		}
	}

	change.OldValue = layering.Clone(change.OldValue)
	change.NewValue = layering.Clone(change.NewValue)
	set.put(change)
	if isOverride {
		return
	}
	for name := range s.registry.OverridePreferenceNames(change.PreferenceName) {
		if s.hasExplicitValue(name, resourceURI) {
			continue
		}
		inherited := change
		inherited.PreferenceName = name
		set.put(inherited)
	}
}

// winningScope returns the narrowest scope defining name.
func (s *Service) winningScope(name, resourceURI string) (Scope, any, bool) {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		scope := s.scopes[i]
		if value := s.doInspectInScope(name, scope, resourceURI); value != nil {
			return scope, value, true
		}
	}
	return Default, nil, false
}

func (s *Service) hasExplicitValue(name, resourceURI string) bool {
	for _, scope := range s.scopes {
		if s.doInspectInScope(name, scope, resourceURI) != nil {
			return true
		}
	}
	return false
}

func (s *Service) emitActivity(change PreferenceChange) {
	if !s.activity.Enabled() {
		return
	}
	record := activity.Change{
		PreferenceName: change.PreferenceName,
		OldValue:       change.OldValue,
		NewValue:       change.NewValue,
		Scope: activity.ScopeContext{
			Name:     strings.ToLower(change.Scope.String()),
			Priority: int(change.Scope),
			Domain:   change.Domain,
		},
	}
	if parsed, ok := s.overrides.OverriddenPreferenceName(change.PreferenceName); ok {
		record.OverrideIdentifier = parsed.OverrideIdentifier
	}
	if err := s.activity.Emit(context.Background(), activity.ChangeEvent(record)); err != nil {
		s.cfg.logger.Warn().Err(err).Str("preference", change.PreferenceName).Msg("activity hook failed")
	}
}
