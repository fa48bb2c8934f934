package state

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/goliatone/go-prefs"
	"github.com/goliatone/go-prefs/layering"
)

// Option configures a Provider.
type Option func(*Provider)

// WithRoots sets the workspace folder roots a Folder provider serves.
func WithRoots(roots ...string) Option {
	return func(p *Provider) {
		p.roots = append(p.roots, roots...)
	}
}

// WithValidator checks loaded and written values. Rejected values are
// dropped on load and refused on write. A prefs.StrictValidator is
// consulted through ValidateStrict so that a value is never replaced by
// its default.
func WithValidator(validator prefs.Validator) Option {
	return func(p *Provider) {
		p.validator = validator
	}
}

// WithBaseOptions forwards logger and scheduler options to the embedded
// prefs.ProviderBase.
func WithBaseOptions(opts ...prefs.Option) Option {
	return func(p *Provider) {
		p.baseOpts = append(p.baseOpts, opts...)
	}
}

// Provider serves one scope from snapshots kept in a Store.
type Provider struct {
	*prefs.ProviderBase

	scope     prefs.Scope
	store     Store
	roots     []string
	validator prefs.Validator
	baseOpts  []prefs.Option

	writeMu   sync.Mutex
	mu        sync.RWMutex
	snapshots map[string]map[string]any
	metas     map[string]Meta
}

var _ prefs.Provider = (*Provider)(nil)

// NewProvider builds a provider for scope. Call Load before handing it to
// a prefs.Service; Ready settles once the first load finished.
func NewProvider(scope prefs.Scope, store Store, opts ...Option) *Provider {
	p := &Provider{
		scope:     scope,
		store:     store,
		snapshots: map[string]map[string]any{},
		metas:     map[string]Meta{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	// Longest first so nested folders win.
	sort.SliceStable(p.roots, func(i, j int) bool { return len(p.roots[i]) > len(p.roots[j]) })
	p.ProviderBase = prefs.NewProviderBase(p.baseOpts...)
	return p
}

func (p *Provider) refs() []Ref {
	if p.scope != prefs.Folder {
		return []Ref{{Scope: p.scope}}
	}
	refs := make([]Ref, len(p.roots))
	for i, root := range p.roots {
		refs[i] = Ref{Scope: p.scope, Root: root}
	}
	return refs
}

// Load reads every snapshot from the store and settles Ready.
func (p *Provider) Load(ctx context.Context) error {
	snapshots, metas, err := p.fetch(ctx)
	if err != nil {
		p.Ready().Reject(err)
		return err
	}
	p.mu.Lock()
	p.snapshots = snapshots
	p.metas = metas
	p.mu.Unlock()
	p.MarkReady()
	return nil
}

// Reload reads the store again and reports what changed since the last
// load. Folder changes carry the folder root as their domain.
func (p *Provider) Reload(ctx context.Context) error {
	snapshots, metas, err := p.fetch(ctx)
	if err != nil {
		return err
	}
	p.mu.Lock()
	previous := p.snapshots
	p.snapshots = snapshots
	p.metas = metas
	p.mu.Unlock()

	var changes []prefs.ProviderChange
	for _, ref := range p.refs() {
		changes = append(changes, p.diff(ref, previous[ref.Root], snapshots[ref.Root])...)
	}
	p.EmitPreferencesChanged(changes...)
	p.Flush()
	return nil
}

func (p *Provider) fetch(ctx context.Context) (map[string]map[string]any, map[string]Meta, error) {
	snapshots := map[string]map[string]any{}
	metas := map[string]Meta{}
	for _, ref := range p.refs() {
		snapshot, meta, ok, err := p.store.Load(ctx, ref)
		if err != nil {
			return nil, nil, fmt.Errorf("state: load %s: %w", ref.ConfigURI(), err)
		}
		if !ok {
			snapshot = map[string]any{}
		}
		snapshots[ref.Root] = p.sanitize(ref, snapshot)
		metas[ref.Root] = meta
	}
	return snapshots, metas, nil
}

func (p *Provider) sanitize(ref Ref, snapshot map[string]any) map[string]any {
	if p.validator == nil {
		return snapshot
	}
	out := make(map[string]any, len(snapshot))
	for name, value := range snapshot {
		coerced, messages := p.check(name, value)
		if len(messages) > 0 {
			logger := p.Logger()
			logger.Warn().
				Str("preference", name).
				Str("source", ref.ConfigURI()).
				Strs("messages", messages).
				Msg("stored preference failed validation")
		}
		if coerced != nil {
			out[name] = coerced
		}
	}
	return out
}

// check returns the value to keep for name, or nil when it is rejected.
func (p *Provider) check(name string, value any) (any, []string) {
	if strict, ok := p.validator.(prefs.StrictValidator); ok {
		return strict.ValidateStrict(name, value)
	}
	return p.validator.ValidateByName(name, value)
}

func (p *Provider) diff(ref Ref, before, after map[string]any) []prefs.ProviderChange {
	names := map[string]struct{}{}
	for name := range before {
		names[name] = struct{}{}
	}
	for name := range after {
		names[name] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	var changes []prefs.ProviderChange
	for _, name := range sorted {
		if layering.Equal(before[name], after[name]) {
			continue
		}
		changes = append(changes, p.change(ref, name, before[name], after[name]))
	}
	return changes
}

func (p *Provider) change(ref Ref, name string, oldValue, newValue any) prefs.ProviderChange {
	change := prefs.ProviderChange{
		PreferenceName: name,
		Scope:          p.scope,
		OldValue:       layering.Clone(oldValue),
		NewValue:       layering.Clone(newValue),
	}
	if ref.Root != "" {
		change.Domain = []string{ref.Root}
	}
	return change
}

// refFor maps resourceURI to the snapshot serving it.
func (p *Provider) refFor(resourceURI string) (Ref, bool) {
	if p.scope != prefs.Folder {
		return Ref{Scope: p.scope}, true
	}
	if resourceURI == "" {
		return Ref{}, false
	}
	for _, root := range p.roots {
		if (prefs.PreferenceChange{Domain: []string{root}}).Affects(resourceURI) {
			return Ref{Scope: p.scope, Root: root}, true
		}
	}
	return Ref{}, false
}

func (p *Provider) CanHandleScope(scope prefs.Scope) bool {
	return scope == p.scope
}

func (p *Provider) Get(name, resourceURI string) any {
	ref, ok := p.refFor(resourceURI)
	if !ok {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return layering.Clone(p.snapshots[ref.Root][name])
}

func (p *Provider) Resolve(name, resourceURI string) prefs.ResolveResult {
	ref, ok := p.refFor(resourceURI)
	if !ok {
		return prefs.ResolveResult{}
	}
	value := p.Get(name, resourceURI)
	if value == nil {
		return prefs.ResolveResult{}
	}
	return prefs.ResolveResult{Value: value, ConfigURI: ref.ConfigURI()}
}

func (p *Provider) Preferences(resourceURI string) map[string]any {
	out := map[string]any{}
	ref, ok := p.refFor(resourceURI)
	if !ok {
		return out
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for name, value := range p.snapshots[ref.Root] {
		out[name] = layering.Clone(value)
	}
	return out
}

// Meta returns the store metadata of the snapshot serving resourceURI.
func (p *Provider) Meta(resourceURI string) (Meta, bool) {
	ref, ok := p.refFor(resourceURI)
	if !ok {
		return Meta{}, false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	meta, ok := p.metas[ref.Root]
	return cloneMeta(meta), ok
}

// SetPreference validates value, saves the updated snapshot and delivers
// the change before returning. It returns false when no snapshot serves
// resourceURI, the validator rejects the value or the store fails.
func (p *Provider) SetPreference(ctx context.Context, name string, value any, resourceURI string) bool {
	ref, ok := p.refFor(resourceURI)
	if !ok {
		return false
	}
	logger := p.Logger()

	if value != nil && p.validator != nil {
		coerced, messages := p.check(name, value)
		if coerced == nil {
			logger.Warn().Str("preference", name).Strs("messages", messages).Msg("preference rejected")
			return false
		}
		value = coerced
	}

	oldValue, err := p.write(ctx, ref, name, value)
	if err != nil {
		logger.Warn().Err(err).Str("preference", name).Str("source", ref.ConfigURI()).Msg("save preferences failed")
		return false
	}
	if !layering.Equal(oldValue, value) {
		p.EmitPreferencesChanged(p.change(ref, name, oldValue, value))
	}
	p.Flush()
	return true
}

// write saves the snapshot of ref with name set to value and returns the
// previous value.
func (p *Provider) write(ctx context.Context, ref Ref, name string, value any) (any, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.RLock()
	next := cloneSnapshot(p.snapshots[ref.Root])
	meta := p.metas[ref.Root]
	p.mu.RUnlock()

	oldValue := next[name]
	if value == nil {
		delete(next, name)
	} else {
		next[name] = layering.Clone(value)
	}

	saved, err := p.store.Save(ctx, ref, next, Meta{ETag: meta.ETag})
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.snapshots[ref.Root] = next
	p.metas[ref.Root] = saved
	p.mu.Unlock()
	return oldValue, nil
}
