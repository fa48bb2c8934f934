package prefs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-prefs/layering"
)

// memoryProvider stores values for one scope. Folder values are kept per
// resource URI.
type memoryProvider struct {
	*ProviderBase
	scope Scope

	mu      sync.RWMutex
	values  map[string]map[string]any
	reject  bool
	written []string
}

func newMemoryProvider(scope Scope, scheduler Scheduler) *memoryProvider {
	p := &memoryProvider{
		ProviderBase: NewProviderBase(WithScheduler(scheduler)),
		scope:        scope,
		values:       map[string]map[string]any{},
	}
	p.MarkReady()
	return p
}

func (p *memoryProvider) bucket(resourceURI string) string {
	if p.scope == Folder {
		return resourceURI
	}
	return ""
}

// seed stores value without emitting a change.
func (p *memoryProvider) seed(name string, value any, resourceURI ...string) {
	uri := ""
	if len(resourceURI) > 0 {
		uri = resourceURI[0]
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	key := p.bucket(uri)
	if p.values[key] == nil {
		p.values[key] = map[string]any{}
	}
	p.values[key][name] = value
}

func (p *memoryProvider) CanHandleScope(scope Scope) bool {
	return scope == p.scope
}

func (p *memoryProvider) Get(name, resourceURI string) any {
	if p.scope == Folder && resourceURI == "" {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return layering.Clone(p.values[p.bucket(resourceURI)][name])
}

func (p *memoryProvider) Resolve(name, resourceURI string) ResolveResult {
	value := p.Get(name, resourceURI)
	if value == nil {
		return ResolveResult{}
	}
	return ResolveResult{Value: value, ConfigURI: "memory://" + p.scope.String()}
}

func (p *memoryProvider) SetPreference(_ context.Context, name string, value any, resourceURI string) bool {
	if p.reject {
		return false
	}
	key := p.bucket(resourceURI)
	p.mu.Lock()
	if p.values[key] == nil {
		p.values[key] = map[string]any{}
	}
	oldValue := p.values[key][name]
	if value == nil {
		delete(p.values[key], name)
	} else {
		p.values[key][name] = layering.Clone(value)
	}
	p.written = append(p.written, name)
	p.mu.Unlock()

	change := ProviderChange{PreferenceName: name, Scope: p.scope, OldValue: oldValue, NewValue: value}
	if p.scope == Folder {
		change.Domain = []string{resourceURI}
	}
	p.EmitPreferencesChanged(change)
	p.Flush()
	return true
}

func (p *memoryProvider) Preferences(resourceURI string) map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := map[string]any{}
	for name, value := range p.values[p.bucket(resourceURI)] {
		out[name] = layering.Clone(value)
	}
	return out
}

func (p *memoryProvider) writes() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.written...)
}

type fixture struct {
	t         *testing.T
	scheduler *ManualScheduler
	registry  *SchemaRegistry
	defaults  *DefaultProvider
	user      *memoryProvider
	workspace *memoryProvider
	folder    *memoryProvider
	service   *Service

	mu      sync.Mutex
	batches []PreferenceChanges
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	scheduler := NewManualScheduler()
	base := append([]Option{WithScheduler(scheduler)}, opts...)

	registry := NewSchemaRegistry(base...)
	if err := registry.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	f := &fixture{
		t:         t,
		scheduler: scheduler,
		registry:  registry,
		defaults:  NewDefaultProvider(registry, base...),
		user:      newMemoryProvider(User, scheduler),
		workspace: newMemoryProvider(Workspace, scheduler),
		folder:    newMemoryProvider(Folder, scheduler),
	}
	f.service = NewService(registry, ProviderMap(map[Scope]Provider{
		Default:   f.defaults,
		User:      f.user,
		Workspace: f.workspace,
		Folder:    f.folder,
	}), base...)
	waitReady(t, f.service.Ready())
	f.service.OnPreferencesChanged(func(changes PreferenceChanges) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.batches = append(f.batches, changes)
	})
	t.Cleanup(f.service.Dispose)
	return f
}

func waitReady(t *testing.T, d *Deferred) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("wait ready: %v", err)
	}
}

// tick ends the current tick and returns the changes delivered in it.
func (f *fixture) tick() PreferenceChanges {
	f.t.Helper()
	f.scheduler.RunPending()
	return f.drain()
}

func (f *fixture) drain() PreferenceChanges {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out PreferenceChanges
	for _, batch := range f.batches {
		out = append(out, batch...)
	}
	f.batches = nil
	return out
}

func (f *fixture) addSchema(properties map[string]*PreferenceProperty) Disposable {
	f.t.Helper()
	handle, err := f.registry.AddSchema(&PreferenceSchema{Properties: properties})
	if err != nil {
		f.t.Fatalf("add schema: %v", err)
	}
	return handle
}

func prop(typ string, defaultValue any) *PreferenceProperty {
	return &PreferenceProperty{
		JSONSchema: JSONSchema{Type: TypeList{typ}, Default: defaultValue},
	}
}

func overridable(p *PreferenceProperty) *PreferenceProperty {
	p.Overridable = Bool(true)
	return p
}

type changeExpectation struct {
	name     string
	newValue any
	oldValue any
}

func assertChanges(t *testing.T, got PreferenceChanges, want ...changeExpectation) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d changes, got %d: %+v", len(want), len(got), got)
	}
	for i, expected := range want {
		change := got[i]
		if change.PreferenceName != expected.name {
			t.Fatalf("change %d: expected name %q, got %q (%+v)", i, expected.name, change.PreferenceName, got)
		}
		if !layering.Equal(change.NewValue, expected.newValue) {
			t.Fatalf("change %d (%s): expected new value %v, got %v", i, expected.name, expected.newValue, change.NewValue)
		}
		if !layering.Equal(change.OldValue, expected.oldValue) {
			t.Fatalf("change %d (%s): expected old value %v, got %v", i, expected.name, expected.oldValue, change.OldValue)
		}
	}
}
