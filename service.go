package prefs

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/goliatone/go-prefs/layering"
	"github.com/goliatone/go-prefs/pkg/activity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ProviderLookup returns the provider bound to scope, or nil.
type ProviderLookup func(scope Scope) Provider

// ProviderMap adapts a static map to ProviderLookup.
func ProviderMap(providers map[Scope]Provider) ProviderLookup {
	return func(scope Scope) Provider {
		return providers[scope]
	}
}

// Inspection reports the value of a preference in every scope.
type Inspection struct {
	PreferenceName       string
	DefaultValue         any
	GlobalValue          any
	WorkspaceValue       any
	WorkspaceFolderValue any
	Value                any
}

// ValueAt returns the slot for scope.
func (i Inspection) ValueAt(scope Scope) any {
	switch scope {
	case Default:
		return i.DefaultValue
	case User:
		return i.GlobalValue
	case Workspace:
		return i.WorkspaceValue
	case Folder:
		return i.WorkspaceFolderValue
	default:
		return nil
	}
}

// CallOption tunes a single read or write.
type CallOption func(*callOptions)

type callOptions struct {
	defaultValue          any
	resourceURI           string
	scope                 *Scope
	overrideIdentifier    string
	forceLanguageOverride bool
}

func applyCallOptions(opts []CallOption) callOptions {
	call := callOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&call)
		}
	}
	return call
}

// OrDefault supplies the value returned when nothing is set anywhere.
func OrDefault(value any) CallOption {
	return func(call *callOptions) {
		call.defaultValue = value
	}
}

// ForResource evaluates the call in the context of resourceURI.
func ForResource(resourceURI string) CallOption {
	return func(call *callOptions) {
		call.resourceURI = resourceURI
	}
}

// InScope selects the target scope of a write.
func InScope(scope Scope) CallOption {
	return func(call *callOptions) {
		call.scope = ScopeRef(scope)
	}
}

// ForOverride reads names through the "[id]" override of id.
func ForOverride(id string) CallOption {
	return func(call *callOptions) {
		call.overrideIdentifier = id
	}
}

// ForceLanguageOverride stops Inspect from falling back to the base name.
func ForceLanguageOverride() CallOption {
	return func(call *callOptions) {
		call.forceLanguageOverride = true
	}
}

// Service aggregates the scope providers into one preference model.
type Service struct {
	cfg       config
	registry  *SchemaRegistry
	overrides *OverrideService
	lookup    ProviderLookup
	scopes    []Scope
	activity  *activity.Emitter

	mu        sync.RWMutex
	providers map[Scope]Provider
	disposed  bool
	subs      Disposables
	closed    chan struct{}
	closeOnce sync.Once

	ready   *Deferred
	changed Emitter[PreferenceChange]
	batched Emitter[PreferenceChanges]

	evalMu sync.Mutex
}

// NewService binds providers for every valid scope. Binding waits for each
// provider to become ready on a background goroutine; Ready resolves once
// all of them are bound.
func NewService(registry *SchemaRegistry, lookup ProviderLookup, opts ...Option) *Service {
	cfg := applyOptions(opts)
	scopes := registry.ValidScopes()
	if cfg.validScopes != nil {
		scopes = cfg.validScopes
	}
	s := &Service{
		cfg:       cfg,
		registry:  registry,
		overrides: registry.Overrides(),
		lookup:    lookup,
		scopes:    scopes,
		activity:  activity.NewEmitter(cfg.activityHooks, cfg.activityCfg),
		providers: map[Scope]Provider{},
		closed:    make(chan struct{}),
		ready:     NewDeferred(),
	}
	for _, err := range cfg.functionErrs {
		cfg.logger.Warn().Err(err).Msg("custom function rejected")
	}
	go s.initialize()
	return s
}

func (s *Service) initialize() {
	for _, scope := range s.scopes {
		var provider Provider
		if s.lookup != nil {
			provider = s.lookup(scope)
		}
		if provider == nil || !provider.CanHandleScope(scope) {
			s.cfg.logger.Warn().Str("scope", scope.String()).Msg("no preference provider bound to scope")
			continue
		}

		select {
		case <-provider.Ready().Done():
		case <-s.closed:
			return
		}
		if err := provider.Ready().Err(); err != nil {
			s.cfg.logger.Error().Err(err).Str("scope", scope.String()).Msg("preference provider failed to initialize")
			s.ready.Reject(fmt.Errorf("prefs: provider for %s scope: %w", scope, err))
			return
		}

		s.mu.Lock()
		if s.disposed {
			s.mu.Unlock()
			return
		}
		s.providers[scope] = provider
		s.mu.Unlock()
		s.subs.Add(provider.OnDidPreferencesChanged(s.reconcile))
	}
	s.ready.Resolve()
}

// Ready settles once every provider is bound, or is rejected when the
// service is disposed first.
func (s *Service) Ready() *Deferred {
	return s.ready
}

// Registry returns the schema registry the service reads from.
func (s *Service) Registry() *SchemaRegistry {
	return s.registry
}

// ValidScopes returns the scopes the service iterates.
func (s *Service) ValidScopes() []Scope {
	return append([]Scope(nil), s.scopes...)
}

// Dispose drops listeners and rejects Ready for pending awaiters. Providers
// are left untouched.
func (s *Service) Dispose() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.disposed = true
		s.mu.Unlock()
		close(s.closed)
		s.ready.Reject(ErrServiceDisposed)
		s.subs.Dispose()
		s.changed.Dispose()
		s.batched.Dispose()
	})
}

// OnPreferenceChanged subscribes to individual reconciled changes.
func (s *Service) OnPreferenceChanged(fn func(PreferenceChange)) Disposable {
	return s.changed.Subscribe(fn)
}

// OnPreferencesChanged subscribes to reconciled change batches.
func (s *Service) OnPreferencesChanged(fn func(PreferenceChanges)) Disposable {
	return s.batched.Subscribe(fn)
}

// OverridePreferenceName returns "[id].name".
func (s *Service) OverridePreferenceName(p OverridePreference) string {
	return s.overrides.OverridePreferenceName(p)
}

// OverriddenPreferenceName splits a registered "[id].name" form.
func (s *Service) OverriddenPreferenceName(name string) (OverridePreference, bool) {
	return s.overrides.OverriddenPreferenceName(name)
}

func (s *Service) provider(scope Scope) Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	provider := s.providers[scope]
	if provider == nil || !provider.CanHandleScope(scope) {
		return nil
	}
	return provider
}

func (s *Service) preferenceName(name string, call callOptions) string {
	if call.overrideIdentifier == "" {
		return name
	}
	return OverridePreferenceName(OverridePreference{PreferenceName: name, OverrideIdentifier: call.overrideIdentifier})
}

// Resolve merges the value of name across scopes. Object values are merged
// key by key with narrower scopes winning. An unset "[id].name" falls back
// to the base preference. The returned value is a private copy.
func (s *Service) Resolve(name string, opts ...CallOption) ResolveResult {
	call := applyCallOptions(opts)
	result := s.resolve(name, call)
	if result.Value == nil {
		return ResolveResult{Value: layering.Clone(call.defaultValue)}
	}
	return result
}

func (s *Service) resolve(name string, call callOptions) ResolveResult {
	name = s.preferenceName(name, call)
	value, configURI := s.doResolve(name, call.resourceURI)
	if value == nil {
		if parsed, ok := s.overrides.OverriddenPreferenceName(name); ok {
			value, configURI = s.doResolve(parsed.PreferenceName, call.resourceURI)
		}
	}
	return ResolveResult{Value: value, ConfigURI: configURI}
}

func (s *Service) doResolve(name, resourceURI string) (any, string) {
	var value any
	var configURI string
	for _, scope := range s.scopes {
		provider := s.provider(scope)
		if provider == nil {
			continue
		}
		result := provider.Resolve(name, resourceURI)
		if result.Value == nil {
			continue
		}
		configURI = result.ConfigURI
		value = layering.Merge(value, result.Value)
	}
	return value, configURI
}

// Get returns the resolved value of name.
func (s *Service) Get(name string, opts ...CallOption) any {
	return s.Resolve(name, opts...).Value
}

// Has reports whether name resolves to a value.
func (s *Service) Has(name string, opts ...CallOption) bool {
	return s.resolve(name, applyCallOptions(opts)).Value != nil
}

// GetBoolean coerces the resolved value to a bool.
func (s *Service) GetBoolean(name string, defaultValue bool, opts ...CallOption) bool {
	switch v := s.Get(name, opts...).(type) {
	case nil:
		return defaultValue
	case bool:
		return v
	case string:
		return v != ""
	default:
		if f, ok := toFloat(v); ok {
			return f != 0 && !math.IsNaN(f)
		}
		return true
	}
}

// GetString coerces the resolved value to a string.
func (s *Service) GetString(name string, defaultValue string, opts ...CallOption) string {
	switch v := s.Get(name, opts...).(type) {
	case nil:
		return defaultValue
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// GetNumber coerces the resolved value to a float64. Values that cannot be
// read as numbers yield defaultValue.
func (s *Service) GetNumber(name string, defaultValue float64, opts ...CallOption) float64 {
	switch v := s.Get(name, opts...).(type) {
	case nil:
		return defaultValue
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return defaultValue
		}
		return f
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		if f, ok := toFloat(v); ok {
			return f
		}
		return defaultValue
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Inspect reports the value of name in every scope. Each slot falls back to
// the base preference for an unset "[id].name" unless
// ForceLanguageOverride is given.
func (s *Service) Inspect(name string, opts ...CallOption) Inspection {
	call := applyCallOptions(opts)
	name = s.preferenceName(name, call)
	values := map[Scope]any{}
	for _, scope := range Scopes() {
		values[scope] = s.inspectInScope(name, scope, call.resourceURI, call.forceLanguageOverride)
	}
	var value any
	for _, scope := range ReversedScopes() {
		if values[scope] != nil {
			value = values[scope]
			break
		}
	}
	return Inspection{
		PreferenceName:       name,
		DefaultValue:         layering.Clone(values[Default]),
		GlobalValue:          layering.Clone(values[User]),
		WorkspaceValue:       layering.Clone(values[Workspace]),
		WorkspaceFolderValue: layering.Clone(values[Folder]),
		Value:                layering.Clone(value),
	}
}

func (s *Service) inspectInScope(name string, scope Scope, resourceURI string, force bool) any {
	value := s.doInspectInScope(name, scope, resourceURI)
	if value == nil && !force {
		if parsed, ok := s.overrides.OverriddenPreferenceName(name); ok {
			return s.doInspectInScope(parsed.PreferenceName, scope, resourceURI)
		}
	}
	return value
}

func (s *Service) doInspectInScope(name string, scope Scope, resourceURI string) any {
	provider := s.provider(scope)
	if provider == nil {
		return nil
	}
	return provider.Get(name, resourceURI)
}

// Set writes value (nil deletes) to one scope. Without InScope the target is
// Workspace, or Folder when a resource is given. It returns after the
// resulting changes were delivered to listeners.
func (s *Service) Set(ctx context.Context, name string, value any, opts ...CallOption) error {
	call := applyCallOptions(opts)
	scope := Workspace
	if call.resourceURI != "" {
		scope = Folder
	}
	if call.scope != nil {
		scope = *call.scope
	}

	ctx, span := s.cfg.tracer.Start(ctx, "prefs.Set", trace.WithAttributes(
		attribute.String("preference.name", name),
		attribute.String("preference.scope", scope.String()),
	))
	defer span.End()

	err := s.set(ctx, name, value, scope, call.resourceURI)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *Service) set(ctx context.Context, name string, value any, scope Scope, resourceURI string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.isDisposed() {
		return ErrServiceDisposed
	}
	if !scope.Valid() {
		return &WriteError{Scope: scope, Name: name, Err: ErrInvalidScope}
	}
	if scope == Folder && resourceURI == "" {
		return ErrFolderScopeRequiresResource
	}
	provider := s.provider(scope)
	if provider == nil {
		err := &WriteError{Scope: scope, Name: name, Err: ErrUnboundScope}
		s.cfg.metrics.recordWrite(scope, err)
		return err
	}
	if !provider.SetPreference(ctx, name, value, resourceURI) {
		err := &WriteError{Scope: scope, Name: name, Err: ErrWriteRejected}
		s.cfg.logger.Warn().Str("preference", name).Str("scope", scope.String()).Msg("preference write rejected")
		s.cfg.metrics.recordWrite(scope, err)
		return err
	}
	s.cfg.metrics.recordWrite(scope, nil)
	return nil
}

// UpdateValue writes value to the scopes needed to make it the effective
// value: the narrowest scope that already defines the preference, or User.
// A nil value clears every scope. When only User defines the preference and
// value equals the default, the User value is removed instead of pinned.
func (s *Service) UpdateValue(ctx context.Context, name string, value any, opts ...CallOption) error {
	call := applyCallOptions(opts)
	ctx, span := s.cfg.tracer.Start(ctx, "prefs.UpdateValue", trace.WithAttributes(
		attribute.String("preference.name", name),
	))
	defer span.End()

	inspection := s.Inspect(name, ForResource(call.resourceURI))
	scopes := s.scopesToChange(inspection, value)
	span.SetAttributes(attribute.Int("preference.scopes", len(scopes)))
	if len(scopes) == 0 {
		return nil
	}

	deletion := value == nil ||
		(len(scopes) == 1 && scopes[0] == User && layering.Equal(value, inspection.DefaultValue))
	effective := value
	if deletion {
		effective = nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, scope := range scopes {
		scope := scope
		group.Go(func() error {
			return s.set(groupCtx, name, effective, scope, call.resourceURI)
		})
	}
	if err := group.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s *Service) scopesToChange(inspection Inspection, intended any) []Scope {
	if layering.Equal(inspection.Value, intended) {
		return nil
	}
	var candidates []Scope
	for _, scope := range ReversedScopes() {
		if scope != Default {
			candidates = append(candidates, scope)
		}
	}
	defined := func(scope Scope) bool {
		return inspection.ValueAt(scope) != nil
	}
	if intended == nil {
		var out []Scope
		for _, scope := range candidates {
			if defined(scope) {
				out = append(out, scope)
			}
		}
		return out
	}
	for _, scope := range candidates {
		if defined(scope) {
			return []Scope{scope}
		}
	}
	return []Scope{User}
}

// Preferences returns the resolved value of every known preference keyed by
// its flat name.
func (s *Service) Preferences(opts ...CallOption) map[string]any {
	call := applyCallOptions(opts)
	names := map[string]struct{}{}
	for _, name := range s.registry.PreferenceNames() {
		names[name] = struct{}{}
	}
	for _, scope := range s.scopes {
		provider := s.provider(scope)
		if provider == nil {
			continue
		}
		for name := range provider.Preferences(call.resourceURI) {
			head, _, _ := strings.Cut(name, ".")
			if !IsOverrideKey(head) {
				names[name] = struct{}{}
			}
		}
	}

	out := make(map[string]any, len(names))
	for name := range names {
		value := s.Get(name, ForResource(call.resourceURI), ForOverride(call.overrideIdentifier))
		if value != nil {
			out[name] = value
		}
	}
	return out
}

func (s *Service) isDisposed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disposed
}
