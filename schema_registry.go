package prefs

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"

	"github.com/goliatone/go-prefs/layering"
	"github.com/goliatone/go-prefs/pkg/activity"
	"golang.org/x/sync/errgroup"
)

// SchemaContribution supplies preference definitions at startup. Schema is
// added before any Init hook runs; Init hooks run concurrently and may call
// back into the registry.
type SchemaContribution struct {
	Name   string
	Schema *PreferenceSchema
	Init   func(ctx context.Context, registry *SchemaRegistry) error
}

// DefaultValueChange describes a change of the effective default of a
// preference, optionally scoped to an override identifier.
type DefaultValueChange struct {
	PreferenceName     string
	OverrideIdentifier string
	OldValue           any
	NewValue           any
	// OtherAffectedOverrides lists identifiers that inherit the base default
	// and therefore observe the same change. Only set for base changes.
	OtherAffectedOverrides []string
}

type overrideEntry struct {
	id    uint64
	value any
}

// SchemaRegistry stores preference definitions and stacked default
// overrides, and keeps one JSON schema document per valid scope in sync.
type SchemaRegistry struct {
	mu sync.RWMutex

	cfg       config
	overrides *OverrideService
	scopes    []Scope
	activity  *activity.Emitter

	schemas          map[*PreferenceSchema][]string
	properties       map[string]*PreferenceProperty
	defaultOverrides map[string]map[string][]overrideEntry
	documents        map[Scope]map[string]any
	nextOverrideID   uint64

	defaultChanged Emitter[DefaultValueChange]
	schemaChanged  Emitter[struct{}]

	ready    *Deferred
	initOnce sync.Once
	initErr  error
}

// NewSchemaRegistry builds an empty registry. Call Initialize to apply the
// configured contributions and resolve Ready.
func NewSchemaRegistry(opts ...Option) *SchemaRegistry {
	cfg := applyOptions(opts)
	overrides := cfg.overrides
	if overrides == nil {
		overrides = NewOverrideService()
	}
	r := &SchemaRegistry{
		cfg:              cfg,
		overrides:        overrides,
		scopes:           sortScopes(cfg.validScopes),
		activity:         activity.NewEmitter(cfg.activityHooks, cfg.activityCfg),
		schemas:          map[*PreferenceSchema][]string{},
		properties:       map[string]*PreferenceProperty{},
		defaultOverrides: map[string]map[string][]overrideEntry{},
		documents:        map[Scope]map[string]any{},
		ready:            NewDeferred(),
	}
	if cfg.validScopes == nil {
		r.scopes = Scopes()
	}
	for _, scope := range r.scopes {
		r.documents[scope] = newScopeDocument()
	}
	overrides.OnSchemaChanged(r.syncOverrideIdentifiers)
	r.syncOverrideIdentifiers()
	return r
}

func newScopeDocument() map[string]any {
	return map[string]any{
		"type":                TypeObject,
		"properties":          map[string]any{},
		"patternProperties":   map[string]any{},
		"allowComments":       true,
		"allowTrailingCommas": true,
	}
}

// Initialize adds every contribution schema and runs the Init hooks. Ready
// resolves when all hooks succeed and is rejected otherwise. Later calls
// return the first result.
func (r *SchemaRegistry) Initialize(ctx context.Context) error {
	r.initOnce.Do(func() {
		r.initErr = r.initialize(ctx)
	})
	return r.initErr
}

func (r *SchemaRegistry) initialize(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for _, contribution := range r.cfg.contributions {
		if contribution.Schema == nil {
			continue
		}
		if _, err := r.AddSchema(contribution.Schema); err != nil {
			r.cfg.logger.Error().Err(err).Str("contribution", contribution.Name).Msg("schema contribution rejected")
			r.ready.Reject(err)
			return err
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, contribution := range r.cfg.contributions {
		if contribution.Init == nil {
			continue
		}
		contribution := contribution
		group.Go(func() error {
			if err := contribution.Init(groupCtx, r); err != nil {
				return fmt.Errorf("prefs: init schema contribution %q: %w", contribution.Name, err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		r.cfg.logger.Error().Err(err).Msg("schema initialization failed")
		r.ready.Reject(err)
		return err
	}
	r.ready.Resolve()
	return nil
}

// Ready settles once Initialize finished.
func (r *SchemaRegistry) Ready() *Deferred {
	return r.ready
}

// Overrides exposes the override identifier service shared with the registry.
func (r *SchemaRegistry) Overrides() *OverrideService {
	return r.overrides
}

// ValidScopes returns the scopes this registry maintains documents for.
func (r *SchemaRegistry) ValidScopes() []Scope {
	return append([]Scope(nil), r.scopes...)
}

// OnDidChangeDefaultValue subscribes to effective default changes.
func (r *SchemaRegistry) OnDidChangeDefaultValue(fn func(DefaultValueChange)) Disposable {
	return r.defaultChanged.Subscribe(fn)
}

// OnDidChangeSchema subscribes to changes of the scope documents.
func (r *SchemaRegistry) OnDidChangeSchema(fn func()) Disposable {
	return r.schemaChanged.Subscribe(func(struct{}) { fn() })
}

// AddSchema registers every property of schema. Registration is all or
// nothing: when any name is already registered nothing is added and a
// *RegistrationError wrapping ErrDuplicatePreference is returned.
func (r *SchemaRegistry) AddSchema(schema *PreferenceSchema) (Disposable, error) {
	if schema == nil {
		return NoopDisposable, nil
	}

	r.mu.Lock()
	if _, exists := r.schemas[schema]; exists {
		r.mu.Unlock()
		return NoopDisposable, nil
	}
	names := schema.PropertyNames()
	for _, name := range names {
		if _, exists := r.properties[name]; exists {
			r.mu.Unlock()
			return nil, &RegistrationError{Name: name, Err: ErrDuplicatePreference}
		}
	}

	var events []DefaultValueChange
	for _, name := range names {
		property := schema.Properties[name].Clone()
		if property == nil {
			property = &PreferenceProperty{}
		}
		if property.Scope == nil && schema.Scope != nil {
			property.Scope = ScopeRef(*schema.Scope)
		}
		if property.Overridable == nil && schema.Overridable != nil {
			property.Overridable = Bool(*schema.Overridable)
		}

		oldValue := r.effectiveDefault(name, "")
		r.properties[name] = property
		r.addPropertyToDocuments(name, property)
		newValue := r.effectiveDefault(name, "")
		if !layering.Equal(oldValue, newValue) {
			events = append(events, DefaultValueChange{
				PreferenceName:         name,
				OldValue:               oldValue,
				NewValue:               newValue,
				OtherAffectedOverrides: r.inheritingIdentifiers(name),
			})
		}
	}
	r.schemas[schema] = names
	count := len(r.properties)
	r.mu.Unlock()

	r.cfg.metrics.setRegistered(count)
	r.fireDefaultChanges(events)
	r.schemaChanged.Fire(struct{}{})
	r.emitSchemaActivity("added", names)

	return NewDisposable(func() { r.removeSchema(schema) }), nil
}

func (r *SchemaRegistry) removeSchema(schema *PreferenceSchema) {
	r.mu.Lock()
	names, ok := r.schemas[schema]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.schemas, schema)

	var events []DefaultValueChange
	for _, name := range names {
		if _, exists := r.properties[name]; !exists {
			continue
		}
		oldValue := r.effectiveDefault(name, "")
		inheriting := r.inheritingIdentifiers(name)
		stacked := r.stackedIdentifiers(name)

		delete(r.properties, name)
		r.removePropertyFromDocuments(name)

		newValue := r.effectiveDefault(name, "")
		if !layering.Equal(oldValue, newValue) {
			events = append(events, DefaultValueChange{
				PreferenceName:         name,
				OldValue:               oldValue,
				NewValue:               newValue,
				OtherAffectedOverrides: inheriting,
			})
		}
		for _, id := range stacked {
			events = append(events, DefaultValueChange{
				PreferenceName:     name,
				OverrideIdentifier: id,
				OldValue:           r.stackHead(name, id),
			})
		}
	}
	count := len(r.properties)
	r.mu.Unlock()

	r.cfg.metrics.setRegistered(count)
	r.fireDefaultChanges(events)
	r.schemaChanged.Fire(struct{}{})
	r.emitSchemaActivity("removed", names)
}

func (r *SchemaRegistry) emitSchemaActivity(action string, names []string) {
	if !r.activity.Enabled() {
		return
	}
	for _, name := range names {
		if err := r.activity.Emit(context.Background(), activity.SchemaEvent(action, name)); err != nil {
			r.cfg.logger.Warn().Err(err).Str("preference", name).Msg("activity hook failed")
		}
	}
}

// RegisterOverrideIdentifier registers id with the override service and
// retrofits the scope documents with an "[id]" section.
func (r *SchemaRegistry) RegisterOverrideIdentifier(id string) Disposable {
	return r.overrides.RegisterOverrideIdentifier(id)
}

// RegisterOverride pushes value on the default override stack for key and
// overrideIdentifier ("" for the base default). The handle removes exactly
// this entry.
func (r *SchemaRegistry) RegisterOverride(key, overrideIdentifier string, value any) Disposable {
	r.mu.Lock()
	oldValue := r.effectiveDefault(key, overrideIdentifier)

	r.nextOverrideID++
	entryID := r.nextOverrideID
	byIdentifier, ok := r.defaultOverrides[key]
	if !ok {
		byIdentifier = map[string][]overrideEntry{}
		r.defaultOverrides[key] = byIdentifier
	}
	entry := overrideEntry{id: entryID, value: layering.Clone(value)}
	byIdentifier[overrideIdentifier] = append([]overrideEntry{entry}, byIdentifier[overrideIdentifier]...)

	newValue := r.effectiveDefault(key, overrideIdentifier)
	var events []DefaultValueChange
	if !layering.Equal(oldValue, newValue) {
		events = append(events, r.overrideChange(key, overrideIdentifier, oldValue, newValue))
	}
	r.refreshDocumentDefaults(key)
	r.mu.Unlock()

	r.fireDefaultChanges(events)
	return NewDisposable(func() { r.removeOverride(key, overrideIdentifier, entryID) })
}

func (r *SchemaRegistry) removeOverride(key, overrideIdentifier string, entryID uint64) {
	r.mu.Lock()
	byIdentifier, ok := r.defaultOverrides[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	stack := byIdentifier[overrideIdentifier]
	index := -1
	for i, entry := range stack {
		if entry.id == entryID {
			index = i
			break
		}
	}
	if index < 0 {
		r.mu.Unlock()
		return
	}

	oldValue := r.effectiveDefault(key, overrideIdentifier)
	stack = append(stack[:index:index], stack[index+1:]...)
	if len(stack) == 0 {
		delete(byIdentifier, overrideIdentifier)
		if len(byIdentifier) == 0 {
			delete(r.defaultOverrides, key)
		}
	} else {
		byIdentifier[overrideIdentifier] = stack
	}
	newValue := r.effectiveDefault(key, overrideIdentifier)

	var events []DefaultValueChange
	if !layering.Equal(oldValue, newValue) {
		events = append(events, r.overrideChange(key, overrideIdentifier, oldValue, newValue))
	}
	r.refreshDocumentDefaults(key)
	r.mu.Unlock()

	r.fireDefaultChanges(events)
}

func (r *SchemaRegistry) overrideChange(key, overrideIdentifier string, oldValue, newValue any) DefaultValueChange {
	change := DefaultValueChange{
		PreferenceName:     key,
		OverrideIdentifier: overrideIdentifier,
		OldValue:           oldValue,
		NewValue:           newValue,
	}
	if overrideIdentifier == "" {
		change.OtherAffectedOverrides = r.inheritingIdentifiers(key)
	}
	return change
}

// DefaultValue returns the effective default for key: the head of the
// override stack for overrideIdentifier, then the head of the base stack,
// then the schema default.
func (r *SchemaRegistry) DefaultValue(key, overrideIdentifier string) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return layering.Clone(r.effectiveDefault(key, overrideIdentifier))
}

// InspectDefaultValue behaves like DefaultValue but returns nil when an
// override identifier is requested and no override was registered for it.
func (r *SchemaRegistry) InspectDefaultValue(key, overrideIdentifier string) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if overrideIdentifier != "" {
		return layering.Clone(r.stackHead(key, overrideIdentifier))
	}
	return layering.Clone(r.effectiveDefault(key, ""))
}

// JSONSchema returns the live document for scope. AddSchema, schema
// removal, RegisterOverride and RegisterOverrideIdentifier update it in
// place, so callers must not modify it and may only read it while no such
// call runs. Use JSONSchemaCopy when mutations can happen concurrently.
func (r *SchemaRegistry) JSONSchema(scope Scope) map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.documents[scope]
}

// JSONSchemaCopy returns a deep copy of the document for scope, taken
// under the registry lock. Nil when scope is not valid.
func (r *SchemaRegistry) JSONSchemaCopy(scope Scope) map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.documents[scope]
	if !ok {
		return nil
	}
	return layering.Clone(doc).(map[string]any)
}

// DefaultValues flattens every effective default into one object. Override
// defaults are nested under "[id]" keys.
func (r *SchemaRegistry) DefaultValues() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := map[string]any{}
	for name, property := range r.properties {
		if property.Default != nil {
			out[name] = layering.Clone(property.Default)
		}
	}
	for key, byIdentifier := range r.defaultOverrides {
		for id, stack := range byIdentifier {
			if len(stack) == 0 {
				continue
			}
			value := layering.Clone(stack[0].value)
			if id == "" {
				out[key] = value
				continue
			}
			marker := MarkLanguageOverride(id)
			section, ok := out[marker].(map[string]any)
			if !ok {
				section = map[string]any{}
				out[marker] = section
			}
			section[key] = value
		}
	}
	return out
}

// IsValidInScope reports whether name may be set at scope. Override names
// resolve to their base property.
func (r *SchemaRegistry) IsValidInScope(name string, scope Scope) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	property := r.lookupProperty(name)
	if property == nil {
		return false
	}
	return propertyValidInScope(property, scope)
}

func propertyValidInScope(property *PreferenceProperty, scope Scope) bool {
	if !property.IsIncluded() {
		return false
	}
	return property.Scope == nil || scope >= *property.Scope
}

// Property returns a copy of the property registered for name. Override
// names resolve to their base property.
func (r *SchemaRegistry) Property(name string) (*PreferenceProperty, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	property := r.lookupProperty(name)
	if property == nil {
		return nil, false
	}
	return property.Clone(), true
}

// HasProperty reports whether name (or its base name) is registered.
func (r *SchemaRegistry) HasProperty(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupProperty(name) != nil
}

// PreferenceNames returns every registered name in lexical order.
func (r *SchemaRegistry) PreferenceNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.properties))
	for name := range r.properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OverridePreferenceNames yields "[id].name" for every registered
// identifier when name is an overridable property.
func (r *SchemaRegistry) OverridePreferenceNames(name string) iter.Seq[string] {
	return func(yield func(string) bool) {
		r.mu.RLock()
		property := r.properties[name]
		overridable := property.IsOverridable()
		r.mu.RUnlock()
		if !overridable {
			return
		}
		for overrideName := range r.overrides.OverridePreferenceNames(name) {
			if !yield(overrideName) {
				return
			}
		}
	}
}

func (r *SchemaRegistry) lookupProperty(name string) *PreferenceProperty {
	if property, ok := r.properties[name]; ok {
		return property
	}
	if parsed, ok := r.overrides.OverriddenPreferenceName(name); ok {
		return r.properties[parsed.PreferenceName]
	}
	return nil
}

func (r *SchemaRegistry) stackHead(key, overrideIdentifier string) any {
	stack := r.defaultOverrides[key][overrideIdentifier]
	if len(stack) == 0 {
		return nil
	}
	return stack[0].value
}

func (r *SchemaRegistry) hasStack(key, overrideIdentifier string) bool {
	return len(r.defaultOverrides[key][overrideIdentifier]) > 0
}

func (r *SchemaRegistry) effectiveDefault(key, overrideIdentifier string) any {
	if overrideIdentifier != "" && r.hasStack(key, overrideIdentifier) {
		return r.stackHead(key, overrideIdentifier)
	}
	if r.hasStack(key, "") {
		return r.stackHead(key, "")
	}
	if property, ok := r.properties[key]; ok {
		return property.Default
	}
	return nil
}

// inheritingIdentifiers lists registered identifiers without their own
// default override for an overridable key.
func (r *SchemaRegistry) inheritingIdentifiers(key string) []string {
	property, ok := r.properties[key]
	if !ok || !property.IsOverridable() {
		return nil
	}
	var out []string
	for _, id := range r.overrides.Identifiers() {
		if !r.hasStack(key, id) {
			out = append(out, id)
		}
	}
	return out
}

func (r *SchemaRegistry) stackedIdentifiers(key string) []string {
	property, ok := r.properties[key]
	if !ok || !property.IsOverridable() {
		return nil
	}
	var out []string
	for _, id := range r.overrides.Identifiers() {
		if r.hasStack(key, id) {
			out = append(out, id)
		}
	}
	return out
}

func (r *SchemaRegistry) fireDefaultChanges(events []DefaultValueChange) {
	for _, event := range events {
		r.defaultChanged.Fire(event)
	}
}

func documentProperties(doc map[string]any) map[string]any {
	properties, _ := doc["properties"].(map[string]any)
	return properties
}

func propertyDocument(property *PreferenceProperty, defaultValue any) map[string]any {
	doc := schemaDocument(property)
	if defaultValue != nil {
		doc["default"] = schemaDocument(map[string]any{"v": defaultValue})["v"]
	} else {
		delete(doc, "default")
	}
	return doc
}

func (r *SchemaRegistry) addPropertyToDocuments(name string, property *PreferenceProperty) {
	for _, scope := range r.scopes {
		if !propertyValidInScope(property, scope) {
			continue
		}
		properties := documentProperties(r.documents[scope])
		properties[name] = propertyDocument(property, r.effectiveDefault(name, ""))
		if !property.IsOverridable() {
			continue
		}
		for _, id := range r.overrides.Identifiers() {
			section, ok := properties[MarkLanguageOverride(id)].(map[string]any)
			if !ok {
				continue
			}
			documentProperties(section)[name] = propertyDocument(property, r.effectiveDefault(name, id))
		}
	}
}

func (r *SchemaRegistry) removePropertyFromDocuments(name string) {
	for _, scope := range r.scopes {
		properties := documentProperties(r.documents[scope])
		delete(properties, name)
		for key, value := range properties {
			if !IsOverrideKey(key) {
				continue
			}
			if section, ok := value.(map[string]any); ok {
				delete(documentProperties(section), name)
			}
		}
	}
}

func (r *SchemaRegistry) refreshDocumentDefaults(key string) {
	property, ok := r.properties[key]
	if !ok {
		return
	}
	r.removePropertyFromDocuments(key)
	r.addPropertyToDocuments(key, property)
}

// syncOverrideIdentifiers aligns the "[id]" sections of every document with
// the registered identifiers.
func (r *SchemaRegistry) syncOverrideIdentifiers() {
	ids := r.overrides.Identifiers()
	patternKey, hasPattern := r.overrides.ComputeOverridePatternPropertiesKey()

	r.mu.Lock()
	changed := false
	registered := make(map[string]bool, len(ids))
	for _, id := range ids {
		registered[MarkLanguageOverride(id)] = true
	}
	for _, scope := range r.scopes {
		doc := r.documents[scope]
		properties := documentProperties(doc)
		for key := range properties {
			if IsOverrideKey(key) && !registered[key] {
				delete(properties, key)
				changed = true
			}
		}
		for _, id := range ids {
			marker := MarkLanguageOverride(id)
			if _, ok := properties[marker]; ok {
				continue
			}
			section := map[string]any{
				"type":        TypeObject,
				"description": fmt.Sprintf("Configure settings to be overridden for %s.", id),
				"properties":  map[string]any{},
			}
			for name, property := range r.properties {
				if property.IsOverridable() && propertyValidInScope(property, scope) {
					documentProperties(section)[name] = propertyDocument(property, r.effectiveDefault(name, id))
				}
			}
			properties[marker] = section
			changed = true
		}
		patterns := map[string]any{}
		if hasPattern {
			patterns[patternKey] = map[string]any{"type": TypeObject}
		}
		doc["patternProperties"] = patterns
	}
	r.mu.Unlock()

	if changed {
		r.schemaChanged.Fire(struct{}{})
	}
}
