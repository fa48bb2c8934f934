package prefs

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func newRegistry(t *testing.T, opts ...Option) *SchemaRegistry {
	t.Helper()
	registry := NewSchemaRegistry(opts...)
	if err := registry.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return registry
}

func recordDefaultChanges(registry *SchemaRegistry) *[]DefaultValueChange {
	var events []DefaultValueChange
	registry.OnDidChangeDefaultValue(func(change DefaultValueChange) {
		events = append(events, change)
	})
	return &events
}

func TestAddSchemaIsAllOrNothing(t *testing.T) {
	registry := newRegistry(t)
	if _, err := registry.AddSchema(&PreferenceSchema{Properties: map[string]*PreferenceProperty{
		"editor.fontSize": prop(TypeNumber, 12),
	}}); err != nil {
		t.Fatalf("add schema: %v", err)
	}

	_, err := registry.AddSchema(&PreferenceSchema{Properties: map[string]*PreferenceProperty{
		"editor.fontFamily": prop(TypeString, "mono"),
		"editor.fontSize":   prop(TypeNumber, 14),
	}})
	if !errors.Is(err, ErrDuplicatePreference) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	var regErr *RegistrationError
	if !errors.As(err, &regErr) || regErr.Name != "editor.fontSize" {
		t.Fatalf("expected registration error naming editor.fontSize, got %v", err)
	}
	if registry.HasProperty("editor.fontFamily") {
		t.Fatalf("expected no property from the rejected schema")
	}
	if got := registry.DefaultValue("editor.fontSize", ""); got != 12 {
		t.Fatalf("expected original default to survive, got %v", got)
	}
}

func TestSchemaScopeAndOverridableApplyToProperties(t *testing.T) {
	registry := newRegistry(t)
	registry.AddSchema(&PreferenceSchema{
		Scope:       ScopeRef(Workspace),
		Overridable: Bool(true),
		Properties: map[string]*PreferenceProperty{
			"a": prop(TypeString, "a"),
			"b": {JSONSchema: JSONSchema{Type: TypeList{TypeString}}, Scope: ScopeRef(User), Overridable: Bool(false)},
		},
	})

	a, _ := registry.Property("a")
	if *a.Scope != Workspace || !a.IsOverridable() {
		t.Fatalf("expected schema level scope and overridable, got %+v", a)
	}
	b, _ := registry.Property("b")
	if *b.Scope != User || b.IsOverridable() {
		t.Fatalf("expected property level settings to win, got %+v", b)
	}
}

func TestRegisteredPropertiesAreCopies(t *testing.T) {
	registry := newRegistry(t)
	schema := &PreferenceSchema{Properties: map[string]*PreferenceProperty{
		"files.exclude": prop(TypeObject, map[string]any{"**/.git": true}),
	}}
	registry.AddSchema(schema)
	schema.Properties["files.exclude"].Default.(map[string]any)["**/.git"] = false

	got := registry.DefaultValue("files.exclude", "").(map[string]any)
	if got["**/.git"] != true {
		t.Fatalf("expected registry to keep its own copy, got %v", got)
	}
	got["**/.git"] = false
	if registry.DefaultValue("files.exclude", "").(map[string]any)["**/.git"] != true {
		t.Fatalf("expected DefaultValue to return a copy")
	}
}

func TestRemoveSchema(t *testing.T) {
	registry := newRegistry(t)
	events := recordDefaultChanges(registry)
	handle, _ := registry.AddSchema(&PreferenceSchema{Properties: map[string]*PreferenceProperty{
		"editor.wordWrap": prop(TypeString, "off"),
	}})
	if len(*events) != 1 || (*events)[0].NewValue != "off" {
		t.Fatalf("unexpected add events %+v", *events)
	}

	handle.Dispose()
	handle.Dispose()
	if registry.HasProperty("editor.wordWrap") {
		t.Fatalf("expected property removed")
	}
	if len(*events) != 2 || (*events)[1].OldValue != "off" || (*events)[1].NewValue != nil {
		t.Fatalf("unexpected remove events %+v", *events)
	}
	if names := registry.PreferenceNames(); len(names) != 0 {
		t.Fatalf("expected no names, got %v", names)
	}
}

func TestDefaultOverrideStack(t *testing.T) {
	registry := newRegistry(t)
	registry.AddSchema(&PreferenceSchema{Properties: map[string]*PreferenceProperty{
		tabSize: prop(TypeNumber, 4),
	}})
	events := recordDefaultChanges(registry)

	first := registry.RegisterOverride(tabSize, "", 2)
	second := registry.RegisterOverride(tabSize, "", 8)
	if got := registry.DefaultValue(tabSize, ""); got != 8 {
		t.Fatalf("expected newest override, got %v", got)
	}

	first.Dispose()
	if got := registry.DefaultValue(tabSize, ""); got != 8 {
		t.Fatalf("expected head to survive removal below it, got %v", got)
	}
	if len(*events) != 2 {
		t.Fatalf("expected removal below the head to stay silent, got %+v", *events)
	}

	second.Dispose()
	if got := registry.DefaultValue(tabSize, ""); got != 4 {
		t.Fatalf("expected schema default, got %v", got)
	}
	last := (*events)[len(*events)-1]
	if last.OldValue != 8 || last.NewValue != 4 {
		t.Fatalf("unexpected final event %+v", last)
	}
}

func TestRemovingOverrideAtHeadRevealsPrevious(t *testing.T) {
	registry := newRegistry(t)
	registry.AddSchema(&PreferenceSchema{Properties: map[string]*PreferenceProperty{
		tabSize: prop(TypeNumber, 4),
	}})
	registry.RegisterOverride(tabSize, "", 2)
	head := registry.RegisterOverride(tabSize, "", 8)
	head.Dispose()
	if got := registry.DefaultValue(tabSize, ""); got != 2 {
		t.Fatalf("expected previous override, got %v", got)
	}
}

func TestInspectDefaultValueForOverride(t *testing.T) {
	registry := newRegistry(t)
	registry.RegisterOverrideIdentifier("go")
	registry.AddSchema(&PreferenceSchema{Properties: map[string]*PreferenceProperty{
		tabSize: overridable(prop(TypeNumber, 4)),
	}})

	if got := registry.InspectDefaultValue(tabSize, "go"); got != nil {
		t.Fatalf("expected no override default, got %v", got)
	}
	if got := registry.DefaultValue(tabSize, "go"); got != 4 {
		t.Fatalf("expected inherited default, got %v", got)
	}

	registry.RegisterOverride(tabSize, "go", 8)
	if got := registry.InspectDefaultValue(tabSize, "go"); got != 8 {
		t.Fatalf("expected override default, got %v", got)
	}
	if got := registry.InspectDefaultValue(tabSize, ""); got != 4 {
		t.Fatalf("expected base default, got %v", got)
	}
}

func TestBaseOverrideReportsInheritingIdentifiers(t *testing.T) {
	registry := newRegistry(t)
	registry.RegisterOverrideIdentifier("json")
	registry.RegisterOverrideIdentifier("go")
	registry.AddSchema(&PreferenceSchema{Properties: map[string]*PreferenceProperty{
		tabSize: overridable(prop(TypeNumber, 4)),
	}})
	registry.RegisterOverride(tabSize, "go", 8)
	events := recordDefaultChanges(registry)

	registry.RegisterOverride(tabSize, "", 2)
	if len(*events) != 1 {
		t.Fatalf("expected one event, got %+v", *events)
	}
	if got := (*events)[0].OtherAffectedOverrides; !slices.Equal(got, []string{"json"}) {
		t.Fatalf("expected only json to inherit, got %v", got)
	}
}

func TestRemoveSchemaReportsStackedOverrides(t *testing.T) {
	registry := newRegistry(t)
	registry.RegisterOverrideIdentifier("json")
	registry.RegisterOverrideIdentifier("go")
	handle, _ := registry.AddSchema(&PreferenceSchema{Properties: map[string]*PreferenceProperty{
		insertSpaces: overridable(prop(TypeBoolean, true)),
	}})
	registry.RegisterOverride(insertSpaces, "go", false)
	events := recordDefaultChanges(registry)

	handle.Dispose()
	if len(*events) != 2 {
		t.Fatalf("expected base and go events, got %+v", *events)
	}
	base, goEvent := (*events)[0], (*events)[1]
	if base.OverrideIdentifier != "" || base.OldValue != true || base.NewValue != nil ||
		!slices.Equal(base.OtherAffectedOverrides, []string{"json"}) {
		t.Fatalf("unexpected base event %+v", base)
	}
	if goEvent.OverrideIdentifier != "go" || goEvent.OldValue != false || goEvent.NewValue != nil {
		t.Fatalf("unexpected go event %+v", goEvent)
	}
	if got := registry.InspectDefaultValue(insertSpaces, "go"); got != false {
		t.Fatalf("expected override stack to outlive the schema, got %v", got)
	}
}

func TestIsValidInScope(t *testing.T) {
	registry := newRegistry(t)
	registry.RegisterOverrideIdentifier("go")
	registry.AddSchema(&PreferenceSchema{Properties: map[string]*PreferenceProperty{
		"window.zoom":   {JSONSchema: JSONSchema{Type: TypeList{TypeNumber}}, Scope: ScopeRef(Workspace)},
		"editor.hidden": {JSONSchema: JSONSchema{Type: TypeList{TypeBoolean}}, Included: Bool(false)},
		tabSize:         overridable(prop(TypeNumber, 4)),
	}})

	cases := []struct {
		name  string
		scope Scope
		want  bool
	}{
		{"window.zoom", User, false},
		{"window.zoom", Workspace, true},
		{"window.zoom", Folder, true},
		{"editor.hidden", Default, false},
		{"editor.hidden", Folder, false},
		{tabSize, Default, true},
		{"[go].editor.tabSize", Folder, true},
		{"unknown", User, false},
	}
	for _, tc := range cases {
		if got := registry.IsValidInScope(tc.name, tc.scope); got != tc.want {
			t.Fatalf("IsValidInScope(%q, %s) = %v, want %v", tc.name, tc.scope, got, tc.want)
		}
	}
}

func TestDefaultValuesNestsOverrides(t *testing.T) {
	registry := newRegistry(t)
	registry.RegisterOverrideIdentifier("go")
	registry.AddSchema(&PreferenceSchema{Properties: map[string]*PreferenceProperty{
		tabSize:       overridable(prop(TypeNumber, 4)),
		"editor.font": {JSONSchema: JSONSchema{Type: TypeList{TypeString}}},
	}})
	registry.RegisterOverride(tabSize, "go", 8)
	registry.RegisterOverride("editor.font", "", "mono")

	got := registry.DefaultValues()
	if got[tabSize] != 4 || got["editor.font"] != "mono" {
		t.Fatalf("unexpected defaults %v", got)
	}
	section, ok := got["[go]"].(map[string]any)
	if !ok || section[tabSize] != 8 {
		t.Fatalf("expected [go] section, got %v", got["[go]"])
	}
}

func TestScopeDocuments(t *testing.T) {
	registry := newRegistry(t)
	registry.AddSchema(&PreferenceSchema{Properties: map[string]*PreferenceProperty{
		tabSize:       overridable(prop(TypeNumber, 4)),
		"window.zoom": {JSONSchema: JSONSchema{Type: TypeList{TypeNumber}}, Scope: ScopeRef(Workspace)},
	}})
	var schemaChanges int
	registry.OnDidChangeSchema(func() { schemaChanges++ })
	registry.RegisterOverrideIdentifier("go")
	if schemaChanges == 0 {
		t.Fatalf("expected schema change after registering an identifier")
	}

	user := documentProperties(registry.JSONSchema(User))
	if _, ok := user["window.zoom"]; ok {
		t.Fatalf("expected window.zoom to be absent from the User document")
	}
	if _, ok := documentProperties(registry.JSONSchema(Workspace))["window.zoom"]; !ok {
		t.Fatalf("expected window.zoom in the Workspace document")
	}
	section, ok := user["[go]"].(map[string]any)
	if !ok {
		t.Fatalf("expected [go] section in the User document, got %v", user)
	}
	if _, ok := documentProperties(section)[tabSize]; !ok {
		t.Fatalf("expected overridable property in [go] section")
	}
	patterns := registry.JSONSchema(User)["patternProperties"].(map[string]any)
	if _, ok := patterns[`^\[(go)\]$`]; !ok {
		t.Fatalf("unexpected pattern properties %v", patterns)
	}

	registry.RegisterOverride(tabSize, "", 2)
	doc := documentProperties(registry.JSONSchema(User))[tabSize].(map[string]any)
	if doc["default"] != float64(2) {
		t.Fatalf("expected document default to follow overrides, got %v", doc["default"])
	}
}

func TestInitializeRunsContributions(t *testing.T) {
	registry := NewSchemaRegistry(WithContributions(
		SchemaContribution{
			Name: "editor",
			Schema: &PreferenceSchema{Properties: map[string]*PreferenceProperty{
				tabSize: prop(TypeNumber, 4),
			}},
		},
		SchemaContribution{
			Name: "overrides",
			Init: func(ctx context.Context, r *SchemaRegistry) error {
				r.RegisterOverride(tabSize, "", 2)
				return nil
			},
		},
	))
	if registry.Ready().Settled() {
		t.Fatalf("expected Ready to wait for Initialize")
	}
	if err := registry.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	waitReady(t, registry.Ready())
	if got := registry.DefaultValue(tabSize, ""); got != 2 {
		t.Fatalf("expected contribution override, got %v", got)
	}
}

func TestInitializeRejectsReadyOnFailure(t *testing.T) {
	boom := errors.New("boom")
	registry := NewSchemaRegistry(WithContributions(SchemaContribution{
		Name: "broken",
		Init: func(context.Context, *SchemaRegistry) error { return boom },
	}))
	err := registry.Initialize(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if !errors.Is(registry.Ready().Err(), boom) {
		t.Fatalf("expected Ready rejected with boom, got %v", registry.Ready().Err())
	}
	if again := registry.Initialize(context.Background()); !errors.Is(again, boom) {
		t.Fatalf("expected Initialize to keep the first result, got %v", again)
	}
}

func TestValidScopesOption(t *testing.T) {
	registry := NewSchemaRegistry(WithValidScopes(User, Folder))
	if got := registry.ValidScopes(); !slices.Equal(got, []Scope{Default, User, Folder}) {
		t.Fatalf("unexpected scopes %v", got)
	}
	if registry.JSONSchema(Workspace) != nil {
		t.Fatalf("expected no Workspace document")
	}
}

func TestJSONSchemaCopyIsDetached(t *testing.T) {
	registry := newRegistry(t)
	registry.AddSchema(&PreferenceSchema{Properties: map[string]*PreferenceProperty{
		tabSize: overridable(prop(TypeNumber, 4)),
	}})

	snapshot := registry.JSONSchemaCopy(User)
	delete(documentProperties(snapshot), tabSize)
	if _, ok := documentProperties(registry.JSONSchema(User))[tabSize]; !ok {
		t.Fatalf("editing a copy must not touch the registry document")
	}

	snapshot = registry.JSONSchemaCopy(User)
	registry.AddSchema(&PreferenceSchema{Properties: map[string]*PreferenceProperty{
		"editor.wordWrap": prop(TypeString, "off"),
	}})
	registry.RegisterOverrideIdentifier("go")
	if _, ok := documentProperties(snapshot)["editor.wordWrap"]; ok {
		t.Fatalf("copy must not see later schema additions")
	}
	if _, ok := documentProperties(snapshot)["[go]"]; ok {
		t.Fatalf("copy must not see later override sections")
	}
	if _, ok := documentProperties(registry.JSONSchemaCopy(User))["editor.wordWrap"]; !ok {
		t.Fatalf("fresh copy should include the new property")
	}

	if NewSchemaRegistry(WithValidScopes(User)).JSONSchemaCopy(Workspace) != nil {
		t.Fatalf("expected nil copy for an invalid scope")
	}
}
