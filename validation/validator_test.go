package validation_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/goliatone/go-prefs"
	"github.com/goliatone/go-prefs/validation"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func float(v float64) *float64 { return &v }
func count(v int) *int         { return &v }

func schema(typ ...string) prefs.JSONSchema {
	return prefs.JSONSchema{Type: prefs.TypeList(typ)}
}

func newRegistry(t *testing.T, properties map[string]*prefs.PreferenceProperty) *prefs.SchemaRegistry {
	t.Helper()
	registry := prefs.NewSchemaRegistry(prefs.WithScheduler(prefs.NewManualScheduler()))
	require.NoError(t, registry.Initialize(context.Background()))
	_, err := registry.AddSchema(&prefs.PreferenceSchema{Properties: properties})
	require.NoError(t, err)
	return registry
}

func TestScalarTypes(t *testing.T) {
	tabSize := schema(prefs.TypeInteger)
	tabSize.Default = 4
	tabSize.Minimum = float(1)
	tabSize.Maximum = float(16)

	fontFamily := schema(prefs.TypeString)
	fontFamily.Default = "mono"
	fontFamily.MinLength = count(1)

	registry := newRegistry(t, map[string]*prefs.PreferenceProperty{
		"editor.tabSize":      {JSONSchema: tabSize},
		"editor.fontFamily":   {JSONSchema: fontFamily},
		"editor.insertSpaces": {JSONSchema: schema(prefs.TypeBoolean)},
		"editor.zoom":         {JSONSchema: schema(prefs.TypeNumber)},
	})
	v := validation.New(registry)

	cases := []struct {
		name     string
		value    any
		want     any
		messages bool
	}{
		{name: "editor.tabSize", value: 2, want: 2},
		{name: "editor.tabSize", value: float64(8), want: float64(8)},
		{name: "editor.tabSize", value: "6", want: 6, messages: true},
		{name: "editor.tabSize", value: 2.5, want: 4, messages: true},
		{name: "editor.tabSize", value: 32, want: 4, messages: true},
		{name: "editor.tabSize", value: "wide", want: 4, messages: true},
		{name: "editor.fontFamily", value: "Fira", want: "Fira"},
		{name: "editor.fontFamily", value: "", want: "mono", messages: true},
		{name: "editor.fontFamily", value: 12, want: "mono", messages: true},
		{name: "editor.insertSpaces", value: false, want: false},
		{name: "editor.insertSpaces", value: "true", want: true, messages: true},
		{name: "editor.zoom", value: "1.5", want: 1.5, messages: true},
		{name: "editor.unknown", value: []int{1}, want: []int{1}},
	}
	for _, tc := range cases {
		got, messages := v.ValidateByName(tc.name, tc.value)
		assert.Equal(t, tc.want, got, "%s = %#v", tc.name, tc.value)
		assert.Equal(t, tc.messages, len(messages) > 0, "%s = %#v: %v", tc.name, tc.value, messages)
	}

	got, messages := v.ValidateByName("editor.tabSize", nil)
	assert.Nil(t, got)
	assert.Empty(t, messages)
}

func TestMultiTypePrefersExactMatch(t *testing.T) {
	registry := newRegistry(t, map[string]*prefs.PreferenceProperty{
		"editor.lineHeight": {JSONSchema: schema(prefs.TypeNumber, prefs.TypeString)},
		"editor.wordWrap":   {JSONSchema: schema(prefs.TypeBoolean, prefs.TypeNumber)},
	})
	v := validation.New(registry)

	got, messages := v.ValidateByName("editor.lineHeight", "3")
	assert.Equal(t, "3", got)
	assert.Empty(t, messages)

	got, messages = v.ValidateByName("editor.lineHeight", 3)
	assert.Equal(t, 3, got)
	assert.Empty(t, messages)

	got, messages = v.ValidateByName("editor.wordWrap", "80")
	assert.Equal(t, float64(80), got)
	assert.NotEmpty(t, messages)
}

func TestEnumAndConst(t *testing.T) {
	wrap := schema(prefs.TypeString)
	wrap.Enum = []any{"off", "on", "bounded"}
	wrap.Default = "off"

	registry := newRegistry(t, map[string]*prefs.PreferenceProperty{
		"editor.wordWrap": {JSONSchema: wrap},
		"editor.version":  {JSONSchema: prefs.JSONSchema{Const: 2}},
	})
	v := validation.New(registry)

	got, messages := v.ValidateByName("editor.wordWrap", "on")
	assert.Equal(t, "on", got)
	assert.Empty(t, messages)

	got, messages = v.ValidateByName("editor.wordWrap", "sometimes")
	assert.Equal(t, "off", got)
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], `Valid values: "off", "on", "bounded"`)

	got, messages = v.ValidateByName("editor.version", float64(2))
	assert.Equal(t, float64(2), got)
	assert.Empty(t, messages)

	got, _ = v.ValidateByName("editor.version", 3)
	assert.Nil(t, got)
}

func TestOneOfAndAnyOf(t *testing.T) {
	auto := schema(prefs.TypeString)
	auto.Enum = []any{"auto"}
	size := schema(prefs.TypeInteger)
	size.Minimum = float(1)

	registry := newRegistry(t, map[string]*prefs.PreferenceProperty{
		"editor.rulers": {JSONSchema: prefs.JSONSchema{OneOf: []*prefs.JSONSchema{&auto, &size}, Default: "auto"}},
		"editor.tokens": {JSONSchema: prefs.JSONSchema{AnyOf: []*prefs.JSONSchema{&size, &auto}}},
	})
	v := validation.New(registry)

	got, messages := v.ValidateByName("editor.rulers", 80)
	assert.Equal(t, 80, got)
	assert.Empty(t, messages)

	got, messages = v.ValidateByName("editor.rulers", "manual")
	assert.Equal(t, "auto", got)
	assert.Contains(t, messages, "Value does not match any of the allowed schemas.")

	got, _ = v.ValidateByName("editor.tokens", "auto")
	assert.Equal(t, "auto", got)
}

func TestArraysAndTuples(t *testing.T) {
	item := schema(prefs.TypeInteger)
	rulers := schema(prefs.TypeArray)
	rulers.Items = &prefs.SchemaItems{Schema: &item}
	rulers.MinItems = count(1)
	rulers.Default = []any{80}

	name := schema(prefs.TypeString)
	flag := schema(prefs.TypeBoolean)
	pair := schema(prefs.TypeArray)
	pair.Items = &prefs.SchemaItems{Tuple: []*prefs.JSONSchema{&name, &flag}}

	registry := newRegistry(t, map[string]*prefs.PreferenceProperty{
		"editor.rulers": {JSONSchema: rulers},
		"editor.pair":   {JSONSchema: pair},
	})
	v := validation.New(registry)

	got, messages := v.ValidateByName("editor.rulers", []any{80, "x", 120})
	assert.Equal(t, []any{80, 120}, got)
	assert.Contains(t, messages, "[1]: Item removed.")

	got, _ = v.ValidateByName("editor.rulers", []any{"x"})
	assert.Equal(t, []any{80}, got, "an emptied array falls back to the default")

	got, messages = v.ValidateByName("editor.pair", []any{"tabs", "true"})
	assert.Equal(t, []any{"tabs", true}, got)
	assert.NotEmpty(t, messages)

	got, _ = v.ValidateByName("editor.pair", []any{"tabs"})
	assert.Nil(t, got)
}

func TestNestedObjects(t *testing.T) {
	size := schema(prefs.TypeInteger)
	size.Default = 12
	enabled := schema(prefs.TypeBoolean)
	extra := schema(prefs.TypeString)

	font := schema(prefs.TypeObject)
	font.Properties = map[string]*prefs.JSONSchema{"size": &size, "enabled": &enabled}
	font.PatternProperties = map[string]*prefs.JSONSchema{"^x-": &extra}
	font.AdditionalProperties = &prefs.SchemaOrBool{Allowed: false}
	font.Required = []string{"enabled"}

	registry := newRegistry(t, map[string]*prefs.PreferenceProperty{
		"editor.font": {JSONSchema: font},
	})
	v := validation.New(registry)

	got, messages := v.ValidateByName("editor.font", map[string]any{
		"size":    "wide",
		"enabled": true,
		"x-note":  "hi",
		"color":   "red",
	})
	assert.Equal(t, map[string]any{"size": 12, "enabled": true, "x-note": "hi"}, got)
	assert.Contains(t, messages, "color: Property is not allowed.")
	assert.Contains(t, messages, `size: Incorrect type. Expected "integer".`)

	got, messages = v.ValidateByName("editor.font", map[string]any{"size": 10})
	assert.Nil(t, got)
	assert.Contains(t, messages, `Missing property "enabled".`)
}

func TestPatternAndLogging(t *testing.T) {
	var logs bytes.Buffer
	eol := schema(prefs.TypeString)
	eol.Pattern = `^(\n|\r\n)$`
	eol.Default = "\n"

	registry := newRegistry(t, map[string]*prefs.PreferenceProperty{
		"files.eol": {JSONSchema: eol, Overridable: prefs.Bool(true)},
	})
	registry.RegisterOverrideIdentifier("bat")
	registry.RegisterOverride("files.eol", "bat", "\r\n")
	v := validation.New(registry, validation.WithLogger(zerolog.New(&logs)))

	got, messages := v.ValidateByName("files.eol", "\r\n")
	assert.Equal(t, "\r\n", got)
	assert.Empty(t, messages)

	got, _ = v.ValidateByName("files.eol", "\r")
	assert.Equal(t, "\n", got)
	got, _ = v.ValidateByName("[bat].files.eol", "\r")
	assert.Equal(t, "\r\n", got, "override names fall back to their own default")
	assert.Contains(t, logs.String(), "preference value rejected")

	strict := validation.New(registry, validation.WithoutFallback())
	got, err := strict.Validate("files.eol", "\r")
	assert.Nil(t, got)
	var messagesErr validation.Messages
	require.ErrorAs(t, err, &messagesErr)
	assert.Contains(t, err.Error(), "does not match the pattern")
}

func TestValidateStrictNeverFallsBack(t *testing.T) {
	tabSize := schema(prefs.TypeInteger)
	tabSize.Default = 4
	registry := newRegistry(t, map[string]*prefs.PreferenceProperty{
		"editor.tabSize": {JSONSchema: tabSize},
	})
	v := validation.New(registry)

	got, messages := v.ValidateStrict("editor.tabSize", "wide")
	assert.Nil(t, got)
	assert.NotEmpty(t, messages)

	got, messages = v.ValidateStrict("editor.tabSize", "6")
	assert.Equal(t, 6, got)
	assert.NotEmpty(t, messages)

	got, _ = v.ValidateByName("editor.tabSize", "wide")
	assert.Equal(t, 4, got)
}
