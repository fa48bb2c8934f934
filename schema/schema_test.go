package schema_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goliatone/go-prefs"
	"github.com/goliatone/go-prefs/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const editorJSONC = `{
	// editor defaults
	"title": "Editor",
	"scope": "window",
	"properties": {
		"editor.tabSize": {
			"type": "integer",
			"default": 4,
			"minimum": 1,
			"overridable": true,
		},
		"editor.rulers": {
			"type": "array",
			"items": { "type": "integer" },
			"default": [80],
		},
		/* folder only */
		"files.eol": { "type": "string", "enum": ["\n", "\r\n"], "scope": "resource" },
	},
}`

const editorYAML = `
title: Editor
properties:
  editor.lineHeight:
    type: [number, string]
    default: 1.5
  editor.font:
    type: object
    properties:
      family: { type: string }
    additionalProperties: false
  editor.hidden:
    type: boolean
    included: false
`

func TestFromJSONC(t *testing.T) {
	s, err := schema.FromJSONC([]byte(editorJSONC))
	require.NoError(t, err)

	assert.Equal(t, "Editor", s.Title)
	require.NotNil(t, s.Scope)
	assert.Equal(t, prefs.Workspace, *s.Scope)
	assert.Equal(t, []string{"editor.rulers", "editor.tabSize", "files.eol"}, s.PropertyNames())

	tabSize := s.Properties["editor.tabSize"]
	assert.Equal(t, prefs.TypeList{prefs.TypeInteger}, tabSize.Type)
	assert.Equal(t, float64(4), tabSize.Default)
	require.NotNil(t, tabSize.Minimum)
	assert.Equal(t, float64(1), *tabSize.Minimum)
	assert.True(t, tabSize.IsOverridable())

	rulers := s.Properties["editor.rulers"]
	require.NotNil(t, rulers.Items)
	assert.Equal(t, prefs.TypeList{prefs.TypeInteger}, rulers.Items.Schema.Type)

	eol := s.Properties["files.eol"]
	assert.Equal(t, []any{"\n", "\r\n"}, eol.Enum)
	require.NotNil(t, eol.Scope)
	assert.Equal(t, prefs.Folder, *eol.Scope)

	_, err = schema.FromJSONC([]byte(`{"properties": [`))
	assert.Error(t, err)
}

func TestFromYAML(t *testing.T) {
	s, err := schema.FromYAML([]byte(editorYAML))
	require.NoError(t, err)

	lineHeight := s.Properties["editor.lineHeight"]
	assert.Equal(t, prefs.TypeList{prefs.TypeNumber, prefs.TypeString}, lineHeight.Type)
	assert.Equal(t, 1.5, lineHeight.Default)

	font := s.Properties["editor.font"]
	require.NotNil(t, font.AdditionalProperties)
	assert.False(t, font.AdditionalProperties.Allowed)
	assert.Equal(t, prefs.TypeList{prefs.TypeString}, font.Properties["family"].Type)

	assert.False(t, s.Properties["editor.hidden"].IsIncluded())

	_, err = schema.FromYAML([]byte("properties: [unclosed"))
	assert.Error(t, err)
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	jsoncPath := filepath.Join(dir, "editor.jsonc")
	yamlPath := filepath.Join(dir, "editor.yml")
	require.NoError(t, os.WriteFile(jsoncPath, []byte(editorJSONC), 0o600))
	require.NoError(t, os.WriteFile(yamlPath, []byte(editorYAML), 0o600))

	fromJSONC, err := schema.FromFile(jsoncPath)
	require.NoError(t, err)
	assert.Len(t, fromJSONC.Properties, 3)

	fromYAML, err := schema.FromFile(yamlPath)
	require.NoError(t, err)
	assert.Len(t, fromYAML.Properties, 3)

	_, err = schema.FromFile(filepath.Join(dir, "editor.toml"))
	assert.Error(t, err)
}

type fontSettings struct {
	Family string  `json:"family" jsonschema:"default=mono"`
	Size   float64 `json:"size"`
}

type editorSettings struct {
	TabSize  int          `json:"tabSize" jsonschema:"default=4,minimum=1,maximum=16,description=Spaces per tab" jsonschema_extras:"overridable=true"`
	WordWrap string       `json:"wordWrap" jsonschema:"enum=off,enum=on" jsonschema_extras:"scope=folder"`
	Font     fontSettings `json:"font"`
	Rulers   []int        `json:"rulers,omitempty"`
}

func TestFromStruct(t *testing.T) {
	s, err := schema.FromStruct("editor", editorSettings{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"editor.font.family",
		"editor.font.size",
		"editor.rulers",
		"editor.tabSize",
		"editor.wordWrap",
	}, s.PropertyNames())

	tabSize := s.Properties["editor.tabSize"]
	assert.Equal(t, prefs.TypeList{prefs.TypeInteger}, tabSize.Type)
	assert.Equal(t, float64(4), tabSize.Default)
	assert.Equal(t, "Spaces per tab", tabSize.Description)
	require.NotNil(t, tabSize.Maximum)
	assert.Equal(t, float64(16), *tabSize.Maximum)
	assert.True(t, tabSize.IsOverridable())
	assert.Nil(t, tabSize.Scope)

	wordWrap := s.Properties["editor.wordWrap"]
	assert.Equal(t, []any{"off", "on"}, wordWrap.Enum)
	require.NotNil(t, wordWrap.Scope)
	assert.Equal(t, prefs.Folder, *wordWrap.Scope)

	assert.Equal(t, "mono", s.Properties["editor.font.family"].Default)
	assert.Equal(t, prefs.TypeList{prefs.TypeNumber}, s.Properties["editor.font.size"].Type)

	rulers := s.Properties["editor.rulers"]
	assert.Equal(t, prefs.TypeList{prefs.TypeArray}, rulers.Type)
	require.NotNil(t, rulers.Items)
	assert.Equal(t, prefs.TypeList{prefs.TypeInteger}, rulers.Items.Schema.Type)
}

type badScope struct {
	Mode string `json:"mode" jsonschema_extras:"scope=galaxy"`
}

func TestFromStructRejectsUnknownScope(t *testing.T) {
	_, err := schema.FromStruct("", badScope{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mode")
}

func TestContributionRegistersOnInitialize(t *testing.T) {
	s, err := schema.FromStruct("editor", editorSettings{})
	require.NoError(t, err)

	registry := prefs.NewSchemaRegistry(
		prefs.WithScheduler(prefs.NewManualScheduler()),
		prefs.WithContributions(schema.Contribution("editor", s)),
	)
	require.NoError(t, registry.Initialize(context.Background()))

	assert.Equal(t, float64(4), registry.DefaultValue("editor.tabSize", ""))
	assert.True(t, registry.IsValidInScope("editor.wordWrap", prefs.Folder))
	assert.False(t, registry.IsValidInScope("editor.wordWrap", prefs.User))
}
