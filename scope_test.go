package prefs

import (
	"encoding/json"
	"reflect"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestScopeOrdering(t *testing.T) {
	if !reflect.DeepEqual(Scopes(), []Scope{Default, User, Workspace, Folder}) {
		t.Fatalf("unexpected scopes %v", Scopes())
	}
	if !reflect.DeepEqual(ReversedScopes(), []Scope{Folder, Workspace, User, Default}) {
		t.Fatalf("unexpected reversed scopes %v", ReversedScopes())
	}
	if got := ScopeNames(); !reflect.DeepEqual(got, []string{"Default", "User", "Workspace", "Folder"}) {
		t.Fatalf("unexpected names %v", got)
	}
	if got := ScopeNames(User); !reflect.DeepEqual(got, []string{"Default", "User"}) {
		t.Fatalf("unexpected names up to User %v", got)
	}
}

func TestIsScope(t *testing.T) {
	cases := []struct {
		value any
		want  bool
	}{
		{Default, true},
		{Folder, true},
		{2, true},
		{4, false},
		{-1, false},
		{"User", false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := IsScope(tc.value); got != tc.want {
			t.Fatalf("IsScope(%v) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestParseScope(t *testing.T) {
	cases := map[string]Scope{
		"default":              Default,
		"User":                 User,
		"application":          User,
		"window":               Workspace,
		" workspace ":          Workspace,
		"resource":             Folder,
		"language-overridable": Folder,
		"3":                    Folder,
	}
	for label, want := range cases {
		got, err := ParseScope(label)
		if err != nil || got != want {
			t.Fatalf("ParseScope(%q) = %v, %v; want %v", label, got, err, want)
		}
	}
	if _, err := ParseScope("machine"); err == nil {
		t.Fatalf("expected error for unknown scope")
	}
}

func TestScopeEncoding(t *testing.T) {
	payload, err := json.Marshal(map[string]Scope{"scope": Workspace})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(payload) != `{"scope":"workspace"}` {
		t.Fatalf("unexpected payload %s", payload)
	}

	var decoded struct {
		A Scope `json:"a"`
		B Scope `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a":"resource","b":1}`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.A != Folder || decoded.B != User {
		t.Fatalf("unexpected decoded scopes %+v", decoded)
	}
	if err := json.Unmarshal([]byte(`{"a":7}`), &decoded); err == nil {
		t.Fatalf("expected error for out of range scope")
	}

	var fromYAML struct {
		Scope Scope `yaml:"scope"`
	}
	if err := yaml.Unmarshal([]byte("scope: window\n"), &fromYAML); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if fromYAML.Scope != Workspace {
		t.Fatalf("expected Workspace, got %v", fromYAML.Scope)
	}
}

func TestSortScopesAlwaysIncludesDefault(t *testing.T) {
	got := sortScopes([]Scope{Folder, User, Folder, Scope(12)})
	if !reflect.DeepEqual(got, []Scope{Default, User, Folder}) {
		t.Fatalf("unexpected scopes %v", got)
	}
}
