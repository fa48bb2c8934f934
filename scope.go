package prefs

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scope orders configuration layers from most general to most specific.
// Larger values are narrower and win when values are merged.
type Scope int

const (
	// Default holds schema-derived defaults.
	Default Scope = iota
	// User holds values set for the current user.
	User
	// Workspace holds values set for the open workspace.
	Workspace
	// Folder holds values set for a single workspace folder.
	Folder
)

var scopeNames = [...]string{"Default", "User", "Workspace", "Folder"}

// Scopes returns every scope ordered from general to specific.
func Scopes() []Scope {
	return []Scope{Default, User, Workspace, Folder}
}

// ReversedScopes returns every scope ordered from specific to general.
func ReversedScopes() []Scope {
	scopes := Scopes()
	slices.Reverse(scopes)
	return scopes
}

// IsScope reports whether value names one of the known scopes.
func IsScope(value any) bool {
	switch v := value.(type) {
	case Scope:
		return v >= Default && v <= Folder
	case int:
		return v >= int(Default) && v <= int(Folder)
	default:
		return false
	}
}

// ScopeNames returns the labels of every scope up to and including upTo.
// Without an argument all labels are returned.
func ScopeNames(upTo ...Scope) []string {
	limit := Folder
	if len(upTo) > 0 {
		limit = upTo[0]
	}
	names := make([]string, 0, len(scopeNames))
	for _, scope := range Scopes() {
		if scope > limit {
			break
		}
		names = append(names, scope.String())
	}
	return names
}

func (s Scope) String() string {
	if s < Default || s > Folder {
		return "Scope(" + strconv.Itoa(int(s)) + ")"
	}
	return scopeNames[s]
}

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s >= Default && s <= Folder
}

// ParseScope converts a scope label into a Scope. Besides the scope names it
// accepts the contribution aliases application (User), window (Workspace)
// and resource (Folder).
func ParseScope(value string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "default":
		return Default, nil
	case "user", "application":
		return User, nil
	case "workspace", "window":
		return Workspace, nil
	case "folder", "resource", "language-overridable":
		return Folder, nil
	}
	if n, err := strconv.Atoi(value); err == nil && IsScope(n) {
		return Scope(n), nil
	}
	return Default, fmt.Errorf("prefs: unknown scope %q", value)
}

// MarshalJSON encodes the scope as its lower-case label.
func (s Scope) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.ToLower(s.String()))
}

// UnmarshalJSON accepts either a label or the numeric scope value.
func (s *Scope) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if !IsScope(n) {
			return fmt.Errorf("prefs: unknown scope %d", n)
		}
		*s = Scope(n)
		return nil
	}
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return fmt.Errorf("prefs: decode scope: %w", err)
	}
	parsed, err := ParseScope(label)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// UnmarshalYAML accepts the same forms as UnmarshalJSON.
func (s *Scope) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseScope(node.Value)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ScopeRef returns a pointer to scope for optional schema fields.
func ScopeRef(scope Scope) *Scope {
	return &scope
}

func sortScopes(scopes []Scope) []Scope {
	out := make([]Scope, 0, len(scopes)+1)
	seen := map[Scope]bool{}
	for _, scope := range append([]Scope{Default}, scopes...) {
		if !scope.Valid() || seen[scope] {
			continue
		}
		seen[scope] = true
		out = append(out, scope)
	}
	slices.Sort(out)
	return out
}
