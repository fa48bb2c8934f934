package openapi

import (
	"fmt"
	"regexp"
	"strings"
)

// componentRegistry dedupes structurally identical nodes. A node is
// published under components once it was seen twice, or when forced; the
// first occurrence stays inline.
type componentRegistry struct {
	entries   map[string]*componentEntry
	usedNames map[string]struct{}
}

type componentEntry struct {
	name   string
	schema map[string]any
	count  int
	force  bool
}

func (e *componentEntry) published() bool {
	return e.force || e.count >= 2
}

func newComponentRegistry() *componentRegistry {
	return &componentRegistry{
		entries:   map[string]*componentEntry{},
		usedNames: map[string]struct{}{},
	}
}

// register returns a $ref for node when it is shared, or "" to inline it.
func (r *componentRegistry) register(nameHint string, node *schemaNode) string {
	return r.track(nameHint, node, false)
}

func (r *componentRegistry) forceReference(name string, node *schemaNode) string {
	return r.track(name, node, true)
}

func (r *componentRegistry) track(nameHint string, node *schemaNode, force bool) string {
	if node == nil {
		return ""
	}
	digest := node.Digest()
	if digest == "" {
		return ""
	}

	entry, ok := r.entries[digest]
	if !ok {
		entry = &componentEntry{name: r.uniqueName(nameHint)}
		r.entries[digest] = entry
	}
	entry.count++
	entry.force = entry.force || force
	if !entry.published() {
		return ""
	}
	if entry.schema == nil {
		entry.schema = node.inlineOpenAPI()
	}
	return "#/components/schemas/" + entry.name
}

func (r *componentRegistry) uniqueName(name string) string {
	safe := sanitizeComponentName(name)
	if safe == "" {
		safe = "Schema"
	}
	candidate := safe
	for suffix := 1; ; suffix++ {
		if _, exists := r.usedNames[candidate]; !exists {
			r.usedNames[candidate] = struct{}{}
			return candidate
		}
		candidate = fmt.Sprintf("%s%d", safe, suffix)
	}
}

func (r *componentRegistry) componentsMap() map[string]any {
	out := map[string]any{}
	for _, entry := range r.entries {
		if entry.published() {
			out[entry.name] = entry.schema
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

var componentNameRegexp = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// sanitizeComponentName maps "Preferences_[go]_editor.tabSize" to
// "Preferences_go_editor_tabSize".
func sanitizeComponentName(name string) string {
	name = componentNameRegexp.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return ""
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}
