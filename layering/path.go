package layering

import (
	"sort"
	"strings"
)

// SetPath stores value under the dotted path, creating intermediate objects.
// An existing non-object value along the path is replaced by an object.
func SetPath(root map[string]any, path string, value any) {
	if root == nil || path == "" {
		return
	}
	segments := strings.Split(path, ".")
	current := root
	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[segment] = next
		}
		current = next
	}
	leaf := segments[len(segments)-1]
	if existing, ok := current[leaf].(map[string]any); ok {
		if incoming, ok := value.(map[string]any); ok {
			current[leaf] = Merge(existing, incoming)
			return
		}
		return
	}
	current[leaf] = value
}

// GetPath returns the value stored under the dotted path.
func GetPath(root map[string]any, path string) (any, bool) {
	if root == nil || path == "" {
		return nil, false
	}
	var current any = root
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Unflatten expands dotted keys into nested objects. Keys are applied in
// lexical order so a shorter key never clobbers the object built for a
// longer one.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		SetPath(out, key, Clone(flat[key]))
	}
	return out
}
