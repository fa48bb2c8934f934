package activity

import (
	"strings"
	"time"
)

// Verbs emitted by the preference service and schema registry.
const (
	VerbChanged       = "preferences.changed"
	VerbRemoved       = "preferences.removed"
	VerbSchemaChanged = "preferences.schema.changed"
)

// Object types carried by preference events.
const (
	ObjectPreference = "preference"
	ObjectSchema     = "preference.schema"
)

// ScopeContext captures the scope a preference change happened in.
type ScopeContext struct {
	Name     string
	Priority int
	Domain   []string
}

// Event records one preference activity. ObjectID is the preference name
// as delivered, including any "[id]." override prefix.
type Event struct {
	Verb               string
	ActorID            string
	UserID             string
	TenantID           string
	ObjectType         string
	ObjectID           string
	Channel            string
	Scope              ScopeContext
	OverrideIdentifier string
	OldValue           any
	NewValue           any
	Metadata           map[string]any
	OccurredAt         time.Time
}

// PreferenceName returns ObjectID without its override prefix.
func (e Event) PreferenceName() string {
	if e.OverrideIdentifier == "" {
		return e.ObjectID
	}
	return strings.TrimPrefix(e.ObjectID, "["+e.OverrideIdentifier+"].")
}

// NormalizeEvent trims identifiers, copies metadata and domain, lowercases
// the scope name and sets OccurredAt when missing.
func NormalizeEvent(event Event) Event {
	normalized := event
	normalized.Verb = strings.TrimSpace(event.Verb)
	normalized.ActorID = strings.TrimSpace(event.ActorID)
	normalized.UserID = strings.TrimSpace(event.UserID)
	normalized.TenantID = strings.TrimSpace(event.TenantID)
	normalized.ObjectType = strings.TrimSpace(event.ObjectType)
	normalized.ObjectID = strings.TrimSpace(event.ObjectID)
	normalized.Channel = strings.TrimSpace(event.Channel)
	normalized.OverrideIdentifier = strings.TrimSpace(event.OverrideIdentifier)
	normalized.Scope.Name = strings.ToLower(strings.TrimSpace(event.Scope.Name))
	normalized.Scope.Domain = nil
	if len(event.Scope.Domain) > 0 {
		normalized.Scope.Domain = append([]string{}, event.Scope.Domain...)
	}
	normalized.Metadata = cloneMap(event.Metadata)
	if normalized.OccurredAt.IsZero() {
		normalized.OccurredAt = time.Now()
	}
	return normalized
}

// CloneMap returns a shallow copy of src, or nil when src is empty.
func CloneMap(src map[string]any) map[string]any {
	return cloneMap(src)
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
