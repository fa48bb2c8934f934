package activity

// Change is the part of a reconciled preference change recorded in an
// event.
type Change struct {
	PreferenceName     string
	OverrideIdentifier string
	Scope              ScopeContext
	OldValue           any
	NewValue           any
}

// ChangeEvent builds the event for change. A change whose new value is nil
// is reported as a removal.
func ChangeEvent(change Change) Event {
	verb := VerbChanged
	if change.NewValue == nil {
		verb = VerbRemoved
	}
	return Event{
		Verb:               verb,
		ObjectType:         ObjectPreference,
		ObjectID:           change.PreferenceName,
		Scope:              change.Scope,
		OverrideIdentifier: change.OverrideIdentifier,
		OldValue:           change.OldValue,
		NewValue:           change.NewValue,
	}
}

// SchemaEvent builds the event for a schema registration change of name.
// action is "added" or "removed".
func SchemaEvent(action, name string) Event {
	return Event{
		Verb:       VerbSchemaChanged,
		ObjectType: ObjectSchema,
		ObjectID:   name,
		Scope:      ScopeContext{Name: "default"},
		Metadata:   map[string]any{"action": action},
	}
}
