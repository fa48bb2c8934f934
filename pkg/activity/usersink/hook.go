// Package usersink records preference activity in a go-users ActivitySink.
package usersink

import (
	"context"
	"strings"

	"github.com/goliatone/go-prefs/pkg/activity"
	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
)

// Hook forwards preference events to Sink as activity records. Scope,
// override and value fields are flattened into the record data.
type Hook struct {
	Sink usertypes.ActivitySink
}

var _ activity.ActivityHook = Hook{}

func (h Hook) Notify(ctx context.Context, event activity.Event) error {
	if h.Sink == nil {
		return nil
	}
	normalized := activity.NormalizeEvent(event)
	if normalized.Verb == "" || normalized.ObjectID == "" {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return h.Sink.Log(ctx, Record(normalized))
}

// Record maps a normalized event to an ActivityRecord.
func Record(event activity.Event) usertypes.ActivityRecord {
	objectType := event.ObjectType
	if objectType == "" {
		objectType = activity.ObjectPreference
	}
	return usertypes.ActivityRecord{
		ActorID:    parseUUID(event.ActorID),
		UserID:     parseUUID(event.UserID),
		TenantID:   parseUUID(event.TenantID),
		Verb:       event.Verb,
		ObjectType: objectType,
		ObjectID:   event.ObjectID,
		Channel:    event.Channel,
		Data:       recordData(event),
		OccurredAt: event.OccurredAt,
	}
}

func recordData(event activity.Event) map[string]any {
	data := activity.CloneMap(event.Metadata)
	set := func(key string, value any) {
		if data == nil {
			data = map[string]any{}
		}
		data[key] = value
	}
	if event.Scope.Name != "" {
		set("scope_name", event.Scope.Name)
		set("scope_priority", event.Scope.Priority)
	}
	if len(event.Scope.Domain) > 0 {
		set("scope_domain", append([]string{}, event.Scope.Domain...))
	}
	if event.OverrideIdentifier != "" {
		set("override_identifier", event.OverrideIdentifier)
		set("preference_name", event.PreferenceName())
	}
	if event.OldValue != nil {
		set("old_value", event.OldValue)
	}
	if event.NewValue != nil {
		set("new_value", event.NewValue)
	}
	return data
}

func parseUUID(input string) uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(input))
	if err != nil {
		return uuid.Nil
	}
	return id
}
