package activity

import (
	"context"
	"strings"
)

// DefaultChannel is stamped on events that carry no channel.
const DefaultChannel = "preferences"

// Config controls emission and the identity stamped on every event. A
// service bound to one user's preferences sets UserID and TenantID once
// here instead of on each event.
type Config struct {
	Enabled  bool
	Channel  string
	ActorID  string
	UserID   string
	TenantID string
}

// Emitter stamps configured defaults on events and fans them out.
type Emitter struct {
	hooks Hooks
	cfg   Config
}

func NewEmitter(hooks Hooks, cfg Config) *Emitter {
	cfg.Channel = strings.TrimSpace(cfg.Channel)
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	compacted := Compact(hooks)
	cfg.Enabled = cfg.Enabled && len(compacted) > 0
	return &Emitter{hooks: compacted, cfg: cfg}
}

// Enabled reports whether emissions should be attempted.
func (e *Emitter) Enabled() bool {
	return e != nil && e.cfg.Enabled
}

// Emit fills the channel, identity and object type when the event leaves
// them empty, then notifies the hooks.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if !e.Enabled() {
		return nil
	}
	event.Channel = orDefault(event.Channel, e.cfg.Channel)
	event.ActorID = orDefault(event.ActorID, e.cfg.ActorID)
	event.UserID = orDefault(event.UserID, e.cfg.UserID)
	event.TenantID = orDefault(event.TenantID, e.cfg.TenantID)
	event.ObjectType = orDefault(event.ObjectType, ObjectPreference)
	return e.hooks.Notify(ctx, event)
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
