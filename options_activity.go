package prefs

import "github.com/goliatone/go-prefs/pkg/activity"

// WithActivityHooks attaches activity hooks notified for every preference
// change the service emits and every schema the registry adds or removes.
// Nil hooks are dropped. Wrap a hook with activity.Filtered to narrow it
// to some preferences or scopes.
func WithActivityHooks(hooks activity.Hooks) Option {
	compacted := activity.Compact(hooks)
	return func(cfg *config) {
		cfg.activityHooks = compacted
	}
}

// WithActivityConfig overrides the activity emitter defaults, including the
// user and tenant stamped on every event.
func WithActivityConfig(activityCfg activity.Config) Option {
	return func(cfg *config) {
		cfg.activityCfg = activityCfg
	}
}
