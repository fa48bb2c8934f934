package activity

import (
	"context"
	"errors"
	"slices"
	"strings"
)

// ActivityHook receives normalized preference events.
type ActivityHook interface {
	Notify(ctx context.Context, event Event) error
}

// HookFunc allows plain functions to satisfy ActivityHook.
type HookFunc func(ctx context.Context, event Event) error

func (fn HookFunc) Notify(ctx context.Context, event Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

// Hooks fans out events to zero or more hooks.
type Hooks []ActivityHook

// Compact returns hooks without nil entries, or nil when none remain.
func Compact(hooks Hooks) Hooks {
	var out Hooks
	for _, hook := range hooks {
		if hook != nil {
			out = append(out, hook)
		}
	}
	return out
}

func (h Hooks) Enabled() bool {
	return len(h) > 0
}

// Notify forwards the event to every hook and joins their errors. Events
// without a verb or preference name are dropped.
func (h Hooks) Notify(ctx context.Context, event Event) error {
	if len(h) == 0 {
		return nil
	}

	normalized := NormalizeEvent(event)
	if normalized.Verb == "" || normalized.ObjectID == "" {
		return nil
	}
	if normalized.ObjectType == "" {
		normalized.ObjectType = ObjectPreference
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var errs []error
	for _, hook := range h {
		if hook == nil {
			continue
		}
		if err := hook.Notify(ctx, normalized); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Filter selects events by verb, scope name and preference name. Empty
// fields match everything. Prefixes match whole dotted segments of the
// base preference name, so "editor" matches "editor.tabSize" and
// "[go].editor.tabSize" but not "editorial.mode".
type Filter struct {
	Verbs    []string
	Scopes   []string
	Prefixes []string
}

// Match reports whether event passes every non-empty criterion.
func (f Filter) Match(event Event) bool {
	if len(f.Verbs) > 0 && !slices.Contains(f.Verbs, event.Verb) {
		return false
	}
	if len(f.Scopes) > 0 && !slices.ContainsFunc(f.Scopes, func(scope string) bool {
		return strings.EqualFold(scope, event.Scope.Name)
	}) {
		return false
	}
	if len(f.Prefixes) == 0 {
		return true
	}
	name := event.PreferenceName()
	for _, prefix := range f.Prefixes {
		prefix = strings.TrimSuffix(prefix, ".")
		if name == prefix || strings.HasPrefix(name, prefix+".") {
			return true
		}
	}
	return false
}

// Filtered wraps hook so it only sees events matching filter.
func Filtered(hook ActivityHook, filter Filter) ActivityHook {
	if hook == nil {
		return nil
	}
	return HookFunc(func(ctx context.Context, event Event) error {
		if !filter.Match(event) {
			return nil
		}
		return hook.Notify(ctx, event)
	})
}
