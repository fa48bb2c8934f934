package activity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

var (
	errSinkDown  = errors.New("sink down")
	errQueueFull = errors.New("queue full")
)

func TestNormalizeEventTrimsAndCopies(t *testing.T) {
	meta := map[string]any{"k": "v"}
	domain := []string{"file:///ws/app"}
	evt := Event{
		Verb:               " preferences.changed ",
		ActorID:            " actor ",
		ObjectType:         " preference ",
		ObjectID:           " [go].editor.tabSize ",
		Channel:            " preferences ",
		OverrideIdentifier: " go ",
		Scope:              ScopeContext{Name: " Folder ", Priority: 3, Domain: domain},
		Metadata:           meta,
	}

	got := NormalizeEvent(evt)

	if got.Verb != VerbChanged || got.ObjectType != ObjectPreference || got.ObjectID != "[go].editor.tabSize" {
		t.Fatalf("unexpected normalized fields: %+v", got)
	}
	if got.ActorID != "actor" || got.Channel != "preferences" || got.OverrideIdentifier != "go" {
		t.Fatalf("unexpected trimming: %+v", got)
	}
	if got.Scope.Name != "folder" {
		t.Fatalf("expected lowercase scope name, got %q", got.Scope.Name)
	}
	if got.OccurredAt.IsZero() {
		t.Fatalf("expected OccurredAt to be set")
	}
	got.Metadata["k"] = "changed"
	got.Scope.Domain[0] = "changed"
	if meta["k"] != "v" || domain[0] != "file:///ws/app" {
		t.Fatalf("expected inputs untouched: %+v %v", meta, domain)
	}
}

func TestEventPreferenceNameStripsOverride(t *testing.T) {
	event := Event{ObjectID: "[go].editor.tabSize", OverrideIdentifier: "go"}
	if got := event.PreferenceName(); got != "editor.tabSize" {
		t.Fatalf("expected base name, got %q", got)
	}
	if got := (Event{ObjectID: "editor.tabSize"}).PreferenceName(); got != "editor.tabSize" {
		t.Fatalf("expected name unchanged, got %q", got)
	}
}

func TestHooksNotifyDropsEventsWithoutName(t *testing.T) {
	capture := &CaptureHook{}
	hooks := Hooks{capture}
	if err := hooks.Notify(context.Background(), Event{Verb: VerbChanged}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(capture.Events) != 0 {
		t.Fatalf("expected no events captured, got %d", len(capture.Events))
	}
}

func TestHooksNotifyFanOutAndJoinErrors(t *testing.T) {
	capture := &CaptureHook{}
	var ctxSeen bool
	hooks := Hooks{
		HookFunc(func(ctx context.Context, _ Event) error {
			ctxSeen = ctx != nil
			return nil
		}),
		capture,
		HookFunc(func(context.Context, Event) error { return errSinkDown }),
		nil,
		HookFunc(func(context.Context, Event) error { return errQueueFull }),
	}

	err := hooks.Notify(nil, Event{Verb: VerbChanged, ObjectID: "editor.tabSize"})
	if !errors.Is(err, errSinkDown) || !errors.Is(err, errQueueFull) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if !ctxSeen {
		t.Fatalf("expected context fallback to be non-nil")
	}
	if len(capture.Events) != 1 || capture.Events[0].ObjectType != ObjectPreference {
		t.Fatalf("expected one preference event, got %+v", capture.Events)
	}
}

func TestCompactDropsNilHooks(t *testing.T) {
	if got := Compact(Hooks{nil, nil}); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
	if got := Compact(Hooks{nil, &CaptureHook{}}); len(got) != 1 {
		t.Fatalf("expected one hook, got %d", len(got))
	}
}

func TestFilterMatchesPrefixesOnSegments(t *testing.T) {
	filter := Filter{Prefixes: []string{"editor"}}
	cases := []struct {
		event Event
		want  bool
	}{
		{event: Event{ObjectID: "editor"}, want: true},
		{event: Event{ObjectID: "editor.tabSize"}, want: true},
		{event: Event{ObjectID: "[go].editor.tabSize", OverrideIdentifier: "go"}, want: true},
		{event: Event{ObjectID: "editorial.mode"}, want: false},
		{event: Event{ObjectID: "files.eol"}, want: false},
	}
	for _, tc := range cases {
		if got := filter.Match(tc.event); got != tc.want {
			t.Fatalf("Match(%q) = %v, want %v", tc.event.ObjectID, got, tc.want)
		}
	}
}

func TestFilteredHookSelectsByVerbAndScope(t *testing.T) {
	capture := &CaptureHook{}
	hooks := Hooks{Filtered(capture, Filter{Verbs: []string{VerbRemoved}, Scopes: []string{"user"}})}
	ctx := context.Background()

	events := []Event{
		{Verb: VerbChanged, ObjectID: "editor.tabSize", Scope: ScopeContext{Name: "user"}},
		{Verb: VerbRemoved, ObjectID: "editor.tabSize", Scope: ScopeContext{Name: "workspace"}},
		{Verb: VerbRemoved, ObjectID: "editor.fontSize", Scope: ScopeContext{Name: "User"}},
	}
	for _, event := range events {
		if err := hooks.Notify(ctx, event); err != nil {
			t.Fatalf("notify: %v", err)
		}
	}
	if got := strings.Join(capture.Summary(), ","); got != "preferences.removed:editor.fontSize" {
		t.Fatalf("unexpected filtered events %s", got)
	}
	if Filtered(nil, Filter{}) != nil {
		t.Fatalf("expected nil hook to stay nil")
	}
}

func TestEmitterDisabledAndEnabled(t *testing.T) {
	capture := &CaptureHook{}
	event := Event{Verb: VerbChanged, ObjectID: "editor.tabSize"}

	disabled := NewEmitter(Hooks{capture}, Config{Enabled: false})
	if disabled.Enabled() {
		t.Fatalf("expected emitter to be disabled")
	}
	if err := disabled.Emit(context.Background(), event); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(capture.Events) != 0 {
		t.Fatalf("expected no events captured when disabled")
	}
	if NewEmitter(Hooks{nil}, Config{Enabled: true}).Enabled() {
		t.Fatalf("expected emitter without hooks to be disabled")
	}

	enabled := NewEmitter(Hooks{capture}, Config{Enabled: true})
	if err := enabled.Emit(context.Background(), event); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(capture.Events) != 1 || capture.Events[0].Channel != DefaultChannel {
		t.Fatalf("expected default channel applied, got %+v", capture.Events)
	}
}

func TestEmitterStampsIdentity(t *testing.T) {
	capture := &CaptureHook{}
	emitter := NewEmitter(Hooks{capture}, Config{
		Enabled:  true,
		Channel:  "settings",
		UserID:   "user-1",
		TenantID: "tenant-1",
	})
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := emitter.Emit(context.Background(), Event{Verb: VerbChanged, ObjectID: "editor.tabSize", OccurredAt: at}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := emitter.Emit(context.Background(), Event{Verb: VerbChanged, ObjectID: "editor.tabSize", Channel: "custom", UserID: "user-2"}); err != nil {
		t.Fatalf("emit: %v", err)
	}

	first, second := capture.Events[0], capture.Events[1]
	if first.Channel != "settings" || first.UserID != "user-1" || first.TenantID != "tenant-1" || !first.OccurredAt.Equal(at) {
		t.Fatalf("expected configured identity stamped, got %+v", first)
	}
	if second.Channel != "custom" || second.UserID != "user-2" || second.TenantID != "tenant-1" {
		t.Fatalf("expected explicit fields preserved, got %+v", second)
	}

	capture.Reset()
	if len(capture.Events) != 0 {
		t.Fatalf("expected reset to clear events")
	}
}
