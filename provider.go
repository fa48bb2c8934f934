package prefs

import (
	"context"
	"sync"

	"github.com/goliatone/go-prefs/layering"
	"github.com/rs/zerolog"
)

// ProviderChange is a raw change reported by a provider.
type ProviderChange struct {
	PreferenceName string
	Scope          Scope
	OldValue       any
	NewValue       any
	// Domain lists the resource roots the change applies to. Empty means
	// every resource.
	Domain []string
}

// ProviderChanges is an ordered batch with at most one entry per
// preference name.
type ProviderChanges []ProviderChange

// Get returns the change recorded for name.
func (c ProviderChanges) Get(name string) (ProviderChange, bool) {
	for _, change := range c {
		if change.PreferenceName == name {
			return change, true
		}
	}
	return ProviderChange{}, false
}

// ResolveResult carries a resolved value and the location it came from.
type ResolveResult struct {
	Value     any
	ConfigURI string
}

// Provider stores the values of one scope.
type Provider interface {
	// Ready settles once the provider can serve reads.
	Ready() *Deferred
	CanHandleScope(scope Scope) bool
	Get(name, resourceURI string) any
	Resolve(name, resourceURI string) ResolveResult
	// SetPreference stores value (nil deletes) and returns after the
	// resulting change batch was delivered. It returns false when the
	// provider cannot store the key.
	SetPreference(ctx context.Context, name string, value any, resourceURI string) bool
	Preferences(resourceURI string) map[string]any
	OnDidPreferencesChanged(fn func(ProviderChanges)) Disposable
}

// ProviderBase implements change batching shared by providers. Changes
// emitted in the same tick are merged per preference name and delivered
// together when the tick ends or when Flush is called.
type ProviderBase struct {
	mu        sync.Mutex
	pending   ProviderChanges
	scheduled bool

	scheduler Scheduler
	logger    zerolog.Logger
	ready     *Deferred
	changed   Emitter[ProviderChanges]
}

// NewProviderBase builds a base using the scheduler and logger from opts.
func NewProviderBase(opts ...Option) *ProviderBase {
	cfg := applyOptions(opts)
	return &ProviderBase{
		scheduler: cfg.scheduler,
		logger:    cfg.logger,
		ready:     NewDeferred(),
	}
}

// Ready settles once the owning provider marked itself ready.
func (p *ProviderBase) Ready() *Deferred {
	return p.ready
}

// MarkReady resolves Ready.
func (p *ProviderBase) MarkReady() {
	p.ready.Resolve()
}

// Logger returns the provider logger.
func (p *ProviderBase) Logger() zerolog.Logger {
	return p.logger
}

// OnDidPreferencesChanged subscribes to delivered change batches.
func (p *ProviderBase) OnDidPreferencesChanged(fn func(ProviderChanges)) Disposable {
	return p.changed.Subscribe(fn)
}

// EmitPreferencesChanged merges changes into the pending batch and
// schedules delivery at the end of the tick.
func (p *ProviderBase) EmitPreferencesChanged(changes ...ProviderChange) {
	if len(changes) == 0 {
		return
	}
	p.mu.Lock()
	for _, change := range changes {
		p.pending = mergeProviderChange(p.pending, change)
	}
	schedule := !p.scheduled && len(p.pending) > 0
	if schedule {
		p.scheduled = true
	}
	p.mu.Unlock()

	if schedule {
		p.scheduler.Schedule(func() { p.Flush() })
	}
}

// Flush delivers the pending batch now. It reports whether anything was
// delivered.
func (p *ProviderBase) Flush() bool {
	p.mu.Lock()
	batch := p.pending
	p.pending = nil
	p.scheduled = false
	p.mu.Unlock()

	if len(batch) == 0 {
		return false
	}
	p.changed.Fire(batch)
	return true
}

// Dispose drops listeners and pending changes.
func (p *ProviderBase) Dispose() {
	p.mu.Lock()
	p.pending = nil
	p.mu.Unlock()
	p.changed.Dispose()
}

// mergeProviderChange folds change into batch. A change that restores the
// value the batch started from cancels the pending entry; otherwise the
// pending entry keeps its original old value and takes the new value.
func mergeProviderChange(batch ProviderChanges, change ProviderChange) ProviderChanges {
	for i, current := range batch {
		if current.PreferenceName != change.PreferenceName {
			continue
		}
		if layering.Equal(current.OldValue, change.NewValue) {
			return append(batch[:i:i], batch[i+1:]...)
		}
		current.NewValue = change.NewValue
		current.Scope = change.Scope
		current.Domain = change.Domain
		batch[i] = current
		return batch
	}
	return append(batch, change)
}

// MergePreferences layers narrow over broad the way scopes are combined.
func MergePreferences(broad, narrow any) any {
	return layering.Merge(broad, narrow)
}
