package prefs

import (
	"sort"
	"sync"
)

// Emitter delivers values of type T to subscribed listeners in subscription
// order. Listeners run on the goroutine that calls Fire and never while the
// emitter lock is held, so a listener may subscribe or dispose freely.
type Emitter[T any] struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint64]func(T)
	disposed  bool
}

// Subscribe registers fn and returns a handle that removes it.
func (e *Emitter[T]) Subscribe(fn func(T)) Disposable {
	if fn == nil {
		return NoopDisposable
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return NoopDisposable
	}
	if e.listeners == nil {
		e.listeners = make(map[uint64]func(T))
	}
	e.nextID++
	id := e.nextID
	e.listeners[id] = fn
	return NewDisposable(func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	})
}

// Fire invokes every listener with value.
func (e *Emitter[T]) Fire(value T) {
	for _, fn := range e.snapshot() {
		fn(value)
	}
}

// Len reports the number of active listeners.
func (e *Emitter[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}

// Dispose drops every listener; later subscriptions are ignored.
func (e *Emitter[T]) Dispose() {
	e.mu.Lock()
	e.disposed = true
	e.listeners = nil
	e.mu.Unlock()
}

func (e *Emitter[T]) snapshot() []func(T) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.listeners) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]func(T), 0, len(ids))
	for _, id := range ids {
		out = append(out, e.listeners[id])
	}
	return out
}
