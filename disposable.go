package prefs

import "sync"

// Disposable releases a registration. Dispose is idempotent.
type Disposable interface {
	Dispose()
}

type disposableFunc struct {
	once sync.Once
	fn   func()
}

// NewDisposable wraps fn so it runs at most once.
func NewDisposable(fn func()) Disposable {
	return &disposableFunc{fn: fn}
}

func (d *disposableFunc) Dispose() {
	d.once.Do(func() {
		if d.fn != nil {
			d.fn()
		}
	})
}

type noopDisposable struct{}

func (noopDisposable) Dispose() {}

// NoopDisposable is returned when a registration changed nothing.
var NoopDisposable Disposable = noopDisposable{}

// Disposables collects handles and releases them together in reverse order.
type Disposables struct {
	mu    sync.Mutex
	items []Disposable
}

// Add stores d for a later Dispose call.
func (c *Disposables) Add(d Disposable) {
	if d == nil {
		return
	}
	c.mu.Lock()
	c.items = append(c.items, d)
	c.mu.Unlock()
}

// Dispose releases every collected handle.
func (c *Disposables) Dispose() {
	c.mu.Lock()
	items := c.items
	c.items = nil
	c.mu.Unlock()
	for i := len(items) - 1; i >= 0; i-- {
		items[i].Dispose()
	}
}
