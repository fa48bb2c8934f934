package prefs

import (
	"context"
	"sync"
)

// Deferred is a single-assignment future. The first Resolve or Reject wins;
// later attempts are ignored.
type Deferred struct {
	mu        sync.Mutex
	done      chan struct{}
	err       error
	settled   bool
	callbacks []func(error)
}

// NewDeferred returns an unsettled Deferred.
func NewDeferred() *Deferred {
	return &Deferred{done: make(chan struct{})}
}

// ResolvedDeferred returns a Deferred that is already resolved.
func ResolvedDeferred() *Deferred {
	d := NewDeferred()
	d.Resolve()
	return d
}

// Resolve settles d successfully. It reports whether this call settled it.
func (d *Deferred) Resolve() bool {
	return d.settle(nil)
}

// Reject settles d with err. It reports whether this call settled it.
func (d *Deferred) Reject(err error) bool {
	if err == nil {
		err = context.Canceled
	}
	return d.settle(err)
}

func (d *Deferred) settle(err error) bool {
	d.mu.Lock()
	if d.settled {
		d.mu.Unlock()
		return false
	}
	d.settled = true
	d.err = err
	callbacks := d.callbacks
	d.callbacks = nil
	close(d.done)
	d.mu.Unlock()

	for _, cb := range callbacks {
		cb(err)
	}
	return true
}

// Done is closed once d settles.
func (d *Deferred) Done() <-chan struct{} {
	return d.done
}

// Settled reports whether d has been resolved or rejected.
func (d *Deferred) Settled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settled
}

// Err returns the rejection error, or nil while pending or when resolved.
func (d *Deferred) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Wait blocks until d settles or ctx is done.
func (d *Deferred) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-d.done:
		return d.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnSettled runs fn with the outcome once d settles. When d is already
// settled fn runs immediately on the calling goroutine.
func (d *Deferred) OnSettled(fn func(error)) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	if d.settled {
		err := d.err
		d.mu.Unlock()
		fn(err)
		return
	}
	d.callbacks = append(d.callbacks, fn)
	d.mu.Unlock()
}
