package prefs

import "sync"

// Scheduler defers work to the end of the current tick. Work scheduled in
// the same tick runs in submission order.
type Scheduler interface {
	Schedule(fn func())
}

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc func(fn func())

// Schedule implements Scheduler.
func (f SchedulerFunc) Schedule(fn func()) {
	if f != nil && fn != nil {
		f(fn)
	}
}

// asyncScheduler drains queued work on a single goroutine that exits once
// the queue is empty.
type asyncScheduler struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

// NewAsyncScheduler returns a Scheduler that runs work serially on a
// background goroutine.
func NewAsyncScheduler() Scheduler {
	return &asyncScheduler{}
}

func (s *asyncScheduler) Schedule(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	go s.drain()
}

func (s *asyncScheduler) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		fn := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		fn()
	}
}

// ManualScheduler queues work until RunPending is called. A call to
// RunPending marks a tick boundary.
type ManualScheduler struct {
	mu    sync.Mutex
	queue []func()
}

// NewManualScheduler returns an empty ManualScheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Schedule implements Scheduler.
func (s *ManualScheduler) Schedule(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	s.mu.Unlock()
}

// Pending reports how many callbacks are queued.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// RunPending runs queued callbacks, including ones queued while running,
// until the queue is empty. It returns the number of callbacks executed.
func (s *ManualScheduler) RunPending() int {
	count := 0
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return count
		}
		fn := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		fn()
		count++
	}
}
