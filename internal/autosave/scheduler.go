// Package autosave implements the single-timer debounce that saves an idle,
// dirty draft after a quiet interval.
package autosave

import (
	"sync"
	"time"
)

// DefaultInterval is the quiet interval used when none is configured.
const DefaultInterval = 30 * time.Second

// Scheduler owns at most one pending autosave timer. Every Arm replaces the
// previous timer, so the callback fires once per quiet interval after the
// most recent Arm.
type Scheduler struct {
	interval time.Duration
	fire     func()

	mu     sync.Mutex
	timer  *time.Timer
	gen    uint64
	closed bool
}

// New creates a scheduler that calls fire after interval of inactivity.
// fire runs on its own goroutine.
func New(interval time.Duration, fire func()) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{interval: interval, fire: fire}
}

// Interval returns the configured quiet interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Arm cancels any pending timer and starts a new one. It is a no-op after Close.
func (s *Scheduler) Arm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.stopLocked()
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.interval, func() {
		s.mu.Lock()
		// A timer that was stopped too late to prevent its goroutine from
		// starting must not fire on behalf of a newer arm.
		stale := s.closed || gen != s.gen || s.timer == nil
		if !stale {
			s.timer = nil
		}
		s.mu.Unlock()
		if !stale {
			s.fire()
		}
	})
}

// Cancel stops the pending timer, if any.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Pending reports whether a timer is armed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Close cancels the pending timer and disables further arming.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.closed = true
}

// Reopen re-enables arming after Close.
func (s *Scheduler) Reopen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = false
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}
