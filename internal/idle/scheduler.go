// Package idle decides when background work may run without competing with foreground requests.
package idle

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultTimeout bounds how long WaitForIdle waits for foreground work to finish
	DefaultTimeout = 2 * time.Second
	// FallbackDelay is the cooperative yield used when no activity signal exists
	FallbackDelay = 100 * time.Millisecond
)

// Scheduler waits until the process is idle. WaitForIdle reports false only when ctx
// ends first; callers treat false as "busy, stop for now".
type Scheduler interface {
	WaitForIdle(ctx context.Context, timeout time.Duration) bool
}

// ActivityScheduler is idle when no foreground work is in flight. Foreground work brackets
// itself with Begin and End.
type ActivityScheduler struct {
	mu     sync.Mutex
	active int
	idle   chan struct{}
}

// NewActivityScheduler creates a scheduler with no work in flight
func NewActivityScheduler() *ActivityScheduler {
	idle := make(chan struct{})
	close(idle)
	return &ActivityScheduler{idle: idle}
}

// Begin marks the start of foreground work
func (s *ActivityScheduler) Begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active++
	if s.active == 1 {
		s.idle = make(chan struct{})
	}
}

// End marks the end of foreground work started with Begin
func (s *ActivityScheduler) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == 0 {
		return
	}
	s.active--
	if s.active == 0 {
		close(s.idle)
	}
}

// Active returns the number of foreground operations in flight
func (s *ActivityScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// WaitForIdle returns true once nothing is in flight or the timeout elapses
func (s *ActivityScheduler) WaitForIdle(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-idle:
		return true
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// FallbackScheduler yields for a fixed delay
type FallbackScheduler struct {
	Delay time.Duration
}

// NewFallbackScheduler creates a scheduler that waits FallbackDelay
func NewFallbackScheduler() *FallbackScheduler {
	return &FallbackScheduler{Delay: FallbackDelay}
}

// WaitForIdle returns true after the fixed delay; the timeout is not used
func (s *FallbackScheduler) WaitForIdle(ctx context.Context, _ time.Duration) bool {
	delay := s.Delay
	if delay <= 0 {
		delay = FallbackDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Mode names a Scheduler implementation
const (
	ModeActivity = "activity"
	ModeFallback = "fallback"
)

// New returns the scheduler for mode, defaulting to ModeActivity
func New(mode string) Scheduler {
	if mode == ModeFallback {
		return NewFallbackScheduler()
	}
	return NewActivityScheduler()
}
