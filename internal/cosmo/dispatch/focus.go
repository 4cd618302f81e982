package dispatch

import (
	"fmt"
	"sync"
	"time"
)

// FocusTracker holds the single active deep work session. Sessions are
// in-memory state; the completed session is logged as an atom by the
// stop_deep_work handler.
type FocusTracker struct {
	mu      sync.Mutex
	current *FocusSession

	now func() time.Time
}

// FocusSession is one running deep work block.
type FocusSession struct {
	Title     string
	StartedAt time.Time
	Duration  time.Duration
}

// NewFocusTracker returns an idle tracker.
func NewFocusTracker() *FocusTracker {
	return &FocusTracker{now: time.Now}
}

// Start begins a session. Starting while one is running is an error; the
// model should stop or extend instead.
func (f *FocusTracker) Start(title string, d time.Duration) (*FocusSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current != nil {
		return nil, fmt.Errorf("a deep work session is already running (started %s)",
			f.current.StartedAt.Format("15:04"))
	}
	f.current = &FocusSession{Title: title, StartedAt: f.now(), Duration: d}
	s := *f.current
	return &s, nil
}

// Extend adds time to the running session.
func (f *FocusTracker) Extend(d time.Duration) (*FocusSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return nil, fmt.Errorf("no deep work session is running")
	}
	f.current.Duration += d
	s := *f.current
	return &s, nil
}

// Stop ends the running session and returns it with the elapsed time.
func (f *FocusTracker) Stop() (*FocusSession, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return nil, 0, fmt.Errorf("no deep work session is running")
	}
	s := *f.current
	f.current = nil
	return &s, f.now().Sub(s.StartedAt), nil
}

// Current returns a copy of the running session, or nil when idle.
func (f *FocusTracker) Current() *FocusSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return nil
	}
	s := *f.current
	return &s
}
