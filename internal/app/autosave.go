package app

import (
	"context"
	"sync"
	"time"
)

// DefaultAutoSaveInterval and DefaultTickEvery define scheduler defaults.
const (
	DefaultAutoSaveInterval = 30 * time.Second
	DefaultTickEvery        = time.Second
)

// AutoSaveState holds the scheduler settings and last trigger time.
type AutoSaveState struct {
	Enabled  bool          `json:"enabled"`
	LastSave time.Time     `json:"last_save"`
	Interval time.Duration `json:"interval"`
}

// TimeUntilNextSave returns max(0, Interval - (now - LastSave)).
func (s AutoSaveState) TimeUntilNextSave(now time.Time) time.Duration {
	remaining := s.Interval - now.Sub(s.LastSave)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AutoSaveScheduler fires onSave when unsaved changes have waited out the interval.
type AutoSaveScheduler struct {
	mu       sync.Mutex
	clock    Clock
	interval time.Duration
	enabled  bool
	lastSave time.Time
	unsaved  func() bool
	onSave   func()
}

// NewAutoSaveScheduler constructs a scheduler. The interval starts counting now.
func NewAutoSaveScheduler(interval time.Duration, enabled bool, unsaved func() bool, onSave func(), clock Clock) *AutoSaveScheduler {
	if interval <= 0 {
		interval = DefaultAutoSaveInterval
	}
	clock = clockOrNow(clock)
	return &AutoSaveScheduler{
		clock:    clock,
		interval: interval,
		enabled:  enabled,
		lastSave: clock(),
		unsaved:  unsaved,
		onSave:   onSave,
	}
}

// Tick evaluates one auto-save tick and reports whether onSave was called.
// LastSave moves to now whenever the save is triggered, whatever its outcome.
func (a *AutoSaveScheduler) Tick() bool {
	a.mu.Lock()
	if !a.enabled || a.unsaved == nil || !a.unsaved() {
		a.mu.Unlock()
		return false
	}
	now := a.clock()
	if now.Sub(a.lastSave) < a.interval {
		a.mu.Unlock()
		return false
	}
	a.lastSave = now
	onSave := a.onSave
	a.mu.Unlock()

	if onSave != nil {
		onSave()
	}
	return true
}

// Run ticks every interval until ctx ends. The ticker is stopped on return.
func (a *AutoSaveScheduler) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = DefaultTickEvery
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Tick()
		}
	}
}

// Toggle flips enabled and returns the new value.
func (a *AutoSaveScheduler) Toggle() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = !a.enabled
	return a.enabled
}

// SetEnabled sets enabled.
func (a *AutoSaveScheduler) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// Enabled reports whether ticks may trigger saves.
func (a *AutoSaveScheduler) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// TimeUntilNextSave returns the remaining wait at the scheduler clock's now.
func (a *AutoSaveScheduler) TimeUntilNextSave() time.Duration {
	state := a.State()
	return state.TimeUntilNextSave(a.clock())
}

// State returns the current settings and last trigger time.
func (a *AutoSaveScheduler) State() AutoSaveState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AutoSaveState{
		Enabled:  a.enabled,
		LastSave: a.lastSave,
		Interval: a.interval,
	}
}
