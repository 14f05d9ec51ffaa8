// Package quota tracks the remote service's two-tier rate limits and decides
// whether the scheduler may make another call.
package quota

import (
	"context"
	"math"
	"sync"
	"time"
)

// State is the remote service's view of the caller's remaining allowance.
type State struct {
	ShortLimit     int
	ShortRemaining int
	LongLimit      int
	LongRemaining  int
}

// Reserve is the number of daily calls held back for other clients.
func Reserve(s State, preservePercent float64) int {
	return int(math.Ceil(float64(s.LongLimit) * preservePercent / 100))
}

// Available is how many more calls may be made against s while keeping the
// reserve intact. It can be negative.
func Available(s State, preservePercent float64) int {
	return s.LongRemaining - Reserve(s, preservePercent)
}

// Tracker holds the quota state observed during the current epoch.
//
// An epoch starts from the last observed state while it is younger than
// staleAfter. Otherwise the allowance is unknown and the tracker permits
// exactly one probing call. A call that returns no quota leaves the previous
// observation in place; if nothing was observed the allowance drops to zero.
type Tracker struct {
	mu              sync.Mutex
	preservePercent float64
	shortWindow     time.Duration
	staleAfter      time.Duration

	current   *State
	probed    bool
	exhausted bool
	last      *State
	lastSeen  time.Time
	now       func() time.Time
}

// NewTracker returns a tracker holding back preservePercent of the daily
// limit and spreading shortWindow across the short-window allowance. An
// observed state is trusted across epochs for staleAfter; zero re-probes at
// every epoch.
func NewTracker(preservePercent float64, shortWindow, staleAfter time.Duration) *Tracker {
	return &Tracker{
		preservePercent: preservePercent,
		shortWindow:     shortWindow,
		staleAfter:      staleAfter,
		now:             time.Now,
	}
}

// BeginEpoch resets the per-epoch state. A fresh last observation carries
// over, so an epoch that starts at or below the reserve makes no call.
// Once it is stale the next call re-probes limits.
func (t *Tracker) BeginEpoch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = nil
	t.probed = false
	t.exhausted = false
	if t.last != nil && t.now().Sub(t.lastSeen) < t.staleAfter {
		s := *t.last
		t.current = &s
	}
}

// Record notes that a remote call was made. q is the state the remote
// reported, or nil when the response carried none.
func (t *Tracker) Record(q *State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.probed = true
	if q == nil {
		return
	}
	s := *q
	t.current = &s
	last := s
	t.last = &last
	t.lastSeen = t.now()
}

// Exhaust zeroes the allowance for the rest of the epoch.
func (t *Tracker) Exhaust() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.exhausted = true
}

// Available returns how many calls the current epoch may still make.
func (t *Tracker) Available() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.availableLocked()
}

func (t *Tracker) availableLocked() int {
	switch {
	case t.exhausted:
		return 0
	case t.current != nil:
		return Available(*t.current, t.preservePercent)
	case !t.probed:
		return 1
	default:
		return 0
	}
}

// ShouldContinue reports whether another call is allowed with tableLen
// entries left to process.
func (t *Tracker) ShouldContinue(tableLen int) bool {
	return tableLen > 0 && t.Available() > 0
}

// PacingDelay is the pause after a call: the short window divided by the
// remaining short-window allowance.
func (t *Tracker) PacingDelay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return t.shortWindow
	}
	return t.shortWindow / time.Duration(max(t.current.ShortRemaining, 1))
}

// Last returns the most recent state reported by the remote, across epochs.
func (t *Tracker) Last() (State, time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return State{}, time.Time{}, false
	}
	return *t.last, t.lastSeen, true
}

// SleepWithContext blocks for the given duration, returning early if the
// context is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
