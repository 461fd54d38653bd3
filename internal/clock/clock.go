// Package clock abstracts timer scheduling so auto-dismiss and reload delays can be
// driven deterministically in tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a scheduled callback
type Timer interface {
	// Stop cancels the callback. It reports whether the call stopped the timer.
	Stop() bool
	// Reset reschedules the callback to run after d.
	Reset(d time.Duration) bool
}

// Clock schedules callbacks
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// Real returns a Clock backed by the time package
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Manual is a Clock that only moves when Advance is called.
// Callbacks run synchronously on the goroutine calling Advance.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers map[*manualTimer]struct{}
}

// NewManual creates a manual clock starting at start
func NewManual(start time.Time) *Manual {
	return &Manual{now: start, timers: make(map[*manualTimer]struct{})}
}

// Now returns the manual clock's current time
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc schedules f to run once the clock has advanced by d
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &manualTimer{clock: m, fn: f}
	m.scheduleLocked(t, d)
	return t
}

// Advance moves the clock forward and runs every callback that became due, in due order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		delete(m.timers, next)
		if next.when.After(m.now) {
			m.now = next.when
		}
		fn := next.fn
		m.mu.Unlock()

		fn()
	}
}

// Pending returns the number of scheduled callbacks
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// NextDelay returns how long until the earliest pending callback, and false when none is pending
func (m *Manual) NextDelay() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	due := m.dueOrderLocked()
	if len(due) == 0 {
		return 0, false
	}
	return due[0].when.Sub(m.now), true
}

func (m *Manual) scheduleLocked(t *manualTimer, d time.Duration) {
	m.seq++
	t.when = m.now.Add(d)
	t.seq = m.seq
	m.timers[t] = struct{}{}
}

func (m *Manual) nextDueLocked(target time.Time) *manualTimer {
	due := m.dueOrderLocked()
	if len(due) == 0 || due[0].when.After(target) {
		return nil
	}
	return due[0]
}

func (m *Manual) dueOrderLocked() []*manualTimer {
	due := make([]*manualTimer, 0, len(m.timers))
	for t := range m.timers {
		due = append(due, t)
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].when.Equal(due[j].when) {
			return due[i].seq < due[j].seq
		}
		return due[i].when.Before(due[j].when)
	})
	return due
}

type manualTimer struct {
	clock *Manual
	fn    func()
	when  time.Time
	seq   int
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	_, ok := t.clock.timers[t]
	delete(t.clock.timers, t)
	return ok
}

func (t *manualTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	_, ok := t.clock.timers[t]
	t.clock.scheduleLocked(t, d)
	return ok
}
