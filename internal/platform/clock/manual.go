package clock

import (
	"sort"
	"sync"
	"time"
)

// Manual is a hand-driven Clock. Timers fire only from Advance, on the
// caller's goroutine, in deadline order.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
	nextID int
}

type manualTimer struct {
	owner   *Manual
	id      int
	at      time.Time
	fn      func()
	stopped bool
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t := &manualTimer{owner: m, id: m.nextID, at: m.now.Add(d), fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves the clock forward and runs every timer that became due.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		due := m.popDueLocked(target)
		if due == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		if due.at.After(m.now) {
			m.now = due.at
		}
		m.mu.Unlock()
		due.fn()
	}
}

// Pending reports how many timers are armed and not yet fired.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, t := range m.timers {
		if !t.stopped {
			count++
		}
	}
	return count
}

func (m *Manual) popDueLocked(target time.Time) *manualTimer {
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at.Equal(m.timers[j].at) {
			return m.timers[i].id < m.timers[j].id
		}
		return m.timers[i].at.Before(m.timers[j].at)
	})
	for i, t := range m.timers {
		if t.stopped {
			continue
		}
		if t.at.After(target) {
			return nil
		}
		m.timers = append(m.timers[:i], m.timers[i+1:]...)
		return t
	}
	return nil
}

func (t *manualTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	if t.stopped {
		return false
	}
	for i, other := range t.owner.timers {
		if other == t {
			t.owner.timers = append(t.owner.timers[:i], t.owner.timers[i+1:]...)
			t.stopped = true
			return true
		}
	}
	return false
}
