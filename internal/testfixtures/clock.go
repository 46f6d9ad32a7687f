package testfixtures

import (
	"sync"
	"time"

	"github.com/example/session-orchestrator/internal/timers"
)

// Clock provides a controllable time source for tests. It satisfies
// timers.Clock: callbacks registered with AfterFunc fire only when Advance
// moves the clock past their deadline, synchronously and in deadline order.
type Clock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*fakeTimer
	seq     uint64
}

var _ timers.Clock = (*Clock)(nil)

// NewClock returns a clock initialised to the supplied time. When start is the
// zero value, the shared ReferenceTime is used.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// Now returns the current instant tracked by the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc exposes Now as a function suitable for dependency injection.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set moves the clock to t without firing timers.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// AfterFunc registers f to run once the clock reaches now+d. A non-positive
// duration runs f before AfterFunc returns.
func (c *Clock) AfterFunc(d time.Duration, f func()) timers.Timer {
	if d <= 0 {
		f()
		return &fakeTimer{clock: c, fired: true}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	timer := &fakeTimer{
		clock:    c,
		deadline: c.current.Add(d),
		seq:      c.seq,
		fn:       f,
	}
	c.waiters = append(c.waiters, timer)
	return timer
}

// Advance moves the clock forward by d, firing every timer whose deadline is
// reached along the way. The clock reads each timer's deadline while its
// callback runs. Advance returns the final time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	target := c.current.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.popDueLocked(target)
		if next == nil {
			c.current = target
			c.mu.Unlock()
			return target
		}
		if next.deadline.After(c.current) {
			c.current = next.deadline
		}
		c.mu.Unlock()

		next.fn()
	}
}

// PendingTimers reports how many callbacks are waiting to fire.
func (c *Clock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Current returns the clock time without modifying it. It is equivalent to
// calling Now but signals the absence of time progression.
func (c *Clock) Current() time.Time {
	return c.Now()
}

func (c *Clock) popDueLocked(target time.Time) *fakeTimer {
	best := -1
	for i, waiter := range c.waiters {
		if waiter.deadline.After(target) {
			continue
		}
		if best < 0 ||
			waiter.deadline.Before(c.waiters[best].deadline) ||
			(waiter.deadline.Equal(c.waiters[best].deadline) && waiter.seq < c.waiters[best].seq) {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	timer := c.waiters[best]
	c.waiters = append(c.waiters[:best], c.waiters[best+1:]...)
	timer.fired = true
	return timer
}

type fakeTimer struct {
	clock    *Clock
	deadline time.Time
	seq      uint64
	fn       func()
	fired    bool
	stopped  bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	for i, waiter := range t.clock.waiters {
		if waiter == t {
			t.clock.waiters = append(t.clock.waiters[:i], t.clock.waiters[i+1:]...)
			break
		}
	}
	return true
}
