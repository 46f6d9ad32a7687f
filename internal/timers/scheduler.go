package timers

import (
	"sync"
	"time"
)

// Job is a callback bound to an absolute deadline.
type Job struct {
	At  time.Time
	Run func()
}

// Scheduler keeps at most one group of pending jobs per key. Scheduling a key
// again cancels the previous group before the new one is armed, and a
// callback whose group has been replaced or cancelled never runs, even when
// its underlying timer already fired.
//
// Scheduler state is process local. Callers are expected to rebuild it from
// durable deadlines after a restart.
type Scheduler struct {
	clock Clock

	mu      sync.Mutex
	entries map[string]*entry
	nextGen uint64
	stopped bool

	running sync.WaitGroup
}

type entry struct {
	gen       uint64
	remaining int
	deadlines []time.Time
	timers    []Timer
}

// NewScheduler constructs a Scheduler. A nil clock selects Real().
func NewScheduler(clock Clock) *Scheduler {
	if clock == nil {
		clock = Real()
	}
	return &Scheduler{
		clock:   clock,
		entries: make(map[string]*entry),
	}
}

// Now exposes the scheduler clock.
func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// Schedule replaces any pending jobs registered under key with jobs. Jobs with
// a deadline in the past fire immediately.
func (s *Scheduler) Schedule(key string, jobs ...Job) {
	if len(jobs) == 0 {
		s.Cancel(key)
		return
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if previous, ok := s.entries[key]; ok {
		previous.stopAll()
	}
	s.nextGen++
	gen := s.nextGen
	current := &entry{gen: gen, remaining: len(jobs)}
	for _, job := range jobs {
		current.deadlines = append(current.deadlines, job.At)
	}
	s.entries[key] = current
	now := s.clock.Now()
	s.mu.Unlock()

	// Timers are armed outside the lock: a clock may run an already due
	// callback synchronously, and the callback re-enters the scheduler.
	armed := make([]Timer, 0, len(jobs))
	for _, job := range jobs {
		delay := job.At.Sub(now)
		if delay < 0 {
			delay = 0
		}
		run := job.Run
		armed = append(armed, s.clock.AfterFunc(delay, func() { s.fire(key, gen, run) }))
	}

	s.mu.Lock()
	if latest, ok := s.entries[key]; ok && latest.gen == gen {
		latest.timers = append(latest.timers, armed...)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	for _, timer := range armed {
		timer.Stop()
	}
}

// Cancel drops the pending jobs for key. It reports whether anything was
// pending.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.entries[key]
	if !ok {
		return false
	}
	current.stopAll()
	delete(s.entries, key)
	return true
}

// Pending reports whether key has jobs that have not fired yet.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

// Deadlines returns the deadlines of the jobs registered under key, in
// registration order.
func (s *Scheduler) Deadlines(key string) []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.entries[key]
	if !ok {
		return nil
	}
	out := make([]time.Time, len(current.deadlines))
	copy(out, current.deadlines)
	return out
}

// Len returns the number of keys with pending jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop cancels every pending job, rejects further scheduling and waits for
// callbacks that are already running. Do not call Stop from inside a job.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for key, current := range s.entries {
		current.stopAll()
		delete(s.entries, key)
	}
	s.mu.Unlock()

	s.running.Wait()
}

func (s *Scheduler) fire(key string, gen uint64, run func()) {
	s.mu.Lock()
	current, ok := s.entries[key]
	if s.stopped || !ok || current.gen != gen {
		s.mu.Unlock()
		return
	}
	current.remaining--
	if current.remaining <= 0 {
		delete(s.entries, key)
	}
	s.running.Add(1)
	s.mu.Unlock()

	defer s.running.Done()
	if run != nil {
		run()
	}
}

func (e *entry) stopAll() {
	for _, timer := range e.timers {
		timer.Stop()
	}
	e.timers = nil
}
