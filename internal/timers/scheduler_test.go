package timers_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/session-orchestrator/internal/testfixtures"
	"github.com/example/session-orchestrator/internal/timers"
)

func TestSchedulerFiresJobsAtDeadlines(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	s := timers.NewScheduler(clock)
	start := clock.Now()

	var fired []string
	s.Schedule("a",
		timers.Job{At: start.Add(4 * time.Minute), Run: func() { fired = append(fired, "warn") }},
		timers.Job{At: start.Add(5 * time.Minute), Run: func() { fired = append(fired, "close") }},
	)
	require.True(t, s.Pending("a"))
	require.Equal(t, []time.Time{start.Add(4 * time.Minute), start.Add(5 * time.Minute)}, s.Deadlines("a"))

	clock.Advance(4 * time.Minute)
	assert.Equal(t, []string{"warn"}, fired)
	assert.True(t, s.Pending("a"))

	clock.Advance(time.Minute)
	assert.Equal(t, []string{"warn", "close"}, fired)
	assert.False(t, s.Pending("a"))
	assert.Zero(t, s.Len())
}

func TestSchedulerRescheduleReplacesPreviousJobs(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	s := timers.NewScheduler(clock)
	start := clock.Now()

	var fired []string
	s.Schedule("room", timers.Job{At: start.Add(5 * time.Minute), Run: func() { fired = append(fired, "old") }})
	s.Schedule("room", timers.Job{At: start.Add(15 * time.Minute), Run: func() { fired = append(fired, "new") }})

	clock.Advance(5 * time.Minute)
	assert.Empty(t, fired)
	assert.Equal(t, 1, clock.PendingTimers())

	clock.Advance(10 * time.Minute)
	assert.Equal(t, []string{"new"}, fired)
}

func TestSchedulerCancel(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	s := timers.NewScheduler(clock)

	fired := false
	s.Schedule("k", timers.Job{At: clock.Now().Add(time.Minute), Run: func() { fired = true }})
	require.True(t, s.Cancel("k"))
	require.False(t, s.Cancel("k"))

	clock.Advance(time.Hour)
	assert.False(t, fired)
	assert.Zero(t, clock.PendingTimers())
}

func TestSchedulerPastDeadlineFiresImmediately(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	s := timers.NewScheduler(clock)

	fired := 0
	s.Schedule("late", timers.Job{At: clock.Now().Add(-time.Minute), Run: func() { fired++ }})
	assert.Equal(t, 1, fired)
	assert.False(t, s.Pending("late"))
}

func TestSchedulerJobMayCancelItsOwnKey(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	s := timers.NewScheduler(clock)
	start := clock.Now()

	var fired []string
	s.Schedule("k",
		timers.Job{At: start.Add(time.Minute), Run: func() {
			fired = append(fired, "first")
			s.Cancel("k")
		}},
		timers.Job{At: start.Add(2 * time.Minute), Run: func() { fired = append(fired, "second") }},
	)

	clock.Advance(5 * time.Minute)
	assert.Equal(t, []string{"first"}, fired)
}

func TestSchedulerStopDropsEverything(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	s := timers.NewScheduler(clock)

	fired := false
	s.Schedule("a", timers.Job{At: clock.Now().Add(time.Minute), Run: func() { fired = true }})
	s.Schedule("b", timers.Job{At: clock.Now().Add(time.Minute), Run: func() { fired = true }})
	s.Stop()

	s.Schedule("c", timers.Job{At: clock.Now().Add(time.Minute), Run: func() { fired = true }})
	clock.Advance(time.Hour)

	assert.False(t, fired)
	assert.Zero(t, s.Len())
}

func TestSchedulerWithRealClock(t *testing.T) {
	s := timers.NewScheduler(nil)
	t.Cleanup(s.Stop)

	var wg sync.WaitGroup
	wg.Add(1)
	s.Schedule("real", timers.Job{At: s.Now().Add(10 * time.Millisecond), Run: wg.Done})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
}
