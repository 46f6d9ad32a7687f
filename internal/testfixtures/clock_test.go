package testfixtures

import (
	"testing"
	"time"
)

func TestClockDefaultsToReferenceTime(t *testing.T) {
	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected ReferenceTime, got %v", clock.Now())
	}
}

func TestClockAdvanceAndSet(t *testing.T) {
	start := time.Date(2024, time.March, 14, 9, 26, 0, 0, time.UTC)
	clock := NewClock(start)

	updated := clock.Advance(90 * time.Minute)
	if !updated.Equal(start.Add(90 * time.Minute)) {
		t.Fatalf("advance returned %v", updated)
	}

	clock.Set(start.Add(2 * time.Hour))
	if got := clock.Current(); !got.Equal(start.Add(2 * time.Hour)) {
		t.Fatalf("expected %v, got %v", start.Add(2*time.Hour), got)
	}
}

func TestClockFiresTimersInDeadlineOrder(t *testing.T) {
	start := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	clock := NewClock(start)

	var order []string
	var seenAt []time.Time
	clock.AfterFunc(3*time.Minute, func() {
		order = append(order, "third")
		seenAt = append(seenAt, clock.Now())
	})
	clock.AfterFunc(time.Minute, func() {
		order = append(order, "first")
		seenAt = append(seenAt, clock.Now())
	})
	clock.AfterFunc(2*time.Minute, func() { order = append(order, "second") })

	clock.Advance(90 * time.Second)
	if len(order) != 1 || order[0] != "first" {
		t.Fatalf("expected only first to fire, got %v", order)
	}
	if !seenAt[0].Equal(start.Add(time.Minute)) {
		t.Fatalf("callback observed %v", seenAt[0])
	}

	clock.Advance(10 * time.Minute)
	if len(order) != 3 || order[1] != "second" || order[2] != "third" {
		t.Fatalf("unexpected order %v", order)
	}
	if clock.PendingTimers() != 0 {
		t.Fatalf("expected no pending timers, got %d", clock.PendingTimers())
	}
}

func TestClockStoppedTimerNeverFires(t *testing.T) {
	clock := NewClock(time.Time{})
	fired := false
	timer := clock.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("expected Stop to report a pending timer")
	}
	if timer.Stop() {
		t.Fatal("second Stop should report false")
	}
	clock.Advance(time.Minute)
	if fired {
		t.Fatal("stopped timer fired")
	}
}

func TestClockRunsImmediateCallbacksSynchronously(t *testing.T) {
	clock := NewClock(time.Time{})
	fired := false
	timer := clock.AfterFunc(0, func() { fired = true })
	if !fired {
		t.Fatal("expected immediate callback")
	}
	if timer.Stop() {
		t.Fatal("fired timer cannot be stopped")
	}
}

func TestClockNowFunc(t *testing.T) {
	clock := NewClock(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))
	nowFn := clock.NowFunc()

	if got := nowFn(); !got.Equal(clock.Current()) {
		t.Fatalf("expected %v from NowFunc, got %v", clock.Current(), got)
	}

	clock.Advance(time.Minute)
	if got := nowFn(); !got.Equal(clock.Current()) {
		t.Fatalf("expected updated time %v, got %v", clock.Current(), got)
	}
}
