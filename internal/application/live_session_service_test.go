package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/session-orchestrator/internal/notify"
	"github.com/example/session-orchestrator/internal/testfixtures"
)

type liveHarness struct {
	svc      *LiveSessionService
	store    *memoryStore
	provider *providerStub
	events   *eventRecorder
	clock    *testfixtures.Clock
}

const liveSessionID = "session-1"

func newLiveHarness(t *testing.T) liveHarness {
	t.Helper()
	store := newMemoryStore()
	store.projects["project-1"] = Project{ID: "project-1", TimeZoneLabel: easternLabel, TimeZoneName: "America/New_York"}
	store.sessions[liveSessionID] = Session{ID: liveSessionID, ProjectID: "project-1", Title: "Town hall", BreakoutsEnabled: true}

	clock := testfixtures.NewClock(testfixtures.ReferenceTime())
	provider := newProviderStub()
	events := &eventRecorder{}
	svc := NewLiveSessionService(LiveSessionDependencies{
		Sessions:  store,
		Live:      store,
		Activity:  store,
		Breakouts: store,
		Provider:  provider,
		Publisher: events,
		Now:       clock.NowFunc(),
		Logger:    discardLogger(),
	})
	return liveHarness{svc: svc, store: store, provider: provider, events: events, clock: clock}
}

func (h liveHarness) init(t *testing.T) {
	t.Helper()
	if _, err := h.svc.EnsureInitialized(context.Background(), liveSessionID); err != nil {
		t.Fatalf("EnsureInitialized returned error: %v", err)
	}
}

func participant(email string) Person {
	return Person{Name: email, Email: email, Role: RoleParticipant}
}

func TestLiveSessionService_OperationsRequireRegistry(t *testing.T) {
	t.Parallel()

	h := newLiveHarness(t)
	ctx := context.Background()

	_, _, err := h.svc.Enqueue(ctx, liveSessionID, participant("ada@example.com"))
	if !errors.Is(err, ErrRegistryNotFound) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrRegistryNotFound, got %v", err)
	}
	if _, _, err := h.svc.AdmitAll(ctx, liveSessionID); !errors.Is(err, ErrRegistryNotFound) {
		t.Fatalf("AdmitAll: expected ErrRegistryNotFound, got %v", err)
	}
	if _, err := h.svc.End(ctx, liveSessionID); !errors.Is(err, ErrRegistryNotFound) {
		t.Fatalf("End: expected ErrRegistryNotFound, got %v", err)
	}
	if _, err := h.svc.LogLeave(ctx, liveSessionID, "ada@example.com"); !errors.Is(err, ErrRegistryNotFound) {
		t.Fatalf("LogLeave: expected ErrRegistryNotFound, got %v", err)
	}

	h.init(t)
	if _, added, err := h.svc.Enqueue(ctx, liveSessionID, participant("ada@example.com")); err != nil || !added {
		t.Fatalf("enqueue after initialization failed: added=%v err=%v", added, err)
	}
}

func TestLiveSessionService_EnsureInitialized_ConcurrentFirstTouch(t *testing.T) {
	t.Parallel()

	h := newLiveHarness(t)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.svc.EnsureInitialized(context.Background(), liveSessionID); err != nil {
				t.Errorf("EnsureInitialized returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(h.store.live) != 1 {
		t.Fatalf("expected a single live session record, got %d", len(h.store.live))
	}
	if _, err := h.svc.EnsureInitialized(context.Background(), "unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown session, got %v", err)
	}
}

func TestLiveSessionService_Enqueue_Idempotent(t *testing.T) {
	t.Parallel()

	h := newLiveHarness(t)
	h.init(t)
	ctx := context.Background()

	first, added, err := h.svc.Enqueue(ctx, liveSessionID, participant("Ada@Example.com"))
	if err != nil || !added {
		t.Fatalf("first enqueue: added=%v err=%v", added, err)
	}
	second, added, err := h.svc.Enqueue(ctx, liveSessionID, participant("ada@example.com "))
	if err != nil {
		t.Fatalf("second enqueue returned error: %v", err)
	}
	if added {
		t.Fatalf("second enqueue must be a no-op")
	}
	if len(second.Rosters.ParticipantWaiting) != 1 || second.Version != first.Version {
		t.Fatalf("rosters changed on duplicate enqueue: %+v", second.Rosters)
	}

	records, _ := h.svc.ListActivity(ctx, liveSessionID)
	if len(records) != 1 {
		t.Fatalf("expected one activity record, got %d", len(records))
	}
	if records[0].Identity != "ada@example.com" || records[0].Role != RoleParticipant {
		t.Fatalf("unexpected activity record: %+v", records[0])
	}
	if h.events.count(notify.TopicParticipantWaitingRoomUpdated) != 1 {
		t.Fatalf("expected one waiting room event, got %v", h.events.topics())
	}
}

func TestLiveSessionService_Enqueue_RolePolicies(t *testing.T) {
	t.Parallel()

	h := newLiveHarness(t)
	h.init(t)
	ctx := context.Background()

	if _, _, err := h.svc.Enqueue(ctx, liveSessionID, Person{Email: "obs@example.com", Role: RoleObserver}); err != nil {
		t.Fatalf("observer enqueue: %v", err)
	}
	if _, _, err := h.svc.Enqueue(ctx, liveSessionID, Person{Email: "mod@example.com", Role: RoleModerator}); err != nil {
		t.Fatalf("moderator enqueue: %v", err)
	}
	live, added, err := h.svc.Enqueue(ctx, liveSessionID, Person{Email: "mod@example.com", Role: RoleAdmin})
	if err != nil || added {
		t.Fatalf("moderator already active must be a no-op: added=%v err=%v", added, err)
	}

	rosters := live.Rosters
	if len(rosters.ObserverWaiting) != 1 || rosters.ObserverWaiting[0].Email != "obs@example.com" {
		t.Fatalf("observer should wait in the observer room: %+v", rosters.ObserverWaiting)
	}
	if len(rosters.ParticipantWaiting) != 0 {
		t.Fatalf("moderator must bypass the waiting room")
	}
	if len(rosters.ActiveObservers) != 1 || len(rosters.ActiveParticipants) != 1 {
		t.Fatalf("moderator should be written to both active lists: %+v", rosters)
	}

	if _, _, err := h.svc.Enqueue(ctx, liveSessionID, Person{Email: "x@example.com", Role: "Guest"}); err == nil {
		t.Fatalf("unknown role must be rejected")
	}
	if _, _, err := h.svc.Enqueue(ctx, liveSessionID, Person{Role: RoleParticipant}); err == nil {
		t.Fatalf("missing identity must be rejected")
	}
}

func TestLiveSessionService_AdmitAndReject(t *testing.T) {
	t.Parallel()

	h := newLiveHarness(t)
	h.init(t)
	ctx := context.Background()

	for _, email := range []string{"a@example.com", "b@example.com"} {
		if _, _, err := h.svc.Enqueue(ctx, liveSessionID, participant(email)); err != nil {
			t.Fatalf("enqueue %s: %v", email, err)
		}
	}

	h.clock.Advance(2 * time.Minute)
	live, admitted, err := h.svc.Admit(ctx, liveSessionID, "A@example.com")
	if err != nil || !admitted {
		t.Fatalf("Admit: admitted=%v err=%v", admitted, err)
	}
	if len(live.Rosters.ActiveParticipants) != 1 || !live.Rosters.ActiveParticipants[0].JoinedAt.Equal(h.clock.Now()) {
		t.Fatalf("admitted entry should carry a fresh joinedAt: %+v", live.Rosters.ActiveParticipants)
	}

	if _, admitted, err := h.svc.Admit(ctx, liveSessionID, "nobody@example.com"); err != nil || admitted {
		t.Fatalf("admitting an unknown identity is a no-op: admitted=%v err=%v", admitted, err)
	}

	live, rejected, err := h.svc.Reject(ctx, liveSessionID, "b@example.com")
	if err != nil || !rejected {
		t.Fatalf("Reject: rejected=%v err=%v", rejected, err)
	}
	if len(live.Rosters.ParticipantWaiting) != 0 || len(live.Rosters.ActiveParticipants) != 1 {
		t.Fatalf("reject must only touch the waiting room: %+v", live.Rosters)
	}

	if _, rejected, _ := h.svc.Reject(ctx, liveSessionID, "a@example.com"); rejected {
		t.Fatalf("reject must not remove active participants")
	}
}

func TestLiveSessionService_AdmitObserver(t *testing.T) {
	t.Parallel()

	h := newLiveHarness(t)
	h.init(t)
	ctx := context.Background()

	if _, _, err := h.svc.Enqueue(ctx, liveSessionID, Person{Email: "obs@example.com", Role: RoleObserver}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	live, admitted, err := h.svc.AdmitObserver(ctx, liveSessionID, "obs@example.com")
	if err != nil || !admitted {
		t.Fatalf("AdmitObserver: admitted=%v err=%v", admitted, err)
	}
	if len(live.Rosters.ObserverWaiting) != 0 || len(live.Rosters.ActiveObservers) != 1 {
		t.Fatalf("unexpected rosters: %+v", live.Rosters)
	}
}

func TestLiveSessionService_AdmitAll_SharedJoinedAt(t *testing.T) {
	t.Parallel()

	h := newLiveHarness(t)
	h.init(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, _, err := h.svc.Enqueue(ctx, liveSessionID, participant(fmt.Sprintf("p%d@example.com", i))); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		h.clock.Advance(time.Second)
	}

	live, admitted, err := h.svc.AdmitAll(ctx, liveSessionID)
	if err != nil {
		t.Fatalf("AdmitAll returned error: %v", err)
	}
	if len(admitted) != 5 || len(live.Rosters.ActiveParticipants) != 5 || len(live.Rosters.ParticipantWaiting) != 0 {
		t.Fatalf("expected all 5 drained, got admitted=%d rosters=%+v", len(admitted), live.Rosters)
	}
	stamp := live.Rosters.ActiveParticipants[0].JoinedAt
	for _, entry := range live.Rosters.ActiveParticipants {
		if !entry.JoinedAt.Equal(stamp) {
			t.Fatalf("admitAll entries must share one joinedAt")
		}
	}
	if live.Rosters.ActiveParticipants[0].Email != "p0@example.com" {
		t.Fatalf("waiting order should be preserved")
	}

	if _, again, err := h.svc.AdmitAll(ctx, liveSessionID); err != nil || len(again) != 0 {
		t.Fatalf("second AdmitAll should drain nothing: %v %v", again, err)
	}
}

func TestLiveSessionService_AdmitAll_ConcurrentEnqueueNotLost(t *testing.T) {
	t.Parallel()

	h := newLiveHarness(t)
	h.init(t)
	ctx := context.Background()

	const joiners = 40
	var wg sync.WaitGroup
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := h.svc.Enqueue(ctx, liveSessionID, participant(fmt.Sprintf("j%d@example.com", i))); err != nil {
				t.Errorf("enqueue: %v", err)
			}
		}()
		if i%10 == 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, _, err := h.svc.AdmitAll(ctx, liveSessionID); err != nil {
					t.Errorf("admitAll: %v", err)
				}
			}()
		}
	}
	wg.Wait()

	live, _, err := h.svc.AdmitAll(ctx, liveSessionID)
	if err != nil {
		t.Fatalf("final AdmitAll: %v", err)
	}
	if len(live.Rosters.ParticipantWaiting) != 0 {
		t.Fatalf("waiting room should be empty")
	}
	seen := make(map[string]bool)
	for _, entry := range live.Rosters.ActiveParticipants {
		if seen[entry.Key()] {
			t.Fatalf("duplicate active entry %s", entry.Key())
		}
		seen[entry.Key()] = true
	}
	if len(seen) != joiners {
		t.Fatalf("expected %d active participants, got %d", joiners, len(seen))
	}
}

func TestLiveSessionService_StartEnd(t *testing.T) {
	t.Parallel()

	h := newLiveHarness(t)
	ctx := context.Background()

	live, err := h.svc.Start(ctx, liveSessionID)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if !live.Ongoing || live.StartedAt == nil || live.EndedAt != nil {
		t.Fatalf("unexpected state after start: %+v", live)
	}
	if _, _, err := h.svc.Enqueue(ctx, liveSessionID, participant("a@example.com")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	h.clock.Advance(time.Hour)
	live, err = h.svc.End(ctx, liveSessionID)
	if err != nil {
		t.Fatalf("End returned error: %v", err)
	}
	if live.Ongoing || live.EndedAt == nil || !live.EndedAt.Equal(h.clock.Now()) {
		t.Fatalf("unexpected state after end: %+v", live)
	}
	if len(live.Rosters.ParticipantWaiting) != 1 {
		t.Fatalf("end must not clear rosters")
	}

	h.clock.Advance(time.Minute)
	live, err = h.svc.Start(ctx, liveSessionID)
	if err != nil || !live.Ongoing || live.EndedAt != nil {
		t.Fatalf("restart should clear endedAt: %+v %v", live, err)
	}
}

func TestLiveSessionService_LogLeave(t *testing.T) {
	t.Parallel()

	h := newLiveHarness(t)
	h.init(t)
	ctx := context.Background()

	if _, _, err := h.svc.Enqueue(ctx, liveSessionID, participant("a@example.com")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	h.clock.Advance(10 * time.Minute)

	closed, err := h.svc.LogLeave(ctx, liveSessionID, "A@example.com")
	if err != nil || !closed {
		t.Fatalf("LogLeave: closed=%v err=%v", closed, err)
	}
	closed, err = h.svc.LogLeave(ctx, liveSessionID, "a@example.com")
	if err != nil || closed {
		t.Fatalf("a repeated leave is a no-op: closed=%v err=%v", closed, err)
	}

	records, _ := h.svc.ListActivity(ctx, liveSessionID)
	if len(records) != 1 || records[0].LeaveTime == nil || !records[0].LeaveTime.Equal(h.clock.Now()) {
		t.Fatalf("unexpected activity: %+v", records)
	}
}

func TestLiveSessionService_IssueJoinToken(t *testing.T) {
	t.Parallel()

	h := newLiveHarness(t)
	h.init(t)
	ctx := context.Background()

	token, err := h.svc.IssueJoinToken(ctx, liveSessionID, participant("a@example.com"), 0)
	if err != nil {
		t.Fatalf("IssueJoinToken returned error: %v", err)
	}
	if token.RoomName != "session-session-1" || token.Identity != "a@example.com" || token.Token == "" {
		t.Fatalf("unexpected token: %+v", token)
	}
	if h.provider.ensureCalls != 1 {
		t.Fatalf("main room should be ensured before issuing")
	}

	closedAt := h.clock.Now()
	h.store.seedBreakout(BreakoutRoom{SessionID: liveSessionID, Index: 1, RoomName: BreakoutRoomName(liveSessionID, 1), ClosedAt: &closedAt})
	h.store.seedBreakout(BreakoutRoom{SessionID: liveSessionID, Index: 2, RoomName: BreakoutRoomName(liveSessionID, 2)})

	if _, err := h.svc.IssueJoinToken(ctx, liveSessionID, participant("a@example.com"), 1); !errors.Is(err, ErrBreakoutNotFound) {
		t.Fatalf("closed breakout should be rejected, got %v", err)
	}
	token, err = h.svc.IssueJoinToken(ctx, liveSessionID, participant("a@example.com"), 2)
	if err != nil || token.RoomName != "session-session-1-breakout-2" {
		t.Fatalf("unexpected breakout token: %+v %v", token, err)
	}

	h.provider.ensureErr = errors.New("provider down")
	_, err = h.svc.IssueJoinToken(ctx, liveSessionID, participant("a@example.com"), 0)
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}
