package persistence_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/example/session-orchestrator/internal/persistence"
	"github.com/example/session-orchestrator/internal/testfixtures"
)

func seededHarness(t *testing.T, breakouts bool) (*testfixtures.SQLiteHarness, testfixtures.SessionFixture) {
	t.Helper()
	harness := testfixtures.NewSQLiteHarness(t)
	project := testfixtures.NewProjectFixture(testfixtures.WithProjectBreakouts(breakouts))
	session := testfixtures.NewSessionFixture(
		testfixtures.WithSessionProject(project.ID),
		testfixtures.WithSessionBreakouts(breakouts),
	)
	harness.SeedSession(t, project, session)
	return harness, session
}

func TestProjectRepository(t *testing.T) {
	t.Parallel()

	t.Run("returns projects in creation order", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		harness := testfixtures.NewSQLiteHarness(t)

		base := testfixtures.ReferenceTime()
		later := testfixtures.NewProjectFixture(testfixtures.WithProjectID("project-b"))
		later.CreatedAt = base.Add(time.Hour)
		earlier := testfixtures.NewProjectFixture(testfixtures.WithProjectID("project-a"))
		earlier.CreatedAt = base

		for _, p := range []testfixtures.ProjectFixture{later, earlier} {
			if err := harness.Projects.CreateProject(ctx, p.Persistence()); err != nil {
				t.Fatalf("CreateProject failed: %v", err)
			}
		}

		projects, err := harness.Projects.ListProjects(ctx)
		if err != nil {
			t.Fatalf("ListProjects failed: %v", err)
		}
		ids := make([]string, 0, len(projects))
		for _, p := range projects {
			ids = append(ids, p.ID)
		}
		if !slices.Equal(ids, []string{"project-a", "project-b"}) {
			t.Fatalf("unexpected order: %v", ids)
		}
	})
}

func TestSessionRepository(t *testing.T) {
	t.Parallel()

	t.Run("allows sessions that touch end to start", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		harness := testfixtures.NewSQLiteHarness(t)
		project := testfixtures.NewProjectFixture()
		if err := harness.Projects.CreateProject(ctx, project.Persistence()); err != nil {
			t.Fatalf("CreateProject failed: %v", err)
		}

		start := testfixtures.ReferenceTime()
		first := testfixtures.NewSessionFixture(
			testfixtures.WithSessionProject(project.ID),
			testfixtures.WithSessionInterval(start, start.Add(time.Hour)),
		)
		second := testfixtures.NewSessionFixture(
			testfixtures.WithSessionProject(project.ID),
			testfixtures.WithSessionInterval(start.Add(time.Hour), start.Add(2*time.Hour)),
		)
		if err := harness.Sessions.CreateSessions(ctx, []persistence.Session{first.Persistence(), second.Persistence()}); err != nil {
			t.Fatalf("CreateSessions failed: %v", err)
		}

		sessions, err := harness.Sessions.ListProjectSessions(ctx, project.ID)
		if err != nil {
			t.Fatalf("ListProjectSessions failed: %v", err)
		}
		if len(sessions) != 2 || sessions[0].ID != first.ID || !sessions[1].Start.Equal(sessions[0].End) {
			t.Fatalf("unexpected sessions: %#v", sessions)
		}
	})

	t.Run("rejects duplicate identifiers", func(t *testing.T) {
		t.Parallel()

		harness, session := seededHarness(t, false)
		err := harness.Sessions.CreateSessions(context.Background(), []persistence.Session{session.Persistence()})
		if !errors.Is(err, persistence.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
	})
}

func TestLiveSessionRepository(t *testing.T) {
	t.Parallel()

	t.Run("round trips all four rosters in order", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		harness, session := seededHarness(t, false)
		now := testfixtures.ReferenceTime()

		if _, _, err := harness.LiveSessions.EnsureLiveSession(ctx, session.ID, now); err != nil {
			t.Fatalf("EnsureLiveSession failed: %v", err)
		}

		want := persistence.Rosters{
			ParticipantWaiting: []persistence.RosterEntry{
				testfixtures.NewRosterEntry("Participant", now),
				testfixtures.NewRosterEntry("Participant", now.Add(time.Second)),
			},
			ObserverWaiting:    []persistence.RosterEntry{testfixtures.NewRosterEntry("Observer", now)},
			ActiveParticipants: []persistence.RosterEntry{testfixtures.NewRosterEntry("Moderator", now)},
			ActiveObservers:    []persistence.RosterEntry{testfixtures.NewRosterEntry("Admin", now)},
		}
		if _, err := harness.LiveSessions.MutateLiveSession(ctx, session.ID, now, func(live *persistence.LiveSession) error {
			live.Rosters = want
			return nil
		}); err != nil {
			t.Fatalf("MutateLiveSession failed: %v", err)
		}

		stored, err := harness.LiveSessions.GetLiveSession(ctx, session.ID)
		if err != nil {
			t.Fatalf("GetLiveSession failed: %v", err)
		}
		got := stored.Rosters
		if len(got.ParticipantWaiting) != 2 || got.ParticipantWaiting[0].ID != want.ParticipantWaiting[0].ID ||
			got.ParticipantWaiting[1].ID != want.ParticipantWaiting[1].ID {
			t.Fatalf("participant queue order lost: %#v", got.ParticipantWaiting)
		}
		if got.ObserverWaiting[0].Email != want.ObserverWaiting[0].Email ||
			got.ActiveParticipants[0].Role != "Moderator" ||
			got.ActiveObservers[0].Name != want.ActiveObservers[0].Name {
			t.Fatalf("rosters did not round trip: %#v", got)
		}
	})

	t.Run("requires an existing session", func(t *testing.T) {
		t.Parallel()

		harness := testfixtures.NewSQLiteHarness(t)
		_, _, err := harness.LiveSessions.EnsureLiveSession(context.Background(), "missing", testfixtures.ReferenceTime())
		if !errors.Is(err, persistence.ErrForeignKeyViolation) {
			t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
		}
	})
}

func TestBreakoutRepository(t *testing.T) {
	t.Parallel()

	t.Run("lists timed rooms across sessions by deadline", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		harness, first := seededHarness(t, true)
		second := testfixtures.NewSessionFixture(
			testfixtures.WithSessionProject(first.ProjectID),
			testfixtures.WithSessionBreakouts(true),
		)
		if err := harness.Sessions.CreateSessions(ctx, []persistence.Session{second.Persistence()}); err != nil {
			t.Fatalf("CreateSessions failed: %v", err)
		}

		base := testfixtures.ReferenceTime()
		rooms := []testfixtures.BreakoutFixture{
			testfixtures.NewBreakoutFixture(testfixtures.WithBreakoutSession(first.ID, 1), testfixtures.WithBreakoutDeadline(base.Add(20*time.Minute))),
			testfixtures.NewBreakoutFixture(testfixtures.WithBreakoutSession(second.ID, 1), testfixtures.WithBreakoutDeadline(base.Add(5*time.Minute))),
			testfixtures.NewBreakoutFixture(testfixtures.WithBreakoutSession(first.ID, 2)),
		}
		for _, room := range rooms {
			if err := harness.Breakouts.CreateBreakout(ctx, room.Persistence()); err != nil {
				t.Fatalf("CreateBreakout failed: %v", err)
			}
		}

		timed, err := harness.Breakouts.ListTimedBreakouts(ctx)
		if err != nil {
			t.Fatalf("ListTimedBreakouts failed: %v", err)
		}
		if len(timed) != 2 || timed[0].SessionID != second.ID || timed[1].SessionID != first.ID {
			t.Fatalf("unexpected timed rooms: %#v", timed)
		}
		if timed[1].RoomName != rooms[0].RoomName() {
			t.Fatalf("room name not persisted: %q", timed[1].RoomName)
		}
	})

	t.Run("rejects index zero", func(t *testing.T) {
		t.Parallel()

		harness, session := seededHarness(t, true)
		room := testfixtures.NewBreakoutFixture(testfixtures.WithBreakoutSession(session.ID, 0))
		err := harness.Breakouts.CreateBreakout(context.Background(), room.Persistence())
		if !errors.Is(err, persistence.ErrConstraintViolation) {
			t.Fatalf("expected ErrConstraintViolation, got %v", err)
		}
	})
}

func TestActivityRepository(t *testing.T) {
	t.Parallel()

	t.Run("keeps one record per join", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		harness, session := seededHarness(t, false)
		base := testfixtures.ReferenceTime()

		for i := 0; i < 3; i++ {
			join := base.Add(time.Duration(i) * time.Minute)
			if err := harness.Activity.AppendActivity(ctx, persistence.ActivityRecord{
				SessionID: session.ID, Identity: "observer-1", Name: "Olive", Role: "Observer", JoinTime: join,
			}); err != nil {
				t.Fatalf("AppendActivity failed: %v", err)
			}
			if _, err := harness.Activity.CloseLatestActivity(ctx, session.ID, "observer-1", join.Add(30*time.Second)); err != nil {
				t.Fatalf("CloseLatestActivity failed: %v", err)
			}
		}

		records, err := harness.Activity.ListActivity(ctx, session.ID)
		if err != nil {
			t.Fatalf("ListActivity failed: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("expected 3 records, got %d", len(records))
		}
		for _, record := range records {
			if record.ID == "" || record.LeaveTime == nil {
				t.Fatalf("record not closed or missing id: %#v", record)
			}
		}
	})
}
