package main

import (
	"context"
	"time"

	"github.com/example/session-orchestrator/internal/application"
	"github.com/example/session-orchestrator/internal/persistence"
)

// Adapters translate between application models and persistence rows.
// Persistence errors pass through untouched; the services map them.

type projectRepositoryAdapter struct {
	repo persistence.ProjectRepository
}

func newProjectRepositoryAdapter(repo persistence.ProjectRepository) *projectRepositoryAdapter {
	return &projectRepositoryAdapter{repo: repo}
}

func (a *projectRepositoryAdapter) CreateProject(ctx context.Context, project application.Project) error {
	return a.repo.CreateProject(ctx, toPersistenceProject(project))
}

func (a *projectRepositoryAdapter) UpdateProject(ctx context.Context, project application.Project) error {
	return a.repo.UpdateProject(ctx, toPersistenceProject(project))
}

func (a *projectRepositoryAdapter) GetProject(ctx context.Context, id string) (application.Project, error) {
	stored, err := a.repo.GetProject(ctx, id)
	if err != nil {
		return application.Project{}, err
	}
	return toApplicationProject(stored), nil
}

func (a *projectRepositoryAdapter) ListProjects(ctx context.Context) ([]application.Project, error) {
	models, err := a.repo.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	projects := make([]application.Project, 0, len(models))
	for _, model := range models {
		projects = append(projects, toApplicationProject(model))
	}
	return projects, nil
}

type sessionRepositoryAdapter struct {
	repo persistence.SessionRepository
}

func newSessionRepositoryAdapter(repo persistence.SessionRepository) *sessionRepositoryAdapter {
	return &sessionRepositoryAdapter{repo: repo}
}

func (a *sessionRepositoryAdapter) CreateSessions(ctx context.Context, sessions []application.Session) error {
	models := make([]persistence.Session, 0, len(sessions))
	for _, session := range sessions {
		models = append(models, toPersistenceSession(session))
	}
	return a.repo.CreateSessions(ctx, models)
}

func (a *sessionRepositoryAdapter) UpdateSession(ctx context.Context, session application.Session) error {
	return a.repo.UpdateSession(ctx, toPersistenceSession(session))
}

func (a *sessionRepositoryAdapter) GetSession(ctx context.Context, id string) (application.Session, error) {
	stored, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) ListProjectSessions(ctx context.Context, projectID string) ([]application.Session, error) {
	models, err := a.repo.ListProjectSessions(ctx, projectID)
	if err != nil {
		return nil, err
	}
	sessions := make([]application.Session, 0, len(models))
	for _, model := range models {
		sessions = append(sessions, toApplicationSession(model))
	}
	return sessions, nil
}

func (a *sessionRepositoryAdapter) DeleteSession(ctx context.Context, id string) error {
	return a.repo.DeleteSession(ctx, id)
}

type liveSessionStoreAdapter struct {
	repo persistence.LiveSessionRepository
}

func newLiveSessionStoreAdapter(repo persistence.LiveSessionRepository) *liveSessionStoreAdapter {
	return &liveSessionStoreAdapter{repo: repo}
}

func (a *liveSessionStoreAdapter) EnsureLiveSession(ctx context.Context, sessionID string, now time.Time) (application.LiveSession, bool, error) {
	stored, created, err := a.repo.EnsureLiveSession(ctx, sessionID, now)
	if err != nil {
		return application.LiveSession{}, false, err
	}
	return toApplicationLiveSession(stored), created, nil
}

func (a *liveSessionStoreAdapter) GetLiveSession(ctx context.Context, sessionID string) (application.LiveSession, error) {
	stored, err := a.repo.GetLiveSession(ctx, sessionID)
	if err != nil {
		return application.LiveSession{}, err
	}
	return toApplicationLiveSession(stored), nil
}

// MutateLiveSession runs fn on the application view of the stored record
// inside the repository's atomic read-modify-write.
func (a *liveSessionStoreAdapter) MutateLiveSession(ctx context.Context, sessionID string, now time.Time, fn func(*application.LiveSession) error) (application.LiveSession, error) {
	stored, err := a.repo.MutateLiveSession(ctx, sessionID, now, func(live *persistence.LiveSession) error {
		view := toApplicationLiveSession(*live)
		if err := fn(&view); err != nil {
			return err
		}
		live.Ongoing = view.Ongoing
		live.StartedAt = view.StartedAt
		live.EndedAt = view.EndedAt
		live.Rosters = toPersistenceRosters(view.Rosters)
		return nil
	})
	if err != nil {
		return application.LiveSession{}, err
	}
	return toApplicationLiveSession(stored), nil
}

type activityLogAdapter struct {
	repo persistence.ActivityRepository
}

func newActivityLogAdapter(repo persistence.ActivityRepository) *activityLogAdapter {
	return &activityLogAdapter{repo: repo}
}

func (a *activityLogAdapter) AppendActivity(ctx context.Context, record application.ActivityRecord) error {
	return a.repo.AppendActivity(ctx, persistence.ActivityRecord{
		ID:        record.ID,
		SessionID: record.SessionID,
		Identity:  record.Identity,
		Name:      record.Name,
		Role:      string(record.Role),
		JoinTime:  record.JoinTime,
		LeaveTime: record.LeaveTime,
	})
}

func (a *activityLogAdapter) CloseLatestActivity(ctx context.Context, sessionID, identity string, leave time.Time) (bool, error) {
	return a.repo.CloseLatestActivity(ctx, sessionID, identity, leave)
}

func (a *activityLogAdapter) ListActivity(ctx context.Context, sessionID string) ([]application.ActivityRecord, error) {
	models, err := a.repo.ListActivity(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	records := make([]application.ActivityRecord, 0, len(models))
	for _, model := range models {
		records = append(records, application.ActivityRecord{
			ID:        model.ID,
			SessionID: model.SessionID,
			Identity:  model.Identity,
			Name:      model.Name,
			Role:      application.Role(model.Role),
			JoinTime:  model.JoinTime,
			LeaveTime: model.LeaveTime,
		})
	}
	return records, nil
}

type breakoutRepositoryAdapter struct {
	repo persistence.BreakoutRepository
}

func newBreakoutRepositoryAdapter(repo persistence.BreakoutRepository) *breakoutRepositoryAdapter {
	return &breakoutRepositoryAdapter{repo: repo}
}

func (a *breakoutRepositoryAdapter) NextBreakoutIndex(ctx context.Context, sessionID string) (int, error) {
	return a.repo.NextBreakoutIndex(ctx, sessionID)
}

func (a *breakoutRepositoryAdapter) CreateBreakout(ctx context.Context, room application.BreakoutRoom) error {
	return a.repo.CreateBreakout(ctx, persistence.BreakoutRoom(room))
}

func (a *breakoutRepositoryAdapter) GetBreakout(ctx context.Context, sessionID string, index int) (application.BreakoutRoom, error) {
	stored, err := a.repo.GetBreakout(ctx, sessionID, index)
	if err != nil {
		return application.BreakoutRoom{}, err
	}
	return application.BreakoutRoom(stored), nil
}

func (a *breakoutRepositoryAdapter) UpdateBreakout(ctx context.Context, room application.BreakoutRoom) error {
	return a.repo.UpdateBreakout(ctx, persistence.BreakoutRoom(room))
}

func (a *breakoutRepositoryAdapter) ListOpenBreakouts(ctx context.Context, sessionID string) ([]application.BreakoutRoom, error) {
	models, err := a.repo.ListOpenBreakouts(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return toApplicationBreakouts(models), nil
}

func (a *breakoutRepositoryAdapter) ListTimedBreakouts(ctx context.Context) ([]application.BreakoutRoom, error) {
	models, err := a.repo.ListTimedBreakouts(ctx)
	if err != nil {
		return nil, err
	}
	return toApplicationBreakouts(models), nil
}

func toApplicationBreakouts(models []persistence.BreakoutRoom) []application.BreakoutRoom {
	rooms := make([]application.BreakoutRoom, 0, len(models))
	for _, model := range models {
		rooms = append(rooms, application.BreakoutRoom(model))
	}
	return rooms
}

func toPersistenceProject(p application.Project) persistence.Project {
	return persistence.Project(p)
}

func toApplicationProject(p persistence.Project) application.Project {
	return application.Project(p)
}

func toPersistenceSession(s application.Session) persistence.Session {
	return persistence.Session(s)
}

func toApplicationSession(s persistence.Session) application.Session {
	return application.Session(s)
}

func toApplicationLiveSession(live persistence.LiveSession) application.LiveSession {
	return application.LiveSession{
		SessionID: live.SessionID,
		Ongoing:   live.Ongoing,
		StartedAt: live.StartedAt,
		EndedAt:   live.EndedAt,
		Rosters: application.Rosters{
			ParticipantWaiting: toApplicationEntries(live.Rosters.ParticipantWaiting),
			ObserverWaiting:    toApplicationEntries(live.Rosters.ObserverWaiting),
			ActiveParticipants: toApplicationEntries(live.Rosters.ActiveParticipants),
			ActiveObservers:    toApplicationEntries(live.Rosters.ActiveObservers),
		},
		Version:   live.Version,
		CreatedAt: live.CreatedAt,
		UpdatedAt: live.UpdatedAt,
	}
}

func toPersistenceRosters(r application.Rosters) persistence.Rosters {
	return persistence.Rosters{
		ParticipantWaiting: toPersistenceEntries(r.ParticipantWaiting),
		ObserverWaiting:    toPersistenceEntries(r.ObserverWaiting),
		ActiveParticipants: toPersistenceEntries(r.ActiveParticipants),
		ActiveObservers:    toPersistenceEntries(r.ActiveObservers),
	}
}

func toApplicationEntries(entries []persistence.RosterEntry) []application.RosterEntry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]application.RosterEntry, len(entries))
	for i, e := range entries {
		out[i] = application.RosterEntry{ID: e.ID, Name: e.Name, Email: e.Email, Role: application.Role(e.Role), JoinedAt: e.JoinedAt}
	}
	return out
}

func toPersistenceEntries(entries []application.RosterEntry) []persistence.RosterEntry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]persistence.RosterEntry, len(entries))
	for i, e := range entries {
		out[i] = persistence.RosterEntry{ID: e.ID, Name: e.Name, Email: e.Email, Role: string(e.Role), JoinedAt: e.JoinedAt}
	}
	return out
}
