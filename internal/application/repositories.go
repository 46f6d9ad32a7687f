package application

import (
	"context"
	"time"
)

// ProjectRepository captures the project persistence used by the services.
type ProjectRepository interface {
	CreateProject(ctx context.Context, project Project) error
	UpdateProject(ctx context.Context, project Project) error
	GetProject(ctx context.Context, id string) (Project, error)
	ListProjects(ctx context.Context) ([]Project, error)
}

// SessionRepository captures scheduled session persistence.
type SessionRepository interface {
	// CreateSessions stores every session or none of them.
	CreateSessions(ctx context.Context, sessions []Session) error
	UpdateSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	ListProjectSessions(ctx context.Context, projectID string) ([]Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// SessionReader is the read side of SessionRepository.
type SessionReader interface {
	GetSession(ctx context.Context, id string) (Session, error)
}

// LiveSessionStore persists live session records. MutateLiveSession must
// apply fn and write the result atomically; an error from fn aborts the
// write and is returned unchanged.
type LiveSessionStore interface {
	EnsureLiveSession(ctx context.Context, sessionID string, now time.Time) (LiveSession, bool, error)
	GetLiveSession(ctx context.Context, sessionID string) (LiveSession, error)
	MutateLiveSession(ctx context.Context, sessionID string, now time.Time, fn func(*LiveSession) error) (LiveSession, error)
}

// ActivityLog stores the attendance log.
type ActivityLog interface {
	AppendActivity(ctx context.Context, record ActivityRecord) error
	CloseLatestActivity(ctx context.Context, sessionID, identity string, leave time.Time) (bool, error)
	ListActivity(ctx context.Context, sessionID string) ([]ActivityRecord, error)
}

// BreakoutRepository stores breakout rooms. CreateBreakout must report a
// taken (session, index) pair as an error matching persistence.ErrDuplicate.
type BreakoutRepository interface {
	NextBreakoutIndex(ctx context.Context, sessionID string) (int, error)
	CreateBreakout(ctx context.Context, room BreakoutRoom) error
	GetBreakout(ctx context.Context, sessionID string, index int) (BreakoutRoom, error)
	UpdateBreakout(ctx context.Context, room BreakoutRoom) error
	ListOpenBreakouts(ctx context.Context, sessionID string) ([]BreakoutRoom, error)
	ListTimedBreakouts(ctx context.Context) ([]BreakoutRoom, error)
}

// BreakoutReader is the read side of BreakoutRepository.
type BreakoutReader interface {
	GetBreakout(ctx context.Context, sessionID string, index int) (BreakoutRoom, error)
}
