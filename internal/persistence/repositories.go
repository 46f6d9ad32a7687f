package persistence

import (
	"context"
	"time"
)

// ProjectRepository stores projects.
type ProjectRepository interface {
	CreateProject(ctx context.Context, project Project) error
	UpdateProject(ctx context.Context, project Project) error
	GetProject(ctx context.Context, id string) (Project, error)
	ListProjects(ctx context.Context) ([]Project, error)
}

// SessionRepository stores scheduled sessions.
type SessionRepository interface {
	// CreateSessions inserts every session or none of them.
	CreateSessions(ctx context.Context, sessions []Session) error
	UpdateSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	ListProjectSessions(ctx context.Context, projectID string) ([]Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// LiveSessionMutation edits a live session in place. Returning an error
// aborts the write.
type LiveSessionMutation func(live *LiveSession) error

// LiveSessionRepository stores live session records and their rosters.
type LiveSessionRepository interface {
	// EnsureLiveSession creates the record if absent and returns the stored
	// one. created reports whether this call inserted it.
	EnsureLiveSession(ctx context.Context, sessionID string, now time.Time) (live LiveSession, created bool, err error)
	GetLiveSession(ctx context.Context, sessionID string) (LiveSession, error)
	// MutateLiveSession applies fn to the stored record and writes it back
	// atomically. ErrNotFound is returned when the record does not exist.
	MutateLiveSession(ctx context.Context, sessionID string, now time.Time, fn LiveSessionMutation) (LiveSession, error)
}

// ActivityRepository stores the attendance log.
type ActivityRepository interface {
	AppendActivity(ctx context.Context, record ActivityRecord) error
	// CloseLatestActivity stamps leave on the most recent open record for
	// identity. It reports whether a record was closed.
	CloseLatestActivity(ctx context.Context, sessionID, identity string, leave time.Time) (bool, error)
	ListActivity(ctx context.Context, sessionID string) ([]ActivityRecord, error)
}

// BreakoutRepository stores breakout rooms.
type BreakoutRepository interface {
	// NextBreakoutIndex returns max(index)+1 for the session, counting
	// closed rooms.
	NextBreakoutIndex(ctx context.Context, sessionID string) (int, error)
	// CreateBreakout returns ErrDuplicate when (session, index) is taken.
	CreateBreakout(ctx context.Context, room BreakoutRoom) error
	GetBreakout(ctx context.Context, sessionID string, index int) (BreakoutRoom, error)
	UpdateBreakout(ctx context.Context, room BreakoutRoom) error
	ListOpenBreakouts(ctx context.Context, sessionID string) ([]BreakoutRoom, error)
	// ListTimedBreakouts returns open rooms across all sessions that carry a
	// closes_at deadline, ordered by deadline.
	ListTimedBreakouts(ctx context.Context) ([]BreakoutRoom, error)
}
