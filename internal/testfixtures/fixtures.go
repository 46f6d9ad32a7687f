package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/session-orchestrator/internal/persistence"
)

var (
	projectCounter  uint64
	sessionCounter  uint64
	breakoutCounter uint64
	personCounter   uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Project fixtures -----------------------------

// ProjectFixture is a deterministic project record.
type ProjectFixture struct {
	ID               string
	Title            string
	TimeZoneLabel    string
	TimeZoneName     string
	BreakoutsEnabled bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ProjectOption configures the generated project fixture.
type ProjectOption func(*ProjectFixture)

// NewProjectFixture returns a project in Eastern Time with optional overrides.
func NewProjectFixture(opts ...ProjectOption) ProjectFixture {
	idx := atomic.AddUint64(&projectCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := ProjectFixture{
		ID:            fmt.Sprintf("project-%03d", idx),
		Title:         fmt.Sprintf("Project %03d", idx),
		TimeZoneLabel: "Eastern Time",
		TimeZoneName:  "America/New_York",
		CreatedAt:     created,
		UpdatedAt:     created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithProjectID overrides the generated project ID.
func WithProjectID(id string) ProjectOption {
	return func(f *ProjectFixture) { f.ID = id }
}

// WithProjectZone sets both the display label and the IANA name.
func WithProjectZone(label, name string) ProjectOption {
	return func(f *ProjectFixture) {
		f.TimeZoneLabel = label
		f.TimeZoneName = name
	}
}

// WithProjectBreakouts toggles breakout rooms for the project.
func WithProjectBreakouts(enabled bool) ProjectOption {
	return func(f *ProjectFixture) { f.BreakoutsEnabled = enabled }
}

// Persistence materialises the fixture as a persistence.Project.
func (f ProjectFixture) Persistence() persistence.Project {
	return persistence.Project{
		ID:               f.ID,
		Title:            f.Title,
		TimeZoneLabel:    f.TimeZoneLabel,
		TimeZoneName:     f.TimeZoneName,
		BreakoutsEnabled: f.BreakoutsEnabled,
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
	}
}

// ----------------------------- Session fixtures -----------------------------

// SessionFixture is a deterministic scheduled session.
type SessionFixture struct {
	ID               string
	ProjectID        string
	Title            string
	Start            time.Time
	End              time.Time
	TimeZoneLabel    string
	BreakoutsEnabled bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SessionOption configures the generated session fixture.
type SessionOption func(*SessionFixture)

// NewSessionFixture returns a one-hour session starting a day after the
// reference time, offset by the fixture counter so sessions never overlap.
func NewSessionFixture(opts ...SessionOption) SessionFixture {
	idx := atomic.AddUint64(&sessionCounter, 1)
	start := referenceTime.Add(24*time.Hour + time.Duration(idx)*2*time.Hour)
	fixture := SessionFixture{
		ID:            fmt.Sprintf("session-%03d", idx),
		ProjectID:     "project-001",
		Title:         fmt.Sprintf("Session %03d", idx),
		Start:         start,
		End:           start.Add(time.Hour),
		TimeZoneLabel: "Eastern Time",
		CreatedAt:     referenceTime,
		UpdatedAt:     referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) SessionOption {
	return func(f *SessionFixture) { f.ID = id }
}

// WithSessionProject binds the session to a project.
func WithSessionProject(projectID string) SessionOption {
	return func(f *SessionFixture) { f.ProjectID = projectID }
}

// WithSessionInterval sets the session bounds.
func WithSessionInterval(start, end time.Time) SessionOption {
	return func(f *SessionFixture) {
		f.Start = start
		f.End = end
	}
}

// WithSessionBreakouts toggles breakout rooms for the session.
func WithSessionBreakouts(enabled bool) SessionOption {
	return func(f *SessionFixture) { f.BreakoutsEnabled = enabled }
}

// Persistence materialises the fixture as a persistence.Session.
func (f SessionFixture) Persistence() persistence.Session {
	return persistence.Session{
		ID:               f.ID,
		ProjectID:        f.ProjectID,
		Title:            f.Title,
		Start:            f.Start,
		End:              f.End,
		TimeZoneLabel:    f.TimeZoneLabel,
		BreakoutsEnabled: f.BreakoutsEnabled,
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
	}
}

// ----------------------------- Breakout fixtures -----------------------------

// BreakoutFixture is a deterministic breakout room.
type BreakoutFixture struct {
	ID        string
	SessionID string
	Index     int
	ClosesAt  *time.Time
	CreatedAt time.Time
}

// BreakoutOption configures the generated breakout fixture.
type BreakoutOption func(*BreakoutFixture)

// NewBreakoutFixture returns an untimed room with index 1.
func NewBreakoutFixture(opts ...BreakoutOption) BreakoutFixture {
	idx := atomic.AddUint64(&breakoutCounter, 1)
	fixture := BreakoutFixture{
		ID:        fmt.Sprintf("breakout-%03d", idx),
		SessionID: "session-001",
		Index:     1,
		CreatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithBreakoutSession binds the room to a session and index.
func WithBreakoutSession(sessionID string, index int) BreakoutOption {
	return func(f *BreakoutFixture) {
		f.SessionID = sessionID
		f.Index = index
	}
}

// WithBreakoutDeadline sets the automatic close time.
func WithBreakoutDeadline(at time.Time) BreakoutOption {
	return func(f *BreakoutFixture) { f.ClosesAt = &at }
}

// RoomName follows the provider naming used for breakout rooms.
func (f BreakoutFixture) RoomName() string {
	return fmt.Sprintf("session-%s-breakout-%d", f.SessionID, f.Index)
}

// Persistence materialises the fixture as a persistence.BreakoutRoom.
func (f BreakoutFixture) Persistence() persistence.BreakoutRoom {
	return persistence.BreakoutRoom{
		ID:        f.ID,
		SessionID: f.SessionID,
		Index:     f.Index,
		RoomName:  f.RoomName(),
		ClosesAt:  f.ClosesAt,
		CreatedAt: f.CreatedAt,
	}
}

// ----------------------------- Roster fixtures -----------------------------

// NewRosterEntry returns a roster entry with a generated identity.
func NewRosterEntry(role string, joinedAt time.Time) persistence.RosterEntry {
	idx := atomic.AddUint64(&personCounter, 1)
	return persistence.RosterEntry{
		ID:       fmt.Sprintf("person-%03d", idx),
		Name:     fmt.Sprintf("Person %03d", idx),
		Email:    fmt.Sprintf("person-%03d@example.com", idx),
		Role:     role,
		JoinedAt: joinedAt,
	}
}
