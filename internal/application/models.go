package application

import (
	"strings"
	"time"
)

// Role is the closed set of live session roles.
type Role string

const (
	RoleParticipant Role = "Participant"
	RoleObserver    Role = "Observer"
	RoleModerator   Role = "Moderator"
	RoleAdmin       Role = "Admin"
)

// ParseRole accepts a role name case-insensitively.
func ParseRole(value string) (Role, bool) {
	for _, role := range []Role{RoleParticipant, RoleObserver, RoleModerator, RoleAdmin} {
		if strings.EqualFold(strings.TrimSpace(value), string(role)) {
			return role, true
		}
	}
	return "", false
}

// Project groups sessions under one locked time zone.
type Project struct {
	ID               string
	Title            string
	TimeZoneLabel    string
	TimeZoneName     string
	BreakoutsEnabled bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ProjectInput captures caller provided project fields.
type ProjectInput struct {
	Title            string
	TimeZoneLabel    string
	BreakoutsEnabled bool
}

// Session is a scheduled [Start, End) interval inside a project.
type Session struct {
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

// SessionInput describes one session in the project's local time.
type SessionInput struct {
	Title           string
	Date            string // YYYY-MM-DD in the project zone
	StartTime       string // HH:mm in the project zone
	DurationMinutes int
	// TimeZoneLabel is optional; when set it must match the project's label.
	TimeZoneLabel    string
	BreakoutsEnabled *bool
}

// SeriesInput describes a recurring set of sessions.
type SeriesInput struct {
	Title           string
	Frequency       string // daily or weekly
	Every           int
	Weekdays        []time.Weekday
	StartsOn        string
	EndsOn          string
	Count           int
	StartTime       string
	DurationMinutes int
}

// Person identifies someone joining a live session.
type Person struct {
	ID    string
	Name  string
	Email string
	Role  Role
}

// Key is the roster identity: the lower-cased email, falling back to ID.
func (p Person) Key() string {
	if key := normalizeIdentity(p.Email); key != "" {
		return key
	}
	return normalizeIdentity(p.ID)
}

// RosterEntry is one person on a live session roster.
type RosterEntry struct {
	ID       string
	Name     string
	Email    string
	Role     Role
	JoinedAt time.Time
}

// Key returns the entry's roster identity.
func (e RosterEntry) Key() string {
	return Person{ID: e.ID, Email: e.Email}.Key()
}

// Rosters holds the four lists of a live session.
type Rosters struct {
	ParticipantWaiting []RosterEntry
	ObserverWaiting    []RosterEntry
	ActiveParticipants []RosterEntry
	ActiveObservers    []RosterEntry
}

// LiveSession is the runtime record of a scheduled session.
type LiveSession struct {
	SessionID string
	Ongoing   bool
	StartedAt *time.Time
	EndedAt   *time.Time
	Rosters   Rosters
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ActivityRecord is one join, optionally closed by a leave.
type ActivityRecord struct {
	ID        string
	SessionID string
	Identity  string
	Name      string
	Role      Role
	JoinTime  time.Time
	LeaveTime *time.Time
}

// BreakoutRoom is a sub-room spawned from a session's main room.
type BreakoutRoom struct {
	ID                 string
	SessionID          string
	Index              int
	RoomName           string
	ClosesAt           *time.Time
	ClosedAt           *time.Time
	RecordingHandle    *string
	RecordingURL       *string
	RecordingStoppedAt *time.Time
	CreatedAt          time.Time
}

// Open reports whether the room has not been closed.
func (b BreakoutRoom) Open() bool {
	return b.ClosedAt == nil
}

// JoinToken is an access token for a provider room.
type JoinToken struct {
	Token    string
	RoomName string
	Identity string
}

func normalizeIdentity(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
