package persistence

import "time"

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

// Session is a scheduled interval inside a project.
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

// RosterEntry is one person on a live session roster.
type RosterEntry struct {
	ID       string    `cbor:"1,keyasint,omitempty"`
	Name     string    `cbor:"2,keyasint"`
	Email    string    `cbor:"3,keyasint"`
	Role     string    `cbor:"4,keyasint"`
	JoinedAt time.Time `cbor:"5,keyasint"`
}

// Rosters holds the four ordered lists of a live session.
type Rosters struct {
	ParticipantWaiting []RosterEntry `cbor:"1,keyasint,omitempty"`
	ObserverWaiting    []RosterEntry `cbor:"2,keyasint,omitempty"`
	ActiveParticipants []RosterEntry `cbor:"3,keyasint,omitempty"`
	ActiveObservers    []RosterEntry `cbor:"4,keyasint,omitempty"`
}

// LiveSession is the runtime record of a session.
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
	Role      string
	JoinTime  time.Time
	LeaveTime *time.Time
}

// BreakoutRoom is a sub-room bound to a session.
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
