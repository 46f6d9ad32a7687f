package sqlite

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/example/session-orchestrator/internal/persistence"
)

// BreakoutRepository implements persistence.BreakoutRepository using SQLite
type BreakoutRepository struct {
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewBreakoutRepository creates a new SQLite breakout repository
func NewBreakoutRepository(pool *ConnectionPool) *BreakoutRepository {
	return &BreakoutRepository{
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const breakoutColumns = `id, session_id, idx, room_name, closes_at, closed_at, recording_handle, recording_url, recording_stopped_at, created_at`

// NextBreakoutIndex returns one past the highest index ever used.
func (r *BreakoutRepository) NextBreakoutIndex(ctx context.Context, sessionID string) (int, error) {
	var next int
	err := r.helper.QueryRow(ctx,
		`SELECT COALESCE(MAX(idx), 0) + 1 FROM breakout_rooms WHERE session_id = ?`, sessionID).Scan(&next)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	return next, nil
}

// CreateBreakout inserts a room. A taken (session, index) pair maps to
// persistence.ErrDuplicate.
func (r *BreakoutRepository) CreateBreakout(ctx context.Context, room persistence.BreakoutRoom) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	query := `INSERT INTO breakout_rooms (` + breakoutColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.helper.Exec(ctx, query,
		room.ID,
		room.SessionID,
		room.Index,
		room.RoomName,
		nullableTime(room.ClosesAt),
		nullableTime(room.ClosedAt),
		nullableString(room.RecordingHandle),
		nullableString(room.RecordingURL),
		nullableTime(room.RecordingStoppedAt),
		formatTime(room.CreatedAt),
	)
	return r.mapper.MapError(err)
}

// GetBreakout retrieves a room by session and index.
func (r *BreakoutRepository) GetBreakout(ctx context.Context, sessionID string, index int) (persistence.BreakoutRoom, error) {
	row := r.helper.QueryRow(ctx,
		`SELECT `+breakoutColumns+` FROM breakout_rooms WHERE session_id = ? AND idx = ?`, sessionID, index)
	room, err := scanBreakout(row)
	if err != nil {
		return persistence.BreakoutRoom{}, r.mapper.MapError(err)
	}
	return room, nil
}

// UpdateBreakout overwrites the mutable lifecycle and recording fields.
func (r *BreakoutRepository) UpdateBreakout(ctx context.Context, room persistence.BreakoutRoom) error {
	result, err := r.helper.Exec(ctx, `
		UPDATE breakout_rooms
		SET closes_at = ?, closed_at = ?, recording_handle = ?, recording_url = ?, recording_stopped_at = ?
		WHERE session_id = ? AND idx = ?`,
		nullableTime(room.ClosesAt),
		nullableTime(room.ClosedAt),
		nullableString(room.RecordingHandle),
		nullableString(room.RecordingURL),
		nullableTime(room.RecordingStoppedAt),
		room.SessionID,
		room.Index,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return expectOneRow(result)
}

// ListOpenBreakouts returns the session's open rooms by index.
func (r *BreakoutRepository) ListOpenBreakouts(ctx context.Context, sessionID string) ([]persistence.BreakoutRoom, error) {
	return r.list(ctx,
		`SELECT `+breakoutColumns+` FROM breakout_rooms WHERE session_id = ? AND closed_at IS NULL ORDER BY idx ASC`,
		sessionID)
}

// ListTimedBreakouts returns open rooms with a deadline across all sessions.
func (r *BreakoutRepository) ListTimedBreakouts(ctx context.Context) ([]persistence.BreakoutRoom, error) {
	return r.list(ctx, `
		SELECT `+breakoutColumns+` FROM breakout_rooms
		WHERE closed_at IS NULL AND closes_at IS NOT NULL
		ORDER BY closes_at ASC, session_id ASC, idx ASC`)
}

func (r *BreakoutRepository) list(ctx context.Context, query string, args ...any) ([]persistence.BreakoutRoom, error) {
	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var rooms []persistence.BreakoutRoom
	for rows.Next() {
		room, err := scanBreakout(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return rooms, nil
}

func scanBreakout(row rowScanner) (persistence.BreakoutRoom, error) {
	var (
		room                                   persistence.BreakoutRoom
		closesAt, closedAt, recordingStoppedAt sql.NullString
		recordingHandle, recordingURL          sql.NullString
		createdAt                              string
	)
	if err := row.Scan(
		&room.ID,
		&room.SessionID,
		&room.Index,
		&room.RoomName,
		&closesAt,
		&closedAt,
		&recordingHandle,
		&recordingURL,
		&recordingStoppedAt,
		&createdAt,
	); err != nil {
		return persistence.BreakoutRoom{}, err
	}

	var err error
	if room.ClosesAt, err = parseNullableTime("closes_at", closesAt); err != nil {
		return persistence.BreakoutRoom{}, err
	}
	if room.ClosedAt, err = parseNullableTime("closed_at", closedAt); err != nil {
		return persistence.BreakoutRoom{}, err
	}
	if room.RecordingStoppedAt, err = parseNullableTime("recording_stopped_at", recordingStoppedAt); err != nil {
		return persistence.BreakoutRoom{}, err
	}
	if room.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.BreakoutRoom{}, err
	}
	room.RecordingHandle = parseNullableString(recordingHandle)
	room.RecordingURL = parseNullableString(recordingURL)
	return room, nil
}
