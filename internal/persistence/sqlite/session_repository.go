package sqlite

import (
	"context"
	"database/sql"

	"github.com/example/session-orchestrator/internal/persistence"
)

// SessionRepository implements persistence.SessionRepository using SQLite
type SessionRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewSessionRepository creates a new SQLite session repository
func NewSessionRepository(pool *ConnectionPool) *SessionRepository {
	return &SessionRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const sessionColumns = `id, project_id, title, start_time, end_time, timezone_label, breakouts_enabled, created_at, updated_at`

// CreateSessions inserts the batch in one transaction.
func (r *SessionRepository) CreateSessions(ctx context.Context, sessions []persistence.Session) error {
	if len(sessions) == 0 {
		return nil
	}
	for _, session := range sessions {
		if session.ID == "" || session.ProjectID == "" {
			return persistence.ErrConstraintViolation
		}
	}

	query := `INSERT INTO sessions (` + sessionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, session := range sessions {
			if _, err := stmt.ExecContext(ctx,
				session.ID,
				session.ProjectID,
				session.Title,
				formatTime(session.Start),
				formatTime(session.End),
				session.TimeZoneLabel,
				boolToInt(session.BreakoutsEnabled),
				formatTime(session.CreatedAt),
				formatTime(session.UpdatedAt),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateSession overwrites title, interval and flags.
func (r *SessionRepository) UpdateSession(ctx context.Context, session persistence.Session) error {
	query := `
		UPDATE sessions
		SET title = ?, start_time = ?, end_time = ?, timezone_label = ?, breakouts_enabled = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.helper.Exec(ctx, query,
		session.Title,
		formatTime(session.Start),
		formatTime(session.End),
		session.TimeZoneLabel,
		boolToInt(session.BreakoutsEnabled),
		formatTime(session.UpdatedAt),
		session.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return expectOneRow(result)
}

// GetSession retrieves a session by ID.
func (r *SessionRepository) GetSession(ctx context.Context, id string) (persistence.Session, error) {
	if id == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}
	session, err := scanSession(r.helper.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}
	return session, nil
}

// ListProjectSessions returns the project's sessions ordered by start.
func (r *SessionRepository) ListProjectSessions(ctx context.Context, projectID string) ([]persistence.Session, error) {
	rows, err := r.helper.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE project_id = ? ORDER BY start_time ASC, id ASC`, projectID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var sessions []persistence.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return sessions, nil
}

// DeleteSession removes a session; live runtime rows cascade.
func (r *SessionRepository) DeleteSession(ctx context.Context, id string) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return expectOneRow(result)
}

func scanSession(row rowScanner) (persistence.Session, error) {
	var (
		session                          persistence.Session
		start, end, createdAt, updatedAt string
		breakouts                        int
	)
	if err := row.Scan(
		&session.ID,
		&session.ProjectID,
		&session.Title,
		&start,
		&end,
		&session.TimeZoneLabel,
		&breakouts,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Session{}, err
	}
	session.BreakoutsEnabled = breakouts != 0

	var err error
	if session.Start, err = parseTime("start_time", start); err != nil {
		return persistence.Session{}, err
	}
	if session.End, err = parseTime("end_time", end); err != nil {
		return persistence.Session{}, err
	}
	if session.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Session{}, err
	}
	if session.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Session{}, err
	}
	return session, nil
}
