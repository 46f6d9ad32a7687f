package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/example/session-orchestrator/internal/persistence"
)

// ActivityRepository implements persistence.ActivityRepository using SQLite.
// Record IDs are ULIDs so primary key order follows join order.
type ActivityRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewActivityRepository creates a new SQLite activity repository
func NewActivityRepository(pool *ConnectionPool) *ActivityRepository {
	return &ActivityRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// AppendActivity stores a join record, assigning an ID when empty.
func (r *ActivityRepository) AppendActivity(ctx context.Context, record persistence.ActivityRecord) error {
	if record.ID == "" {
		record.ID = ulid.Make().String()
	}
	query := `
		INSERT INTO session_activity (id, session_id, identity, name, role, join_time, leave_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.helper.Exec(ctx, query,
		record.ID,
		record.SessionID,
		record.Identity,
		record.Name,
		record.Role,
		formatTime(record.JoinTime),
		nullableTime(record.LeaveTime),
	)
	return r.mapper.MapError(err)
}

// CloseLatestActivity sets leave_time on the newest open record.
func (r *ActivityRepository) CloseLatestActivity(ctx context.Context, sessionID, identity string, leave time.Time) (bool, error) {
	var closed bool
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM session_activity
			WHERE session_id = ? AND identity = ? AND leave_time IS NULL
			ORDER BY join_time DESC, id DESC
			LIMIT 1`, sessionID, identity).Scan(&id)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE session_activity SET leave_time = ? WHERE id = ?`, formatTime(leave), id); err != nil {
			return err
		}
		closed = true
		return nil
	})
	if err != nil {
		return false, r.mapper.MapError(err)
	}
	return closed, nil
}

// ListActivity returns the session log ordered by join time.
func (r *ActivityRepository) ListActivity(ctx context.Context, sessionID string) ([]persistence.ActivityRecord, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT id, session_id, identity, name, role, join_time, leave_time
		FROM session_activity
		WHERE session_id = ?
		ORDER BY join_time ASC, id ASC`, sessionID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var records []persistence.ActivityRecord
	for rows.Next() {
		var (
			record persistence.ActivityRecord
			join   string
			leave  sql.NullString
		)
		if err := rows.Scan(&record.ID, &record.SessionID, &record.Identity, &record.Name, &record.Role, &join, &leave); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if record.JoinTime, err = parseTime("join_time", join); err != nil {
			return nil, err
		}
		if record.LeaveTime, err = parseNullableTime("leave_time", leave); err != nil {
			return nil, fmt.Errorf("activity %s: %w", record.ID, err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return records, nil
}
