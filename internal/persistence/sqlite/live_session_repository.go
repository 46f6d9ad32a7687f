package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/example/session-orchestrator/internal/persistence"
)

// maxVersionRetries bounds optimistic retries in MutateLiveSession.
const maxVersionRetries = 5

var errVersionConflict = errors.New("live session version changed")

// LiveSessionRepository implements persistence.LiveSessionRepository using
// SQLite. Rosters are stored as one deterministic CBOR document per session.
type LiveSessionRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	enc    cbor.EncMode
	dec    cbor.DecMode
}

// NewLiveSessionRepository creates a new SQLite live session repository
func NewLiveSessionRepository(pool *ConnectionPool) (*LiveSessionRepository, error) {
	encOpts := cbor.CoreDetEncOptions()
	encOpts.Time = cbor.TimeRFC3339Nano
	enc, err := encOpts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to build roster encoder: %w", err)
	}
	dec, err := cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("failed to build roster decoder: %w", err)
	}
	return &LiveSessionRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		enc:    enc,
		dec:    dec,
	}, nil
}

const liveSessionColumns = `session_id, ongoing, started_at, ended_at, rosters, version, created_at, updated_at`

// EnsureLiveSession inserts an empty record unless one exists.
func (r *LiveSessionRepository) EnsureLiveSession(ctx context.Context, sessionID string, now time.Time) (persistence.LiveSession, bool, error) {
	empty, err := r.enc.Marshal(persistence.Rosters{})
	if err != nil {
		return persistence.LiveSession{}, false, fmt.Errorf("failed to encode rosters: %w", err)
	}

	query := `
		INSERT INTO live_sessions (session_id, ongoing, rosters, version, created_at, updated_at)
		VALUES (?, 0, ?, 0, ?, ?)
		ON CONFLICT(session_id) DO NOTHING
	`
	stamp := formatTime(now)
	result, err := r.helper.Exec(ctx, query, sessionID, empty, stamp, stamp)
	if err != nil {
		return persistence.LiveSession{}, false, r.mapper.MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.LiveSession{}, false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	live, err := r.GetLiveSession(ctx, sessionID)
	if err != nil {
		return persistence.LiveSession{}, false, err
	}
	return live, affected == 1, nil
}

// GetLiveSession retrieves the live record for sessionID.
func (r *LiveSessionRepository) GetLiveSession(ctx context.Context, sessionID string) (persistence.LiveSession, error) {
	row := r.helper.QueryRow(ctx, `SELECT `+liveSessionColumns+` FROM live_sessions WHERE session_id = ?`, sessionID)
	live, err := r.scan(row)
	if err != nil {
		return persistence.LiveSession{}, r.mapper.MapError(err)
	}
	return live, nil
}

// MutateLiveSession reads the record, applies fn and writes it back when the
// stored version is unchanged. Version conflicts are retried.
func (r *LiveSessionRepository) MutateLiveSession(ctx context.Context, sessionID string, now time.Time, fn persistence.LiveSessionMutation) (persistence.LiveSession, error) {
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		var updated persistence.LiveSession
		err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			row := tx.QueryRowContext(ctx, `SELECT `+liveSessionColumns+` FROM live_sessions WHERE session_id = ?`, sessionID)
			live, err := r.scan(row)
			if err != nil {
				return err
			}

			if err := fn(&live); err != nil {
				return err
			}
			rosters, err := r.enc.Marshal(live.Rosters)
			if err != nil {
				return fmt.Errorf("failed to encode rosters: %w", err)
			}

			result, err := tx.ExecContext(ctx, `
				UPDATE live_sessions
				SET ongoing = ?, started_at = ?, ended_at = ?, rosters = ?, version = version + 1, updated_at = ?
				WHERE session_id = ? AND version = ?`,
				boolToInt(live.Ongoing),
				nullableTime(live.StartedAt),
				nullableTime(live.EndedAt),
				rosters,
				formatTime(now),
				sessionID,
				live.Version,
			)
			if err != nil {
				return err
			}
			if affected, err := result.RowsAffected(); err != nil {
				return err
			} else if affected == 0 {
				return errVersionConflict
			}

			live.Version++
			live.UpdatedAt = now.UTC()
			updated = live
			return nil
		})
		if errors.Is(err, errVersionConflict) {
			continue
		}
		if err != nil {
			return persistence.LiveSession{}, r.mapper.MapError(err)
		}
		return updated, nil
	}
	return persistence.LiveSession{}, fmt.Errorf("%w: live session %s", persistence.ErrConcurrentUpdate, sessionID)
}

func (r *LiveSessionRepository) scan(row rowScanner) (persistence.LiveSession, error) {
	var (
		live                 persistence.LiveSession
		ongoing              int
		startedAt, endedAt   sql.NullString
		rosters              []byte
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&live.SessionID,
		&ongoing,
		&startedAt,
		&endedAt,
		&rosters,
		&live.Version,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.LiveSession{}, err
	}
	live.Ongoing = ongoing != 0

	if err := r.dec.Unmarshal(rosters, &live.Rosters); err != nil {
		return persistence.LiveSession{}, fmt.Errorf("failed to decode rosters of %s: %w", live.SessionID, err)
	}

	var err error
	if live.StartedAt, err = parseNullableTime("started_at", startedAt); err != nil {
		return persistence.LiveSession{}, err
	}
	if live.EndedAt, err = parseNullableTime("ended_at", endedAt); err != nil {
		return persistence.LiveSession{}, err
	}
	if live.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.LiveSession{}, err
	}
	if live.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.LiveSession{}, err
	}
	return live, nil
}
