package sqlite

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/session-orchestrator/internal/persistence"
	"github.com/example/session-orchestrator/internal/persistence/sqlite/migration"
)

// Storage bundles the SQLite repositories over one connection pool.
type Storage struct {
	pool *ConnectionPool

	Projects     *ProjectRepository
	Sessions     *SessionRepository
	LiveSessions *LiveSessionRepository
	Activity     *ActivityRepository
	Breakouts    *BreakoutRepository
}

var (
	_ persistence.ProjectRepository     = (*ProjectRepository)(nil)
	_ persistence.SessionRepository     = (*SessionRepository)(nil)
	_ persistence.LiveSessionRepository = (*LiveSessionRepository)(nil)
	_ persistence.ActivityRepository    = (*ActivityRepository)(nil)
	_ persistence.BreakoutRepository    = (*BreakoutRepository)(nil)
)

// Open connects to the database described by config. Call Migrate before
// using the repositories against a fresh file.
func Open(config migration.SQLiteConfig) (*Storage, error) {
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}
	live, err := NewLiveSessionRepository(pool)
	if err != nil {
		_ = pool.Close()
		return nil, err
	}
	return &Storage{
		pool:         pool,
		Projects:     NewProjectRepository(pool),
		Sessions:     NewSessionRepository(pool),
		LiveSessions: live,
		Activity:     NewActivityRepository(pool),
		Breakouts:    NewBreakoutRepository(pool),
	}, nil
}

// Pool exposes the underlying connection pool.
func (s *Storage) Pool() *ConnectionPool {
	return s.pool
}

// Migrate applies pending schema migrations.
func (s *Storage) Migrate(ctx context.Context, logger *slog.Logger) error {
	if err := s.pool.Migrate(ctx, logger); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}
