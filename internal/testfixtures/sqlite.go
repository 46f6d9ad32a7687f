package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/session-orchestrator/internal/persistence"
	"github.com/example/session-orchestrator/internal/persistence/sqlite"
	"github.com/example/session-orchestrator/internal/persistence/sqlite/migration"
)

// SQLiteHarness provides repository access backed by a temporary, migrated
// SQLite database.
type SQLiteHarness struct {
	Projects     persistence.ProjectRepository
	Sessions     persistence.SessionRepository
	LiveSessions persistence.LiveSessionRepository
	Activity     persistence.ActivityRepository
	Breakouts    persistence.BreakoutRepository

	Storage *sqlite.Storage
	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens and migrates a database under tb.TempDir. Close is
// also registered with tb.Cleanup.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "orchestrator.db")
	storage, err := sqlite.Open(migration.TempFileTestSQLiteConfig(path))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if err := storage.Migrate(context.Background(), nil); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Projects:     storage.Projects,
		Sessions:     storage.Sessions,
		LiveSessions: storage.LiveSessions,
		Activity:     storage.Activity,
		Breakouts:    storage.Breakouts,
		Storage:      storage,
		cleanup: func() {
			_ = storage.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// SeedSession inserts the project and session so live runtime rows satisfy
// their foreign keys.
func (h *SQLiteHarness) SeedSession(tb testing.TB, project ProjectFixture, session SessionFixture) {
	tb.Helper()
	ctx := context.Background()

	if err := h.Projects.CreateProject(ctx, project.Persistence()); err != nil {
		tb.Fatalf("failed to seed project: %v", err)
	}
	session.ProjectID = project.ID
	if err := h.Sessions.CreateSessions(ctx, []persistence.Session{session.Persistence()}); err != nil {
		tb.Fatalf("failed to seed session: %v", err)
	}
}
