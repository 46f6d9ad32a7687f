package sqlite

import (
	"context"
	"fmt"

	"github.com/example/session-orchestrator/internal/persistence"
)

// ProjectRepository implements persistence.ProjectRepository using SQLite
type ProjectRepository struct {
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewProjectRepository creates a new SQLite project repository
func NewProjectRepository(pool *ConnectionPool) *ProjectRepository {
	return &ProjectRepository{
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const projectColumns = `id, title, timezone_label, timezone_name, breakouts_enabled, created_at, updated_at`

// CreateProject inserts a new project.
func (r *ProjectRepository) CreateProject(ctx context.Context, project persistence.Project) error {
	if project.ID == "" {
		return persistence.ErrConstraintViolation
	}

	query := `INSERT INTO projects (` + projectColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.helper.Exec(ctx, query,
		project.ID,
		project.Title,
		project.TimeZoneLabel,
		project.TimeZoneName,
		boolToInt(project.BreakoutsEnabled),
		formatTime(project.CreatedAt),
		formatTime(project.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateProject overwrites the mutable project fields.
func (r *ProjectRepository) UpdateProject(ctx context.Context, project persistence.Project) error {
	query := `
		UPDATE projects
		SET title = ?, timezone_label = ?, timezone_name = ?, breakouts_enabled = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.helper.Exec(ctx, query,
		project.Title,
		project.TimeZoneLabel,
		project.TimeZoneName,
		boolToInt(project.BreakoutsEnabled),
		formatTime(project.UpdatedAt),
		project.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return expectOneRow(result)
}

// GetProject retrieves a project by ID.
func (r *ProjectRepository) GetProject(ctx context.Context, id string) (persistence.Project, error) {
	if id == "" {
		return persistence.Project{}, persistence.ErrNotFound
	}
	row := r.helper.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	project, err := scanProject(row)
	if err != nil {
		return persistence.Project{}, r.mapper.MapError(err)
	}
	return project, nil
}

// ListProjects returns every project ordered by creation time then ID.
func (r *ProjectRepository) ListProjects(ctx context.Context) ([]persistence.Project, error) {
	rows, err := r.helper.Query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var projects []persistence.Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return projects, nil
}

func scanProject(row rowScanner) (persistence.Project, error) {
	var (
		project              persistence.Project
		breakouts            int
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&project.ID,
		&project.Title,
		&project.TimeZoneLabel,
		&project.TimeZoneName,
		&breakouts,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Project{}, err
	}
	project.BreakoutsEnabled = breakouts != 0

	var err error
	if project.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Project{}, err
	}
	if project.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Project{}, fmt.Errorf("project %s: %w", project.ID, err)
	}
	return project, nil
}
