package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/session-orchestrator/internal/persistence"
	"github.com/example/session-orchestrator/internal/scheduler"
)

// ProjectService manages projects and their locked time zone.
type ProjectService struct {
	projects    ProjectRepository
	zones       *scheduler.ZoneResolver
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewProjectService constructs a project service. A nil resolver selects
// the built-in label table.
func NewProjectService(projects ProjectRepository, zones *scheduler.ZoneResolver, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ProjectService {
	if zones == nil {
		zones = scheduler.DefaultZoneResolver()
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ProjectService{
		projects:    projects,
		zones:       zones,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *ProjectService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ProjectService", operation, attrs...)
}

// CreateProject resolves the zone label once and stores both the label and
// the canonical zone.
func (s *ProjectService) CreateProject(ctx context.Context, input ProjectInput) (project Project, err error) {
	if s == nil {
		err = fmt.Errorf("ProjectService is nil")
		return
	}
	logger := s.loggerWith(ctx, "CreateProject")
	defer func() {
		logOutcome(ctx, logger.With("project_id", project.ID), err, "failed to create project", "project created")
	}()

	vErr := &ValidationError{}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		vErr.add("title", "title is required")
	}
	label := strings.TrimSpace(input.TimeZoneLabel)
	if label == "" {
		vErr.add("time_zone", "time zone is required")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	zone, zErr := s.zones.Resolve(label)
	if zErr != nil {
		err = fmt.Errorf("%w: %q", ErrInvalidTimeZone, label)
		return
	}

	created := s.now().UTC()
	project = Project{
		ID:               s.idGenerator(),
		Title:            title,
		TimeZoneLabel:    label,
		TimeZoneName:     zone.Name,
		BreakoutsEnabled: input.BreakoutsEnabled,
		CreatedAt:        created,
		UpdatedAt:        created,
	}
	if err = s.projects.CreateProject(ctx, project); err != nil {
		err = mapRepoError(err)
		project = Project{}
	}
	return
}

// UpdateProject changes the title and breakout flag. A label that names a
// different zone than the project's fails with ErrTimeZoneLocked.
func (s *ProjectService) UpdateProject(ctx context.Context, projectID string, input ProjectInput) (project Project, err error) {
	logger := s.loggerWith(ctx, "UpdateProject", "project_id", projectID)
	defer func() {
		logOutcome(ctx, logger, err, "failed to update project", "project updated")
	}()

	project, err = s.projects.GetProject(ctx, projectID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	if err = s.checkZoneLock(project, input.TimeZoneLabel); err != nil {
		return
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		err = &ValidationError{FieldErrors: map[string]string{"title": "title is required"}}
		return
	}

	project.Title = title
	project.BreakoutsEnabled = input.BreakoutsEnabled
	project.UpdatedAt = s.now().UTC()
	if err = s.projects.UpdateProject(ctx, project); err != nil {
		err = mapRepoError(err)
	}
	return
}

// GetProject returns one project.
func (s *ProjectService) GetProject(ctx context.Context, projectID string) (Project, error) {
	project, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return Project{}, mapRepoError(err)
	}
	return project, nil
}

// ListProjects returns every project.
func (s *ProjectService) ListProjects(ctx context.Context) ([]Project, error) {
	projects, err := s.projects.ListProjects(ctx)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return projects, nil
}

func (s *ProjectService) checkZoneLock(project Project, label string) error {
	return zoneLocked(s.zones, project, label)
}

// zoneLocked accepts an empty label, the project's own label, or any label
// that resolves to the project's zone.
func zoneLocked(zones *scheduler.ZoneResolver, project Project, label string) error {
	label = strings.TrimSpace(label)
	if label == "" || label == project.TimeZoneLabel {
		return nil
	}
	if zone, err := zones.Resolve(label); err == nil && zone.Name == project.TimeZoneName {
		return nil
	}
	return fmt.Errorf("%w: project %s uses %q", ErrTimeZoneLocked, project.ID, project.TimeZoneLabel)
}

// projectZone resolves the zone a project's sessions are anchored to.
func projectZone(zones *scheduler.ZoneResolver, project Project) (scheduler.Zone, error) {
	if zone, err := zones.Resolve(project.TimeZoneLabel); err == nil {
		return zone, nil
	}
	zone, err := zones.Resolve(project.TimeZoneName)
	if err != nil {
		return scheduler.Zone{}, fmt.Errorf("%w: project %s has unresolvable zone %q", ErrInvalidTimeZone, project.ID, project.TimeZoneLabel)
	}
	return zone, nil
}

func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return err
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrConstraintViolation):
		vErr := &ValidationError{}
		vErr.add("interval", "start must be before end")
		return vErr
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return ErrNotFound
	}
	return err
}
