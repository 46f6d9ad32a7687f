package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/session-orchestrator/internal/recurrence"
	"github.com/example/session-orchestrator/internal/scheduler"
)

const maxSessionDuration = 24 * time.Hour

// ProjectReader is the project lookup the session service needs.
type ProjectReader interface {
	GetProject(ctx context.Context, id string) (Project, error)
}

// SessionService schedules sessions inside projects. Every new or edited
// interval is converted with the strict DST policy and checked for overlap
// against the project's other sessions before anything is stored. The check
// and the write hold the project lock, so concurrent writers in one project
// see each other's sessions.
type SessionService struct {
	projects    ProjectReader
	sessions    SessionRepository
	zones       *scheduler.ZoneResolver
	series      *recurrence.Engine
	idGenerator func() string
	now         func() time.Time
	locks       *keyedMutex
	logger      *slog.Logger
}

// NewSessionService wires dependencies for session scheduling.
func NewSessionService(projects ProjectReader, sessions SessionRepository, zones *scheduler.ZoneResolver, series *recurrence.Engine, idGenerator func() string, now func() time.Time, logger *slog.Logger) *SessionService {
	if zones == nil {
		zones = scheduler.DefaultZoneResolver()
	}
	if series == nil {
		series = recurrence.NewEngine(0)
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &SessionService{
		projects:    projects,
		sessions:    sessions,
		zones:       zones,
		series:      series,
		idGenerator: idGenerator,
		now:         now,
		locks:       newKeyedMutex(),
		logger:      defaultLogger(logger),
	}
}

func (s *SessionService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SessionService", operation, attrs...)
}

// CreateSessions converts, checks and stores inputs as one batch. Nothing is
// stored unless every input is valid and conflict free.
func (s *SessionService) CreateSessions(ctx context.Context, projectID string, inputs []SessionInput) (created []Session, err error) {
	logger := s.loggerWith(ctx, "CreateSessions", "project_id", projectID, "count", len(inputs))
	defer func() {
		logOutcome(ctx, logger, err, "failed to create sessions", "sessions created")
	}()

	if len(inputs) == 0 {
		err = &ValidationError{FieldErrors: map[string]string{"sessions": "at least one session is required"}}
		return
	}

	project, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	zone, err := projectZone(s.zones, project)
	if err != nil {
		return
	}

	stamp := s.now().UTC()
	created = make([]Session, 0, len(inputs))
	vErr := &ValidationError{}
	for i, input := range inputs {
		if lockErr := zoneLocked(s.zones, project, input.TimeZoneLabel); lockErr != nil {
			err = lockErr
			return nil, err
		}
		prefix := ""
		if len(inputs) > 1 {
			prefix = fmt.Sprintf("sessions[%d].", i)
		}
		start, end, title, convErr := convertSessionInput(input, zone, prefix, vErr)
		if convErr != nil {
			return nil, convErr
		}
		breakouts := project.BreakoutsEnabled
		if input.BreakoutsEnabled != nil {
			breakouts = *input.BreakoutsEnabled
		}
		created = append(created, Session{
			ID:               s.idGenerator(),
			ProjectID:        project.ID,
			Title:            title,
			Start:            start,
			End:              end,
			TimeZoneLabel:    project.TimeZoneLabel,
			BreakoutsEnabled: breakouts,
			CreatedAt:        stamp,
			UpdatedAt:        stamp,
		})
	}
	if vErr.HasErrors() {
		return nil, vErr
	}

	candidates := make([]scheduler.Interval, len(created))
	for i, session := range created {
		candidates[i] = toInterval(session)
	}
	if conflict := scheduler.CheckBatch(candidates); conflict != nil {
		return nil, conflictError(conflict)
	}

	unlock := s.locks.Lock(project.ID)
	defer unlock()
	if err = s.checkExisting(ctx, project.ID, candidates, ""); err != nil {
		return nil, err
	}
	if err = s.sessions.CreateSessions(ctx, created); err != nil {
		return nil, mapRepoError(err)
	}
	return created, nil
}

// UpdateSession edits a session in place and re-checks it against every
// other session of the project.
func (s *SessionService) UpdateSession(ctx context.Context, sessionID string, input SessionInput) (session Session, err error) {
	logger := s.loggerWith(ctx, "UpdateSession", "session_id", sessionID)
	defer func() {
		logOutcome(ctx, logger, err, "failed to update session", "session updated")
	}()

	session, project, zone, err := s.loadWithProject(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if err = zoneLocked(s.zones, project, input.TimeZoneLabel); err != nil {
		return Session{}, err
	}

	vErr := &ValidationError{}
	start, end, title, err := convertSessionInput(input, zone, "", vErr)
	if err != nil {
		return Session{}, err
	}
	if vErr.HasErrors() {
		return Session{}, vErr
	}

	session.Title = title
	session.Start = start
	session.End = end
	if input.BreakoutsEnabled != nil {
		session.BreakoutsEnabled = *input.BreakoutsEnabled
	}
	session.UpdatedAt = s.now().UTC()

	unlock := s.locks.Lock(project.ID)
	defer unlock()
	if err = s.checkExisting(ctx, project.ID, []scheduler.Interval{toInterval(session)}, session.ID); err != nil {
		return Session{}, err
	}
	if err = s.sessions.UpdateSession(ctx, session); err != nil {
		return Session{}, mapRepoError(err)
	}
	return session, nil
}

// DuplicateSession copies a session's title and duration onto another
// date. An empty date or start time keeps the source's local value, read in
// the project zone.
func (s *SessionService) DuplicateSession(ctx context.Context, sessionID, date, startTime string) (Session, error) {
	source, project, zone, err := s.loadWithProject(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}

	local := source.Start.In(zone.Location)
	if strings.TrimSpace(date) == "" {
		date = scheduler.CivilDateIn(source.Start, zone.Location).String()
	}
	if strings.TrimSpace(startTime) == "" {
		startTime = scheduler.ClockTime{Hour: local.Hour(), Minute: local.Minute()}.String()
	}

	breakouts := source.BreakoutsEnabled
	created, err := s.CreateSessions(ctx, project.ID, []SessionInput{{
		Title:            source.Title,
		Date:             date,
		StartTime:        startTime,
		DurationMinutes:  int(source.End.Sub(source.Start) / time.Minute),
		BreakoutsEnabled: &breakouts,
	}})
	if err != nil {
		return Session{}, err
	}
	return created[0], nil
}

// CreateSeries expands a daily or weekly rule into dates in the project
// zone and creates one session per date as a single batch.
func (s *SessionService) CreateSeries(ctx context.Context, projectID string, input SeriesInput) ([]Session, error) {
	vErr := &ValidationError{}
	frequency, err := recurrence.ParseFrequency(input.Frequency)
	if err != nil {
		vErr.add("frequency", "frequency must be daily or weekly")
	}
	startsOn, err := scheduler.ParseCivilDate(input.StartsOn)
	if err != nil {
		vErr.add("starts_on", "starts_on must be YYYY-MM-DD")
	}
	var endsOn *scheduler.CivilDate
	if strings.TrimSpace(input.EndsOn) != "" {
		parsed, err := scheduler.ParseCivilDate(input.EndsOn)
		if err != nil {
			vErr.add("ends_on", "ends_on must be YYYY-MM-DD")
		} else {
			endsOn = &parsed
		}
	}
	if input.Every < 0 {
		vErr.add("every", "every must not be negative")
	}
	if vErr.HasErrors() {
		return nil, vErr
	}

	dates, err := s.series.ExpandDates(recurrence.Rule{
		Frequency: frequency,
		Every:     input.Every,
		Weekdays:  input.Weekdays,
		StartsOn:  startsOn,
		EndsOn:    endsOn,
		Count:     input.Count,
	})
	if err != nil {
		switch {
		case errors.Is(err, recurrence.ErrInvalidWindow):
			vErr.add("ends_on", "series needs an end date on or after the start, or a count")
		case errors.Is(err, recurrence.ErrTooManyOccurrences):
			vErr.add("count", "series produces too many sessions")
		default:
			return nil, err
		}
		return nil, vErr
	}
	if len(dates) == 0 {
		return nil, &ValidationError{FieldErrors: map[string]string{"weekdays": "series selects no dates"}}
	}

	inputs := make([]SessionInput, len(dates))
	for i, date := range dates {
		inputs[i] = SessionInput{
			Title:           input.Title,
			Date:            date.String(),
			StartTime:       input.StartTime,
			DurationMinutes: input.DurationMinutes,
		}
	}
	return s.CreateSessions(ctx, projectID, inputs)
}

// DeleteSession removes a session. Its live runtime rows go with it.
func (s *SessionService) DeleteSession(ctx context.Context, sessionID string) (err error) {
	logger := s.loggerWith(ctx, "DeleteSession", "session_id", sessionID)
	defer func() {
		logOutcome(ctx, logger, err, "failed to delete session", "session deleted")
	}()
	err = mapRepoError(s.sessions.DeleteSession(ctx, sessionID))
	return
}

// GetSession returns one session.
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (Session, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return Session{}, mapRepoError(err)
	}
	return session, nil
}

// ListProjectSessions returns the project's sessions ordered by start.
func (s *SessionService) ListProjectSessions(ctx context.Context, projectID string) ([]Session, error) {
	if _, err := s.projects.GetProject(ctx, projectID); err != nil {
		return nil, mapRepoError(err)
	}
	sessions, err := s.sessions.ListProjectSessions(ctx, projectID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return sessions, nil
}

func (s *SessionService) loadWithProject(ctx context.Context, sessionID string) (Session, Project, scheduler.Zone, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return Session{}, Project{}, scheduler.Zone{}, mapRepoError(err)
	}
	project, err := s.projects.GetProject(ctx, session.ProjectID)
	if err != nil {
		return Session{}, Project{}, scheduler.Zone{}, mapRepoError(err)
	}
	zone, err := projectZone(s.zones, project)
	if err != nil {
		return Session{}, Project{}, scheduler.Zone{}, err
	}
	return session, project, zone, nil
}

func (s *SessionService) checkExisting(ctx context.Context, projectID string, candidates []scheduler.Interval, excludeID string) error {
	existing, err := s.sessions.ListProjectSessions(ctx, projectID)
	if err != nil {
		return mapRepoError(err)
	}
	intervals := make([]scheduler.Interval, len(existing))
	for i, session := range existing {
		intervals[i] = toInterval(session)
	}
	if conflict := scheduler.CheckAgainstExisting(candidates, intervals, excludeID); conflict != nil {
		return conflictError(conflict)
	}
	return nil
}

// convertSessionInput validates input into vErr and converts the local start
// strictly. DST rejections are returned as errors rather than recorded as
// field errors so callers see the offending window.
func convertSessionInput(input SessionInput, zone scheduler.Zone, prefix string, vErr *ValidationError) (start, end time.Time, title string, err error) {
	title = strings.TrimSpace(input.Title)
	if title == "" {
		vErr.add(prefix+"title", "title is required")
	}
	duration := time.Duration(input.DurationMinutes) * time.Minute
	if duration <= 0 || duration > maxSessionDuration {
		vErr.add(prefix+"duration_minutes", "duration must be between 1 minute and 24 hours")
	}
	date, dateErr := scheduler.ParseCivilDate(input.Date)
	if dateErr != nil {
		vErr.add(prefix+"date", "date must be YYYY-MM-DD")
	}
	clock, clockErr := scheduler.ParseClockTime(input.StartTime)
	if clockErr != nil {
		vErr.add(prefix+"start_time", "start time must be HH:mm")
	}
	if dateErr != nil || clockErr != nil {
		return
	}

	start, err = scheduler.ToInstantStrict(date, clock, zone)
	if err != nil {
		return time.Time{}, time.Time{}, "", err
	}
	start = start.UTC()
	return start, start.Add(duration), title, nil
}

func toInterval(session Session) scheduler.Interval {
	return scheduler.Interval{
		ID:    session.ID,
		Title: session.Title,
		Start: session.Start,
		End:   session.End,
	}
}

func conflictError(conflict *scheduler.Conflict) *SchedulingConflictError {
	return &SchedulingConflictError{
		Title:            conflict.Candidate.Title,
		Start:            conflict.Candidate.Start,
		End:              conflict.Candidate.End,
		ConflictingID:    conflict.Existing.ID,
		ConflictingTitle: conflict.Existing.Title,
		ConflictingStart: conflict.Existing.Start,
		ConflictingEnd:   conflict.Existing.End,
	}
}
