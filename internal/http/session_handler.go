package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/session-orchestrator/internal/application"
)

type sessionService interface {
	CreateSessions(ctx context.Context, projectID string, inputs []application.SessionInput) ([]application.Session, error)
	UpdateSession(ctx context.Context, sessionID string, input application.SessionInput) (application.Session, error)
	DuplicateSession(ctx context.Context, sessionID, date, startTime string) (application.Session, error)
	CreateSeries(ctx context.Context, projectID string, input application.SeriesInput) ([]application.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	GetSession(ctx context.Context, sessionID string) (application.Session, error)
	ListProjectSessions(ctx context.Context, projectID string) ([]application.Session, error)
}

type SessionHandler struct {
	service   sessionService
	responder responder
}

func NewSessionHandler(service sessionService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{service: service, responder: newResponder(logger)}
}

// Create accepts either a single session object or {"sessions": [...]}.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID, ok := h.responder.pathValue(ctx, w, r, "id")
	if !ok {
		return
	}
	var req createSessionsRequest
	if !h.responder.decode(ctx, w, r, &req) {
		return
	}

	inputs := make([]application.SessionInput, 0, len(req.Sessions)+1)
	if len(req.Sessions) == 0 {
		inputs = append(inputs, req.sessionRequest.toInput())
	}
	for _, s := range req.Sessions {
		inputs = append(inputs, s.toInput())
	}

	sessions, err := h.service.CreateSessions(ctx, projectID, inputs)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, nil)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusCreated, sessionsResponse{Sessions: toSessionDTOs(sessions)})
}

func (h *SessionHandler) CreateSeries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID, ok := h.responder.pathValue(ctx, w, r, "id")
	if !ok {
		return
	}
	var req seriesRequest
	if !h.responder.decode(ctx, w, r, &req) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, nil)
		return
	}

	sessions, err := h.service.CreateSeries(ctx, projectID, input)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, nil)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusCreated, sessionsResponse{Sessions: toSessionDTOs(sessions)})
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID, ok := h.responder.pathValue(ctx, w, r, "id")
	if !ok {
		return
	}
	sessions, err := h.service.ListProjectSessions(ctx, projectID)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, nil)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, sessionsResponse{Sessions: toSessionDTOs(sessions)})
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.responder.pathValue(ctx, w, r, "id")
	if !ok {
		return
	}
	session, err := h.service.GetSession(ctx, sessionID)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, nil)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toSessionDTO(session))
}

func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.responder.pathValue(ctx, w, r, "id")
	if !ok {
		return
	}
	var req sessionRequest
	if !h.responder.decode(ctx, w, r, &req) {
		return
	}

	session, err := h.service.UpdateSession(ctx, sessionID, req.toInput())
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, nil)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toSessionDTO(session))
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.responder.pathValue(ctx, w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteSession(ctx, sessionID); err != nil {
		h.responder.handleServiceError(ctx, w, err, nil)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusNoContent, nil)
}

func (h *SessionHandler) Duplicate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.responder.pathValue(ctx, w, r, "id")
	if !ok {
		return
	}
	var req duplicateRequest
	if !h.responder.decode(ctx, w, r, &req) {
		return
	}

	session, err := h.service.DuplicateSession(ctx, sessionID, req.Date, req.StartTime)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, nil)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusCreated, toSessionDTO(session))
}

type sessionRequest struct {
	Title            string `json:"title"`
	Date             string `json:"date"`
	StartTime        string `json:"start_time"`
	DurationMinutes  int    `json:"duration_minutes"`
	TimeZone         string `json:"time_zone,omitempty"`
	BreakoutsEnabled *bool  `json:"breakouts_enabled,omitempty"`
}

func (r sessionRequest) toInput() application.SessionInput {
	return application.SessionInput{
		Title:            r.Title,
		Date:             r.Date,
		StartTime:        r.StartTime,
		DurationMinutes:  r.DurationMinutes,
		TimeZoneLabel:    r.TimeZone,
		BreakoutsEnabled: r.BreakoutsEnabled,
	}
}

type createSessionsRequest struct {
	sessionRequest
	Sessions []sessionRequest `json:"sessions"`
}

type duplicateRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
}

type seriesRequest struct {
	Title           string   `json:"title"`
	Frequency       string   `json:"frequency"`
	Every           int      `json:"every"`
	Weekdays        []string `json:"weekdays"`
	StartsOn        string   `json:"starts_on"`
	EndsOn          string   `json:"ends_on"`
	Count           int      `json:"count"`
	StartTime       string   `json:"start_time"`
	DurationMinutes int      `json:"duration_minutes"`
}

func (r seriesRequest) toInput() (application.SeriesInput, error) {
	weekdays := make([]time.Weekday, 0, len(r.Weekdays))
	for i, name := range r.Weekdays {
		day, ok := parseWeekday(name)
		if !ok {
			return application.SeriesInput{}, &application.ValidationError{FieldErrors: map[string]string{
				fmt.Sprintf("weekdays[%d]", i): "unknown weekday " + name,
			}}
		}
		weekdays = append(weekdays, day)
	}
	return application.SeriesInput{
		Title:           r.Title,
		Frequency:       r.Frequency,
		Every:           r.Every,
		Weekdays:        weekdays,
		StartsOn:        r.StartsOn,
		EndsOn:          r.EndsOn,
		Count:           r.Count,
		StartTime:       r.StartTime,
		DurationMinutes: r.DurationMinutes,
	}, nil
}

func parseWeekday(name string) (time.Weekday, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for day := time.Sunday; day <= time.Saturday; day++ {
		full := strings.ToLower(day.String())
		if name == full || name == full[:3] {
			return day, true
		}
	}
	return 0, false
}

type sessionDTO struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id"`
	Title            string    `json:"title"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	TimeZone         string    `json:"time_zone"`
	BreakoutsEnabled bool      `json:"breakouts_enabled"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type sessionsResponse struct {
	Sessions []sessionDTO `json:"sessions"`
}

func toSessionDTO(s application.Session) sessionDTO {
	return sessionDTO{
		ID:               s.ID,
		ProjectID:        s.ProjectID,
		Title:            s.Title,
		Start:            s.Start.UTC(),
		End:              s.End.UTC(),
		TimeZone:         s.TimeZoneLabel,
		BreakoutsEnabled: s.BreakoutsEnabled,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

func toSessionDTOs(sessions []application.Session) []sessionDTO {
	out := make([]sessionDTO, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionDTO(s))
	}
	return out
}
