package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/session-orchestrator/internal/application"
)

type projectService interface {
	CreateProject(ctx context.Context, input application.ProjectInput) (application.Project, error)
	UpdateProject(ctx context.Context, projectID string, input application.ProjectInput) (application.Project, error)
	GetProject(ctx context.Context, projectID string) (application.Project, error)
}

type ProjectHandler struct {
	service   projectService
	responder responder
}

func NewProjectHandler(service projectService, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{service: service, responder: newResponder(logger)}
}

func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req projectRequest
	if !h.responder.decode(ctx, w, r, &req) {
		return
	}

	project, err := h.service.CreateProject(ctx, req.toInput())
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, nil)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusCreated, toProjectDTO(project))
}

func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID, ok := h.responder.pathValue(ctx, w, r, "id")
	if !ok {
		return
	}
	var req projectRequest
	if !h.responder.decode(ctx, w, r, &req) {
		return
	}

	project, err := h.service.UpdateProject(ctx, projectID, req.toInput())
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, nil)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toProjectDTO(project))
}

func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID, ok := h.responder.pathValue(ctx, w, r, "id")
	if !ok {
		return
	}
	project, err := h.service.GetProject(ctx, projectID)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, nil)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toProjectDTO(project))
}

type projectRequest struct {
	Title            string `json:"title"`
	TimeZone         string `json:"time_zone"`
	BreakoutsEnabled bool   `json:"breakouts_enabled"`
}

func (r projectRequest) toInput() application.ProjectInput {
	return application.ProjectInput{
		Title:            r.Title,
		TimeZoneLabel:    r.TimeZone,
		BreakoutsEnabled: r.BreakoutsEnabled,
	}
}

type projectDTO struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	TimeZone         string    `json:"time_zone"`
	TimeZoneName     string    `json:"time_zone_name"`
	BreakoutsEnabled bool      `json:"breakouts_enabled"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toProjectDTO(p application.Project) projectDTO {
	return projectDTO{
		ID:               p.ID,
		Title:            p.Title,
		TimeZone:         p.TimeZoneLabel,
		TimeZoneName:     p.TimeZoneName,
		BreakoutsEnabled: p.BreakoutsEnabled,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}
