package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/session-orchestrator/internal/application"
)

type breakoutService interface {
	Create(ctx context.Context, sessionID string, duration time.Duration) (application.BreakoutRoom, error)
	Close(ctx context.Context, sessionID string, index int) (application.BreakoutRoom, error)
	Extend(ctx context.Context, sessionID string, index, minutes int) (application.BreakoutRoom, error)
	MoveParticipant(ctx context.Context, identity, fromRoom, toRoom string) error
	ListOpen(ctx context.Context, sessionID string) ([]application.BreakoutRoom, error)
}

type BreakoutHandler struct {
	service   breakoutService
	responder responder
}

func NewBreakoutHandler(service breakoutService, logger *slog.Logger) *BreakoutHandler {
	return &BreakoutHandler{service: service, responder: newResponder(logger)}
}

func (h *BreakoutHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.responder.pathValue(ctx, w, r, "id")
	if !ok {
		return
	}
	rooms, err := h.service.ListOpen(ctx, sessionID)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, nil)
		return
	}
	out := make([]breakoutDTO, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, toBreakoutDTO(room))
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, map[string]any{"breakouts": out})
}

// Create opens a breakout room. duration_minutes is optional; zero selects
// the configured default.
func (h *BreakoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.responder.pathValue(ctx, w, r, "id")
	if !ok {
		return
	}
	var req createBreakoutRequest
	if !h.responder.decode(ctx, w, r, &req) {
		return
	}
	if req.DurationMinutes < 0 {
		h.responder.handleServiceError(ctx, w, &application.ValidationError{FieldErrors: map[string]string{
			"duration_minutes": "duration must not be negative",
		}}, nil)
		return
	}

	room, err := h.service.Create(ctx, sessionID, time.Duration(req.DurationMinutes)*time.Minute)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, nil)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusCreated, toBreakoutDTO(room))
}

func (h *BreakoutHandler) Close(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.responder.pathValue(ctx, w, r, "id")
	if !ok {
		return
	}
	index, ok := h.responder.breakoutIndex(ctx, w, r)
	if !ok {
		return
	}

	room, err := h.service.Close(ctx, sessionID, index)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, renderBreakout)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toBreakoutDTO(room))
}

func (h *BreakoutHandler) Extend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.responder.pathValue(ctx, w, r, "id")
	if !ok {
		return
	}
	index, ok := h.responder.breakoutIndex(ctx, w, r)
	if !ok {
		return
	}
	var req extendRequest
	if !h.responder.decode(ctx, w, r, &req) {
		return
	}

	room, err := h.service.Extend(ctx, sessionID, index, req.Minutes)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, nil)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toBreakoutDTO(room))
}

func (h *BreakoutHandler) Move(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req moveRequest
	if !h.responder.decode(ctx, w, r, &req) {
		return
	}
	if err := h.service.MoveParticipant(ctx, req.Identity, req.From, req.To); err != nil {
		h.responder.handleServiceError(ctx, w, err, nil)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusNoContent, nil)
}

type createBreakoutRequest struct {
	DurationMinutes int `json:"duration_minutes"`
}

type extendRequest struct {
	Minutes int `json:"minutes"`
}

type moveRequest struct {
	Identity string `json:"identity"`
	From     string `json:"from"`
	To       string `json:"to"`
}

type breakoutDTO struct {
	ID                 string     `json:"id"`
	SessionID          string     `json:"session_id"`
	Index              int        `json:"index"`
	Room               string     `json:"room"`
	ClosesAt           *time.Time `json:"closes_at,omitempty"`
	ClosedAt           *time.Time `json:"closed_at,omitempty"`
	RecordingURL       *string    `json:"recording_url,omitempty"`
	RecordingStoppedAt *time.Time `json:"recording_stopped_at,omitempty"`
}

func toBreakoutDTO(room application.BreakoutRoom) breakoutDTO {
	return breakoutDTO{
		ID:                 room.ID,
		SessionID:          room.SessionID,
		Index:              room.Index,
		Room:               room.RoomName,
		ClosesAt:           room.ClosesAt,
		ClosedAt:           room.ClosedAt,
		RecordingURL:       room.RecordingURL,
		RecordingStoppedAt: room.RecordingStoppedAt,
	}
}

func renderBreakout(result any) any {
	if room, ok := result.(application.BreakoutRoom); ok {
		return toBreakoutDTO(room)
	}
	return result
}
