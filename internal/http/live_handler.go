package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/session-orchestrator/internal/application"
)

type liveSessionService interface {
	EnsureInitialized(ctx context.Context, sessionID string) (application.LiveSession, error)
	Get(ctx context.Context, sessionID string) (application.LiveSession, error)
	Start(ctx context.Context, sessionID string) (application.LiveSession, error)
	End(ctx context.Context, sessionID string) (application.LiveSession, error)
	Enqueue(ctx context.Context, sessionID string, person application.Person) (application.LiveSession, bool, error)
	Admit(ctx context.Context, sessionID, identity string) (application.LiveSession, bool, error)
	AdmitObserver(ctx context.Context, sessionID, identity string) (application.LiveSession, bool, error)
	AdmitAll(ctx context.Context, sessionID string) (application.LiveSession, []application.RosterEntry, error)
	Reject(ctx context.Context, sessionID, identity string) (application.LiveSession, bool, error)
	LogLeave(ctx context.Context, sessionID, identity string) (bool, error)
	ListActivity(ctx context.Context, sessionID string) ([]application.ActivityRecord, error)
	IssueJoinToken(ctx context.Context, sessionID string, person application.Person, breakoutIndex int) (application.JoinToken, error)
}

type LiveHandler struct {
	service   liveSessionService
	responder responder
}

func NewLiveHandler(service liveSessionService, logger *slog.Logger) *LiveHandler {
	return &LiveHandler{service: service, responder: newResponder(logger)}
}

func (h *LiveHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.snapshot(w, r, h.service.Get)
}

func (h *LiveHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.snapshot(w, r, h.service.Start)
}

func (h *LiveHandler) End(w http.ResponseWriter, r *http.Request) {
	h.snapshot(w, r, h.service.End)
}

// Enqueue initializes the live session on first contact, then places the
// caller on the rosters their role allows.
func (h *LiveHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.responder.pathValue(ctx, w, r, "id")
	if !ok {
		return
	}
	var req personRequest
	if !h.responder.decode(ctx, w, r, &req) {
		return
	}
	person, err := req.toPerson()
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, nil)
		return
	}

	if _, err := h.service.EnsureInitialized(ctx, sessionID); err != nil {
		h.responder.handleServiceError(ctx, w, err, nil)
		return
	}
	live, added, err := h.service.Enqueue(ctx, sessionID, person)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, nil)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, changeResponse{Changed: added, Live: toLiveDTO(live)})
}

// Admit admits a waiting participant, or a waiting observer when the body
// names the Observer role.
func (h *LiveHandler) Admit(w http.ResponseWriter, r *http.Request) {
	h.identityCommand(w, r, func(ctx context.Context, sessionID string, req personRequest) (application.LiveSession, bool, error) {
		if role, ok := application.ParseRole(req.Role); ok && role == application.RoleObserver {
			return h.service.AdmitObserver(ctx, sessionID, req.identity())
		}
		return h.service.Admit(ctx, sessionID, req.identity())
	})
}

func (h *LiveHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.identityCommand(w, r, func(ctx context.Context, sessionID string, req personRequest) (application.LiveSession, bool, error) {
		return h.service.Reject(ctx, sessionID, req.identity())
	})
}

func (h *LiveHandler) Leave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.responder.pathValue(ctx, w, r, "id")
	if !ok {
		return
	}
	var req personRequest
	if !h.responder.decode(ctx, w, r, &req) {
		return
	}
	closed, err := h.service.LogLeave(ctx, sessionID, req.identity())
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, nil)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, map[string]bool{"changed": closed})
}

func (h *LiveHandler) AdmitAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.responder.pathValue(ctx, w, r, "id")
	if !ok {
		return
	}
	live, admitted, err := h.service.AdmitAll(ctx, sessionID)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, nil)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, admitAllResponse{
		Admitted: toRosterDTOs(admitted),
		Live:     toLiveDTO(live),
	})
}

func (h *LiveHandler) Activity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.responder.pathValue(ctx, w, r, "id")
	if !ok {
		return
	}
	records, err := h.service.ListActivity(ctx, sessionID)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, nil)
		return
	}
	out := make([]activityDTO, 0, len(records))
	for _, record := range records {
		out = append(out, activityDTO{
			ID:        record.ID,
			Identity:  record.Identity,
			Name:      record.Name,
			Role:      string(record.Role),
			JoinTime:  record.JoinTime,
			LeaveTime: record.LeaveTime,
		})
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, map[string]any{"activity": out})
}

func (h *LiveHandler) Token(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.responder.pathValue(ctx, w, r, "id")
	if !ok {
		return
	}
	var req tokenRequest
	if !h.responder.decode(ctx, w, r, &req) {
		return
	}
	person, err := req.toPerson()
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, nil)
		return
	}

	token, err := h.service.IssueJoinToken(ctx, sessionID, person, req.BreakoutIndex)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, nil)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, tokenResponse{
		Token:    token.Token,
		Room:     token.RoomName,
		Identity: token.Identity,
	})
}

func (h *LiveHandler) snapshot(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (application.LiveSession, error)) {
	ctx := r.Context()
	sessionID, ok := h.responder.pathValue(ctx, w, r, "id")
	if !ok {
		return
	}
	live, err := fn(ctx, sessionID)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, nil)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toLiveDTO(live))
}

func (h *LiveHandler) identityCommand(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, personRequest) (application.LiveSession, bool, error)) {
	ctx := r.Context()
	sessionID, ok := h.responder.pathValue(ctx, w, r, "id")
	if !ok {
		return
	}
	var req personRequest
	if !h.responder.decode(ctx, w, r, &req) {
		return
	}
	if req.identity() == "" {
		h.responder.handleServiceError(ctx, w, &application.ValidationError{FieldErrors: map[string]string{"email": "email is required"}}, nil)
		return
	}
	live, changed, err := fn(ctx, sessionID, req)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, nil)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, changeResponse{Changed: changed, Live: toLiveDTO(live)})
}

type personRequest struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (r personRequest) identity() string {
	if r.Email != "" {
		return r.Email
	}
	return r.ID
}

func (r personRequest) toPerson() (application.Person, error) {
	role, ok := application.ParseRole(r.Role)
	if !ok {
		return application.Person{}, &application.ValidationError{FieldErrors: map[string]string{
			"role": "role must be Participant, Observer, Moderator or Admin",
		}}
	}
	return application.Person{ID: r.ID, Name: r.Name, Email: r.Email, Role: role}, nil
}

type tokenRequest struct {
	personRequest
	BreakoutIndex int `json:"breakout_index,omitempty"`
}

type tokenResponse struct {
	Token    string `json:"token"`
	Room     string `json:"room"`
	Identity string `json:"identity"`
}

type rosterDTO struct {
	ID       string    `json:"id,omitempty"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

type liveDTO struct {
	SessionID          string      `json:"session_id"`
	Ongoing            bool        `json:"ongoing"`
	StartedAt          *time.Time  `json:"started_at,omitempty"`
	EndedAt            *time.Time  `json:"ended_at,omitempty"`
	ParticipantWaiting []rosterDTO `json:"participant_waiting"`
	ObserverWaiting    []rosterDTO `json:"observer_waiting"`
	ActiveParticipants []rosterDTO `json:"active_participants"`
	ActiveObservers    []rosterDTO `json:"active_observers"`
}

type changeResponse struct {
	Changed bool    `json:"changed"`
	Live    liveDTO `json:"live"`
}

type admitAllResponse struct {
	Admitted []rosterDTO `json:"admitted"`
	Live     liveDTO     `json:"live"`
}

type activityDTO struct {
	ID        string     `json:"id"`
	Identity  string     `json:"identity"`
	Name      string     `json:"name"`
	Role      string     `json:"role"`
	JoinTime  time.Time  `json:"join_time"`
	LeaveTime *time.Time `json:"leave_time,omitempty"`
}

func toLiveDTO(live application.LiveSession) liveDTO {
	return liveDTO{
		SessionID:          live.SessionID,
		Ongoing:            live.Ongoing,
		StartedAt:          live.StartedAt,
		EndedAt:            live.EndedAt,
		ParticipantWaiting: toRosterDTOs(live.Rosters.ParticipantWaiting),
		ObserverWaiting:    toRosterDTOs(live.Rosters.ObserverWaiting),
		ActiveParticipants: toRosterDTOs(live.Rosters.ActiveParticipants),
		ActiveObservers:    toRosterDTOs(live.Rosters.ActiveObservers),
	}
}

func toRosterDTOs(entries []application.RosterEntry) []rosterDTO {
	out := make([]rosterDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, rosterDTO{
			ID:       e.ID,
			Name:     e.Name,
			Email:    e.Email,
			Role:     string(e.Role),
			JoinedAt: e.JoinedAt,
		})
	}
	return out
}
