package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/session-orchestrator/internal/application"
	"github.com/example/session-orchestrator/internal/scheduler"
)

var (
	errBadRequestBody     = errors.New("invalid request body")
	errInvalidIndex       = errors.New("breakout index must be a positive integer")
	errMissingPathSegment = errors.New("missing resource identifier")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: defaultLogger(logger)}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// handleServiceError maps service errors onto status codes. A partial
// failure is not an error for the caller: the primary effect happened, so
// the result is rendered with partial=true.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error, render func(result any) any) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	kind := application.ErrorKind(err)
	logger := r.loggerFor(ctx)

	var (
		partial   *application.PartialFailureError
		vErr      *application.ValidationError
		localErr  *scheduler.LocalTimeError
		conflict  *application.SchedulingConflictError
		providerErr *application.ProviderError
	)
	switch {
	case errors.As(err, &partial):
		logger.WarnContext(ctx, "request partially completed", "error_kind", kind, "failures", partial.Failures)
		body := map[string]any{"partial": true, "failures": partial.Failures}
		if render != nil && partial.Result != nil {
			body["result"] = render(partial.Result)
		}
		r.writeJSON(ctx, w, http.StatusOK, body)
	case errors.As(err, &localErr):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: localErr.Reason.Error(),
			Message:   localErr.Error(),
			Window: &windowResponse{
				Start: localErr.WindowStart.String(),
				End:   localErr.WindowEnd.String(),
			},
		})
	case errors.As(err, &vErr):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "validation_failed",
			Message:   "validation failed",
			Errors:    vErr.FieldErrors,
		})
	case errors.As(err, &conflict):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "scheduling_conflict",
			Message:   conflict.Error(),
			Conflict: &conflictResponse{
				Title:            conflict.Title,
				ConflictingID:    conflict.ConflictingID,
				ConflictingTitle: conflict.ConflictingTitle,
			},
		})
	case errors.Is(err, application.ErrTimeZoneLocked):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: "timezone_locked", Message: err.Error()})
	case errors.Is(err, application.ErrAlreadyExists):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: kind, Message: err.Error()})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{ErrorCode: kind, Message: err.Error()})
	case errors.Is(err, application.ErrInvalidBreakoutIndex):
		r.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{ErrorCode: kind, Message: err.Error()})
	case errors.Is(err, application.ErrInvalidTimeZone):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{ErrorCode: kind, Message: err.Error()})
	case errors.Is(err, application.ErrBreakoutsDisabled):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: kind, Message: err.Error()})
	case errors.As(err, &providerErr):
		logger.ErrorContext(ctx, "room provider failed", "error_kind", kind, "call", providerErr.Call, "error", err)
		r.writeJSON(ctx, w, http.StatusBadGateway, errorResponse{ErrorCode: kind, Message: err.Error()})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		r.writeJSON(ctx, w, http.StatusGatewayTimeout, errorResponse{ErrorCode: kind, Message: err.Error()})
	default:
		logger.ErrorContext(ctx, "unhandled service error", "error_kind", kind, "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: "internal server error"})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func (r responder) decode(ctx context.Context, w http.ResponseWriter, req *http.Request, dst any) bool {
	if req.Body == nil || req.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(req.Body).Decode(dst); err != nil {
		r.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return false
	}
	return true
}

func (r responder) pathValue(ctx context.Context, w http.ResponseWriter, req *http.Request, name string) (string, bool) {
	value := strings.TrimSpace(req.PathValue(name))
	if value == "" {
		r.writeError(ctx, w, http.StatusBadRequest, errMissingPathSegment)
		return "", false
	}
	return value, true
}

func (r responder) breakoutIndex(ctx context.Context, w http.ResponseWriter, req *http.Request) (int, bool) {
	index, err := strconv.Atoi(req.PathValue("index"))
	if err != nil || index < 1 {
		r.writeError(ctx, w, http.StatusBadRequest, errInvalidIndex)
		return 0, false
	}
	return index, true
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
	Window    *windowResponse   `json:"window,omitempty"`
	Conflict  *conflictResponse `json:"conflict,omitempty"`
}

type windowResponse struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type conflictResponse struct {
	Title            string `json:"title"`
	ConflictingID    string `json:"conflicting_id,omitempty"`
	ConflictingTitle string `json:"conflicting_title"`
}
