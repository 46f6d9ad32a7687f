package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/session-orchestrator/internal/logging"
	"github.com/example/session-orchestrator/internal/scheduler"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel and typed errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrRegistryNotFound):
		return "registry_not_found"
	case errors.Is(err, ErrBreakoutNotFound):
		return "breakout_not_found"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidBreakoutIndex):
		return "invalid_breakout_index"
	case errors.Is(err, ErrBreakoutsDisabled):
		return "breakouts_disabled"
	case errors.Is(err, ErrInvalidTimeZone):
		return "invalid_time_zone"
	case errors.Is(err, ErrTimeZoneLocked):
		return "time_zone_locked"
	case errors.Is(err, scheduler.ErrNonexistentLocalTime):
		return "nonexistent_local_time"
	case errors.Is(err, scheduler.ErrAmbiguousLocalTime):
		return "ambiguous_local_time"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}

	var conflict *SchedulingConflictError
	if errors.As(err, &conflict) {
		return "scheduling_conflict"
	}
	var partial *PartialFailureError
	if errors.As(err, &partial) {
		return "partial_failure"
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}

// logOutcome records the result of an operation at the level its error
// kind deserves: domain rejections are warnings, the rest are errors.
func logOutcome(ctx context.Context, logger *slog.Logger, err error, failure, success string) {
	if err == nil {
		logger.InfoContext(ctx, success)
		return
	}
	kind := ErrorKind(err)
	switch kind {
	case "unexpected", "provider_unavailable", "timeout":
		logger.ErrorContext(ctx, failure, "error", err, "error_kind", kind)
	default:
		logger.WarnContext(ctx, failure, "error", err, "error_kind", kind)
	}
}
