package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrRegistryNotFound is returned when a live session has not been
	// initialized. Callers recover with EnsureInitialized.
	ErrRegistryNotFound = fmt.Errorf("application: live session not initialized: %w", ErrNotFound)
	// ErrBreakoutNotFound is returned for an unknown breakout index.
	ErrBreakoutNotFound = fmt.Errorf("application: breakout room not found: %w", ErrNotFound)
	// ErrInvalidBreakoutIndex is returned for indexes below 1.
	ErrInvalidBreakoutIndex = errors.New("application: invalid breakout index")
	// ErrBreakoutsDisabled is returned when the session does not allow breakout rooms.
	ErrBreakoutsDisabled = errors.New("application: breakout rooms are disabled for this session")
	// ErrInvalidTimeZone is returned for a label that resolves to no zone.
	ErrInvalidTimeZone = errors.New("application: invalid time zone")
	// ErrTimeZoneLocked is returned when an edit tries to change a project's zone.
	ErrTimeZoneLocked = errors.New("application: project time zone is locked")
	// ErrProviderUnavailable wraps any room provider failure.
	ErrProviderUnavailable = errors.New("application: room provider unavailable")
	// ErrAlreadyExists is returned when an identifier is already taken.
	ErrAlreadyExists = errors.New("application: already exists")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// SchedulingConflictError names the two sessions whose intervals overlap.
type SchedulingConflictError struct {
	Title            string
	Start, End       time.Time
	ConflictingID    string
	ConflictingTitle string
	ConflictingStart time.Time
	ConflictingEnd   time.Time
}

func (e *SchedulingConflictError) Error() string {
	return fmt.Sprintf("scheduling conflict: %q [%s, %s) overlaps %q [%s, %s)",
		e.Title, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339),
		e.ConflictingTitle, e.ConflictingStart.Format(time.RFC3339), e.ConflictingEnd.Format(time.RFC3339))
}

// PartialFailureError reports an action whose primary effect succeeded while
// best-effort steps failed. Result carries the primary outcome.
type PartialFailureError struct {
	Action   string
	Failures []string
	Result   any
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s partially completed: %s", e.Action, strings.Join(e.Failures, "; "))
}

// ProviderError records which provider call failed.
type ProviderError struct {
	Call string
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("room provider %s: %v", e.Call, e.Err)
}

// Unwrap exposes both ErrProviderUnavailable and the provider's own error.
func (e *ProviderError) Unwrap() []error {
	return []error{ErrProviderUnavailable, e.Err}
}
