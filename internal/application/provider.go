package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// ErrRoomAlreadyExists may be returned by RoomProvider.EnsureRoom. It is
// treated as success.
var ErrRoomAlreadyExists = errors.New("room already exists")

// RoomOptions configures a provider room.
type RoomOptions struct {
	// EmptyTimeout lets the provider reclaim a room nobody has joined.
	EmptyTimeout time.Duration
}

// Recording is a started egress.
type Recording struct {
	Handle      string
	PlaybackURL string
}

// RoomParticipant is a participant as the provider reports it.
type RoomParticipant struct {
	Identity    string
	DisplayName string
	Metadata    string
}

// RoomProvider is the audio/video provider boundary. It is the only code
// path that talks to the provider.
type RoomProvider interface {
	EnsureRoom(ctx context.Context, name string, opts RoomOptions) error
	IssueAccessToken(ctx context.Context, identity, displayName string, role Role, roomName string) (string, error)
	StartRecordingEgress(ctx context.Context, roomName string) (Recording, error)
	StopRecordingEgress(ctx context.Context, handle string) error
	ListParticipants(ctx context.Context, roomName string) ([]RoomParticipant, error)
	MoveParticipant(ctx context.Context, fromRoom, identity, toRoom string) error
}

// MainRoomName is the provider room of a session.
func MainRoomName(sessionID string) string {
	return "session-" + sessionID
}

// BreakoutRoomName is the provider room of breakout index in a session.
func BreakoutRoomName(sessionID string, index int) string {
	return MainRoomName(sessionID) + "-breakout-" + strconv.Itoa(index)
}

// callPolicy decides how a provider call site reacts to failure.
type callPolicy struct {
	call string
	// fatal failures abort the operation; the rest are logged and collected.
	fatal bool
	// retryOnce is only set for idempotent calls.
	retryOnce bool
}

func (p callPolicy) label() string {
	if p.fatal {
		return "fatal"
	}
	return "best_effort"
}

var (
	policyEnsureRoom       = callPolicy{call: "ensure_room", fatal: true, retryOnce: true}
	policyIssueToken       = callPolicy{call: "issue_token", fatal: true}
	policyStartEgress      = callPolicy{call: "start_egress"}
	policyStopEgress       = callPolicy{call: "stop_egress", retryOnce: true}
	policyListParticipants = callPolicy{call: "list_participants"}
	policyBulkMove         = callPolicy{call: "move_participant"}
	policyDirectMove       = callPolicy{call: "move_participant", fatal: true}
)

// providerCaller bounds every provider call with a timeout and applies its
// policy.
type providerCaller struct {
	timeout time.Duration
}

// do runs fn under policy. The returned error is always a *ProviderError;
// best-effort failures are additionally logged at WARN.
func (c providerCaller) do(ctx context.Context, logger *slog.Logger, policy callPolicy, fn func(context.Context) error) error {
	attempts := 1
	if policy.retryOnce {
		attempts = 2
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = c.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < attempts {
			logger.DebugContext(ctx, "retrying provider call", "call", policy.call, "error", err)
		}
	}

	wrapped := &ProviderError{Call: policy.call, Err: err}
	if !policy.fatal {
		logger.WarnContext(ctx, "provider call failed",
			"call", policy.call,
			"policy", policy.label(),
			"error", err,
		)
	}
	return wrapped
}

func (c providerCaller) attempt(ctx context.Context, fn func(context.Context) error) error {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := fn(callCtx); err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return err
	}
	return nil
}
