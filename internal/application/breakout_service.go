package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/session-orchestrator/internal/notify"
	"github.com/example/session-orchestrator/internal/persistence"
	"github.com/example/session-orchestrator/internal/timers"
)

const (
	defaultBreakoutDuration = 15 * time.Minute
	defaultWarningLead      = time.Minute
	defaultBulkConcurrency  = 8
	maxIndexAttempts        = 5
)

// BreakoutConfig tunes breakout rooms.
type BreakoutConfig struct {
	DefaultDuration time.Duration
	EmptyTimeout    time.Duration
	WarningLead     time.Duration
	CallTimeout     time.Duration
	// BulkConcurrency caps concurrent participant moves when a room closes.
	BulkConcurrency int
}

func (c BreakoutConfig) withDefaults() BreakoutConfig {
	if c.DefaultDuration <= 0 {
		c.DefaultDuration = defaultBreakoutDuration
	}
	if c.WarningLead <= 0 {
		c.WarningLead = defaultWarningLead
	}
	if c.BulkConcurrency <= 0 {
		c.BulkConcurrency = defaultBulkConcurrency
	}
	return c
}

// BreakoutDependencies wires a BreakoutService.
type BreakoutDependencies struct {
	Sessions  SessionReader
	Breakouts BreakoutRepository
	Provider  RoomProvider
	Publisher notify.Publisher
	// Timers is also the service clock.
	Timers *timers.Scheduler
	Config BreakoutConfig
	Logger *slog.Logger
}

// BreakoutService creates, extends and closes breakout rooms. Each open room
// with a deadline has a warning and a close job registered with the timer
// scheduler; the deadline itself is durable so the jobs can be rebuilt after
// a restart.
type BreakoutService struct {
	sessions  SessionReader
	breakouts BreakoutRepository
	provider  RoomProvider
	publisher notify.Publisher
	timers    *timers.Scheduler
	config    BreakoutConfig
	caller    providerCaller
	locks     *keyedMutex
	logger    *slog.Logger
}

// NewBreakoutService constructs the orchestrator.
func NewBreakoutService(deps BreakoutDependencies) *BreakoutService {
	scheduler := deps.Timers
	if scheduler == nil {
		scheduler = timers.NewScheduler(nil)
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = notify.NewBus(nil)
	}
	config := deps.Config.withDefaults()
	return &BreakoutService{
		sessions:  deps.Sessions,
		breakouts: deps.Breakouts,
		provider:  deps.Provider,
		publisher: publisher,
		timers:    scheduler,
		config:    config,
		caller:    providerCaller{timeout: config.CallTimeout},
		locks:     newKeyedMutex(),
		logger:    defaultLogger(deps.Logger),
	}
}

func (s *BreakoutService) loggerWith(ctx context.Context, operation, sessionID string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BreakoutService", operation, append([]any{"session_id", sessionID}, attrs...)...)
}

func (s *BreakoutService) now() time.Time {
	return s.timers.Now().UTC()
}

// Create opens the next breakout room of a session. The provider room is
// ensured before the row is stored; recording is started best-effort. A
// non-positive duration selects the configured default.
func (s *BreakoutService) Create(ctx context.Context, sessionID string, duration time.Duration) (room BreakoutRoom, err error) {
	logger := s.loggerWith(ctx, "Create", sessionID)
	defer func() {
		if err == nil {
			logger = logger.With("breakout_index", room.Index)
		}
		logOutcome(ctx, logger, err, "failed to create breakout room", "breakout room created")
	}()

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return BreakoutRoom{}, mapRepoError(err)
	}
	if !session.BreakoutsEnabled {
		return BreakoutRoom{}, fmt.Errorf("%w: session %s", ErrBreakoutsDisabled, sessionID)
	}
	if duration <= 0 {
		duration = s.config.DefaultDuration
	}

	unlock := s.locks.Lock(sessionID)
	room, err = s.createLocked(ctx, logger, sessionID, duration)
	unlock()
	if err != nil {
		return BreakoutRoom{}, err
	}

	s.ScheduleCloseTimer(sessionID, room.Index, *room.ClosesAt)
	s.publish(notify.TopicBreakoutCreated, room, "")
	return room, nil
}

func (s *BreakoutService) createLocked(ctx context.Context, logger *slog.Logger, sessionID string, duration time.Duration) (BreakoutRoom, error) {
	for attempt := 1; attempt <= maxIndexAttempts; attempt++ {
		index, err := s.breakouts.NextBreakoutIndex(ctx, sessionID)
		if err != nil {
			return BreakoutRoom{}, mapRepoError(err)
		}
		name := BreakoutRoomName(sessionID, index)

		err = s.caller.do(ctx, logger, policyEnsureRoom, func(ctx context.Context) error {
			return ignoreRoomExists(s.provider.EnsureRoom(ctx, name, RoomOptions{EmptyTimeout: s.config.EmptyTimeout}))
		})
		if err != nil {
			return BreakoutRoom{}, err
		}

		now := s.now()
		closesAt := now.Add(duration)
		room := BreakoutRoom{
			SessionID: sessionID,
			Index:     index,
			RoomName:  name,
			ClosesAt:  &closesAt,
			CreatedAt: now,
		}

		var recording Recording
		egressErr := s.caller.do(ctx, logger, policyStartEgress, func(ctx context.Context) error {
			var startErr error
			recording, startErr = s.provider.StartRecordingEgress(ctx, name)
			return startErr
		})
		if egressErr == nil && recording.Handle != "" {
			handle := recording.Handle
			room.RecordingHandle = &handle
			if recording.PlaybackURL != "" {
				url := recording.PlaybackURL
				room.RecordingURL = &url
			}
		}

		err = s.breakouts.CreateBreakout(ctx, room)
		if err != nil && room.RecordingHandle != nil {
			s.stopOrphanedEgress(ctx, logger, *room.RecordingHandle)
		}
		if errors.Is(err, persistence.ErrDuplicate) {
			logger.WarnContext(ctx, "breakout index taken, retrying", "breakout_index", index, "attempt", attempt)
			continue
		}
		if err != nil {
			return BreakoutRoom{}, mapRepoError(err)
		}
		return s.breakouts.GetBreakout(ctx, sessionID, index)
	}
	return BreakoutRoom{}, fmt.Errorf("%w: no free breakout index after %d attempts", ErrAlreadyExists, maxIndexAttempts)
}

// stopOrphanedEgress stops a recording whose room row was never stored.
func (s *BreakoutService) stopOrphanedEgress(ctx context.Context, logger *slog.Logger, handle string) {
	_ = s.caller.do(ctx, logger.With("egress", handle), policyStopEgress, func(ctx context.Context) error {
		return s.provider.StopRecordingEgress(ctx, handle)
	})
}

// Close closes a breakout room. Closing a closed room is a no-op. Recording
// stop and participant moves are best-effort: when any of them fails the
// room is still closed and a *PartialFailureError carrying it is returned.
func (s *BreakoutService) Close(ctx context.Context, sessionID string, index int) (BreakoutRoom, error) {
	return s.closeRoom(ctx, s.loggerWith(ctx, "Close", sessionID, "breakout_index", index), sessionID, index, nil)
}

// closeRoom closes the room under the session lock. A non-nil deadline makes
// the close conditional: a room whose closesAt moved past it is left open.
func (s *BreakoutService) closeRoom(ctx context.Context, logger *slog.Logger, sessionID string, index int, deadline *time.Time) (room BreakoutRoom, err error) {
	var (
		failures []string
		changed  bool
	)
	defer func() {
		if err != nil || changed {
			logOutcome(ctx, logger, err, "failed to close breakout room", "breakout room closed")
		}
	}()

	if index < 1 {
		return BreakoutRoom{}, ErrInvalidBreakoutIndex
	}

	unlock := s.locks.Lock(sessionID)
	room, failures, changed, err = s.closeLocked(ctx, logger, sessionID, index, deadline)
	unlock()
	if err != nil {
		return BreakoutRoom{}, err
	}
	if !changed {
		return room, nil
	}

	s.timers.Cancel(timerKey(sessionID, index))
	s.publish(notify.TopicBreakoutClosed, room, "")
	if len(failures) > 0 {
		return room, &PartialFailureError{Action: "close breakout room", Failures: failures, Result: room}
	}
	return room, nil
}

func (s *BreakoutService) closeLocked(ctx context.Context, logger *slog.Logger, sessionID string, index int, deadline *time.Time) (BreakoutRoom, []string, bool, error) {
	room, err := s.breakouts.GetBreakout(ctx, sessionID, index)
	if err != nil {
		return BreakoutRoom{}, nil, false, mapBreakoutError(err)
	}
	if !room.Open() {
		logger.DebugContext(ctx, "breakout room already closed")
		return room, nil, false, nil
	}
	if deadline != nil && (room.ClosesAt == nil || room.ClosesAt.After(*deadline)) {
		logger.DebugContext(ctx, "stale close skipped", "closes_at", room.ClosesAt, "deadline", *deadline)
		return room, nil, false, nil
	}

	var failures []string
	if room.RecordingHandle != nil && room.RecordingStoppedAt == nil {
		handle := *room.RecordingHandle
		err := s.caller.do(ctx, logger, policyStopEgress, func(ctx context.Context) error {
			return s.provider.StopRecordingEgress(ctx, handle)
		})
		if err != nil {
			failures = append(failures, err.Error())
		} else {
			stopped := s.now()
			room.RecordingStoppedAt = &stopped
		}
	}

	failures = append(failures, s.returnParticipants(ctx, logger, room)...)

	closed := s.now()
	room.ClosedAt = &closed
	if err := s.breakouts.UpdateBreakout(ctx, room); err != nil {
		return BreakoutRoom{}, nil, false, mapBreakoutError(err)
	}
	return room, failures, true, nil
}

// returnParticipants moves everyone in room back to the main room. Moves run
// concurrently and each failure is collected without stopping the others.
func (s *BreakoutService) returnParticipants(ctx context.Context, logger *slog.Logger, room BreakoutRoom) []string {
	var participants []RoomParticipant
	err := s.caller.do(ctx, logger, policyListParticipants, func(ctx context.Context) error {
		var listErr error
		participants, listErr = s.provider.ListParticipants(ctx, room.RoomName)
		return listErr
	})
	if err != nil {
		return []string{err.Error()}
	}

	mainRoom := MainRoomName(room.SessionID)
	var (
		mu       sync.Mutex
		failures []string
		group    errgroup.Group
	)
	group.SetLimit(s.config.BulkConcurrency)
	for _, participant := range participants {
		identity := participant.Identity
		group.Go(func() error {
			moveErr := s.caller.do(ctx, logger.With("identity", identity), policyBulkMove, func(ctx context.Context) error {
				return s.provider.MoveParticipant(ctx, room.RoomName, identity, mainRoom)
			})
			if moveErr != nil {
				mu.Lock()
				failures = append(failures, fmt.Sprintf("%s: %v", identity, moveErr))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()
	return failures
}

// Extend pushes the deadline of an open room to max(closesAt, now)+minutes
// and replaces its timer jobs.
func (s *BreakoutService) Extend(ctx context.Context, sessionID string, index, minutes int) (room BreakoutRoom, err error) {
	logger := s.loggerWith(ctx, "Extend", sessionID, "breakout_index", index, "minutes", minutes)
	defer func() {
		logOutcome(ctx, logger, err, "failed to extend breakout room", "breakout room extended")
	}()

	if index < 1 {
		return BreakoutRoom{}, ErrInvalidBreakoutIndex
	}
	if minutes <= 0 {
		return BreakoutRoom{}, &ValidationError{FieldErrors: map[string]string{"minutes": "minutes must be positive"}}
	}

	unlock := s.locks.Lock(sessionID)
	room, err = s.extendLocked(ctx, sessionID, index, minutes)
	unlock()
	if err != nil {
		return BreakoutRoom{}, err
	}

	s.ScheduleCloseTimer(sessionID, index, *room.ClosesAt)
	return room, nil
}

func (s *BreakoutService) extendLocked(ctx context.Context, sessionID string, index, minutes int) (BreakoutRoom, error) {
	room, err := s.breakouts.GetBreakout(ctx, sessionID, index)
	if err != nil {
		return BreakoutRoom{}, mapBreakoutError(err)
	}
	if !room.Open() {
		return BreakoutRoom{}, fmt.Errorf("%w: breakout %d is closed", ErrBreakoutNotFound, index)
	}

	base := s.now()
	if room.ClosesAt != nil && room.ClosesAt.After(base) {
		base = *room.ClosesAt
	}
	closesAt := base.Add(time.Duration(minutes) * time.Minute)
	room.ClosesAt = &closesAt
	if err := s.breakouts.UpdateBreakout(ctx, room); err != nil {
		return BreakoutRoom{}, mapBreakoutError(err)
	}
	return room, nil
}

// MoveParticipant moves identity between provider rooms. Unlike the moves
// made while closing a room, a failure here is returned.
func (s *BreakoutService) MoveParticipant(ctx context.Context, identity, fromRoom, toRoom string) error {
	identity = strings.TrimSpace(identity)
	logger := serviceLogger(ctx, s.logger, "BreakoutService", "MoveParticipant", "identity", identity, "from", fromRoom, "to", toRoom)

	vErr := &ValidationError{}
	if identity == "" {
		vErr.add("identity", "identity is required")
	}
	if strings.TrimSpace(fromRoom) == "" {
		vErr.add("from", "source room is required")
	}
	if strings.TrimSpace(toRoom) == "" {
		vErr.add("to", "target room is required")
	}
	if vErr.HasErrors() {
		return vErr
	}

	err := s.caller.do(ctx, logger, policyDirectMove, func(ctx context.Context) error {
		return s.provider.MoveParticipant(ctx, fromRoom, identity, toRoom)
	})
	logOutcome(ctx, logger, err, "failed to move participant", "participant moved")
	return err
}

// ScheduleCloseTimer registers the warning and close jobs of a room,
// replacing any registered before. A warning deadline already in the past
// fires immediately.
func (s *BreakoutService) ScheduleCloseTimer(sessionID string, index int, closesAt time.Time) {
	now := s.now()
	warnAt := closesAt.Add(-s.config.WarningLead)
	if warnAt.Before(now) {
		warnAt = now
	}

	s.logger.Debug("scheduling breakout timers",
		"session_id", sessionID,
		"breakout_index", index,
		"warn_at", warnAt,
		"closes_at", closesAt,
	)
	s.timers.Schedule(timerKey(sessionID, index),
		timers.Job{At: warnAt, Run: func() { s.warn(sessionID, index, closesAt) }},
		timers.Job{At: closesAt, Run: func() { s.closeOnDeadline(sessionID, index, closesAt) }},
	)
}

// RescheduleAllOnStartup rebuilds the timer jobs of every open room with a
// deadline. Rooms already past their deadline close right away.
func (s *BreakoutService) RescheduleAllOnStartup(ctx context.Context) (int, error) {
	logger := serviceLogger(ctx, s.logger, "BreakoutService", "RescheduleAllOnStartup")

	rooms, err := s.breakouts.ListTimedBreakouts(ctx)
	if err != nil {
		err = mapRepoError(err)
		logOutcome(ctx, logger, err, "failed to list timed breakout rooms", "")
		return 0, err
	}

	scheduled := 0
	for _, room := range rooms {
		if room.ClosesAt == nil || !room.Open() {
			continue
		}
		s.ScheduleCloseTimer(room.SessionID, room.Index, *room.ClosesAt)
		scheduled++
	}

	logger.InfoContext(ctx, "breakout timers restored", "count", scheduled)
	return scheduled, nil
}

// Get returns one breakout room.
func (s *BreakoutService) Get(ctx context.Context, sessionID string, index int) (BreakoutRoom, error) {
	if index < 1 {
		return BreakoutRoom{}, ErrInvalidBreakoutIndex
	}
	room, err := s.breakouts.GetBreakout(ctx, sessionID, index)
	if err != nil {
		return BreakoutRoom{}, mapBreakoutError(err)
	}
	return room, nil
}

// ListOpen returns the session's rooms that have not been closed.
func (s *BreakoutService) ListOpen(ctx context.Context, sessionID string) ([]BreakoutRoom, error) {
	rooms, err := s.breakouts.ListOpenBreakouts(ctx, sessionID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return rooms, nil
}

// PendingTimer reports whether the room has timer jobs waiting.
func (s *BreakoutService) PendingTimer(sessionID string, index int) bool {
	return s.timers.Pending(timerKey(sessionID, index))
}

// warn publishes the closing warning to the session and to each participant
// currently in the room.
func (s *BreakoutService) warn(sessionID string, index int, closesAt time.Time) {
	ctx := context.Background()
	logger := s.loggerWith(ctx, "Warn", sessionID, "breakout_index", index)

	room, err := s.breakouts.GetBreakout(ctx, sessionID, index)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load breakout room", "error", err)
		return
	}
	if !room.Open() || room.ClosesAt == nil || !room.ClosesAt.Equal(closesAt) {
		logger.DebugContext(ctx, "stale warning skipped")
		return
	}

	s.publish(notify.TopicBreakoutOneMinuteWarning, room, "")

	var participants []RoomParticipant
	err = s.caller.do(ctx, logger, policyListParticipants, func(ctx context.Context) error {
		var listErr error
		participants, listErr = s.provider.ListParticipants(ctx, room.RoomName)
		return listErr
	})
	if err != nil {
		return
	}
	for _, participant := range participants {
		s.publish(notify.TopicBreakoutParticipantWarning, room, participant.Identity)
	}
	logger.InfoContext(ctx, "closing warning sent", "participants", len(participants))
}

func (s *BreakoutService) closeOnDeadline(sessionID string, index int, closesAt time.Time) {
	ctx := context.Background()
	logger := s.loggerWith(ctx, "CloseOnDeadline", sessionID, "breakout_index", index)

	room, err := s.breakouts.GetBreakout(ctx, sessionID, index)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load breakout room", "error", err)
		return
	}
	if !room.Open() || room.ClosesAt == nil || room.ClosesAt.After(closesAt) {
		logger.DebugContext(ctx, "stale close skipped")
		return
	}
	// An extend may land between the read above and the lock, so the
	// deadline is checked again under the lock.
	_, _ = s.closeRoom(ctx, logger, sessionID, index, &closesAt)
}

func (s *BreakoutService) publish(topic notify.Topic, room BreakoutRoom, identity string) {
	s.publisher.Publish(notify.Event{
		Topic:         topic,
		SessionID:     room.SessionID,
		BreakoutIndex: room.Index,
		Identity:      identity,
		Payload:       room,
		At:            s.now(),
	})
}

func timerKey(sessionID string, index int) string {
	return sessionID + "#" + strconv.Itoa(index)
}
