package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/session-orchestrator/internal/notify"
	"github.com/example/session-orchestrator/internal/persistence"
)

// errUnchanged aborts a roster write that would not change anything.
var errUnchanged = errors.New("roster unchanged")

// LiveSessionDependencies wires a LiveSessionService.
type LiveSessionDependencies struct {
	Sessions  SessionReader
	Live      LiveSessionStore
	Activity  ActivityLog
	Breakouts BreakoutReader
	Provider  RoomProvider
	Publisher notify.Publisher

	// CallTimeout bounds each provider call. Zero leaves calls unbounded.
	CallTimeout  time.Duration
	EmptyTimeout time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

// LiveSessionService is the live session registry and admission gateway.
// Roster mutations for one session are serialized by a per-session lock on
// top of the store's atomic read-modify-write.
type LiveSessionService struct {
	sessions  SessionReader
	live      LiveSessionStore
	activity  ActivityLog
	breakouts BreakoutReader
	provider  RoomProvider
	publisher notify.Publisher
	caller    providerCaller
	emptyTTL  time.Duration
	locks     *keyedMutex
	now       func() time.Time
	logger    *slog.Logger
}

// NewLiveSessionService constructs the registry. Breakouts and Provider are
// only needed by IssueJoinToken.
func NewLiveSessionService(deps LiveSessionDependencies) *LiveSessionService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = notify.NewBus(nil)
	}
	return &LiveSessionService{
		sessions:  deps.Sessions,
		live:      deps.Live,
		activity:  deps.Activity,
		breakouts: deps.Breakouts,
		provider:  deps.Provider,
		publisher: publisher,
		caller:    providerCaller{timeout: deps.CallTimeout},
		emptyTTL:  deps.EmptyTimeout,
		locks:     newKeyedMutex(),
		now:       now,
		logger:    defaultLogger(deps.Logger),
	}
}

func (s *LiveSessionService) loggerWith(ctx context.Context, operation, sessionID string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "LiveSessionService", operation, append([]any{"session_id", sessionID}, attrs...)...)
}

// EnsureInitialized creates the live session record if it is absent and
// returns the stored one. Concurrent first calls create a single record.
func (s *LiveSessionService) EnsureInitialized(ctx context.Context, sessionID string) (LiveSession, error) {
	logger := s.loggerWith(ctx, "EnsureInitialized", sessionID)

	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		err = mapRepoError(err)
		logOutcome(ctx, logger, err, "failed to initialize live session", "")
		return LiveSession{}, err
	}
	live, created, err := s.live.EnsureLiveSession(ctx, sessionID, s.now().UTC())
	if err != nil {
		err = mapRepoError(err)
		logOutcome(ctx, logger, err, "failed to initialize live session", "")
		return LiveSession{}, err
	}
	if created {
		logger.InfoContext(ctx, "live session initialized")
	}
	return live, nil
}

// Get returns a snapshot of the live session.
func (s *LiveSessionService) Get(ctx context.Context, sessionID string) (LiveSession, error) {
	live, err := s.live.GetLiveSession(ctx, sessionID)
	if err != nil {
		return LiveSession{}, mapRegistryError(err)
	}
	return live, nil
}

// Enqueue places person on the rosters their role allows. A repeat enqueue
// is a no-op and reports added=false; otherwise an activity record is
// appended.
func (s *LiveSessionService) Enqueue(ctx context.Context, sessionID string, person Person) (live LiveSession, added bool, err error) {
	key := person.Key()
	logger := s.loggerWith(ctx, "Enqueue", sessionID, "identity", key, "role", string(person.Role))
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to enqueue", "")
		}
	}()

	policy, ok := admissionPolicies[person.Role]
	vErr := &ValidationError{}
	if !ok {
		vErr.add("role", "role must be Participant, Observer, Moderator or Admin")
	}
	if key == "" {
		vErr.add("email", "email or id is required")
	}
	if vErr.HasErrors() {
		return LiveSession{}, false, vErr
	}

	now := s.now().UTC()
	entry := RosterEntry{
		ID:       strings.TrimSpace(person.ID),
		Name:     strings.TrimSpace(person.Name),
		Email:    normalizeIdentity(person.Email),
		Role:     person.Role,
		JoinedAt: now,
	}

	unlock := s.locks.Lock(sessionID)
	live, err = s.live.MutateLiveSession(ctx, sessionID, now, func(current *LiveSession) error {
		if !policy.admit(&current.Rosters, entry) {
			return errUnchanged
		}
		return nil
	})
	unlock()

	if errors.Is(err, errUnchanged) {
		logger.DebugContext(ctx, "already on roster")
		live, err = s.Get(ctx, sessionID)
		return live, false, err
	}
	if err != nil {
		return LiveSession{}, false, mapRegistryError(err)
	}

	record := ActivityRecord{
		SessionID: sessionID,
		Identity:  key,
		Name:      entry.Name,
		Role:      person.Role,
		JoinTime:  now,
	}
	if appendErr := s.activity.AppendActivity(ctx, record); appendErr != nil {
		logger.ErrorContext(ctx, "failed to record activity", "error", appendErr)
	}

	s.publish(policy.topic, sessionID, key, live.Rosters, now)
	logger.InfoContext(ctx, "enqueued")
	return live, true, nil
}

// Admit moves a participant from the waiting room to the active list with a
// fresh joinedAt. It reports false when the identity was not waiting.
func (s *LiveSessionService) Admit(ctx context.Context, sessionID, identity string) (LiveSession, bool, error) {
	key := normalizeIdentity(identity)
	now := s.now().UTC()
	live, changed, err := s.mutateRoster(ctx, "Admit", sessionID, now, func(rosters *Rosters) bool {
		entry, ok := removeEntry(&rosters.ParticipantWaiting, key)
		if !ok {
			return false
		}
		entry.JoinedAt = now
		rosters.ActiveParticipants = append(rosters.ActiveParticipants, entry)
		return true
	})
	if err != nil || !changed {
		return live, false, err
	}
	s.publish(notify.TopicParticipantWaitingRoomUpdated, sessionID, key, live.Rosters, now)
	s.publish(notify.TopicParticipantListUpdated, sessionID, key, live.Rosters, now)
	return live, true, nil
}

// AdmitObserver moves an observer from the observer waiting room to the
// active observers.
func (s *LiveSessionService) AdmitObserver(ctx context.Context, sessionID, identity string) (LiveSession, bool, error) {
	key := normalizeIdentity(identity)
	now := s.now().UTC()
	live, changed, err := s.mutateRoster(ctx, "AdmitObserver", sessionID, now, func(rosters *Rosters) bool {
		entry, ok := removeEntry(&rosters.ObserverWaiting, key)
		if !ok {
			return false
		}
		entry.JoinedAt = now
		rosters.ActiveObservers = append(rosters.ActiveObservers, entry)
		return true
	})
	if err != nil || !changed {
		return live, false, err
	}
	s.publish(notify.TopicObserverWaitingRoomUpdated, sessionID, key, live.Rosters, now)
	return live, true, nil
}

// AdmitAll drains the participant waiting room into the active list in one
// write. Every admitted entry shares the same joinedAt.
func (s *LiveSessionService) AdmitAll(ctx context.Context, sessionID string) (LiveSession, []RosterEntry, error) {
	now := s.now().UTC()
	var admitted []RosterEntry
	live, changed, err := s.mutateRoster(ctx, "AdmitAll", sessionID, now, func(rosters *Rosters) bool {
		if len(rosters.ParticipantWaiting) == 0 {
			return false
		}
		admitted = make([]RosterEntry, len(rosters.ParticipantWaiting))
		for i, entry := range rosters.ParticipantWaiting {
			entry.JoinedAt = now
			admitted[i] = entry
		}
		rosters.ActiveParticipants = append(rosters.ActiveParticipants, admitted...)
		rosters.ParticipantWaiting = nil
		return true
	})
	if err != nil || !changed {
		return live, nil, err
	}
	s.publish(notify.TopicParticipantWaitingRoomUpdated, sessionID, "", live.Rosters, now)
	s.publish(notify.TopicParticipantListUpdated, sessionID, "", live.Rosters, now)
	return live, admitted, nil
}

// Reject removes a participant from the waiting room. Active lists are left
// alone.
func (s *LiveSessionService) Reject(ctx context.Context, sessionID, identity string) (LiveSession, bool, error) {
	key := normalizeIdentity(identity)
	now := s.now().UTC()
	live, changed, err := s.mutateRoster(ctx, "Reject", sessionID, now, func(rosters *Rosters) bool {
		_, ok := removeEntry(&rosters.ParticipantWaiting, key)
		return ok
	})
	if err != nil || !changed {
		return live, false, err
	}
	s.publish(notify.TopicParticipantWaitingRoomUpdated, sessionID, key, live.Rosters, now)
	return live, true, nil
}

// Start marks the session ongoing, creating the record when needed. A
// previously ended session can be started again; rosters are kept.
func (s *LiveSessionService) Start(ctx context.Context, sessionID string) (live LiveSession, err error) {
	logger := s.loggerWith(ctx, "Start", sessionID)
	defer func() {
		logOutcome(ctx, logger, err, "failed to start live session", "live session started")
	}()

	if _, err = s.EnsureInitialized(ctx, sessionID); err != nil {
		return LiveSession{}, err
	}
	now := s.now().UTC()
	unlock := s.locks.Lock(sessionID)
	defer unlock()
	live, err = s.live.MutateLiveSession(ctx, sessionID, now, func(current *LiveSession) error {
		current.Ongoing = true
		current.StartedAt = &now
		current.EndedAt = nil
		return nil
	})
	if err != nil {
		return LiveSession{}, mapRegistryError(err)
	}
	return live, nil
}

// End marks the session idle and stamps endedAt. Rosters are kept.
func (s *LiveSessionService) End(ctx context.Context, sessionID string) (live LiveSession, err error) {
	logger := s.loggerWith(ctx, "End", sessionID)
	defer func() {
		logOutcome(ctx, logger, err, "failed to end live session", "live session ended")
	}()

	now := s.now().UTC()
	unlock := s.locks.Lock(sessionID)
	defer unlock()
	live, err = s.live.MutateLiveSession(ctx, sessionID, now, func(current *LiveSession) error {
		current.Ongoing = false
		current.EndedAt = &now
		return nil
	})
	if err != nil {
		return LiveSession{}, mapRegistryError(err)
	}
	return live, nil
}

// LogLeave closes the most recent open activity record of identity. It
// reports false when nothing was open, which happens on repeated disconnects.
func (s *LiveSessionService) LogLeave(ctx context.Context, sessionID, identity string) (bool, error) {
	key := normalizeIdentity(identity)
	logger := s.loggerWith(ctx, "LogLeave", sessionID, "identity", key)

	if _, err := s.live.GetLiveSession(ctx, sessionID); err != nil {
		err = mapRegistryError(err)
		logOutcome(ctx, logger, err, "failed to log leave", "")
		return false, err
	}
	closed, err := s.activity.CloseLatestActivity(ctx, sessionID, key, s.now().UTC())
	if err != nil {
		err = mapRepoError(err)
		logOutcome(ctx, logger, err, "failed to log leave", "")
		return false, err
	}
	if !closed {
		logger.DebugContext(ctx, "no open activity record")
	}
	return closed, nil
}

// ListActivity returns the attendance log ordered by join time.
func (s *LiveSessionService) ListActivity(ctx context.Context, sessionID string) ([]ActivityRecord, error) {
	records, err := s.activity.ListActivity(ctx, sessionID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return records, nil
}

// IssueJoinToken issues a provider token for the session's main room, or for
// open breakout room breakoutIndex when it is positive.
func (s *LiveSessionService) IssueJoinToken(ctx context.Context, sessionID string, person Person, breakoutIndex int) (token JoinToken, err error) {
	identity := person.Key()
	logger := s.loggerWith(ctx, "IssueJoinToken", sessionID, "identity", identity, "breakout_index", breakoutIndex)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to issue join token", "")
		}
	}()

	if identity == "" {
		return JoinToken{}, &ValidationError{FieldErrors: map[string]string{"email": "email or id is required"}}
	}
	if _, ok := admissionPolicies[person.Role]; !ok {
		return JoinToken{}, &ValidationError{FieldErrors: map[string]string{"role": "role must be Participant, Observer, Moderator or Admin"}}
	}
	if breakoutIndex < 0 {
		return JoinToken{}, ErrInvalidBreakoutIndex
	}
	if s.provider == nil {
		return JoinToken{}, &ProviderError{Call: policyIssueToken.call, Err: errors.New("no room provider configured")}
	}
	if _, err = s.Get(ctx, sessionID); err != nil {
		return JoinToken{}, err
	}

	roomName := MainRoomName(sessionID)
	if breakoutIndex > 0 {
		room, getErr := s.breakouts.GetBreakout(ctx, sessionID, breakoutIndex)
		if getErr != nil {
			return JoinToken{}, mapBreakoutError(getErr)
		}
		if !room.Open() {
			return JoinToken{}, fmt.Errorf("%w: breakout %d is closed", ErrBreakoutNotFound, breakoutIndex)
		}
		roomName = room.RoomName
	} else {
		err = s.caller.do(ctx, logger, policyEnsureRoom, func(ctx context.Context) error {
			return ignoreRoomExists(s.provider.EnsureRoom(ctx, roomName, RoomOptions{EmptyTimeout: s.emptyTTL}))
		})
		if err != nil {
			return JoinToken{}, err
		}
	}

	displayName := strings.TrimSpace(person.Name)
	if displayName == "" {
		displayName = identity
	}
	var issued string
	err = s.caller.do(ctx, logger, policyIssueToken, func(ctx context.Context) error {
		var issueErr error
		issued, issueErr = s.provider.IssueAccessToken(ctx, identity, displayName, person.Role, roomName)
		return issueErr
	})
	if err != nil {
		return JoinToken{}, err
	}
	return JoinToken{Token: issued, RoomName: roomName, Identity: identity}, nil
}

// mutateRoster runs edit under the session lock. edit returns false to leave
// the stored record untouched.
func (s *LiveSessionService) mutateRoster(ctx context.Context, operation, sessionID string, now time.Time, edit func(*Rosters) bool) (LiveSession, bool, error) {
	logger := s.loggerWith(ctx, operation, sessionID)

	unlock := s.locks.Lock(sessionID)
	live, err := s.live.MutateLiveSession(ctx, sessionID, now, func(current *LiveSession) error {
		if !edit(&current.Rosters) {
			return errUnchanged
		}
		return nil
	})
	unlock()

	if errors.Is(err, errUnchanged) {
		logger.DebugContext(ctx, "roster unchanged")
		live, err = s.Get(ctx, sessionID)
		return live, false, err
	}
	if err != nil {
		err = mapRegistryError(err)
		logOutcome(ctx, logger, err, "roster update failed", "")
		return LiveSession{}, false, err
	}
	logger.InfoContext(ctx, "roster updated")
	return live, true, nil
}

func (s *LiveSessionService) publish(topic notify.Topic, sessionID, identity string, rosters Rosters, at time.Time) {
	s.publisher.Publish(notify.Event{
		Topic:     topic,
		SessionID: sessionID,
		Identity:  identity,
		Payload:   rosters,
		At:        at,
	})
}

func mapRegistryError(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrRegistryNotFound
	}
	return mapRepoError(err)
}

func mapBreakoutError(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrBreakoutNotFound
	}
	return mapRepoError(err)
}

func ignoreRoomExists(err error) error {
	if errors.Is(err, ErrRoomAlreadyExists) {
		return nil
	}
	return err
}
