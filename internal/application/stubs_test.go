package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/example/session-orchestrator/internal/notify"
	"github.com/example/session-orchestrator/internal/persistence"
)

// memoryStore implements every repository interface over maps. It reports
// missing and duplicate records with persistence errors, the way the SQLite
// adapters do.
type memoryStore struct {
	mu        sync.Mutex
	projects  map[string]Project
	sessions  map[string]Session
	live      map[string]LiveSession
	activity  []ActivityRecord
	breakouts map[string][]BreakoutRoom
	seq       int

	createSessionsErr  error
	createBreakoutErrs []error
	mutateCalls        int

	// beforeListSessions runs, once per call, after ListProjectSessions has
	// read its result and before it returns.
	beforeListSessions func()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		projects:  make(map[string]Project),
		sessions:  make(map[string]Session),
		live:      make(map[string]LiveSession),
		breakouts: make(map[string][]BreakoutRoom),
	}
}

func (m *memoryStore) CreateProject(ctx context.Context, project Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[project.ID]; ok {
		return persistence.ErrDuplicate
	}
	m.projects[project.ID] = project
	return nil
}

func (m *memoryStore) UpdateProject(ctx context.Context, project Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[project.ID]; !ok {
		return persistence.ErrNotFound
	}
	m.projects[project.ID] = project
	return nil
}

func (m *memoryStore) GetProject(ctx context.Context, id string) (Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	project, ok := m.projects[id]
	if !ok {
		return Project{}, persistence.ErrNotFound
	}
	return project, nil
}

func (m *memoryStore) ListProjects(ctx context.Context) ([]Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Project, 0, len(m.projects))
	for _, project := range m.projects {
		out = append(out, project)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) CreateSessions(ctx context.Context, sessions []Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createSessionsErr != nil {
		return m.createSessionsErr
	}
	for _, session := range sessions {
		if _, ok := m.projects[session.ProjectID]; !ok {
			return persistence.ErrForeignKeyViolation
		}
		if _, ok := m.sessions[session.ID]; ok {
			return persistence.ErrDuplicate
		}
	}
	for _, session := range sessions {
		m.sessions[session.ID] = session
	}
	return nil
}

func (m *memoryStore) UpdateSession(ctx context.Context, session Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.ID]; !ok {
		return persistence.ErrNotFound
	}
	m.sessions[session.ID] = session
	return nil
}

func (m *memoryStore) GetSession(ctx context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return Session{}, persistence.ErrNotFound
	}
	return session, nil
}

func (m *memoryStore) ListProjectSessions(ctx context.Context, projectID string) ([]Session, error) {
	m.mu.Lock()
	var out []Session
	for _, session := range m.sessions {
		if session.ProjectID == projectID {
			out = append(out, session)
		}
	}
	hook := m.beforeListSessions
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	if hook != nil {
		hook()
	}
	return out, nil
}

func (m *memoryStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.sessions, id)
	delete(m.live, id)
	delete(m.breakouts, id)
	return nil
}

func (m *memoryStore) EnsureLiveSession(ctx context.Context, sessionID string, now time.Time) (LiveSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if live, ok := m.live[sessionID]; ok {
		return live, false, nil
	}
	if _, ok := m.sessions[sessionID]; !ok {
		return LiveSession{}, false, persistence.ErrForeignKeyViolation
	}
	live := LiveSession{SessionID: sessionID, Version: 1, CreatedAt: now, UpdatedAt: now}
	m.live[sessionID] = live
	return live, true, nil
}

func (m *memoryStore) GetLiveSession(ctx context.Context, sessionID string) (LiveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	live, ok := m.live[sessionID]
	if !ok {
		return LiveSession{}, persistence.ErrNotFound
	}
	return cloneLive(live), nil
}

func (m *memoryStore) MutateLiveSession(ctx context.Context, sessionID string, now time.Time, fn func(*LiveSession) error) (LiveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutateCalls++
	live, ok := m.live[sessionID]
	if !ok {
		return LiveSession{}, persistence.ErrNotFound
	}
	working := cloneLive(live)
	if err := fn(&working); err != nil {
		return LiveSession{}, err
	}
	working.Version++
	working.UpdatedAt = now
	m.live[sessionID] = working
	return cloneLive(working), nil
}

func (m *memoryStore) AppendActivity(ctx context.Context, record ActivityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if record.ID == "" {
		record.ID = fmt.Sprintf("activity-%03d", m.seq)
	}
	m.activity = append(m.activity, record)
	return nil
}

func (m *memoryStore) CloseLatestActivity(ctx context.Context, sessionID, identity string, leave time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.activity) - 1; i >= 0; i-- {
		record := &m.activity[i]
		if record.SessionID == sessionID && record.Identity == identity && record.LeaveTime == nil {
			record.LeaveTime = &leave
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) ListActivity(ctx context.Context, sessionID string) ([]ActivityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ActivityRecord
	for _, record := range m.activity {
		if record.SessionID == sessionID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (m *memoryStore) NextBreakoutIndex(ctx context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	highest := 0
	for _, room := range m.breakouts[sessionID] {
		if room.Index > highest {
			highest = room.Index
		}
	}
	return highest + 1, nil
}

func (m *memoryStore) CreateBreakout(ctx context.Context, room BreakoutRoom) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.createBreakoutErrs) > 0 {
		err := m.createBreakoutErrs[0]
		m.createBreakoutErrs = m.createBreakoutErrs[1:]
		if err != nil {
			return err
		}
	}
	for _, existing := range m.breakouts[room.SessionID] {
		if existing.Index == room.Index {
			return persistence.ErrDuplicate
		}
	}
	m.seq++
	if room.ID == "" {
		room.ID = fmt.Sprintf("breakout-%03d", m.seq)
	}
	m.breakouts[room.SessionID] = append(m.breakouts[room.SessionID], room)
	return nil
}

func (m *memoryStore) GetBreakout(ctx context.Context, sessionID string, index int) (BreakoutRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, room := range m.breakouts[sessionID] {
		if room.Index == index {
			return room, nil
		}
	}
	return BreakoutRoom{}, persistence.ErrNotFound
}

func (m *memoryStore) UpdateBreakout(ctx context.Context, room BreakoutRoom) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rooms := m.breakouts[room.SessionID]
	for i := range rooms {
		if rooms[i].Index == room.Index {
			rooms[i] = room
			return nil
		}
	}
	return persistence.ErrNotFound
}

func (m *memoryStore) ListOpenBreakouts(ctx context.Context, sessionID string) ([]BreakoutRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []BreakoutRoom
	for _, room := range m.breakouts[sessionID] {
		if room.Open() {
			out = append(out, room)
		}
	}
	return out, nil
}

func (m *memoryStore) ListTimedBreakouts(ctx context.Context) ([]BreakoutRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []BreakoutRoom
	for _, rooms := range m.breakouts {
		for _, room := range rooms {
			if room.Open() && room.ClosesAt != nil {
				out = append(out, room)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClosesAt.Before(*out[j].ClosesAt) })
	return out, nil
}

func (m *memoryStore) seedBreakout(room BreakoutRoom) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakouts[room.SessionID] = append(m.breakouts[room.SessionID], room)
}

// interceptedBreakouts runs afterGet once, right after the next GetBreakout
// read, to interleave another operation with the caller.
type interceptedBreakouts struct {
	*memoryStore

	hookMu   sync.Mutex
	afterGet func()
}

func (i *interceptedBreakouts) arm(fn func()) {
	i.hookMu.Lock()
	defer i.hookMu.Unlock()
	i.afterGet = fn
}

func (i *interceptedBreakouts) GetBreakout(ctx context.Context, sessionID string, index int) (BreakoutRoom, error) {
	room, err := i.memoryStore.GetBreakout(ctx, sessionID, index)
	i.hookMu.Lock()
	hook := i.afterGet
	i.afterGet = nil
	i.hookMu.Unlock()
	if hook != nil {
		hook()
	}
	return room, err
}

func cloneLive(live LiveSession) LiveSession {
	live.Rosters = Rosters{
		ParticipantWaiting: append([]RosterEntry(nil), live.Rosters.ParticipantWaiting...),
		ObserverWaiting:    append([]RosterEntry(nil), live.Rosters.ObserverWaiting...),
		ActiveParticipants: append([]RosterEntry(nil), live.Rosters.ActiveParticipants...),
		ActiveObservers:    append([]RosterEntry(nil), live.Rosters.ActiveObservers...),
	}
	return live
}

// providerStub records calls and returns configured failures.
type providerStub struct {
	mu           sync.Mutex
	ensureErr    error
	ensureCalls  int
	egressErr    error
	stopErr      error
	stopCalls    int
	listErr      error
	moveErrs     map[string]error
	participants map[string][]RoomParticipant
	moves        []string
	tokens       []string
	nextHandle   int
}

func newProviderStub() *providerStub {
	return &providerStub{
		moveErrs:     make(map[string]error),
		participants: make(map[string][]RoomParticipant),
	}
}

func (p *providerStub) EnsureRoom(ctx context.Context, name string, opts RoomOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureCalls++
	return p.ensureErr
}

func (p *providerStub) IssueAccessToken(ctx context.Context, identity, displayName string, role Role, roomName string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	token := fmt.Sprintf("token:%s:%s:%s", roomName, identity, role)
	p.tokens = append(p.tokens, token)
	return token, nil
}

func (p *providerStub) StartRecordingEgress(ctx context.Context, roomName string) (Recording, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.egressErr != nil {
		return Recording{}, p.egressErr
	}
	p.nextHandle++
	return Recording{Handle: fmt.Sprintf("egress-%d", p.nextHandle), PlaybackURL: "https://media.example.test/" + roomName}, nil
}

func (p *providerStub) StopRecordingEgress(ctx context.Context, handle string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopCalls++
	return p.stopErr
}

func (p *providerStub) ListParticipants(ctx context.Context, roomName string) ([]RoomParticipant, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listErr != nil {
		return nil, p.listErr
	}
	return append([]RoomParticipant(nil), p.participants[roomName]...), nil
}

func (p *providerStub) MoveParticipant(ctx context.Context, fromRoom, identity, toRoom string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.moveErrs[identity]; err != nil {
		return err
	}
	p.moves = append(p.moves, fmt.Sprintf("%s:%s->%s", identity, fromRoom, toRoom))
	return nil
}

func (p *providerStub) stopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopCalls
}

func (p *providerStub) moveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.moves)
}

// eventRecorder collects published events.
type eventRecorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *eventRecorder) Publish(event notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) topics() []notify.Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Topic, len(r.events))
	for i, event := range r.events {
		out[i] = event.Topic
	}
	return out
}

func (r *eventRecorder) count(topic notify.Topic) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, event := range r.events {
		if event.Topic == topic {
			n++
		}
	}
	return n
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
