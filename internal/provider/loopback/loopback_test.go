package loopback_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/session-orchestrator/internal/application"
	"github.com/example/session-orchestrator/internal/provider/loopback"
	"github.com/example/session-orchestrator/internal/testfixtures"
)

func newProvider(t *testing.T, clock *testfixtures.Clock) *loopback.Provider {
	t.Helper()
	p, err := loopback.New(loopback.Config{
		SigningKey:      []byte("0123456789abcdef0123456789abcdef"),
		TokenTTL:        time.Hour,
		PlaybackBaseURL: "https://media.example.test/",
		Now:             clock.NowFunc(),
	})
	require.NoError(t, err)
	return p
}

func TestNew_RejectsShortKey(t *testing.T) {
	_, err := loopback.New(loopback.Config{SigningKey: []byte("short")})
	require.Error(t, err)
}

func TestEnsureRoom_SecondCallReportsExisting(t *testing.T) {
	p := newProvider(t, testfixtures.NewClock(time.Time{}))
	ctx := context.Background()

	require.NoError(t, p.EnsureRoom(ctx, "session-1", application.RoomOptions{EmptyTimeout: time.Minute}))
	err := p.EnsureRoom(ctx, "session-1", application.RoomOptions{})
	assert.ErrorIs(t, err, application.ErrRoomAlreadyExists)
}

func TestAccessToken_RoundTripAndTamper(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	p := newProvider(t, clock)

	token, err := p.IssueAccessToken(context.Background(), "ada@example.com", "Ada", application.RoleModerator, "session-1")
	require.NoError(t, err)

	claims, err := p.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", claims.Identity)
	assert.Equal(t, application.RoleModerator, claims.Role)
	assert.Equal(t, "session-1", claims.Room)

	payload, mac, _ := strings.Cut(token, ".")
	_, err = p.Verify(payload + "x." + mac)
	assert.ErrorIs(t, err, loopback.ErrInvalidToken)

	other, err := loopback.New(loopback.Config{SigningKey: []byte("another-signing-key-of-32-bytes!")})
	require.NoError(t, err)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, loopback.ErrInvalidToken)

	clock.Advance(time.Hour)
	_, err = p.Verify(token)
	assert.ErrorIs(t, err, loopback.ErrInvalidToken)
}

func TestJoinListAndMove(t *testing.T) {
	p := newProvider(t, testfixtures.NewClock(time.Time{}))
	ctx := context.Background()
	require.NoError(t, p.EnsureRoom(ctx, "session-1-breakout-1", application.RoomOptions{}))

	for _, identity := range []string{"b@example.com", "a@example.com"} {
		token, err := p.IssueAccessToken(ctx, identity, identity, application.RoleParticipant, "session-1-breakout-1")
		require.NoError(t, err)
		_, err = p.Join(ctx, token)
		require.NoError(t, err)
	}

	participants, err := p.ListParticipants(ctx, "session-1-breakout-1")
	require.NoError(t, err)
	require.Len(t, participants, 2)
	assert.Equal(t, "a@example.com", participants[0].Identity)
	assert.Equal(t, "Participant", participants[0].Metadata)

	require.NoError(t, p.MoveParticipant(ctx, "session-1-breakout-1", "a@example.com", "session-1"))
	main, err := p.ListParticipants(ctx, "session-1")
	require.NoError(t, err)
	assert.Len(t, main, 1)

	err = p.MoveParticipant(ctx, "session-1-breakout-1", "a@example.com", "session-1")
	assert.ErrorIs(t, err, loopback.ErrParticipantNotFound)
	_, err = p.ListParticipants(ctx, "nowhere")
	assert.ErrorIs(t, err, loopback.ErrRoomNotFound)
}

func TestRecordingLifecycle(t *testing.T) {
	p := newProvider(t, testfixtures.NewClock(time.Time{}))
	ctx := context.Background()

	_, err := p.StartRecordingEgress(ctx, "missing")
	assert.ErrorIs(t, err, loopback.ErrRoomNotFound)

	require.NoError(t, p.EnsureRoom(ctx, "session-1", application.RoomOptions{}))
	rec, err := p.StartRecordingEgress(ctx, "session-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rec.Handle, "EG_"))
	assert.True(t, strings.HasPrefix(rec.PlaybackURL, "https://media.example.test/session-1/"))

	require.NoError(t, p.StopRecordingEgress(ctx, rec.Handle))
	exists, stopped := p.Recording(rec.Handle)
	assert.True(t, exists)
	assert.True(t, stopped)

	assert.ErrorIs(t, p.StopRecordingEgress(ctx, "EG_unknown"), loopback.ErrRecordingNotFound)
}

func TestBreakoutCloseReturnsJoinedParticipants(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	p := newProvider(t, clock)
	ctx := context.Background()

	sessionID := "s-1"
	roomName := application.BreakoutRoomName(sessionID, 1)
	require.NoError(t, p.EnsureRoom(ctx, roomName, application.RoomOptions{}))
	token, err := p.IssueAccessToken(ctx, "ada@example.com", "Ada", application.RoleParticipant, roomName)
	require.NoError(t, err)
	_, err = p.Join(ctx, token)
	require.NoError(t, err)

	svc := application.NewBreakoutService(application.BreakoutDependencies{
		Sessions:  staticSessions{application.Session{ID: sessionID, BreakoutsEnabled: true}},
		Breakouts: &singleBreakout{room: application.BreakoutRoom{SessionID: sessionID, Index: 1, RoomName: roomName}},
		Provider:  p,
	})
	_, err = svc.Close(ctx, sessionID, 1)
	require.NoError(t, err)

	main, err := p.ListParticipants(ctx, application.MainRoomName(sessionID))
	require.NoError(t, err)
	require.Len(t, main, 1)
	assert.Equal(t, "ada@example.com", main[0].Identity)
}

type staticSessions struct{ session application.Session }

func (s staticSessions) GetSession(ctx context.Context, id string) (application.Session, error) {
	return s.session, nil
}

type singleBreakout struct{ room application.BreakoutRoom }

func (b *singleBreakout) NextBreakoutIndex(ctx context.Context, sessionID string) (int, error) {
	return b.room.Index + 1, nil
}

func (b *singleBreakout) CreateBreakout(ctx context.Context, room application.BreakoutRoom) error {
	b.room = room
	return nil
}

func (b *singleBreakout) GetBreakout(ctx context.Context, sessionID string, index int) (application.BreakoutRoom, error) {
	return b.room, nil
}

func (b *singleBreakout) UpdateBreakout(ctx context.Context, room application.BreakoutRoom) error {
	b.room = room
	return nil
}

func (b *singleBreakout) ListOpenBreakouts(ctx context.Context, sessionID string) ([]application.BreakoutRoom, error) {
	return []application.BreakoutRoom{b.room}, nil
}

func (b *singleBreakout) ListTimedBreakouts(ctx context.Context) ([]application.BreakoutRoom, error) {
	return nil, nil
}
