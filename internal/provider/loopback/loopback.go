// Package loopback is an in-process room provider. Rooms, recordings and
// participants live in memory and access tokens are MAC-signed with a local
// key. It backs development servers and end-to-end tests.
package loopback

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/example/session-orchestrator/internal/application"
)

const (
	minKeyLength    = 16
	defaultTokenTTL = 6 * time.Hour
)

var (
	// ErrRoomNotFound is returned for calls against a room that was never
	// ensured.
	ErrRoomNotFound = errors.New("loopback: room not found")
	// ErrParticipantNotFound is returned when a move names someone not in
	// the source room.
	ErrParticipantNotFound = errors.New("loopback: participant not in room")
	// ErrRecordingNotFound is returned for an unknown egress handle.
	ErrRecordingNotFound = errors.New("loopback: recording not found")
	// ErrInvalidToken is returned when a token fails verification.
	ErrInvalidToken = errors.New("loopback: invalid access token")
)

// Claims is the signed content of an access token.
type Claims struct {
	Identity  string           `json:"sub"`
	Name      string           `json:"name"`
	Role      application.Role `json:"role"`
	Room      string           `json:"room"`
	ExpiresAt int64            `json:"exp"`
}

// Config configures a Provider.
type Config struct {
	// SigningKey keys the token MAC. 16 to 64 bytes.
	SigningKey []byte
	TokenTTL   time.Duration
	// PlaybackBaseURL prefixes recording playback URLs.
	PlaybackBaseURL string
	Now             func() time.Time
	Logger          *slog.Logger
}

type room struct {
	name         string
	emptyTimeout time.Duration
	participants map[string]application.RoomParticipant
	createdAt    time.Time
}

type recording struct {
	room    string
	stopped bool
}

// Provider implements application.RoomProvider in memory.
type Provider struct {
	key      []byte
	ttl      time.Duration
	playback string
	now      func() time.Time
	logger   *slog.Logger

	mu         sync.Mutex
	rooms      map[string]*room
	recordings map[string]*recording
}

var _ application.RoomProvider = (*Provider)(nil)

// New validates cfg and returns an empty provider.
func New(cfg Config) (*Provider, error) {
	if len(cfg.SigningKey) < minKeyLength || len(cfg.SigningKey) > blake2b.Size {
		return nil, fmt.Errorf("loopback: signing key must be %d to %d bytes, got %d", minKeyLength, blake2b.Size, len(cfg.SigningKey))
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Provider{
		key:        bytes.Clone(cfg.SigningKey),
		ttl:        cfg.TokenTTL,
		playback:   strings.TrimSuffix(cfg.PlaybackBaseURL, "/"),
		now:        cfg.Now,
		logger:     cfg.Logger.With("component", "loopback_provider"),
		rooms:      make(map[string]*room),
		recordings: make(map[string]*recording),
	}, nil
}

// EnsureRoom creates the room. An existing room yields
// application.ErrRoomAlreadyExists.
func (p *Provider) EnsureRoom(ctx context.Context, name string, opts application.RoomOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		return errors.New("loopback: room name is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.rooms[name]; ok {
		return application.ErrRoomAlreadyExists
	}
	p.rooms[name] = &room{
		name:         name,
		emptyTimeout: opts.EmptyTimeout,
		participants: make(map[string]application.RoomParticipant),
		createdAt:    p.now(),
	}
	p.logger.DebugContext(ctx, "room created", "room", name, "empty_timeout", opts.EmptyTimeout)
	return nil
}

// IssueAccessToken signs a token for identity in roomName.
func (p *Provider) IssueAccessToken(ctx context.Context, identity, displayName string, role application.Role, roomName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if identity == "" || roomName == "" {
		return "", errors.New("loopback: identity and room are required")
	}
	payload, err := json.Marshal(Claims{
		Identity:  identity,
		Name:      displayName,
		Role:      role,
		Room:      roomName,
		ExpiresAt: p.now().Add(p.ttl).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("loopback: encode claims: %w", err)
	}
	mac, err := p.sign(payload)
	if err != nil {
		return "", err
	}
	enc := base64.RawURLEncoding
	return enc.EncodeToString(payload) + "." + enc.EncodeToString(mac), nil
}

// Verify checks the MAC and expiry of token and returns its claims.
func (p *Provider) Verify(token string) (Claims, error) {
	encodedPayload, encodedMAC, ok := strings.Cut(token, ".")
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	enc := base64.RawURLEncoding
	payload, err := enc.DecodeString(encodedPayload)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	mac, err := enc.DecodeString(encodedMAC)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	want, err := p.sign(payload)
	if err != nil {
		return Claims{}, err
	}
	if subtle.ConstantTimeCompare(mac, want) != 1 {
		return Claims{}, ErrInvalidToken
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, ErrInvalidToken
	}
	if p.now().Unix() >= claims.ExpiresAt {
		return Claims{}, fmt.Errorf("%w: expired", ErrInvalidToken)
	}
	return claims, nil
}

// Join admits the bearer of token into the room it was issued for.
func (p *Provider) Join(ctx context.Context, token string) (application.RoomParticipant, error) {
	claims, err := p.Verify(token)
	if err != nil {
		return application.RoomParticipant{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.rooms[claims.Room]
	if !ok {
		return application.RoomParticipant{}, fmt.Errorf("%w: %s", ErrRoomNotFound, claims.Room)
	}
	participant := application.RoomParticipant{
		Identity:    claims.Identity,
		DisplayName: claims.Name,
		Metadata:    string(claims.Role),
	}
	r.participants[claims.Identity] = participant
	p.logger.DebugContext(ctx, "participant joined", "room", claims.Room, "identity", claims.Identity)
	return participant, nil
}

// StartRecordingEgress starts a recording of roomName.
func (p *Provider) StartRecordingEgress(ctx context.Context, roomName string) (application.Recording, error) {
	if err := ctx.Err(); err != nil {
		return application.Recording{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.rooms[roomName]; !ok {
		return application.Recording{}, fmt.Errorf("%w: %s", ErrRoomNotFound, roomName)
	}
	handle := "EG_" + uuid.NewString()
	p.recordings[handle] = &recording{room: roomName}

	result := application.Recording{Handle: handle}
	if p.playback != "" {
		result.PlaybackURL = p.playback + "/" + roomName + "/" + handle + ".mp4"
	}
	return result, nil
}

// StopRecordingEgress stops a recording. Stopping twice is allowed.
func (p *Provider) StopRecordingEgress(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.recordings[handle]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRecordingNotFound, handle)
	}
	rec.stopped = true
	return nil
}

// Recording reports whether handle exists and whether it was stopped.
func (p *Provider) Recording(handle string) (exists, stopped bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.recordings[handle]
	if !ok {
		return false, false
	}
	return true, rec.stopped
}

// ListParticipants returns the room's participants ordered by identity.
func (p *Provider) ListParticipants(ctx context.Context, roomName string) ([]application.RoomParticipant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.rooms[roomName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomName)
	}
	out := make([]application.RoomParticipant, 0, len(r.participants))
	for _, participant := range r.participants {
		out = append(out, participant)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}

// MoveParticipant moves identity between rooms. The target room is created
// when missing.
func (p *Provider) MoveParticipant(ctx context.Context, fromRoom, identity, toRoom string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	from, ok := p.rooms[fromRoom]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, fromRoom)
	}
	participant, ok := from.participants[identity]
	if !ok {
		return fmt.Errorf("%w: %s in %s", ErrParticipantNotFound, identity, fromRoom)
	}
	to, ok := p.rooms[toRoom]
	if !ok {
		to = &room{
			name:         toRoom,
			participants: make(map[string]application.RoomParticipant),
			createdAt:    p.now(),
		}
		p.rooms[toRoom] = to
	}
	delete(from.participants, identity)
	to.participants[identity] = participant
	return nil
}

func (p *Provider) sign(payload []byte) ([]byte, error) {
	h, err := blake2b.New256(p.key)
	if err != nil {
		return nil, fmt.Errorf("loopback: init mac: %w", err)
	}
	h.Write(payload)
	return h.Sum(nil), nil
}
