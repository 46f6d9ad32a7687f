// Package livekit adapts a LiveKit server to application.RoomProvider.
package livekit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"

	"github.com/example/session-orchestrator/internal/application"
)

const defaultTokenTTL = 6 * time.Hour

// RoomService is the subset of lksdk.RoomServiceClient the adapter uses.
type RoomService interface {
	CreateRoom(ctx context.Context, req *livekit.CreateRoomRequest) (*livekit.Room, error)
	ListParticipants(ctx context.Context, req *livekit.ListParticipantsRequest) (*livekit.ListParticipantsResponse, error)
	MoveParticipant(ctx context.Context, req *livekit.MoveParticipantRequest) (*livekit.MoveParticipantResponse, error)
}

// EgressService is the subset of lksdk.EgressClient the adapter uses.
type EgressService interface {
	StartRoomCompositeEgress(ctx context.Context, req *livekit.RoomCompositeEgressRequest) (*livekit.EgressInfo, error)
	StopEgress(ctx context.Context, req *livekit.StopEgressRequest) (*livekit.EgressInfo, error)
}

// Config holds LiveKit credentials.
type Config struct {
	URL       string
	APIKey    string
	APISecret string
	// RecordingPath is the egress file prefix. Empty disables recording.
	RecordingPath string
	TokenTTL      time.Duration
	Logger        *slog.Logger
}

func (c Config) validate() error {
	var missing []string
	if strings.TrimSpace(c.URL) == "" {
		missing = append(missing, "url")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		missing = append(missing, "api_key")
	}
	if strings.TrimSpace(c.APISecret) == "" {
		missing = append(missing, "api_secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("livekit: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Provider talks to LiveKit through its server API.
type Provider struct {
	rooms     RoomService
	egress    EgressService
	apiKey    string
	apiSecret string
	recording string
	ttl       time.Duration
	logger    *slog.Logger
}

var _ application.RoomProvider = (*Provider)(nil)

// New builds a provider with the SDK's room and egress clients.
func New(cfg Config) (*Provider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	rooms := lksdk.NewRoomServiceClient(cfg.URL, cfg.APIKey, cfg.APISecret)
	egress := lksdk.NewEgressClient(cfg.URL, cfg.APIKey, cfg.APISecret)
	return NewWithClients(cfg, rooms, egress)
}

// NewWithClients builds a provider over caller supplied clients.
func NewWithClients(cfg Config, rooms RoomService, egress EgressService) (*Provider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Provider{
		rooms:     rooms,
		egress:    egress,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		recording: strings.TrimSuffix(cfg.RecordingPath, "/"),
		ttl:       cfg.TokenTTL,
		logger:    logger.With("component", "livekit_provider"),
	}, nil
}

// EnsureRoom creates the room. LiveKit returns the existing room when the
// name is taken, so repeated calls succeed.
func (p *Provider) EnsureRoom(ctx context.Context, name string, opts application.RoomOptions) error {
	req := &livekit.CreateRoomRequest{Name: name}
	if opts.EmptyTimeout > 0 {
		req.EmptyTimeout = uint32(opts.EmptyTimeout / time.Second)
	}
	room, err := p.rooms.CreateRoom(ctx, req)
	if err != nil {
		return fmt.Errorf("livekit: create room %s: %w", name, err)
	}
	p.logger.DebugContext(ctx, "room ensured", "room", name, "sid", room.GetSid())
	return nil
}

// IssueAccessToken signs a join token. Observers may subscribe only;
// moderators and admins also receive room admin rights.
func (p *Provider) IssueAccessToken(ctx context.Context, identity, displayName string, role application.Role, roomName string) (string, error) {
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     roomName,
	}
	grant.SetCanSubscribe(true)
	switch role {
	case application.RoleObserver:
		grant.SetCanPublish(false)
		grant.SetCanPublishData(false)
	case application.RoleModerator, application.RoleAdmin:
		grant.SetCanPublish(true)
		grant.SetCanPublishData(true)
		grant.RoomAdmin = true
	default:
		grant.SetCanPublish(true)
		grant.SetCanPublishData(true)
	}

	token, err := auth.NewAccessToken(p.apiKey, p.apiSecret).
		SetVideoGrant(grant).
		SetIdentity(identity).
		SetName(displayName).
		SetMetadata(string(role)).
		SetValidFor(p.ttl).
		ToJWT()
	if err != nil {
		return "", fmt.Errorf("livekit: sign token: %w", err)
	}
	return token, nil
}

// StartRecordingEgress starts a composite MP4 recording of the room.
func (p *Provider) StartRecordingEgress(ctx context.Context, roomName string) (application.Recording, error) {
	if p.recording == "" {
		return application.Recording{}, errors.New("livekit: recording path not configured")
	}
	filepath := path.Join(p.recording, roomName+"-{time}.mp4")
	info, err := p.egress.StartRoomCompositeEgress(ctx, &livekit.RoomCompositeEgressRequest{
		RoomName: roomName,
		Layout:   "grid",
		FileOutputs: []*livekit.EncodedFileOutput{{
			FileType: livekit.EncodedFileType_MP4,
			Filepath: filepath,
		}},
	})
	if err != nil {
		return application.Recording{}, fmt.Errorf("livekit: start egress for %s: %w", roomName, err)
	}
	return application.Recording{Handle: info.GetEgressId(), PlaybackURL: filepath}, nil
}

// StopRecordingEgress stops an egress by id.
func (p *Provider) StopRecordingEgress(ctx context.Context, handle string) error {
	if _, err := p.egress.StopEgress(ctx, &livekit.StopEgressRequest{EgressId: handle}); err != nil {
		return fmt.Errorf("livekit: stop egress %s: %w", handle, err)
	}
	return nil
}

// ListParticipants lists the room's participants.
func (p *Provider) ListParticipants(ctx context.Context, roomName string) ([]application.RoomParticipant, error) {
	res, err := p.rooms.ListParticipants(ctx, &livekit.ListParticipantsRequest{Room: roomName})
	if err != nil {
		return nil, fmt.Errorf("livekit: list participants of %s: %w", roomName, err)
	}
	out := make([]application.RoomParticipant, 0, len(res.GetParticipants()))
	for _, info := range res.GetParticipants() {
		out = append(out, application.RoomParticipant{
			Identity:    info.GetIdentity(),
			DisplayName: info.GetName(),
			Metadata:    info.GetMetadata(),
		})
	}
	return out, nil
}

// MoveParticipant moves identity from one room to another.
func (p *Provider) MoveParticipant(ctx context.Context, fromRoom, identity, toRoom string) error {
	_, err := p.rooms.MoveParticipant(ctx, &livekit.MoveParticipantRequest{
		Room:            fromRoom,
		Identity:        identity,
		DestinationRoom: toRoom,
	})
	if err != nil {
		return fmt.Errorf("livekit: move %s from %s to %s: %w", identity, fromRoom, toRoom, err)
	}
	return nil
}
