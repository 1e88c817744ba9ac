package service

import (
	"context"
	"log/slog"

	"github.com/skillboard-api/internal/config"
	"github.com/skillboard-api/internal/domain"
	"github.com/skillboard-api/internal/websocket"
)

// Store is the key-value persistence the service operates on. Implemented by
// the Redis store; tests use in-memory fakes.
type Store interface {
	PutSkill(ctx context.Context, skill domain.Skill) error
	GetSkill(ctx context.Context, skillID string) (*domain.Skill, error)
	ListSkills(ctx context.Context) ([]domain.Skill, error)

	AddAssociation(ctx context.Context, address, skillID string) (bool, error)
	HasAssociation(ctx context.Context, address, skillID string) (bool, error)
	UserSkills(ctx context.Context, address string) ([]domain.UserSkill, error)
	AddEndorser(ctx context.Context, owner, skillID, endorser string) (bool, error)
	CountEndorsers(ctx context.Context, owner, skillID string) (int64, error)

	InitLeaderboardEntry(ctx context.Context, skillID string) error
	IncrementLeaderboard(ctx context.Context, skillID string, delta int64) (int64, error)
	TopSkills(ctx context.Context, n int) ([]domain.LeaderboardScore, error)

	PutUser(ctx context.Context, user domain.User) error
	GetUser(ctx context.Context, address string) (*domain.User, error)
	AddKnownAddress(ctx context.Context, address string) (bool, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	NotificationToken(ctx context.Context, fid int64) (string, error)
	SetNotificationToken(ctx context.Context, fid int64, token string) error
	DeleteNotificationToken(ctx context.Context, fid int64) error
}

// Archive is the durable store behind Redis. Archive writes are never
// allowed to fail the triggering operation.
type Archive interface {
	UpsertUser(ctx context.Context, user domain.User) error
	UpsertSkill(ctx context.Context, skill domain.Skill) error
	RecordEndorsement(ctx context.Context, event domain.EndorsementEvent) error
}

// Notifier delivers messages through the notification gateway
type Notifier interface {
	Send(ctx context.Context, fid int64, token, title, body string) error
}

// SkillService provides business logic for skills, endorsements, the
// leaderboard and the user registry
type SkillService struct {
	store    Store
	archive  Archive
	notifier Notifier
	hub      *websocket.Hub
	config   *config.LeaderboardConfig
	logger   *slog.Logger
}

// NewSkillService creates a new skill service. archive and notifier may be
// nil; the corresponding side effects are skipped.
func NewSkillService(
	store Store,
	archive Archive,
	notifier Notifier,
	cfg *config.LeaderboardConfig,
	logger *slog.Logger,
) *SkillService {
	return &SkillService{
		store:    store,
		archive:  archive,
		notifier: notifier,
		config:   cfg,
		logger:   logger,
	}
}

// SetHub sets the WebSocket hub used for broadcasting updates
func (s *SkillService) SetHub(hub *websocket.Hub) {
	s.hub = hub
}
