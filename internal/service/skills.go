package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/skillboard-api/internal/domain"
	"github.com/skillboard-api/internal/websocket"
)

// notifyTimeout bounds the fire-and-forget notification send
const notifyTimeout = 5 * time.Second

// newSkillID generates a practically unique skill id. Time-ordered prefix
// plus a random suffix; uniqueness need not be cryptographic.
func newSkillID() string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("skill_%d_%s", time.Now().UnixMilli(), suffix)
}

// CreateSkill creates a skill, associates the creator with it at zero
// endorsements and registers it on the leaderboard
func (s *SkillService) CreateSkill(ctx context.Context, req domain.CreateSkillRequest) (*domain.Skill, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	creator := domain.NormalizeAddress(req.CreatedBy)
	skill := domain.Skill{
		ID:          newSkillID(),
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   creator,
		CreatedAt:   time.Now(),
	}

	if err := s.store.PutSkill(ctx, skill); err != nil {
		return nil, fmt.Errorf("storing skill: %w", err)
	}

	if _, err := s.store.AddAssociation(ctx, creator, skill.ID); err != nil {
		return nil, fmt.Errorf("associating creator: %w", err)
	}

	if _, err := s.RegisterOrTouch(ctx, creator, 0); err != nil {
		s.logger.Warn("failed to touch creator record", "address", creator, "error", err)
	}

	if err := s.store.InitLeaderboardEntry(ctx, skill.ID); err != nil {
		return nil, fmt.Errorf("initializing leaderboard entry: %w", err)
	}

	if s.archive != nil {
		if err := s.archive.UpsertSkill(ctx, skill); err != nil {
			s.logger.Warn("failed to archive skill", "skill_id", skill.ID, "error", err)
		}
	}

	s.logger.Info("skill created", "skill_id", skill.ID, "name", skill.Name, "created_by", creator)
	return &skill, nil
}

// GetSkill returns a skill by id
func (s *SkillService) GetSkill(ctx context.Context, skillID string) (*domain.Skill, error) {
	return s.store.GetSkill(ctx, skillID)
}

// ListSkills returns all skills in the catalog
func (s *SkillService) ListSkills(ctx context.Context) ([]domain.Skill, error) {
	return s.store.ListSkills(ctx)
}

// UserSkills returns a user's skill associations
func (s *SkillService) UserSkills(ctx context.Context, address string) ([]domain.UserSkill, error) {
	return s.store.UserSkills(ctx, domain.NormalizeAddress(address))
}

// AddSkillToUser associates an existing skill with a user. Idempotent:
// adding an already-held skill succeeds without duplicating state.
func (s *SkillService) AddSkillToUser(ctx context.Context, address, skillID string) error {
	address = domain.NormalizeAddress(address)

	if _, err := s.store.GetSkill(ctx, skillID); err != nil {
		return err
	}

	if _, err := s.store.AddAssociation(ctx, address, skillID); err != nil {
		return fmt.Errorf("adding association: %w", err)
	}

	if _, err := s.RegisterOrTouch(ctx, address, 0); err != nil {
		s.logger.Warn("failed to touch user record", "address", address, "error", err)
	}
	return nil
}

// Endorse records an endorsement of owner's skill by endorser. Preconditions
// short-circuit in order: no self-endorsement, the association must exist,
// and the endorser must not already be in the endorser set. On success the
// skill's leaderboard score is incremented by exactly one, both user records
// are touched, the event is archived and the owner is notified. Archive and
// notification failures never roll back the endorsement.
func (s *SkillService) Endorse(ctx context.Context, endorser, owner, skillID string) error {
	endorser = domain.NormalizeAddress(endorser)
	owner = domain.NormalizeAddress(owner)

	if endorser == owner {
		return domain.ErrSelfEndorsement
	}

	has, err := s.store.HasAssociation(ctx, owner, skillID)
	if err != nil {
		return fmt.Errorf("checking association: %w", err)
	}
	if !has {
		return domain.ErrAssociationNotFound
	}

	added, err := s.store.AddEndorser(ctx, owner, skillID, endorser)
	if err != nil {
		return fmt.Errorf("adding endorser: %w", err)
	}
	if !added {
		return domain.ErrAlreadyEndorsed
	}

	score, err := s.store.IncrementLeaderboard(ctx, skillID, 1)
	if err != nil {
		return fmt.Errorf("incrementing leaderboard: %w", err)
	}

	if _, err := s.RegisterOrTouch(ctx, endorser, 0); err != nil {
		s.logger.Warn("failed to touch endorser record", "address", endorser, "error", err)
	}
	if _, err := s.RegisterOrTouch(ctx, owner, 0); err != nil {
		s.logger.Warn("failed to touch owner record", "address", owner, "error", err)
	}

	if s.archive != nil {
		event := domain.EndorsementEvent{
			Endorser:  endorser,
			Owner:     owner,
			SkillID:   skillID,
			Timestamp: time.Now(),
		}
		if err := s.archive.RecordEndorsement(ctx, event); err != nil {
			s.logger.Warn("failed to archive endorsement event", "skill_id", skillID, "error", err)
		}
	}

	count, err := s.store.CountEndorsers(ctx, owner, skillID)
	if err != nil {
		s.logger.Warn("failed to count endorsers for broadcast", "skill_id", skillID, "error", err)
		count = 0
	}

	if s.hub != nil {
		s.hub.BroadcastEndorsement(websocket.EndorsementUpdate{
			SkillID:  skillID,
			Owner:    owner,
			Endorser: endorser,
			Count:    count,
		})
		if entries, err := s.TopSkills(ctx, s.config.DefaultLimit); err == nil {
			s.hub.BroadcastLeaderboardUpdate(entries)
		}
	}

	// Fire-and-forget: notification failure must not fail the endorsement
	go s.notifyOwner(owner, skillID)

	s.logger.Info("endorsement recorded",
		"endorser", endorser,
		"owner", owner,
		"skill_id", skillID,
		"score", score,
	)
	return nil
}

// notifyOwner sends an endorsement notification to the skill owner if they
// have notifications enabled and a stored delivery token
func (s *SkillService) notifyOwner(owner, skillID string) {
	if s.notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	user, err := s.store.GetUser(ctx, owner)
	if err != nil {
		s.logger.Warn("skipping notification, owner lookup failed", "address", owner, "error", err)
		return
	}
	if !user.NotificationsEnabled || user.FID == 0 {
		return
	}

	token, err := s.store.NotificationToken(ctx, user.FID)
	if err != nil {
		s.logger.Warn("skipping notification, token lookup failed", "fid", user.FID, "error", err)
		return
	}
	if token == "" {
		return
	}

	err = s.notifier.Send(ctx, user.FID, token,
		"New Endorsement!",
		"You received an endorsement for your skill!",
	)
	if err != nil {
		s.logger.Warn("failed to send endorsement notification",
			"fid", user.FID,
			"skill_id", skillID,
			"error", err,
		)
	}
}

// TopSkills returns the top N skills by aggregate endorsement count, joined
// back to the catalog. Entries whose skill lookup fails are dropped.
func (s *SkillService) TopSkills(ctx context.Context, n int) ([]domain.RankedSkill, error) {
	if n <= 0 {
		n = s.config.DefaultLimit
	}
	if n > s.config.MaxLimit {
		n = s.config.MaxLimit
	}

	scores, err := s.store.TopSkills(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("getting top skills: %w", err)
	}

	ranked := make([]domain.RankedSkill, 0, len(scores))
	for _, score := range scores {
		skill, err := s.store.GetSkill(ctx, score.SkillID)
		if err == domain.ErrSkillNotFound {
			s.logger.Warn("dropping leaderboard entry without catalog record", "skill_id", score.SkillID)
			continue
		}
		if err != nil {
			return nil, err
		}
		ranked = append(ranked, domain.RankedSkill{Skill: *skill, Score: score.Score})
	}
	return ranked, nil
}
