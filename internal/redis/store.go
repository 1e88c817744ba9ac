package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/skillboard-api/internal/config"
	"github.com/skillboard-api/internal/domain"
)

// Store provides Redis-based access to skills, users, associations and the
// skill leaderboard. The client is a required constructor dependency;
// connection failure surfaces once at startup.
type Store struct {
	client *redis.Client
	logger *slog.Logger
}

// NewStore creates a new Redis store and verifies the connection
func NewStore(cfg *config.RedisConfig, logger *slog.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Store{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client
func (s *Store) Client() *redis.Client {
	return s.client
}

const (
	skillsKey      = "skills:all"
	leaderboardKey = "skills:leaderboard"
	usersKey       = "users:all"
)

// userKey returns the Redis key for a user record
func userKey(address string) string {
	return fmt.Sprintf("user:%s", address)
}

// userSkillsKey returns the Redis key for a user's skill association hash
func userSkillsKey(address string) string {
	return fmt.Sprintf("user:%s:skills", address)
}

// endorsersKey returns the Redis key for an association's endorser set
func endorsersKey(address, skillID string) string {
	return fmt.Sprintf("user:%s:skills:%s:endorsers", address, skillID)
}

// notifyTokenKey returns the Redis key for a user's notification token
func notifyTokenKey(fid int64) string {
	return fmt.Sprintf("notify:user:%d", fid)
}

// association is the stored shape of a user-skill association. The endorser
// set lives in its own Redis set so endorsement writes stay atomic.
type association struct {
	SkillID string    `json:"skill_id"`
	AddedAt time.Time `json:"added_at"`
}

// PutSkill persists a skill in the catalog hash
func (s *Store) PutSkill(ctx context.Context, skill domain.Skill) error {
	raw, err := encode(skill)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, skillsKey, skill.ID, raw).Err(); err != nil {
		return fmt.Errorf("storing skill: %w", err)
	}
	return nil
}

// GetSkill retrieves a skill by id
func (s *Store) GetSkill(ctx context.Context, skillID string) (*domain.Skill, error) {
	raw, err := s.client.HGet(ctx, skillsKey, skillID).Result()
	if err == redis.Nil {
		return nil, domain.ErrSkillNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting skill: %w", err)
	}

	var skill domain.Skill
	if err := decode(raw, &skill); err != nil {
		return nil, err
	}
	return &skill, nil
}

// ListSkills returns all skills in store order
func (s *Store) ListSkills(ctx context.Context) ([]domain.Skill, error) {
	raws, err := s.client.HGetAll(ctx, skillsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing skills: %w", err)
	}

	skills := make([]domain.Skill, 0, len(raws))
	for id, raw := range raws {
		var skill domain.Skill
		if err := decode(raw, &skill); err != nil {
			s.logger.Warn("skipping undecodable skill record", "skill_id", id, "error", err)
			continue
		}
		skills = append(skills, skill)
	}
	return skills, nil
}

// AddAssociation creates a user-skill association if it does not already
// exist. Returns false when the user already holds the skill.
func (s *Store) AddAssociation(ctx context.Context, address, skillID string) (bool, error) {
	raw, err := encode(association{SkillID: skillID, AddedAt: time.Now()})
	if err != nil {
		return false, err
	}
	added, err := s.client.HSetNX(ctx, userSkillsKey(address), skillID, raw).Result()
	if err != nil {
		return false, fmt.Errorf("adding association: %w", err)
	}
	return added, nil
}

// HasAssociation reports whether the user holds the skill
func (s *Store) HasAssociation(ctx context.Context, address, skillID string) (bool, error) {
	exists, err := s.client.HExists(ctx, userSkillsKey(address), skillID).Result()
	if err != nil {
		return false, fmt.Errorf("checking association: %w", err)
	}
	return exists, nil
}

// UserSkills returns all of a user's skill associations with their endorsers
func (s *Store) UserSkills(ctx context.Context, address string) ([]domain.UserSkill, error) {
	raws, err := s.client.HGetAll(ctx, userSkillsKey(address)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing user skills: %w", err)
	}

	skills := make([]domain.UserSkill, 0, len(raws))
	for skillID := range raws {
		endorsers, err := s.client.SMembers(ctx, endorsersKey(address, skillID)).Result()
		if err != nil {
			return nil, fmt.Errorf("getting endorsers: %w", err)
		}
		if endorsers == nil {
			endorsers = []string{}
		}
		skills = append(skills, domain.UserSkill{
			SkillID:          skillID,
			EndorsementCount: int64(len(endorsers)),
			EndorsedBy:       endorsers,
		})
	}
	return skills, nil
}

// AddEndorser adds an endorser to an association's endorser set. The SADD is
// atomic; false means the endorser was already present. The endorsement count
// is derived from this set, so count and membership cannot drift apart.
func (s *Store) AddEndorser(ctx context.Context, owner, skillID, endorser string) (bool, error) {
	added, err := s.client.SAdd(ctx, endorsersKey(owner, skillID), endorser).Result()
	if err != nil {
		return false, fmt.Errorf("adding endorser: %w", err)
	}
	return added > 0, nil
}

// CountEndorsers returns the endorsement count for an association
func (s *Store) CountEndorsers(ctx context.Context, owner, skillID string) (int64, error) {
	count, err := s.client.SCard(ctx, endorsersKey(owner, skillID)).Result()
	if err != nil {
		return 0, fmt.Errorf("counting endorsers: %w", err)
	}
	return count, nil
}

// InitLeaderboardEntry registers a skill on the leaderboard at score 0
// without touching an existing score
func (s *Store) InitLeaderboardEntry(ctx context.Context, skillID string) error {
	err := s.client.ZAddNX(ctx, leaderboardKey, redis.Z{
		Score:  0,
		Member: skillID,
	}).Err()
	if err != nil {
		return fmt.Errorf("initializing leaderboard entry: %w", err)
	}
	return nil
}

// IncrementLeaderboard atomically increments a skill's aggregate score
func (s *Store) IncrementLeaderboard(ctx context.Context, skillID string, delta int64) (int64, error) {
	score, err := s.client.ZIncrBy(ctx, leaderboardKey, float64(delta), skillID).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing leaderboard: %w", err)
	}
	return int64(score), nil
}

// TopSkills returns the top N skill ids by aggregate score, descending
func (s *Store) TopSkills(ctx context.Context, n int) ([]domain.LeaderboardScore, error) {
	results, err := s.client.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top skills: %w", err)
	}

	scores := make([]domain.LeaderboardScore, len(results))
	for i, result := range results {
		scores[i] = domain.LeaderboardScore{
			SkillID: result.Member.(string),
			Score:   int64(result.Score),
		}
	}
	return scores, nil
}

// AllLeaderboardScores returns every leaderboard entry, used by the archive
// worker
func (s *Store) AllLeaderboardScores(ctx context.Context) (map[string]int64, error) {
	results, err := s.client.ZRangeWithScores(ctx, leaderboardKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("getting all leaderboard scores: %w", err)
	}

	scores := make(map[string]int64, len(results))
	for _, result := range results {
		scores[result.Member.(string)] = int64(result.Score)
	}
	return scores, nil
}

// LeaderboardSize returns the number of skills on the leaderboard
func (s *Store) LeaderboardSize(ctx context.Context) (int64, error) {
	count, err := s.client.ZCard(ctx, leaderboardKey).Result()
	if err != nil {
		return 0, fmt.Errorf("getting leaderboard size: %w", err)
	}
	return count, nil
}

// BatchSetLeaderboard writes multiple leaderboard scores using pipelining.
// Used for recovery from the archive.
func (s *Store) BatchSetLeaderboard(ctx context.Context, scores map[string]int64) error {
	pipe := s.client.Pipeline()
	for skillID, score := range scores {
		pipe.ZAdd(ctx, leaderboardKey, redis.Z{
			Score:  float64(score),
			Member: skillID,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("batch setting leaderboard: %w", err)
	}
	return nil
}

// PutUser persists a user record
func (s *Store) PutUser(ctx context.Context, user domain.User) error {
	raw, err := encode(user)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, userKey(user.Address), raw, 0).Err(); err != nil {
		return fmt.Errorf("storing user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by normalized address
func (s *Store) GetUser(ctx context.Context, address string) (*domain.User, error) {
	raw, err := s.client.Get(ctx, userKey(address)).Result()
	if err == redis.Nil {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}

	var user domain.User
	if err := decode(raw, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// AddKnownAddress inserts an address into the global set of known addresses.
// Returns false when the address was already known.
func (s *Store) AddKnownAddress(ctx context.Context, address string) (bool, error) {
	added, err := s.client.SAdd(ctx, usersKey, address).Result()
	if err != nil {
		return false, fmt.Errorf("adding known address: %w", err)
	}
	return added > 0, nil
}

// ListUsers returns all known users. Unbounded; the corpus is assumed small.
func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	addresses, err := s.client.SMembers(ctx, usersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing known addresses: %w", err)
	}

	users := make([]domain.User, 0, len(addresses))
	for _, address := range addresses {
		user, err := s.GetUser(ctx, address)
		if err == domain.ErrUserNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, nil
}

// NotificationToken returns a user's stored delivery token, or empty when
// none is set
func (s *Store) NotificationToken(ctx context.Context, fid int64) (string, error) {
	token, err := s.client.Get(ctx, notifyTokenKey(fid)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting notification token: %w", err)
	}
	return token, nil
}

// SetNotificationToken stores a user's delivery token
func (s *Store) SetNotificationToken(ctx context.Context, fid int64, token string) error {
	if err := s.client.Set(ctx, notifyTokenKey(fid), token, 0).Err(); err != nil {
		return fmt.Errorf("setting notification token: %w", err)
	}
	return nil
}

// DeleteNotificationToken removes a user's delivery token
func (s *Store) DeleteNotificationToken(ctx context.Context, fid int64) error {
	if err := s.client.Del(ctx, notifyTokenKey(fid)).Err(); err != nil {
		return fmt.Errorf("deleting notification token: %w", err)
	}
	return nil
}
