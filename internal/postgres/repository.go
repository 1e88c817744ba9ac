package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skillboard-api/internal/config"
	"github.com/skillboard-api/internal/domain"
)

// Repository is the durable archive behind the Redis store. It keeps users,
// skills, leaderboard scores and an append-only endorsement event log, and
// serves recovery when Redis starts empty.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			address VARCHAR(64) PRIMARY KEY,
			fid BIGINT,
			first_seen TIMESTAMP NOT NULL,
			last_seen TIMESTAMP NOT NULL,
			notifications_enabled BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS skills (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL,
			created_by VARCHAR(64) NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS skill_scores (
			skill_id VARCHAR(64) PRIMARY KEY,
			score BIGINT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS endorsement_events (
			id BIGSERIAL PRIMARY KEY,
			endorser VARCHAR(64) NOT NULL,
			owner VARCHAR(64) NOT NULL,
			skill_id VARCHAR(64) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_skill_scores_score ON skill_scores(score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_endorsement_events_skill ON endorsement_events(skill_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_endorsement_events_owner ON endorsement_events(owner, created_at DESC)`,
	}

	for _, migration := range migrations {
		if _, err := r.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// UpsertUser archives a user record
func (r *Repository) UpsertUser(ctx context.Context, user domain.User) error {
	query := `
		INSERT INTO users (address, fid, first_seen, last_seen, notifications_enabled)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address) DO UPDATE SET
			fid = EXCLUDED.fid,
			last_seen = EXCLUDED.last_seen,
			notifications_enabled = EXCLUDED.notifications_enabled
	`
	var fid *int64
	if user.FID != 0 {
		fid = &user.FID
	}
	_, err := r.pool.Exec(ctx, query, user.Address, fid, user.FirstSeen, user.LastSeen, user.NotificationsEnabled)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

// UpsertSkill archives a skill definition
func (r *Repository) UpsertSkill(ctx context.Context, skill domain.Skill) error {
	query := `
		INSERT INTO skills (id, name, description, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, skill.ID, skill.Name, skill.Description, skill.CreatedBy, skill.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting skill: %w", err)
	}
	return nil
}

// RecordEndorsement appends an endorsement event to the audit log
func (r *Repository) RecordEndorsement(ctx context.Context, event domain.EndorsementEvent) error {
	query := `
		INSERT INTO endorsement_events (endorser, owner, skill_id, created_at)
		VALUES ($1, $2, $3, $4)
	`
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := r.pool.Exec(ctx, query, event.Endorser, event.Owner, event.SkillID, ts)
	if err != nil {
		return fmt.Errorf("recording endorsement event: %w", err)
	}
	return nil
}

// BatchUpsertScores writes a batch of leaderboard scores
func (r *Repository) BatchUpsertScores(ctx context.Context, scores map[string]int64) error {
	query := `
		INSERT INTO skill_scores (skill_id, score, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (skill_id) DO UPDATE SET
			score = EXCLUDED.score,
			updated_at = CURRENT_TIMESTAMP
	`
	for skillID, score := range scores {
		if _, err := r.pool.Exec(ctx, query, skillID, score); err != nil {
			return fmt.Errorf("upserting score for %s: %w", skillID, err)
		}
	}
	return nil
}

// AllScores returns every archived leaderboard score, used for recovery
func (r *Repository) AllScores(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT skill_id, score FROM skill_scores`)
	if err != nil {
		return nil, fmt.Errorf("querying scores: %w", err)
	}
	defer rows.Close()

	scores := make(map[string]int64)
	for rows.Next() {
		var skillID string
		var score int64
		if err := rows.Scan(&skillID, &score); err != nil {
			return nil, fmt.Errorf("scanning score row: %w", err)
		}
		scores[skillID] = score
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading score rows: %w", err)
	}
	return scores, nil
}

// ListSkills returns all archived skills, used for recovery
func (r *Repository) ListSkills(ctx context.Context) ([]domain.Skill, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, created_by, created_at FROM skills`)
	if err != nil {
		return nil, fmt.Errorf("querying skills: %w", err)
	}
	defer rows.Close()

	var skills []domain.Skill
	for rows.Next() {
		var skill domain.Skill
		if err := rows.Scan(&skill.ID, &skill.Name, &skill.Description, &skill.CreatedBy, &skill.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning skill row: %w", err)
		}
		skills = append(skills, skill)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading skill rows: %w", err)
	}
	return skills, nil
}

// EndorsementCountBySkill aggregates archived endorsement events per skill.
// Used to cross-check the live leaderboard against the audit log.
func (r *Repository) EndorsementCountBySkill(ctx context.Context, skillID string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM endorsement_events WHERE skill_id = $1`, skillID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting endorsement events: %w", err)
	}
	return count, nil
}
