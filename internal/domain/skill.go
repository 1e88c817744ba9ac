package domain

import (
	"time"
)

// Skill is a globally visible skill definition. Skills are immutable once
// created; there is no update or delete path.
type Skill struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

// UserSkill is a user's association with a skill, together with the
// endorsements it has received. EndorsementCount always equals the size
// of EndorsedBy.
type UserSkill struct {
	SkillID          string   `json:"skillId"`
	EndorsementCount int64    `json:"endorsements"`
	EndorsedBy       []string `json:"endorsedBy"`
}

// RankedSkill is a leaderboard entry joined back to the catalog
type RankedSkill struct {
	Skill Skill `json:"skill"`
	Score int64 `json:"score"`
}

// LeaderboardScore is a raw leaderboard entry before the catalog join
type LeaderboardScore struct {
	SkillID string `json:"skill_id"`
	Score   int64  `json:"score"`
}

// EndorsementEvent records a single successful endorsement. It is the
// archive row written to PostgreSQL and the Kafka ingestion message format.
type EndorsementEvent struct {
	Endorser  string    `json:"endorser"`
	Owner     string    `json:"owner"`
	SkillID   string    `json:"skill_id"`
	Timestamp time.Time `json:"timestamp"`
}

// CreateSkillRequest is the POST /skills payload
type CreateSkillRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedBy   string `json:"createdBy"`
}

// Validate checks that all required fields are present
func (r *CreateSkillRequest) Validate() error {
	if r.Name == "" || r.Description == "" || r.CreatedBy == "" {
		return ErrInvalidRequest
	}
	return nil
}

// Mutation types accepted by PUT /skills
const (
	MutationTypeAdd     = "add"
	MutationTypeEndorse = "endorse"
)

// SkillMutationRequest is the PUT /skills payload. Type "add" associates an
// existing skill with Address; type "endorse" records Address endorsing
// SkilledAddress's skill.
type SkillMutationRequest struct {
	Type           string `json:"type"`
	Address        string `json:"address"`
	SkillID        string `json:"skillId"`
	SkilledAddress string `json:"skilledAddress,omitempty"`
}

// Validate checks the mutation payload for the given type
func (r *SkillMutationRequest) Validate() error {
	switch r.Type {
	case MutationTypeAdd:
		if r.Address == "" || r.SkillID == "" {
			return ErrInvalidRequest
		}
	case MutationTypeEndorse:
		if r.Address == "" || r.SkillID == "" || r.SkilledAddress == "" {
			return ErrInvalidRequest
		}
	default:
		return ErrInvalidRequest
	}
	return nil
}
