package attestation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/skillboard-api/internal/config"
)

// Client reads skill attestations from the external GraphQL indexer. All
// queries are take-bounded and every request carries the HTTP client's
// timeout. The client is read-only; anchoring attestations on-chain happens
// outside this system.
type Client struct {
	graphqlURL  string
	schemaUID   string
	pageSize    int
	searchLimit int
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates a new attestation indexer client
func NewClient(cfg *config.AttestationConfig, logger *slog.Logger) *Client {
	return &Client{
		graphqlURL:  cfg.GraphQLURL,
		schemaUID:   cfg.SchemaUID,
		pageSize:    cfg.PageSize,
		searchLimit: cfg.SearchLimit,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      logger,
	}
}

// Milestone is a decoded milestone attestation ("<addr> achieved <N>
// endorsements for <skill>")
type Milestone struct {
	AttestationUID   string `json:"attestationUid"`
	TransactionHash  string `json:"transactionHash"`
	Attester         string `json:"attester"`
	SkillName        string `json:"skillName"`
	EndorsementCount int64  `json:"endorsementCount"`
	Timestamp        string `json:"timestamp"`
}

// UserWithSkill is an aggregated per-address view of a skill's attestations
type UserWithSkill struct {
	Address      string `json:"address"`
	SkillLevel   string `json:"skillLevel"`
	Endorsements int64  `json:"endorsements"`
	Timestamp    string `json:"timestamp"`
}

// DecodeError is returned when an attestation payload does not match the
// expected shape. Upstream schema drift fails loudly instead of silently
// producing wrong values.
type DecodeError struct {
	AttestationID string
	Reason        string
	Err           error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decoding attestation %s: %s: %v", e.AttestationID, e.Reason, e.Err)
	}
	return fmt.Sprintf("decoding attestation %s: %s", e.AttestationID, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// rawAttestation is the indexer's wire shape
type rawAttestation struct {
	DecodedDataJSON string `json:"decodedDataJson"`
	Attester        string `json:"attester"`
	Recipient       string `json:"recipient"`
	Time            string `json:"time"`
	ID              string `json:"id"`
	TxID            string `json:"txid"`
}

type graphqlResponse struct {
	Data struct {
		Attestations []rawAttestation `json:"attestations"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// decodedField is one entry of an attestation's decoded value array
type decodedField struct {
	Value struct {
		Value json.RawMessage `json:"value"`
	} `json:"value"`
}

// stringField extracts the string value at index idx, validating presence
// and type
func stringField(id string, fields []decodedField, idx int) (string, error) {
	if idx >= len(fields) {
		return "", &DecodeError{AttestationID: id, Reason: fmt.Sprintf("missing field at index %d (got %d fields)", idx, len(fields))}
	}
	var value string
	if err := json.Unmarshal(fields[idx].Value.Value, &value); err != nil {
		return "", &DecodeError{AttestationID: id, Reason: fmt.Sprintf("field %d is not a string", idx), Err: err}
	}
	return value, nil
}

// decodeFields parses an attestation's decodedDataJson array
func decodeFields(att rawAttestation) ([]decodedField, error) {
	var fields []decodedField
	if err := json.Unmarshal([]byte(att.DecodedDataJSON), &fields); err != nil {
		return nil, &DecodeError{AttestationID: att.ID, Reason: "decodedDataJson is not a field array", Err: err}
	}
	return fields, nil
}

var milestonePattern = regexp.MustCompile(`(0x[a-fA-F0-9]{40}) achieved (\d+) endorsements for (.+)`)

// decodeMilestone extracts the milestone statement from an attestation
func decodeMilestone(att rawAttestation) (skillName string, count int64, err error) {
	fields, err := decodeFields(att)
	if err != nil {
		return "", 0, err
	}
	statement, err := stringField(att.ID, fields, 0)
	if err != nil {
		return "", 0, err
	}
	match := milestonePattern.FindStringSubmatch(statement)
	if match == nil {
		return "", 0, &DecodeError{AttestationID: att.ID, Reason: "statement does not match milestone pattern"}
	}
	count, parseErr := strconv.ParseInt(match[2], 10, 64)
	if parseErr != nil {
		return "", 0, &DecodeError{AttestationID: att.ID, Reason: "invalid endorsement count", Err: parseErr}
	}
	return match[3], count, nil
}

// query executes a GraphQL query against the indexer
func (c *Client) query(ctx context.Context, query string) ([]rawAttestation, error) {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("encoding graphql query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying attestation indexer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attestation indexer returned status %d", resp.StatusCode)
	}

	var decoded graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &DecodeError{Reason: "invalid graphql response body", Err: err}
	}
	if len(decoded.Errors) > 0 {
		return nil, fmt.Errorf("attestation indexer error: %s", decoded.Errors[0].Message)
	}
	return decoded.Data.Attestations, nil
}

// FetchMilestones returns decoded milestone attestations, optionally filtered
// by attester, sorted by endorsement count descending
func (c *Client) FetchMilestones(ctx context.Context, attester string) ([]Milestone, error) {
	where := fmt.Sprintf(`schemaId: { equals: %q }`, c.schemaUID)
	if attester != "" {
		where += fmt.Sprintf(`, attester: { equals: %q }`, attester)
	}

	query := fmt.Sprintf(`
		query GetAttestations {
			attestations(
				where: { %s }
				orderBy: { time: desc }
				take: 10
			) {
				decodedDataJson
				attester
				recipient
				time
				id
				txid
			}
		}
	`, where)

	attestations, err := c.query(ctx, query)
	if err != nil {
		return nil, err
	}

	milestones := make([]Milestone, 0, len(attestations))
	for _, att := range attestations {
		skillName, count, err := decodeMilestone(att)
		if err != nil {
			return nil, err
		}
		milestones = append(milestones, Milestone{
			AttestationUID:   att.ID,
			TransactionHash:  att.TxID,
			Attester:         att.Attester,
			SkillName:        skillName,
			EndorsementCount: count,
			Timestamp:        att.Time,
		})
	}

	sort.SliceStable(milestones, func(i, j int) bool {
		return milestones[i].EndorsementCount > milestones[j].EndorsementCount
	})
	return milestones, nil
}

// HasMilestone reports whether a milestone attestation already exists for the
// given address, skill and endorsement count
func (c *Client) HasMilestone(ctx context.Context, address, skillName string, count int64) (bool, error) {
	milestones, err := c.FetchMilestones(ctx, address)
	if err != nil {
		return false, err
	}
	for _, m := range milestones {
		if m.SkillName == skillName && m.EndorsementCount == count {
			return true, nil
		}
	}
	return false, nil
}

// userAggregate tracks one recipient during aggregation
type userAggregate struct {
	UserWithSkill
	attestationIDs map[string]bool
}

// UsersWithSkill aggregates attestations into a per-address ranking for one
// skill. A self-attestation (attester == recipient) declares the skill; a
// third-party attestation counts as an endorsement. Attestation ids are
// deduplicated, and the newest declaration wins for the skill level.
func (c *Client) UsersWithSkill(ctx context.Context, skillName string) ([]UserWithSkill, error) {
	query := fmt.Sprintf(`
		query GetAttestations {
			attestations(
				where: { schemaId: { equals: %q } }
				orderBy: { time: desc }
				take: %d
			) {
				decodedDataJson
				attester
				recipient
				time
				id
				txid
			}
		}
	`, c.schemaUID, c.pageSize)

	attestations, err := c.query(ctx, query)
	if err != nil {
		return nil, err
	}

	// Decode and filter once, then aggregate in two passes so endorsements
	// are counted regardless of where the declaration sits in the result
	// ordering.
	type matched struct {
		att        rawAttestation
		skillLevel string
	}
	var relevant []matched
	for _, att := range attestations {
		fields, err := decodeFields(att)
		if err != nil {
			return nil, err
		}
		attSkillName, err := stringField(att.ID, fields, 0)
		if err != nil {
			return nil, err
		}
		if !strings.EqualFold(attSkillName, skillName) {
			continue
		}
		skillLevel, err := stringField(att.ID, fields, 2)
		if err != nil {
			return nil, err
		}
		relevant = append(relevant, matched{att: att, skillLevel: skillLevel})
	}

	users := make(map[string]*userAggregate)

	// Pass 1: skill declarations (attester == recipient). The newest
	// declaration wins for the skill level.
	for _, m := range relevant {
		recipient := strings.ToLower(m.att.Recipient)
		if strings.ToLower(m.att.Attester) != recipient {
			continue
		}
		existing, ok := users[recipient]
		if !ok {
			users[recipient] = &userAggregate{
				UserWithSkill: UserWithSkill{
					Address:    recipient,
					SkillLevel: m.skillLevel,
					Timestamp:  m.att.Time,
				},
				attestationIDs: map[string]bool{m.att.ID: true},
			}
			continue
		}
		if parseTime(m.att.Time).After(parseTime(existing.Timestamp)) {
			existing.SkillLevel = m.skillLevel
			existing.Timestamp = m.att.Time
		}
		existing.attestationIDs[m.att.ID] = true
	}

	// Pass 2: third-party endorsements for declared recipients, each
	// attestation counted once
	for _, m := range relevant {
		recipient := strings.ToLower(m.att.Recipient)
		if strings.ToLower(m.att.Attester) == recipient {
			continue
		}
		existing, ok := users[recipient]
		if !ok {
			continue
		}
		if !existing.attestationIDs[m.att.ID] {
			existing.Endorsements++
			existing.attestationIDs[m.att.ID] = true
		}
	}

	results := make([]UserWithSkill, 0, len(users))
	for _, user := range users {
		results = append(results, user.UserWithSkill)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Endorsements > results[j].Endorsements
	})
	return results, nil
}

// SearchRecipients returns unique attested addresses containing the query.
// Queries shorter than 3 characters return no results.
func (c *Client) SearchRecipients(ctx context.Context, search string) ([]string, error) {
	if len(search) < 3 {
		return []string{}, nil
	}

	query := fmt.Sprintf(`
		query SearchUsers {
			attestations(
				where: { schemaId: { equals: %q } }
				orderBy: { time: desc }
				take: 100
			) {
				recipient
			}
		}
	`, c.schemaUID)

	attestations, err := c.query(ctx, query)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	search = strings.ToLower(search)
	var matches []string
	for _, att := range attestations {
		address := strings.ToLower(att.Recipient)
		if seen[address] {
			continue
		}
		seen[address] = true
		if strings.Contains(address, search) {
			matches = append(matches, address)
		}
		if len(matches) >= c.searchLimit {
			break
		}
	}
	if matches == nil {
		matches = []string{}
	}
	return matches, nil
}

// parseTime handles the indexer's two timestamp encodings: unix seconds and
// RFC 3339
func parseTime(raw string) time.Time {
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0)
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return time.Time{}
}
