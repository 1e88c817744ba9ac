package attestation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/skillboard-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(url string) *Client {
	return NewClient(&config.AttestationConfig{
		GraphQLURL:  url,
		SchemaUID:   "0xschema",
		Timeout:     5 * time.Second,
		PageSize:    200,
		SearchLimit: 10,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// decodedData builds the indexer's decodedDataJson field array from plain
// string values
func decodedData(t *testing.T, values ...string) string {
	t.Helper()
	fields := make([]map[string]interface{}, len(values))
	for i, v := range values {
		fields[i] = map[string]interface{}{
			"value": map[string]interface{}{"value": v},
		}
	}
	data, err := json.Marshal(fields)
	require.NoError(t, err)
	return string(data)
}

// indexerServer serves a fixed attestation list for any query
func indexerServer(t *testing.T, attestations []rawAttestation) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var req struct {
			Query string `json:"query"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Contains(t, req.Query, "0xschema")

		resp := map[string]interface{}{
			"data": map[string]interface{}{"attestations": attestations},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestFetchMilestones(t *testing.T) {
	alice := "0x" + fmt.Sprintf("%040x", 0xa)
	server := indexerServer(t, []rawAttestation{
		{
			ID:              "att-1",
			TxID:            "0xtx1",
			Attester:        alice,
			Time:            "1700000000",
			DecodedDataJSON: decodedData(t, alice+" achieved 5 endorsements for Go"),
		},
		{
			ID:              "att-2",
			TxID:            "0xtx2",
			Attester:        alice,
			Time:            "1700000100",
			DecodedDataJSON: decodedData(t, alice+" achieved 10 endorsements for Rust"),
		},
	})
	defer server.Close()

	milestones, err := testClient(server.URL).FetchMilestones(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, milestones, 2)

	// Sorted by endorsement count descending
	assert.Equal(t, "Rust", milestones[0].SkillName)
	assert.Equal(t, int64(10), milestones[0].EndorsementCount)
	assert.Equal(t, "att-2", milestones[0].AttestationUID)
	assert.Equal(t, "0xtx2", milestones[0].TransactionHash)
	assert.Equal(t, "Go", milestones[1].SkillName)
	assert.Equal(t, int64(5), milestones[1].EndorsementCount)
}

func TestFetchMilestonesRejectsMalformedStatement(t *testing.T) {
	server := indexerServer(t, []rawAttestation{
		{
			ID:              "att-bad",
			DecodedDataJSON: decodedData(t, "not a milestone statement"),
		},
	})
	defer server.Close()

	_, err := testClient(server.URL).FetchMilestones(context.Background(), "")
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "att-bad", decodeErr.AttestationID)
}

func TestFetchMilestonesRejectsInvalidFieldShape(t *testing.T) {
	server := indexerServer(t, []rawAttestation{
		{
			ID:              "att-shape",
			DecodedDataJSON: `{"not":"an array"}`,
		},
	})
	defer server.Close()

	_, err := testClient(server.URL).FetchMilestones(context.Background(), "")
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestHasMilestone(t *testing.T) {
	alice := "0x" + fmt.Sprintf("%040x", 0xa)
	server := indexerServer(t, []rawAttestation{
		{
			ID:              "att-1",
			Attester:        alice,
			DecodedDataJSON: decodedData(t, alice+" achieved 5 endorsements for Go"),
		},
	})
	defer server.Close()

	client := testClient(server.URL)

	found, err := client.HasMilestone(context.Background(), alice, "Go", 5)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = client.HasMilestone(context.Background(), alice, "Go", 6)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = client.HasMilestone(context.Background(), alice, "Rust", 5)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUsersWithSkillAggregation(t *testing.T) {
	alice := "0xaaaa0000000000000000000000000000000000aa"
	bob := "0xbbbb0000000000000000000000000000000000bb"
	carol := "0xcccc0000000000000000000000000000000000cc"

	server := indexerServer(t, []rawAttestation{
		// Endorsements arrive before the declaration in time-desc order
		{
			ID:              "endorse-1",
			Attester:        bob,
			Recipient:       alice,
			Time:            "1700000300",
			DecodedDataJSON: decodedData(t, "Go", "", "Expert"),
		},
		{
			ID:              "endorse-2",
			Attester:        carol,
			Recipient:       alice,
			Time:            "1700000200",
			DecodedDataJSON: decodedData(t, "Go", "", "Expert"),
		},
		// Alice's declaration (oldest)
		{
			ID:              "declare-alice",
			Attester:        alice,
			Recipient:       alice,
			Time:            "1700000100",
			DecodedDataJSON: decodedData(t, "Go", "", "Intermediate"),
		},
		// Bob declares but has no endorsements
		{
			ID:              "declare-bob",
			Attester:        bob,
			Recipient:       bob,
			Time:            "1700000150",
			DecodedDataJSON: decodedData(t, "Go", "", "Beginner"),
		},
		// Endorsement for an undeclared recipient is ignored
		{
			ID:              "endorse-undeclared",
			Attester:        alice,
			Recipient:       carol,
			Time:            "1700000250",
			DecodedDataJSON: decodedData(t, "Go", "", "Expert"),
		},
		// Different skill is filtered out entirely
		{
			ID:              "other-skill",
			Attester:        bob,
			Recipient:       alice,
			Time:            "1700000400",
			DecodedDataJSON: decodedData(t, "Rust", "", "Expert"),
		},
	})
	defer server.Close()

	users, err := testClient(server.URL).UsersWithSkill(context.Background(), "Go")
	require.NoError(t, err)
	require.Len(t, users, 2)

	// Sorted by endorsements descending
	assert.Equal(t, alice, users[0].Address)
	assert.Equal(t, int64(2), users[0].Endorsements)
	assert.Equal(t, "Intermediate", users[0].SkillLevel)

	assert.Equal(t, bob, users[1].Address)
	assert.Zero(t, users[1].Endorsements)
	assert.Equal(t, "Beginner", users[1].SkillLevel)
}

func TestUsersWithSkillNewestDeclarationWins(t *testing.T) {
	alice := "0xaaaa0000000000000000000000000000000000aa"

	server := indexerServer(t, []rawAttestation{
		{
			ID:              "declare-new",
			Attester:        alice,
			Recipient:       alice,
			Time:            "1700000200",
			DecodedDataJSON: decodedData(t, "Go", "", "Expert"),
		},
		{
			ID:              "declare-old",
			Attester:        alice,
			Recipient:       alice,
			Time:            "1700000100",
			DecodedDataJSON: decodedData(t, "Go", "", "Beginner"),
		},
	})
	defer server.Close()

	users, err := testClient(server.URL).UsersWithSkill(context.Background(), "Go")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Expert", users[0].SkillLevel)
}

func TestUsersWithSkillDeduplicatesAttestationIDs(t *testing.T) {
	alice := "0xaaaa0000000000000000000000000000000000aa"
	bob := "0xbbbb0000000000000000000000000000000000bb"

	duplicate := rawAttestation{
		ID:              "endorse-1",
		Attester:        bob,
		Recipient:       alice,
		Time:            "1700000200",
		DecodedDataJSON: decodedData(t, "Go", "", "Expert"),
	}
	server := indexerServer(t, []rawAttestation{
		duplicate,
		duplicate,
		{
			ID:              "declare-alice",
			Attester:        alice,
			Recipient:       alice,
			Time:            "1700000100",
			DecodedDataJSON: decodedData(t, "Go", "", "Expert"),
		},
	})
	defer server.Close()

	users, err := testClient(server.URL).UsersWithSkill(context.Background(), "Go")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, int64(1), users[0].Endorsements)
}

func TestUsersWithSkillCaseInsensitiveMatch(t *testing.T) {
	alice := "0xAAAA0000000000000000000000000000000000AA"

	server := indexerServer(t, []rawAttestation{
		{
			ID:              "declare-alice",
			Attester:        alice,
			Recipient:       alice,
			Time:            "1700000100",
			DecodedDataJSON: decodedData(t, "gOlAnG", "", "Expert"),
		},
	})
	defer server.Close()

	users, err := testClient(server.URL).UsersWithSkill(context.Background(), "Golang")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "0xaaaa0000000000000000000000000000000000aa", users[0].Address)
}

func TestSearchRecipients(t *testing.T) {
	server := indexerServer(t, []rawAttestation{
		{Recipient: "0xABCD000000000000000000000000000000000001"},
		{Recipient: "0xabcd000000000000000000000000000000000001"}, // dup after lowering
		{Recipient: "0xabcd000000000000000000000000000000000002"},
		{Recipient: "0xffff000000000000000000000000000000000003"},
	})
	defer server.Close()

	client := testClient(server.URL)

	matches, err := client.SearchRecipients(context.Background(), "0xabcd")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"0xabcd000000000000000000000000000000000001",
		"0xabcd000000000000000000000000000000000002",
	}, matches)

	// Short queries return no results without hitting the indexer
	matches, err = client.SearchRecipients(context.Background(), "0x")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearchRecipientsHonorsLimit(t *testing.T) {
	attestations := make([]rawAttestation, 20)
	for i := range attestations {
		attestations[i] = rawAttestation{
			Recipient: fmt.Sprintf("0xabc%037x", i),
		}
	}
	server := indexerServer(t, attestations)
	defer server.Close()

	matches, err := testClient(server.URL).SearchRecipients(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Len(t, matches, 10)
}

func TestQuerySurfacesGraphQLErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"errors":[{"message":"rate limited"}]}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL).FetchMilestones(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestQueryRejectsNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := testClient(server.URL).FetchMilestones(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestParseTime(t *testing.T) {
	assert.Equal(t, time.Unix(1700000000, 0), parseTime("1700000000"))

	parsed := parseTime("2024-01-02T03:04:05Z")
	assert.Equal(t, 2024, parsed.Year())

	assert.True(t, parseTime("garbage").IsZero())
}
