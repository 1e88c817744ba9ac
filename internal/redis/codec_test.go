package redis

import (
	"testing"
	"time"

	"github.com/skillboard-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	skill := domain.Skill{
		ID:          "skill_1700000000000_ab12cd34",
		Name:        "Rust",
		Description: "Systems programming",
		CreatedBy:   "0xaaaa",
		CreatedAt:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	raw, err := encode(skill)
	require.NoError(t, err)

	var decoded domain.Skill
	require.NoError(t, decode(raw, &decoded))
	assert.Equal(t, skill, decoded)
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	var skill domain.Skill
	err := decode(`{"v":99,"data":{}}`, &skill)
	require.Error(t, err)

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Contains(t, decodeErr.Error(), "version 99")
}

func TestDecodeRejectsMalformedEnvelope(t *testing.T) {
	var skill domain.Skill
	err := decode(`not json`, &skill)

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
}
