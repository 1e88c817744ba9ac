package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "0xabcdef", NormalizeAddress("0xABCDEF"))
	assert.Equal(t, "0xabc", NormalizeAddress("  0xAbC  "))
	assert.Equal(t, "", NormalizeAddress("   "))
}

func TestErrorCode(t *testing.T) {
	cases := map[error]string{
		ErrSkillNotFound:       "skill_not_found",
		ErrUserNotFound:        "user_not_found",
		ErrAssociationNotFound: "association_not_found",
		ErrSelfEndorsement:     "self_endorsement",
		ErrAlreadyEndorsed:     "already_endorsed",
		ErrInvalidRequest:      "invalid_request",
		ErrInternalError:       "internal_error",
	}
	for err, code := range cases {
		assert.Equal(t, code, ErrorCode(err))
	}

	// Wrapped errors keep their code
	wrapped := fmt.Errorf("checking association: %w", ErrSkillNotFound)
	assert.Equal(t, "skill_not_found", ErrorCode(wrapped))
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsNotFoundError(ErrSkillNotFound))
	assert.True(t, IsNotFoundError(ErrAssociationNotFound))
	assert.False(t, IsNotFoundError(ErrAlreadyEndorsed))

	assert.True(t, IsValidationError(ErrInvalidRequest))
	assert.True(t, IsValidationError(ErrSelfEndorsement))
	assert.False(t, IsValidationError(ErrSkillNotFound))
}

func TestCreateSkillRequestValidate(t *testing.T) {
	valid := CreateSkillRequest{Name: "Go", Description: "d", CreatedBy: "0xaaaa"}
	assert.NoError(t, valid.Validate())

	for _, req := range []CreateSkillRequest{
		{Description: "d", CreatedBy: "0xaaaa"},
		{Name: "Go", CreatedBy: "0xaaaa"},
		{Name: "Go", Description: "d"},
	} {
		assert.ErrorIs(t, req.Validate(), ErrInvalidRequest)
	}
}

func TestSkillMutationRequestValidate(t *testing.T) {
	add := SkillMutationRequest{Type: MutationTypeAdd, Address: "0xaaaa", SkillID: "skill_1"}
	assert.NoError(t, add.Validate())

	endorse := SkillMutationRequest{
		Type: MutationTypeEndorse, Address: "0xaaaa", SkillID: "skill_1", SkilledAddress: "0xbbbb",
	}
	assert.NoError(t, endorse.Validate())

	// Endorse without a target
	endorse.SkilledAddress = ""
	assert.ErrorIs(t, endorse.Validate(), ErrInvalidRequest)

	unknown := SkillMutationRequest{Type: "remove", Address: "0xaaaa", SkillID: "skill_1"}
	assert.ErrorIs(t, unknown.Validate(), ErrInvalidRequest)
}

func TestAdminViewOmitsNotificationFlag(t *testing.T) {
	user := User{Address: "0xaaaa", FID: 7, NotificationsEnabled: true}
	view := user.AdminView()
	assert.Equal(t, "0xaaaa", view.Address)
	assert.Equal(t, int64(7), view.FID)
}
