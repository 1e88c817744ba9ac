package domain

import "errors"

// Domain errors
var (
	ErrSkillNotFound       = errors.New("skill not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrAssociationNotFound = errors.New("user does not have this skill")
	ErrSelfEndorsement     = errors.New("cannot endorse your own skill")
	ErrAlreadyEndorsed     = errors.New("skill already endorsed by this address")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInternalError       = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrSkillNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrAssociationNotFound)
}

// IsValidationError checks if an error should surface as a 400
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrSelfEndorsement)
}

// ErrorCode returns a stable machine-readable code for an error
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrSkillNotFound):
		return "skill_not_found"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrAssociationNotFound):
		return "association_not_found"
	case errors.Is(err, ErrSelfEndorsement):
		return "self_endorsement"
	case errors.Is(err, ErrAlreadyEndorsed):
		return "already_endorsed"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return "internal_error"
	}
}
