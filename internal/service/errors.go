package service

import "errors"

// Sentinel errors shared across services. Handlers map these onto HTTP
// statuses; anything else is treated as an internal error.
var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("operation not permitted")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidCode        = errors.New("invalid verification code")
	ErrCodeExpired        = errors.New("verification code expired")

	// ErrNotEligible covers every failed voter identity check: unknown
	// identity, wrong secret code, and non-approved roll status all collapse
	// into it so responses cannot be used to probe the roll.
	ErrNotEligible = errors.New("not eligible to vote")

	ErrAlreadyVoted   = errors.New("ballot already cast")
	ErrVotingClosed   = errors.New("voting window is closed")
	ErrNominationOver = errors.New("nomination window is closed")
)

// ValidationError carries a caller-facing message for a rejected input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validation builds a ValidationError.
func Validation(msg string) error {
	return &ValidationError{Message: msg}
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
