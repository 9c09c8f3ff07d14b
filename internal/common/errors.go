package common

import "errors"

// Callers match these values with errors.Is. Each ambiguous failure class has
// exactly one value so that the reason for a rejection never reaches a client.
var (
	// Repository-level errors.
	ErrorNotFound             = errors.New("not found")
	ErrConcurrentModification = errors.New("concurrent modification")

	// Service-level errors.
	ErrorInternal          = errors.New("internal error")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrNotVerified         = errors.New("user is not verified")
	ErrAlreadyVerified     = errors.New("email already verified")
	ErrInvalidCode         = errors.New("invalid verification code")
	ErrSessionInvalid      = errors.New("invalid session")
	ErrDuplicateIdentifier = errors.New("username already exists")
	ErrValidation          = errors.New("validation error")
	ErrDependencyFailure   = errors.New("dependency failure")

	// Auth errors (invalid, malformed or expired bearer token).
	ErrInvalidToken = errors.New("invalid token")
)
