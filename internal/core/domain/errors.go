package domain

import "errors"

// Errors surfaced to callers of the authentication API.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountLocked       = errors.New("account locked")
	ErrInvalidToken        = errors.New("invalid token")
	ErrDuplicateIdentifier = errors.New("username or email already in use")
	ErrRoleNotFound        = errors.New("role not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidInput        = errors.New("invalid input")
)

// Session conditions. They never cross the service boundary; refresh folds
// them into ErrInvalidToken.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionRevoked  = errors.New("session revoked")
	ErrSessionExpired  = errors.New("session expired")
)
