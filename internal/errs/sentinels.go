// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the principal lacks a required permission.
	ErrForbidden = errors.New("forbidden")

	// ErrUnconfirmed indicates an authenticated but unconfirmed account.
	ErrUnconfirmed = errors.New("unconfirmed account")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidToken indicates a token that is malformed, tampered, expired or of the wrong kind.
	ErrInvalidToken = errors.New("invalid token")

	// ErrNoDefaultRole indicates registration found no role flagged as default.
	ErrNoDefaultRole = errors.New("no default role configured")

	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("validation failed")
)

// ValidationError carries a message meant for the API caller.
type ValidationError struct{ Msg string }

// Validation builds a ValidationError.
func Validation(msg string) error { return &ValidationError{Msg: msg} }

func (e *ValidationError) Error() string { return e.Msg }

// Is makes errors.Is(err, ErrValidation) true.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
