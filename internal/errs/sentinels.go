// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	// Every token and credential failure collapses to it at the service boundary.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrValidation indicates malformed client input.
	ErrValidation = errors.New("validation")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidToken indicates an unusable email-verification token.
	ErrInvalidToken = errors.New("invalid token")

	// ErrScopeMismatch indicates a valid token presented for the wrong purpose.
	ErrScopeMismatch = errors.New("invalid scope for token")

	// ErrNotConfirmed indicates the account email has not been confirmed yet.
	ErrNotConfirmed = errors.New("email not confirmed")

	// ErrCacheUnavailable indicates the identity cache transport failed.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrPersistenceUnavailable indicates the account store could not be reached.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
)
