package domain

import "errors"

// Credential and token verification failures.
var (
	ErrInvalidCredential = errors.New("invalid_credential")
	ErrInvalidToken      = errors.New("invalid_token")
	ErrTokenExpired      = errors.New("token_expired")
	ErrAudienceMismatch  = errors.New("audience_mismatch")
	ErrMissingClaim      = errors.New("missing_claim")
)

// Data absent where an operation expected it.
var (
	ErrProfileNotFound  = errors.New("profile_not_found")
	ErrProfileCacheMiss = errors.New("profile_cache_miss")
)

var (
	ErrUpstreamUnavailable = errors.New("upstream_unavailable")
	ErrConfiguration       = errors.New("configuration_error")
)

var (
	ErrInvalidArgument   = errors.New("invalid_argument")
	ErrRateLimited       = errors.New("rate_limited")
	ErrEmailNotConfirmed = errors.New("email_not_confirmed")
	ErrSignupRejected    = errors.New("signup_rejected")
	// ErrProviderRejected is returned by the identity provider adapter for 4xx answers;
	// callers translate it into one of the errors above.
	ErrProviderRejected = errors.New("provider_rejected")
)
