// Package errmap translates domain errors into HTTP answers.
package errmap

import (
	"errors"
	"net/http"
	"strings"

	"github.com/BengeeL/Dental-Chatbot/internal/domain"
)

type Problem struct {
	Status  int
	Code    string
	Message string
}

type rule struct {
	target  error
	problem Problem
}

// Order matters: provider errors can wrap more than one sentinel.
var rules = []rule{
	{domain.ErrInvalidArgument, Problem{http.StatusBadRequest, "invalid_argument", "Invalid request"}},
	{domain.ErrRateLimited, Problem{http.StatusTooManyRequests, "rate_limited", "Too many requests. Please try again later."}},
	{domain.ErrInvalidCredential, Problem{http.StatusUnauthorized, "invalid_credentials", "Authentication failed. Check your credentials."}},
	{domain.ErrEmailNotConfirmed, Problem{http.StatusForbidden, "email_not_confirmed", "Email not confirmed. Please verify your email."}},
	{domain.ErrSignupRejected, Problem{http.StatusBadRequest, "signup_failed", "Signup failed."}},
	{domain.ErrTokenExpired, Problem{http.StatusUnauthorized, "token_expired", "Token has expired"}},
	{domain.ErrAudienceMismatch, Problem{http.StatusUnauthorized, "invalid_audience", "Invalid token: Invalid audience"}},
	{domain.ErrMissingClaim, Problem{http.StatusBadRequest, "missing_claim", "Token payload is missing required fields"}},
	{domain.ErrInvalidToken, Problem{http.StatusUnauthorized, "invalid_token", "Invalid token"}},
	{domain.ErrProfileNotFound, Problem{http.StatusNotFound, "profile_not_found", "User profile not found"}},
	{domain.ErrProfileCacheMiss, Problem{http.StatusUnauthorized, "session_expired", "Session data expired. Please log in again."}},
	{domain.ErrUpstreamUnavailable, Problem{http.StatusServiceUnavailable, "upstream_unavailable", "Service temporarily unavailable. Please try again later."}},
	{domain.ErrProviderRejected, Problem{http.StatusBadRequest, "request_rejected", "Request rejected."}},
	{domain.ErrConfiguration, Problem{http.StatusInternalServerError, "configuration_error", "Service misconfigured"}},
}

var internalError = Problem{http.StatusInternalServerError, "internal_error", "Unexpected server error occurred"}

// Map never exposes the underlying cause except for argument validation, whose text is
// written for the caller.
func Map(err error) Problem {
	for _, r := range rules {
		if !errors.Is(err, r.target) {
			continue
		}
		p := r.problem
		if r.target == domain.ErrInvalidArgument {
			if detail := strings.TrimPrefix(err.Error(), domain.ErrInvalidArgument.Error()+": "); detail != err.Error() {
				p.Message = detail
			}
		}
		return p
	}
	return internalError
}
