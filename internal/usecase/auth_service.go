package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/BengeeL/Dental-Chatbot/internal/domain"
	pkglog "github.com/BengeeL/Dental-Chatbot/pkg/log"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 64

	errCodeEmailNotConfirmed = "email_not_confirmed"
	errCodeWeakPassword      = "weak_password"
)

type Service interface {
	Signup(ctx context.Context, traceID string, in SignupInput) (*SignupResult, error)
	Login(ctx context.Context, traceID, email, password string) (*LoginResult, error)
	Refresh(ctx context.Context, traceID, refreshToken string) (*RefreshResult, error)
	Logout(ctx context.Context, traceID, userID string) (int64, error)
	VerifyToken(ctx context.Context, traceID, token string) (*domain.AuthenticatedIdentity, error)
	GetProfile(ctx context.Context, traceID, userID string) (*domain.Profile, error)
	ResendConfirmation(ctx context.Context, traceID, email string) error
	RequestPasswordReset(ctx context.Context, traceID, email string) error
	ConfirmPasswordReset(ctx context.Context, traceID string, in PasswordResetInput) error
}

type SignupInput struct {
	Email     string
	Password  string
	Role      string
	FirstName string
	LastName  string
}

type SignupResult struct {
	UserID               string `json:"user_id"`
	Email                string `json:"email"`
	AccessToken          string `json:"access_token,omitempty"`
	RefreshToken         string `json:"refresh_token,omitempty"`
	RequiresConfirmation bool   `json:"requires_confirmation"`
	Message              string `json:"message"`
}

type LoginResult struct {
	User         domain.ProfileSnapshot `json:"user"`
	AccessToken  string                 `json:"access_token"`
	TokenType    string                 `json:"token_type"`
	RefreshToken string                 `json:"refresh_token"`
}

type PasswordResetInput struct {
	AccessToken  string
	RefreshToken string
	NewPassword  string
}

// codedError is implemented by identity provider errors that carry a machine code.
type codedError interface {
	ErrorCode() string
}

type AuthServiceDeps struct {
	Sessions      *SessionManager
	Profiles      ProfileStore
	Identity      IdentityProvider
	Events        UserEvents
	Logger        pkglog.Logger
	ResetRedirect string
}

type authService struct {
	sessions      *SessionManager
	profiles      ProfileStore
	identity      IdentityProvider
	events        UserEvents
	logger        pkglog.Logger
	resetRedirect string
}

func NewAuthService(deps AuthServiceDeps) Service {
	return &authService{
		sessions:      deps.Sessions,
		profiles:      deps.Profiles,
		identity:      deps.Identity,
		events:        deps.Events,
		logger:        deps.Logger,
		resetRedirect: deps.ResetRedirect,
	}
}

func (s *authService) Signup(ctx context.Context, traceID string, in SignupInput) (*SignupResult, error) {
	email := normalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	auth, err := s.identity.SignUp(ctx, email, in.Password)
	if err != nil {
		s.logger.Error().Err(err).Str("trace_id", traceID).Str("email", email).Msg("provider signup failed")
		if errors.Is(err, domain.ErrUpstreamUnavailable) || errors.Is(err, domain.ErrRateLimited) {
			return nil, err
		}
		return nil, domain.ErrSignupRejected
	}
	if auth == nil || auth.User.ID == "" {
		s.logger.Warn().Str("trace_id", traceID).Str("email", email).Msg("provider signup returned no user")
		return nil, domain.ErrSignupRejected
	}
	if _, err := uuid.Parse(auth.User.ID); err != nil {
		return nil, fmt.Errorf("%w: provider returned malformed user id", domain.ErrUpstreamUnavailable)
	}

	profile := domain.Profile{
		ID:        auth.User.ID,
		Email:     firstNonEmpty(auth.User.Email, email),
		Role:      in.Role,
		FirstName: in.FirstName,
		LastName:  in.LastName,
	}
	created, err := s.profiles.InsertIfAbsent(ctx, &profile)
	if err != nil {
		s.logger.Error().Err(err).Str("trace_id", traceID).Str("user_id", profile.ID).Msg("profile insert failed")
		return nil, fmt.Errorf("%w: store profile: %v", domain.ErrUpstreamUnavailable, err)
	}

	result := &SignupResult{
		UserID:               profile.ID,
		Email:                profile.Email,
		RequiresConfirmation: auth.Session == nil,
		Message:              "User registered successfully. Please check your email to confirm your account.",
	}
	if auth.Session != nil {
		result.AccessToken = auth.Session.AccessToken
		result.RefreshToken = auth.Session.RefreshToken
		if _, err := s.sessions.Establish(ctx, EstablishInput{
			UserID:       profile.ID,
			AccessToken:  auth.Session.AccessToken,
			RefreshToken: auth.Session.RefreshToken,
			Profile:      profile.Snapshot(),
		}); err != nil {
			s.logger.Warn().Err(err).Str("trace_id", traceID).Str("user_id", profile.ID).Msg("signup session not cached")
		}
	}
	if created && s.events != nil {
		if err := s.events.UserCreated(ctx, profile); err != nil {
			s.logger.Warn().Err(err).Str("trace_id", traceID).Str("user_id", profile.ID).Msg("user created event not published")
		}
	}

	s.logger.Info().Str("trace_id", traceID).Str("user_id", profile.ID).Bool("profile_created", created).Msg("signup")
	return result, nil
}

func (s *authService) Login(ctx context.Context, traceID, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, domain.ErrInvalidCredential
	}
	auth, err := s.identity.SignIn(ctx, email, password)
	if err != nil {
		s.logger.Warn().Err(err).Str("trace_id", traceID).Str("email", email).Msg("provider signin failed")
		switch {
		case errors.Is(err, domain.ErrUpstreamUnavailable), errors.Is(err, domain.ErrRateLimited):
			return nil, err
		case providerCode(err) == errCodeEmailNotConfirmed:
			return nil, domain.ErrEmailNotConfirmed
		default:
			return nil, domain.ErrInvalidCredential
		}
	}
	if auth == nil || auth.User.ID == "" || auth.Session == nil {
		return nil, domain.ErrInvalidCredential
	}

	profile, err := s.profiles.FindByID(ctx, auth.User.ID)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			s.logger.Warn().Str("trace_id", traceID).Str("user_id", auth.User.ID).Msg("authenticated user has no profile")
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("%w: load profile: %v", domain.ErrUpstreamUnavailable, err)
	}
	snapshot := profile.Snapshot()

	if _, err := s.sessions.Establish(ctx, EstablishInput{
		UserID:       auth.User.ID,
		AccessToken:  auth.Session.AccessToken,
		RefreshToken: auth.Session.RefreshToken,
		Profile:      snapshot,
	}); err != nil {
		s.logger.Warn().Err(err).Str("trace_id", traceID).Str("user_id", auth.User.ID).Msg("login session not cached")
	}

	s.logger.Info().Str("trace_id", traceID).Str("user_id", auth.User.ID).Msg("login")
	return &LoginResult{
		User:         snapshot,
		AccessToken:  auth.Session.AccessToken,
		TokenType:    "bearer",
		RefreshToken: auth.Session.RefreshToken,
	}, nil
}

func (s *authService) Refresh(ctx context.Context, traceID, refreshToken string) (*RefreshResult, error) {
	res, err := s.sessions.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("trace_id", traceID).Str("user_id", res.UserID).Msg("token refreshed")
	return res, nil
}

func (s *authService) Logout(ctx context.Context, traceID, userID string) (int64, error) {
	removed, err := s.sessions.Invalidate(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("trace_id", traceID).Str("user_id", userID).Msg("logout failed")
		return 0, err
	}
	if removed == 0 {
		s.logger.Warn().Str("trace_id", traceID).Str("user_id", userID).Msg("no session data found during logout")
	} else {
		s.logger.Info().Str("trace_id", traceID).Str("user_id", userID).Int64("removed_keys", removed).Msg("logout")
	}
	return removed, nil
}

func (s *authService) VerifyToken(ctx context.Context, traceID, token string) (*domain.AuthenticatedIdentity, error) {
	identity, err := s.sessions.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("trace_id", traceID).Str("user_id", identity.UserID).Msg("token verified")
	return identity, nil
}

func (s *authService) GetProfile(ctx context.Context, traceID, userID string) (*domain.Profile, error) {
	profile, err := s.profiles.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			return nil, err
		}
		s.logger.Error().Err(err).Str("trace_id", traceID).Str("user_id", userID).Msg("profile lookup failed")
		return nil, fmt.Errorf("%w: load profile: %v", domain.ErrUpstreamUnavailable, err)
	}
	return profile, nil
}

// ResendConfirmation only reports conditions that do not reveal whether the address is registered.
func (s *authService) ResendConfirmation(ctx context.Context, traceID, email string) error {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	err := s.identity.ResendSignup(ctx, email)
	switch {
	case err == nil:
		s.logger.Info().Str("trace_id", traceID).Str("email", email).Msg("confirmation resent")
		return nil
	case errors.Is(err, domain.ErrRateLimited), errors.Is(err, domain.ErrUpstreamUnavailable):
		return err
	default:
		// unknown and already confirmed addresses get the same answer
		s.logger.Warn().Err(err).Str("trace_id", traceID).Str("email", email).Msg("confirmation resend rejected")
		return nil
	}
}

// RequestPasswordReset answers the same way whether or not the email exists.
func (s *authService) RequestPasswordReset(ctx context.Context, traceID, email string) error {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	err := s.identity.ResetPasswordForEmail(ctx, email, s.resetRedirect)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrRateLimited), errors.Is(err, domain.ErrUpstreamUnavailable):
		return err
	default:
		s.logger.Warn().Err(err).Str("trace_id", traceID).Msg("password reset rejected by provider")
	}
	s.logger.Info().Str("trace_id", traceID).Msg("password reset requested")
	return nil
}

func (s *authService) ConfirmPasswordReset(ctx context.Context, traceID string, in PasswordResetInput) error {
	if err := validatePassword(in.NewPassword); err != nil {
		return err
	}
	if strings.TrimSpace(in.AccessToken) == "" {
		return domain.ErrInvalidCredential
	}
	err := s.identity.UpdatePassword(ctx, in.AccessToken, in.NewPassword)
	if err != nil && errors.Is(err, domain.ErrProviderRejected) && providerCode(err) != errCodeWeakPassword && in.RefreshToken != "" {
		// recovery access token may already be stale; the refresh token from the same link can renew it
		auth, rerr := s.identity.RefreshSession(ctx, in.RefreshToken)
		if rerr == nil && auth != nil && auth.Session != nil {
			err = s.identity.UpdatePassword(ctx, auth.Session.AccessToken, in.NewPassword)
		}
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("trace_id", traceID).Msg("password reset confirmation failed")
		switch {
		case errors.Is(err, domain.ErrUpstreamUnavailable), errors.Is(err, domain.ErrRateLimited):
			return err
		case providerCode(err) == errCodeWeakPassword:
			return fmt.Errorf("%w: password does not meet security requirements", domain.ErrInvalidArgument)
		default:
			return domain.ErrInvalidCredential
		}
	}
	s.logger.Info().Str("trace_id", traceID).Msg("password reset confirmed")
	return nil
}

func providerCode(err error) string {
	var coded codedError
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return ""
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func validateEmail(email string) error {
	if len(email) > 255 {
		return fmt.Errorf("%w: invalid email", domain.ErrInvalidArgument)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: invalid email", domain.ErrInvalidArgument)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return fmt.Errorf("%w: password must be between %d and %d characters", domain.ErrInvalidArgument, minPasswordLen, maxPasswordLen)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
