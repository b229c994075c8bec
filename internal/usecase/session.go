package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BengeeL/Dental-Chatbot/internal/domain"
	pkglog "github.com/BengeeL/Dental-Chatbot/pkg/log"
)

type SessionManagerDeps struct {
	Cache    CacheStore
	Profiles ProfileStore
	Identity IdentityProvider
	Verifier TokenVerifier
	Policy   SessionPolicy
	Logger   pkglog.Logger
}

// SessionManager keeps the cached session mirror in step with the identity provider.
// It holds no mutable state; concurrent calls for the same user race at the cache and
// the last write wins.
type SessionManager struct {
	cache    CacheStore
	profiles ProfileStore
	identity IdentityProvider
	verifier TokenVerifier
	policy   SessionPolicy
	logger   pkglog.Logger
}

func NewSessionManager(deps SessionManagerDeps) (*SessionManager, error) {
	if deps.Cache == nil {
		return nil, errors.New("session manager: cache store is required")
	}
	if deps.Profiles == nil {
		return nil, errors.New("session manager: profile store is required")
	}
	if deps.Identity == nil {
		return nil, errors.New("session manager: identity provider is required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("session manager: token verifier is required")
	}
	policy := deps.Policy
	if policy == (SessionPolicy{}) {
		policy = DefaultSessionPolicy()
	}
	return &SessionManager{
		cache:    deps.Cache,
		profiles: deps.Profiles,
		identity: deps.Identity,
		verifier: deps.Verifier,
		policy:   policy,
		logger:   deps.Logger,
	}, nil
}

func (m *SessionManager) Policy() SessionPolicy { return m.policy }

type EstablishInput struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	Profile      domain.ProfileSnapshot
}

// KeyOutcome is the result of one cache write inside a best-effort batch.
type KeyOutcome struct {
	Key string
	TTL time.Duration
	Err error
}

// WriteReport lists every attempted cache write. Successful writes are never rolled back.
type WriteReport struct {
	Outcomes []KeyOutcome
}

func (r *WriteReport) Failed() []KeyOutcome {
	if r == nil {
		return nil
	}
	var failed []KeyOutcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

func (r *WriteReport) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(failed))
	for _, o := range failed {
		errs = append(errs, fmt.Errorf("%w: cache write %s: %v", domain.ErrUpstreamUnavailable, o.Key, o.Err))
	}
	return errors.Join(errs...)
}

type cacheEntry struct {
	key   string
	value string
	ttl   time.Duration
}

func (m *SessionManager) writeBatch(ctx context.Context, entries []cacheEntry) *WriteReport {
	report := &WriteReport{Outcomes: make([]KeyOutcome, 0, len(entries))}
	for _, e := range entries {
		err := m.cache.SetWithExpiry(ctx, e.key, e.value, e.ttl)
		report.Outcomes = append(report.Outcomes, KeyOutcome{Key: e.key, TTL: e.ttl, Err: err})
	}
	return report
}

// Establish mirrors a freshly issued session into the cache. Without an access token
// (signup awaiting confirmation) nothing is written.
func (m *SessionManager) Establish(ctx context.Context, in EstablishInput) (*WriteReport, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id required", domain.ErrInvalidArgument)
	}
	if in.AccessToken == "" {
		return &WriteReport{}, nil
	}
	snapshot := in.Profile
	if snapshot.UserID == "" {
		snapshot.UserID = userID
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode profile snapshot: %w", err)
	}
	report := m.writeBatch(ctx, []cacheEntry{
		{key: ProfileKey(userID), value: string(payload), ttl: m.policy.ProfileTTL},
		{key: SessionKey(userID), value: in.AccessToken, ttl: m.policy.AccessTTL},
		{key: RefreshKey(userID), value: in.RefreshToken, ttl: m.policy.RefreshTTL},
	})
	if err := report.Err(); err != nil {
		m.logger.Error().Err(err).Str("user_id", userID).Int("failed_keys", len(report.Failed())).Msg("session cache partially written")
		return report, err
	}
	m.logger.Debug().Str("user_id", userID).Msg("session cached")
	return report, nil
}

type RefreshResult struct {
	UserID       string                 `json:"-"`
	AccessToken  string                 `json:"access_token"`
	RefreshToken string                 `json:"refresh_token"`
	TokenType    string                 `json:"token_type"`
	User         domain.ProfileSnapshot `json:"user"`
}

// Refresh exchanges a refresh token for a new session. The provider round trip happens
// before any cache write, so a rejected token leaves the cache untouched.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, domain.ErrInvalidCredential
	}
	auth, err := m.identity.RefreshSession(ctx, refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUpstreamUnavailable), errors.Is(err, domain.ErrRateLimited):
			return nil, err
		default:
			m.logger.Warn().Err(err).Msg("identity provider rejected refresh token")
			return nil, domain.ErrInvalidCredential
		}
	}
	if auth == nil || auth.Session == nil || auth.Session.AccessToken == "" || auth.User.ID == "" {
		return nil, domain.ErrInvalidCredential
	}
	userID := auth.User.ID

	report := m.writeBatch(ctx, []cacheEntry{
		{key: SessionKey(userID), value: auth.Session.AccessToken, ttl: m.policy.AccessTTL},
		{key: RefreshKey(userID), value: auth.Session.RefreshToken, ttl: m.policy.RefreshTTL},
	})
	if err := report.Err(); err != nil {
		m.logger.Error().Err(err).Str("user_id", userID).Msg("refreshed tokens not fully cached")
	}

	raw, found, err := m.cache.Get(ctx, ProfileKey(userID))
	if err != nil {
		return nil, fmt.Errorf("%w: read profile snapshot: %v", domain.ErrUpstreamUnavailable, err)
	}
	if !found {
		m.logger.Warn().Str("user_id", userID).Msg("profile snapshot expired before refresh")
		return nil, domain.ErrProfileCacheMiss
	}
	var snapshot domain.ProfileSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		m.logger.Warn().Err(err).Str("user_id", userID).Msg("profile snapshot unreadable")
		return nil, domain.ErrProfileCacheMiss
	}

	tokenType := auth.Session.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}
	return &RefreshResult{
		UserID:       userID,
		AccessToken:  auth.Session.AccessToken,
		RefreshToken: auth.Session.RefreshToken,
		TokenType:    tokenType,
		User:         snapshot,
	}, nil
}

// Verify resolves a bearer token to an identity. It never reads the cache, so tokens
// already issued keep working while the cache is down.
func (m *SessionManager) Verify(ctx context.Context, bearer string) (*domain.AuthenticatedIdentity, error) {
	res, err := m.verifier.Verify(bearer)
	if err != nil {
		return nil, err
	}
	// profile ids are provider uuids; any other subject cannot have a row
	if _, err := uuid.Parse(res.UserID); err != nil {
		m.logger.Warn().Str("user_id", res.UserID).Msg("token subject is not a user id")
		return nil, domain.ErrProfileNotFound
	}
	if _, err := m.profiles.FindByID(ctx, res.UserID); err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			m.logger.Warn().Str("user_id", res.UserID).Msg("token valid but no local profile")
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("%w: profile lookup: %v", domain.ErrUpstreamUnavailable, err)
	}
	return &domain.AuthenticatedIdentity{UserID: res.UserID, Email: res.Email}, nil
}

// Invalidate removes every cached session artifact of a user in one batch and reports
// how many keys existed.
func (m *SessionManager) Invalidate(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("%w: user id required", domain.ErrInvalidArgument)
	}
	removed, err := m.cache.DeleteMany(ctx, SessionKeys(userID)...)
	if err != nil {
		return 0, fmt.Errorf("%w: delete session keys: %v", domain.ErrUpstreamUnavailable, err)
	}
	return removed, nil
}
