package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/BengeeL/Dental-Chatbot/internal/domain"
	"github.com/BengeeL/Dental-Chatbot/internal/tokenverify"
	pkglog "github.com/BengeeL/Dental-Chatbot/pkg/log"
)

const testSigningSecret = "test-jwt-secret-with-enough-length"

var errCacheDown = errors.New("connection refused")

type cacheItem struct {
	value     string
	expiresAt time.Time
}

// memoryCache expires entries against a controllable clock.
type memoryCache struct {
	mu       sync.Mutex
	items    map[string]cacheItem
	now      time.Time
	failSet  map[string]bool
	failAll  bool
	setCalls int
}

func newMemoryCache(now time.Time) *memoryCache {
	return &memoryCache{items: map[string]cacheItem{}, now: now, failSet: map[string]bool{}}
}

func (c *memoryCache) SetWithExpiry(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setCalls++
	if c.failAll || c.failSet[key] {
		return errCacheDown
	}
	c.items[key] = cacheItem{value: value, expiresAt: c.now.Add(ttl)}
	return nil
}

func (c *memoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return "", false, errCacheDown
	}
	item, ok := c.items[key]
	if !ok || !c.now.Before(item.expiresAt) {
		return "", false, nil
	}
	return item.value, true, nil
}

func (c *memoryCache) DeleteMany(_ context.Context, keys ...string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return 0, errCacheDown
	}
	var removed int64
	for _, k := range keys {
		item, ok := c.items[k]
		if ok && c.now.Before(item.expiresAt) {
			removed++
		}
		delete(c.items, k)
	}
	return removed, nil
}

func (c *memoryCache) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *memoryCache) value(key string) (string, bool) {
	v, ok, _ := c.Get(context.Background(), key)
	return v, ok
}

func (c *memoryCache) ttl(key string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key]
	if !ok {
		return 0
	}
	return item.expiresAt.Sub(c.now)
}

type memoryProfiles struct {
	mu        sync.Mutex
	rows      map[string]domain.Profile
	findCalls int
	err       error
}

func newMemoryProfiles(rows ...domain.Profile) *memoryProfiles {
	p := &memoryProfiles{rows: map[string]domain.Profile{}}
	for _, r := range rows {
		p.rows[r.ID] = r
	}
	return p
}

func (p *memoryProfiles) InsertIfAbsent(_ context.Context, profile *domain.Profile) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return false, p.err
	}
	if _, ok := p.rows[profile.ID]; ok {
		return false, nil
	}
	p.rows[profile.ID] = *profile
	return true, nil
}

func (p *memoryProfiles) FindByID(_ context.Context, id string) (*domain.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.findCalls++
	if p.err != nil {
		return nil, p.err
	}
	// mirrors the uuid-typed id column
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.New(`ERROR: invalid input syntax for type uuid: "` + id + `" (SQLSTATE 22P02)`)
	}
	row, ok := p.rows[id]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return &row, nil
}

type providerError struct {
	code string
	err  error
}

func (e *providerError) Error() string     { return e.code }
func (e *providerError) Unwrap() error     { return e.err }
func (e *providerError) ErrorCode() string { return e.code }

type stubIdentity struct {
	signUpFn     func(email, password string) (*domain.ProviderAuth, error)
	signInFn     func(email, password string) (*domain.ProviderAuth, error)
	refreshFn    func(token string) (*domain.ProviderAuth, error)
	resendFn     func(email string) error
	resetFn      func(email, redirect string) error
	updatePassFn func(accessToken, password string) error
	refreshCalls int
	lastRedirect string
	updateTokens []string
}

func (s *stubIdentity) SignUp(_ context.Context, email, password string) (*domain.ProviderAuth, error) {
	return s.signUpFn(email, password)
}

func (s *stubIdentity) SignIn(_ context.Context, email, password string) (*domain.ProviderAuth, error) {
	return s.signInFn(email, password)
}

func (s *stubIdentity) RefreshSession(_ context.Context, token string) (*domain.ProviderAuth, error) {
	s.refreshCalls++
	return s.refreshFn(token)
}

func (s *stubIdentity) ResendSignup(_ context.Context, email string) error {
	return s.resendFn(email)
}

func (s *stubIdentity) ResetPasswordForEmail(_ context.Context, email, redirectTo string) error {
	s.lastRedirect = redirectTo
	return s.resetFn(email, redirectTo)
}

func (s *stubIdentity) UpdatePassword(_ context.Context, accessToken, password string) error {
	s.updateTokens = append(s.updateTokens, accessToken)
	return s.updatePassFn(accessToken, password)
}

type recordingEvents struct {
	created []domain.Profile
}

func (r *recordingEvents) UserCreated(_ context.Context, profile domain.Profile) error {
	r.created = append(r.created, profile)
	return nil
}

func newTestVerifier(t *testing.T, now func() time.Time) *tokenverify.Verifier {
	t.Helper()
	v, err := tokenverify.New(tokenverify.Config{Secret: []byte(testSigningSecret), Now: now})
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	return v
}

func signAccessToken(t *testing.T, userID, email, aud string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": userID, "email": email, "aud": aud, "exp": exp.Unix()}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSigningSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

type fixture struct {
	now      time.Time
	cache    *memoryCache
	profiles *memoryProfiles
	identity *stubIdentity
	manager  *SessionManager
}

func newFixture(t *testing.T, rows ...domain.Profile) *fixture {
	t.Helper()
	f := &fixture{
		now:      time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		profiles: newMemoryProfiles(rows...),
		identity: &stubIdentity{},
	}
	f.cache = newMemoryCache(f.now)
	m, err := NewSessionManager(SessionManagerDeps{
		Cache:    f.cache,
		Profiles: f.profiles,
		Identity: f.identity,
		Verifier: newTestVerifier(t, func() time.Time { return f.cache.now }),
		Logger:   pkglog.Nop(),
	})
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	f.manager = m
	return f
}
