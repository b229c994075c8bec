package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BengeeL/Dental-Chatbot/internal/domain"
)

const userU1 = "0b7d3e1c-5a2f-4e8b-9c6d-1f2a3b4c5d6e"

func profileU1() domain.Profile {
	return domain.Profile{ID: userU1, Email: "a@x.com", Role: "patient", FirstName: "Ada", LastName: "Xu"}
}

func TestNewSessionManagerRequiresDeps(t *testing.T) {
	if _, err := NewSessionManager(SessionManagerDeps{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

func TestEstablishWritesThreeKeysWithIndependentTTLs(t *testing.T) {
	f := newFixture(t)
	report, err := f.manager.Establish(context.Background(), EstablishInput{
		UserID:       userU1,
		AccessToken:  "T1",
		RefreshToken: "R1",
		Profile:      profileU1().Snapshot(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Outcomes) != 3 || len(report.Failed()) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if v, _ := f.cache.value("session:" + userU1); v != "T1" {
		t.Fatalf("session key = %q", v)
	}
	if v, _ := f.cache.value("refresh:" + userU1); v != "R1" {
		t.Fatalf("refresh key = %q", v)
	}
	if got := f.cache.ttl("session:" + userU1); got != time.Hour {
		t.Fatalf("session ttl = %v", got)
	}
	if got := f.cache.ttl("refresh:" + userU1); got != 24*time.Hour {
		t.Fatalf("refresh ttl = %v", got)
	}
	if got := f.cache.ttl("user:" + userU1); got != 24*time.Hour {
		t.Fatalf("profile ttl = %v", got)
	}
	raw, _ := f.cache.value("user:" + userU1)
	var snap domain.ProfileSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("snapshot not json: %v", err)
	}
	if snap.UserID != userU1 || snap.Email != "a@x.com" || snap.FirstName != "Ada" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestEstablishWithoutAccessTokenSkipsCache(t *testing.T) {
	f := newFixture(t)
	report, err := f.manager.Establish(context.Background(), EstablishInput{UserID: userU1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Outcomes) != 0 || f.cache.setCalls != 0 {
		t.Fatalf("expected no cache writes, got %d", f.cache.setCalls)
	}
}

func TestEstablishRequiresUserID(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.Establish(context.Background(), EstablishInput{AccessToken: "T1"})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestEstablishPartialFailureKeepsWrittenKeys(t *testing.T) {
	f := newFixture(t)
	f.cache.failSet["refresh:"+userU1] = true

	report, err := f.manager.Establish(context.Background(), EstablishInput{
		UserID: userU1, AccessToken: "T1", RefreshToken: "R1", Profile: profileU1().Snapshot(),
	})
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	failed := report.Failed()
	if len(failed) != 1 || failed[0].Key != "refresh:"+userU1 {
		t.Fatalf("unexpected failed keys: %+v", failed)
	}
	if v, ok := f.cache.value("session:" + userU1); !ok || v != "T1" {
		t.Fatal("access token write should not be rolled back")
	}
	if _, ok := f.cache.value("user:" + userU1); !ok {
		t.Fatal("profile write should not be rolled back")
	}
}

func TestEstablishOverwritesPreviousSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, tok := range []string{"T1", "T2"} {
		if _, err := f.manager.Establish(ctx, EstablishInput{UserID: userU1, AccessToken: tok, RefreshToken: "R-" + tok}); err != nil {
			t.Fatal(err)
		}
	}
	if v, _ := f.cache.value("session:" + userU1); v != "T2" {
		t.Fatalf("expected last writer to win, got %q", v)
	}
}

func TestConcurrentEstablishLeavesWholeValues(t *testing.T) {
	f := newFixture(t)
	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = f.manager.Establish(context.Background(), EstablishInput{
				UserID:       userU1,
				AccessToken:  fmt.Sprintf("access-%d", i),
				RefreshToken: fmt.Sprintf("refresh-%d", i),
				Profile:      domain.ProfileSnapshot{Email: fmt.Sprintf("user%d@x.com", i)},
			})
		}(i)
	}
	wg.Wait()

	valid := func(prefix, got string) bool {
		for i := 0; i < writers; i++ {
			if got == fmt.Sprintf("%s-%d", prefix, i) {
				return true
			}
		}
		return false
	}
	access, _ := f.cache.value("session:" + userU1)
	refresh, _ := f.cache.value("refresh:" + userU1)
	if !valid("access", access) || !valid("refresh", refresh) {
		t.Fatalf("mixed values: access=%q refresh=%q", access, refresh)
	}
	raw, _ := f.cache.value("user:" + userU1)
	var snap domain.ProfileSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("corrupted snapshot %q: %v", raw, err)
	}
}

func TestRefreshRejectedTokenLeavesCacheUntouched(t *testing.T) {
	f := newFixture(t)
	f.identity.refreshFn = func(string) (*domain.ProviderAuth, error) {
		return nil, &providerError{code: "refresh_token_not_found", err: domain.ErrProviderRejected}
	}
	_, err := f.manager.Refresh(context.Background(), "bogus")
	if !errors.Is(err, domain.ErrInvalidCredential) {
		t.Fatalf("expected invalid credential, got %v", err)
	}
	if f.cache.setCalls != 0 {
		t.Fatalf("cache mutated %d times", f.cache.setCalls)
	}
}

func TestRefreshWithoutSessionIsInvalid(t *testing.T) {
	f := newFixture(t)
	f.identity.refreshFn = func(string) (*domain.ProviderAuth, error) {
		return &domain.ProviderAuth{User: domain.ProviderUser{ID: userU1}}, nil
	}
	if _, err := f.manager.Refresh(context.Background(), "R1"); !errors.Is(err, domain.ErrInvalidCredential) {
		t.Fatalf("expected invalid credential, got %v", err)
	}
	if _, err := f.manager.Refresh(context.Background(), " "); !errors.Is(err, domain.ErrInvalidCredential) {
		t.Fatalf("expected invalid credential for blank token, got %v", err)
	}
	if f.cache.setCalls != 0 {
		t.Fatal("cache must not be written")
	}
}

func TestRefreshUpstreamUnavailablePassesThrough(t *testing.T) {
	f := newFixture(t)
	f.identity.refreshFn = func(string) (*domain.ProviderAuth, error) {
		return nil, fmt.Errorf("%w: dial tcp", domain.ErrUpstreamUnavailable)
	}
	if _, err := f.manager.Refresh(context.Background(), "R1"); !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
}

func refreshedAuth() *domain.ProviderAuth {
	return &domain.ProviderAuth{
		User:    domain.ProviderUser{ID: userU1, Email: "a@x.com"},
		Session: &domain.ProviderSession{AccessToken: "T2", RefreshToken: "R2"},
	}
}

func TestRefreshAfterAccessExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.manager.Establish(ctx, EstablishInput{UserID: userU1, AccessToken: "T1", RefreshToken: "R1", Profile: profileU1().Snapshot()}); err != nil {
		t.Fatal(err)
	}
	f.cache.advance(time.Hour + time.Minute)
	if _, ok := f.cache.value("session:" + userU1); ok {
		t.Fatal("access token should have expired")
	}
	f.identity.refreshFn = func(tok string) (*domain.ProviderAuth, error) {
		if tok != "R1" {
			t.Fatalf("unexpected refresh token %q", tok)
		}
		return refreshedAuth(), nil
	}

	res, err := f.manager.Refresh(ctx, "R1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AccessToken != "T2" || res.RefreshToken != "R2" || res.TokenType != "bearer" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.User.Email != "a@x.com" || res.User.FirstName != "Ada" {
		t.Fatalf("profile not attached: %+v", res.User)
	}
	if v, _ := f.cache.value("session:" + userU1); v != "T2" {
		t.Fatalf("session key = %q", v)
	}
	if got := f.cache.ttl("refresh:" + userU1); got != 24*time.Hour {
		t.Fatalf("refresh ttl not renewed: %v", got)
	}
}

func TestRefreshProfileCacheMissStillCachesTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.manager.Establish(ctx, EstablishInput{UserID: userU1, AccessToken: "T1", RefreshToken: "R1", Profile: profileU1().Snapshot()}); err != nil {
		t.Fatal(err)
	}
	f.cache.advance(24*time.Hour + time.Second)
	f.identity.refreshFn = func(string) (*domain.ProviderAuth, error) { return refreshedAuth(), nil }

	_, err := f.manager.Refresh(ctx, "R1")
	if !errors.Is(err, domain.ErrProfileCacheMiss) {
		t.Fatalf("expected profile cache miss, got %v", err)
	}
	if v, ok := f.cache.value("session:" + userU1); !ok || v != "T2" {
		t.Fatalf("fresh access token missing: %q", v)
	}
	if v, ok := f.cache.value("refresh:" + userU1); !ok || v != "R2" {
		t.Fatalf("fresh refresh token missing: %q", v)
	}
}

func TestRefreshCacheDownIsUpstream(t *testing.T) {
	f := newFixture(t)
	f.cache.failAll = true
	f.identity.refreshFn = func(string) (*domain.ProviderAuth, error) { return refreshedAuth(), nil }
	if _, err := f.manager.Refresh(context.Background(), "R1"); !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
}

func TestVerifyWithinAndAfterValidity(t *testing.T) {
	f := newFixture(t, profileU1())
	token := signAccessToken(t, userU1, "a@x.com", "authenticated", f.now.Add(f.manager.Policy().AccessTTL))

	identity, err := f.manager.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.UserID != userU1 || identity.Email != "a@x.com" {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	f.cache.advance(time.Hour + time.Second)
	if _, err := f.manager.Verify(context.Background(), token); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected token expired, got %v", err)
	}
}

func TestVerifyDoesNotDependOnCache(t *testing.T) {
	f := newFixture(t, profileU1())
	f.cache.failAll = true
	token := signAccessToken(t, userU1, "a@x.com", "authenticated", f.now.Add(time.Hour))
	if _, err := f.manager.Verify(context.Background(), token); err != nil {
		t.Fatalf("verify must not touch the cache: %v", err)
	}
}

func TestVerifyAnonymousAudienceSkipsProfileStore(t *testing.T) {
	f := newFixture(t, profileU1())
	token := signAccessToken(t, userU1, "a@x.com", "anonymous", f.now.Add(time.Hour))
	if _, err := f.manager.Verify(context.Background(), token); !errors.Is(err, domain.ErrAudienceMismatch) {
		t.Fatalf("expected audience mismatch, got %v", err)
	}
	if f.profiles.findCalls != 0 {
		t.Fatalf("profile store consulted %d times", f.profiles.findCalls)
	}
}

func TestVerifyProfileNotFound(t *testing.T) {
	f := newFixture(t)
	token := signAccessToken(t, userU1, "a@x.com", "authenticated", f.now.Add(time.Hour))
	if _, err := f.manager.Verify(context.Background(), token); !errors.Is(err, domain.ErrProfileNotFound) {
		t.Fatalf("expected profile not found, got %v", err)
	}
}

func TestVerifyNonUUIDSubjectIsProfileNotFound(t *testing.T) {
	f := newFixture(t, profileU1())
	token := signAccessToken(t, "not-a-uuid", "a@x.com", "authenticated", f.now.Add(time.Hour))
	_, err := f.manager.Verify(context.Background(), token)
	if !errors.Is(err, domain.ErrProfileNotFound) || errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected profile not found, got %v", err)
	}
	if f.profiles.findCalls != 0 {
		t.Fatalf("profile store consulted %d times", f.profiles.findCalls)
	}
}

func TestVerifyProfileStoreDown(t *testing.T) {
	f := newFixture(t, profileU1())
	f.profiles.err = errors.New("pool exhausted")
	token := signAccessToken(t, userU1, "a@x.com", "authenticated", f.now.Add(time.Hour))
	if _, err := f.manager.Verify(context.Background(), token); !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
}

func TestInvalidateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.manager.Establish(ctx, EstablishInput{UserID: userU1, AccessToken: "T1", RefreshToken: "R1"}); err != nil {
		t.Fatal(err)
	}
	removed, err := f.manager.Invalidate(ctx, userU1)
	if err != nil || removed != 3 {
		t.Fatalf("first invalidate: removed=%d err=%v", removed, err)
	}
	removed, err = f.manager.Invalidate(ctx, userU1)
	if err != nil || removed != 0 {
		t.Fatalf("second invalidate: removed=%d err=%v", removed, err)
	}
}

func TestInvalidateCacheDown(t *testing.T) {
	f := newFixture(t)
	f.cache.failAll = true
	if _, err := f.manager.Invalidate(context.Background(), userU1); !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
}

func TestSessionKeys(t *testing.T) {
	keys := SessionKeys("U1")
	want := []string{"user:U1", "session:U1", "refresh:U1"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
}
