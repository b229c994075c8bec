package usecase

import (
	"context"
	"time"

	"github.com/BengeeL/Dental-Chatbot/internal/domain"
	"github.com/BengeeL/Dental-Chatbot/internal/tokenverify"
)

// CacheStore holds short-lived session artifacts. Writes and deletes are atomic per key.
type CacheStore interface {
	SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	DeleteMany(ctx context.Context, keys ...string) (int64, error)
}

// ProfileStore is the relational persistence of user profiles.
type ProfileStore interface {
	InsertIfAbsent(ctx context.Context, profile *domain.Profile) (bool, error)
	FindByID(ctx context.Context, id string) (*domain.Profile, error)
}

// IdentityProvider issues and refreshes the opaque session tokens.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string) (*domain.ProviderAuth, error)
	SignIn(ctx context.Context, email, password string) (*domain.ProviderAuth, error)
	RefreshSession(ctx context.Context, refreshToken string) (*domain.ProviderAuth, error)
	ResendSignup(ctx context.Context, email string) error
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	UpdatePassword(ctx context.Context, accessToken, newPassword string) error
}

// TokenVerifier is satisfied by *tokenverify.Verifier.
type TokenVerifier interface {
	Verify(token string) (*tokenverify.Result, error)
}

// UserEvents announces newly created profiles to other services.
type UserEvents interface {
	UserCreated(ctx context.Context, profile domain.Profile) error
}
