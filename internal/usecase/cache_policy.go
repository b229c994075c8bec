package usecase

import (
	"time"

	"github.com/BengeeL/Dental-Chatbot/config"
)

const (
	sessionKeyPrefix = "session:"
	refreshKeyPrefix = "refresh:"
	profileKeyPrefix = "user:"
	chatKeyPrefix    = "chat_session:"
)

// SessionPolicy carries the independent expiries of the three cached session artifacts.
type SessionPolicy struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ProfileTTL time.Duration
}

func DefaultSessionPolicy() SessionPolicy {
	return SessionPolicy{
		AccessTTL:  3600 * time.Second,
		RefreshTTL: 86400 * time.Second,
		ProfileTTL: 86400 * time.Second,
	}
}

// PolicyFromConfig falls back to the default for any non-positive duration.
func PolicyFromConfig(cfg *config.Config) SessionPolicy {
	p := DefaultSessionPolicy()
	if cfg == nil {
		return p
	}
	if cfg.AccessTTL > 0 {
		p.AccessTTL = cfg.AccessTTL
	}
	if cfg.RefreshTTL > 0 {
		p.RefreshTTL = cfg.RefreshTTL
	}
	if cfg.ProfileTTL > 0 {
		p.ProfileTTL = cfg.ProfileTTL
	}
	return p
}

func SessionKey(userID string) string { return sessionKeyPrefix + userID }
func RefreshKey(userID string) string { return refreshKeyPrefix + userID }
func ProfileKey(userID string) string { return profileKeyPrefix + userID }
func ChatKey(userID string) string    { return chatKeyPrefix + userID }

// SessionKeys lists every cache key belonging to a user's session.
func SessionKeys(userID string) []string {
	return []string{ProfileKey(userID), SessionKey(userID), RefreshKey(userID)}
}
