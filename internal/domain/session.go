package domain

// Session is one user's live credentials as mirrored in the cache.
type Session struct {
	UserID       string          `json:"user_id"`
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	Profile      ProfileSnapshot `json:"profile"`
}

// AuthenticatedIdentity is the outcome of verifying a bearer token. It lives for one request.
type AuthenticatedIdentity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// ProviderUser and ProviderSession mirror what the identity provider hands back.
type ProviderUser struct {
	ID    string
	Email string
	Role  string
}

type ProviderSession struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
}

// ProviderAuth is the result of a signup, login or refresh call.
// Session is nil when the provider still waits for email confirmation.
type ProviderAuth struct {
	User    ProviderUser
	Session *ProviderSession
}

// ChatState is cached per user between chat turns.
type ChatState struct {
	SessionID  string            `json:"session_id"`
	LastIntent string            `json:"last_intent,omitempty"`
	Slots      map[string]string `json:"slots,omitempty"`
}
