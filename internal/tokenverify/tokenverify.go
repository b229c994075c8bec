package tokenverify

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/BengeeL/Dental-Chatbot/internal/domain"
)

var (
	ErrInvalidToken     = domain.ErrInvalidToken
	ErrTokenExpired     = domain.ErrTokenExpired
	ErrAudienceMismatch = domain.ErrAudienceMismatch
	ErrMissingClaim     = domain.ErrMissingClaim
)

// DefaultAudience is the audience the identity provider stamps on user tokens.
const DefaultAudience = "authenticated"

type Config struct {
	Secret   []byte
	Audience string
	Leeway   time.Duration
	Now      func() time.Time
}

type Result struct {
	UserID string
	Email  string
	Claims map[string]any
}

// Verifier checks provider-issued HS256 tokens without any network round trip.
type Verifier struct {
	secret   []byte
	audience string
	parser   *jwt.Parser
}

func New(cfg Config) (*Verifier, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("tokenverify: signing secret required")
	}
	audience := cfg.Audience
	if audience == "" {
		audience = DefaultAudience
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(cfg.Now))
	}
	return &Verifier{secret: cfg.Secret, audience: audience, parser: jwt.NewParser(opts...)}, nil
}

// Verify parses and validates the token and returns the subject, email and the remaining claims.
// Audience is checked after signature and expiry so a foreign token never looks expired.
// A token without exp is invalid; ErrMissingClaim is reserved for sub and email.
func (v *Verifier) Verify(token string) (*Result, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims := jwt.MapClaims{}
	tok, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil || tok == nil || !tok.Valid:
		return nil, ErrInvalidToken
	}

	aud, err := claims.GetAudience()
	if err != nil || !slices.Contains(aud, v.audience) {
		return nil, ErrAudienceMismatch
	}
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	if strings.TrimSpace(sub) == "" || strings.TrimSpace(email) == "" {
		return nil, ErrMissingClaim
	}
	filtered := map[string]any{}
	for k, val := range claims {
		if k == "sub" || k == "email" {
			continue
		}
		filtered[k] = val
	}
	return &Result{UserID: strings.TrimSpace(sub), Email: email, Claims: filtered}, nil
}
