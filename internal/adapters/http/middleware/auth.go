package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/BengeeL/Dental-Chatbot/internal/adapters/http/errmap"
	"github.com/BengeeL/Dental-Chatbot/internal/domain"
	res "github.com/BengeeL/Dental-Chatbot/pkg/http"
)

const (
	ContextUserID = "user_id"
	ContextEmail  = "email"
)

type TokenVerifier interface {
	VerifyToken(ctx context.Context, traceID, token string) (*domain.AuthenticatedIdentity, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
}

func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

func (m *AuthMiddleware) Handler(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		traceID := res.RequestID(c)
		authz := c.Request().Header.Get(echo.HeaderAuthorization)
		parts := strings.SplitN(authz, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			return res.ErrorJSON(c, http.StatusUnauthorized, "unauthorized", "missing token", traceID, nil)
		}
		identity, err := m.verifier.VerifyToken(c.Request().Context(), traceID, strings.TrimSpace(parts[1]))
		if err != nil {
			p := errmap.Map(err)
			return res.ErrorJSON(c, p.Status, p.Code, p.Message, traceID, nil)
		}
		c.Set(ContextUserID, identity.UserID)
		c.Set(ContextEmail, identity.Email)
		return next(c)
	}
}

// Identity returns what Handler stored on the context.
func Identity(c echo.Context) (userID, email string) {
	userID, _ = c.Get(ContextUserID).(string)
	email, _ = c.Get(ContextEmail).(string)
	return userID, email
}
