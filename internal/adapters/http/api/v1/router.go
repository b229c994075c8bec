package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/BengeeL/Dental-Chatbot/internal/adapters/http/api/v1/handlers"
)

type Router struct {
	auth   *handlers.AuthHandler
	chat   *handlers.ChatHandler
	authMW echo.MiddlewareFunc
}

// NewRouter leaves the chat routes out when chat is nil.
func NewRouter(auth *handlers.AuthHandler, chat *handlers.ChatHandler, authMW echo.MiddlewareFunc) *Router {
	return &Router{auth: auth, chat: chat, authMW: authMW}
}

func (r *Router) Register(g *echo.Group) {
	g.POST("/signup", r.auth.Signup)
	g.POST("/login", r.auth.Login)
	g.POST("/refresh", r.auth.Refresh)
	g.POST("/resend-otp", r.auth.ResendOTP)
	g.POST("/reset-password", r.auth.ResetPassword)
	g.POST("/confirm-reset", r.auth.ConfirmReset)
	g.POST("/verify", r.auth.VerifyToken)

	// per-route middleware so unknown paths still answer 404
	g.GET("/logout", r.auth.Logout, r.authMW)
	g.GET("/user", r.auth.GetUser, r.authMW)
	g.GET("/protected-route", r.auth.Protected, r.authMW)

	if r.chat != nil {
		g.GET("/chat/health", r.chat.Health)
		g.POST("/chat", r.chat.Send, r.authMW)
	}
}
