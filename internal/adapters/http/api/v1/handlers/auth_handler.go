package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/BengeeL/Dental-Chatbot/internal/adapters/http/errmap"
	authmw "github.com/BengeeL/Dental-Chatbot/internal/adapters/http/middleware"
	"github.com/BengeeL/Dental-Chatbot/internal/usecase"
	res "github.com/BengeeL/Dental-Chatbot/pkg/http"
)

type AuthHandler struct {
	service usecase.Service
}

func NewAuthHandler(s usecase.Service) *AuthHandler { return &AuthHandler{service: s} }

type signupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type confirmResetRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	NewPassword  string `json:"new_password"`
}

type verifyTokenRequest struct {
	Token string `json:"token"`
}

type messageResponse struct {
	Success bool   `json:"success,omitempty"`
	Message string `json:"message"`
}

func badPayload(c echo.Context) error {
	return res.ErrorJSON(c, http.StatusBadRequest, "bad_request", "invalid payload", res.RequestID(c), nil)
}

// fail writes err through the shared domain error mapping.
func fail(c echo.Context, err error) error {
	p := errmap.Map(err)
	return res.ErrorJSON(c, p.Status, p.Code, p.Message, res.RequestID(c), nil)
}

func (h *AuthHandler) Signup(c echo.Context) error {
	req := new(signupRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	out, err := h.service.Signup(c.Request().Context(), res.RequestID(c), usecase.SignupInput{
		Email:     req.Email,
		Password:  req.Password,
		Role:      req.Role,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AuthHandler) Login(c echo.Context) error {
	req := new(loginRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	out, err := h.service.Login(c.Request().Context(), res.RequestID(c), req.Email, req.Password)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	req := new(refreshRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	out, err := h.service.Refresh(c.Request().Context(), res.RequestID(c), req.RefreshToken)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AuthHandler) Logout(c echo.Context) error {
	userID, _ := authmw.Identity(c)
	if _, err := h.service.Logout(c.Request().Context(), res.RequestID(c), userID); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

func (h *AuthHandler) GetUser(c echo.Context) error {
	userID, _ := authmw.Identity(c)
	profile, err := h.service.GetProfile(c.Request().Context(), res.RequestID(c), userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, profile)
}

func (h *AuthHandler) ResendOTP(c echo.Context) error {
	req := new(emailRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	if err := h.service.ResendConfirmation(c.Request().Context(), res.RequestID(c), req.Email); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Verification email has been resent. Please check your inbox."})
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	req := new(emailRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	if err := h.service.RequestPasswordReset(c.Request().Context(), res.RequestID(c), req.Email); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, messageResponse{
		Success: true,
		Message: "If your email exists in our system, you will receive a password reset link.",
	})
}

func (h *AuthHandler) ConfirmReset(c echo.Context) error {
	req := new(confirmResetRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	err := h.service.ConfirmPasswordReset(c.Request().Context(), res.RequestID(c), usecase.PasswordResetInput{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		NewPassword:  req.NewPassword,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, messageResponse{
		Success: true,
		Message: "Password has been successfully updated. You can now log in with your new password.",
	})
}

func (h *AuthHandler) VerifyToken(c echo.Context) error {
	req := new(verifyTokenRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	identity, err := h.service.VerifyToken(c.Request().Context(), res.RequestID(c), req.Token)
	if err != nil {
		return fail(c, err)
	}
	return res.JSON(c, http.StatusOK, identity)
}

func (h *AuthHandler) Protected(c echo.Context) error {
	userID, email := authmw.Identity(c)
	return c.JSON(http.StatusOK, map[string]any{
		"message": "Access granted",
		"user":    map[string]string{"id": userID, "email": email},
	})
}
