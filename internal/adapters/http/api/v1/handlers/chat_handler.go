package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	authmw "github.com/BengeeL/Dental-Chatbot/internal/adapters/http/middleware"
	"github.com/BengeeL/Dental-Chatbot/internal/usecase"
	res "github.com/BengeeL/Dental-Chatbot/pkg/http"
)

type ChatHandler struct {
	chat *usecase.ChatService
}

func NewChatHandler(chat *usecase.ChatService) *ChatHandler { return &ChatHandler{chat: chat} }

type chatRequest struct {
	Message          string `json:"message"`
	SessionID        string `json:"session_id"`
	AudioBase64      string `json:"audio_base64"`
	AudioContentType string `json:"audio_content_type"`
}

func (h *ChatHandler) Send(c echo.Context) error {
	req := new(chatRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	// the conversation is attributed to the verified caller, never to a body field
	userID, _ := authmw.Identity(c)
	reply, err := h.chat.Send(c.Request().Context(), res.RequestID(c), usecase.ChatInput{
		Message:          req.Message,
		SessionID:        req.SessionID,
		UserID:           userID,
		AudioBase64:      req.AudioBase64,
		AudioContentType: req.AudioContentType,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, reply)
}

func (h *ChatHandler) Health(c echo.Context) error {
	if !h.chat.Healthy() {
		return c.JSON(http.StatusOK, map[string]string{"status": "warning", "message": "Lex client not connected"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "message": "Chat service is healthy"})
}
