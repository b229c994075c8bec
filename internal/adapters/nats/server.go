package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/BengeeL/Dental-Chatbot/internal/domain"
	pkglog "github.com/BengeeL/Dental-Chatbot/pkg/log"
)

const verifyTimeout = 5 * time.Second

// TokenVerifier resolves a bearer token into the identity it belongs to.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, traceID, token string) (*domain.AuthenticatedIdentity, error)
}

type VerifyHandler struct {
	verifier  TokenVerifier
	logger    pkglog.Logger
	respondFn func(msg *nats.Msg, resp verifyResponse)
}

type verifyRequest struct {
	Token   string `json:"token"`
	TraceID string `json:"trace_id,omitempty"`
}

type verifyResponse struct {
	OK     bool   `json:"ok"`
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Error  string `json:"error,omitempty"`
}

func NewVerifyHandler(verifier TokenVerifier, logger pkglog.Logger) *VerifyHandler {
	return &VerifyHandler{verifier: verifier, logger: logger, respondFn: respond}
}

func (h *VerifyHandler) Subscribe(conn *nats.Conn, subject, queue string) (*nats.Subscription, error) {
	if conn == nil {
		return nil, errors.New("nats connection is nil")
	}
	return conn.QueueSubscribe(subject, queue, h.handle)
}

func (h *VerifyHandler) handle(msg *nats.Msg) {
	var req verifyRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.Token == "" {
		h.respondFn(msg, verifyResponse{OK: false, Error: "invalid_payload"})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()

	identity, err := h.verifier.VerifyToken(ctx, req.TraceID, req.Token)
	if err != nil {
		code := verifyErrorCode(err)
		h.logger.Debug().Err(err).Str("trace_id", req.TraceID).Str("code", code).Msg("nats verify rejected")
		h.respondFn(msg, verifyResponse{OK: false, Error: code})
		return
	}
	h.respondFn(msg, verifyResponse{OK: true, UserID: identity.UserID, Email: identity.Email})
}

func verifyErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrTokenExpired):
		return "expired"
	case errors.Is(err, domain.ErrAudienceMismatch):
		return "audience_mismatch"
	case errors.Is(err, domain.ErrMissingClaim):
		return "claim_missing"
	case errors.Is(err, domain.ErrProfileNotFound):
		return "profile_not_found"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return "unavailable"
	default:
		return "invalid_token"
	}
}

func respond(msg *nats.Msg, resp verifyResponse) {
	data, _ := json.Marshal(resp)
	_ = msg.Respond(data)
}
