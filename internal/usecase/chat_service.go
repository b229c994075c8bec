package usecase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BengeeL/Dental-Chatbot/internal/domain"
	pkglog "github.com/BengeeL/Dental-Chatbot/pkg/log"
)

const (
	chatFallbackText    = "I'm sorry, I couldn't process your request."
	chatUnavailableText = "Sorry, the dental assistant service is currently unavailable."

	voiceUnavailableText   = "Sorry, voice messages are not available right now. Please type your message."
	voiceNotUnderstoodText = "Sorry, I couldn't understand the audio. Please try again or type your message."
)

type NLUReply struct {
	Text   string
	Intent string
	Slots  map[string]string
}

// NLU is the conversational engine the chat proxies to.
type NLU interface {
	RecognizeText(ctx context.Context, sessionID, text string) (*NLUReply, error)
}

// Speech turns reply text into encoded audio.
type Speech interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Transcriber turns a recorded voice message into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, contentType string) (string, error)
}

type ChatInput struct {
	Message   string
	SessionID string
	UserID    string
	// AudioBase64 carries a voice message; when set it is transcribed and replaces Message.
	AudioBase64      string
	AudioContentType string
}

type ChatReply struct {
	Text        string `json:"text"`
	Intent      string `json:"intent,omitempty"`
	Status      string `json:"status"`
	SessionID   string `json:"session_id,omitempty"`
	AudioBase64 string `json:"audio_base64,omitempty"`
	Transcript  string `json:"transcript,omitempty"`
}

type ChatServiceDeps struct {
	NLU         NLU
	Speech      Speech
	Transcriber Transcriber
	Cache       CacheStore
	SessionTTL  time.Duration
	// TranscribeTimeout bounds one voice transcription. Zero means 90s.
	TranscribeTimeout time.Duration
	Logger            pkglog.Logger
}

type ChatService struct {
	nlu        NLU
	speech            Speech
	transcriber       Transcriber
	cache             CacheStore
	sessionTTL        time.Duration
	transcribeTimeout time.Duration
	logger            pkglog.Logger
}

func NewChatService(deps ChatServiceDeps) *ChatService {
	ttl := deps.SessionTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	transcribeTimeout := deps.TranscribeTimeout
	if transcribeTimeout <= 0 {
		transcribeTimeout = 90 * time.Second
	}
	return &ChatService{
		nlu:               deps.NLU,
		speech:            deps.Speech,
		transcriber:       deps.Transcriber,
		cache:             deps.Cache,
		sessionTTL:        ttl,
		transcribeTimeout: transcribeTimeout,
		logger:            deps.Logger,
	}
}

func (s *ChatService) Healthy() bool { return s != nil && s.nlu != nil }

// Send forwards one user message. NLU failures become an "error" reply rather than a Go error
// so the client can render the fallback text.
func (s *ChatService) Send(ctx context.Context, traceID string, in ChatInput) (*ChatReply, error) {
	message := strings.TrimSpace(in.Message)
	var audio []byte
	if in.AudioBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(in.AudioBase64)
		if err != nil || len(decoded) == 0 {
			return nil, fmt.Errorf("%w: audio_base64 is not valid base64", domain.ErrInvalidArgument)
		}
		audio = decoded
	}
	if message == "" && audio == nil {
		return nil, fmt.Errorf("%w: message required", domain.ErrInvalidArgument)
	}
	if !s.Healthy() {
		return &ChatReply{Text: chatUnavailableText, Status: "error"}, nil
	}
	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	var transcript string
	if audio != nil {
		if s.transcriber == nil {
			return &ChatReply{Text: voiceUnavailableText, Status: "error", SessionID: sessionID}, nil
		}
		tctx, cancel := context.WithTimeout(ctx, s.transcribeTimeout)
		text, err := s.transcriber.Transcribe(tctx, audio, in.AudioContentType)
		cancel()
		if err != nil || strings.TrimSpace(text) == "" {
			s.logger.Warn().Err(err).Str("trace_id", traceID).Str("session_id", sessionID).Msg("voice message not transcribed")
			return &ChatReply{Text: voiceNotUnderstoodText, Status: "error", SessionID: sessionID}, nil
		}
		transcript = strings.TrimSpace(text)
		message = transcript
	}

	reply, err := s.nlu.RecognizeText(ctx, sessionID, message)
	if err != nil {
		s.logger.Error().Err(err).Str("trace_id", traceID).Str("session_id", sessionID).Msg("nlu request failed")
		return &ChatReply{Text: "Sorry, I encountered an error while processing your request.", Status: "error", SessionID: sessionID}, nil
	}
	text := reply.Text
	if strings.TrimSpace(text) == "" {
		text = chatFallbackText
	}

	out := &ChatReply{Text: text, Intent: reply.Intent, Status: "ok", SessionID: sessionID, Transcript: transcript}
	if s.speech != nil {
		audio, err := s.speech.Synthesize(ctx, text)
		if err != nil {
			s.logger.Warn().Err(err).Str("trace_id", traceID).Msg("speech synthesis failed")
		} else {
			out.AudioBase64 = base64.StdEncoding.EncodeToString(audio)
		}
	}

	if in.UserID != "" && s.cache != nil {
		state, _ := json.Marshal(domain.ChatState{SessionID: sessionID, LastIntent: reply.Intent, Slots: reply.Slots})
		if err := s.cache.SetWithExpiry(ctx, ChatKey(in.UserID), string(state), s.sessionTTL); err != nil {
			s.logger.Warn().Err(err).Str("trace_id", traceID).Str("user_id", in.UserID).Msg("chat state not cached")
		}
	}
	return out, nil
}
