package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/BengeeL/Dental-Chatbot/internal/domain"
)

// APIError is a non-2xx answer from the auth server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gotrue %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("gotrue %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) ErrorCode() string { return e.Code }

func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case e.StatusCode >= 500:
		return domain.ErrUpstreamUnavailable
	default:
		return domain.ErrProviderRejected
	}
}

// IsStatus reports whether err is an *APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxElapsed time.Duration
}

type Option func(*Client)

// WithHTTPClient replaces the underlying transport, mostly for tests.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// WithMaxElapsed bounds the total time spent retrying one call.
func WithMaxElapsed(d time.Duration) Option { return func(c *Client) { c.maxElapsed = d } }

func NewClient(baseURL, apiKey string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/auth/v1",
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		maxElapsed: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type userPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// sessionPayload covers both shapes of the signup answer: a session with a nested user,
// or a bare user while email confirmation is pending.
type sessionPayload struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	User         *userPayload `json:"user"`
	userPayload
}

func (p *sessionPayload) toAuth() *domain.ProviderAuth {
	user := p.userPayload
	if p.User != nil {
		user = *p.User
	}
	auth := &domain.ProviderAuth{User: domain.ProviderUser{ID: user.ID, Email: user.Email, Role: user.Role}}
	if p.AccessToken != "" {
		auth.Session = &domain.ProviderSession{
			AccessToken:  p.AccessToken,
			RefreshToken: p.RefreshToken,
			TokenType:    p.TokenType,
			ExpiresIn:    p.ExpiresIn,
		}
	}
	return auth
}

func (c *Client) SignUp(ctx context.Context, email, password string) (*domain.ProviderAuth, error) {
	var resp sessionPayload
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/signup", nil, "", body, &resp); err != nil {
		return nil, err
	}
	return resp.toAuth(), nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*domain.ProviderAuth, error) {
	var resp sessionPayload
	body := map[string]string{"email": email, "password": password}
	q := url.Values{"grant_type": {"password"}}
	if err := c.do(ctx, http.MethodPost, "/token", q, "", body, &resp); err != nil {
		return nil, err
	}
	return resp.toAuth(), nil
}

func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*domain.ProviderAuth, error) {
	var resp sessionPayload
	body := map[string]string{"refresh_token": refreshToken}
	q := url.Values{"grant_type": {"refresh_token"}}
	if err := c.do(ctx, http.MethodPost, "/token", q, "", body, &resp); err != nil {
		return nil, err
	}
	return resp.toAuth(), nil
}

func (c *Client) ResendSignup(ctx context.Context, email string) error {
	body := map[string]string{"type": "signup", "email": email}
	return c.do(ctx, http.MethodPost, "/resend", nil, "", body, nil)
}

func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	var q url.Values
	if redirectTo != "" {
		q = url.Values{"redirect_to": {redirectTo}}
	}
	return c.do(ctx, http.MethodPost, "/recover", q, "", map[string]string{"email": email}, nil)
}

// UpdatePassword acts on behalf of the user owning accessToken.
func (c *Client) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	return c.do(ctx, http.MethodPut, "/user", nil, accessToken, map[string]string{"password": newPassword}, nil)
}

// Ping checks that the auth server answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, "", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, bearer string, payload, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	if bearer == "" {
		bearer = c.apiKey
	}
	op := func() error {
		var reader io.Reader
		if payload != nil {
			body, err := json.Marshal(payload)
			if err != nil {
				return backoff.Permanent(err)
			}
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+bearer)

		res, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
		}
		defer res.Body.Close()
		if res.StatusCode >= 400 {
			apiErr := decodeError(res)
			if res.StatusCode >= 500 {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}
		if out != nil {
			if err := json.NewDecoder(res.Body).Decode(out); err != nil {
				return backoff.Permanent(fmt.Errorf("%w: decode %s response: %v", domain.ErrUpstreamUnavailable, path, err))
			}
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = c.maxElapsed
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

// decodeError understands both the current {"error_code","msg"} and the OAuth style
// {"error","error_description"} bodies.
func decodeError(res *http.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	var body struct {
		ErrorCode        string `json:"error_code"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	_ = json.Unmarshal(raw, &body)
	apiErr := &APIError{StatusCode: res.StatusCode, Code: body.ErrorCode}
	if apiErr.Code == "" {
		apiErr.Code = body.Error
	}
	for _, m := range []string{body.Msg, body.Message, body.ErrorDescription} {
		if m != "" {
			apiErr.Message = m
			break
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(res.StatusCode)
	}
	return apiErr
}
