package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds the provider connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the hosted identity provider.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a provider client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

type userResponse struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	AppMetadata map[string]any `json:"app_metadata"`
}

type sessionResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"`
	User         userResponse `json:"user"`
}

type challengeResponse struct {
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

// SignInWithPassword exchanges credentials for a provider session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var resp sessionResponse
	err := c.do(ctx, http.MethodPost, "/token?grant_type=password", credentialsRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.toSession(), nil
}

// SignUp registers a new account with the provider.
func (c *Client) SignUp(ctx context.Context, email, password string) (*Session, error) {
	var resp sessionResponse
	err := c.do(ctx, http.MethodPost, "/signup", credentialsRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.toSession(), nil
}

// SendPasswordReset asks the provider to mail a reset link. The provider
// responds identically whether or not the address exists.
func (c *Client) SendPasswordReset(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/recover", emailRequest{Email: email}, nil)
}

// OAuthRedirectURL builds the provider URL that starts an OAuth sign-in.
func (c *Client) OAuthRedirectURL(provider, redirectTo string) string {
	values := url.Values{}
	values.Set("provider", provider)
	if redirectTo != "" {
		values.Set("redirect_to", redirectTo)
	}
	return c.baseURL + "/authorize?" + values.Encode()
}

// ChallengeMFA opens a verification challenge against a provider factor.
func (c *Client) ChallengeMFA(ctx context.Context, factorID string) (*Challenge, error) {
	var resp challengeResponse
	path := fmt.Sprintf("/factors/%s/challenge", url.PathEscape(factorID))
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}

	return &Challenge{
		ID:        resp.ID,
		FactorID:  factorID,
		ExpiresAt: time.Unix(resp.ExpiresAt, 0),
	}, nil
}

// VerifyMFA submits a code for an open challenge and returns the upgraded
// session on success.
func (c *Client) VerifyMFA(ctx context.Context, factorID, challengeID, code string) (*Session, error) {
	var resp sessionResponse
	path := fmt.Sprintf("/factors/%s/verify", url.PathEscape(factorID))
	err := c.do(ctx, http.MethodPost, path, verifyRequest{ChallengeID: challengeID, Code: code}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.toSession(), nil
}

func (sr *sessionResponse) toSession() *Session {
	session := &Session{
		AccessToken:  sr.AccessToken,
		RefreshToken: sr.RefreshToken,
		TokenType:    sr.TokenType,
		ExpiresIn:    sr.ExpiresIn,
		UserID:       sr.User.ID,
		Email:        sr.User.Email,
	}
	if role, ok := sr.User.AppMetadata["role"].(string); ok {
		session.Role = role
	}
	return session
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode provider request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.apiError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode provider response: %w", err)
	}
	return nil
}

func (c *Client) apiError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var payload struct {
		Error            string `json:"error"`
		ErrorCode        string `json:"error_code"`
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload); err == nil {
		apiErr.Code = payload.ErrorCode
		if apiErr.Code == "" {
			apiErr.Code = payload.Error
		}
		apiErr.Message = payload.ErrorDescription
		if apiErr.Message == "" {
			apiErr.Message = payload.Msg
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	return apiErr
}
