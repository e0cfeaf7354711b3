package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zhouzirui/news-agent/backend/internal/config"
	"github.com/zhouzirui/news-agent/backend/internal/logger"
	"github.com/zhouzirui/news-agent/backend/internal/model/chat"
)

const target = "identity provider"

// Grant is the result of a successful password sign-in.
type Grant struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	RefreshToken string    `json:"refresh_token"`
	User         chat.User `json:"user"`
}

// Client talks to a Supabase (GoTrue) compatible auth REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a client for the configured project.
func NewClient(cfg config.AuthConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInWithPassword exchanges email and password for an access token.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Grant, error) {
	body, status, err := c.post(ctx, "/auth/v1/token?grant_type=password", credentials{Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	var grant Grant
	if err := json.Unmarshal(body, &grant); err != nil {
		return nil, &chat.CallFailure{Target: target, Status: status, Err: fmt.Errorf("decode token response: %w", err)}
	}
	if grant.AccessToken == "" {
		return nil, &chat.CallFailure{Target: target, Status: status, Err: errors.New("token response has no access_token")}
	}

	logger.Debug("password sign-in succeeded", "user_id", grant.User.ID)
	return &grant, nil
}

// SignUp registers a new account. Depending on project settings the provider
// answers with either a bare user or a user plus session; both are accepted.
func (c *Client) SignUp(ctx context.Context, email, password string) (*chat.User, error) {
	body, status, err := c.post(ctx, "/auth/v1/signup", credentials{Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	var envelope struct {
		chat.User
		Nested *chat.User `json:"user"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &chat.CallFailure{Target: target, Status: status, Err: fmt.Errorf("decode signup response: %w", err)}
	}

	if envelope.Nested != nil {
		return envelope.Nested, nil
	}
	user := envelope.User
	return &user, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, int, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, 0, &chat.CallFailure{Target: target, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &chat.CallFailure{Target: target, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &chat.CallFailure{Target: target, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, &chat.CallFailure{
			Target: target,
			Status: resp.StatusCode,
			Err:    errors.New(providerMessage(body, resp.StatusCode)),
		}
	}

	return body, resp.StatusCode, nil
}

// providerMessage picks the human-readable reason out of an error body. GoTrue
// has used several shapes over time.
func providerMessage(body []byte, status int) string {
	var payload struct {
		Msg              string `json:"msg"`
		ErrorDescription string `json:"error_description"`
		Message          string `json:"message"`
		Error            string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, candidate := range []string{payload.Msg, payload.ErrorDescription, payload.Message, payload.Error} {
			if candidate = strings.TrimSpace(candidate); candidate != "" {
				return candidate
			}
		}
	}

	if text := http.StatusText(status); text != "" {
		return fmt.Sprintf("%d %s", status, text)
	}
	return fmt.Sprintf("unexpected status %d", status)
}
