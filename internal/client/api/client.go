// Package api is the console's client for the account endpoints. A signed-in
// Client is also the identity provider and token source for the remote store.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"scoreboard/internal/client/display"
	"scoreboard/internal/identity"
	"scoreboard/internal/server/core"
)

// Account endpoint bodies, mirroring the server's
type (
	RegisterRequest struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	LoginRequest struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}

	AuthResponse struct {
		Token     string    `json:"token"`
		UserID    string    `json:"userId"`
		Username  string    `json:"username"`
		Email     string    `json:"email"`
		ExpiresAt time.Time `json:"expiresAt"`
	}

	UserResponse struct {
		UserID    string    `json:"userId"`
		Username  string    `json:"username"`
		Email     string    `json:"email"`
		CreatedAt time.Time `json:"createdAt"`
	}

	HealthResponse struct {
		Status   string `json:"status"`
		Time     int64  `json:"time"`
		Storage  string `json:"storage"`
		Revision uint64 `json:"revision"`
	}
)

// APIError is a failed request with the server's error code
type APIError struct {
	Status  int
	Code    string
	Message string
	Details string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	}
	return msg
}

// Unwrap exposes the sentinel behind the code, if any
func (e *APIError) Unwrap() error {
	return core.Sentinel(e.Code)
}

type Client struct {
	identity.Observers

	HTTPClient *http.Client
	Verbose    bool
	Log        io.Writer

	mu       sync.RWMutex
	baseURL  string
	token    string
	username string
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		Log: io.Discard,
	}
}

func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// SetBaseURL updates the API base URL for the client
func (c *Client) SetBaseURL(url string) {
	c.mu.Lock()
	c.baseURL = strings.TrimRight(url, "/")
	c.mu.Unlock()
}

// Token returns the bearer token, empty when signed out
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL()+path, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if c.Verbose {
		fmt.Fprintf(c.Log, "%s[API] %s %s%s\n", display.Blue, method, path, display.Reset)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if c.Verbose {
		statusColor := display.Green
		if resp.StatusCode >= 400 {
			statusColor = display.Red
		}
		fmt.Fprintf(c.Log, "%s[%d %s]%s\n", statusColor, resp.StatusCode, http.StatusText(resp.StatusCode), display.Reset)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		var errResp core.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil {
			apiErr.Code, apiErr.Message, apiErr.Details = errResp.Code, errResp.Error, errResp.Details
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	err := c.doRequest(ctx, http.MethodGet, "/health", nil, &resp)
	return &resp, err
}

// Register creates an account and signs in with it
func (c *Client) Register(ctx context.Context, username, email, password string) (*AuthResponse, error) {
	var resp AuthResponse
	req := RegisterRequest{Username: username, Email: email, Password: password}
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/register", req, &resp); err != nil {
		return nil, err
	}
	c.signedIn(&resp)
	return &resp, nil
}

// Login signs in with a username or email
func (c *Client) Login(ctx context.Context, identifier, password string) (*AuthResponse, error) {
	var resp AuthResponse
	req := LoginRequest{Identifier: identifier, Password: password}
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/login", req, &resp); err != nil {
		return nil, err
	}
	c.signedIn(&resp)
	return &resp, nil
}

func (c *Client) signedIn(resp *AuthResponse) {
	c.mu.Lock()
	c.token = resp.Token
	c.username = resp.Username
	c.mu.Unlock()
	c.Set(&identity.Identity{UID: resp.UserID, Email: resp.Email})
}

func (c *Client) GetCurrentUser(ctx context.Context) (*UserResponse, error) {
	var resp UserResponse
	err := c.doRequest(ctx, http.MethodGet, "/api/v1/auth/me", nil, &resp)
	return &resp, err
}

// SignIn implements identity.Provider
func (c *Client) SignIn(ctx context.Context, email, password string) (*identity.Identity, error) {
	if _, err := c.Login(ctx, email, password); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return nil, identity.ErrInvalidCredentials
		}
		return nil, err
	}
	return c.Current(), nil
}

// SignOut revokes the session server-side and clears it locally. The local
// state is cleared even when the server cannot be reached.
func (c *Client) SignOut(ctx context.Context) error {
	var err error
	if c.Token() != "" {
		err = c.doRequest(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil)
	}
	c.mu.Lock()
	c.token = ""
	c.username = ""
	c.mu.Unlock()
	c.Set(nil)
	return err
}

// RawRequest performs a raw request for debugging and returns the body
func (c *Client) RawRequest(ctx context.Context, method, path, body string) (json.RawMessage, error) {
	var payload any
	if body != "" {
		raw := json.RawMessage(body)
		if !json.Valid(raw) {
			return nil, fmt.Errorf("body is not valid JSON")
		}
		payload = raw
	}
	var out json.RawMessage
	err := c.doRequest(ctx, method, path, payload, &out)
	return out, err
}

var _ identity.Provider = (*Client)(nil)
