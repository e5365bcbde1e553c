package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/medicore/hms-access/pkg/config"
	"github.com/medicore/hms-access/pkg/logger"
	"github.com/medicore/hms-access/pkg/types"
)

// Backend is the contract the session store consumes. The far side is
// the hospital's authentication service.
type Backend interface {
	Login(ctx context.Context, creds types.Credentials) (*LoginResult, error)
	LoginDemo(ctx context.Context, role types.Role) (*LoginResult, error)
	Me(ctx context.Context, token string) (*types.User, error)
	Logout(ctx context.Context, token string) error
}

// LoginResult is the auth backend's response to a successful login.
type LoginResult struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

// Client talks to the auth backend over HTTP. Transport failures map to
// network errors, a plain 401 to invalid credentials, and a 401 carrying
// the expired flag to a forced logout.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *logger.Logger
}

// NewClient creates a new auth backend client.
func NewClient(cfg *config.AuthConfig, log *logger.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout()},
		logger:  log,
	}
}

// errorResponse is the backend's error envelope.
type errorResponse struct {
	Error   string `json:"error"`
	Expired bool   `json:"expired"`
}

// Login authenticates with email and password.
func (c *Client) Login(ctx context.Context, creds types.Credentials) (*LoginResult, error) {
	var result LoginResult
	if err := c.post(ctx, "/auth/login", "", creds, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// LoginDemo creates a sandboxed demo session for the given role.
func (c *Client) LoginDemo(ctx context.Context, role types.Role) (*LoginResult, error) {
	var result LoginResult
	body := map[string]string{"role": string(role)}
	if err := c.post(ctx, "/auth/demo", "", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Me returns the identity behind a token.
func (c *Client) Me(ctx context.Context, token string) (*types.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/me", nil)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeBackendFailure, "failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, types.NewNetworkError(types.ErrCodeNetworkFailure, "auth backend unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.mapError(resp)
	}

	var user types.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, types.NewInternalError(types.ErrCodeBackendFailure, "malformed auth backend response", err)
	}
	return &user, nil
}

// Logout invalidates a token on the backend.
func (c *Client) Logout(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/logout", nil)
	if err != nil {
		return types.NewInternalError(types.ErrCodeBackendFailure, "failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return types.NewNetworkError(types.ErrCodeNetworkFailure, "auth backend unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return c.mapError(resp)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path, token string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return types.NewInternalError(types.ErrCodeBackendFailure, "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return types.NewInternalError(types.ErrCodeBackendFailure, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return types.NewNetworkError(types.ErrCodeNetworkFailure, "auth backend unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.mapError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewInternalError(types.ErrCodeBackendFailure, "malformed auth backend response", err)
	}
	return nil
}

// mapError converts a backend error response into the core's taxonomy.
// The distinction matters to callers: invalid credentials mean re-prompt,
// an expired token forces logout, anything else is a backend fault.
func (c *Client) mapError(resp *http.Response) error {
	var body errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if body.Expired {
			return types.NewSessionExpiredError("session token expired")
		}
		return types.NewAuthenticationError(types.ErrCodeInvalidCredentials, "invalid email or password")
	default:
		return types.NewInternalError(types.ErrCodeBackendFailure,
			fmt.Sprintf("auth backend returned status %d", resp.StatusCode), nil)
	}
}
