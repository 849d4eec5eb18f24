package backoffice

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
)

const maxResponseBytes = 4 << 20

// Client calls the tourdesk API on behalf of a Session. Every request carries
// the session token; a 401 reply ends the session.
type Client struct {
	base    *url.URL
	http    *http.Client
	session *Session
	agent   string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client (10s timeout).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.agent = strings.TrimSpace(ua) }
}

// NewClient builds a Client for the API rooted at baseURL.
func NewClient(baseURL string, session *Session, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("backoffice: base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("backoffice: base url must be http(s)://host, got %q", baseURL)
	}
	if session == nil {
		return nil, errors.New("backoffice: nil session")
	}
	c := &Client{
		base:    u,
		http:    &http.Client{Timeout: 10 * time.Second},
		session: session,
		agent:   "tourdesk-backoffice",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Session returns the session the client reports to.
func (c *Client) Session() *Session { return c.session }

// RestoreSession resolves the session's Loading state against this server.
func (c *Client) RestoreSession(ctx context.Context) error {
	return c.session.RestoreSession(ctx, c)
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

type meResponse struct {
	User User `json:"user"`
}

// Login exchanges credentials for a token and signs the session in.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	var out loginResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.call(ctx, "login", http.MethodPost, "/api/v1/auth/login", "", body, &out); err != nil {
		return User{}, err
	}
	if err := c.session.Login(out.Token, out.User); err != nil {
		return User{}, err
	}
	return out.User, nil
}

// FetchMe returns the user owning token without touching the session.
func (c *Client) FetchMe(ctx context.Context, token string) (User, error) {
	var out meResponse
	if err := c.call(ctx, "me", http.MethodGet, "/api/v1/auth/me", token, nil, &out); err != nil {
		return User{}, err
	}
	return out.User, nil
}

// Me returns the current user as the server sees it.
func (c *Client) Me(ctx context.Context) (User, error) {
	var out meResponse
	if err := c.authed(ctx, "me", http.MethodGet, "/api/v1/auth/me", nil, &out); err != nil {
		return User{}, err
	}
	return out.User, nil
}

// Logout tells the server (best effort) and then clears the session. The
// server call's error is returned only if clearing succeeded.
func (c *Client) Logout(ctx context.Context) error {
	var serverErr error
	if tok := c.session.Token(); tok != "" {
		serverErr = c.call(ctx, "logout", http.MethodPost, "/api/v1/auth/logout", tok, nil, nil)
	}
	if err := c.session.Logout(); err != nil {
		return err
	}
	if IsUnauthenticated(serverErr) {
		return nil
	}
	return serverErr
}

// GetAllPermissions lists every permission identifier. No caching.
func (c *Client) GetAllPermissions(ctx context.Context) ([]string, error) {
	var out struct {
		Permissions []string `json:"permissions"`
	}
	if err := c.authed(ctx, "permissions", http.MethodGet, "/api/v1/permissions", nil, &out); err != nil {
		return nil, err
	}
	return out.Permissions, nil
}

// GetPermissionsByRole lists the permissions granted to roleID. No caching.
func (c *Client) GetPermissionsByRole(ctx context.Context, roleID string) ([]string, error) {
	var out struct {
		Role        string   `json:"role"`
		Permissions []string `json:"permissions"`
	}
	path := "/api/v1/roles/" + url.PathEscape(roleID) + "/permissions"
	if err := c.authed(ctx, "role permissions", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Permissions, nil
}

// Role is a role and its permissions.
type Role struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// ListRoles lists every role with its permissions.
func (c *Client) ListRoles(ctx context.Context) ([]Role, error) {
	var out struct {
		Roles []Role `json:"roles"`
	}
	if err := c.authed(ctx, "roles", http.MethodGet, "/api/v1/roles", nil, &out); err != nil {
		return nil, err
	}
	return out.Roles, nil
}

// StaffUser is one account as listed by the server.
type StaffUser struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Roles       []string  `json:"roles"`
	Disabled    bool      `json:"disabled"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListUsers lists staff accounts. It needs users.read.
func (c *Client) ListUsers(ctx context.Context) ([]StaffUser, error) {
	var out struct {
		Users []StaffUser `json:"users"`
	}
	if err := c.authed(ctx, "users", http.MethodGet, "/api/v1/users", nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// Do sends an authenticated JSON request to path and decodes the reply into out.
// It is the building block for the catalog screens.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	return c.authed(ctx, strings.ToLower(method)+" "+path, method, path, in, out)
}

// authed calls with the session token and ends the session on 401.
func (c *Client) authed(ctx context.Context, op, method, path string, in, out any) error {
	tok := c.session.Token()
	if tok == "" {
		return &APIError{Status: http.StatusUnauthorized, Code: "unauthenticated", Message: "not signed in"}
	}
	err := c.call(ctx, op, method, path, tok, in, out)
	if IsUnauthenticated(err) {
		if cerr := c.session.HandleUnauthenticated(tok); cerr != nil {
			return errors.Join(err, fmt.Errorf("%s: clear token: %w", op, cerr))
		}
	}
	return err
}

func (c *Client) call(ctx context.Context, op, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.agent != "" {
		req.Header.Set("User-Agent", c.agent)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		apiErr := &APIError{Status: res.StatusCode, Code: http.StatusText(res.StatusCode)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &env) == nil && env.Error.Code != "" {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
