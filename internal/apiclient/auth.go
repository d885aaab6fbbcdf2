package apiclient

import (
	"context"
	"net/http"
	"time"
)

// LoginResult is the session material returned by a successful login. Role is
// nil when the employee has no role bound.
type LoginResult struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	Name      string    `json:"emp_name"`
	Role      *string   `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Me describes the authenticated caller.
type Me struct {
	ID    int64   `json:"id"`
	Email string  `json:"email"`
	Name  string  `json:"emp_name"`
	Role  *string `json:"role"`
}

// Login exchanges credentials for a token. It sends no Authorization header.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var out LoginResult
	err := c.WithTokens(nil).do(ctx, http.MethodPost, "/employee/login/", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	return out, err
}

// Logout revokes the current token.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/employee/logout/", nil, nil)
}

// Me returns the caller as seen by the server, including the current role.
func (c *Client) Me(ctx context.Context) (Me, error) {
	var out Me
	err := c.do(ctx, http.MethodGet, "/employee/me/", nil, &out)
	return out, err
}

// Revoke invalidates token regardless of the client's own token source.
func (c *Client) Revoke(ctx context.Context, token string) error {
	return c.WithTokens(StaticToken(token)).Logout(ctx)
}
