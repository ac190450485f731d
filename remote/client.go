// Package remote implements the HTTP client for the remote authentication
// service consumed by the engine. Transport failures and timeouts map to
// auth.ErrNetwork; credential rejections map to auth.ErrInvalidCredentials.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/thechompapp/chompauth/auth"
)

// Client talks to the remote authentication service.
type Client struct {
	baseURL string
	http    *http.Client
	now     func() time.Time
}

var _ auth.Service = (*Client)(nil)

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Login(ctx context.Context, email, password string) (auth.LoginResult, error) {
	var resp loginResponse
	err := c.post(ctx, "/api/auth/login", "", loginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		if isStatus(err, http.StatusUnauthorized) {
			return auth.LoginResult{}, fmt.Errorf("%w: remote rejected login", auth.ErrInvalidCredentials)
		}
		return auth.LoginResult{}, err
	}
	return c.toLoginResult(resp), nil
}

func (c *Client) Register(ctx context.Context, reg auth.Registration) (auth.LoginResult, error) {
	req := registerRequest{Email: reg.Email, Password: reg.Password, DisplayName: reg.DisplayName}
	var resp loginResponse
	err := c.post(ctx, "/api/auth/register", "", req, &resp)
	if err != nil {
		if isStatus(err, http.StatusConflict) {
			return auth.LoginResult{}, fmt.Errorf("%w: account already exists", auth.ErrValidation)
		}
		return auth.LoginResult{}, err
	}
	return c.toLoginResult(resp), nil
}

func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.post(ctx, "/api/auth/logout", accessToken, struct{}{}, nil)
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (auth.Token, error) {
	var resp refreshResponse
	err := c.post(ctx, "/api/auth/refresh", "", refreshRequest{RefreshToken: refreshToken}, &resp)
	if err != nil {
		if isStatus(err, http.StatusUnauthorized) {
			return auth.Token{}, fmt.Errorf("%w: remote rejected refresh token", auth.ErrTokenRefreshFailed)
		}
		return auth.Token{}, err
	}
	return auth.Token{
		AccessToken:  resp.Token,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    c.expiryOf(resp.Token, resp.ExpiresIn),
	}, nil
}

func (c *Client) Status(ctx context.Context, accessToken string) (auth.StatusResult, error) {
	var resp statusResponse
	if err := c.get(ctx, "/api/auth/status", accessToken, &resp); err != nil {
		return auth.StatusResult{}, err
	}
	return auth.StatusResult{
		IsAuthenticated: resp.IsAuthenticated,
		Identity:        resp.Identity.toIdentity(),
	}, nil
}

func (c *Client) Permissions(ctx context.Context, accessToken string) ([]string, error) {
	var resp permissionsResponse
	if err := c.get(ctx, "/api/auth/permissions", accessToken, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrPermissionFetchFailed, err)
	}
	return resp.Grants, nil
}

func (c *Client) Do(ctx context.Context, kind string, payload json.RawMessage) error {
	return c.post(ctx, "/api/actions/"+url.PathEscape(kind), "", payload, nil)
}

// expiryOf computes the token expiry instant. When the server supplies
// expiresIn that wins; otherwise the unverified exp claim of the JWT is
// used. Claim verification is the server's job — the client only needs
// the timestamp for scheduling.
func (c *Client) expiryOf(accessToken string, expiresIn int64) time.Time {
	if expiresIn > 0 {
		return c.now().Add(time.Duration(expiresIn) * time.Second)
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return time.Time{}
}

func (c *Client) toLoginResult(resp loginResponse) auth.LoginResult {
	return auth.LoginResult{
		Token: auth.Token{
			AccessToken:  resp.Token,
			RefreshToken: resp.RefreshToken,
			ExpiresAt:    c.expiryOf(resp.Token, resp.ExpiresIn),
		},
		Identity: resp.Identity.toIdentity(),
	}
}

// statusError carries a non-2xx response status for errors.As mapping.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("remote service returned %d: %s", e.status, e.body)
}

func isStatus(err error, status int) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == status
}

func (c *Client) post(ctx context.Context, path, accessToken string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.roundTrip(ctx, http.MethodPost, path, accessToken, bytes.NewReader(data), out)
}

func (c *Client) get(ctx context.Context, path, accessToken string, out any) error {
	return c.roundTrip(ctx, http.MethodGet, path, accessToken, nil, out)
}

func (c *Client) roundTrip(ctx context.Context, method, path, accessToken string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport errors and timeouts are indistinguishable from an
		// unreachable service to this client.
		return fmt.Errorf("%w: %v", auth.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{status: resp.StatusCode, body: string(bytes.TrimSpace(msg))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
