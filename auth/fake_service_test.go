package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeService is an in-memory Service with overridable behavior and call
// counters, in the spirit of hand-rolled repo fakes.
type fakeService struct {
	mu sync.Mutex

	loginCalls       int
	registerCalls    int
	logoutCalls      int
	refreshCalls     int
	permissionsCalls int
	doCalls          []string

	loginFn       func(email, password string) (LoginResult, error)
	registerFn    func(reg Registration) (LoginResult, error)
	logoutErr     error
	refreshFn     func(refreshToken string) (Token, error)
	permissionsFn func() ([]string, error)
	doFn          func(kind string, payload json.RawMessage) error
}

var _ Service = (*fakeService)(nil)

func testIdentity() Identity {
	return Identity{
		ID:          "u-1",
		Email:       "alice@example.com",
		DisplayName: "Alice",
		Roles:       []string{"user"},
	}
}

func testLoginResult(expiresIn time.Duration) LoginResult {
	return LoginResult{
		Token: Token{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresAt:    time.Now().Add(expiresIn),
		},
		Identity: testIdentity(),
	}
}

func (f *fakeService) Login(_ context.Context, email, password string) (LoginResult, error) {
	f.mu.Lock()
	f.loginCalls++
	fn := f.loginFn
	f.mu.Unlock()
	if fn != nil {
		return fn(email, password)
	}
	return testLoginResult(time.Hour), nil
}

func (f *fakeService) Register(_ context.Context, reg Registration) (LoginResult, error) {
	f.mu.Lock()
	f.registerCalls++
	fn := f.registerFn
	f.mu.Unlock()
	if fn != nil {
		return fn(reg)
	}
	res := testLoginResult(time.Hour)
	res.Identity.Email = NormalizeEmail(reg.Email)
	res.Identity.DisplayName = reg.DisplayName
	return res, nil
}

func (f *fakeService) Logout(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	return f.logoutErr
}

func (f *fakeService) Refresh(_ context.Context, refreshToken string) (Token, error) {
	f.mu.Lock()
	f.refreshCalls++
	fn := f.refreshFn
	f.mu.Unlock()
	if fn != nil {
		return fn(refreshToken)
	}
	return Token{AccessToken: "access-2", RefreshToken: refreshToken, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeService) Status(context.Context, string) (StatusResult, error) {
	return StatusResult{IsAuthenticated: true, Identity: testIdentity()}, nil
}

func (f *fakeService) Permissions(context.Context, string) ([]string, error) {
	f.mu.Lock()
	f.permissionsCalls++
	fn := f.permissionsFn
	f.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return []string{"lists:read"}, nil
}

func (f *fakeService) Do(_ context.Context, kind string, payload json.RawMessage) error {
	f.mu.Lock()
	fn := f.doFn
	f.mu.Unlock()
	if fn != nil {
		if err := fn(kind, payload); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.doCalls = append(f.doCalls, kind)
	f.mu.Unlock()
	return nil
}

func (f *fakeService) executedKinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.doCalls...)
}

func (f *fakeService) counts() (login, refresh, permissions int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls, f.refreshCalls, f.permissionsCalls
}
