package auth

import (
	"context"
	"encoding/json"
)

// LoginResult is what the remote service returns on a successful login or
// registration.
type LoginResult struct {
	Token    Token
	Identity Identity
}

// StatusResult is the remote service's view of the current session.
type StatusResult struct {
	IsAuthenticated bool
	Identity        Identity
}

// Service is the remote authentication service contract consumed by the
// engine. Implementations map transport failures to ErrNetwork and
// credential rejections to ErrInvalidCredentials so the engine can apply
// its propagation policy with errors.Is.
type Service interface {
	Login(ctx context.Context, email, password string) (LoginResult, error)
	Register(ctx context.Context, reg Registration) (LoginResult, error)
	// Logout is best-effort; the engine ignores its error.
	Logout(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, refreshToken string) (Token, error)
	Status(ctx context.Context, accessToken string) (StatusResult, error)
	Permissions(ctx context.Context, accessToken string) ([]string, error)
	// Do executes a generic mutating action; it is the replay target for
	// queued offline mutations.
	Do(ctx context.Context, kind string, payload json.RawMessage) error
}
