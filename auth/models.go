package auth

import (
	"encoding/json"
	"time"
)

// Token is the credential pair for the current session plus its expiry
// instant. Owned by the TokenStore; written only by the identity core and
// the scheduler's refresh path.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the token's expiry instant has passed.
func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Identity is the authenticated user's canonical profile. Created on
// successful login or registration, cleared on logout or forced expiry.
// All components other than the identity core treat it as read-only.
type Identity struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
}

// HasRole reports whether the identity carries the named role.
func (id Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Session is the time-bounded authenticated window derived from a Token.
// Owned by the session scheduler.
type Session struct {
	StartedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
	Active         bool
}

// Permission is the resolved elevated-access flag plus named capability
// grants. Ready is false until the first resolution completes; permission
// checks fail closed until then.
type Permission struct {
	Ready      bool
	IsElevated bool
	Grants     map[string]struct{}
}

// OfflineSnapshot is a time-stamped cached copy of an Identity, usable for
// authentication while the remote service is unreachable.
type OfflineSnapshot struct {
	Identity   Identity  `json:"identity"`
	CapturedAt time.Time `json:"captured_at"`
}

// Fresh reports whether the snapshot is still within its validity window.
func (s OfflineSnapshot) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.CapturedAt) < ttl
}

// PendingAction is a mutating operation recorded while offline, replayed
// in arrival order once connectivity returns.
type PendingAction struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	Attempts  int             `json:"attempts"`
}

// Credentials is the login input validated before any network call.
type Credentials struct {
	Email    string
	Password string
}

// Registration is the input for creating a new account.
type Registration struct {
	Email       string
	Password    string
	DisplayName string
}

// AuthStatus is the consolidated identity/session view exposed to the rest
// of the application.
type AuthStatus struct {
	IsAuthenticated bool
	Identity        Identity
	Offline         bool // authenticated from the offline snapshot
	ExpiresAt       time.Time
}
