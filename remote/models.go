package remote

import "github.com/thechompapp/chompauth/auth"

// loginRequest is the JSON body for POST /api/auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// registerRequest is the JSON body for POST /api/auth/register.
type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// identityPayload is the wire form of an identity.
type identityPayload struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
}

func (p identityPayload) toIdentity() auth.Identity {
	return auth.Identity{
		ID:          p.ID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		Roles:       p.Roles,
	}
}

// loginResponse is returned from login and register.
type loginResponse struct {
	Token        string          `json:"token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresIn    int64           `json:"expires_in"`
	Identity     identityPayload `json:"identity"`
}

// refreshRequest is the JSON body for POST /api/auth/refresh.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// refreshResponse is returned from POST /api/auth/refresh.
type refreshResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// statusResponse is returned from GET /api/auth/status.
type statusResponse struct {
	IsAuthenticated bool            `json:"is_authenticated"`
	Identity        identityPayload `json:"identity"`
}

// permissionsResponse is returned from GET /api/auth/permissions.
type permissionsResponse struct {
	Grants []string `json:"grants"`
}
