package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/thechompapp/chompauth/store"
)

// Persisted state keys. All are namespaced to this subsystem; the token,
// identity, and snapshot keys are cleared on logout, while pending
// actions survive it.
const (
	keyAccessToken     = "auth:access_token"
	keyRefreshToken    = "auth:refresh_token"
	keyExpiresAt       = "auth:expires_at"
	keyIdentity        = "auth:identity"
	keyOfflineSnapshot = "auth:offline_snapshot"
	keyPendingActions  = "auth:pending_actions"
)

// TokenStore is the durable holder of the current credential pair and its
// expiry instant. Pure storage: expiry policy lives in callers. Written
// only by the identity core and the scheduler's refresh path.
type TokenStore struct {
	store store.Store
}

// NewTokenStore creates a TokenStore persisting through st.
func NewTokenStore(st store.Store) *TokenStore {
	return &TokenStore{store: st}
}

// Set persists the token.
func (ts *TokenStore) Set(tok Token) error {
	if err := ts.store.Put(keyAccessToken, []byte(tok.AccessToken)); err != nil {
		return fmt.Errorf("%w: persisting access token: %v", ErrStorage, err)
	}
	if err := ts.store.Put(keyRefreshToken, []byte(tok.RefreshToken)); err != nil {
		return fmt.Errorf("%w: persisting refresh token: %v", ErrStorage, err)
	}
	if err := ts.store.Put(keyExpiresAt, []byte(tok.ExpiresAt.UTC().Format(time.RFC3339Nano))); err != nil {
		return fmt.Errorf("%w: persisting expiry: %v", ErrStorage, err)
	}
	return nil
}

// Get returns the stored token, or false if none is stored.
func (ts *TokenStore) Get() (Token, bool, error) {
	access, err := ts.store.Get(keyAccessToken)
	if errors.Is(err, store.ErrNotFound) {
		return Token{}, false, nil
	}
	if err != nil {
		return Token{}, false, fmt.Errorf("%w: reading access token: %v", ErrStorage, err)
	}
	refresh, err := ts.store.Get(keyRefreshToken)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return Token{}, false, fmt.Errorf("%w: reading refresh token: %v", ErrStorage, err)
	}
	var expiresAt time.Time
	if raw, err := ts.store.Get(keyExpiresAt); err == nil {
		if parsed, perr := time.Parse(time.RFC3339Nano, string(raw)); perr == nil {
			expiresAt = parsed
		}
	}
	return Token{
		AccessToken:  string(access),
		RefreshToken: string(refresh),
		ExpiresAt:    expiresAt,
	}, true, nil
}

// Clear removes the stored token.
func (ts *TokenStore) Clear() error {
	for _, key := range []string{keyAccessToken, keyRefreshToken, keyExpiresAt} {
		if err := ts.store.Delete(key); err != nil {
			return fmt.Errorf("%w: clearing %s: %v", ErrStorage, key, err)
		}
	}
	return nil
}
