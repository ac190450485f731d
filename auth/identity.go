package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/thechompapp/chompauth/event"
	"github.com/thechompapp/chompauth/store"
)

// IdentityCore performs login, logout, and registration against the
// remote service. It is the sole writer of the Token and Identity slices;
// every other component reads them and coordinates through the bus.
type IdentityCore struct {
	mu       sync.Mutex
	identity *Identity

	svc     Service
	tokens  *TokenStore
	offline *OfflineCache
	store   store.Store
	bus     *event.Bus
	online  func() bool
	timeout time.Duration
	log     *slog.Logger
}

func newIdentityCore(svc Service, tokens *TokenStore, offline *OfflineCache, st store.Store, cfg Config, bus *event.Bus, online func() bool, log *slog.Logger) *IdentityCore {
	c := &IdentityCore{
		svc:     svc,
		tokens:  tokens,
		offline: offline,
		store:   st,
		bus:     bus,
		online:  online,
		timeout: cfg.RequestTimeout,
		log:     log.With("component", "identity"),
	}
	c.loadPersisted()
	event.Subscribe(bus, func(SessionExpired) { c.clearLocal() })
	return c
}

// loadPersisted restores the identity written by a previous process, so a
// restart with an unexpired token resumes the authenticated view.
func (c *IdentityCore) loadPersisted() {
	data, err := c.store.Get(keyIdentity)
	if err != nil {
		return
	}
	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		c.log.Warn("corrupt persisted identity, discarding", "error", err)
		_ = c.store.Delete(keyIdentity)
		return
	}
	c.mu.Lock()
	c.identity = &id
	c.mu.Unlock()
}

// Identity returns a copy of the current identity, if one is set.
func (c *IdentityCore) Identity() (Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		return Identity{}, false
	}
	return *c.identity, true
}

// Login authenticates against the remote service. Input shape is
// validated locally first, so malformed credentials never reach the
// network. A remote rejection is returned as ErrInvalidCredentials and
// never retried. An unreachable network falls back to the offline
// snapshot when a fresh one exists; otherwise ErrNetwork propagates.
func (c *IdentityCore) Login(ctx context.Context, creds Credentials) (AuthStatus, error) {
	if err := validateCredentials(creds); err != nil {
		return AuthStatus{}, err
	}
	email := NormalizeEmail(creds.Email)

	if !c.online() {
		return c.offlineFallback()
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	res, err := c.svc.Login(callCtx, email, creds.Password)
	if err != nil {
		if errors.Is(err, ErrNetwork) {
			return c.offlineFallback()
		}
		return AuthStatus{}, err
	}

	if err := c.completeLogin(res); err != nil {
		return AuthStatus{}, err
	}
	return AuthStatus{
		IsAuthenticated: true,
		Identity:        res.Identity,
		ExpiresAt:       res.Token.ExpiresAt,
	}, nil
}

// Register creates an account and, on success, behaves like an automatic
// login. Registration is the one mutating operation that cannot be queued
// offline: the account must exist before it can authenticate, so an
// unreachable network propagates as ErrNetwork.
func (c *IdentityCore) Register(ctx context.Context, reg Registration) (AuthStatus, error) {
	if err := validateRegistration(reg); err != nil {
		return AuthStatus{}, err
	}
	reg.Email = NormalizeEmail(reg.Email)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	res, err := c.svc.Register(callCtx, reg)
	if err != nil {
		return AuthStatus{}, err
	}

	if err := c.completeLogin(res); err != nil {
		return AuthStatus{}, err
	}
	return AuthStatus{
		IsAuthenticated: true,
		Identity:        res.Identity,
		ExpiresAt:       res.Token.ExpiresAt,
	}, nil
}

// Logout clears local state and notifies the remote service best-effort:
// a remote failure is logged and ignored, because logout must always
// succeed locally. Calling Logout without an active session is a no-op.
func (c *IdentityCore) Logout(ctx context.Context) error {
	if tok, ok, err := c.tokens.Get(); err == nil && ok && c.online() {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		if err := c.svc.Logout(callCtx, tok.AccessToken); err != nil {
			c.log.Warn("remote logout failed, proceeding locally", "error", err)
		}
		cancel()
	}

	c.clearLocal()
	c.bus.Publish(LogoutComplete{})
	return nil
}

// completeLogin writes the token and identity, then announces the login.
// The event fires only after both writes have succeeded.
func (c *IdentityCore) completeLogin(res LoginResult) error {
	if err := c.tokens.Set(res.Token); err != nil {
		return err
	}
	data, err := json.Marshal(res.Identity)
	if err != nil {
		return err
	}
	if err := c.store.Put(keyIdentity, data); err != nil {
		return fmt.Errorf("%w: persisting identity: %v", ErrStorage, err)
	}

	c.mu.Lock()
	id := res.Identity
	c.identity = &id
	c.mu.Unlock()

	c.log.Info("login complete", "user_id", res.Identity.ID)
	c.bus.Publish(LoginComplete{Identity: res.Identity})
	return nil
}

func (c *IdentityCore) clearLocal() {
	c.mu.Lock()
	c.identity = nil
	c.mu.Unlock()

	if err := c.tokens.Clear(); err != nil {
		c.log.Warn("clearing token failed", "error", err)
	}
	if err := c.store.Delete(keyIdentity); err != nil {
		c.log.Warn("clearing identity failed", "error", err)
	}
}

func (c *IdentityCore) offlineFallback() (AuthStatus, error) {
	id, ok := c.offline.Snapshot()
	if !ok {
		return AuthStatus{}, ErrNetwork
	}
	c.log.Info("authenticated from offline snapshot", "user_id", id.ID)
	return AuthStatus{IsAuthenticated: true, Identity: id, Offline: true}, nil
}
