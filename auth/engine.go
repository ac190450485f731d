// Package auth implements the client-side authentication and session
// coordination engine: identity and token lifecycle, a background
// expiry/refresh scheduler, asynchronous permission resolution, an
// offline identity cache, and an ordered replay queue for mutations
// attempted while the remote service is unreachable.
//
// Each state slice (token, identity, session, permission, snapshot,
// queue) has exactly one writer; components coordinate only through the
// event bus, never by mutating one another.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/thechompapp/chompauth/event"
	"github.com/thechompapp/chompauth/store"
)

// Engine is the explicit context object constructed once at process start.
// It owns the component wiring and is the only API the rest of the
// application calls.
type Engine struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	bus    *event.Bus
	store  store.Store
	svc    Service
	online atomic.Bool

	tokens      *TokenStore
	offline     *OfflineCache
	queue       *PendingActionQueue
	identity    *IdentityCore
	scheduler   *SessionScheduler
	permissions *PermissionCore
}

// New constructs the engine and wires its components. The engine starts
// in the online state; the host environment drives transitions through
// SetOnline.
func New(svc Service, st store.Store, opts ...Option) *Engine {
	e := &Engine{
		cfg:   DefaultConfig(),
		now:   time.Now,
		bus:   event.New(),
		store: st,
		svc:   svc,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	e.online.Store(true)

	// Subscription order is wiring order: the scheduler sees a login
	// before permissions resolve and the snapshot is captured.
	e.tokens = NewTokenStore(st)
	e.scheduler = newSessionScheduler(svc, e.tokens, e.cfg, e.now, e.bus, e.log)
	e.permissions = newPermissionCore(svc, e.tokens, e.cfg, e.bus, e.log)
	e.offline = newOfflineCache(st, e.cfg.SnapshotTTL, e.now, e.bus, e.log)
	e.queue = newPendingActionQueue(st, func(ctx context.Context, action PendingAction) error {
		return svc.Do(ctx, action.Kind, action.Payload)
	}, e.cfg, e.now, e.bus, e.log)
	e.identity = newIdentityCore(svc, e.tokens, e.offline, st, e.cfg, e.bus, e.online.Load, e.log)
	return e
}

// Bus exposes the event bus for UI reactivity subscriptions.
func (e *Engine) Bus() *event.Bus { return e.bus }

// Login authenticates with the remote service, falling back to the
// offline snapshot when the network is unreachable.
func (e *Engine) Login(ctx context.Context, creds Credentials) (AuthStatus, error) {
	return e.identity.Login(ctx, creds)
}

// Logout clears the session. Always succeeds locally; safe to call twice.
func (e *Engine) Logout(ctx context.Context) error {
	return e.identity.Logout(ctx)
}

// Register creates an account and logs it in.
func (e *Engine) Register(ctx context.Context, reg Registration) (AuthStatus, error) {
	return e.identity.Register(ctx, reg)
}

// AuthStatus reports the consolidated identity/session view: an identity
// with an unexpired token, or failing that a fresh offline snapshot while
// the network is down.
func (e *Engine) AuthStatus() AuthStatus {
	if id, ok := e.identity.Identity(); ok {
		if tok, haveTok, err := e.tokens.Get(); err == nil && haveTok && !tok.Expired(e.now()) {
			return AuthStatus{IsAuthenticated: true, Identity: id, ExpiresAt: tok.ExpiresAt}
		}
	}
	if !e.Online() {
		if id, ok := e.offline.Snapshot(); ok {
			return AuthStatus{IsAuthenticated: true, Identity: id, Offline: true}
		}
	}
	return AuthStatus{}
}

// HasPermission reports whether the current identity holds the named
// grant. Fail closed: false before the first resolution completes.
func (e *Engine) HasPermission(name string) bool {
	return e.permissions.HasPermission(name)
}

// Permissions returns a copy of the resolved permission state.
func (e *Engine) Permissions() Permission {
	return e.permissions.Status()
}

// Session returns a copy of the scheduler's session state.
func (e *Engine) Session() Session {
	return e.scheduler.Session()
}

// SubmitAction executes a mutating action against the remote service, or
// records it for later replay when the network is unreachable. Returns
// true when the action was queued rather than executed.
func (e *Engine) SubmitAction(ctx context.Context, kind string, payload json.RawMessage) (queued bool, err error) {
	if !e.Online() {
		_, err := e.queue.Enqueue(kind, payload)
		return true, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()
	if err := e.svc.Do(callCtx, kind, payload); err != nil {
		if errors.Is(err, ErrNetwork) {
			_, qerr := e.queue.Enqueue(kind, payload)
			return true, qerr
		}
		return false, err
	}
	return false, nil
}

// PendingActions returns the queued mutations in arrival order.
func (e *Engine) PendingActions() ([]PendingAction, error) {
	return e.queue.Pending()
}

// ProcessPending replays the queue; see PendingActionQueue.ProcessPending.
func (e *Engine) ProcessPending(ctx context.Context) ([]PendingAction, error) {
	return e.queue.ProcessPending(ctx)
}

// Online reports the engine's current connectivity view.
func (e *Engine) Online() bool { return e.online.Load() }

// SetOnline surfaces a host connectivity transition. The matching bus
// event fires only on an actual change; the online transition triggers
// queue replay.
func (e *Engine) SetOnline(online bool) {
	if e.online.Swap(online) == online {
		return
	}
	if online {
		e.log.Info("network online")
		e.bus.Publish(NetworkOnline{})
	} else {
		e.log.Info("network offline")
		e.bus.Publish(NetworkOffline{})
	}
}

// Resume restarts the background session machinery after a process
// restart: if a persisted identity and an unexpired token exist, it
// republishes the login event so the scheduler, permission core, and
// offline cache pick the session back up. Returns the resulting status.
func (e *Engine) Resume() AuthStatus {
	id, ok := e.identity.Identity()
	if !ok {
		return e.AuthStatus()
	}
	tok, haveTok, err := e.tokens.Get()
	if err != nil || !haveTok || tok.Expired(e.now()) {
		return e.AuthStatus()
	}
	e.log.Info("resuming persisted session", "user_id", id.ID, "expires_at", tok.ExpiresAt)
	e.bus.Publish(LoginComplete{Identity: id})
	return e.AuthStatus()
}

// Close stops the background scheduler. The durable store is owned by the
// caller and closed separately.
func (e *Engine) Close() {
	e.scheduler.stop()
}
