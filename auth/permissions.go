package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/thechompapp/chompauth/event"
)

// RoleSuperuser marks an identity whose permission checks bypass
// per-grant lookups.
const RoleSuperuser = "superuser"

// PermissionCore asynchronously resolves elevated-access status and
// capability grants for the current identity. It reacts to identity
// lifecycle events but never touches identity state itself. Checks fail
// closed: Ready stays false until the first resolution completes, and a
// fetch failure resolves to least privilege rather than blocking callers.
type PermissionCore struct {
	mu   sync.Mutex
	gen  uint64
	perm Permission

	svc     Service
	tokens  *TokenStore
	bus     *event.Bus
	timeout time.Duration
	log     *slog.Logger
}

func newPermissionCore(svc Service, tokens *TokenStore, cfg Config, bus *event.Bus, log *slog.Logger) *PermissionCore {
	p := &PermissionCore{
		svc:     svc,
		tokens:  tokens,
		bus:     bus,
		timeout: cfg.RequestTimeout,
		log:     log.With("component", "permissions"),
	}
	event.Subscribe(bus, func(e LoginComplete) { p.onLogin(e.Identity) })
	event.Subscribe(bus, func(LogoutComplete) { p.reset() })
	event.Subscribe(bus, func(SessionExpired) { p.reset() })
	return p
}

func (p *PermissionCore) onLogin(identity Identity) {
	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.perm = Permission{}
	p.mu.Unlock()

	go p.resolve(gen, identity)
}

// resolve fetches grants and publishes the outcome. The generation check
// discards results that complete after a logout or a newer login.
func (p *PermissionCore) resolve(gen uint64, identity Identity) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	elevated := identity.HasRole(RoleSuperuser)
	grants := make(map[string]struct{})

	var accessToken string
	if tok, ok, err := p.tokens.Get(); err == nil && ok {
		accessToken = tok.AccessToken
	}

	names, err := p.svc.Permissions(ctx, accessToken)
	if err != nil {
		// Fail closed but still become ready so callers are never
		// blocked by a permissions outage.
		p.log.Warn("grant fetch failed, resolving to least privilege", "error", err)
		elevated = false
	} else {
		for _, name := range names {
			grants[name] = struct{}{}
		}
	}

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.perm = Permission{Ready: true, IsElevated: elevated, Grants: grants}
	p.mu.Unlock()

	if elevated {
		p.bus.Publish(SuperuserStatusChanged{IsElevated: true})
	}
}

func (p *PermissionCore) reset() {
	p.mu.Lock()
	p.gen++
	wasElevated := p.perm.IsElevated
	p.perm = Permission{}
	p.mu.Unlock()

	if wasElevated {
		p.bus.Publish(SuperuserStatusChanged{IsElevated: false})
	}
}

// HasPermission reports whether the current identity holds the named
// grant. Elevated identities pass unconditionally. Before the first
// resolution completes this returns false rather than blocking.
func (p *PermissionCore) HasPermission(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.perm.Ready {
		return false
	}
	if p.perm.IsElevated {
		return true
	}
	_, ok := p.perm.Grants[name]
	return ok
}

// Status returns a copy of the current permission state.
func (p *PermissionCore) Status() Permission {
	p.mu.Lock()
	defer p.mu.Unlock()
	grants := make(map[string]struct{}, len(p.perm.Grants))
	for g := range p.perm.Grants {
		grants[g] = struct{}{}
	}
	return Permission{Ready: p.perm.Ready, IsElevated: p.perm.IsElevated, Grants: grants}
}
