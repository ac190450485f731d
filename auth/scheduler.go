package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/thechompapp/chompauth/event"
)

// SessionScheduler runs the background expiry/refresh loop for the active
// session. It starts on login, stops on logout or expiry, and on each
// tick either silently refreshes the token or forces expiry.
//
// Every tick and every refresh completion is guarded by a generation
// counter captured at start time: a logout that lands between two ticks,
// or during an in-flight refresh call, prevents the late callback from
// resurrecting session state.
type SessionScheduler struct {
	mu   sync.Mutex
	gen  uint64
	sess Session

	svc       Service
	tokens    *TokenStore
	bus       *event.Bus
	now       func() time.Time
	interval  time.Duration
	threshold time.Duration
	timeout   time.Duration
	log       *slog.Logger
}

func newSessionScheduler(svc Service, tokens *TokenStore, cfg Config, now func() time.Time, bus *event.Bus, log *slog.Logger) *SessionScheduler {
	s := &SessionScheduler{
		svc:       svc,
		tokens:    tokens,
		bus:       bus,
		now:       now,
		interval:  cfg.CheckInterval,
		threshold: cfg.RefreshThreshold,
		timeout:   cfg.RequestTimeout,
		log:       log.With("component", "scheduler"),
	}
	event.Subscribe(bus, func(LoginComplete) { s.start() })
	event.Subscribe(bus, func(LogoutComplete) { s.stop() })
	return s
}

// Session returns a copy of the scheduler's session state.
func (s *SessionScheduler) Session() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

// start begins a new scheduling generation for the token currently in the
// store. Any previous timer loop becomes stale immediately.
func (s *SessionScheduler) start() {
	tok, ok, err := s.tokens.Get()
	if err != nil || !ok {
		s.log.Warn("no token at session start", "error", err)
		return
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	now := s.now()
	s.sess = Session{
		StartedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      tok.ExpiresAt,
		Active:         true,
	}
	s.mu.Unlock()

	go s.run(gen)
}

// stop invalidates the current generation. The timer goroutine observes
// the stale generation on its next tick and exits; until then its
// callbacks are no-ops.
func (s *SessionScheduler) stop() {
	s.mu.Lock()
	s.gen++
	s.sess = Session{}
	s.mu.Unlock()
}

func (s *SessionScheduler) run(gen uint64) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for range ticker.C {
		if !s.tick(gen) {
			return
		}
	}
}

// tick performs one expiry check. Returns false when this generation is
// finished and the loop should exit.
func (s *SessionScheduler) tick(gen uint64) bool {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return false
	}
	sess := s.sess
	s.mu.Unlock()

	now := s.now()
	if !now.Before(sess.ExpiresAt) {
		s.expire(gen)
		return false
	}
	if sess.ExpiresAt.Sub(now) < s.threshold {
		s.refresh(gen)
	}
	return true
}

// refresh attempts a silent token refresh. Failure is absorbed: the
// existing token runs to its natural expiry, at which point the next tick
// expires the session.
func (s *SessionScheduler) refresh(gen uint64) {
	tok, ok, err := s.tokens.Get()
	if err != nil || !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	newTok, err := s.svc.Refresh(ctx, tok.RefreshToken)
	cancel()
	if err != nil {
		s.log.Warn("token refresh failed, running to natural expiry", "error", err)
		return
	}
	if newTok.RefreshToken == "" {
		newTok.RefreshToken = tok.RefreshToken
	}

	s.mu.Lock()
	if gen != s.gen {
		// Logged out while the refresh call was in flight; discard.
		s.mu.Unlock()
		return
	}
	if err := s.tokens.Set(newTok); err != nil {
		s.mu.Unlock()
		s.log.Warn("persisting refreshed token failed", "error", err)
		return
	}
	s.sess.ExpiresAt = newTok.ExpiresAt
	s.sess.LastActivityAt = s.now()
	s.mu.Unlock()

	s.log.Info("session refreshed", "expires_at", newTok.ExpiresAt)
}

// expire transitions Active -> Expired -> Inactive and publishes exactly
// one session_expired event for this generation.
func (s *SessionScheduler) expire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.sess = Session{}
	s.mu.Unlock()

	s.log.Info("session expired")
	s.bus.Publish(SessionExpired{})
}
