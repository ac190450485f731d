package auth

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thechompapp/chompauth/event"
	"github.com/thechompapp/chompauth/store/memory"
)

// schedulerFixture wires a scheduler with aggressive timings against a
// fake service and counts session_expired deliveries.
type schedulerFixture struct {
	svc       *fakeService
	tokens    *TokenStore
	bus       *event.Bus
	scheduler *SessionScheduler
	expired   atomic.Int32
}

func newSchedulerFixture(t *testing.T, svc *fakeService) *schedulerFixture {
	t.Helper()
	cfg := DefaultConfig()
	cfg.CheckInterval = 10 * time.Millisecond
	cfg.RefreshThreshold = 50 * time.Millisecond
	cfg.RequestTimeout = time.Second

	f := &schedulerFixture{
		svc:    svc,
		tokens: NewTokenStore(memory.New()),
		bus:    event.New(),
	}
	f.scheduler = newSessionScheduler(svc, f.tokens, cfg, time.Now, f.bus, discardLogger())
	event.Subscribe(f.bus, func(SessionExpired) { f.expired.Add(1) })
	t.Cleanup(f.scheduler.stop)
	return f
}

// login seeds the token store and announces the login, starting the
// scheduler the same way the engine does.
func (f *schedulerFixture) login(t *testing.T, expiresIn time.Duration) {
	t.Helper()
	tok := Token{AccessToken: "access", RefreshToken: "refresh", ExpiresAt: time.Now().Add(expiresIn)}
	require.NoError(t, f.tokens.Set(tok))
	f.bus.Publish(LoginComplete{Identity: testIdentity()})
}

func TestScheduler_StartsOnLogin(t *testing.T) {
	f := newSchedulerFixture(t, &fakeService{})
	assert.False(t, f.scheduler.Session().Active)

	f.login(t, time.Hour)
	sess := f.scheduler.Session()
	assert.True(t, sess.Active)
	assert.False(t, sess.ExpiresAt.IsZero())
}

func TestScheduler_RefreshExtendsWithoutExpiry(t *testing.T) {
	extended := time.Now().Add(time.Hour)
	svc := &fakeService{
		refreshFn: func(refreshToken string) (Token, error) {
			return Token{AccessToken: "access-2", RefreshToken: refreshToken, ExpiresAt: extended}, nil
		},
	}
	f := newSchedulerFixture(t, svc)

	// Below the refresh threshold but not yet expired.
	f.login(t, 40*time.Millisecond)

	require.Eventually(t, func() bool {
		return f.scheduler.Session().ExpiresAt.Equal(extended)
	}, time.Second, 5*time.Millisecond, "silent refresh should extend the session")

	tok, ok, err := f.tokens.Get()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "access-2", tok.AccessToken)
	assert.Zero(t, f.expired.Load(), "no session_expired on the refresh path")
}

func TestScheduler_ExpiresExactlyOnceWhenRefreshFails(t *testing.T) {
	svc := &fakeService{
		refreshFn: func(string) (Token, error) {
			return Token{}, ErrTokenRefreshFailed
		},
	}
	f := newSchedulerFixture(t, svc)
	f.login(t, 30*time.Millisecond)

	require.Eventually(t, func() bool {
		return f.expired.Load() > 0
	}, time.Second, 5*time.Millisecond)

	// Give further ticks a chance to misfire, then check the count.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), f.expired.Load(), "exactly one session_expired")
	assert.False(t, f.scheduler.Session().Active)
}

func TestScheduler_AlreadyExpiredTokenExpiresImmediately(t *testing.T) {
	f := newSchedulerFixture(t, &fakeService{})
	f.login(t, -time.Second)

	require.Eventually(t, func() bool {
		return f.expired.Load() == 1
	}, time.Second, 5*time.Millisecond)
	_, refreshCalls, _ := f.svc.counts()
	assert.Zero(t, refreshCalls, "an expired session is not refreshed")
}

func TestScheduler_LogoutSuppressesStaleTicks(t *testing.T) {
	f := newSchedulerFixture(t, &fakeService{})
	f.login(t, 30*time.Millisecond)

	f.bus.Publish(LogoutComplete{})
	assert.False(t, f.scheduler.Session().Active)

	// The token's expiry passes while the stale timer loop winds down;
	// no expiry event may fire for a session that was logged out.
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, f.expired.Load())
}

func TestScheduler_LogoutDuringInFlightRefreshDiscardsResult(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	svc := &fakeService{}
	svc.refreshFn = func(refreshToken string) (Token, error) {
		once.Do(func() { <-release })
		return Token{AccessToken: "resurrected", RefreshToken: refreshToken, ExpiresAt: time.Now().Add(time.Hour)}, nil
	}
	f := newSchedulerFixture(t, svc)
	f.login(t, 40*time.Millisecond)

	// Wait for the refresh call to be in flight, then log out under it.
	require.Eventually(t, func() bool {
		_, refreshCalls, _ := f.svc.counts()
		return refreshCalls > 0
	}, time.Second, time.Millisecond)

	f.bus.Publish(LogoutComplete{})
	require.NoError(t, f.tokens.Clear())
	close(release)

	// The refresh completion must not write the token back or revive
	// the session.
	time.Sleep(50 * time.Millisecond)
	_, ok, err := f.tokens.Get()
	require.NoError(t, err)
	assert.False(t, ok, "stale refresh must not resurrect the token")
	assert.False(t, f.scheduler.Session().Active)
}

func TestScheduler_ReloginStartsFreshGeneration(t *testing.T) {
	f := newSchedulerFixture(t, &fakeService{})
	f.login(t, time.Hour)
	first := f.scheduler.Session().StartedAt

	time.Sleep(5 * time.Millisecond)
	f.login(t, time.Hour)
	second := f.scheduler.Session()

	assert.True(t, second.Active)
	assert.True(t, second.StartedAt.After(first) || second.StartedAt.Equal(first))
	assert.Zero(t, f.expired.Load())
}

func TestScheduler_RefreshFailureIsAbsorbedUntilNaturalExpiry(t *testing.T) {
	var refreshes atomic.Int32
	svc := &fakeService{
		refreshFn: func(string) (Token, error) {
			refreshes.Add(1)
			return Token{}, errors.Join(ErrTokenRefreshFailed, ErrNetwork)
		},
	}
	f := newSchedulerFixture(t, svc)
	f.login(t, 80*time.Millisecond)

	// At least one refresh attempt happens before expiry; the session
	// stays active until the token's own deadline.
	require.Eventually(t, func() bool { return refreshes.Load() > 0 }, time.Second, time.Millisecond)
	assert.True(t, f.scheduler.Session().Active, "failed refresh alone must not expire the session")

	require.Eventually(t, func() bool {
		return f.expired.Load() == 1
	}, time.Second, 5*time.Millisecond, "natural expiry still fires")
}
