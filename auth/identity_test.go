package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thechompapp/chompauth/store/memory"
)

func newTestEngine(t *testing.T, svc Service) *Engine {
	t.Helper()
	return newTestEngineWithStore(t, svc, memory.New())
}

func newTestEngineWithStore(t *testing.T, svc Service, st *memory.Store) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.CheckInterval = 10 * time.Millisecond
	cfg.RefreshThreshold = 50 * time.Millisecond
	cfg.RequestTimeout = time.Second
	e := New(svc, st, WithConfig(cfg), WithLogger(discardLogger()))
	t.Cleanup(e.Close)
	return e
}

func validCreds() Credentials {
	return Credentials{Email: "alice@example.com", Password: "secret123"}
}

func TestLogin_SuccessReportsAuthenticatedStatus(t *testing.T) {
	svc := &fakeService{}
	e := newTestEngine(t, svc)

	status, err := e.Login(context.Background(), validCreds())
	require.NoError(t, err)
	assert.True(t, status.IsAuthenticated)
	assert.Equal(t, "u-1", status.Identity.ID)
	assert.False(t, status.Offline)

	got := e.AuthStatus()
	assert.True(t, got.IsAuthenticated)
	assert.Equal(t, status.Identity, got.Identity)
	assert.True(t, e.Session().Active)
}

func TestLogin_MalformedInputNeverReachesNetwork(t *testing.T) {
	svc := &fakeService{}
	e := newTestEngine(t, svc)

	for _, creds := range []Credentials{
		{Email: "", Password: "secret"},
		{Email: "alice@example.com", Password: ""},
		{Email: "no-at-sign", Password: "secret"},
	} {
		_, err := e.Login(context.Background(), creds)
		require.ErrorIs(t, err, ErrValidation)
	}

	loginCalls, _, _ := svc.counts()
	assert.Zero(t, loginCalls, "validation failures must not hit the network")
}

func TestLogin_RemoteRejectionIsNotRetried(t *testing.T) {
	svc := &fakeService{loginFn: func(email, password string) (LoginResult, error) {
		return LoginResult{}, ErrInvalidCredentials
	}}
	e := newTestEngine(t, svc)

	_, err := e.Login(context.Background(), validCreds())
	require.ErrorIs(t, err, ErrInvalidCredentials)

	loginCalls, _, _ := svc.counts()
	assert.Equal(t, 1, loginCalls)
	assert.False(t, e.AuthStatus().IsAuthenticated)
}

func TestLogin_NetworkErrorWithoutSnapshotPropagates(t *testing.T) {
	svc := &fakeService{loginFn: func(string, string) (LoginResult, error) {
		return LoginResult{}, ErrNetwork
	}}
	e := newTestEngine(t, svc)

	_, err := e.Login(context.Background(), validCreds())
	require.ErrorIs(t, err, ErrNetwork)
}

func TestLogin_NetworkErrorFallsBackToFreshSnapshot(t *testing.T) {
	svc := &fakeService{}
	e := newTestEngine(t, svc)

	// A successful login captures the snapshot...
	_, err := e.Login(context.Background(), validCreds())
	require.NoError(t, err)

	// ...then the service becomes unreachable.
	svc.mu.Lock()
	svc.loginFn = func(string, string) (LoginResult, error) { return LoginResult{}, ErrNetwork }
	svc.mu.Unlock()

	status, err := e.Login(context.Background(), validCreds())
	require.NoError(t, err)
	assert.True(t, status.IsAuthenticated)
	assert.True(t, status.Offline)
	assert.Equal(t, "u-1", status.Identity.ID)
}

func TestLogin_StaleSnapshotForcesReauthentication(t *testing.T) {
	svc := &fakeService{}
	clock := time.Now()
	st := memory.New()

	cfg := DefaultConfig()
	cfg.RequestTimeout = time.Second
	e := New(svc, st,
		WithConfig(cfg),
		WithLogger(discardLogger()),
		WithNowFunc(func() time.Time { return clock }),
	)
	t.Cleanup(e.Close)

	_, err := e.Login(context.Background(), validCreds())
	require.NoError(t, err)

	svc.mu.Lock()
	svc.loginFn = func(string, string) (LoginResult, error) { return LoginResult{}, ErrNetwork }
	svc.mu.Unlock()

	// One hour later the snapshot still authenticates.
	clock = clock.Add(time.Hour)
	status, err := e.Login(context.Background(), validCreds())
	require.NoError(t, err)
	assert.True(t, status.Offline)

	// Thirty hours later (TTL 24h) it does not.
	clock = clock.Add(29 * time.Hour)
	_, err = e.Login(context.Background(), validCreds())
	require.ErrorIs(t, err, ErrNetwork)
}

func TestLogout_IsIdempotent(t *testing.T) {
	svc := &fakeService{}
	st := memory.New()
	e := newTestEngineWithStore(t, svc, st)

	_, err := e.Login(context.Background(), validCreds())
	require.NoError(t, err)

	require.NoError(t, e.Logout(context.Background()))
	require.NoError(t, e.Logout(context.Background()))

	status := e.AuthStatus()
	assert.False(t, status.IsAuthenticated)
	assert.False(t, e.Session().Active)
	_, ok, err := NewTokenStore(st).Get()
	require.NoError(t, err)
	assert.False(t, ok, "tokens must be purged from durable storage")
}

func TestLogout_RemoteFailureIsIgnored(t *testing.T) {
	svc := &fakeService{logoutErr: ErrNetwork}
	e := newTestEngine(t, svc)

	_, err := e.Login(context.Background(), validCreds())
	require.NoError(t, err)

	require.NoError(t, e.Logout(context.Background()), "logout always succeeds locally")
	assert.False(t, e.AuthStatus().IsAuthenticated)
}

func TestLogout_RemovesOfflineSnapshot(t *testing.T) {
	svc := &fakeService{}
	e := newTestEngine(t, svc)

	_, err := e.Login(context.Background(), validCreds())
	require.NoError(t, err)
	require.NoError(t, e.Logout(context.Background()))

	// With the snapshot revoked, an unreachable network cannot
	// re-authenticate.
	svc.mu.Lock()
	svc.loginFn = func(string, string) (LoginResult, error) { return LoginResult{}, ErrNetwork }
	svc.mu.Unlock()

	_, err = e.Login(context.Background(), validCreds())
	require.ErrorIs(t, err, ErrNetwork)
}

func TestRegister_BehavesAsAutomaticLogin(t *testing.T) {
	svc := &fakeService{}
	e := newTestEngine(t, svc)

	status, err := e.Register(context.Background(), Registration{
		Email:       "Bob@Example.com",
		Password:    "longenough",
		DisplayName: "Bob",
	})
	require.NoError(t, err)
	assert.True(t, status.IsAuthenticated)
	assert.Equal(t, "bob@example.com", status.Identity.Email)

	assert.True(t, e.AuthStatus().IsAuthenticated)
	assert.True(t, e.Session().Active, "registration starts a session like login")
}

func TestRegister_ValidatesBeforeNetwork(t *testing.T) {
	svc := &fakeService{}
	e := newTestEngine(t, svc)

	_, err := e.Register(context.Background(), Registration{Email: "bob@example.com", Password: "short", DisplayName: "Bob"})
	require.ErrorIs(t, err, ErrValidation)

	svc.mu.Lock()
	calls := svc.registerCalls
	svc.mu.Unlock()
	assert.Zero(t, calls)
}

func TestIdentity_PersistsAcrossEngineRestart(t *testing.T) {
	svc := &fakeService{}
	st := memory.New()

	e1 := newTestEngineWithStore(t, svc, st)
	_, err := e1.Login(context.Background(), validCreds())
	require.NoError(t, err)
	e1.Close()

	// A new engine over the same store resumes the session.
	e2 := newTestEngineWithStore(t, svc, st)
	status := e2.Resume()
	assert.True(t, status.IsAuthenticated)
	assert.Equal(t, "u-1", status.Identity.ID)
	assert.True(t, e2.Session().Active)
}
