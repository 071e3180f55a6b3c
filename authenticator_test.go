package auth_test

import (
	"context"
	"testing"

	auth "github.com/goliatone/go-auth-lockout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authFixture struct {
	store    *auth.MemoryStore
	guard    *auth.Guard
	auther   *auth.Auther
	sessions *auth.SessionManager
	sink     *eventRecorder
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	store := auth.NewMemoryStore()
	sink := &eventRecorder{}
	guard := newTestGuard(t, store, newStubVerifier(map[string]string{testEmail: testPassword}))
	sessions := auth.NewSessionManager(testConfig{}, auth.WithSessionLogger(quietLogger))
	auther := auth.NewAuthenticator(guard, sessions).
		WithLogger(quietLogger).
		WithActivitySink(sink)

	return &authFixture{store: store, guard: guard, auther: auther, sessions: sessions, sink: sink}
}

func TestAutherLoginOpensSession(t *testing.T) {
	f := newAuthFixture(t)
	account := seedAccount(t, f.store, testEmail, auth.AccountStatusActive)
	ctx := context.Background()

	session, err := f.auther.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)
	assert.Equal(t, account.ID, session.Account.ID)
	assert.False(t, session.Unblocked)
	assert.Same(t, f.sessions, f.auther.Sessions())

	parsed, err := f.sessions.Parse(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, account.ID, parsed.Account.ID)
}

func TestAutherLoginFailurePassesGuardError(t *testing.T) {
	f := newAuthFixture(t)
	seedAccount(t, f.store, testEmail, auth.AccountStatusActive)

	session, err := f.auther.Login(context.Background(), testEmail, "wrong")
	assert.Nil(t, session)
	assert.True(t, auth.IsInvalidCredentials(err))
}

func TestAutherLoginReportsUnblock(t *testing.T) {
	f := newAuthFixture(t)
	seedAccount(t, f.store, testEmail, auth.AccountStatusActive)
	blockAccount(t, f.guard)

	session, err := f.auther.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	assert.True(t, session.Unblocked)
	assert.Equal(t, auth.AccountStatusActive, session.Account.Status)
}

func TestAutherLogout(t *testing.T) {
	f := newAuthFixture(t)
	seedAccount(t, f.store, testEmail, auth.AccountStatusActive)
	ctx := context.Background()

	session, err := f.auther.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)

	require.NoError(t, f.auther.Logout(ctx, session))
	assert.Contains(t, f.sink.Types(), auth.ActivityEventLogout)

	_, err = f.sessions.Parse(ctx, session.Token)
	assert.True(t, auth.IsSessionInvalid(err))

	assert.Error(t, f.auther.Logout(ctx, nil))
}
