package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-auth-lockout"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "jane@example.com"
	testPassword = "correct-horse"
)

type testConfig struct {
	maxAttempts  int
	countOutages bool
}

func (c testConfig) GetMaxAttempts() int               { return c.maxAttempts }
func (c testConfig) GetCountVerifierOutages() bool     { return c.countOutages }
func (c testConfig) GetSigningKey() string             { return "test-signing-key" }
func (c testConfig) GetIssuer() string                 { return "lockout-test" }
func (c testConfig) GetTokenExpiration() time.Duration { return time.Hour }

type failingLocker struct{}

func (failingLocker) Lock(context.Context, string) (func(), error) {
	return nil, errors.New("lock backend down")
}

func newTestGuard(t *testing.T, store *auth.MemoryStore, verifier auth.CredentialVerifier, opts ...auth.GuardOption) *auth.Guard {
	t.Helper()
	base := []auth.GuardOption{
		auth.WithGuardLogger(quietLogger),
		auth.WithGuardHistory(store),
	}
	return auth.NewGuard(store, store, verifier, append(base, opts...)...)
}

func remaining(t *testing.T, err error) int {
	t.Helper()
	n, ok := auth.RemainingAttempts(err)
	require.True(t, ok, "error should carry remaining attempts: %v", err)
	return n
}

func TestAttemptLoginSuccess(t *testing.T) {
	store := auth.NewMemoryStore()
	account := seedAccount(t, store, testEmail, auth.AccountStatusActive)
	guard := newTestGuard(t, store, newStubVerifier(map[string]string{testEmail: testPassword}))

	result, err := guard.AttemptLogin(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	assert.Equal(t, account.ID, result.Account.ID)
	assert.Equal(t, "ext-"+testEmail, result.ExternalID)
	assert.False(t, result.Unblocked)

	attempts := store.Attempts()
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].Success)
	assert.Equal(t, auth.AttemptReasonSuccess, attempts[0].Reason)
	require.NotNil(t, attempts[0].AccountID)
	assert.Equal(t, account.ID, *attempts[0].AccountID)
}

func TestAttemptLoginUnknownEmailReportsRemaining(t *testing.T) {
	store := auth.NewMemoryStore()
	verifier := newStubVerifier(nil)
	guard := newTestGuard(t, store, verifier)
	ctx := context.Background()

	for _, want := range []int{2, 1, 0, 0} {
		_, err := guard.AttemptLogin(ctx, "ghost@example.com", "whatever")
		require.Error(t, err)
		assert.True(t, auth.IsAccountNotFound(err))
		assert.Equal(t, want, remaining(t, err))
	}

	assert.Zero(t, verifier.Calls(), "verifier is not consulted for unknown accounts")
	for _, a := range store.Attempts() {
		assert.Equal(t, auth.AttemptReasonAccountNotFound, a.Reason)
		assert.Nil(t, a.AccountID)
	}
}

func TestAttemptLoginInactiveAccount(t *testing.T) {
	store := auth.NewMemoryStore()
	seedAccount(t, store, testEmail, auth.AccountStatusInactive)
	verifier := newStubVerifier(map[string]string{testEmail: testPassword})
	guard := newTestGuard(t, store, verifier)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := guard.AttemptLogin(ctx, testEmail, testPassword)
		require.Error(t, err)
		assert.True(t, auth.IsAccountInactive(err))
	}

	assert.Zero(t, verifier.Calls())
	attempts, err := store.ListByEmail(ctx, testEmail)
	require.NoError(t, err)
	require.Len(t, attempts, 5)
	assert.Equal(t, auth.AttemptReasonAccountInactive, attempts[0].Reason)
	assert.Zero(t, auth.ConsecutiveFailures(attempts))

	account, err := store.FindByEmail(ctx, testEmail)
	require.NoError(t, err)
	assert.Equal(t, auth.AccountStatusInactive, account.Status)
}

func TestAttemptLoginBlocksAfterThreeFailures(t *testing.T) {
	store := auth.NewMemoryStore()
	account := seedAccount(t, store, testEmail, auth.AccountStatusActive)
	sink := &eventRecorder{}
	guard := newTestGuard(t, store, newStubVerifier(map[string]string{testEmail: testPassword}),
		auth.WithGuardActivitySink(sink),
	)
	ctx := context.Background()

	_, err := guard.AttemptLogin(ctx, testEmail, "wrong")
	assert.True(t, auth.IsInvalidCredentials(err))
	assert.Equal(t, 2, remaining(t, err))

	_, err = guard.AttemptLogin(ctx, testEmail, "wrong")
	assert.True(t, auth.IsInvalidCredentials(err))
	assert.Equal(t, 1, remaining(t, err))

	_, err = guard.AttemptLogin(ctx, testEmail, "wrong")
	assert.True(t, auth.IsAccountBlocked(err))
	assert.Equal(t, 0, remaining(t, err))

	blocked, err := store.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.AccountStatusBlocked, blocked.Status)
	assert.Equal(t, auth.BlockReasonConsecutiveFailures, blocked.BlockReason)
	require.NotNil(t, blocked.StatusChangedAt)

	changes, err := store.ListStateChanges(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, auth.AccountStatusActive, changes[0].From)
	assert.Equal(t, auth.AccountStatusBlocked, changes[0].To)
	assert.Equal(t, auth.SystemActor.Type, changes[0].ActorType)

	types := sink.Types()
	assert.Contains(t, types, auth.ActivityEventLoginFailure)
	assert.Contains(t, types, auth.ActivityEventAccountStatusChanged)
	assert.Contains(t, types, auth.ActivityEventAccountBlocked)
}

func TestAttemptLoginBlockedAccountStaysBlocked(t *testing.T) {
	store := auth.NewMemoryStore()
	account := seedAccount(t, store, testEmail, auth.AccountStatusActive)
	guard := newTestGuard(t, store, newStubVerifier(map[string]string{testEmail: testPassword}))
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, _ = guard.AttemptLogin(ctx, testEmail, "wrong")
	}

	_, err := guard.AttemptLogin(ctx, testEmail, "wrong")
	assert.True(t, auth.IsAccountBlocked(err))

	changes, err := store.ListStateChanges(ctx, account.ID)
	require.NoError(t, err)
	assert.Len(t, changes, 1, "an already blocked account is not blocked again")
}

func TestAttemptLoginCorrectPasswordUnblocks(t *testing.T) {
	store := auth.NewMemoryStore()
	account := seedAccount(t, store, testEmail, auth.AccountStatusActive)
	sink := &eventRecorder{}
	guard := newTestGuard(t, store, newStubVerifier(map[string]string{testEmail: testPassword}),
		auth.WithGuardActivitySink(sink),
	)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = guard.AttemptLogin(ctx, testEmail, "wrong")
	}

	result, err := guard.AttemptLogin(ctx, testEmail, testPassword)
	require.NoError(t, err)
	assert.True(t, result.Unblocked)
	assert.Equal(t, auth.AccountStatusActive, result.Account.Status)

	stored, err := store.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.AccountStatusActive, stored.Status)
	assert.Empty(t, stored.BlockReason)

	changes, err := store.ListStateChanges(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, auth.AccountStatusBlocked, changes[1].From)
	assert.Equal(t, auth.AccountStatusActive, changes[1].To)
	assert.True(t, changes[1].OccurredAt.After(changes[0].OccurredAt))
	assert.Contains(t, sink.Types(), auth.ActivityEventAccountUnblocked)

	// the success resets the counter
	_, err = guard.AttemptLogin(ctx, testEmail, "wrong")
	assert.True(t, auth.IsInvalidCredentials(err))
	assert.Equal(t, 2, remaining(t, err))
}

func TestAttemptLoginOutagesDoNotCount(t *testing.T) {
	store := auth.NewMemoryStore()
	seedAccount(t, store, testEmail, auth.AccountStatusActive)
	verifier := newStubVerifier(map[string]string{testEmail: testPassword})
	guard := newTestGuard(t, store, verifier)
	ctx := context.Background()

	kinds := []auth.VerifierErrorKind{
		auth.VerifierNetworkUnavailable,
		auth.VerifierMisconfigured,
		auth.VerifierNetworkUnavailable,
		auth.VerifierNetworkUnavailable,
	}
	for _, kind := range kinds {
		verifier.failWith(auth.NewVerifierError(kind, "stub", "DOWN", "", nil))
		_, err := guard.AttemptLogin(ctx, testEmail, testPassword)
		require.Error(t, err)
		assert.True(t, auth.IsVerifierUnavailable(err))
	}

	attempts, err := store.ListByEmail(ctx, testEmail)
	require.NoError(t, err)
	for _, a := range attempts {
		assert.Equal(t, auth.AttemptReasonVerifierOutage, a.Reason)
	}

	verifier.failWith(nil)
	_, err = guard.AttemptLogin(ctx, testEmail, "wrong")
	assert.True(t, auth.IsInvalidCredentials(err))
	assert.Equal(t, 2, remaining(t, err))
}

func TestAttemptLoginCountsOutagesWhenConfigured(t *testing.T) {
	store := auth.NewMemoryStore()
	seedAccount(t, store, testEmail, auth.AccountStatusActive)
	verifier := newStubVerifier(nil)
	verifier.failWith(auth.NewVerifierError(auth.VerifierNetworkUnavailable, "stub", "DOWN", "", nil))
	guard := newTestGuard(t, store, verifier, auth.WithCountVerifierOutages(true))
	ctx := context.Background()

	_, err := guard.AttemptLogin(ctx, testEmail, testPassword)
	assert.True(t, auth.IsInvalidCredentials(err))
	_, err = guard.AttemptLogin(ctx, testEmail, testPassword)
	assert.True(t, auth.IsInvalidCredentials(err))
	_, err = guard.AttemptLogin(ctx, testEmail, testPassword)
	assert.True(t, auth.IsAccountBlocked(err))

	attempts := store.Attempts()
	assert.Equal(t, auth.AttemptReasonVerifierError, attempts[0].Reason)
}

func TestAttemptLoginDisabledUpstream(t *testing.T) {
	store := auth.NewMemoryStore()
	seedAccount(t, store, testEmail, auth.AccountStatusActive)
	verifier := newStubVerifier(nil)
	verifier.failWith(auth.NewVerifierError(auth.VerifierAccountDisabled, "stub", "USER_DISABLED", "", nil))
	guard := newTestGuard(t, store, verifier)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := guard.AttemptLogin(ctx, testEmail, testPassword)
		require.Error(t, err)
		assert.True(t, auth.IsAccountInactive(err))

		var rich *goerrors.Error
		require.True(t, goerrors.As(err, &rich))
		assert.Equal(t, true, rich.Metadata["upstream"])
	}

	account, err := store.FindByEmail(ctx, testEmail)
	require.NoError(t, err)
	assert.Equal(t, auth.AccountStatusActive, account.Status, "upstream disabled accounts are not blocked locally")
	assert.Equal(t, auth.AttemptReasonDisabledUpstream, store.Attempts()[0].Reason)
}

func TestAttemptLoginUnknownVerifierErrorCounts(t *testing.T) {
	store := auth.NewMemoryStore()
	seedAccount(t, store, testEmail, auth.AccountStatusActive)
	verifier := newStubVerifier(nil)
	verifier.failWith(errors.New("unexpected provider response"))
	guard := newTestGuard(t, store, verifier)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := guard.AttemptLogin(ctx, testEmail, testPassword)
		assert.True(t, auth.IsInvalidCredentials(err))
	}
	_, err := guard.AttemptLogin(ctx, testEmail, testPassword)
	assert.True(t, auth.IsAccountBlocked(err))
	assert.Equal(t, auth.AttemptReasonVerifierError, store.Attempts()[0].Reason)
}

func TestAttemptLoginConfiguredLimit(t *testing.T) {
	store := auth.NewMemoryStore()
	account := seedAccount(t, store, testEmail, auth.AccountStatusActive)
	guard := newTestGuard(t, store, newStubVerifier(nil), auth.WithGuardConfig(testConfig{maxAttempts: 5}))
	ctx := context.Background()

	assert.Equal(t, 5, guard.MaxAttempts())
	for i := 0; i < 4; i++ {
		_, err := guard.AttemptLogin(ctx, testEmail, "wrong")
		assert.True(t, auth.IsInvalidCredentials(err))
	}
	_, err := guard.AttemptLogin(ctx, testEmail, "wrong")
	assert.True(t, auth.IsAccountBlocked(err))

	stored, err := store.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "blocked after 5 consecutive failed login attempts", stored.BlockReason)
}

func TestAttemptLoginSurvivesAttemptLogFailures(t *testing.T) {
	store := auth.NewMemoryStore()
	seedAccount(t, store, testEmail, auth.AccountStatusActive)
	guard := auth.NewGuard(store, brokenAttemptLog{}, newStubVerifier(map[string]string{testEmail: testPassword}),
		auth.WithGuardLogger(quietLogger),
	)
	ctx := context.Background()

	_, err := guard.AttemptLogin(ctx, testEmail, "wrong")
	assert.True(t, auth.IsInvalidCredentials(err))
	assert.Equal(t, 3, remaining(t, err))

	_, err = guard.AttemptLogin(ctx, testEmail, testPassword)
	assert.NoError(t, err)
}

func TestAttemptLoginRecordsOneAttemptPerCall(t *testing.T) {
	store := auth.NewMemoryStore()
	seedAccount(t, store, testEmail, auth.AccountStatusActive)
	seedAccount(t, store, "off@example.com", auth.AccountStatusInactive)
	verifier := newStubVerifier(map[string]string{testEmail: testPassword})
	guard := newTestGuard(t, store, verifier)
	ctx := context.Background()

	calls := []struct {
		email    string
		password string
	}{
		{testEmail, "wrong"},
		{"ghost@example.com", "x"},
		{"off@example.com", "x"},
		{testEmail, testPassword},
		{testEmail, "wrong"},
		{testEmail, "wrong"},
		{testEmail, "wrong"},
		{testEmail, "wrong"},
	}
	for i, c := range calls {
		_, _ = guard.AttemptLogin(ctx, c.email, c.password)
		assert.Len(t, store.Attempts(), i+1)
	}
}

func TestAttemptLoginTimestampsStrictlyIncrease(t *testing.T) {
	store := auth.NewMemoryStore()
	seedAccount(t, store, testEmail, auth.AccountStatusActive)
	fixed := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	guard := newTestGuard(t, store, newStubVerifier(nil), auth.WithGuardClock(func() time.Time { return fixed }))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = guard.AttemptLogin(ctx, testEmail, "wrong")
	}

	attempts := store.Attempts()
	for i := 1; i < len(attempts); i++ {
		assert.True(t, attempts[i].AttemptedAt.After(attempts[i-1].AttemptedAt))
	}
}

func TestAttemptLoginSerializesPerEmail(t *testing.T) {
	store := auth.NewMemoryStore()
	account := seedAccount(t, store, testEmail, auth.AccountStatusActive)
	guard := newTestGuard(t, store, newStubVerifier(map[string]string{testEmail: testPassword}))
	ctx := context.Background()

	const n = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		blocked int
		invalid int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := guard.AttemptLogin(ctx, testEmail, "wrong")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case auth.IsAccountBlocked(err):
				blocked++
			case auth.IsInvalidCredentials(err):
				invalid++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, invalid)
	assert.Equal(t, n-2, blocked)
	assert.Len(t, store.Attempts(), n)

	changes, err := store.ListStateChanges(ctx, account.ID)
	require.NoError(t, err)
	assert.Len(t, changes, 1)
}

func TestAttemptLoginLockFailure(t *testing.T) {
	store := auth.NewMemoryStore()
	seedAccount(t, store, testEmail, auth.AccountStatusActive)
	verifier := newStubVerifier(map[string]string{testEmail: testPassword})
	guard := newTestGuard(t, store, verifier, auth.WithGuardLocker(failingLocker{}))

	_, err := guard.AttemptLogin(context.Background(), testEmail, testPassword)
	require.Error(t, err)
	assert.Zero(t, verifier.Calls())

	attempts := store.Attempts()
	require.Len(t, attempts, 1)
	assert.Equal(t, auth.AttemptReasonInternalError, attempts[0].Reason)
}

func TestAttemptLoginLookupFailure(t *testing.T) {
	accounts := &MockAccounts{}
	log := auth.NewMemoryStore()
	accounts.On("FindByEmail", mock.Anything, testEmail).Return(nil, errors.New("db down")).Once()

	guard := auth.NewGuard(accounts, log, newStubVerifier(nil), auth.WithGuardLogger(quietLogger))

	_, err := guard.AttemptLogin(context.Background(), testEmail, testPassword)
	require.Error(t, err)
	assert.False(t, auth.IsAccountNotFound(err))

	attempts := log.Attempts()
	require.Len(t, attempts, 1)
	assert.Equal(t, auth.AttemptReasonInternalError, attempts[0].Reason)
	accounts.AssertExpectations(t)
}

func TestAttemptLoginRepairsMissingStatus(t *testing.T) {
	accounts := &MockAccounts{}
	id := uuid.New()
	stored := &auth.Account{ID: id, Email: testEmail, ExternalID: "ext-" + testEmail}

	accounts.On("FindByEmail", mock.Anything, testEmail).Return(stored, nil).Once()
	accounts.On("UpdateStatus", mock.Anything, id, auth.AccountStatusActive, mock.Anything).
		Return(&auth.Account{ID: id, Email: testEmail, Status: auth.AccountStatusActive}, nil).Once()

	guard := auth.NewGuard(accounts, auth.NewMemoryStore(), newStubVerifier(map[string]string{testEmail: testPassword}),
		auth.WithGuardLogger(quietLogger),
	)

	result, err := guard.AttemptLogin(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	assert.Equal(t, auth.AccountStatusActive, result.Account.Status)
	assert.False(t, result.Unblocked)
	accounts.AssertExpectations(t)
}

func TestAttemptLoginBlockedAccountWithoutLog(t *testing.T) {
	store := auth.NewMemoryStore()
	seedAccount(t, store, testEmail, auth.AccountStatusBlocked)
	guard := auth.NewGuard(store, brokenAttemptLog{}, newStubVerifier(map[string]string{testEmail: testPassword}),
		auth.WithGuardLogger(quietLogger),
	)
	ctx := context.Background()

	_, err := guard.AttemptLogin(ctx, testEmail, "wrong")
	assert.True(t, auth.IsAccountBlocked(err))

	result, err := guard.AttemptLogin(ctx, testEmail, testPassword)
	require.NoError(t, err)
	assert.True(t, result.Unblocked)
}
