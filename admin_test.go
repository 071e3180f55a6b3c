package auth_test

import (
	"context"
	"testing"

	auth "github.com/goliatone/go-auth-lockout"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdmin(store *auth.MemoryStore, guard *auth.Guard) *auth.Admin {
	return auth.NewAdmin(store, guard.StateMachine(),
		auth.WithAdminLogger(quietLogger),
		auth.WithAdminLocker(guard.Locker()),
	)
}

func blockAccount(t *testing.T, guard *auth.Guard) {
	t.Helper()
	for i := 0; i < guard.MaxAttempts(); i++ {
		_, _ = guard.AttemptLogin(context.Background(), testEmail, "wrong")
	}
}

func TestAdminUnblock(t *testing.T) {
	store := auth.NewMemoryStore()
	account := seedAccount(t, store, testEmail, auth.AccountStatusActive)
	guard := newTestGuard(t, store, newStubVerifier(map[string]string{testEmail: testPassword}))
	admin := newTestAdmin(store, guard)
	ctx := context.Background()
	actor := auth.ActorRef{ID: "admin-1"}

	blockAccount(t, guard)

	blocked, err := admin.ListBlocked(ctx)
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	assert.Equal(t, account.ID, blocked[0].ID)

	unblocked, err := admin.Unblock(ctx, actor, account.ID, "verified identity")
	require.NoError(t, err)
	assert.Equal(t, auth.AccountStatusActive, unblocked.Status)
	assert.Empty(t, unblocked.BlockReason)

	changes, err := store.ListStateChanges(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "admin", changes[1].ActorType)
	assert.Equal(t, "admin-1", changes[1].ActorID)
	assert.Equal(t, "verified identity", changes[1].Reason)

	// unblocking restarts the failure count
	_, err = guard.AttemptLogin(ctx, testEmail, "wrong")
	assert.True(t, auth.IsInvalidCredentials(err))
	assert.Equal(t, 2, remaining(t, err))

	_, err = admin.Unblock(ctx, actor, account.ID, "")
	assert.True(t, auth.IsInvalidTransition(err))
}

func TestAdminUnblockRequiresBlocked(t *testing.T) {
	store := auth.NewMemoryStore()
	account := seedAccount(t, store, testEmail, auth.AccountStatusActive)
	guard := newTestGuard(t, store, newStubVerifier(nil))
	admin := newTestAdmin(store, guard)

	_, err := admin.Unblock(context.Background(), auth.ActorRef{}, account.ID, "")
	assert.True(t, auth.IsInvalidTransition(err))

	_, err = admin.Unblock(context.Background(), auth.ActorRef{}, uuid.New(), "")
	assert.True(t, auth.IsAccountNotFound(err))
}

func TestAdminDeactivateAndReactivate(t *testing.T) {
	store := auth.NewMemoryStore()
	account := seedAccount(t, store, testEmail, auth.AccountStatusActive)
	verifier := newStubVerifier(map[string]string{testEmail: testPassword})
	guard := newTestGuard(t, store, verifier)
	admin := newTestAdmin(store, guard)
	ctx := context.Background()

	inactive, err := admin.Deactivate(ctx, auth.ActorRef{ID: "admin-1"}, account.ID, "left the company")
	require.NoError(t, err)
	assert.Equal(t, auth.AccountStatusInactive, inactive.Status)

	_, err = guard.AttemptLogin(ctx, testEmail, testPassword)
	assert.True(t, auth.IsAccountInactive(err))

	_, err = admin.Deactivate(ctx, auth.ActorRef{ID: "admin-1"}, account.ID, "")
	assert.True(t, auth.IsInvalidTransition(err))

	active, err := admin.Reactivate(ctx, auth.ActorRef{ID: "admin-1"}, account.ID, "returned")
	require.NoError(t, err)
	assert.Equal(t, auth.AccountStatusActive, active.Status)

	_, err = guard.AttemptLogin(ctx, testEmail, testPassword)
	assert.NoError(t, err)

	_, err = admin.Reactivate(ctx, auth.ActorRef{}, account.ID, "")
	assert.True(t, auth.IsInvalidTransition(err))
}

func TestAdminDeactivateBlocked(t *testing.T) {
	store := auth.NewMemoryStore()
	account := seedAccount(t, store, testEmail, auth.AccountStatusActive)
	guard := newTestGuard(t, store, newStubVerifier(nil))
	admin := auth.NewAdmin(store, nil, auth.WithAdminLogger(quietLogger))

	blockAccount(t, guard)

	inactive, err := admin.Deactivate(context.Background(), auth.ActorRef{}, account.ID, "")
	require.NoError(t, err)
	assert.Equal(t, auth.AccountStatusInactive, inactive.Status)
	assert.Empty(t, inactive.BlockReason)
}
