package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	auth "github.com/goliatone/go-auth-lockout"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var quietLogger = auth.WrapZerolog(zerolog.Nop())

// stubVerifier accepts passwords[email]. err, when set, fails every call.
type stubVerifier struct {
	mu        sync.Mutex
	passwords map[string]string
	err       error
	calls     int
}

func newStubVerifier(passwords map[string]string) *stubVerifier {
	return &stubVerifier{passwords: passwords}
}

func (s *stubVerifier) Verify(_ context.Context, email, password string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if pw, ok := s.passwords[email]; ok && pw == password {
		return "ext-" + email, nil
	}
	return "", auth.NewVerifierError(auth.VerifierInvalidCredentials, "stub", "INVALID_PASSWORD", "", nil)
}

func (s *stubVerifier) failWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *stubVerifier) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// brokenAttemptLog fails every read and write.
type brokenAttemptLog struct{}

func (brokenAttemptLog) Append(context.Context, *auth.LoginAttempt) error {
	return errors.New("attempt log offline")
}

func (brokenAttemptLog) ListByEmail(context.Context, string) ([]*auth.LoginAttempt, error) {
	return nil, errors.New("attempt log offline")
}

// eventRecorder is an ActivitySink that keeps every event.
type eventRecorder struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (r *eventRecorder) Record(_ context.Context, event auth.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) Types() []auth.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

func seedAccount(t *testing.T, store auth.AccountStore, email string, status auth.AccountStatus) *auth.Account {
	t.Helper()
	account, err := store.Create(context.Background(), &auth.Account{
		Email:      email,
		ExternalID: "ext-" + email,
		FirstName:  "Test",
		LastName:   "User",
		Status:     status,
	})
	require.NoError(t, err)
	return account
}

// MockAccounts implements auth.AccountStore
type MockAccounts struct {
	mock.Mock
}

func (m *MockAccounts) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	args := m.Called(ctx, email)
	if v := args.Get(0); v != nil {
		return v.(*auth.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) FindByExternalID(ctx context.Context, externalID string) (*auth.Account, error) {
	args := m.Called(ctx, externalID)
	if v := args.Get(0); v != nil {
		return v.(*auth.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) FindByID(ctx context.Context, id uuid.UUID) (*auth.Account, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*auth.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) ListByStatus(ctx context.Context, status auth.AccountStatus) ([]*auth.Account, error) {
	args := m.Called(ctx, status)
	if v := args.Get(0); v != nil {
		return v.([]*auth.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) Create(ctx context.Context, account *auth.Account) (*auth.Account, error) {
	args := m.Called(ctx, account)
	if v := args.Get(0); v != nil {
		return v.(*auth.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) UpdateStatus(ctx context.Context, id uuid.UUID, status auth.AccountStatus, opts ...auth.StatusUpdateOption) (*auth.Account, error) {
	args := m.Called(ctx, id, status, opts)
	if v := args.Get(0); v != nil {
		return v.(*auth.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

func hasCode(err error, code string) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == code
}
