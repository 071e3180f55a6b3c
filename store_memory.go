package auth

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of every store used by the
// package, suitable for tests and single-instance deployments.
type MemoryStore struct {
	mu          sync.RWMutex
	accounts    map[uuid.UUID]*Account
	byEmail     map[string]uuid.UUID
	attempts    []*LoginAttempt
	seq         int64
	changes     map[uuid.UUID][]*AccountStateChange
	credentials map[string]*Credential
	now         func() time.Time
}

var (
	_ AccountStore    = (*MemoryStore)(nil)
	_ AttemptLog      = (*MemoryStore)(nil)
	_ StateChangeLog  = (*MemoryStore)(nil)
	_ CredentialStore = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:    map[uuid.UUID]*Account{},
		byEmail:     map[string]uuid.UUID{},
		changes:     map[uuid.UUID][]*AccountStateChange{},
		credentials: map[string]*Credential{},
		now:         time.Now,
	}
}

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, notFound(map[string]any{"email": email})
	}
	return s.accounts[id].Clone(), nil
}

func (s *MemoryStore) FindByExternalID(_ context.Context, externalID string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, acc := range s.accounts {
		if acc.ExternalID == externalID {
			return acc.Clone(), nil
		}
	}
	return nil, notFound(map[string]any{"external_id": externalID})
}

func (s *MemoryStore) FindByID(_ context.Context, id uuid.UUID) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, notFound(map[string]any{"id": id.String()})
	}
	return acc.Clone(), nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status AccountStatus) ([]*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*Account{}
	for _, acc := range s.accounts {
		if acc.Status == status {
			out = append(out, acc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, account *Account) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prepareAccountDefaults(account)

	if _, taken := s.byEmail[account.Email]; taken {
		return nil, withMeta(ErrEmailAlreadyRegistered, map[string]any{"email": account.Email})
	}
	for _, acc := range s.accounts {
		if account.ExternalID != "" && acc.ExternalID == account.ExternalID {
			return nil, withMeta(ErrEmailAlreadyRegistered, map[string]any{"external_id": account.ExternalID})
		}
	}

	now := s.now().UTC()
	account.CreatedAt = &now
	account.UpdatedAt = &now

	stored := account.Clone()
	s.accounts[stored.ID] = stored
	s.byEmail[stored.Email] = stored.ID
	return stored.Clone(), nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, notFound(map[string]any{"id": id.String()})
	}

	record := &Account{ID: id, Status: status}
	for _, opt := range opts {
		if opt != nil {
			opt(record)
		}
	}

	acc.Status = status
	acc.BlockReason = ""
	if status == AccountStatusBlocked {
		acc.BlockReason = record.BlockReason
	}
	if record.StatusChangedAt != nil {
		t := *record.StatusChangedAt
		acc.StatusChangedAt = &t
	}
	now := s.now().UTC()
	acc.UpdatedAt = &now

	return acc.Clone(), nil
}

func (s *MemoryStore) Append(_ context.Context, attempt *LoginAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	attempt.ID = s.seq
	stored := *attempt
	s.attempts = append(s.attempts, &stored)
	return nil
}

func (s *MemoryStore) ListByEmail(_ context.Context, email string) ([]*LoginAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*LoginAttempt{}
	for _, a := range s.attempts {
		if a.Email == email {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}

// Attempts returns a copy of the whole log in insertion order.
func (s *MemoryStore) Attempts() []*LoginAttempt {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*LoginAttempt, 0, len(s.attempts))
	for _, a := range s.attempts {
		c := *a
		out = append(out, &c)
	}
	return out
}

func (s *MemoryStore) AppendStateChange(_ context.Context, change *AccountStateChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if change.ID == uuid.Nil {
		change.ID = uuid.New()
	}
	c := *change
	s.changes[change.AccountID] = append(s.changes[change.AccountID], &c)
	return nil
}

func (s *MemoryStore) ListStateChanges(_ context.Context, accountID uuid.UUID) ([]*AccountStateChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*AccountStateChange{}
	for _, c := range s.changes[accountID] {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) FindCredential(_ context.Context, email string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.credentials[email]
	if !ok {
		return nil, notFound(map[string]any{"email": email})
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) SaveCredential(_ context.Context, credential *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *credential
	s.credentials[credential.Email] = &cp
	return nil
}

func prepareAccountDefaults(account *Account) {
	if account == nil {
		return
	}

	if account.Role == "" {
		account.Role = RoleUser
	}

	account.EnsureStatus()
	if account.Status != AccountStatusBlocked {
		account.BlockReason = ""
	}

	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}

	if account.ExternalID == "" {
		account.ExternalID = account.ID.String()
	}
}
