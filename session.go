package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DefaultTokenExpiration is used when the config does not set one.
const DefaultTokenExpiration = 24 * time.Hour

// SessionClaims are the JWT claims of a login session.
type SessionClaims struct {
	jwt.RegisteredClaims
	UID        string        `json:"uid,omitempty"`
	Email      string        `json:"email,omitempty"`
	UserRole   AccountRole   `json:"role,omitempty"`
	Status     AccountStatus `json:"status,omitempty"`
	ExternalID string        `json:"ext,omitempty"`
}

// Session is an explicit handle to an authenticated account. It is
// returned by Open and passed back to Close.
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	Account   *Account  `json:"account"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	// Unblocked is set when the login that opened the session lifted a block.
	Unblocked bool      `json:"unblocked,omitempty"`
}

// AccountID parses the session subject.
func (s *Session) AccountID() (uuid.UUID, error) {
	if s == nil || s.Account == nil {
		return uuid.Nil, ErrSessionInvalid
	}
	return s.Account.ID, nil
}

// RevocationList remembers closed sessions until they expire.
type RevocationList interface {
	Revoke(ctx context.Context, id string, until time.Time) error
	IsRevoked(ctx context.Context, id string) (bool, error)
}

// MemoryRevocationList is a process local RevocationList.
type MemoryRevocationList struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

func NewMemoryRevocationList() *MemoryRevocationList {
	return &MemoryRevocationList{
		revoked: map[string]time.Time{},
		now:     time.Now,
	}
}

func (l *MemoryRevocationList) Revoke(_ context.Context, id string, until time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, exp := range l.revoked {
		if now.After(exp) {
			delete(l.revoked, k)
		}
	}
	l.revoked[id] = until
	return nil
}

func (l *MemoryRevocationList) IsRevoked(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.revoked[id]
	return ok, nil
}

// SessionManager opens, parses and closes sessions.
type SessionManager struct {
	signingKey []byte
	issuer     string
	expiration time.Duration
	revoked    RevocationList
	now        func() time.Time
	logger     Logger
}

type SessionOption func(*SessionManager)

func WithSessionClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithRevocationList(list RevocationList) SessionOption {
	return func(m *SessionManager) {
		if list != nil {
			m.revoked = list
		}
	}
}

func WithSessionLogger(logger Logger) SessionOption {
	return func(m *SessionManager) {
		m.logger = normalizeLogger(logger)
	}
}

// NewSessionManager signs tokens with HS256 using the configured key.
func NewSessionManager(cfg Config, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		signingKey: []byte(cfg.GetSigningKey()),
		issuer:     cfg.GetIssuer(),
		expiration: cfg.GetTokenExpiration(),
		revoked:    NewMemoryRevocationList(),
		now:        time.Now,
		logger:     defLogger{},
	}
	if m.expiration <= 0 {
		m.expiration = DefaultTokenExpiration
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Open issues a session for an account that just logged in.
func (m *SessionManager) Open(account *Account) (*Session, error) {
	if account == nil {
		return nil, goerrors.New("account is required", goerrors.CategoryBadInput)
	}
	if len(m.signingKey) == 0 {
		return nil, goerrors.New("session signing key is not configured", goerrors.CategoryInternal)
	}

	issuedAt := m.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(m.expiration)

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.issuer,
			Subject:   account.ID.String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UID:        account.ID.String(),
		Email:      account.Email,
		UserRole:   account.Role,
		Status:     account.Status,
		ExternalID: account.ExternalID,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.signingKey)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign session token")
	}

	return &Session{
		ID:        claims.ID,
		Token:     token,
		Account:   account.Clone(),
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Parse validates a token and rejects closed sessions.
func (m *SessionManager) Parse(ctx context.Context, token string) (*Session, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.signingKey, nil
	},
		jwt.WithTimeFunc(m.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !parsed.Valid {
		return nil, withMeta(ErrSessionInvalid, map[string]any{"reason": errString(err)})
	}

	if m.issuer != "" && claims.Issuer != m.issuer {
		return nil, withMeta(ErrSessionInvalid, map[string]any{"reason": "issuer mismatch"})
	}

	revoked, err := m.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		m.logger.Error("session revocation lookup failed", "session_id", claims.ID, "error", err)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check session revocation")
	}
	if revoked {
		return nil, withMeta(ErrSessionInvalid, map[string]any{"reason": "session closed"})
	}

	id, err := uuid.Parse(claims.UID)
	if err != nil {
		return nil, withMeta(ErrSessionInvalid, map[string]any{"reason": "invalid subject"})
	}

	session := &Session{
		ID:    claims.ID,
		Token: token,
		Account: &Account{
			ID:         id,
			Email:      claims.Email,
			ExternalID: claims.ExternalID,
			Role:       claims.UserRole,
			Status:     claims.Status,
		},
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

// Close revokes the session. Closing twice is a no-op.
func (m *SessionManager) Close(ctx context.Context, session *Session) error {
	if session == nil || session.ID == "" {
		return ErrSessionInvalid
	}
	return m.revoked.Revoke(ctx, session.ID, session.ExpiresAt)
}

func errString(err error) string {
	if err == nil {
		return "invalid token"
	}
	return err.Error()
}
