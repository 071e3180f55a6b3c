package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Logger is the structured logger used across the package. Args are
// key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// CredentialVerifier checks a password against an external identity
// provider. Failures must be returned as *VerifierError.
type CredentialVerifier interface {
	Verify(ctx context.Context, email, password string) (string, error)
}

// CredentialVerifierFunc adapts a function to the CredentialVerifier interface.
type CredentialVerifierFunc func(ctx context.Context, email, password string) (string, error)

// Verify implements CredentialVerifier.
func (f CredentialVerifierFunc) Verify(ctx context.Context, email, password string) (string, error) {
	return f(ctx, email, password)
}

// AccountStore is the durable store of account records.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByExternalID(ctx context.Context, externalID string) (*Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	ListByStatus(ctx context.Context, status AccountStatus) ([]*Account, error)
	Create(ctx context.Context, account *Account) (*Account, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Account, error)
}

// AttemptLog is the append-only login attempt log.
type AttemptLog interface {
	Append(ctx context.Context, attempt *LoginAttempt) error
	// ListByEmail returns attempts in chronological order, oldest first.
	ListByEmail(ctx context.Context, email string) ([]*LoginAttempt, error)
}

// StateChangeLog records account state transitions.
type StateChangeLog interface {
	AppendStateChange(ctx context.Context, change *AccountStateChange) error
	ListStateChanges(ctx context.Context, accountID uuid.UUID) ([]*AccountStateChange, error)
}

// CredentialStore holds password records for the local identity provider.
type CredentialStore interface {
	FindCredential(ctx context.Context, email string) (*Credential, error)
	SaveCredential(ctx context.Context, credential *Credential) error
}

// Config holds the lockout and session options.
type Config interface {
	GetMaxAttempts() int
	GetCountVerifierOutages() bool
	GetSigningKey() string
	GetIssuer() string
	GetTokenExpiration() time.Duration
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] AUTH " + line(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] AUTH " + line(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] AUTH " + line(msg, args...))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] AUTH " + line(msg, args...))
}

func line(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	b.WriteString("\n")
	return b.String()
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
