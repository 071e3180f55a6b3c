package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ProviderLocal names the built-in identity provider in VerifierError.Provider.
const ProviderLocal = "local"

// Registrar creates credentials in an identity provider and returns the
// provider uid of the new user.
type Registrar interface {
	Register(ctx context.Context, email, password string) (string, error)
}

// RegistrarFunc adapts a function to the Registrar interface.
type RegistrarFunc func(ctx context.Context, email, password string) (string, error)

func (f RegistrarFunc) Register(ctx context.Context, email, password string) (string, error) {
	return f(ctx, email, password)
}

// LocalVerifier is a CredentialVerifier backed by bcrypt hashes in a
// CredentialStore.
type LocalVerifier struct {
	credentials CredentialStore
	cost        int
	logger      Logger
}

var (
	_ CredentialVerifier = (*LocalVerifier)(nil)
	_ Registrar          = (*LocalVerifier)(nil)
)

type LocalVerifierOption func(*LocalVerifier)

// WithHashCost overrides the bcrypt cost used by Register.
func WithHashCost(cost int) LocalVerifierOption {
	return func(v *LocalVerifier) {
		v.cost = cost
	}
}

func WithLocalVerifierLogger(logger Logger) LocalVerifierOption {
	return func(v *LocalVerifier) {
		v.logger = normalizeLogger(logger)
	}
}

func NewLocalVerifier(credentials CredentialStore, opts ...LocalVerifierOption) *LocalVerifier {
	v := &LocalVerifier{
		credentials: credentials,
		cost:        defaultHashCost,
		logger:      defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

func (v *LocalVerifier) Verify(ctx context.Context, email, password string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", NewVerifierError(VerifierNetworkUnavailable, ProviderLocal, "CONTEXT_DONE", "", err)
	}

	credential, err := v.credentials.FindCredential(ctx, email)
	if err != nil {
		if IsNotFound(err) {
			return "", NewVerifierError(VerifierInvalidCredentials, ProviderLocal, "EMAIL_NOT_FOUND", "", nil)
		}
		v.logger.Error("credential lookup failed", "email", email, "error", err)
		return "", NewVerifierError(VerifierNetworkUnavailable, ProviderLocal, "STORE_UNAVAILABLE", "", err)
	}

	if credential.Disabled {
		return "", NewVerifierError(VerifierAccountDisabled, ProviderLocal, "USER_DISABLED", "", nil)
	}

	if err := ComparePasswordAndHash(password, credential.PasswordHash); err != nil {
		if errors.Is(err, ErrMismatchedHashAndPassword) {
			return "", NewVerifierError(VerifierInvalidCredentials, ProviderLocal, "INVALID_PASSWORD", "", nil)
		}
		return "", NewVerifierError(VerifierOther, ProviderLocal, "INVALID_HASH", "", err)
	}

	return credential.ExternalID, nil
}

// Register stores a new credential. Registering a known email fails with
// ErrEmailAlreadyRegistered.
func (v *LocalVerifier) Register(ctx context.Context, email, password string) (string, error) {
	if _, err := v.credentials.FindCredential(ctx, email); err == nil {
		return "", withMeta(ErrEmailAlreadyRegistered, map[string]any{"email": email})
	} else if !IsNotFound(err) {
		return "", err
	}

	hash, err := HashPasswordWithCost(password, v.cost)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	credential := &Credential{
		Email:        email,
		ExternalID:   uuid.NewString(),
		PasswordHash: hash,
		CreatedAt:    &now,
	}

	if err := v.credentials.SaveCredential(ctx, credential); err != nil {
		return "", err
	}

	return credential.ExternalID, nil
}

// Disable marks the credential as disabled in the provider.
func (v *LocalVerifier) Disable(ctx context.Context, email string) error {
	credential, err := v.credentials.FindCredential(ctx, email)
	if err != nil {
		return err
	}
	credential.Disabled = true
	return v.credentials.SaveCredential(ctx, credential)
}
