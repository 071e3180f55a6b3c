package auth

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeAccountNotFound     = "ACCOUNT_NOT_FOUND"
	TextCodeAccountInactive     = "ACCOUNT_INACTIVE"
	TextCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	TextCodeAccountBlocked      = "ACCOUNT_BLOCKED"
	TextCodeVerifierUnavailable = "VERIFIER_UNAVAILABLE"
	TextCodeInvalidTransition   = "INVALID_ACCOUNT_TRANSITION"
	TextCodeRecordNotFound      = "RECORD_NOT_FOUND"
	TextCodeEmailRegistered     = "EMAIL_ALREADY_REGISTERED"
	TextCodeSessionInvalid      = "SESSION_INVALID"
	TextCodeInvalidInput        = "INVALID_INPUT"
	TextCodeForbidden           = "FORBIDDEN"
)

// MetaRemainingAttempts is the metadata key holding the attempts left before a block.
const MetaRemainingAttempts = "remaining_attempts"

// ErrAccountNotFound no account matches the email
var ErrAccountNotFound = goerrors.New("no account found for this email", goerrors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(http.StatusNotFound)

// ErrAccountInactive the account requires administrative reactivation
var ErrAccountInactive = goerrors.New("account is inactive, contact an administrator", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountInactive).
	WithCode(http.StatusForbidden)

// ErrInvalidCredentials the password was rejected
var ErrInvalidCredentials = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(http.StatusUnauthorized)

// ErrAccountBlocked too many consecutive failures
var ErrAccountBlocked = goerrors.New(BlockReasonConsecutiveFailures, goerrors.CategoryRateLimit).
	WithTextCode(TextCodeAccountBlocked).
	WithCode(http.StatusLocked)

// ErrVerifierUnavailable the identity provider could not be reached; safe to retry
var ErrVerifierUnavailable = goerrors.New("identity provider unavailable", goerrors.CategoryOperation).
	WithTextCode(TextCodeVerifierUnavailable).
	WithCode(http.StatusServiceUnavailable)

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid account state transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(http.StatusConflict)

// ErrRecordNotFound is returned by stores for missing records.
var ErrRecordNotFound = goerrors.New("record not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeRecordNotFound).
	WithCode(http.StatusNotFound)

// ErrEmailAlreadyRegistered is returned when registering a taken email.
var ErrEmailAlreadyRegistered = goerrors.New("email already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailRegistered).
	WithCode(http.StatusConflict)

// ErrSessionInvalid is returned for unknown, expired or revoked sessions.
var ErrSessionInvalid = goerrors.New("session is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionInvalid).
	WithCode(http.StatusUnauthorized)

// ErrInvalidInput is returned when a request payload fails validation.
var ErrInvalidInput = goerrors.New("invalid input", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidInput).
	WithCode(http.StatusBadRequest)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidInput).
	WithCode(http.StatusBadRequest)

// ErrMismatchedHashAndPassword the password does not match the stored hash
var ErrMismatchedHashAndPassword = goerrors.New("password does not match", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(http.StatusUnauthorized)

// withMeta clones a sentinel so metadata never leaks across calls.
func withMeta(base *goerrors.Error, meta map[string]any) *goerrors.Error {
	clone := base.Clone()
	if len(meta) > 0 {
		clone.WithMetadata(meta)
	}
	return clone
}

func notFound(meta map[string]any) error {
	return withMeta(ErrRecordNotFound, meta)
}

func hasTextCode(err error, code string) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == code
}

func IsAccountNotFound(err error) bool     { return hasTextCode(err, TextCodeAccountNotFound) }
func IsAccountInactive(err error) bool     { return hasTextCode(err, TextCodeAccountInactive) }
func IsInvalidCredentials(err error) bool  { return hasTextCode(err, TextCodeInvalidCredentials) }
func IsAccountBlocked(err error) bool      { return hasTextCode(err, TextCodeAccountBlocked) }
func IsVerifierUnavailable(err error) bool { return hasTextCode(err, TextCodeVerifierUnavailable) }
func IsInvalidTransition(err error) bool   { return hasTextCode(err, TextCodeInvalidTransition) }
func IsSessionInvalid(err error) bool      { return hasTextCode(err, TextCodeSessionInvalid) }

// IsNotFound reports whether a store lookup found nothing.
func IsNotFound(err error) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.Category == goerrors.CategoryNotFound && rich.TextCode == TextCodeRecordNotFound
}

// RemainingAttempts extracts the attempts left before a block from a login error.
func RemainingAttempts(err error) (int, bool) {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Metadata == nil {
		return 0, false
	}
	n, ok := rich.Metadata[MetaRemainingAttempts].(int)
	return n, ok
}
