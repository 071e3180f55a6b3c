package auth

import (
	"errors"
	"fmt"
)

// VerifierErrorKind is the closed set of failures a CredentialVerifier may report.
type VerifierErrorKind int

const (
	VerifierOther VerifierErrorKind = iota
	VerifierInvalidCredentials
	VerifierAccountDisabled
	VerifierNetworkUnavailable
	VerifierMisconfigured
)

func (k VerifierErrorKind) String() string {
	switch k {
	case VerifierInvalidCredentials:
		return "invalid_credentials"
	case VerifierAccountDisabled:
		return "account_disabled_upstream"
	case VerifierNetworkUnavailable:
		return "network_unavailable"
	case VerifierMisconfigured:
		return "provider_misconfigured"
	default:
		return "other"
	}
}

// VerifierError is returned by CredentialVerifier adapters. Provider
// specific codes are mapped into Kind by the adapter; Code keeps the raw value.
type VerifierError struct {
	Kind     VerifierErrorKind
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *VerifierError) Error() string {
	if e == nil {
		return "verifier error"
	}

	scope := "verifier"
	if e.Provider != "" {
		scope = e.Provider + " verifier"
	}

	switch {
	case e.Message != "":
		return fmt.Sprintf("%s %s: %s", scope, e.Kind, e.Message)
	case e.Code != "":
		return fmt.Sprintf("%s %s: %s", scope, e.Kind, e.Code)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", scope, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s", scope, e.Kind)
}

func (e *VerifierError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Transient reports whether the failure says nothing about the password.
func (e *VerifierError) Transient() bool {
	if e == nil {
		return false
	}
	return e.Kind == VerifierNetworkUnavailable || e.Kind == VerifierMisconfigured
}

// NewVerifierError builds a VerifierError of the given kind.
func NewVerifierError(kind VerifierErrorKind, provider, code, message string, err error) *VerifierError {
	return &VerifierError{
		Kind:     kind,
		Provider: provider,
		Code:     code,
		Message:  message,
		Err:      err,
	}
}

// AsVerifierError normalizes any error returned by a verifier. Errors that
// are not *VerifierError are reported as VerifierOther.
func AsVerifierError(err error) *VerifierError {
	if err == nil {
		return nil
	}
	var verr *VerifierError
	if errors.As(err, &verr) && verr != nil {
		return verr
	}
	return &VerifierError{Kind: VerifierOther, Err: err}
}
