// Package firebase verifies passwords against the Firebase Identity
// Toolkit REST API.
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	auth "github.com/goliatone/go-auth-lockout"
	goerrors "github.com/goliatone/go-errors"
	"github.com/rs/zerolog"
)

// ProviderName is reported in auth.VerifierError.Provider.
const ProviderName = "firebase"

// DefaultEndpoint is the public Identity Toolkit host.
const DefaultEndpoint = "https://identitytoolkit.googleapis.com"

// Identity Toolkit error messages mapped by the verifier.
const (
	CodeEmailNotFound           = "EMAIL_NOT_FOUND"
	CodeInvalidPassword         = "INVALID_PASSWORD"
	CodeInvalidLoginCredentials = "INVALID_LOGIN_CREDENTIALS"
	CodeInvalidEmail            = "INVALID_EMAIL"
	CodeUserDisabled            = "USER_DISABLED"
	CodeConfigurationNotFound   = "CONFIGURATION_NOT_FOUND"
	CodeOperationNotAllowed     = "OPERATION_NOT_ALLOWED"
	CodePasswordLoginDisabled   = "PASSWORD_LOGIN_DISABLED"
	CodeTooManyAttempts         = "TOO_MANY_ATTEMPTS_TRY_LATER"
	CodeEmailExists             = "EMAIL_EXISTS"
	CodeWeakPassword            = "WEAK_PASSWORD"
	CodeTransport               = "NETWORK_REQUEST_FAILED"
)

// Verifier implements auth.CredentialVerifier and auth.Registrar.
type Verifier struct {
	apiKey   string
	endpoint string
	client   *http.Client
	logger   auth.Logger
}

var (
	_ auth.CredentialVerifier = (*Verifier)(nil)
	_ auth.Registrar          = (*Verifier)(nil)
)

type Option func(*Verifier)

func WithEndpoint(endpoint string) Option {
	return func(v *Verifier) {
		if endpoint != "" {
			v.endpoint = strings.TrimRight(endpoint, "/")
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(v *Verifier) {
		if client != nil {
			v.client = client
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(v *Verifier) {
		if timeout > 0 {
			v.client.Timeout = timeout
		}
	}
}

func WithLogger(logger auth.Logger) Option {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// New returns a Verifier for the project owning apiKey.
func New(apiKey string, opts ...Option) *Verifier {
	v := &Verifier{
		apiKey:   apiKey,
		endpoint: DefaultEndpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   auth.WrapZerolog(zerolog.Nop()),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type passwordResponse struct {
	LocalID string `json:"localId"`
	Email   string `json:"email"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Verify calls accounts:signInWithPassword and returns the Firebase uid.
func (v *Verifier) Verify(ctx context.Context, email, password string) (string, error) {
	res, err := v.call(ctx, "accounts:signInWithPassword", email, password)
	if err != nil {
		return "", err
	}
	return res.LocalID, nil
}

// Register calls accounts:signUp and returns the new Firebase uid.
func (v *Verifier) Register(ctx context.Context, email, password string) (string, error) {
	res, err := v.call(ctx, "accounts:signUp", email, password)
	if err != nil {
		var verr *auth.VerifierError
		if errors.As(err, &verr) {
			switch verr.Code {
			case CodeEmailExists:
				rich := auth.ErrEmailAlreadyRegistered.Clone()
				rich.WithMetadata(map[string]any{"email": email})
				return "", rich
			case CodeWeakPassword, CodeInvalidEmail:
				rich := auth.ErrInvalidInput.Clone()
				rich.WithMetadata(map[string]any{"provider_code": verr.Code})
				return "", rich
			}
		}
		return "", goerrors.Wrap(err, goerrors.CategoryOperation, "firebase registration failed")
	}
	return res.LocalID, nil
}

func (v *Verifier) call(ctx context.Context, method, email, password string) (*passwordResponse, error) {
	body, err := json.Marshal(passwordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	})
	if err != nil {
		return nil, auth.NewVerifierError(auth.VerifierOther, ProviderName, "", "encode request", err)
	}

	u := fmt.Sprintf("%s/v1/%s?key=%s", v.endpoint, method, url.QueryEscape(v.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, auth.NewVerifierError(auth.VerifierMisconfigured, ProviderName, "", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Warn("firebase request failed", "method", method, "error", err)
		return nil, auth.NewVerifierError(auth.VerifierNetworkUnavailable, ProviderName, CodeTransport, "", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, auth.NewVerifierError(auth.VerifierNetworkUnavailable, ProviderName, CodeTransport, "read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, v.mapError(resp.StatusCode, payload)
	}

	out := &passwordResponse{}
	if err := json.Unmarshal(payload, out); err != nil || out.LocalID == "" {
		return nil, auth.NewVerifierError(auth.VerifierOther, ProviderName, "", "unexpected response body", err)
	}
	return out, nil
}

func (v *Verifier) mapError(status int, payload []byte) error {
	if status >= http.StatusInternalServerError {
		return auth.NewVerifierError(auth.VerifierNetworkUnavailable, ProviderName, http.StatusText(status), "", nil)
	}

	parsed := errorResponse{}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return auth.NewVerifierError(auth.VerifierOther, ProviderName, http.StatusText(status), "", err)
	}

	code, detail := splitMessage(parsed.Error.Message)
	return auth.NewVerifierError(Classify(code, status), ProviderName, code, detail, nil)
}

// Classify maps an Identity Toolkit error message into the verifier kinds.
func Classify(code string, status int) auth.VerifierErrorKind {
	switch code {
	case CodeEmailNotFound, CodeInvalidPassword, CodeInvalidLoginCredentials, CodeInvalidEmail:
		return auth.VerifierInvalidCredentials
	case CodeUserDisabled:
		return auth.VerifierAccountDisabled
	case CodeConfigurationNotFound, CodeOperationNotAllowed, CodePasswordLoginDisabled:
		return auth.VerifierMisconfigured
	case CodeTooManyAttempts:
		return auth.VerifierNetworkUnavailable
	}

	if strings.HasPrefix(code, "API key not valid") || status == http.StatusForbidden {
		return auth.VerifierMisconfigured
	}
	return auth.VerifierOther
}

// splitMessage separates "CODE : detail" messages.
func splitMessage(message string) (string, string) {
	code, detail, found := strings.Cut(message, ":")
	if !found {
		return strings.TrimSpace(message), ""
	}
	return strings.TrimSpace(code), strings.TrimSpace(detail)
}
