package auth0

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/auth0/go-auth0/authentication"
	"github.com/auth0/go-auth0/authentication/oauth"
	auth "github.com/goliatone/go-auth-lockout"
)

// ProviderName is reported in auth.VerifierError.Provider.
const ProviderName = "auth0"

// Auth0 authentication API error codes mapped by Classify.
const (
	CodeInvalidGrant       = "invalid_grant"
	CodeInvalidUserPass    = "invalid_user_password"
	CodeUnauthorized       = "unauthorized"
	CodeTooManyAttempts    = "too_many_attempts"
	CodeAccessDenied       = "access_denied"
	CodeInvalidClient      = "invalid_client"
	CodeUnauthorizedClient = "unauthorized_client"
	CodeInvalidRequest     = "invalid_request"
	CodeServerError        = "server_error"
)

// Client is the part of the Auth0 authentication API used by the verifier.
type Client interface {
	PasswordLogin(ctx context.Context, email, password string) (string, error)
	Subject(ctx context.Context, accessToken string) (string, error)
}

// Verifier implements auth.CredentialVerifier over an Auth0 database connection.
type Verifier struct {
	client Client
}

var _ auth.CredentialVerifier = (*Verifier)(nil)

// New builds a Verifier backed by the go-auth0 authentication client.
func New(ctx context.Context, cfg Config, opts ...authentication.Option) (*Verifier, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	options := []authentication.Option{authentication.WithClientID(cfg.ClientID)}
	if cfg.ClientSecret != "" {
		options = append(options, authentication.WithClientSecret(cfg.ClientSecret))
	}
	options = append(options, opts...)

	api, err := authentication.New(ctx, cfg.domain(), options...)
	if err != nil {
		return nil, fmt.Errorf("auth0: failed to create authentication client: %w", err)
	}

	return NewWithClient(&sdkClient{api: api, realm: cfg.realm(), audience: cfg.Audience}), nil
}

// NewWithClient builds a Verifier over any Client.
func NewWithClient(client Client) *Verifier {
	return &Verifier{client: client}
}

// Verify runs the password-realm grant and returns the Auth0 user id.
func (v *Verifier) Verify(ctx context.Context, email, password string) (string, error) {
	token, err := v.client.PasswordLogin(ctx, email, password)
	if err != nil {
		return "", toVerifierError(err)
	}

	sub, err := v.client.Subject(ctx, token)
	if err != nil {
		return "", toVerifierError(err)
	}
	if sub == "" {
		return "", auth.NewVerifierError(auth.VerifierOther, ProviderName, "", "empty subject", nil)
	}
	return sub, nil
}

func toVerifierError(err error) *auth.VerifierError {
	code := ""
	message := ""
	var apiErr *authentication.Error
	if errors.As(err, &apiErr) {
		code = apiErr.Err
		message = apiErr.Message
	}
	return auth.NewVerifierError(Classify(err), ProviderName, code, message, err)
}

// Classify maps errors from the authentication API into verifier kinds.
func Classify(err error) auth.VerifierErrorKind {
	if err == nil {
		return auth.VerifierOther
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return auth.VerifierNetworkUnavailable
	}

	var apiErr *authentication.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= http.StatusInternalServerError {
			return auth.VerifierNetworkUnavailable
		}

		switch apiErr.Err {
		case CodeInvalidGrant, CodeInvalidUserPass:
			if strings.Contains(strings.ToLower(apiErr.Message), "blocked") {
				return auth.VerifierAccountDisabled
			}
			return auth.VerifierInvalidCredentials
		case CodeUnauthorized:
			return auth.VerifierAccountDisabled
		case CodeTooManyAttempts, CodeServerError:
			return auth.VerifierNetworkUnavailable
		case CodeAccessDenied, CodeInvalidClient, CodeUnauthorizedClient, CodeInvalidRequest:
			return auth.VerifierMisconfigured
		}
		return auth.VerifierOther
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return auth.VerifierNetworkUnavailable
	}
	return auth.VerifierOther
}

type sdkClient struct {
	api      *authentication.Authentication
	realm    string
	audience string
}

func (c *sdkClient) PasswordLogin(ctx context.Context, email, password string) (string, error) {
	tokens, err := c.api.OAuth.LoginWithPassword(ctx, oauth.LoginWithPasswordRequest{
		Username: email,
		Password: password,
		Realm:    c.realm,
		Audience: c.audience,
		Scope:    "openid",
	}, oauth.IDTokenValidationOptions{})
	if err != nil {
		return "", err
	}
	return tokens.AccessToken, nil
}

func (c *sdkClient) Subject(ctx context.Context, accessToken string) (string, error) {
	info, err := c.api.UserInfo(ctx, accessToken)
	if err != nil {
		return "", err
	}
	return info.Sub, nil
}
