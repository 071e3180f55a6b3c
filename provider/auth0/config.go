package auth0

import (
	"fmt"
	"strings"
)

// DefaultRealm is the Auth0 database connection created with every tenant.
const DefaultRealm = "Username-Password-Authentication"

// Config holds the Auth0 application used for password logins.
type Config struct {
	// Domain is the Auth0 tenant domain (e.g., "example.us.auth0.com").
	Domain string

	// ClientID is the application client ID. The application must allow
	// the password-realm grant.
	ClientID string

	// ClientSecret is required for confidential applications.
	ClientSecret string

	// Realm is the database connection. Default: DefaultRealm.
	Realm string

	// Audience is the optional API identifier requested with the token.
	Audience string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(domain, clientID, clientSecret string) Config {
	return Config{
		Domain:       domain,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Realm:        DefaultRealm,
	}
}

func (c Config) validate() error {
	if c.domain() == "" {
		return fmt.Errorf("auth0: domain is required")
	}
	if strings.TrimSpace(c.ClientID) == "" {
		return fmt.Errorf("auth0: client id is required")
	}
	return nil
}

// domain strips the scheme and trailing slash the SDK does not expect.
func (c Config) domain() string {
	domain := strings.TrimSpace(c.Domain)
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	return strings.TrimSuffix(domain, "/")
}

func (c Config) realm() string {
	if c.Realm == "" {
		return DefaultRealm
	}
	return c.Realm
}
