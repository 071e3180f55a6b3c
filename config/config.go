// Package config loads the lockout service settings from LOCKOUT_* env
// variables and an optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	auth "github.com/goliatone/go-auth-lockout"
	"github.com/spf13/viper"
)

// Verifier kinds.
const (
	VerifierLocal    = "local"
	VerifierFirebase = "firebase"
	VerifierAuth0    = "auth0"
)

type Config struct {
	Lockout  LockoutConfig
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Verifier VerifierConfig
	Redis    RedisConfig
	LogLevel string
}

type LockoutConfig struct {
	MaxAttempts          int
	CountVerifierOutages bool
}

type ServerConfig struct {
	Addr  string
	Debug bool
}

type DatabaseConfig struct {
	DSN string
}

type JWTConfig struct {
	SigningKey string
	Issuer     string
	Expiration time.Duration
}

type VerifierConfig struct {
	Kind     string
	Firebase FirebaseConfig
	Auth0    Auth0Config
}

type FirebaseConfig struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
}

type Auth0Config struct {
	Domain       string
	ClientID     string
	ClientSecret string
	Realm        string
}

// RedisConfig enables the distributed lock and the asynq activity sink when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

var _ auth.Config = (*Config)(nil)

// Load reads the configuration. An empty path skips the config file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LOCKOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Lockout: LockoutConfig{
			MaxAttempts:          v.GetInt("max_attempts"),
			CountVerifierOutages: v.GetBool("count_verifier_outages"),
		},
		Server: ServerConfig{
			Addr:  v.GetString("server.addr"),
			Debug: v.GetBool("server.debug"),
		},
		Database: DatabaseConfig{
			DSN: v.GetString("database.dsn"),
		},
		JWT: JWTConfig{
			SigningKey: v.GetString("jwt.signing_key"),
			Issuer:     v.GetString("jwt.issuer"),
			Expiration: v.GetDuration("jwt.expiration"),
		},
		Verifier: VerifierConfig{
			Kind: strings.ToLower(v.GetString("verifier.kind")),
			Firebase: FirebaseConfig{
				APIKey:   v.GetString("verifier.firebase.api_key"),
				Endpoint: v.GetString("verifier.firebase.endpoint"),
				Timeout:  v.GetDuration("verifier.firebase.timeout"),
			},
			Auth0: Auth0Config{
				Domain:       v.GetString("verifier.auth0.domain"),
				ClientID:     v.GetString("verifier.auth0.client_id"),
				ClientSecret: v.GetString("verifier.auth0.client_secret"),
				Realm:        v.GetString("verifier.auth0.realm"),
			},
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		LogLevel: v.GetString("log_level"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("max_attempts", auth.DefaultMaxAttempts)
	v.SetDefault("count_verifier_outages", false)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.debug", false)
	v.SetDefault("database.dsn", "file:lockout.db?cache=shared")
	v.SetDefault("jwt.issuer", "go-auth-lockout")
	v.SetDefault("jwt.expiration", auth.DefaultTokenExpiration)
	v.SetDefault("verifier.kind", VerifierLocal)
	v.SetDefault("verifier.firebase.endpoint", "https://identitytoolkit.googleapis.com")
	v.SetDefault("verifier.firebase.timeout", 10*time.Second)
	v.SetDefault("verifier.auth0.realm", "Username-Password-Authentication")
	v.SetDefault("redis.db", 0)
	v.SetDefault("log_level", "info")

	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{"jwt.signing_key", "verifier.firebase.api_key", "verifier.auth0.domain",
		"verifier.auth0.client_id", "verifier.auth0.client_secret", "redis.addr", "redis.password"} {
		v.SetDefault(key, "")
	}
}

// Validate checks the settings the selected verifier depends on.
func (c *Config) Validate() error {
	if c.Lockout.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be positive, got %d", c.Lockout.MaxAttempts)
	}
	if c.JWT.SigningKey == "" {
		return fmt.Errorf("jwt.signing_key is required")
	}

	switch c.Verifier.Kind {
	case VerifierLocal:
	case VerifierFirebase:
		if c.Verifier.Firebase.APIKey == "" {
			return fmt.Errorf("verifier.firebase.api_key is required")
		}
	case VerifierAuth0:
		if c.Verifier.Auth0.Domain == "" || c.Verifier.Auth0.ClientID == "" {
			return fmt.Errorf("verifier.auth0.domain and verifier.auth0.client_id are required")
		}
	default:
		return fmt.Errorf("unknown verifier kind %q", c.Verifier.Kind)
	}
	return nil
}

func (c *Config) GetMaxAttempts() int               { return c.Lockout.MaxAttempts }
func (c *Config) GetCountVerifierOutages() bool     { return c.Lockout.CountVerifierOutages }
func (c *Config) GetSigningKey() string             { return c.JWT.SigningKey }
func (c *Config) GetIssuer() string                 { return c.JWT.Issuer }
func (c *Config) GetTokenExpiration() time.Duration { return c.JWT.Expiration }
