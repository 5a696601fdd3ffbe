package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// AuthorizationMode selects how session artifacts are carried.
type AuthorizationMode string

const (
	// ModeBearerToken issues a signed bearer token plus refresh token cookies.
	ModeBearerToken AuthorizationMode = "bearer"
	// ModeCookieSession is recognized but reserved; startup rejects it.
	ModeCookieSession AuthorizationMode = "cookie-session"
)

// JWT captures bearer token signing configuration.
type JWT struct {
	Issuer     string
	Audience   string
	SigningKey string
	TokenTTL   time.Duration
}

// Redis captures connection settings for the denylist and object cache.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SMTP captures the outbound mail endpoint consumed by internal/email.
type SMTP struct {
	Addr     string // host:port
	Username string
	Password string
	From     string
}

// Server is the full configuration surface, built once in main.
type Server struct {
	Addr        string
	MetricsAddr string

	Mode AuthorizationMode
	JWT  JWT

	// EmailVerification gates the verification state machine globally;
	// per-type opt-in lives in the schema.
	EmailVerification bool

	// RevocationTTL bounds denylist entries; it must exceed the bearer token
	// lifetime so a revoked token cannot outlive its denylist entry.
	RevocationTTL time.Duration

	Redis       Redis
	PostgresURL string
	SMTP        SMTP

	CaptchaSiteKey string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:        envOr("AUTHGATE_ADDR", ":8080"),
		MetricsAddr: envOr("AUTHGATE_METRICS_ADDR", ":9090"),
		Mode:        AuthorizationMode(envOr("AUTHGATE_AUTH_MODE", string(ModeBearerToken))),
		JWT: JWT{
			Issuer:     envOr("AUTHGATE_JWT_ISSUER", "authgate"),
			Audience:   envOr("AUTHGATE_JWT_AUDIENCE", "authgate"),
			SigningKey: envOr("AUTHGATE_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			TokenTTL:   durationOr("AUTHGATE_JWT_TTL", 10*time.Minute),
		},
		EmailVerification: os.Getenv("AUTHGATE_EMAIL_VERIFICATION") == "true",
		RevocationTTL:     durationOr("AUTHGATE_REVOCATION_TTL", 15*time.Minute),
		Redis: Redis{
			URL:          os.Getenv("AUTHGATE_REDIS_URL"),
			PoolSize:     intOr("AUTHGATE_REDIS_POOL_SIZE", 10),
			MinIdleConns: intOr("AUTHGATE_REDIS_MIN_IDLE", 2),
			DialTimeout:  durationOr("AUTHGATE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  durationOr("AUTHGATE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: durationOr("AUTHGATE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		PostgresURL: os.Getenv("AUTHGATE_POSTGRES_URL"),
		SMTP: SMTP{
			Addr:     os.Getenv("AUTHGATE_SMTP_ADDR"),
			Username: os.Getenv("AUTHGATE_SMTP_USERNAME"),
			Password: os.Getenv("AUTHGATE_SMTP_PASSWORD"),
			From:     os.Getenv("AUTHGATE_SMTP_FROM"),
		},
		CaptchaSiteKey: os.Getenv("AUTHGATE_CAPTCHA_SITE_KEY"),
	}
}

// Validate fails fast on configuration that would only surface mid-request.
func (s Server) Validate() error {
	switch s.Mode {
	case ModeBearerToken:
	case ModeCookieSession:
		return fmt.Errorf("authorization mode %q is reserved and not implemented", s.Mode)
	default:
		return fmt.Errorf("unknown authorization mode %q", s.Mode)
	}
	if s.JWT.SigningKey == "" {
		return fmt.Errorf("jwt signing key must not be empty")
	}
	if s.JWT.TokenTTL <= 0 {
		return fmt.Errorf("jwt token ttl must be positive")
	}
	if s.RevocationTTL < s.JWT.TokenTTL {
		return fmt.Errorf("revocation ttl %s must not be shorter than token ttl %s",
			s.RevocationTTL, s.JWT.TokenTTL)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func intOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
