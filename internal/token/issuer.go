// Package token mints and validates the session artifacts issued at login:
// an opaque session identifier, a signed bearer token whose claims come from
// the schema's claim fields, and a high-entropy refresh token.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"authgate/internal/schema"
	dErrors "authgate/pkg/domain-errors"
)

const refreshTokenBytes = 64

// Issuer signs bearer tokens with a symmetric key and binds the artifact
// triple to the caller's transport.
type Issuer struct {
	signingKey []byte
	issuer     string
	audience   string
	tokenTTL   time.Duration
	clock      func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(i *Issuer) {
		if clock != nil {
			i.clock = clock
		}
	}
}

func NewIssuer(signingKey, issuer, audience string, tokenTTL time.Duration, opts ...Option) *Issuer {
	iss := &Issuer{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		tokenTTL:   tokenTTL,
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(iss)
		}
	}
	return iss
}

// Artifacts is the triple created together at login and cleared together at
// logout.
type Artifacts struct {
	SessionID    string
	BearerToken  string
	RefreshToken string
}

// Issue builds the claim set from the schema's claim fields, signs the bearer
// token, and writes all three artifacts to the carrier, clearing any
// pre-existing ones first so sessions never stack.
//
// A schema with zero claim fields issues nothing and establishes no session;
// the boolean result reports whether artifacts were written. This mirrors the
// long-standing behavior downstream applications rely on.
func (i *Issuer) Issue(s *schema.Schema, rec any, carrier Carrier) (Artifacts, bool, error) {
	declared := s.Claims()
	if len(declared) == 0 {
		return Artifacts{}, false, nil
	}

	now := i.clock()
	claims := jwt.MapClaims{
		"sub": "access-token",
		"jti": uuid.NewString(),
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(now.Add(i.tokenTTL)),
		"iss": i.issuer,
		"aud": i.audience,
	}
	for _, c := range declared {
		claims[c.Name] = c.Field.Get(rec)
	}

	bearer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signingKey)
	if err != nil {
		return Artifacts{}, false, fmt.Errorf("sign bearer token: %w", err)
	}

	refresh, err := generateRefreshToken()
	if err != nil {
		return Artifacts{}, false, err
	}

	artifacts := Artifacts{
		SessionID:    uuid.NewString(),
		BearerToken:  bearer,
		RefreshToken: refresh,
	}

	ClearArtifacts(carrier)
	carrier.Set(ArtifactSessionID, artifacts.SessionID, false)
	carrier.Set(ArtifactAccessToken, artifacts.BearerToken, true)
	carrier.Set(ArtifactRefreshToken, artifacts.RefreshToken, true)

	return artifacts, true, nil
}

// Validate parses and verifies a bearer token, returning its claims.
func (i *Issuer) Validate(tokenString string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return i.signingKey, nil
	}, jwt.WithIssuer(i.issuer), jwt.WithAudience(i.audience))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return claims, nil
}

func generateRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
