// Package hash implements the credential hash service: a self-describing
// iterated PBKDF2 envelope and a delegated bcrypt variant behind one API.
// Algorithm selection is per password field and lives in the schema.
package hash

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Algorithm selects the hashing strategy for a password field.
type Algorithm string

const (
	// PBKDF2 derives an iterated salted SHA-512 hash encoded as
	// iterations:base64(salt):base64(digest).
	PBKDF2 Algorithm = "pbkdf2"
	// Bcrypt delegates to the adaptive bcrypt algorithm; the envelope is
	// opaque and self-salting.
	Bcrypt Algorithm = "bcrypt"
)

// Service hashes and verifies plaintexts. The zero value is ready to use.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Hash returns the envelope for plaintext under the given algorithm.
// An unknown algorithm is a programming error and panics; the schema
// validates selectors at startup so this cannot fire on request paths.
func (s *Service) Hash(plaintext string, algorithm Algorithm) (string, error) {
	switch algorithm {
	case PBKDF2:
		return pbkdf2Hash(plaintext)
	case Bcrypt:
		out, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
		if err != nil {
			return "", fmt.Errorf("bcrypt hash: %w", err)
		}
		return string(out), nil
	default:
		panic(fmt.Sprintf("hash: unknown algorithm %q", algorithm))
	}
}

// Verify reports whether plaintext matches the stored envelope.
func (s *Service) Verify(algorithm Algorithm, plaintext, envelope string) bool {
	switch algorithm {
	case PBKDF2:
		return pbkdf2Verify(plaintext, envelope)
	case Bcrypt:
		return bcrypt.CompareHashAndPassword([]byte(envelope), []byte(plaintext)) == nil
	default:
		panic(fmt.Sprintf("hash: unknown algorithm %q", algorithm))
	}
}

// Valid reports whether the selector names a supported algorithm. The schema
// builder uses it to reject typos at startup instead of panicking later.
func (a Algorithm) Valid() bool {
	return a == PBKDF2 || a == Bcrypt
}
