package hash

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltByteSize     = 24
	digestByteSize   = 24
	pbkdf2Iterations = 1000
)

func pbkdf2Hash(plaintext string) (string, error) {
	salt := make([]byte, saltByteSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	digest := pbkdf2.Key([]byte(plaintext), salt, pbkdf2Iterations, digestByteSize, sha512.New)

	return strconv.Itoa(pbkdf2Iterations) + ":" +
		base64.StdEncoding.EncodeToString(salt) + ":" +
		base64.StdEncoding.EncodeToString(digest), nil
}

func pbkdf2Verify(plaintext, envelope string) bool {
	parts := strings.Split(envelope, ":")
	if len(parts) != 3 {
		return false
	}

	iterations, err := strconv.Atoi(parts[0])
	if err != nil || iterations <= 0 {
		return false
	}
	salt, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	digest, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return false
	}

	probe := pbkdf2.Key([]byte(plaintext), salt, iterations, len(digest), sha512.New)
	return slowEquals(digest, probe)
}

// slowEquals compares digests in length-independent constant time. The XOR
// accumulator never short-circuits, so timing reveals nothing about where the
// first mismatching byte sits.
func slowEquals(a, b []byte) bool {
	diff := uint32(len(a)) ^ uint32(len(b))
	for i := 0; i < len(a) && i < len(b); i++ {
		diff |= uint32(a[i] ^ b[i])
	}
	return diff == 0
}
