package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// Random value sizes in bytes, before encoding.
const (
	// StateSize is used for OAuth state and nonce values (22 chars).
	StateSize = 16
	// KeySize is used for shared secrets such as the agent key (43 chars).
	KeySize = 32
)

// fingerprintLen is the number of base64url characters kept by
// FingerprintToken, 72 bits of the digest.
const fingerprintLen = 12

// GenerateToken returns size random bytes as unpadded base64url.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("cryptox: token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// MustGenerateToken is GenerateToken for startup paths; it panics on error.
func MustGenerateToken(size int) string {
	tok, err := GenerateToken(size)
	if err != nil {
		panic(err)
	}
	return tok
}

// FingerprintToken returns a short, stable identifier for a token that is
// safe to log. Equal tokens give equal fingerprints; the token cannot be
// recovered from it.
func FingerprintToken(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])[:fingerprintLen]
}

// EqualSecrets compares two secrets in constant time.
func EqualSecrets(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}
