package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// RandomString returns a base64url-encoded string of length random bytes.
func RandomString(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewAuthorizationCodeValue returns a fresh code value.
func NewAuthorizationCodeValue() (string, error) {
	return RandomString(32)
}

// NewBearerTokenValue returns a fresh opaque access or refresh token value.
func NewBearerTokenValue() (string, error) {
	return RandomString(48)
}

// TokenRef is a short, non-reversible reference to a credential value,
// safe to put in logs.
func TokenRef(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:12]
}
