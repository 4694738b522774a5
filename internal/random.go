package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

const stateTokenSize = 32

// NewStateToken returns 32 random bytes encoded as unpadded base64url.
func NewStateToken() (string, error) {
	var raw [stateTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashToken returns the hex SHA-256 digest stored in place of an opaque token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TokenSuffix returns the last few characters of token, safe for logs.
// Tokens too short for a suffix to hide most of them are masked entirely.
func TokenSuffix(token string) string {
	const (
		n      = 6
		minLen = 4 * n
		mask   = "***"
	)
	if len(token) < minLen {
		return mask
	}
	return token[len(token)-n:]
}
