package password

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// bcryptMaxBytes is the longest input bcrypt consumes.
const bcryptMaxBytes = 72

// Legacy accepts bcrypt hashes carried over from an LMS import alongside
// Argon2id. New hashes are always Argon2id, and every bcrypt hash reports
// NeedsUpgrade so imported accounts migrate on their next login.
type Legacy struct {
	argon *Argon2
}

// NewLegacy wraps a.
func NewLegacy(a *Argon2) *Legacy {
	return &Legacy{argon: a}
}

// IsBcrypt reports whether encoded carries a $2a$, $2b$ or $2y$ prefix.
func IsBcrypt(encoded string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(encoded, prefix) {
			return true
		}
	}
	return false
}

func (l *Legacy) Hash(plain string) (string, error) {
	return l.argon.Hash(plain)
}

func (l *Legacy) Verify(plain, encoded string) (bool, error) {
	if !IsBcrypt(encoded) {
		return l.argon.Verify(plain, encoded)
	}
	if len(plain) > bcryptMaxBytes {
		return false, fmt.Errorf("%w: bcrypt accepts at most %d bytes", ErrPasswordLength, bcryptMaxBytes)
	}
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plain))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
}

func (l *Legacy) NeedsUpgrade(encoded string) (bool, error) {
	if IsBcrypt(encoded) {
		if _, err := bcrypt.Cost([]byte(encoded)); err != nil {
			return false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
		}
		return true, nil
	}
	return l.argon.NeedsUpgrade(encoded)
}
