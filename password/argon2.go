package password

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB   = 8 * 1024
	minSaltLength = 16
	minKeyLength  = 16
	minPassBytes  = 10

	// DefaultMaxPasswordBytes applies when Config.MaxPasswordBytes is zero.
	DefaultMaxPasswordBytes = 1024
)

var (
	// ErrInvalidHash means a stored hash could not be decoded.
	ErrInvalidHash = errors.New("invalid password hash")
	// ErrPasswordLength means the plaintext is outside the accepted byte range.
	ErrPasswordLength = errors.New("password length out of range")
)

// Config holds Argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// MaxPasswordBytes bounds hashing cost for hostile input. Zero means
	// DefaultMaxPasswordBytes.
	MaxPasswordBytes int
}

// DefaultConfig is 64 MiB, 3 passes, 2 lanes.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Config) check() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("memory must be at least %d KiB", minMemoryKB)
	case c.Time < 1:
		return errors.New("time must be at least 1")
	case c.Parallelism < 1:
		return errors.New("parallelism must be at least 1")
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("salt length must be at least %d", minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("key length must be at least %d", minKeyLength)
	case c.MaxPasswordBytes != 0 && c.MaxPasswordBytes < minPassBytes:
		return fmt.Errorf("max password bytes must be 0 or at least %d", minPassBytes)
	}
	return nil
}

// Argon2 produces and checks Argon2id hashes. Safe for concurrent use.
type Argon2 struct {
	cfg Config
}

// NewArgon2 returns a hasher for cfg.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{cfg: cfg}, nil
}

func (a *Argon2) checkLength(plain string, min int) error {
	if len(plain) < min || len(plain) > a.cfg.MaxPasswordBytes {
		return fmt.Errorf("%w: want %d..%d bytes", ErrPasswordLength, min, a.cfg.MaxPasswordBytes)
	}
	return nil
}

// Hash encodes plain with a fresh random salt. Bytes are hashed as given,
// without Unicode normalization.
func (a *Argon2) Hash(plain string) (string, error) {
	if err := a.checkLength(plain, minPassBytes); err != nil {
		return "", err
	}
	p := phc{
		memory: a.cfg.Memory,
		passes: a.cfg.Time,
		lanes:  a.cfg.Parallelism,
		salt:   make([]byte, a.cfg.SaltLength),
	}
	if _, err := rand.Read(p.salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}
	p.key = derive(plain, p)
	return p.String(), nil
}

// Verify checks plain against encoded using the parameters recorded in
// encoded, so hashes from older configurations keep working.
func (a *Argon2) Verify(plain, encoded string) (bool, error) {
	if err := a.checkLength(plain, 0); err != nil {
		return false, err
	}
	p, err := decodePHC(encoded)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	return subtle.ConstantTimeCompare(derive(plain, p), p.key) == 1, nil
}

// NeedsUpgrade reports whether encoded is cheaper than the current config
// or uses a different key length.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	p, err := decodePHC(encoded)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	weaker := p.memory < a.cfg.Memory || p.passes < a.cfg.Time || p.lanes < a.cfg.Parallelism
	return weaker || uint32(len(p.key)) != a.cfg.KeyLength, nil
}

func derive(plain string, p phc) []byte {
	return argon2.IDKey([]byte(plain), p.salt, p.passes, p.memory, p.lanes, uint32(len(p.key)))
}
