package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// keyring is the parsed key material of a Manager. Keys are decoded once
// at construction so Verify never touches PEM.
type keyring struct {
	method jwt.SigningMethod
	kid    string
	sign   any
	// byKID, when non-empty, is the only source of verification keys and
	// every token must name one of them.
	byKID   map[string]any
	primary any
}

func newKeyring(cfg Config) (*keyring, error) {
	k := &keyring{kid: strings.TrimSpace(cfg.KeyID)}

	var decodePub func([]byte) (any, error)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a secret of at least 32 bytes")
		}
		k.method = jwt.SigningMethodHS256
		k.sign, k.primary = cfg.PrivateKey, cfg.PrivateKey
		decodePub = func(b []byte) (any, error) { return b, nil }
	case MethodEd25519:
		k.method = jwt.SigningMethodEdDSA
		decodePub = func(b []byte) (any, error) { return edPublic(b) }
		if len(cfg.PrivateKey) > 0 {
			priv, err := edPrivate(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			k.sign = priv
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := edPublic(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			k.primary = pub
		}
		if k.primary == nil && len(cfg.VerifyKeys) == 0 {
			return nil, errors.New("ed25519 requires PublicKey or VerifyKeys")
		}
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}

	if len(cfg.VerifyKeys) > 0 {
		k.byKID = make(map[string]any, len(cfg.VerifyKeys))
		for kid, raw := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("VerifyKeys contains an empty kid")
			}
			key, err := decodePub(raw)
			if err != nil {
				return nil, fmt.Errorf("verify key %q: %w", kid, err)
			}
			k.byKID[kid] = key
		}
		if k.kid != "" {
			if _, ok := k.byKID[k.kid]; !ok {
				return nil, fmt.Errorf("KeyID %q is not in VerifyKeys", k.kid)
			}
		}
	}
	return k, nil
}

// lookup is the jwt.Keyfunc.
func (k *keyring) lookup(t *jwt.Token) (any, error) {
	if t.Method.Alg() != k.method.Alg() {
		return nil, fmt.Errorf("alg %s not accepted", t.Method.Alg())
	}
	kid, _ := t.Header["kid"].(string)

	switch {
	case len(k.byKID) > 0:
		key, ok := k.byKID[kid]
		if !ok {
			return nil, fmt.Errorf("kid %q not recognised", kid)
		}
		return key, nil
	case k.kid != "" && kid != k.kid:
		return nil, fmt.Errorf("kid %q not recognised", kid)
	case k.primary == nil:
		return nil, errors.New("no verification key")
	}
	return k.primary, nil
}

func edPrivate(b []byte) (ed25519.PrivateKey, error) {
	if len(b) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(b), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(b)
	if err != nil {
		return nil, fmt.Errorf("ed25519 private key: %w", err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("ed25519 private key: wrong PEM key type")
	}
	return key, nil
}

func edPublic(b []byte) (ed25519.PublicKey, error) {
	if len(b) == ed25519.PublicKeySize {
		return ed25519.PublicKey(b), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(b)
	if err != nil {
		return nil, fmt.Errorf("ed25519 public key: %w", err)
	}
	key, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("ed25519 public key: wrong PEM key type")
	}
	return key, nil
}
