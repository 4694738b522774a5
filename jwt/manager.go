package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod names the JWS algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// Kind is carried in the "knd" claim.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// ErrTokenInvalid wraps every reason Verify rejects a token.
var ErrTokenInvalid = errors.New("token invalid")

const defaultMaxFutureIAT = 10 * time.Minute

// Config is read once by [NewManager].
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	// PrivateKey is the Ed25519 private key (raw or PEM) or the HS256
	// secret. An Ed25519 manager without one can verify but not issue.
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
	// MaxFutureIAT rejects tokens issued further ahead than this. Zero
	// means ten minutes.
	MaxFutureIAT time.Duration
	// KeyID goes into the kid header. With VerifyKeys set, tokens are
	// checked against the key their kid names, which allows rotation.
	KeyID      string
	VerifyKeys map[string][]byte

	Now func() time.Time
}

// Claims is the token payload. Role is only set on access tokens.
type Claims struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	Kind  Kind   `json:"knd"`
	jwt.RegisteredClaims
}

// Manager signs and checks tokens. Safe for concurrent use.
type Manager struct {
	accessTTL    time.Duration
	refreshTTL   time.Duration
	issuer       string
	audience     string
	maxFutureIAT time.Duration
	now          func() time.Time
	keys         *keyring
	parser       *jwt.Parser
}

func NewManager(cfg Config) (*Manager, error) {
	switch {
	case cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0:
		return nil, errors.New("token TTLs must be positive")
	case cfg.RefreshTTL < cfg.AccessTTL:
		return nil, errors.New("refresh TTL shorter than access TTL")
	case cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute:
		return nil, errors.New("leeway must be within 0..2m")
	case cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour:
		return nil, errors.New("MaxFutureIAT must be within 0..24h")
	}

	keys, err := newKeyring(cfg)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		accessTTL:    cfg.AccessTTL,
		refreshTTL:   cfg.RefreshTTL,
		issuer:       cfg.Issuer,
		audience:     cfg.Audience,
		maxFutureIAT: cfg.MaxFutureIAT,
		now:          cfg.Now,
		keys:         keys,
	}
	if m.maxFutureIAT == 0 {
		m.maxFutureIAT = defaultMaxFutureIAT
	}
	if m.now == nil {
		m.now = time.Now
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{keys.method.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}
	m.parser = jwt.NewParser(opts...)
	return m, nil
}

func (m *Manager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *Manager) RefreshTTL() time.Duration { return m.refreshTTL }

// IssueAccess signs an access token for uid carrying role.
func (m *Manager) IssueAccess(uid, email, role string) (string, error) {
	return m.sign(Claims{UID: uid, Email: email, Role: role, Kind: KindAccess}, m.accessTTL)
}

// IssueRefresh signs a refresh token. The jti makes every token distinct,
// even two issued for the same user in the same second.
func (m *Manager) IssueRefresh(uid, email string) (string, error) {
	return m.sign(Claims{UID: uid, Email: email, Kind: KindRefresh}, m.refreshTTL)
}

func (m *Manager) sign(c Claims, ttl time.Duration) (string, error) {
	if c.UID == "" {
		return "", errors.New("token subject required")
	}
	if m.keys.sign == nil {
		return "", errors.New("manager has no signing key")
	}
	now := m.now()
	c.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   c.UID,
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if m.audience != "" {
		c.Audience = jwt.ClaimStrings{m.audience}
	}

	tok := jwt.NewWithClaims(m.keys.method, c)
	if m.keys.kid != "" {
		tok.Header["kid"] = m.keys.kid
	}
	return tok.SignedString(m.keys.sign)
}

// Verify returns the claims of a valid token of either kind. Callers check
// Kind themselves.
func (m *Manager) Verify(token string) (*Claims, error) {
	c := &Claims{}
	if _, err := m.parser.ParseWithClaims(token, c, m.keys.lookup); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if err := m.checkPayload(c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return c, nil
}

func (m *Manager) checkPayload(c *Claims) error {
	if c.UID == "" {
		return errors.New("missing uid")
	}
	if c.Kind != KindAccess && c.Kind != KindRefresh {
		return fmt.Errorf("unknown kind %q", c.Kind)
	}
	if c.IssuedAt != nil && c.IssuedAt.After(m.now().Add(m.maxFutureIAT)) {
		return errors.New("iat too far in the future")
	}
	return nil
}
