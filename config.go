package eduAuth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/eduAuth/jwt"
	"github.com/MrEthical07/eduAuth/oauthstate"
	"github.com/MrEthical07/eduAuth/password"
)

// Environment names the deployment tier. Only [EnvProduction] changes
// behavior: it forbids the unverified-login bypass.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTest        Environment = "test"
	EnvProduction  Environment = "production"
)

// Config is the engine configuration. Obtain one from [DefaultConfig],
// adjust it, and hand it to [Builder.WithConfig]. It is copied on Build and
// treated as immutable afterwards.
type Config struct {
	Environment Environment
	JWT         JWTConfig
	Refresh     RefreshConfig
	OAuth       OAuthConfig
	StateStore  StateStoreConfig
	Login       LoginConfig
	Password    PasswordConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls token signing and lifetimes.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	// KeyID is stamped into the kid header. VerifyKeys, when set, must
	// contain it.
	KeyID      string
	VerifyKeys map[string][]byte
	Leeway     time.Duration
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig tunes the Redis refresh store built by [Builder] when no
// store is injected.
type RefreshConfig struct {
	RedisPrefix string
	// Retention keeps Redis records this long past expiry so a replayed
	// token is still recognised as used.
	Retention time.Duration
}

/*
====================================
OAUTH CONFIG
====================================
*/

// OAuthConfig controls the external identity flows.
type OAuthConfig struct {
	StateTTL    time.Duration
	DefaultRole string
	// AllowedRedirectHosts restricts post-login redirect targets. Empty
	// allows any absolute http(s) URL.
	AllowedRedirectHosts []string
}

/*
====================================
STATE STORE CONFIG
====================================
*/

// StateStoreConfig tunes the failover OAuth state store built by [Builder].
type StateStoreConfig struct {
	RedisPrefix      string
	PrimaryTimeout   time.Duration
	Cooldown         time.Duration
	FallbackCapacity int
	SweepInterval    time.Duration
}

// LoginConfig controls password login gates.
type LoginConfig struct {
	// AllowUnverified lets unverified accounts log in. Rejected when
	// Environment is production.
	AllowUnverified bool
}

// PasswordConfig holds argon2id parameters for the default verifier.
type PasswordConfig struct {
	Memory           uint32 // KB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
	// UpgradeOnLogin rehashes bcrypt imports and weaker argon2id hashes
	// after a successful password login.
	UpgradeOnLogin bool
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters and histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns production-shaped defaults. Key material is left
// empty and must be supplied.
func DefaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		Environment: EnvDevelopment,
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    14 * 24 * time.Hour,
			SigningMethod: string(jwt.MethodEd25519),
			Leeway:        30 * time.Second,
		},
		Refresh: RefreshConfig{
			RedisPrefix: "eduauth:rt",
			Retention:   7 * 24 * time.Hour,
		},
		OAuth: OAuthConfig{
			StateTTL:    10 * time.Minute,
			DefaultRole: "student",
		},
		StateStore: StateStoreConfig{
			RedisPrefix:      "eduauth:oauth_state",
			PrimaryTimeout:   oauthstate.DefaultPrimaryTimeout,
			Cooldown:         oauthstate.DefaultCooldown,
			FallbackCapacity: oauthstate.DefaultMemoryCapacity,
			SweepInterval:    oauthstate.DefaultSweepInterval,
		},
		Password: PasswordConfig{
			Memory:           pw.Memory,
			Time:             pw.Time,
			Parallelism:      pw.Parallelism,
			SaltLength:       pw.SaltLength,
			KeyLength:        pw.KeyLength,
			MaxPasswordBytes: pw.MaxPasswordBytes,
			UpgradeOnLogin:   true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	if cfg.OAuth.AllowedRedirectHosts != nil {
		out.OAuth.AllowedRedirectHosts = append([]string(nil), cfg.OAuth.AllowedRedirectHosts...)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c Config) passwordConfig() password.Config {
	return password.Config{
		Memory:           c.Password.Memory,
		Time:             c.Password.Time,
		Parallelism:      c.Password.Parallelism,
		SaltLength:       c.Password.SaltLength,
		KeyLength:        c.Password.KeyLength,
		MaxPasswordBytes: c.Password.MaxPasswordBytes,
	}
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvTest, EnvProduction:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}

	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	switch jwt.SigningMethod(c.JWT.SigningMethod) {
	case jwt.MethodEd25519:
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 && len(c.JWT.VerifyKeys) == 0 {
			return errors.New("ed25519 requires PublicKey or VerifyKeys")
		}
	case jwt.MethodHS256:
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Refresh
	if strings.TrimSpace(c.Refresh.RedisPrefix) == "" {
		return errors.New("Refresh RedisPrefix must not be empty")
	}
	if c.Refresh.Retention < 0 {
		return errors.New("Refresh Retention must be >= 0")
	}

	// OAuth
	if c.OAuth.StateTTL <= 0 {
		return errors.New("OAuth StateTTL must be > 0")
	}
	if c.OAuth.StateTTL > time.Hour {
		return errors.New("OAuth StateTTL must be <= 1h")
	}
	if strings.TrimSpace(c.OAuth.DefaultRole) == "" {
		return errors.New("OAuth DefaultRole must not be empty")
	}
	for _, h := range c.OAuth.AllowedRedirectHosts {
		if strings.TrimSpace(h) == "" || strings.Contains(h, "/") {
			return fmt.Errorf("OAuth AllowedRedirectHosts entry %q is not a host", h)
		}
	}

	// State store
	if strings.TrimSpace(c.StateStore.RedisPrefix) == "" {
		return errors.New("StateStore RedisPrefix must not be empty")
	}
	if c.StateStore.PrimaryTimeout <= 0 {
		return errors.New("StateStore PrimaryTimeout must be > 0")
	}
	if c.StateStore.Cooldown <= 0 {
		return errors.New("StateStore Cooldown must be > 0")
	}
	if c.StateStore.FallbackCapacity <= 0 {
		return errors.New("StateStore FallbackCapacity must be > 0")
	}
	if c.StateStore.SweepInterval <= 0 {
		return errors.New("StateStore SweepInterval must be > 0")
	}

	// Login
	if c.Login.AllowUnverified && c.Environment == EnvProduction {
		return errors.New("Login AllowUnverified is not permitted in production")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MaxPasswordBytes < 0 {
		return errors.New("Password MaxPasswordBytes must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
