package main

import (
	"fmt"
	"os"
	"time"

	eduAuth "github.com/MrEthical07/eduAuth"
	"github.com/MrEthical07/eduAuth/identity"
	"github.com/caarlos0/env/v11"
)

// serverEnv is the process configuration. Every field maps to one
// EDUAUTH_* variable.
type serverEnv struct {
	Addr        string `env:"EDUAUTH_ADDR"        envDefault:":8080"`
	Environment string `env:"EDUAUTH_ENV"         envDefault:"development"`
	LogLevel    string `env:"EDUAUTH_LOG_LEVEL"   envDefault:"info"`

	RedisAddr     string `env:"EDUAUTH_REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string `env:"EDUAUTH_REDIS_PASSWORD"`
	RedisDB       int    `env:"EDUAUTH_REDIS_DB"       envDefault:"0"`

	DBDriver string `env:"EDUAUTH_DB_DRIVER" envDefault:"sqlite"`
	DBDSN    string `env:"EDUAUTH_DB_DSN"    envDefault:"file:eduauth.db?_pragma=busy_timeout(5000)"`
	// SQLRefreshTokens keeps refresh tokens in the SQL database instead of Redis.
	SQLRefreshTokens bool `env:"EDUAUTH_SQL_REFRESH_TOKENS"`

	JWTMethod         string        `env:"EDUAUTH_JWT_METHOD"           envDefault:"ed25519"`
	JWTSecret         string        `env:"EDUAUTH_JWT_SECRET"`
	JWTPrivateKeyFile string        `env:"EDUAUTH_JWT_PRIVATE_KEY_FILE"`
	JWTPublicKeyFile  string        `env:"EDUAUTH_JWT_PUBLIC_KEY_FILE"`
	JWTKeyID          string        `env:"EDUAUTH_JWT_KEY_ID"`
	JWTIssuer         string        `env:"EDUAUTH_JWT_ISSUER"           envDefault:"eduauth"`
	JWTAudience       string        `env:"EDUAUTH_JWT_AUDIENCE"`
	AccessTTL         time.Duration `env:"EDUAUTH_ACCESS_TTL"           envDefault:"15m"`
	RefreshTTL        time.Duration `env:"EDUAUTH_REFRESH_TTL"          envDefault:"336h"`

	OAuthProvider      string        `env:"EDUAUTH_OAUTH_PROVIDER"       envDefault:"google"`
	OAuthClientID      string        `env:"EDUAUTH_OAUTH_CLIENT_ID"`
	OAuthClientSecret  string        `env:"EDUAUTH_OAUTH_CLIENT_SECRET"`
	OAuthRedirectURL   string        `env:"EDUAUTH_OAUTH_REDIRECT_URL"`
	OAuthAuthURL       string        `env:"EDUAUTH_OAUTH_AUTH_URL"       envDefault:"https://accounts.google.com/o/oauth2/v2/auth"`
	OAuthTokenURL      string        `env:"EDUAUTH_OAUTH_TOKEN_URL"      envDefault:"https://oauth2.googleapis.com/token"`
	OAuthUserInfoURL   string        `env:"EDUAUTH_OAUTH_USERINFO_URL"   envDefault:"https://openidconnect.googleapis.com/v1/userinfo"`
	OAuthScopes        []string      `env:"EDUAUTH_OAUTH_SCOPES"         envSeparator:"," envDefault:"openid,email,profile"`
	OAuthTimeout       time.Duration `env:"EDUAUTH_OAUTH_TIMEOUT"        envDefault:"10s"`
	OAuthStateTTL      time.Duration `env:"EDUAUTH_OAUTH_STATE_TTL"      envDefault:"10m"`
	OAuthDefaultRole   string        `env:"EDUAUTH_OAUTH_DEFAULT_ROLE"   envDefault:"student"`
	OAuthRedirectHosts []string      `env:"EDUAUTH_OAUTH_REDIRECT_HOSTS" envSeparator:","`

	AllowUnverified bool `env:"EDUAUTH_ALLOW_UNVERIFIED"`
	PasswordUpgrade bool `env:"EDUAUTH_PASSWORD_UPGRADE_ON_LOGIN" envDefault:"true"`
	AuditEnabled    bool `env:"EDUAUTH_AUDIT_ENABLED"   envDefault:"true"`
	MetricsEnabled  bool `env:"EDUAUTH_METRICS_ENABLED" envDefault:"true"`
}

func loadEnv() (serverEnv, error) {
	var cfg serverEnv
	if err := env.Parse(&cfg); err != nil {
		return serverEnv{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// engineConfig maps the process env onto an engine configuration.
func (s serverEnv) engineConfig() (eduAuth.Config, error) {
	cfg := eduAuth.DefaultConfig()
	cfg.Environment = eduAuth.Environment(s.Environment)

	cfg.JWT.SigningMethod = s.JWTMethod
	cfg.JWT.Issuer = s.JWTIssuer
	cfg.JWT.Audience = s.JWTAudience
	cfg.JWT.KeyID = s.JWTKeyID
	cfg.JWT.AccessTTL = s.AccessTTL
	cfg.JWT.RefreshTTL = s.RefreshTTL
	switch s.JWTMethod {
	case "hs256":
		cfg.JWT.PrivateKey = []byte(s.JWTSecret)
	default:
		priv, err := readKey(s.JWTPrivateKeyFile)
		if err != nil {
			return eduAuth.Config{}, fmt.Errorf("private key: %w", err)
		}
		pub, err := readKey(s.JWTPublicKeyFile)
		if err != nil {
			return eduAuth.Config{}, fmt.Errorf("public key: %w", err)
		}
		cfg.JWT.PrivateKey, cfg.JWT.PublicKey = priv, pub
	}

	cfg.OAuth.StateTTL = s.OAuthStateTTL
	cfg.OAuth.DefaultRole = s.OAuthDefaultRole
	cfg.OAuth.AllowedRedirectHosts = s.OAuthRedirectHosts
	cfg.Login.AllowUnverified = s.AllowUnverified
	cfg.Password.UpgradeOnLogin = s.PasswordUpgrade
	cfg.Audit.Enabled = s.AuditEnabled
	cfg.Metrics.Enabled = s.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = s.MetricsEnabled

	if err := cfg.Validate(); err != nil {
		return eduAuth.Config{}, err
	}
	return cfg, nil
}

// oauthEnabled reports whether enough provider settings are present to
// build an identity client.
func (s serverEnv) oauthEnabled() bool {
	return s.OAuthClientID != "" && s.OAuthRedirectURL != ""
}

func (s serverEnv) identityConfig() identity.Config {
	return identity.Config{
		Provider:     s.OAuthProvider,
		ClientID:     s.OAuthClientID,
		ClientSecret: s.OAuthClientSecret,
		RedirectURL:  s.OAuthRedirectURL,
		AuthURL:      s.OAuthAuthURL,
		TokenURL:     s.OAuthTokenURL,
		UserInfoURL:  s.OAuthUserInfoURL,
		Scopes:       s.OAuthScopes,
		Timeout:      s.OAuthTimeout,
	}
}

func readKey(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	return os.ReadFile(path)
}
