package eduAuth

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/eduAuth/internal/audit"
	"github.com/MrEthical07/eduAuth/internal/flows"
	"github.com/MrEthical07/eduAuth/jwt"
	"github.com/MrEthical07/eduAuth/oauthstate"
	"github.com/MrEthical07/eduAuth/password"
	"github.com/MrEthical07/eduAuth/refresh"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. A Builder is single use.
//
// Required: an [AccountStore], and either a Redis client or both a refresh
// store and a state store. Everything else has a default.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	logger *zap.Logger
	now    func() time.Time

	accounts  AccountStore
	refresh   refresh.Store
	states    oauthstate.Store
	provider  IdentityProvider
	verifier  PasswordVerifier
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client for the default refresh store and the
// primary OAuth state tier.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the time source of every component the builder
// constructs.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithRefreshStore replaces the Redis refresh store, e.g. with sqlstore.RefreshTokens.
func (b *Builder) WithRefreshStore(store refresh.Store) *Builder {
	b.refresh = store
	return b
}

// WithStateStore replaces the failover state store. The caller keeps
// ownership of anything the store holds open.
func (b *Builder) WithStateStore(store oauthstate.Store) *Builder {
	b.states = store
	return b
}

// WithIdentityProvider enables StartOAuth and CompleteOAuth.
func (b *Builder) WithIdentityProvider(provider IdentityProvider) *Builder {
	b.provider = provider
	return b
}

// WithPasswordVerifier replaces the verifier built from Config.Password.
// Rehash on login only happens if v also implements [PasswordUpgrader].
func (b *Builder) WithPasswordVerifier(v PasswordVerifier) *Builder {
	b.verifier = v
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}
	if b.redis == nil && (b.refresh == nil || b.states == nil) {
		return nil, errors.New("redis client required unless both refresh and state stores are supplied")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := &Engine{
		config:   cfg,
		logger:   logger.Named("eduauth"),
		now:      now,
		accounts: b.accounts,
		provider: b.provider,
		metrics:  NewMetrics(cfg.Metrics),
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.VerifyKeys,
		Now:           now,
	})
	if err != nil {
		return nil, fmt.Errorf("jwt manager: %w", err)
	}
	engine.jwtManager = jm

	verifier := b.verifier
	if verifier == nil {
		ph, err := password.NewArgon2(cfg.passwordConfig())
		if err != nil {
			return nil, fmt.Errorf("password hasher: %w", err)
		}
		verifier = password.NewLegacy(ph)
	}

	refreshStore := b.refresh
	if refreshStore == nil {
		refreshStore = refresh.NewRedisStore(b.redis, cfg.Refresh.RedisPrefix, cfg.Refresh.Retention).WithClock(now)
	}
	engine.refresh = refreshStore

	states := b.states
	if states == nil {
		fallback := oauthstate.NewMemoryBackend(
			oauthstate.WithCapacity(cfg.StateStore.FallbackCapacity),
			oauthstate.WithSweepInterval(cfg.StateStore.SweepInterval),
			oauthstate.WithMemoryClock(now),
		)
		failover, err := oauthstate.NewFailoverStore(
			oauthstate.NewRedisBackend(b.redis, cfg.StateStore.RedisPrefix).WithClock(now),
			fallback,
			oauthstate.FailoverConfig{
				PrimaryTimeout: cfg.StateStore.PrimaryTimeout,
				Cooldown:       cfg.StateStore.Cooldown,
				TombstoneTTL:   cfg.OAuth.StateTTL,
				Now:            now,
				Logger:         logger,
				OnStateChange:  engine.onBreakerChange,
				OnFallback:     engine.onStateFallback,
			},
		)
		if err != nil {
			_ = fallback.Close()
			return nil, fmt.Errorf("oauth state store: %w", err)
		}
		engine.fallback = fallback
		engine.failover = failover
		states = failover
	}
	engine.states = states

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	engine.flow = flows.New(engine.flowDeps(verifier))

	b.built = true
	return engine, nil
}

func (e *Engine) flowDeps(verifier PasswordVerifier) flows.Deps {
	issue := flows.IssueDeps{
		IssueAccess:  e.jwtManager.IssueAccess,
		IssueRefresh: e.jwtManager.IssueRefresh,
		AccessTTL:    e.jwtManager.AccessTTL(),
		RefreshTTL:   e.jwtManager.RefreshTTL(),
		Now:          e.now,
		Refresh:      e.refresh,
	}

	deps := flows.Deps{
		Login: flows.LoginDeps{
			Accounts:        e.accounts,
			VerifyPassword:  verifier.Verify,
			AllowUnverified: e.config.Login.AllowUnverified,
			Issue:           issue,
			Warn:            e.warnUser,
		},
		Refresh: flows.RefreshDeps{
			Verify:   e.jwtManager.Verify,
			Now:      e.now,
			Store:    e.refresh,
			Accounts: e.accounts,
			Warn:     e.warnUser,
			Issue:    issue,
		},
		OAuthStart: flows.OAuthStartDeps{
			States:               e.states,
			StateTTL:             e.config.OAuth.StateTTL,
			AllowedRedirectHosts: e.config.OAuth.AllowedRedirectHosts,
		},
		OAuthCallback: flows.OAuthCallbackDeps{
			States:      e.states,
			Accounts:    e.accounts,
			DefaultRole: e.config.OAuth.DefaultRole,
			NewID:       uuid.NewString,
			Now:         e.now,
			Issue:       issue,
		},
		Validate: flows.ValidateDeps{
			Verify: e.jwtManager.Verify,
		},
		Logout: flows.LogoutDeps{
			Store: e.refresh,
		},
	}

	if up, ok := verifier.(PasswordUpgrader); ok && e.config.Password.UpgradeOnLogin {
		deps.Login.Rehash = &flows.RehashDeps{
			NeedsUpgrade: up.NeedsUpgrade,
			Hash:         up.Hash,
		}
	}

	if e.provider != nil {
		deps.OAuthStart.AuthorizationURL = e.provider.AuthorizationURL
		deps.OAuthCallback.Provider = e.provider.Name()
		deps.OAuthCallback.Exchange = e.provider.Exchange
		deps.OAuthCallback.FetchProfile = e.provider.FetchProfile
	}
	return deps
}
