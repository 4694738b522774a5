package oauthstate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/eduAuth/internal"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultPrimaryTimeout bounds each call to the primary tier.
	DefaultPrimaryTimeout = 2 * time.Second
	// DefaultCooldown is how long the primary is skipped after a failure.
	DefaultCooldown = 30 * time.Second
	// DefaultTombstoneTTL is how long a consumed marker outlives a delete the
	// primary did not confirm.
	DefaultTombstoneTTL = time.Hour
)

// FailoverConfig tunes [FailoverStore].
type FailoverConfig struct {
	PrimaryTimeout time.Duration
	Cooldown       time.Duration
	// TombstoneTTL bounds how long a consumed marker is kept in the fallback
	// after an unconfirmed primary delete. It should be at least the longest
	// state TTL; longer TTLs seen by CreateState extend it.
	TombstoneTTL time.Duration
	Now          func() time.Time
	Logger       *zap.Logger
	// OnStateChange, when set, observes breaker transitions.
	OnStateChange func(from, to BreakerState)
	// OnFallback, when set, is called each time an operation is served by the fallback tier.
	OnFallback func(op string)
}

// FailoverStore implements [Store] over a primary and a fallback [Backend].
type FailoverStore struct {
	primary    Backend
	fallback   Backend
	breaker    *Breaker
	timeout    time.Duration
	now        func() time.Time
	logger     *zap.Logger
	onFallback func(op string)

	tombstoneTTL time.Duration
	maxStateTTL  atomic.Int64
}

// NewFailoverStore wires primary and fallback behind a fresh [Breaker].
func NewFailoverStore(primary, fallback Backend, cfg FailoverConfig) (*FailoverStore, error) {
	if primary == nil || fallback == nil {
		return nil, errors.New("oauthstate: primary and fallback backends are required")
	}
	if cfg.PrimaryTimeout < 0 || cfg.Cooldown < 0 || cfg.TombstoneTTL < 0 {
		return nil, errors.New("oauthstate: timeouts must not be negative")
	}
	if cfg.PrimaryTimeout == 0 {
		cfg.PrimaryTimeout = DefaultPrimaryTimeout
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.TombstoneTTL == 0 {
		cfg.TombstoneTTL = DefaultTombstoneTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	logger := cfg.Logger.Named("oauthstate")

	breaker := NewBreaker(cfg.Cooldown, cfg.Now)
	breaker.OnChange(func(from, to BreakerState) {
		logger.Info("primary state store breaker transition",
			zap.Stringer("from", from), zap.Stringer("to", to))
		if cfg.OnStateChange != nil {
			cfg.OnStateChange(from, to)
		}
	})

	return &FailoverStore{
		primary:    primary,
		fallback:   fallback,
		breaker:    breaker,
		timeout:    cfg.PrimaryTimeout,
		now:        cfg.Now,
		logger:     logger,
		onFallback: cfg.OnFallback,

		tombstoneTTL: cfg.TombstoneTTL,
	}, nil
}

// Healthy reports whether the primary tier is currently trusted.
func (s *FailoverStore) Healthy() bool {
	return s.breaker.State() == BreakerClosed
}

// LastCheckedAt returns when the primary last answered or failed.
func (s *FailoverStore) LastCheckedAt() time.Time {
	return s.breaker.LastCheckedAt()
}

// BreakerState exposes the breaker state for health endpoints.
func (s *FailoverStore) BreakerState() BreakerState {
	return s.breaker.State()
}

// tryPrimary runs fn against the primary when the breaker allows it.
// attempted is false when the breaker refused the call.
func (s *FailoverStore) tryPrimary(ctx context.Context, op string, fn func(context.Context) error) (attempted bool, err error) {
	if !s.breaker.Allow() {
		return false, nil
	}
	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := fn(pctx); err != nil {
		if ctx.Err() != nil {
			// The caller went away; that says nothing about the primary.
			s.breaker.Abort()
			return true, ctx.Err()
		}
		s.breaker.Failure()
		s.logger.Warn("primary state store failed, using fallback",
			zap.String("op", op), zap.Error(err))
		return true, err
	}
	s.breaker.Success()
	return true, nil
}

func (s *FailoverStore) usedFallback(op string) {
	if s.onFallback != nil {
		s.onFallback(op)
	}
}

// CreateState mints a state token bound to redirectTarget and codeVerifier.
func (s *FailoverStore) CreateState(ctx context.Context, redirectTarget, codeVerifier string, ttl time.Duration) (*State, error) {
	if ttl <= 0 {
		return nil, errors.New("oauthstate: ttl must be positive")
	}
	for {
		seen := s.maxStateTTL.Load()
		if int64(ttl) <= seen || s.maxStateTTL.CompareAndSwap(seen, int64(ttl)) {
			break
		}
	}
	token, err := internal.NewStateToken()
	if err != nil {
		return nil, fmt.Errorf("generate state token: %w", err)
	}
	now := s.now()
	state := &State{
		ID:             uuid.NewString(),
		Token:          token,
		RedirectTarget: redirectTarget,
		CodeVerifier:   codeVerifier,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}

	attempted, err := s.tryPrimary(ctx, "create", func(ctx context.Context) error {
		return s.primary.Put(ctx, state)
	})
	if attempted && err == nil {
		return state, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	if err := s.fallback.Put(ctx, state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.usedFallback("create")
	return state, nil
}

// FindByToken returns the live state for token or (nil, nil).
// A consumed marker in the fallback wins over anything the primary returns.
func (s *FailoverStore) FindByToken(ctx context.Context, token string) (*State, error) {
	if token == "" {
		return nil, nil
	}

	local, err := s.fallback.Get(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if local != nil && local.UsedAt != nil {
		if s.now().Before(local.ExpiresAt) {
			s.settleTombstone(ctx, token)
			return nil, nil
		}
		_ = s.fallback.Delete(ctx, token)
		local = nil
	}

	var found *State
	attempted, err := s.tryPrimary(ctx, "find", func(ctx context.Context) error {
		st, getErr := s.primary.Get(ctx, token)
		found = st
		return getErr
	})
	if attempted && err == nil && found != nil {
		return s.liveOrPurge(ctx, s.primary, found)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	// Primary answered "absent", failed, or was skipped: states minted
	// during an outage only exist in the fallback.
	if local == nil {
		return nil, nil
	}
	s.usedFallback("find")
	return s.liveOrPurge(ctx, s.fallback, local)
}

// settleTombstone retries the primary delete behind a consumed marker and
// drops the marker once the primary confirms.
func (s *FailoverStore) settleTombstone(ctx context.Context, token string) {
	attempted, err := s.tryPrimary(ctx, "delete", func(ctx context.Context) error {
		return s.primary.Delete(ctx, token)
	})
	if attempted && err == nil {
		_ = s.fallback.Delete(ctx, token)
	}
}

func (s *FailoverStore) liveOrPurge(ctx context.Context, tier Backend, st *State) (*State, error) {
	if st.Live(s.now()) {
		return st, nil
	}
	if tier == s.primary {
		_, _ = s.tryPrimary(ctx, "purge", func(ctx context.Context) error {
			return tier.Delete(ctx, st.Token)
		})
	} else {
		_ = tier.Delete(ctx, st.Token)
	}
	return nil, nil
}

// DeleteState consumes token. When the primary confirms the delete the
// fallback copy is removed too; otherwise the primary may still hold the
// state, so a consumed marker is left in the fallback for FindByToken to
// honour. ErrUnavailable means neither could be recorded and the state must
// be treated as possibly live.
func (s *FailoverStore) DeleteState(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	attempted, err := s.tryPrimary(ctx, "delete", func(ctx context.Context) error {
		return s.primary.Delete(ctx, token)
	})
	if attempted && err == nil {
		if err := s.fallback.Delete(ctx, token); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil
	}

	now := s.now()
	ttl := max(s.tombstoneTTL, time.Duration(s.maxStateTTL.Load()))
	tombstone := &State{
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		UsedAt:    &now,
	}
	if err := s.fallback.Put(context.WithoutCancel(ctx), tombstone); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.usedFallback("delete")
	return nil
}
