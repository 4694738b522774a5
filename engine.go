package eduAuth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/eduAuth/internal"
	"github.com/MrEthical07/eduAuth/internal/audit"
	"github.com/MrEthical07/eduAuth/internal/flows"
	"github.com/MrEthical07/eduAuth/internal/netfail"
	"github.com/MrEthical07/eduAuth/jwt"
	"github.com/MrEthical07/eduAuth/oauthstate"
	passwordpkg "github.com/MrEthical07/eduAuth/password"
	"github.com/MrEthical07/eduAuth/refresh"
	"go.uber.org/zap"
)

// Engine runs the login, refresh and OAuth flows. Build one with [Builder];
// all methods are safe for concurrent use.
type Engine struct {
	config     Config
	logger     *zap.Logger
	now        func() time.Time
	accounts   AccountStore
	provider   IdentityProvider
	refresh    refresh.Store
	states     oauthstate.Store
	failover   *oauthstate.FailoverStore
	fallback   *oauthstate.MemoryBackend
	jwtManager *jwt.Manager
	audit      *audit.Dispatcher
	metrics    *Metrics
	flow       flows.Service
}

// Close is Shutdown without a deadline.
func (e *Engine) Close() {
	_ = e.Shutdown(context.Background())
}

// Shutdown drains queued audit events, giving up when ctx ends, and stops
// the fallback sweep. Stores injected through the Builder are not closed.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	err := e.audit.Shutdown(ctx)
	if e.fallback != nil {
		_ = e.fallback.Close()
	}
	if err != nil {
		return fmt.Errorf("audit drain: %w", err)
	}
	return nil
}

// AuditDropped reports audit events lost because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return emptySnapshot()
	}
	return e.metrics.Snapshot()
}

// StateStoreHealth reports whether the primary OAuth state tier is trusted
// and when it last answered. Injected state stores always report healthy.
func (e *Engine) StateStoreHealth() (healthy bool, breaker string, lastChecked time.Time) {
	if e == nil || e.failover == nil {
		return true, oauthstate.BreakerClosed.String(), time.Time{}
	}
	return e.failover.Healthy(), e.failover.BreakerState().String(), e.failover.LastCheckedAt()
}

func (e *Engine) ready() bool {
	return e != nil && e.flow.Initialized()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) warnUser(msg, userID string, err error) {
	e.logger.Warn(msg, zap.String("user_id", userID), zap.Error(err))
}

func (e *Engine) onBreakerChange(from, to oauthstate.BreakerState) {
	if to == oauthstate.BreakerOpen {
		e.metricInc(MetricStateStoreBreakerOpen)
	}
	e.emitAudit(context.Background(), auditEventStateStoreBreaker, to == oauthstate.BreakerClosed, "", nil, func() map[string]string {
		return map[string]string{
			"from": from.String(),
			"to":   to.String(),
		}
	})
}

func (e *Engine) onStateFallback(string) {
	e.metricInc(MetricStateStoreFallback)
}

func storageErr(err error) error {
	if err == nil {
		return ErrStorageUnavailable
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}

func upstreamErr(err error) error {
	if err == nil {
		return ErrUpstreamIntegration
	}
	return fmt.Errorf("%w: %w", ErrUpstreamIntegration, err)
}

// issueErr separates signing failures from refresh store failures.
func issueErr(err error) error {
	if flows.IsIssueError(err) {
		return fmt.Errorf("issue tokens: %w", err)
	}
	return storageErr(err)
}

// Login authenticates email and password and issues a token pair.
//
// Malformed input, unknown email and wrong password all return
// [ErrInvalidCredentials].
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	log := e.logger.With(zap.String("op", "login"))

	res := e.flow.Login(ctx, email, password)
	userID := ""
	if res.Account != nil {
		userID = res.Account.ID
	}

	var err error
	reason := ""
	switch res.Failure {
	case flows.LoginFailureNone:
		e.metricInc(MetricLoginSuccess)
		e.emitAudit(ctx, auditEventLoginSuccess, true, userID, nil, nil)
		log.Debug("login succeeded", zap.String("user_id", userID),
			zap.String("token_suffix", internal.TokenSuffix(res.Tokens.RefreshToken)))
		return &LoginResult{Account: res.Account, Tokens: res.Tokens}, nil
	case flows.LoginFailureMalformed:
		err, reason = ErrInvalidCredentials, "malformed"
	case flows.LoginFailureNotFound:
		err, reason = ErrInvalidCredentials, "unknown_email"
	case flows.LoginFailurePassword:
		err, reason = ErrInvalidCredentials, "password"
		if res.Err != nil && !errors.Is(res.Err, passwordpkg.ErrPasswordLength) {
			log.Warn("password verification error", zap.String("user_id", userID), zap.Error(res.Err))
		}
	case flows.LoginFailureDisabled:
		err, reason = ErrAccountDisabled, "disabled"
	case flows.LoginFailureUnverified:
		err, reason = ErrAccountNotVerified, "unverified"
	case flows.LoginFailureLookup:
		err, reason = storageErr(res.Err), "account_lookup"
		e.metricInc(MetricStorageUnavailable)
		log.Error("account lookup failed", zap.Error(res.Err))
	case flows.LoginFailureIssue:
		err, reason = issueErr(res.Err), "issue"
		if errors.Is(err, ErrStorageUnavailable) {
			e.metricInc(MetricStorageUnavailable)
		}
		log.Error("token issuance failed", zap.String("user_id", userID), zap.Error(res.Err))
	default:
		err, reason = ErrInvalidCredentials, "unknown"
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, err, reasonMeta(reason))
	return nil, err
}

// Refresh rotates refreshToken. A token that was already rotated revokes
// every refresh token of its owner and returns [ErrTokenReuseDetected].
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	log := e.logger.With(zap.String("op", "refresh"),
		zap.String("token_suffix", internal.TokenSuffix(refreshToken)))

	res := e.flow.Refresh(ctx, refreshToken)
	if res.UserID != "" {
		log = log.With(zap.String("user_id", res.UserID))
	}

	var err error
	reason := ""
	switch res.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, nil, nil)
		return &LoginResult{Account: res.Account, Tokens: res.Tokens}, nil
	case flows.RefreshFailureDecode:
		err, reason = ErrInvalidCredentials, "decode"
	case flows.RefreshFailureUnknown:
		err, reason = ErrInvalidCredentials, "unknown_record"
	case flows.RefreshFailureRevoked:
		err, reason = ErrInvalidCredentials, "revoked_or_expired"
	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshReuseDetected)
		e.metrics.Add(MetricTokensRevoked, uint64(res.Revoked))
		log.Warn("refresh token reuse detected, revoked all refresh tokens", zap.Int("revoked", res.Revoked))
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, res.UserID, ErrTokenReuseDetected, func() map[string]string {
			return map[string]string{"revoked": fmt.Sprint(res.Revoked)}
		})
		e.metricInc(MetricRefreshFailure)
		return nil, ErrTokenReuseDetected
	case flows.RefreshFailureStore, flows.RefreshFailureAccountLookup:
		err, reason = storageErr(res.Err), "store"
		e.metricInc(MetricStorageUnavailable)
		log.Error("refresh storage failure", zap.Error(res.Err))
	case flows.RefreshFailureAccountMissing:
		err, reason = ErrAccountNotFound, "account_missing"
	case flows.RefreshFailureAccountDisabled:
		err, reason = ErrAccountDisabled, "account_disabled"
	case flows.RefreshFailureIssue:
		err, reason = issueErr(res.Err), "issue"
		if errors.Is(err, ErrStorageUnavailable) {
			e.metricInc(MetricStorageUnavailable)
		}
		log.Error("token issuance failed", zap.Error(res.Err))
	default:
		err, reason = ErrInvalidCredentials, "unknown"
	}

	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, err, reasonMeta(reason))
	return nil, err
}

// StartOAuth mints a single-use PKCE state for redirectTarget and returns
// the provider authorization URL.
func (e *Engine) StartOAuth(ctx context.Context, redirectTarget string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	if !e.flow.OAuthEnabled() {
		return "", ErrOAuthNotConfigured
	}

	res := e.flow.OAuthStart(ctx, redirectTarget)
	switch res.Failure {
	case flows.OAuthStartFailureNone:
		e.metricInc(MetricOAuthStart)
		e.emitAudit(ctx, auditEventOAuthStart, true, "", nil, func() map[string]string {
			return map[string]string{"state_id": res.StateID}
		})
		return res.URL, nil
	case flows.OAuthStartFailureRedirect:
		e.metricInc(MetricOAuthStartFailure)
		e.emitAudit(ctx, auditEventOAuthStart, false, "", ErrInvalidRedirect, nil)
		return "", ErrInvalidRedirect
	default:
		e.metricInc(MetricOAuthStartFailure)
		e.metricInc(MetricStorageUnavailable)
		e.logger.Error("oauth state creation failed", zap.String("op", "oauth_start"), zap.Error(res.Err))
		err := storageErr(res.Err)
		e.emitAudit(ctx, auditEventOAuthStart, false, "", err, nil)
		return "", err
	}
}

// CompleteOAuth consumes stateToken, exchanges code with the provider and
// signs in, links, or creates the matching account.
func (e *Engine) CompleteOAuth(ctx context.Context, code, stateToken string) (*OAuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if !e.flow.OAuthEnabled() {
		return nil, ErrOAuthNotConfigured
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricOAuthCallbackLatency, time.Since(start)) }()
	}
	log := e.logger.With(zap.String("op", "oauth_callback"),
		zap.String("state_suffix", internal.TokenSuffix(stateToken)))

	res := e.flow.OAuthCallback(ctx, code, stateToken)
	userID := ""
	if res.Account != nil {
		userID = res.Account.ID
		log = log.With(zap.String("user_id", userID))
	}

	var err error
	reason := ""
	switch res.Failure {
	case flows.OAuthCallbackFailureNone:
		e.metricInc(MetricOAuthCallbackSuccess)
		switch {
		case res.Created:
			e.metricInc(MetricOAuthAccountCreated)
			e.emitAudit(ctx, auditEventOAuthAccountCreated, true, userID, nil, nil)
		case res.Linked:
			e.metricInc(MetricOAuthAccountLinked)
			e.emitAudit(ctx, auditEventOAuthAccountLinked, true, userID, nil, nil)
		}
		e.emitAudit(ctx, auditEventOAuthCallbackSuccess, true, userID, nil, nil)
		return &OAuthResult{
			Account:        res.Account,
			Tokens:         res.Tokens,
			RedirectTarget: res.RedirectTarget,
			Created:        res.Created,
			Linked:         res.Linked,
		}, nil
	case flows.OAuthCallbackFailureState:
		e.metricInc(MetricOAuthInvalidState)
		err, reason = ErrInvalidOrExpiredState, "state"
	case flows.OAuthCallbackFailureExchange, flows.OAuthCallbackFailureProfile:
		e.metricInc(MetricOAuthUpstreamFailure)
		err, reason = upstreamErr(res.Err), "upstream"
		fields := []zap.Field{zap.Error(res.Err)}
		if nf, ok := netfail.As(res.Err); ok {
			fields = append(fields, zap.Stringer("kind", nf.Kind))
		}
		log.Warn("identity provider call failed", fields...)
	case flows.OAuthCallbackFailureAccountDisabled:
		err, reason = ErrAccountDisabled, "account_disabled"
	case flows.OAuthCallbackFailureConflict:
		err, reason = ErrIdentityConflict, "identity_conflict"
		log.Warn("email already linked to a different external identity")
	case flows.OAuthCallbackFailureStateStore, flows.OAuthCallbackFailureAccountLookup, flows.OAuthCallbackFailureAccountWrite:
		e.metricInc(MetricStorageUnavailable)
		err, reason = storageErr(res.Err), "storage"
		log.Error("oauth callback storage failure", zap.Error(res.Err))
	case flows.OAuthCallbackFailureIssue:
		err, reason = issueErr(res.Err), "issue"
		if errors.Is(err, ErrStorageUnavailable) {
			e.metricInc(MetricStorageUnavailable)
		}
		log.Error("token issuance failed", zap.Error(res.Err))
	default:
		err, reason = ErrInvalidOrExpiredState, "unknown"
	}

	e.metricInc(MetricOAuthCallbackFailure)
	e.emitAudit(ctx, auditEventOAuthCallbackFailure, false, userID, err, reasonMeta(reason))
	return nil, err
}

// ValidateAccess verifies an access token. It performs no I/O.
func (e *Engine) ValidateAccess(ctx context.Context, tokenStr string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	res := e.flow.Validate(tokenStr)
	if res.Failure != flows.ValidateFailureNone {
		return nil, ErrTokenInvalid
	}
	out := &AuthResult{
		UserID: res.Claims.UID,
		Email:  res.Claims.Email,
		Role:   res.Claims.Role,
	}
	if res.Claims.ExpiresAt != nil {
		out.ExpiresAt = res.Claims.ExpiresAt.Time
	}
	return out, nil
}

// LogoutAll revokes every refresh token of userID and reports how many were
// revoked. Outstanding access tokens stay valid until they expire.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, ErrAccountNotFound
	}
	n, err := e.flow.LogoutAll(ctx, userID)
	if err != nil {
		e.metricInc(MetricStorageUnavailable)
		e.logger.Error("logout all failed", zap.String("op", "logout_all"), zap.String("user_id", userID), zap.Error(err))
		err = storageErr(err)
		e.emitAudit(ctx, auditEventLogoutAll, false, userID, err, nil)
		return 0, err
	}
	e.metricInc(MetricLogoutAll)
	e.metrics.Add(MetricTokensRevoked, uint64(n))
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, nil, func() map[string]string {
		return map[string]string{"revoked": fmt.Sprint(n)}
	})
	return n, nil
}

func reasonMeta(reason string) func() map[string]string {
	if reason == "" {
		return nil
	}
	return func() map[string]string {
		return map[string]string{"reason": reason}
	}
}
