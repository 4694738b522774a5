package eduAuth

import (
	"context"
	"errors"

	"github.com/MrEthical07/eduAuth/internal/audit"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventOAuthStart           = "oauth_start"
	auditEventOAuthCallbackSuccess = "oauth_callback_success"
	auditEventOAuthCallbackFailure = "oauth_callback_failure"
	auditEventOAuthAccountCreated  = "oauth_account_created"
	auditEventOAuthAccountLinked   = "oauth_account_linked"
	auditEventLogoutAll            = "logout_all"
	auditEventStateStoreBreaker    = "state_store_breaker"
)

// AuditErrorCode is the stable error label written to [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountNotFound    AuditErrorCode = "account_not_found"
	auditErrAccountDisabled    AuditErrorCode = "account_disabled"
	auditErrAccountNotVerified AuditErrorCode = "account_not_verified"
	auditErrInvalidState       AuditErrorCode = "invalid_state"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrUpstream           AuditErrorCode = "upstream_failure"
	auditErrUnavailable        AuditErrorCode = "storage_unavailable"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrInvalidRedirect    AuditErrorCode = "invalid_redirect"
	auditErrIdentityConflict   AuditErrorCode = "identity_conflict"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	client := clientFrom(ctx)
	if ua := client.userAgent; ua != "" {
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		metadata["user_agent"] = ua
	}

	event := audit.Event{
		Timestamp: e.now().UTC(),
		Type:      eventType,
		UserID:    userID,
		IP:        client.ip,
		Success:   success,
		Metadata:  metadata,
	}
	if e.provider != nil && isOAuthEvent(eventType) {
		event.Provider = e.provider.Name()
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func isOAuthEvent(eventType string) bool {
	switch eventType {
	case auditEventOAuthStart, auditEventOAuthCallbackSuccess, auditEventOAuthCallbackFailure,
		auditEventOAuthAccountCreated, auditEventOAuthAccountLinked:
		return true
	}
	return false
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrAccountNotVerified):
		return auditErrAccountNotVerified
	case errors.Is(err, ErrInvalidOrExpiredState):
		return auditErrInvalidState
	case errors.Is(err, ErrTokenReuseDetected):
		return auditErrRefreshReuse
	case errors.Is(err, ErrUpstreamIntegration):
		return auditErrUpstream
	case errors.Is(err, ErrStorageUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrInvalidRedirect):
		return auditErrInvalidRedirect
	case errors.Is(err, ErrIdentityConflict):
		return auditErrIdentityConflict
	default:
		return auditErrInternal
	}
}
