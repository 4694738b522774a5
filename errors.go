package eduAuth

import (
	"errors"

	"github.com/MrEthical07/eduAuth/jwt"
)

var (
	// ErrInvalidCredentials covers every credential or refresh-token rejection
	// that must not reveal which check failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountNotFound is returned when a token references an account that no longer exists.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountDisabled is returned for accounts with IsActive=false.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrAccountNotVerified is returned by Login for unverified accounts.
	ErrAccountNotVerified = errors.New("account not verified")
	// ErrInvalidOrExpiredState is returned when an OAuth callback presents an
	// unknown, consumed, or expired state token.
	ErrInvalidOrExpiredState = errors.New("invalid or expired oauth state")
	// ErrTokenReuseDetected is returned when an already-used refresh token is
	// presented again. All refresh tokens of the user are revoked first.
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
	// ErrUpstreamIntegration is returned when the identity provider cannot be
	// reached or answers with something unusable.
	ErrUpstreamIntegration = errors.New("identity provider integration failure")
	// ErrStorageUnavailable is returned when a backing store fails.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrTokenInvalid is returned by ValidateAccess for bad or non-access tokens.
	ErrTokenInvalid = jwt.ErrTokenInvalid
	// ErrInvalidRedirect is returned by StartOAuth for redirect targets that are
	// not absolute http(s) URLs or not on the allowlist.
	ErrInvalidRedirect = errors.New("invalid redirect target")
	// ErrIdentityConflict is returned when the email of an external identity
	// belongs to an account already linked to a different identity.
	ErrIdentityConflict = errors.New("external identity conflict")
	// ErrEngineNotReady is returned when methods are called on a nil or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ErrOAuthNotConfigured is returned by StartOAuth and CompleteOAuth when the
// engine was built without an identity provider.
var ErrOAuthNotConfigured = errors.New("oauth provider not configured")
