package eduAuth

import (
	"context"
	"time"

	"github.com/MrEthical07/eduAuth/identity"
	"github.com/MrEthical07/eduAuth/internal/flows"
	"golang.org/x/oauth2"
)

// Account is the platform's view of a user for authentication purposes.
//
// IsVerified may be upgraded by a verified provider assertion but is never
// downgraded by one. ExternalIdentity is nil for password-only accounts.
type Account = flows.Account

// ExternalIdentity links an account to one upstream identity provider subject.
type ExternalIdentity = flows.ExternalIdentity

// AccountStore is the account persistence contract. Lookups return
// (nil, nil) when no account matches.
//
//	Reference implementation: sqlstore.Accounts
type AccountStore = flows.AccountStore

// IdentityProvider is the upstream OAuth 2.0 provider used by
// [Engine.StartOAuth] and [Engine.CompleteOAuth]. [identity.Client]
// implements it.
type IdentityProvider interface {
	Name() string
	AuthorizationURL(state, codeChallenge string) string
	Exchange(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error)
	FetchProfile(ctx context.Context, accessToken string) (*identity.Profile, error)
}

// PasswordVerifier checks a plaintext password against a stored hash.
// password.Legacy is the default.
type PasswordVerifier interface {
	Verify(password, encodedHash string) (bool, error)
}

// PasswordUpgrader is implemented by verifiers that can replace stale
// hashes. When the configured verifier implements it and
// Config.Password.UpgradeOnLogin is set, a successful login stores a fresh
// hash.
type PasswordUpgrader interface {
	NeedsUpgrade(encodedHash string) (bool, error)
	Hash(password string) (string, error)
}

// TokenPair is the access/refresh pair handed to a client after a successful
// login, refresh, or OAuth callback.
type TokenPair = flows.TokenPair

// LoginResult is returned by [Engine.Login] and [Engine.Refresh].
type LoginResult struct {
	Account *Account
	Tokens  TokenPair
}

// OAuthResult is returned by [Engine.CompleteOAuth].
type OAuthResult struct {
	Account        *Account
	Tokens         TokenPair
	RedirectTarget string
	// Created is true when the callback provisioned a new account.
	Created bool
	// Linked is true when the callback attached the identity to an existing account.
	Linked bool
}

// AuthResult is returned by [Engine.ValidateAccess].
type AuthResult struct {
	UserID    string
	Email     string
	Role      string
	ExpiresAt time.Time
}
