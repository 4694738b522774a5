package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/eduAuth/identity"
	"github.com/MrEthical07/eduAuth/oauthstate"
	"golang.org/x/oauth2"
)

// OAuthCallbackFailureKind classifies OAuth callback failures.
type OAuthCallbackFailureKind int

const (
	OAuthCallbackFailureNone OAuthCallbackFailureKind = iota
	OAuthCallbackFailureState
	OAuthCallbackFailureStateStore
	OAuthCallbackFailureExchange
	OAuthCallbackFailureProfile
	OAuthCallbackFailureAccountLookup
	OAuthCallbackFailureAccountDisabled
	OAuthCallbackFailureConflict
	OAuthCallbackFailureAccountWrite
	OAuthCallbackFailureIssue
)

// OAuthCallbackResult carries the resolved account and session or failure metadata.
type OAuthCallbackResult struct {
	Failure        OAuthCallbackFailureKind
	Err            error
	Account        *Account
	Tokens         TokenPair
	RedirectTarget string
	Created        bool
	Linked         bool
}

// OAuthCallbackDeps captures OAuth callback dependencies.
type OAuthCallbackDeps struct {
	States       oauthstate.Store
	Provider     string
	Exchange     func(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error)
	FetchProfile func(ctx context.Context, accessToken string) (*identity.Profile, error)
	Accounts     AccountStore
	DefaultRole  string
	NewID        func() string
	Now          func() time.Time
	Issue        IssueDeps
}

var (
	errMissingCode       = errors.New("authorization code missing")
	errIncompleteProfile = errors.New("provider profile lacks subject or usable email")
)

// RunOAuthCallback consumes stateToken, completes the PKCE exchange, and
// resolves the local account.
//
// The state is deleted before the provider is contacted, so a callback can
// never be replayed. No account is created or changed until both provider
// calls have succeeded.
func RunOAuthCallback(ctx context.Context, code, stateToken string, deps OAuthCallbackDeps) OAuthCallbackResult {
	if stateToken == "" {
		return OAuthCallbackResult{Failure: OAuthCallbackFailureState}
	}
	state, err := deps.States.FindByToken(ctx, stateToken)
	if err != nil {
		return OAuthCallbackResult{Failure: OAuthCallbackFailureStateStore, Err: err}
	}
	if state == nil {
		return OAuthCallbackResult{Failure: OAuthCallbackFailureState}
	}
	if err := deps.States.DeleteState(ctx, stateToken); err != nil {
		return OAuthCallbackResult{Failure: OAuthCallbackFailureStateStore, Err: err}
	}
	redirect := state.RedirectTarget

	if strings.TrimSpace(code) == "" {
		return OAuthCallbackResult{Failure: OAuthCallbackFailureExchange, Err: errMissingCode, RedirectTarget: redirect}
	}
	upstream, err := deps.Exchange(ctx, code, state.CodeVerifier)
	if err != nil {
		return OAuthCallbackResult{Failure: OAuthCallbackFailureExchange, Err: err, RedirectTarget: redirect}
	}
	profile, err := deps.FetchProfile(ctx, upstream.AccessToken)
	if err != nil {
		return OAuthCallbackResult{Failure: OAuthCallbackFailureProfile, Err: err, RedirectTarget: redirect}
	}
	email, ok := NormalizeEmail(profile.Email)
	if strings.TrimSpace(profile.ExternalID) == "" || !ok {
		return OAuthCallbackResult{Failure: OAuthCallbackFailureProfile, Err: errIncompleteProfile, RedirectTarget: redirect}
	}

	result := resolveAccount(ctx, profile, email, deps)
	result.RedirectTarget = redirect
	if result.Failure != OAuthCallbackFailureNone {
		return result
	}

	tokens, err := RunIssueTokens(ctx, result.Account, deps.Issue)
	if err != nil {
		result.Failure = OAuthCallbackFailureIssue
		result.Err = err
		return result
	}
	result.Tokens = tokens
	return result
}

func resolveAccount(ctx context.Context, profile *identity.Profile, email string, deps OAuthCallbackDeps) OAuthCallbackResult {
	account, err := deps.Accounts.FindByExternalID(ctx, deps.Provider, profile.ExternalID)
	if err != nil {
		return OAuthCallbackResult{Failure: OAuthCallbackFailureAccountLookup, Err: err}
	}
	if account != nil {
		if !account.IsActive {
			return OAuthCallbackResult{Failure: OAuthCallbackFailureAccountDisabled, Account: account}
		}
		return OAuthCallbackResult{Account: account}
	}

	now := deps.Now()
	link := &ExternalIdentity{
		Provider:              deps.Provider,
		ProviderID:            profile.ExternalID,
		ProviderEmail:         email,
		ProviderVerifiedEmail: profile.EmailVerified,
		LinkedAt:              now,
	}

	account, err = deps.Accounts.FindByEmail(ctx, email)
	if err != nil {
		return OAuthCallbackResult{Failure: OAuthCallbackFailureAccountLookup, Err: err}
	}
	if account != nil {
		if account.ExternalIdentity != nil {
			// Linked to another subject; FindByExternalID already missed.
			return OAuthCallbackResult{Failure: OAuthCallbackFailureConflict, Account: account}
		}
		if !account.IsActive {
			return OAuthCallbackResult{Failure: OAuthCallbackFailureAccountDisabled, Account: account}
		}
		linked := *account
		linked.ExternalIdentity = link
		if profile.EmailVerified {
			linked.IsVerified = true
		}
		if linked.DisplayName == "" {
			linked.DisplayName = profile.DisplayName
		}
		if linked.PictureURL == "" {
			linked.PictureURL = profile.PictureURL
		}
		linked.UpdatedAt = now
		if err := deps.Accounts.Update(ctx, &linked); err != nil {
			return OAuthCallbackResult{Failure: OAuthCallbackFailureAccountWrite, Err: err, Account: account}
		}
		return OAuthCallbackResult{Account: &linked, Linked: true}
	}

	created := &Account{
		ID:               deps.NewID(),
		Email:            email,
		Role:             deps.DefaultRole,
		IsActive:         true,
		IsVerified:       profile.EmailVerified,
		DisplayName:      profile.DisplayName,
		PictureURL:       profile.PictureURL,
		ExternalIdentity: link,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := deps.Accounts.Create(ctx, created); err != nil {
		return OAuthCallbackResult{Failure: OAuthCallbackFailureAccountWrite, Err: err}
	}
	return OAuthCallbackResult{Account: created, Created: true}
}
