package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/eduAuth/jwt"
	"github.com/MrEthical07/eduAuth/refresh"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailureStore
	RefreshFailureUnknown
	RefreshFailureRevoked
	RefreshFailureReuse
	RefreshFailureAccountLookup
	RefreshFailureAccountMissing
	RefreshFailureAccountDisabled
	RefreshFailureIssue
)

// RefreshResult carries either the issued pair or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	UserID  string
	// Revoked is the number of records revoked by reuse containment.
	Revoked int
	Account *Account
	Tokens  TokenPair
}

// RefreshDeps captures refresh rotation dependencies.
type RefreshDeps struct {
	Verify   func(string) (*jwt.Claims, error)
	Now      func() time.Time
	Store    refresh.Store
	Accounts AccountStore
	Warn     func(msg string, userID string, err error)
	Issue    IssueDeps
}

// RunRefresh rotates a refresh token.
//
// A record that is already used, or whose used flag another request flipped
// first, triggers revocation of every record for the user.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	claims, err := deps.Verify(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}
	if claims.Kind != jwt.KindRefresh {
		return RefreshResult{Failure: RefreshFailureDecode, UserID: claims.UID}
	}

	rec, err := deps.Store.FindByToken(ctx, refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: claims.UID}
	}
	if rec == nil || rec.UserID != claims.UID {
		return RefreshResult{Failure: RefreshFailureUnknown, UserID: claims.UID}
	}
	if rec.Revoked || rec.Expired(deps.Now()) {
		return RefreshResult{Failure: RefreshFailureRevoked, UserID: rec.UserID}
	}
	if rec.Used {
		return containReuse(ctx, rec.UserID, deps)
	}

	won, err := deps.Store.MarkUsed(ctx, rec.ID)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: rec.UserID}
	}
	if !won {
		return containReuse(ctx, rec.UserID, deps)
	}

	account, err := deps.Accounts.FindByID(ctx, rec.UserID)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureAccountLookup, Err: err, UserID: rec.UserID}
	}
	if account == nil {
		return RefreshResult{Failure: RefreshFailureAccountMissing, UserID: rec.UserID}
	}
	if !account.IsActive {
		return RefreshResult{Failure: RefreshFailureAccountDisabled, UserID: rec.UserID, Account: account}
	}

	tokens, err := RunIssueTokens(ctx, account, deps.Issue)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, UserID: rec.UserID, Account: account}
	}
	return RefreshResult{UserID: rec.UserID, Account: account, Tokens: tokens}
}

func containReuse(ctx context.Context, userID string, deps RefreshDeps) RefreshResult {
	revoked, err := deps.Store.InvalidateAllForUser(ctx, userID)
	if err != nil && deps.Warn != nil {
		deps.Warn("refresh reuse containment failed", userID, err)
	}
	return RefreshResult{Failure: RefreshFailureReuse, Err: err, UserID: userID, Revoked: revoked}
}
