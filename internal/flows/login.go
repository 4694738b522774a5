package flows

import (
	"context"
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureMalformed
	LoginFailureNotFound
	LoginFailureLookup
	LoginFailureDisabled
	LoginFailureUnverified
	LoginFailurePassword
	LoginFailureIssue
)

// LoginResult carries either the issued pair or failure metadata.
type LoginResult struct {
	Failure LoginFailureKind
	Err     error
	Account *Account
	Tokens  TokenPair
}

// LoginDeps captures password login dependencies.
type LoginDeps struct {
	Accounts       AccountStore
	VerifyPassword func(password, encodedHash string) (bool, error)
	// AllowUnverified skips the verification gate. The root config refuses
	// it in production.
	AllowUnverified bool
	Issue           IssueDeps

	// Rehash is set when stale hashes should be replaced after a
	// successful login. Failures are reported through Warn and never fail
	// the login.
	Rehash *RehashDeps
	Warn   func(msg string, userID string, err error)
}

// RehashDeps replaces outdated password hashes.
type RehashDeps struct {
	NeedsUpgrade func(encodedHash string) (bool, error)
	Hash         func(password string) (string, error)
}

// RunLogin authenticates email/password and issues a session.
//
// Malformed input, unknown accounts, and every password failure share
// LoginFailureMalformed/NotFound/Password, which the root maps to one
// generic error.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) LoginResult {
	normalized, ok := NormalizeEmail(email)
	if !ok || password == "" {
		return LoginResult{Failure: LoginFailureMalformed}
	}

	account, err := deps.Accounts.FindByEmail(ctx, normalized)
	if err != nil {
		return LoginResult{Failure: LoginFailureLookup, Err: err}
	}
	if account == nil {
		return LoginResult{Failure: LoginFailureNotFound}
	}

	if !account.IsActive {
		return LoginResult{Failure: LoginFailureDisabled, Account: account}
	}
	if !account.IsVerified && !deps.AllowUnverified {
		return LoginResult{Failure: LoginFailureUnverified, Account: account}
	}

	if account.PasswordHash == "" {
		return LoginResult{Failure: LoginFailurePassword, Account: account}
	}
	matched, err := deps.VerifyPassword(password, account.PasswordHash)
	if err != nil || !matched {
		return LoginResult{Failure: LoginFailurePassword, Err: err, Account: account}
	}

	if deps.Rehash != nil {
		rehash(ctx, account, password, deps)
	}

	tokens, err := RunIssueTokens(ctx, account, deps.Issue)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, Account: account}
	}
	return LoginResult{Account: account, Tokens: tokens}
}

func rehash(ctx context.Context, account *Account, password string, deps LoginDeps) {
	warn := func(msg string, err error) {
		if deps.Warn != nil {
			deps.Warn(msg, account.ID, err)
		}
	}

	stale, err := deps.Rehash.NeedsUpgrade(account.PasswordHash)
	if err != nil {
		warn("password upgrade check failed", err)
		return
	}
	if !stale {
		return
	}
	fresh, err := deps.Rehash.Hash(password)
	if err != nil {
		warn("password rehash failed", err)
		return
	}

	updated := *account
	updated.PasswordHash = fresh
	if deps.Issue.Now != nil {
		updated.UpdatedAt = deps.Issue.Now().UTC()
	}
	if err := deps.Accounts.Update(ctx, &updated); err != nil {
		warn("password hash update failed", err)
		return
	}
	*account = updated
}
