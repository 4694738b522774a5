package flows

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/MrEthical07/eduAuth/refresh"
)

// Account is the flow-local account aggregate. The root package re-exports it.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	IsActive     bool
	IsVerified   bool
	DisplayName  string
	PictureURL   string

	ExternalIdentity *ExternalIdentity

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExternalIdentity is an upstream provider subject linked to an [Account].
type ExternalIdentity struct {
	Provider              string
	ProviderID            string
	ProviderEmail         string
	ProviderVerifiedEmail bool
	LinkedAt              time.Time
}

// AccountStore is the persistence contract flows depend on. Lookups return
// (nil, nil) when nothing matches.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByExternalID(ctx context.Context, provider, externalID string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	Create(ctx context.Context, account *Account) error
	Update(ctx context.Context, account *Account) error
}

// TokenPair is the issued access/refresh pair.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// IssueDeps captures token issuance dependencies shared by every flow that
// ends in a session.
type IssueDeps struct {
	IssueAccess  func(userID, email, role string) (string, error)
	IssueRefresh func(userID, email string) (string, error)
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	Now          func() time.Time
	Refresh      refresh.Store
}

// errIssue marks token signing failures so callers can tell them apart from
// refresh store failures.
var errIssue = errors.New("token issuance failed")

// RunIssueTokens signs a new pair for account and persists the refresh record.
func RunIssueTokens(ctx context.Context, account *Account, deps IssueDeps) (TokenPair, error) {
	now := deps.Now()
	access, err := deps.IssueAccess(account.ID, account.Email, account.Role)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: access: %v", errIssue, err)
	}
	refreshToken, err := deps.IssueRefresh(account.ID, account.Email)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: refresh: %v", errIssue, err)
	}
	refreshExpiry := now.Add(deps.RefreshTTL)
	if _, err := deps.Refresh.Create(ctx, account.ID, refreshToken, refreshExpiry); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  now.Add(deps.AccessTTL),
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

// IsIssueError reports whether err came from token signing rather than storage.
func IsIssueError(err error) bool {
	return errors.Is(err, errIssue)
}

// NormalizeEmail trims and lowercases an address and checks it is a bare
// RFC 5322 addr-spec. Display-name forms are rejected.
func NormalizeEmail(raw string) (string, bool) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" || len(email) > 254 {
		return "", false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", false
	}
	return email, true
}
