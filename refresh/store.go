package refresh

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps every backend failure (network, decode, driver).
var ErrUnavailable = errors.New("refresh store unavailable")

// ErrNotFound is returned by [Store.Update] when no record has the given ID.
var ErrNotFound = errors.New("refresh record not found")

// Record is the persisted state of one issued refresh token.
type Record struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Used      bool
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the record is past its expiry at now.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Update is a flag patch. Fields can only be set, never cleared.
type Update struct {
	MarkUsed bool
	Revoke   bool
}

// Store persists refresh-token records.
//
// FindByToken returns (nil, nil) when no record matches. MarkUsed is an
// atomic compare-and-swap on the used flag: it returns true only for the
// caller that flipped it. InvalidateAllForUser is idempotent and reports how
// many records it newly revoked.
type Store interface {
	Create(ctx context.Context, userID, token string, expiresAt time.Time) (*Record, error)
	FindByToken(ctx context.Context, token string) (*Record, error)
	Update(ctx context.Context, id string, patch Update) (*Record, error)
	MarkUsed(ctx context.Context, id string) (bool, error)
	InvalidateAllForUser(ctx context.Context, userID string) (int, error)
	ListForUser(ctx context.Context, userID string) ([]*Record, error)
}
