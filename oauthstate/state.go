package oauthstate

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when no tier could serve the operation.
var ErrUnavailable = errors.New("oauth state storage unavailable")

// ErrCapacity is returned by [MemoryBackend.Put] when the map is full of live states.
var ErrCapacity = errors.New("oauth state memory tier at capacity")

// State binds a state token to the PKCE verifier and the post-login redirect.
type State struct {
	ID             string     `json:"id"`
	Token          string     `json:"token"`
	RedirectTarget string     `json:"redirect_target"`
	CodeVerifier   string     `json:"code_verifier"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	UsedAt         *time.Time `json:"used_at,omitempty"`
}

// Live reports whether the state can still be consumed at now.
func (s *State) Live(now time.Time) bool {
	return s != nil && s.UsedAt == nil && now.Before(s.ExpiresAt)
}

// Store is the contract the OAuth flows depend on.
//
// FindByToken returns (nil, nil) for unknown, consumed or expired tokens.
type Store interface {
	CreateState(ctx context.Context, redirectTarget, codeVerifier string, ttl time.Duration) (*State, error)
	FindByToken(ctx context.Context, token string) (*State, error)
	DeleteState(ctx context.Context, token string) error
}

// Backend is one storage tier. Get returns (nil, nil) when the token is absent.
type Backend interface {
	Put(ctx context.Context, state *State) error
	Get(ctx context.Context, token string) (*State, error)
	Delete(ctx context.Context, token string) error
}
